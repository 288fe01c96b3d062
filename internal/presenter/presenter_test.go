package presenter

import (
	"bytes"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/larvawatch/internal/channel"
	"github.com/example/larvawatch/internal/logging"
	"github.com/example/larvawatch/internal/loop"
)

func newPresenter(t *testing.T) (*Presenter, *loop.Manual) {
	t.Helper()
	rt := loop.NewManual(time.Unix(1000, 0))
	p := New(Options{
		Scheduler:              rt,
		NotificationClearAfter: 3 * time.Second,
		StatusClearAfter:       5 * time.Second,
		Logger:                 logging.Discard(),
	})
	return p, rt
}

func pngFrame(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return []byte(base64.StdEncoding.EncodeToString(buf.Bytes()))
}

func notify(t *testing.T, p *Presenter, title string) {
	t.Helper()
	require.NoError(t, p.HandleMessage(channel.Notification, []byte(`{"title":"`+title+`","message":"m"}`)))
}

func TestHandleMessage_VideoLatestWins(t *testing.T) {
	p, _ := newPresenter(t)

	require.NoError(t, p.HandleMessage(channel.Video, pngFrame(t, 4, 3)))
	require.NoError(t, p.HandleMessage(channel.Video, pngFrame(t, 8, 6)))

	f, ok := p.Frames().Latest()
	require.True(t, ok)
	assert.Equal(t, "png", f.Format)
	assert.Equal(t, 8, f.Width)
	assert.Equal(t, 6, f.Height)
	assert.Equal(t, uint64(2), f.Seq)

	v := p.View()
	require.NotNil(t, v.Frame)
	assert.Equal(t, uint64(2), v.Frame.Seq)
}

func TestHandleMessage_VideoDataURLPrefix(t *testing.T) {
	p, _ := newPresenter(t)
	payload := append([]byte("data:image/png;base64,"), pngFrame(t, 2, 2)...)
	require.NoError(t, p.HandleMessage(channel.Video, payload))
	assert.True(t, p.Frames().HasFrame())
}

func TestHandleMessage_VideoMalformed(t *testing.T) {
	p, _ := newPresenter(t)
	require.NoError(t, p.HandleMessage(channel.Video, pngFrame(t, 2, 2)))

	tests := []struct {
		name    string
		payload string
	}{
		{"empty", ""},
		{"not base64", "!!!not-base64!!!"},
		{"not an image", base64.StdEncoding.EncodeToString([]byte("hello"))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := p.HandleMessage(channel.Video, []byte(tt.payload))
			var de *DecodeError
			require.ErrorAs(t, err, &de)
			assert.Equal(t, channel.Video, de.Kind)

			f, ok := p.Frames().Latest()
			require.True(t, ok)
			assert.Equal(t, uint64(1), f.Seq)
		})
	}
}

func TestHandleMessage_StatsAlertFollowsFlag(t *testing.T) {
	p, _ := newPresenter(t)

	// density_cm2 is high but the flag says otherwise: the flag wins
	require.NoError(t, p.HandleMessage(channel.Stats,
		[]byte(`{"larvae_count":900,"density_cm2":2.18,"density_m2":21791.7,"is_high_density":true}`)))
	v := p.View()
	require.NotNil(t, v.Stats)
	assert.True(t, v.Alert)
	assert.Equal(t, 900, v.Stats.LarvaeCount)

	require.NoError(t, p.HandleMessage(channel.Stats,
		[]byte(`{"larvae_count":900,"density_cm2":2.18,"density_m2":21791.7,"is_high_density":false}`)))
	assert.False(t, p.View().Alert)
}

func TestHandleMessage_StatsMalformedKeepsSnapshot(t *testing.T) {
	p, _ := newPresenter(t)
	require.NoError(t, p.HandleMessage(channel.Stats,
		[]byte(`{"larvae_count":3,"density_cm2":0.01,"density_m2":72.6,"is_high_density":false}`)))
	before := p.View()

	tests := []struct {
		name    string
		payload string
		is      error
	}{
		{"not json", "hello", nil},
		{"missing flag", `{"larvae_count":3,"density_cm2":0.01,"density_m2":72.6}`, ErrMissingField},
		{"null", `null`, ErrMissingField},
		{"negative", `{"larvae_count":-1,"density_cm2":0.01,"density_m2":72.6,"is_high_density":false}`, ErrNegativeValue},
		{"wrong type", `{"larvae_count":"3","density_cm2":0.01,"density_m2":72.6,"is_high_density":false}`, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := p.HandleMessage(channel.Stats, []byte(tt.payload))
			require.Error(t, err)
			if tt.is != nil {
				assert.True(t, errors.Is(err, tt.is))
			}
			after := p.View()
			assert.Equal(t, before.Stats, after.Stats)
			assert.Equal(t, before.Version, after.Version)
		})
	}
}

func TestNotification_ClearsAfterMostRecent(t *testing.T) {
	p, rt := newPresenter(t)

	notify(t, p, "first")
	rt.Advance(1 * time.Second)
	notify(t, p, "second")
	rt.Advance(2500 * time.Millisecond)
	notify(t, p, "third")

	// t1+3s and t2+3s pass without clearing
	rt.Advance(2999 * time.Millisecond)
	v := p.View()
	require.NotNil(t, v.Notification)
	assert.Equal(t, "third", v.Notification.Title)

	rt.Advance(1 * time.Millisecond)
	assert.Nil(t, p.View().Notification)
	assert.Equal(t, 0, rt.Pending())
}

func TestNotification_ReplacesCurrent(t *testing.T) {
	p, rt := newPresenter(t)

	notify(t, p, "a")
	first := p.View().Notification
	notify(t, p, "b")
	second := p.View().Notification

	require.NotNil(t, first)
	require.NotNil(t, second)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, "b", second.Title)
	assert.Equal(t, 1, rt.Pending())
}

func TestNotification_Malformed(t *testing.T) {
	p, rt := newPresenter(t)
	err := p.HandleMessage(channel.Notification, []byte(`{"title":"x"}`))
	assert.ErrorIs(t, err, ErrMissingField)
	assert.Nil(t, p.View().Notification)
	assert.Equal(t, 0, rt.Pending())
}

func TestMarkReady_OnlyOnce(t *testing.T) {
	p, _ := newPresenter(t)
	assert.False(t, p.View().Controls.VideoStart)

	p.MarkResolving()
	assert.Equal(t, StatusResolving, p.View().Status)

	assert.True(t, p.MarkReady())
	assert.False(t, p.MarkReady())
	v := p.View()
	assert.Equal(t, StatusReady, v.Status)
	assert.True(t, v.Controls.VideoStart)
	assert.False(t, v.Controls.VideoStop)
}

func TestMarkUnreachable(t *testing.T) {
	p, _ := newPresenter(t)
	p.MarkUnreachable(errors.New("cannot reach server"))
	v := p.View()
	assert.Equal(t, StatusUnreachable, v.Status)
	assert.Equal(t, "cannot reach server", v.StatusError)
	assert.False(t, v.Controls.VideoStart)
}

func TestOnTransition_ControlsAndFrameClear(t *testing.T) {
	p, _ := newPresenter(t)
	p.MarkReady()

	p.OnTransition(channel.Transition{Kind: channel.Video, From: channel.Idle, To: channel.Connecting})
	v := p.View()
	assert.False(t, v.Controls.VideoStart)
	assert.True(t, v.Controls.VideoStop)
	assert.Equal(t, "connecting", v.Channels["video"])

	p.OnTransition(channel.Transition{Kind: channel.Video, From: channel.Connecting, To: channel.Open})
	require.NoError(t, p.HandleMessage(channel.Video, pngFrame(t, 2, 2)))
	require.NotNil(t, p.View().Frame)

	p.OnTransition(channel.Transition{Kind: channel.Video, From: channel.Open, To: channel.Closed})
	v = p.View()
	assert.Nil(t, v.Frame)
	assert.True(t, v.Controls.VideoStart)
	assert.False(t, v.Controls.VideoStop)
}

func TestReportAction_Transient(t *testing.T) {
	p, rt := newPresenter(t)

	p.ReportAction("deleted 4 images", false)
	rt.Advance(4 * time.Second)
	p.ReportAction("delete failed", true)
	rt.Advance(4 * time.Second)

	v := p.View()
	require.NotNil(t, v.Action)
	assert.True(t, v.Action.Failed)

	rt.Advance(1 * time.Second)
	assert.Nil(t, p.View().Action)
}

func TestClose_CancelsTimers(t *testing.T) {
	p, rt := newPresenter(t)
	notify(t, p, "x")
	p.ReportAction("ok", false)
	require.Equal(t, 2, rt.Pending())

	p.Close()
	assert.Equal(t, 0, rt.Pending())
}

func TestView_VersionIncreases(t *testing.T) {
	p, _ := newPresenter(t)
	v0 := p.View().Version
	notify(t, p, "x")
	v1 := p.View().Version
	assert.Greater(t, v1, v0)
}
