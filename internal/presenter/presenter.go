// Package presenter turns decoded channel payloads into the state shown by the
// viewer. Everything except the FrameStore runs on the session loop.
package presenter

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/example/larvawatch/internal/channel"
	"github.com/example/larvawatch/internal/loop"
)

// Default display timings.
const (
	DefaultNotificationClearAfter = 3 * time.Second
	DefaultStatusClearAfter       = 5 * time.Second
)

// StatsSnapshot is the latest density reading. IsHighDensity comes from the
// device and is never recomputed here.
type StatsSnapshot struct {
	LarvaeCount   int     `json:"larvae_count"`
	DensityPerCm2 float64 `json:"density_cm2"`
	DensityPerM2  float64 `json:"density_m2"`
	IsHighDensity bool    `json:"is_high_density"`
}

// Notification is the notification on display.
type Notification struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Message    string    `json:"message"`
	ReceivedAt time.Time `json:"received_at"`
}

// ConnectionStatus is the resolution state shown in the status area.
type ConnectionStatus string

const (
	StatusPending     ConnectionStatus = "pending"
	StatusResolving   ConnectionStatus = "resolving"
	StatusReady       ConnectionStatus = "ready"
	StatusUnreachable ConnectionStatus = "unreachable"
)

// ActionStatus is the transient result line of an external action.
type ActionStatus struct {
	Message string    `json:"message"`
	Failed  bool      `json:"failed"`
	At      time.Time `json:"at"`
}

// Controls reports which manual buttons are enabled.
type Controls struct {
	VideoStart bool `json:"video_start"`
	VideoStop  bool `json:"video_stop"`
}

// View is a snapshot of everything on display. Version increases on every
// change except new video frames, which are tracked by Frame.Seq.
type View struct {
	Version      uint64            `json:"version"`
	Status       ConnectionStatus  `json:"status"`
	StatusError  string            `json:"status_error,omitempty"`
	Channels     map[string]string `json:"channels"`
	Controls     Controls          `json:"controls"`
	Frame        *FrameInfo        `json:"frame,omitempty"`
	Stats        *StatsSnapshot    `json:"stats,omitempty"`
	Alert        bool              `json:"alert"`
	Notification *Notification     `json:"notification,omitempty"`
	Action       *ActionStatus     `json:"action,omitempty"`
}

// Options configures a Presenter.
type Options struct {
	Scheduler              loop.Scheduler
	Frames                 *FrameStore
	NotificationClearAfter time.Duration
	StatusClearAfter       time.Duration
	Logger                 *slog.Logger
}

// Presenter routes channel payloads and owns the display timers. It implements
// channel.MessageHandler and is not safe for concurrent use.
type Presenter struct {
	scheduler   loop.Scheduler
	frames      *FrameStore
	clearAfter  time.Duration
	statusAfter time.Duration
	logger      *slog.Logger

	version      uint64
	channels     map[channel.Kind]channel.State
	available    bool
	status       ConnectionStatus
	statusErr    string
	stats        *StatsSnapshot
	notification *Notification
	clearTask    loop.Task
	action       *ActionStatus
	actionTask   loop.Task
}

// New creates a presenter with every channel Idle.
func New(opts Options) *Presenter {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	frames := opts.Frames
	if frames == nil {
		frames = NewFrameStore()
	}
	clearAfter := opts.NotificationClearAfter
	if clearAfter <= 0 {
		clearAfter = DefaultNotificationClearAfter
	}
	statusAfter := opts.StatusClearAfter
	if statusAfter <= 0 {
		statusAfter = DefaultStatusClearAfter
	}
	p := &Presenter{
		scheduler:   opts.Scheduler,
		frames:      frames,
		clearAfter:  clearAfter,
		statusAfter: statusAfter,
		logger:      logger,
		channels:    make(map[channel.Kind]channel.State, len(channel.Kinds)),
		status:      StatusPending,
	}
	for _, k := range channel.Kinds {
		p.channels[k] = channel.Idle
	}
	return p
}

// Frames returns the frame store.
func (p *Presenter) Frames() *FrameStore { return p.frames }

// HandleMessage decodes payload according to kind.
func (p *Presenter) HandleMessage(kind channel.Kind, payload []byte) error {
	var err error
	switch kind {
	case channel.Video:
		err = p.showFrame(payload)
	case channel.Stats:
		err = p.showStats(payload)
	case channel.Notification:
		err = p.showNotification(payload)
	default:
		err = fmt.Errorf("no route for %s", kind)
	}
	if err != nil {
		return &DecodeError{Kind: kind, Err: err}
	}
	return nil
}

func (p *Presenter) showFrame(payload []byte) error {
	f, err := decodeVideo(payload)
	if err != nil {
		return err
	}
	if !p.frames.HasFrame() {
		p.changed()
	}
	p.frames.Put(f.data, f.format, f.width, f.height, p.scheduler.Now())
	return nil
}

func (p *Presenter) showStats(payload []byte) error {
	s, err := decodeStats(payload)
	if err != nil {
		return err
	}
	if p.stats != nil && p.stats.IsHighDensity != s.IsHighDensity {
		p.logger.Info("density alert changed", slog.Bool("alert", s.IsHighDensity))
	}
	p.stats = &s
	p.changed()
	return nil
}

// showNotification replaces the current notification and restarts the clear
// timer, so the display clears clearAfter after the most recent one.
func (p *Presenter) showNotification(payload []byte) error {
	title, message, err := decodeNotification(payload)
	if err != nil {
		return err
	}
	n := &Notification{
		ID:         uuid.NewString(),
		Title:      title,
		Message:    message,
		ReceivedAt: p.scheduler.Now(),
	}
	p.notification = n
	p.changed()

	if p.clearTask != nil {
		p.clearTask.Cancel()
	}
	p.clearTask = p.scheduler.Schedule(p.clearAfter, func() {
		if p.notification != n {
			return
		}
		p.clearTask = nil
		p.notification = nil
		p.changed()
	})
	return nil
}

// OnTransition records channel states. The frame is blanked when video stops
// being open.
func (p *Presenter) OnTransition(t channel.Transition) {
	p.channels[t.Kind] = t.To
	if t.Kind == channel.Video && t.From == channel.Open && t.To != channel.Open {
		p.frames.Clear()
	}
	p.changed()
}

// MarkResolving shows that endpoint lookup is in progress.
func (p *Presenter) MarkResolving() {
	p.status = StatusResolving
	p.statusErr = ""
	p.changed()
}

// MarkReady records resolution success and enables the video controls. It
// returns true only the first time.
func (p *Presenter) MarkReady() bool {
	if p.available {
		return false
	}
	p.available = true
	p.status = StatusReady
	p.statusErr = ""
	p.changed()
	return true
}

// MarkUnreachable records a terminal resolution failure. Controls stay
// disabled.
func (p *Presenter) MarkUnreachable(err error) {
	p.status = StatusUnreachable
	if err != nil {
		p.statusErr = err.Error()
	}
	p.changed()
}

// VideoAvailable reports whether video may be started by the user.
func (p *Presenter) VideoAvailable() bool { return p.available }

// ReportAction shows msg in the status line and clears it after a while.
func (p *Presenter) ReportAction(msg string, failed bool) {
	a := &ActionStatus{Message: msg, Failed: failed, At: p.scheduler.Now()}
	p.action = a
	p.changed()

	if p.actionTask != nil {
		p.actionTask.Cancel()
	}
	p.actionTask = p.scheduler.Schedule(p.statusAfter, func() {
		if p.action != a {
			return
		}
		p.actionTask = nil
		p.action = nil
		p.changed()
	})
}

// Close cancels the display timers.
func (p *Presenter) Close() {
	if p.clearTask != nil {
		p.clearTask.Cancel()
		p.clearTask = nil
	}
	if p.actionTask != nil {
		p.actionTask.Cancel()
		p.actionTask = nil
	}
}

// View returns a snapshot of the display.
func (p *Presenter) View() View {
	v := View{
		Version:     p.version,
		Status:      p.status,
		StatusError: p.statusErr,
		Channels:    make(map[string]string, len(p.channels)),
	}
	for k, s := range p.channels {
		v.Channels[k.String()] = s.String()
	}
	video := p.channels[channel.Video]
	v.Controls = Controls{
		VideoStart: p.available && (video == channel.Idle || video == channel.Closed),
		VideoStop:  video == channel.Connecting || video == channel.Open,
	}
	if info, ok := p.frames.Info(); ok {
		v.Frame = &info
	}
	if p.stats != nil {
		s := *p.stats
		v.Stats = &s
		v.Alert = s.IsHighDensity
	}
	if p.notification != nil {
		n := *p.notification
		v.Notification = &n
	}
	if p.action != nil {
		a := *p.action
		v.Action = &a
	}
	return v
}

func (p *Presenter) changed() { p.version++ }
