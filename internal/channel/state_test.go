package channel

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNext(t *testing.T) {
	tests := []struct {
		from State
		ev   EventType
		to   State
		ok   bool
	}{
		{Idle, EventConnect, Connecting, true},
		{Idle, EventDisconnect, Idle, false},
		{Idle, EventOpened, Idle, false},
		{Connecting, EventConnect, Connecting, false},
		{Connecting, EventOpened, Open, true},
		{Connecting, EventDisconnect, Closing, true},
		{Connecting, EventClosed, Closed, true},
		{Connecting, EventMessage, Connecting, false},
		{Open, EventConnect, Open, false},
		{Open, EventMessage, Open, true},
		{Open, EventDisconnect, Closing, true},
		{Open, EventClosed, Closed, true},
		{Closing, EventConnect, Closing, false},
		{Closing, EventOpened, Closing, false},
		{Closing, EventMessage, Closing, false},
		{Closing, EventClosed, Closed, true},
		{Closed, EventConnect, Connecting, true},
		{Closed, EventSettle, Idle, true},
		{Closed, EventDisconnect, Closed, false},
	}
	for _, tt := range tests {
		t.Run(tt.from.String()+"/"+tt.ev.String(), func(t *testing.T) {
			to, ok := Next(tt.from, tt.ev)
			assert.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, tt.to, to)
			}
		})
	}
}

func TestStateActive(t *testing.T) {
	assert.False(t, Idle.Active())
	assert.True(t, Connecting.Active())
	assert.True(t, Open.Active())
	assert.True(t, Closing.Active())
	assert.False(t, Closed.Active())
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "video", Video.String())
	assert.Equal(t, "stats", Stats.String())
	assert.Equal(t, "notification", Notification.String())
}

func TestEventConstructors(t *testing.T) {
	assert.Equal(t, EventOpened, Opened().Type)

	msg := MessageReceived([]byte("frame"))
	assert.Equal(t, EventMessage, msg.Type)
	assert.Equal(t, []byte("frame"), msg.Payload)

	assert.Equal(t, Event{Type: EventClosed}, TransportClosed(nil))
	reason := errors.New("reset")
	assert.ErrorIs(t, TransportClosed(reason).Err, reason)

	to, ok := Next(Open, TransportClosed(nil).Type)
	assert.True(t, ok)
	assert.Equal(t, Closed, to)
}
