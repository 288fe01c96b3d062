package channel

import (
	"errors"
	"fmt"
)

// Kind identifies one of the session's channels.
type Kind int

const (
	Video Kind = iota
	Stats
	Notification
)

// Kinds lists every channel kind in startup order.
var Kinds = []Kind{Video, Stats, Notification}

func (k Kind) String() string {
	switch k {
	case Video:
		return "video"
	case Stats:
		return "stats"
	case Notification:
		return "notification"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// State is the lifecycle state of a channel.
type State int

const (
	Idle State = iota
	Connecting
	Open
	Closing
	Closed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Closing:
		return "closing"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Active reports whether a transport handle exists in this state.
func (s State) Active() bool {
	return s == Connecting || s == Open || s == Closing
}

// EventType enumerates the inputs of the transition table.
type EventType int

const (
	EventConnect EventType = iota
	EventOpened
	EventMessage
	EventDisconnect
	EventClosed
	EventSettle
)

func (t EventType) String() string {
	switch t {
	case EventConnect:
		return "connect"
	case EventOpened:
		return "opened"
	case EventMessage:
		return "message"
	case EventDisconnect:
		return "disconnect"
	case EventClosed:
		return "closed"
	case EventSettle:
		return "settle"
	default:
		return fmt.Sprintf("event(%d)", int(t))
	}
}

// Event is emitted by a transport.
type Event struct {
	Type    EventType
	Payload []byte
	Err     error
}

// Opened signals that the transport finished its handshake.
func Opened() Event { return Event{Type: EventOpened} }

// MessageReceived carries one inbound frame.
func MessageReceived(payload []byte) Event { return Event{Type: EventMessage, Payload: payload} }

// TransportClosed signals the end of the transport. reason is nil for a local
// close.
func TransportClosed(reason error) Event { return Event{Type: EventClosed, Err: reason} }

var transitions = map[State]map[EventType]State{
	Idle: {
		EventConnect: Connecting,
	},
	Connecting: {
		EventOpened:     Open,
		EventDisconnect: Closing,
		EventClosed:     Closed,
	},
	Open: {
		EventMessage:    Open,
		EventDisconnect: Closing,
		EventClosed:     Closed,
	},
	Closing: {
		EventClosed: Closed,
	},
	Closed: {
		EventConnect: Connecting,
		EventSettle:  Idle,
	},
}

// Next returns the state reached when ev arrives in s. ok is false when the
// event has no effect in that state.
func Next(s State, ev EventType) (State, bool) {
	to, ok := transitions[s][ev]
	return to, ok
}

// Errors returned by Manager commands.
var (
	ErrNoEndpoint = errors.New("channel has no endpoint")
	ErrShutdown   = errors.New("channel is shut down")
)
