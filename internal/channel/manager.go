package channel

import (
	"log/slog"
	"time"

	"github.com/example/larvawatch/internal/loop"
)

// Sink receives events from a transport goroutine.
type Sink func(Event)

// Handle is a live transport connection.
type Handle interface {
	// Close requests shutdown. The transport confirms with a Closed event.
	Close() error
}

// Transport opens connections. Open must not block: the outcome is reported
// through sink as Opened or Closed, followed by messages and a final Closed.
type Transport interface {
	Open(url string, sink Sink) Handle
}

// MessageHandler consumes inbound payloads of an open channel. An error means
// the payload was malformed; the channel stays open.
type MessageHandler interface {
	HandleMessage(kind Kind, payload []byte) error
}

// MessageHandlerFunc adapts a function to MessageHandler.
type MessageHandlerFunc func(kind Kind, payload []byte) error

// HandleMessage calls f(kind, payload).
func (f MessageHandlerFunc) HandleMessage(kind Kind, payload []byte) error {
	return f(kind, payload)
}

// Transition describes one state change.
type Transition struct {
	Kind   Kind
	From   State
	To     State
	Reason error
}

// Listener observes transitions. Listeners run synchronously on the loop.
type Listener func(Transition)

// Policy decides what follows Closed.
type Policy struct {
	Reconnect      bool
	ReconnectDelay time.Duration
}

// DefaultReconnectDelay is the notification channel's retry delay.
const DefaultReconnectDelay = 3 * time.Second

// PolicyFor returns the standard policy of kind.
func PolicyFor(kind Kind, reconnectDelay time.Duration) Policy {
	if kind != Notification {
		return Policy{}
	}
	if reconnectDelay <= 0 {
		reconnectDelay = DefaultReconnectDelay
	}
	return Policy{Reconnect: true, ReconnectDelay: reconnectDelay}
}

// Options configures a Manager.
type Options struct {
	Kind       Kind
	Transport  Transport
	Dispatcher loop.Dispatcher
	Scheduler  loop.Scheduler
	Handler    MessageHandler
	Policy     Policy
	Logger     *slog.Logger
}

// Manager runs the lifecycle of a single channel. It is not safe for
// concurrent use; every method must be called on the owning loop.
type Manager struct {
	kind       Kind
	transport  Transport
	dispatcher loop.Dispatcher
	scheduler  loop.Scheduler
	handler    MessageHandler
	policy     Policy
	logger     *slog.Logger

	url       string
	state     State
	handle    Handle
	gen       uint64
	pending   loop.Task
	attempts  int
	stopped   bool
	listeners []Listener
	openGuard func() bool
}

// NewManager creates an idle manager.
func NewManager(opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		kind:       opts.Kind,
		transport:  opts.Transport,
		dispatcher: opts.Dispatcher,
		scheduler:  opts.Scheduler,
		handler:    opts.Handler,
		policy:     opts.Policy,
		logger:     logger.With(slog.String("channel", opts.Kind.String())),
		state:      Idle,
	}
}

// Kind returns the channel kind.
func (m *Manager) Kind() Kind { return m.kind }

// State returns the current state.
func (m *Manager) State() State { return m.state }

// Endpoint returns the configured URL.
func (m *Manager) Endpoint() string { return m.url }

// SetEndpoint sets the URL used by later connects.
func (m *Manager) SetEndpoint(url string) { m.url = url }

// Subscribe registers l for every subsequent transition.
func (m *Manager) Subscribe(l Listener) {
	m.listeners = append(m.listeners, l)
}

// SetOpenGuard installs a check consulted when the transport reports Opened.
// If it returns false the manager disconnects instead of entering Open.
func (m *Manager) SetOpenGuard(guard func() bool) {
	m.openGuard = guard
}

// ReconnectPending reports whether a reconnect is scheduled.
func (m *Manager) ReconnectPending() bool { return m.pending != nil }

// Connect opens a new transport handle. It does nothing unless the channel is
// Idle or Closed.
func (m *Manager) Connect() error {
	if m.stopped {
		return ErrShutdown
	}
	if m.url == "" {
		return ErrNoEndpoint
	}
	to, ok := Next(m.state, EventConnect)
	if !ok {
		m.logger.Debug("connect ignored", slog.String("state", m.state.String()))
		return nil
	}

	m.cancelPending()
	m.gen++
	m.enter(to, nil)
	m.handle = m.transport.Open(m.url, m.sink(m.gen))
	m.logger.Info("connecting", slog.String("url", m.url), slog.Uint64("generation", m.gen))
	return nil
}

// Disconnect closes the transport handle. Any scheduled reconnect is
// cancelled even when the channel is already Idle or Closed.
func (m *Manager) Disconnect() {
	m.cancelPending()
	to, ok := Next(m.state, EventDisconnect)
	if !ok {
		return
	}
	m.enter(to, nil)
	m.closeHandle()
}

// Shutdown disconnects and disables the reconnect policy for good.
func (m *Manager) Shutdown() {
	if m.stopped {
		return
	}
	m.stopped = true
	m.Disconnect()
	m.logger.Debug("channel shut down", slog.String("state", m.state.String()))
}

func (m *Manager) sink(gen uint64) Sink {
	return func(ev Event) {
		m.dispatcher.Post(func() { m.deliver(gen, ev) })
	}
}

// deliver applies a transport event. It runs on the loop.
func (m *Manager) deliver(gen uint64, ev Event) {
	if gen != m.gen {
		m.logger.Debug("dropping event from stale handle",
			slog.String("event", ev.Type.String()),
			slog.Uint64("generation", gen),
		)
		return
	}

	switch ev.Type {
	case EventMessage:
		if m.state != Open {
			return
		}
		if err := m.handler.HandleMessage(m.kind, ev.Payload); err != nil {
			m.logger.Warn("dropping malformed payload",
				slog.Int("bytes", len(ev.Payload)),
				slog.String("error", err.Error()),
			)
		}
		return
	case EventOpened:
		if m.state == Connecting && m.openGuard != nil && !m.openGuard() {
			m.logger.Info("open refused by guard, closing")
			m.Disconnect()
			return
		}
	}

	to, ok := Next(m.state, ev.Type)
	if !ok {
		m.logger.Debug("event ignored",
			slog.String("event", ev.Type.String()),
			slog.String("state", m.state.String()),
		)
		return
	}

	if ev.Type == EventClosed {
		m.handle = nil
	}
	if to == Open {
		m.attempts = 0
	}
	m.enter(to, ev.Err)
	if to == Closed {
		m.afterClose(ev.Err)
	}
}

func (m *Manager) afterClose(reason error) {
	attrs := []any{}
	if reason != nil {
		attrs = append(attrs, slog.String("reason", reason.Error()))
	}

	if m.stopped || !m.policy.Reconnect {
		m.logger.Info("channel closed", attrs...)
		if to, ok := Next(m.state, EventSettle); ok {
			m.enter(to, nil)
		}
		return
	}

	m.attempts++
	attrs = append(attrs,
		slog.Duration("retry_in", m.policy.ReconnectDelay),
		slog.Int("attempt", m.attempts),
	)
	m.logger.Warn("channel closed, scheduling reconnect", attrs...)
	m.pending = m.scheduler.Schedule(m.policy.ReconnectDelay, func() {
		m.pending = nil
		if err := m.Connect(); err != nil {
			m.logger.Error("reconnect failed", slog.String("error", err.Error()))
		}
	})
}

func (m *Manager) enter(to State, reason error) {
	from := m.state
	m.state = to
	t := Transition{Kind: m.kind, From: from, To: to, Reason: reason}
	for _, l := range m.listeners {
		l(t)
	}
}

func (m *Manager) closeHandle() {
	if m.handle == nil {
		return
	}
	if err := m.handle.Close(); err != nil {
		m.logger.Warn("closing transport", slog.String("error", err.Error()))
	}
}

func (m *Manager) cancelPending() {
	if m.pending == nil {
		return
	}
	m.pending.Cancel()
	m.pending = nil
	m.logger.Debug("pending reconnect cancelled")
}
