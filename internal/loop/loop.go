package loop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultQueueSize is the number of closures that may wait for the loop.
const DefaultQueueSize = 1024

// ErrStopped is returned when work is posted to a loop that has exited.
var ErrStopped = errors.New("event loop stopped")

// Dispatcher accepts closures to be run on the loop goroutine.
type Dispatcher interface {
	Post(fn func()) bool
}

// Task is a scheduled callback.
type Task interface {
	// Cancel prevents the callback from running. It reports whether the call
	// stopped it; false means it already ran or was already cancelled.
	Cancel() bool
}

// Scheduler runs callbacks on the loop after a delay.
type Scheduler interface {
	Schedule(d time.Duration, fn func()) Task
	Now() time.Time
}

// Runtime is everything session components need from the loop.
type Runtime interface {
	Dispatcher
	Scheduler
	Call(ctx context.Context, fn func()) error
}

// Loop executes posted closures sequentially on the goroutine that calls Run.
type Loop struct {
	queue    chan func()
	done     chan struct{}
	stopOnce sync.Once
	logger   *slog.Logger
}

// New creates a loop with room for size pending closures.
func New(size int, logger *slog.Logger) *Loop {
	if size <= 0 {
		size = DefaultQueueSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		queue:  make(chan func(), size),
		done:   make(chan struct{}),
		logger: logger,
	}
}

// Run processes closures until ctx is cancelled. Closures still queued at that
// point are discarded.
func (l *Loop) Run(ctx context.Context) error {
	defer l.stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fn := <-l.queue:
			l.exec(fn)
		}
	}
}

func (l *Loop) stop() {
	l.stopOnce.Do(func() { close(l.done) })
}

func (l *Loop) exec(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("event loop callback panicked", slog.String("panic", fmt.Sprint(r)))
		}
	}()
	fn()
}

// Post queues fn. It blocks while the queue is full and returns false once the
// loop has stopped.
func (l *Loop) Post(fn func()) bool {
	select {
	case <-l.done:
		return false
	default:
	}
	select {
	case l.queue <- fn:
		return true
	case <-l.done:
		return false
	}
}

// Call runs fn on the loop and waits for it to return.
func (l *Loop) Call(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if !l.Post(func() {
		defer close(finished)
		fn()
	}) {
		return ErrStopped
	}
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		return ErrStopped
	}
}

// Now returns the wall clock time.
func (l *Loop) Now() time.Time {
	return time.Now()
}

// Schedule runs fn on the loop once d has elapsed.
func (l *Loop) Schedule(d time.Duration, fn func()) Task {
	t := &timerTask{}
	t.timer = time.AfterFunc(d, func() {
		l.Post(func() {
			if t.cancelled.Load() {
				return
			}
			t.ran.Store(true)
			fn()
		})
	})
	return t
}

type timerTask struct {
	timer     *time.Timer
	cancelled atomic.Bool
	ran       atomic.Bool
}

func (t *timerTask) Cancel() bool {
	if t.cancelled.Swap(true) {
		return false
	}
	t.timer.Stop()
	return !t.ran.Load()
}
