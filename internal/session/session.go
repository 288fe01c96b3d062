// Package session wires one viewer session together: endpoint resolution, the
// three channel managers, the cascade between them, and the presenter.
//
// All session state lives on a single event loop. Public methods are safe to
// call from any goroutine; they hop onto the loop with Call.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/example/larvawatch/internal/actions"
	"github.com/example/larvawatch/internal/cascade"
	"github.com/example/larvawatch/internal/channel"
	"github.com/example/larvawatch/internal/config"
	"github.com/example/larvawatch/internal/endpoint"
	"github.com/example/larvawatch/internal/httpclient"
	"github.com/example/larvawatch/internal/logging"
	"github.com/example/larvawatch/internal/loop"
	"github.com/example/larvawatch/internal/presenter"
)

var (
	ErrAlreadyStarted = errors.New("session already started")
	ErrNotReady       = errors.New("endpoints not resolved")
	ErrClosed         = errors.New("session closed")
)

// Deps are the collaborators a session runs on.
type Deps struct {
	Runtime   loop.Runtime
	Transport channel.Transport
	HTTP      *httpclient.Client
	Logger    *slog.Logger
}

// Session owns the channel managers of one viewer.
type Session struct {
	id            string
	rt            loop.Runtime
	resolver      *endpoint.Resolver
	actions       *actions.Client
	presenter     *presenter.Presenter
	managers      map[channel.Kind]*channel.Manager
	lookupTimeout time.Duration
	logger        *slog.Logger
	started       atomic.Bool

	// loop-owned
	endpoints *endpoint.Set
	closed    bool
}

// New builds a session. Nothing connects until Start.
func New(cfg config.Config, deps Deps) (*Session, error) {
	if deps.Runtime == nil || deps.Transport == nil {
		return nil, errors.New("session: runtime and transport are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	client := deps.HTTP
	if client == nil {
		hc := httpclient.DefaultConfig()
		hc.Logger = logging.WithComponent(logger, "httpclient")
		client = httpclient.New(hc)
	}

	// lookups run once; the delete actions are idempotent and may retry
	actionClient := client.WithRetries(cfg.Actions.RetryAttempts, cfg.Actions.RetryDelay)

	id := uuid.NewString()
	logger = logger.With(slog.String("session", id))

	s := &Session{
		id:            id,
		rt:            deps.Runtime,
		resolver:      endpoint.NewResolver(client, cfg.Device.BaseURL, cfg.Device.StatsPath, logging.WithComponent(logger, "endpoint")),
		actions:       actions.NewClient(actionClient, cfg.Device.BaseURL, logging.WithComponent(logger, "actions")),
		lookupTimeout: cfg.Device.LookupTimeout,
		logger:        logging.WithComponent(logger, "session"),
		managers:      make(map[channel.Kind]*channel.Manager, len(channel.Kinds)),
	}
	s.presenter = presenter.New(presenter.Options{
		Scheduler:              deps.Runtime,
		NotificationClearAfter: cfg.Presenter.NotificationClearAfter,
		StatusClearAfter:       cfg.Presenter.StatusClearAfter,
		Logger:                 logging.WithComponent(logger, "presenter"),
	})

	chanLogger := logging.WithComponent(logger, "channel")
	for _, kind := range channel.Kinds {
		m := channel.NewManager(channel.Options{
			Kind:       kind,
			Transport:  deps.Transport,
			Dispatcher: deps.Runtime,
			Scheduler:  deps.Runtime,
			Handler:    s.presenter,
			Policy:     channel.PolicyFor(kind, cfg.Channels.NotificationReconnectDelay),
			Logger:     chanLogger,
		})
		m.Subscribe(s.presenter.OnTransition)
		s.managers[kind] = m
	}

	coord := cascade.New(cascade.DefaultRules, logging.WithComponent(logger, "cascade"))
	if err := coord.Bind(s.managers[channel.Video], s.managers[channel.Stats]); err != nil {
		return nil, fmt.Errorf("binding cascade: %w", err)
	}
	return s, nil
}

// ID identifies the session in logs.
func (s *Session) ID() string { return s.id }

// Start resolves the device endpoints and applies the outcome. On success the
// video controls become available and the notification channel connects. A
// resolution failure is returned and is terminal for the session.
func (s *Session) Start(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	if err := s.rt.Call(ctx, s.presenter.MarkResolving); err != nil {
		return err
	}

	lookupCtx := ctx
	if s.lookupTimeout > 0 {
		var cancel context.CancelFunc
		lookupCtx, cancel = context.WithTimeout(ctx, s.lookupTimeout)
		defer cancel()
	}
	set, resolveErr := s.resolver.Resolve(lookupCtx)

	if err := s.rt.Call(ctx, func() { s.applyResolution(set, resolveErr) }); err != nil {
		return err
	}
	return resolveErr
}

func (s *Session) applyResolution(set endpoint.Set, err error) {
	if s.closed {
		return
	}
	if err != nil {
		s.logger.Error("endpoint resolution failed", slog.String("error", err.Error()))
		s.presenter.MarkUnreachable(err)
		return
	}

	s.endpoints = &set
	s.managers[channel.Video].SetEndpoint(set.Video.URL)
	s.managers[channel.Stats].SetEndpoint(set.Stats.URL)
	s.managers[channel.Notification].SetEndpoint(set.Notification.URL)

	if !s.presenter.MarkReady() {
		return
	}
	if err := s.managers[channel.Notification].Connect(); err != nil {
		s.logger.Error("starting notification channel", slog.String("error", err.Error()))
	}
}

// StartVideo opens the video channel. Stats follows through the cascade.
func (s *Session) StartVideo(ctx context.Context) error {
	var err error
	if callErr := s.rt.Call(ctx, func() {
		switch {
		case s.closed:
			err = ErrClosed
		case !s.presenter.VideoAvailable():
			err = ErrNotReady
		default:
			err = s.managers[channel.Video].Connect()
		}
	}); callErr != nil {
		return callErr
	}
	return err
}

// StopVideo closes the video channel. Stats is closed by the cascade.
func (s *Session) StopVideo(ctx context.Context) error {
	return s.rt.Call(ctx, func() {
		s.managers[channel.Video].Disconnect()
	})
}

// DeleteAllImages runs the device action and reports the outcome in the
// status line.
func (s *Session) DeleteAllImages(ctx context.Context) (actions.ImagesResult, error) {
	res, err := s.actions.DeleteAllImages(ctx)
	msg := fmt.Sprintf("Deleted %d images", res.TotalImages)
	if err != nil {
		msg = "Failed to delete images: " + err.Error()
	}
	s.report(ctx, msg, err != nil)
	return res, err
}

// DeleteAllNotifications runs the device action and reports the outcome in
// the status line.
func (s *Session) DeleteAllNotifications(ctx context.Context) (actions.NotificationsResult, error) {
	res, err := s.actions.DeleteAllNotifications(ctx)
	msg := fmt.Sprintf("Deleted %d notifications", res.DeletedCount)
	if err != nil {
		msg = "Failed to delete notifications: " + err.Error()
	}
	s.report(ctx, msg, err != nil)
	return res, err
}

func (s *Session) report(ctx context.Context, msg string, failed bool) {
	err := s.rt.Call(ctx, func() {
		if !s.closed {
			s.presenter.ReportAction(msg, failed)
		}
	})
	if err != nil {
		s.logger.Debug("action status not shown", slog.String("error", err.Error()))
	}
}

// View returns the current display snapshot.
func (s *Session) View(ctx context.Context) (presenter.View, error) {
	var v presenter.View
	err := s.rt.Call(ctx, func() { v = s.presenter.View() })
	return v, err
}

// Endpoints returns the resolved endpoints, if any.
func (s *Session) Endpoints(ctx context.Context) (endpoint.Set, bool, error) {
	var (
		set endpoint.Set
		ok  bool
	)
	err := s.rt.Call(ctx, func() {
		if s.endpoints != nil {
			set, ok = *s.endpoints, true
		}
	})
	return set, ok, err
}

// LatestFrame returns the frame on display. It does not touch the loop.
func (s *Session) LatestFrame() (presenter.Frame, bool) {
	return s.presenter.Frames().Latest()
}

// Close tears the session down: every channel is shut down, pending
// reconnects and display timers are cancelled.
func (s *Session) Close(ctx context.Context) error {
	return s.rt.Call(ctx, func() {
		if s.closed {
			return
		}
		s.closed = true
		for _, kind := range channel.Kinds {
			s.managers[kind].Shutdown()
		}
		s.presenter.Close()
		s.logger.Info("session closed")
	})
}
