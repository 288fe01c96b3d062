// Package viewer serves the local viewer page and its JSON API. The page
// renders a session's View and drives it through the Controller.
package viewer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/net/websocket"

	"github.com/example/larvawatch/internal/actions"
	"github.com/example/larvawatch/internal/logging"
	"github.com/example/larvawatch/internal/presenter"
	"github.com/example/larvawatch/internal/session"
)

// Controller is the session surface the viewer needs.
type Controller interface {
	View(ctx context.Context) (presenter.View, error)
	LatestFrame() (presenter.Frame, bool)
	StartVideo(ctx context.Context) error
	StopVideo(ctx context.Context) error
	DeleteAllImages(ctx context.Context) (actions.ImagesResult, error)
	DeleteAllNotifications(ctx context.Context) (actions.NotificationsResult, error)
}

const (
	defaultPushInterval    = 100 * time.Millisecond
	defaultShutdownTimeout = 5 * time.Second
)

// Options configures the viewer server.
type Options struct {
	Listen       string
	PushInterval time.Duration
	Logger       *slog.Logger
}

// Server is the viewer HTTP server.
type Server struct {
	ctrl       Controller
	opts       Options
	router     chi.Router
	httpServer *http.Server
	stopCh     chan struct{}
	stopOnce   sync.Once
	logger     *slog.Logger
}

// NewServer creates a viewer for ctrl.
func NewServer(ctrl Controller, opts Options) *Server {
	if opts.PushInterval <= 0 {
		opts.PushInterval = defaultPushInterval
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		ctrl:   ctrl,
		opts:   opts,
		stopCh: make(chan struct{}),
		logger: logger,
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(logging.RequestLogger(logger))
	r.Use(chimiddleware.Recoverer)

	r.Get("/", s.serveHTML)
	r.Get("/client.js", s.serveJS)
	r.Route("/api", func(r chi.Router) {
		r.Get("/state", s.getState)
		r.Get("/frame", s.getFrame)
		r.Post("/video/start", s.startVideo)
		r.Post("/video/stop", s.stopVideo)
		r.Delete("/images/delete-all", s.deleteImages)
		r.Delete("/notifications/delete-all", s.deleteNotifications)
	})
	r.Handle("/ws/state", websocket.Handler(s.pushState))
	s.router = r
	return s
}

// Handler returns the viewer routes.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.opts.Listen, err)
	}
	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("viewer listening", slog.String("url", "http://"+ln.Addr().String()+"/"))

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		return s.shutdown()
	case err := <-errCh:
		s.stop()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serving viewer: %w", err)
	}
}

func (s *Server) shutdown() error {
	s.stop()
	ctx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down viewer: %w", err)
	}
	s.logger.Info("viewer stopped")
	return nil
}

func (s *Server) stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

func (s *Server) serveHTML(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(htmlPage))
}

func (s *Server) serveJS(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	_, _ = w.Write([]byte(jsClient))
}

func (s *Server) getState(w http.ResponseWriter, r *http.Request) {
	v, err := s.ctrl.View(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) getFrame(w http.ResponseWriter, r *http.Request) {
	f, ok := s.ctrl.LatestFrame()
	if !ok {
		http.Error(w, "no frame", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "image/"+f.Format)
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Frame-Seq", fmt.Sprint(f.Seq))
	_, _ = w.Write(f.Data)
}

func (s *Server) startVideo(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.StartVideo(r.Context()); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) stopVideo(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.StopVideo(r.Context()); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) deleteImages(w http.ResponseWriter, r *http.Request) {
	res, err := s.ctrl.DeleteAllImages(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) deleteNotifications(w http.ResponseWriter, r *http.Request) {
	res, err := s.ctrl.DeleteAllNotifications(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// pushState sends the View whenever its version or frame changes, polling at
// the push interval.
func (s *Server) pushState(ws *websocket.Conn) {
	defer ws.Close()
	ctx := ws.Request().Context()

	done := make(chan struct{})
	go func() {
		defer close(done)
		var discard []byte
		for websocket.Message.Receive(ws, &discard) == nil {
		}
	}()

	ticker := time.NewTicker(s.opts.PushInterval)
	defer ticker.Stop()

	var (
		sent     bool
		version  uint64
		frameSeq uint64
	)
	for {
		v, err := s.ctrl.View(ctx)
		if err != nil {
			s.logger.Debug("state push stopped", slog.String("error", err.Error()))
			return
		}
		var seq uint64
		if v.Frame != nil {
			seq = v.Frame.Seq
		}
		if !sent || v.Version != version || seq != frameSeq {
			if err := websocket.JSON.Send(ws, v); err != nil {
				return
			}
			sent, version, frameSeq = true, v.Version, seq
		}

		select {
		case <-done:
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
		}
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrNotReady):
		return http.StatusConflict
	case errors.Is(err, session.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
