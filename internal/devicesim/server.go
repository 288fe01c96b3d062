// Package devicesim simulates the larvae sensing device: endpoint lookups, the
// camera, stats and notification websockets, and the delete actions. It lets
// larvawatch be exercised without the hardware.
package devicesim

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/net/websocket"

	"github.com/example/larvawatch/internal/logging"
)

// Notification script timings.
const (
	DefaultHeartbeatGap     = time.Second
	DefaultNotifyInterval   = 3 * time.Second
	defaultHeartbeats       = 3
	defaultFrameInterval    = 30 * time.Millisecond
	defaultStatsInterval    = time.Second
	defaultShutdownDeadline = 5 * time.Second
)

// Options configures the simulator.
type Options struct {
	// Host and Port are where Start listens. They are also advertised in the
	// lookup responses unless AdvertiseHost is set; when both are empty the
	// request's Host header is used.
	Host          string
	Port          int
	AdvertiseHost string

	FrameInterval  time.Duration
	StatsInterval  time.Duration
	HeartbeatGap   time.Duration
	NotifyInterval time.Duration
	Logger         *slog.Logger
}

type channelInfo struct {
	IP           string `json:"ip"`
	Port         int    `json:"port"`
	WebsocketURL string `json:"websocket_url"`
	Status       string `json:"status"`
}

type notification struct {
	Title   string `json:"title"`
	Message string `json:"message"`
}

// Server is the simulated device.
type Server struct {
	opts       Options
	router     chi.Router
	httpServer *http.Server
	wg         sync.WaitGroup
	stopCh     chan struct{}
	stopOnce   sync.Once
	logger     *slog.Logger

	mu            sync.Mutex
	savedImages   int
	notifications int
}

// NewServer creates a simulator. Call Start to listen, or mount Handler.
func NewServer(opts Options) *Server {
	if opts.FrameInterval <= 0 {
		opts.FrameInterval = defaultFrameInterval
	}
	if opts.StatsInterval <= 0 {
		opts.StatsInterval = defaultStatsInterval
	}
	if opts.HeartbeatGap <= 0 {
		opts.HeartbeatGap = DefaultHeartbeatGap
	}
	if opts.NotifyInterval <= 0 {
		opts.NotifyInterval = DefaultNotifyInterval
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		opts:   opts,
		stopCh: make(chan struct{}),
		logger: logger,
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(logging.RequestLogger(logger))
	r.Use(chimiddleware.Recoverer)

	r.Get("/api/camera-info", s.serveInfo("/ws/camera"))
	r.Get("/api/notification-info", s.serveInfo("/ws/notify"))
	r.Get("/api/health", s.serveHealth)
	r.Delete("/api/images/delete-all", s.deleteImages)
	r.Delete("/api/notifications/delete-all", s.deleteNotifications)
	r.Handle("/ws/camera", s.socket(s.streamCamera))
	r.Handle("/ws/camera-stats", s.socket(s.streamStats))
	r.Handle("/ws/notify", s.socket(s.streamNotifications))
	s.router = r
	return s
}

// Handler returns the simulator routes.
func (s *Server) Handler() http.Handler { return s.router }

// Start listens on Host:Port in the background.
func (s *Server) Start() error {
	addr := net.JoinHostPort(s.opts.Host, strconv.Itoa(s.opts.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Info("device simulator listening", slog.String("address", ln.Addr().String()))
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("simulator server error", slog.String("error", err.Error()))
		}
	}()
	return nil
}

// Stop ends every stream and shuts the listener down.
func (s *Server) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), defaultShutdownDeadline)
		defer cancel()
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Warn("simulator shutdown", slog.String("error", err.Error()))
		}
	}
	s.wg.Wait()
}

// Seed sets the stored image and notification counts.
func (s *Server) Seed(images, notifications int) {
	s.mu.Lock()
	s.savedImages = images
	s.notifications = notifications
	s.mu.Unlock()
}

func (s *Server) advertised(r *http.Request) (string, int) {
	host, port := s.opts.AdvertiseHost, s.opts.Port
	if host == "" {
		host = s.opts.Host
	}
	reqHost, reqPort, err := net.SplitHostPort(r.Host)
	if err != nil {
		reqHost = r.Host
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = reqHost
	}
	if port == 0 {
		port, _ = strconv.Atoi(reqPort)
	}
	return host, port
}

func (s *Server) serveInfo(path string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		host, port := s.advertised(r)
		writeJSON(w, http.StatusOK, channelInfo{
			IP:           host,
			Port:         port,
			WebsocketURL: fmt.Sprintf("ws://%s%s", net.JoinHostPort(host, strconv.Itoa(port)), path),
			Status:       "online",
		})
	}
}

func (s *Server) serveHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "message": "Server is running"})
}

func (s *Server) deleteImages(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	n := s.savedImages
	s.savedImages = 0
	s.mu.Unlock()

	if n == 0 {
		writeJSON(w, http.StatusOK, map[string]any{
			"success":       true,
			"message":       "No images found to delete",
			"deleted_count": 0,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"message":      "All saved images deleted successfully",
		"total_images": n,
	})
}

func (s *Server) deleteNotifications(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	n := s.notifications
	s.notifications = 0
	s.mu.Unlock()

	msg := "All notifications deleted successfully"
	if n == 0 {
		msg = "No notifications found to delete"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"message":       msg,
		"deleted_count": n,
	})
}

// socket accepts any origin and hands the connection to stream with a
// channel that closes when the client goes away or the server stops.
func (s *Server) socket(stream func(ws *websocket.Conn, done <-chan struct{}) error) http.Handler {
	return websocket.Server{Handler: func(ws *websocket.Conn) {
		defer ws.Close()
		path := ws.Request().URL.Path
		s.logger.Info("websocket client connected",
			slog.String("path", path),
			slog.String("remote_addr", ws.Request().RemoteAddr),
		)

		done := make(chan struct{})
		go func() {
			defer close(done)
			var discard []byte
			for websocket.Message.Receive(ws, &discard) == nil {
			}
		}()

		err := stream(ws, done)
		s.logger.Info("websocket client disconnected", slog.String("path", path), slog.Any("error", err))
	}}
}

func (s *Server) streamCamera(ws *websocket.Conn, done <-chan struct{}) error {
	ticker := time.NewTicker(s.opts.FrameInterval)
	defer ticker.Stop()

	for n := 0; ; n++ {
		frame, err := EncodeFrame(n, larvaeAt(n/30)/10)
		if err != nil {
			return err
		}
		if err := websocket.Message.Send(ws, frame); err != nil {
			return err
		}
		select {
		case <-done:
			return nil
		case <-s.stopCh:
			return nil
		case <-ticker.C:
		}
	}
}

func (s *Server) streamStats(ws *websocket.Conn, done <-chan struct{}) error {
	ticker := time.NewTicker(s.opts.StatsInterval)
	defer ticker.Stop()

	for n := 0; ; n++ {
		st := ComputeStats(larvaeAt(n))
		if st.IsHighDensity {
			s.mu.Lock()
			s.savedImages++
			s.notifications++
			s.mu.Unlock()
		}
		if err := websocket.JSON.Send(ws, st); err != nil {
			return err
		}
		select {
		case <-done:
			return nil
		case <-s.stopCh:
			return nil
		case <-ticker.C:
		}
	}
}

// streamNotifications plays the device's script: three heartbeats, a hello,
// then a test notification on a fixed interval.
func (s *Server) streamNotifications(ws *websocket.Conn, done <-chan struct{}) error {
	wait := func(d time.Duration) bool {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-done:
			return false
		case <-s.stopCh:
			return false
		case <-t.C:
			return true
		}
	}

	for i := 0; i < defaultHeartbeats; i++ {
		if err := websocket.JSON.Send(ws, notification{Title: "Heartbeat", Message: "First"}); err != nil {
			return err
		}
		if !wait(s.opts.HeartbeatGap) {
			return nil
		}
	}
	if err := websocket.JSON.Send(ws, notification{Title: "Hello", Message: "Hello, world!"}); err != nil {
		return err
	}
	for wait(s.opts.NotifyInterval) {
		if err := websocket.JSON.Send(ws, notification{Title: "Test", Message: "Test Test"}); err != nil {
			return err
		}
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
