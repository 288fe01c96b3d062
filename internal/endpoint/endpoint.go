// Package endpoint discovers the socket addresses of the sensing device.
//
// Resolution runs once per session: it asks the device for its camera and
// notification websocket URLs and derives the stats URL from the camera's
// address. Either lookup failing fails the whole resolution; there is no retry.
package endpoint

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/example/larvawatch/internal/httpclient"
)

// Lookup paths served by the device.
const (
	CameraInfoPath       = "/api/camera-info"
	NotificationInfoPath = "/api/notification-info"
	DefaultStatsPath     = "/ws/camera-stats"
)

// ErrResolution is matched by every resolution failure.
var ErrResolution = errors.New("cannot reach server")

// ResolutionError reports which lookup failed.
type ResolutionError struct {
	Lookup string
	Err    error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("%s: %s lookup: %v", ErrResolution, e.Lookup, e.Err)
}

func (e *ResolutionError) Unwrap() []error {
	return []error{ErrResolution, e.Err}
}

// Endpoint is the immutable address of one channel.
type Endpoint struct {
	Address string `json:"address"`
	Port    int    `json:"port"`
	URL     string `json:"url"`
}

// Set holds the endpoints of all three channels.
type Set struct {
	Video        Endpoint `json:"video"`
	Stats        Endpoint `json:"stats"`
	Notification Endpoint `json:"notification"`
}

type cameraInfo struct {
	IP           string `json:"ip"`
	Port         int    `json:"port"`
	WebsocketURL string `json:"websocket_url"`
}

type notificationInfo struct {
	WebsocketURL string `json:"websocket_url"`
}

// Resolver performs the two device lookups.
type Resolver struct {
	client    *httpclient.Client
	baseURL   string
	statsPath string
	logger    *slog.Logger
}

// NewResolver creates a resolver for the device at baseURL. An empty statsPath
// selects DefaultStatsPath.
func NewResolver(client *httpclient.Client, baseURL, statsPath string, logger *slog.Logger) *Resolver {
	if statsPath == "" {
		statsPath = DefaultStatsPath
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		client:    client,
		baseURL:   strings.TrimRight(baseURL, "/"),
		statsPath: statsPath,
		logger:    logger,
	}
}

// Resolve fetches camera and notification info concurrently and builds the
// endpoint set. Any failure is a *ResolutionError.
func (r *Resolver) Resolve(ctx context.Context) (Set, error) {
	var (
		camera cameraInfo
		notify notificationInfo
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := r.client.GetJSON(gctx, r.baseURL+CameraInfoPath, &camera); err != nil {
			return &ResolutionError{Lookup: "camera", Err: err}
		}
		return nil
	})
	g.Go(func() error {
		if err := r.client.GetJSON(gctx, r.baseURL+NotificationInfoPath, &notify); err != nil {
			return &ResolutionError{Lookup: "notification", Err: err}
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return Set{}, err
	}

	set, err := r.build(camera, notify)
	if err != nil {
		return Set{}, err
	}

	r.logger.Info("endpoints resolved",
		slog.String("video", set.Video.URL),
		slog.String("stats", set.Stats.URL),
		slog.String("notification", set.Notification.URL),
	)
	return set, nil
}

func (r *Resolver) build(camera cameraInfo, notify notificationInfo) (Set, error) {
	if camera.IP == "" {
		return Set{}, &ResolutionError{Lookup: "camera", Err: errors.New("missing ip")}
	}
	if camera.Port <= 0 || camera.Port > 65535 {
		return Set{}, &ResolutionError{Lookup: "camera", Err: fmt.Errorf("invalid port %d", camera.Port)}
	}

	video, err := parseSocketURL(camera.WebsocketURL)
	if err != nil {
		return Set{}, &ResolutionError{Lookup: "camera", Err: err}
	}
	notification, err := parseSocketURL(notify.WebsocketURL)
	if err != nil {
		return Set{}, &ResolutionError{Lookup: "notification", Err: err}
	}

	stats := url.URL{
		Scheme: video.Scheme,
		Host:   net.JoinHostPort(camera.IP, strconv.Itoa(camera.Port)),
		Path:   r.statsPath,
	}

	return Set{
		Video:        endpointFor(video, camera.IP, camera.Port),
		Stats:        Endpoint{Address: camera.IP, Port: camera.Port, URL: stats.String()},
		Notification: endpointFor(notification, "", 0),
	}, nil
}

func parseSocketURL(raw string) (*url.URL, error) {
	if raw == "" {
		return nil, errors.New("missing websocket_url")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing websocket_url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("websocket_url %q: unsupported scheme %q", raw, u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("websocket_url %q: missing host", raw)
	}
	return u, nil
}

// endpointFor fills address and port from u unless the caller already knows them.
func endpointFor(u *url.URL, address string, port int) Endpoint {
	if address == "" {
		address = u.Hostname()
	}
	if port == 0 {
		if p, err := strconv.Atoi(u.Port()); err == nil {
			port = p
		} else if u.Scheme == "wss" {
			port = 443
		} else {
			port = 80
		}
	}
	return Endpoint{Address: address, Port: port, URL: u.String()}
}
