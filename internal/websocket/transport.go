package websocket

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/net/websocket"

	"github.com/example/larvawatch/internal/channel"
)

// ErrClosedByPeer is the close reason when the device ends the stream.
var ErrClosedByPeer = errors.New("connection closed by peer")

const (
	defaultDialTimeout    = 10 * time.Second
	defaultMaxMessageSize = 10 * 1024 * 1024
	defaultOrigin         = "http://localhost/"
)

// Transport dials device channels with golang.org/x/net/websocket.
type Transport struct {
	origin         string
	dialTimeout    time.Duration
	maxMessageSize int
	logger         *slog.Logger
}

// NewTransport returns a transport that dials with origin and gives up after
// dialTimeout. Zero values fall back to the defaults.
func NewTransport(origin string, dialTimeout time.Duration, logger *slog.Logger) *Transport {
	if origin == "" {
		origin = defaultOrigin
	}
	if dialTimeout <= 0 {
		dialTimeout = defaultDialTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Transport{
		origin:         origin,
		dialTimeout:    dialTimeout,
		maxMessageSize: defaultMaxMessageSize,
		logger:         logger,
	}
}

// Open starts dialing url in the background and returns immediately.
func (t *Transport) Open(url string, sink channel.Sink) channel.Handle {
	ctx, cancel := context.WithCancel(context.Background())
	c := &conn{cancel: cancel}
	go c.run(ctx, t, url, sink)
	return c
}

type conn struct {
	cancel context.CancelFunc

	mu     sync.Mutex
	ws     *websocket.Conn
	closed bool
	once   sync.Once
}

func (c *conn) run(ctx context.Context, t *Transport, url string, sink channel.Sink) {
	cfg, err := websocket.NewConfig(url, t.origin)
	if err != nil {
		sink(channel.TransportClosed(fmt.Errorf("websocket config: %w", err)))
		return
	}

	dialCtx, cancel := context.WithTimeout(ctx, t.dialTimeout)
	ws, err := cfg.DialContext(dialCtx)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			sink(channel.TransportClosed(nil))
			return
		}
		sink(channel.TransportClosed(fmt.Errorf("dial %s: %w", url, err)))
		return
	}
	ws.MaxPayloadBytes = t.maxMessageSize

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		ws.Close()
		sink(channel.TransportClosed(nil))
		return
	}
	c.ws = ws
	c.mu.Unlock()

	sink(channel.Opened())

	for {
		var msg []byte
		err := websocket.Message.Receive(ws, &msg)
		if err == nil {
			sink(channel.MessageReceived(msg))
			continue
		}
		if errors.Is(err, websocket.ErrFrameTooLarge) {
			t.logger.Warn("skipping oversized frame", slog.String("url", url), slog.Int("limit", t.maxMessageSize))
			continue
		}

		ws.Close()
		if c.isClosed() {
			sink(channel.TransportClosed(nil))
		} else if errors.Is(err, io.EOF) {
			sink(channel.TransportClosed(ErrClosedByPeer))
		} else {
			sink(channel.TransportClosed(fmt.Errorf("read %s: %w", url, err)))
		}
		return
	}
}

func (c *conn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Close aborts a pending dial or closes the socket. It is idempotent.
func (c *conn) Close() error {
	var err error
	c.once.Do(func() {
		c.mu.Lock()
		c.closed = true
		ws := c.ws
		c.mu.Unlock()

		c.cancel()
		if ws != nil {
			err = ws.Close()
		}
	})
	return err
}
