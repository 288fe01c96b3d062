package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/example/larvawatch/internal/channel"
	"github.com/example/larvawatch/internal/endpoint"
	"github.com/example/larvawatch/internal/logging"
	"github.com/example/larvawatch/internal/websocket"
)

func newTapCommand(ctx *commandContext) *cobra.Command {
	var count int

	cmd := &cobra.Command{
		Use:       "tap video|stats|notification",
		Short:     "Print the raw messages of one device channel",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"video", "stats", "notification"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			resolver := endpoint.NewResolver(ctx.httpClient(), cfg.Device.BaseURL, cfg.Device.StatsPath,
				logging.WithComponent(ctx.logger, "endpoint"))
			set, err := resolver.Resolve(cmd.Context())
			if err != nil {
				return err
			}
			url, err := channelURL(set, args[0])
			if err != nil {
				return err
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			tr := websocket.NewTransport(cfg.Device.Origin, cfg.Device.DialTimeout, logging.WithComponent(ctx.logger, "websocket"))
			return tap(runCtx, tr, url, count, cmd.OutOrStdout())
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 0, "Stop after this many messages (0 = until interrupted)")
	return cmd
}

func channelURL(set endpoint.Set, name string) (string, error) {
	switch name {
	case channel.Video.String():
		return set.Video.URL, nil
	case channel.Stats.String():
		return set.Stats.URL, nil
	case channel.Notification.String():
		return set.Notification.URL, nil
	default:
		return "", fmt.Errorf("unknown channel %q", name)
	}
}

// tap prints messages from url until count is reached, the peer closes, or
// ctx ends. Video frames are summarised by size.
func tap(ctx context.Context, tr channel.Transport, url string, count int, out io.Writer) error {
	events := make(chan channel.Event, 64)
	done := make(chan struct{})
	h := tr.Open(url, func(ev channel.Event) {
		select {
		case events <- ev:
		case <-done:
		}
	})
	defer h.Close()
	defer close(done)

	received := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-events:
			switch ev.Type {
			case channel.EventOpened:
				fmt.Fprintf(out, "connected to %s\n", url)
			case channel.EventMessage:
				received++
				if len(ev.Payload) > 200 {
					fmt.Fprintf(out, "#%d %d bytes\n", received, len(ev.Payload))
				} else {
					fmt.Fprintf(out, "#%d %s\n", received, ev.Payload)
				}
				if count > 0 && received >= count {
					return nil
				}
			case channel.EventClosed:
				if ev.Err != nil {
					return fmt.Errorf("channel closed: %w", ev.Err)
				}
				return nil
			}
		}
	}
}
