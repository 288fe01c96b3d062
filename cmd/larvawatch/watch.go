package main

import (
	"context"
	"errors"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/example/larvawatch/internal/logging"
	"github.com/example/larvawatch/internal/loop"
	"github.com/example/larvawatch/internal/session"
	"github.com/example/larvawatch/internal/viewer"
	"github.com/example/larvawatch/internal/websocket"
)

const teardownTimeout = 5 * time.Second

func newWatchCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Connect to the device and serve the viewer page",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger := ctx.logger

			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			lp := loop.New(loop.DefaultQueueSize, logging.WithComponent(logger, "loop"))
			sess, err := session.New(*cfg, session.Deps{
				Runtime:   lp,
				Transport: websocket.NewTransport(cfg.Device.Origin, cfg.Device.DialTimeout, logging.WithComponent(logger, "websocket")),
				HTTP:      ctx.httpClient(),
				Logger:    logger,
			})
			if err != nil {
				return err
			}
			view := viewer.NewServer(sess, viewer.Options{
				Listen:       cfg.Viewer.Listen,
				PushInterval: cfg.Viewer.StatePushInterval,
				Logger:       logging.WithComponent(logger, "viewer"),
			})

			logger.Info("starting session",
				slog.String("session", sess.ID()),
				slog.String("device", cfg.Device.BaseURL),
			)

			loopCtx, stopLoop := context.WithCancel(context.Background())
			defer stopLoop()
			go func() { _ = lp.Run(loopCtx) }()

			g, gctx := errgroup.WithContext(runCtx)
			g.Go(func() error {
				return view.ListenAndServe(gctx)
			})
			g.Go(func() error {
				// a failed resolution is shown on the page; the viewer keeps running
				if err := sess.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("device unreachable, reload to retry", slog.String("error", err.Error()))
				}
				return nil
			})
			err = g.Wait()

			closeCtx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
			defer cancel()
			if cerr := sess.Close(closeCtx); cerr != nil {
				logger.Warn("closing session", slog.String("error", cerr.Error()))
			}
			return err
		},
	}
	cmd.Flags().String("listen", "", "Viewer listen address (default 127.0.0.1:8090)")
	return cmd
}
