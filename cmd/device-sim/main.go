package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/example/larvawatch/internal/config"
	"github.com/example/larvawatch/internal/devicesim"
	"github.com/example/larvawatch/internal/logging"
)

func main() {
	cfg := config.DefaultConfig()

	flag.StringVar(&cfg.Simulator.Host, "host", cfg.Simulator.Host, "Listen host")
	flag.IntVar(&cfg.Simulator.Port, "port", cfg.Simulator.Port, "Listen port")
	advertise := flag.String("advertise", "", "Host advertised in lookup responses (default: request host)")
	flag.DurationVar(&cfg.Simulator.FrameInterval, "frame-interval", cfg.Simulator.FrameInterval, "Delay between video frames")
	flag.DurationVar(&cfg.Simulator.StatsInterval, "stats-interval", cfg.Simulator.StatsInterval, "Delay between stats messages")
	flag.StringVar(&cfg.Logging.Level, "log-level", cfg.Logging.Level, "Log level")
	flag.Parse()

	logger := logging.WithComponent(logging.New(cfg.Logging, os.Stderr), "devicesim")

	sim := devicesim.NewServer(devicesim.Options{
		Host:          cfg.Simulator.Host,
		Port:          cfg.Simulator.Port,
		AdvertiseHost: *advertise,
		FrameInterval: cfg.Simulator.FrameInterval,
		StatsInterval: cfg.Simulator.StatsInterval,
		Logger:        logger,
	})
	if err := sim.Start(); err != nil {
		logger.Error("failed to start simulator", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	logger.Info("stopping simulator")
	sim.Stop()
}
