package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/utafrali/rocketcart/internal/app"
	"github.com/utafrali/rocketcart/internal/config"
	pkgconfig "github.com/utafrali/rocketcart/pkg/config"
	"github.com/utafrali/rocketcart/pkg/logger"
)

func main() {
	if err := pkgconfig.LoadDotEnv(); err != nil {
		slog.Error("failed to load .env", slog.String("error", err.Error()))
		os.Exit(1)
	}

	cfg, err := config.LoadSimulator()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	log := logger.New("inventory-sim", cfg.LogLevel)
	log.Info("starting inventory simulator",
		slog.Int("http_port", cfg.HTTPPort),
		slog.Duration("latency", cfg.Latency()),
	)

	sim, err := app.NewSimulator(cfg, log)
	if err != nil {
		log.Error("failed to initialize simulator", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := sim.Run(ctx); err != nil {
		log.Error("simulator error", slog.String("error", err.Error()))
		os.Exit(1)
	}

	log.Info("inventory simulator stopped")
}
