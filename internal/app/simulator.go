package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/utafrali/rocketcart/internal/config"
	"github.com/utafrali/rocketcart/internal/simulator"
	"github.com/utafrali/rocketcart/pkg/health"
)

// Simulator runs the inventory simulator the cart service reads stock and
// product details from during local development.
type Simulator struct {
	logger     *slog.Logger
	catalog    *simulator.Catalog
	httpServer *http.Server
}

// NewSimulator loads the seed catalog and builds the simulator's server.
func NewSimulator(cfg *config.SimulatorConfig, logger *slog.Logger) (*Simulator, error) {
	seed, err := loadSeed(cfg.SeedFile)
	if err != nil {
		return nil, err
	}
	catalog := simulator.NewCatalog(seed)
	logger.Info("inventory catalog loaded",
		slog.Int("products", len(seed.Products)),
		slog.String("seed_file", cfg.SeedFile),
	)

	healthHandler := health.NewHandler()
	router := simulator.NewRouter(simulator.NewHandler(catalog, logger), healthHandler, logger, cfg.Latency())

	return &Simulator{
		logger:  logger,
		catalog: catalog,
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
			Handler:           router,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      15 * time.Second,
			IdleTimeout:       60 * time.Second,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

func loadSeed(path string) (simulator.Seed, error) {
	if path == "" {
		seed, err := simulator.DefaultSeed()
		if err != nil {
			return simulator.Seed{}, fmt.Errorf("load built-in seed: %w", err)
		}
		return seed, nil
	}
	seed, err := simulator.LoadSeed(path)
	if err != nil {
		return simulator.Seed{}, fmt.Errorf("load seed %s: %w", path, err)
	}
	return seed, nil
}

// Catalog returns the simulator's live catalog.
func (s *Simulator) Catalog() *simulator.Catalog {
	return s.catalog
}

// Run starts the HTTP server and blocks until the context is canceled.
func (s *Simulator) Run(ctx context.Context) error {
	return serve(ctx, s.logger, s.httpServer, s.Shutdown)
}

// Shutdown stops the HTTP server.
func (s *Simulator) Shutdown(ctx context.Context) error {
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	s.logger.Info("simulator shutdown complete")
	return nil
}
