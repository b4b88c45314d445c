package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utafrali/rocketcart/pkg/health"
	"github.com/utafrali/rocketcart/pkg/middleware"
)

// RouterConfig holds the optional parts of the cart router.
type RouterConfig struct {
	ServiceName string
	PprofCIDRs  []string
	CORS        middleware.CORSConfig

	// RateLimit guards the mutating cart routes when set.
	RateLimit func(http.Handler) http.Handler
}

// NewRouter creates a chi router with all cart service routes registered.
func NewRouter(
	cartHandler *CartHandler,
	healthHandler *health.Handler,
	logger *slog.Logger,
	cfg RouterConfig,
) http.Handler {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "cart"
	}
	if cfg.RateLimit == nil {
		cfg.RateLimit = func(next http.Handler) http.Handler { return next }
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics(cfg.ServiceName))
	r.Use(middleware.Tracing(cfg.ServiceName))
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.CORS(cfg.CORS))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())

	// Pprof debug endpoints with IP allowlist.
	middleware.RegisterPprof(r, cfg.PprofCIDRs, logger)

	r.Route("/api/v1/cart", func(r chi.Router) {
		// The stream is long-lived and must be flushed unbuffered.
		r.Get("/stream", cartHandler.Stream)

		r.Group(func(r chi.Router) {
			r.Use(chimw.Compress(5))
			r.Use(chimw.Timeout(30 * time.Second))
			r.Use(ContentTypeJSON)

			r.Get("/", cartHandler.GetCart)

			r.With(cfg.RateLimit).Post("/items", cartHandler.AddItem)
			r.With(cfg.RateLimit).Put("/items/{productId}", cartHandler.UpdateItemAmount)
			r.With(cfg.RateLimit).Delete("/items/{productId}", cartHandler.RemoveItem)
		})
	})

	return r
}
