package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/sync/errgroup"

	"github.com/utafrali/rocketcart/internal/config"
	"github.com/utafrali/rocketcart/internal/event"
	handler "github.com/utafrali/rocketcart/internal/handler/http"
	"github.com/utafrali/rocketcart/internal/inventory"
	"github.com/utafrali/rocketcart/internal/notify"
	"github.com/utafrali/rocketcart/internal/repository"
	memoryrepo "github.com/utafrali/rocketcart/internal/repository/memory"
	postgresrepo "github.com/utafrali/rocketcart/internal/repository/postgres"
	redisrepo "github.com/utafrali/rocketcart/internal/repository/redis"
	"github.com/utafrali/rocketcart/internal/service"
	"github.com/utafrali/rocketcart/migrations"
	"github.com/utafrali/rocketcart/pkg/database"
	"github.com/utafrali/rocketcart/pkg/health"
	"github.com/utafrali/rocketcart/pkg/httpclient"
	pkgkafka "github.com/utafrali/rocketcart/pkg/kafka"
	"github.com/utafrali/rocketcart/pkg/middleware"
	"github.com/utafrali/rocketcart/pkg/tracing"
)

const (
	serviceName     = "cart"
	shutdownTimeout = 10 * time.Second
)

// App wires together all dependencies and runs the cart service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	rdb            *redis.Client
	pool           *pgxpool.Pool
	producer       *pkgkafka.Producer
	events         *event.Producer
	registry       *service.Registry
	httpServer     *http.Server
	tracerShutdown func(context.Context) error
	stopBackground context.CancelFunc
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	a := &App{cfg: cfg, logger: logger}

	// Initialize OpenTelemetry tracing.
	tracerShutdown, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    serviceName,
		ServiceVersion: "0.1.0",
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTELEndpoint,
		SampleRate:     cfg.OTELSampleRate,
		Enabled:        cfg.OTELEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}
	a.tracerShutdown = tracerShutdown

	healthHandler := health.NewHandler()

	kv, err := a.openStorage(ctx, healthHandler)
	if err != nil {
		a.closeResources(context.Background())
		return nil, err
	}

	// Inventory client behind a circuit breaker.
	baseClient := httpclient.New(httpclient.Config{
		Timeout:         time.Duration(cfg.InventoryTimeout) * time.Second,
		MaxRetries:      cfg.InventoryMaxRetries,
		RetryWaitMin:    200 * time.Millisecond,
		RetryWaitMax:    2 * time.Second,
		MaxConnsPerHost: 50,
	})
	cbCfg := httpclient.DefaultCircuitBreakerConfig("cart-inventory")
	cbCfg.MaxRequests = cfg.CBMaxRequests
	cbCfg.Interval = time.Duration(cfg.CBInterval) * time.Second
	cbCfg.Timeout = time.Duration(cfg.CBTimeout) * time.Second
	cbCfg.FailureRatio = cfg.CBFailureRatio
	cbCfg.MinRequests = cfg.CBMinRequests
	cbClient := httpclient.NewCircuitBreakerClient(baseClient, cbCfg, logger).
		WithFallback(inventory.CircuitOpenFallback)
	logger.Info("circuit breaker initialized",
		slog.String("name", cbCfg.Name),
		slog.Uint64("max_requests", uint64(cbCfg.MaxRequests)),
		slog.Int("timeout_seconds", cfg.CBTimeout),
		slog.Uint64("min_requests", uint64(cbCfg.MinRequests)),
	)
	inventoryClient := inventory.NewClient(cbClient, cfg.InventoryURL, logger)
	healthHandler.Register("inventory", func(ctx context.Context) error {
		// An open breaker already knows the answer.
		if cbClient.State() == gobreaker.StateOpen {
			return errors.New("inventory circuit breaker is open")
		}
		return inventoryClient.Ping(ctx)
	})

	// Abort messages always reach the log; with Kafka enabled they are
	// also published for the storefront.
	notifiers := notify.Multi{notify.NewLog(logger)}
	if cfg.KafkaEnabled {
		a.producer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		a.events = event.NewProducer(a.producer, logger)
		notifiers = append(notifiers, a.events)
		healthHandler.Register("kafka", a.producer.Ping)
		logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
	}

	// Build the dependency graph.
	a.registry = service.NewRegistry(cfg.StorageKey, kv, inventoryClient, notifiers, logger)
	if a.events != nil {
		a.registry.OnOpen(func(session string, store *service.CartStore) {
			store.Subscribe(a.events.Listener(session))
		})
	}

	cors := middleware.DefaultCORSConfig()
	cors.AllowedOrigins = cfg.CORSAllowedOrigins

	bgCtx, stopBackground := context.WithCancel(context.Background())
	a.stopBackground = stopBackground
	a.registry.StartEviction(bgCtx, cfg.SessionIdleTTL())
	rateLimit := middleware.RateLimit(bgCtx, middleware.RateLimitConfig{
		RPS:   cfg.RateLimitRPS,
		Burst: cfg.RateLimitBurst,
	}, logger)

	// HTTP router.
	cartHandler := handler.NewCartHandler(a.registry, logger)
	router := handler.NewRouter(cartHandler, healthHandler, logger, handler.RouterConfig{
		ServiceName: serviceName,
		PprofCIDRs:  cfg.PprofAllowedCIDRs,
		CORS:        cors,
		RateLimit:   rateLimit,
	})

	// WriteTimeout stays unset: the cart stream is long-lived and the
	// regular routes are bounded by the router's Timeout middleware.
	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}
	// Shutdown waits for active requests; open cart streams are ended
	// so it does not wait on them.
	a.httpServer.RegisterOnShutdown(cartHandler.CloseStreams)

	return a, nil
}

// openStorage connects the configured key-value backend and registers its
// health check.
func (a *App) openStorage(ctx context.Context, healthHandler *health.Handler) (repository.KeyValueStore, error) {
	cfg := a.cfg
	switch cfg.StorageDriver {
	case config.StorageRedis:
		redisCfg := database.DefaultRedisConfig()
		redisCfg.Addr = cfg.RedisAddr
		redisCfg.Password = cfg.RedisPass
		redisCfg.DB = cfg.RedisDB

		rdb, err := database.NewRedisClient(ctx, redisCfg)
		if err != nil {
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		a.rdb = rdb
		a.logger.Info("connected to Redis",
			slog.String("addr", cfg.RedisAddr),
			slog.Int("db", cfg.RedisDB),
		)

		store := redisrepo.NewStore(rdb, cfg.CartTTLDuration())
		healthHandler.Register("redis", store.Ping)
		return store, nil

	case config.StoragePostgres:
		pgCfg := database.DefaultPostgresConfig()
		pgCfg.Host = cfg.PostgresHost
		pgCfg.Port = cfg.PostgresPort
		pgCfg.User = cfg.PostgresUser
		pgCfg.Password = cfg.PostgresPass
		pgCfg.DBName = cfg.PostgresDB
		pgCfg.SSLMode = cfg.PostgresSSL

		pool, err := database.NewPostgresPool(ctx, &pgCfg, a.logger)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		a.pool = pool
		a.logger.Info("connected to PostgreSQL",
			slog.String("host", cfg.PostgresHost),
			slog.Int("port", cfg.PostgresPort),
			slog.String("database", cfg.PostgresDB),
		)

		if err := database.RegisterPoolMetrics(prometheus.DefaultRegisterer, pool, serviceName); err != nil {
			a.logger.Warn("pool metrics not registered", slog.String("error", err.Error()))
		}

		if err := database.RunMigrations(ctx, pool, migrations.FS, a.logger); err != nil {
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		a.logger.Info("database migrations completed")

		if cfg.SlowQueryThresholdMs > 0 {
			database.SetSlowQueryLogging(time.Duration(cfg.SlowQueryThresholdMs)*time.Millisecond, a.logger)
		}

		store := postgresrepo.NewStore(pool)
		healthHandler.Register("postgres", store.Ping)
		return store, nil

	default:
		a.logger.Warn("using in-memory cart storage; carts are lost on restart")
		return memoryrepo.NewStore(), nil
	}
}

// Run starts the HTTP server and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	return serve(ctx, a.logger, a.httpServer, a.Shutdown)
}

// Shutdown gracefully stops all components in order: the HTTP server drains
// in-flight requests, pending cart events are flushed, then the tracer and
// the storage connections are closed.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down application...")

	var errs []error
	if err := a.httpServer.Shutdown(ctx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, fmt.Errorf("http server shutdown: %w", err))
	}

	if a.stopBackground != nil {
		a.stopBackground()
	}
	if a.events != nil {
		a.events.Wait()
	}

	if err := a.closeResources(ctx); err != nil {
		errs = append(errs, err)
	}

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}

func (a *App) closeResources(ctx context.Context) error {
	var errs []error

	if a.tracerShutdown != nil {
		if err := a.tracerShutdown(ctx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, fmt.Errorf("tracer shutdown: %w", err))
		}
	}

	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
			errs = append(errs, fmt.Errorf("kafka producer close: %w", err))
		}
	}

	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			a.logger.Error("redis close error", slog.String("error", err.Error()))
			errs = append(errs, fmt.Errorf("redis close: %w", err))
		}
	}

	if a.pool != nil {
		a.pool.Close()
	}

	return errors.Join(errs...)
}

// serve runs srv until ctx is canceled or the listener fails, then calls
// shutdown with a bounded context.
func serve(ctx context.Context, logger *slog.Logger, srv *http.Server, shutdown func(context.Context) error) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting HTTP server", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		if ctx.Err() != nil {
			logger.Info("shutdown signal received")
		}
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return shutdown(shutdownCtx)
	})

	return g.Wait()
}
