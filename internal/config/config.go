package config

import (
	"fmt"
	"net/url"
	"time"

	pkgconfig "github.com/utafrali/rocketcart/pkg/config"
)

// Storage drivers for the cart key-value store.
const (
	StorageRedis    = "redis"
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Config holds all configuration for the cart service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort int `env:"CART_HTTP_PORT" envDefault:"8003"`

	// Cart persistence
	StorageKey    string `env:"CART_STORAGE_KEY" envDefault:"@RocketShoes:cart"`
	StorageDriver string `env:"STORAGE_DRIVER" envDefault:"redis"`

	// Redis
	RedisAddr string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPass string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB   int    `env:"REDIS_DB" envDefault:"0"`

	// Cart TTL in hours (default: 7 days). 0 keeps carts forever.
	CartTTL int `env:"CART_TTL_HOURS" envDefault:"168"`

	// Minutes an unused session cart stays in memory (0 keeps it forever)
	SessionIdleMinutes int `env:"CART_SESSION_IDLE_MINUTES" envDefault:"30"`

	// PostgreSQL
	PostgresHost string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser string `env:"POSTGRES_USER" envDefault:"rocketcart"`
	PostgresPass string `env:"POSTGRES_PASSWORD" envDefault:"rocketcart"`
	PostgresDB   string `env:"POSTGRES_DB" envDefault:"rocketcart"`
	PostgresSSL  string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`

	// Slow query logging threshold in milliseconds (0 disables)
	SlowQueryThresholdMs int `env:"SLOW_QUERY_THRESHOLD_MS" envDefault:"200"`

	// Inventory service
	InventoryURL        string `env:"INVENTORY_URL" envDefault:"http://localhost:3333"`
	InventoryTimeout    int    `env:"INVENTORY_TIMEOUT_SECONDS" envDefault:"5"`
	InventoryMaxRetries int    `env:"INVENTORY_MAX_RETRIES" envDefault:"0"`

	// Circuit breaker around the inventory client
	CBMaxRequests  uint32  `env:"CB_MAX_REQUESTS" envDefault:"1"`
	CBInterval     int     `env:"CB_INTERVAL_SECONDS" envDefault:"60"`
	CBTimeout      int     `env:"CB_TIMEOUT_SECONDS" envDefault:"30"`
	CBFailureRatio float64 `env:"CB_FAILURE_RATIO" envDefault:"0.5"`
	CBMinRequests  uint32  `env:"CB_MIN_REQUESTS" envDefault:"5"`

	// Kafka
	KafkaEnabled bool     `env:"KAFKA_ENABLED" envDefault:"false"`
	KafkaBrokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`

	// OpenTelemetry
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`

	// Pprof debug endpoints (IP allowlist in CIDR notation)
	PprofAllowedCIDRs []string `env:"PPROF_ALLOWED_CIDRS" envDefault:"127.0.0.0/8,::1/128" envSeparator:","`

	// Per-client rate limit on cart mutations (0 disables)
	RateLimitRPS   float64 `env:"RATE_LIMIT_RPS" envDefault:"10"`
	RateLimitBurst int     `env:"RATE_LIMIT_BURST" envDefault:"20"`

	// CORS
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load cart config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.StorageKey == "" {
		return fmt.Errorf("CART_STORAGE_KEY is required")
	}
	switch c.StorageDriver {
	case StorageRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR is required")
		}
	case StoragePostgres:
		if c.PostgresHost == "" {
			return fmt.Errorf("POSTGRES_HOST is required")
		}
		if c.PostgresUser == "" {
			return fmt.Errorf("POSTGRES_USER is required")
		}
	case StorageMemory:
	default:
		return fmt.Errorf("invalid STORAGE_DRIVER %q: want redis, postgres or memory", c.StorageDriver)
	}
	if c.CartTTL < 0 {
		return fmt.Errorf("CART_TTL_HOURS must not be negative, got %d", c.CartTTL)
	}
	if c.SessionIdleMinutes < 0 {
		return fmt.Errorf("CART_SESSION_IDLE_MINUTES must not be negative, got %d", c.SessionIdleMinutes)
	}
	if u, err := url.ParseRequestURI(c.InventoryURL); err != nil || u.Host == "" {
		return fmt.Errorf("invalid INVENTORY_URL %q", c.InventoryURL)
	}
	if c.InventoryTimeout <= 0 {
		return fmt.Errorf("INVENTORY_TIMEOUT_SECONDS must be positive, got %d", c.InventoryTimeout)
	}
	if c.InventoryMaxRetries < 0 {
		return fmt.Errorf("INVENTORY_MAX_RETRIES must not be negative, got %d", c.InventoryMaxRetries)
	}
	if c.CBFailureRatio <= 0 || c.CBFailureRatio > 1.0 {
		return fmt.Errorf("CB_FAILURE_RATIO must be in (0.0, 1.0], got %f", c.CBFailureRatio)
	}
	if c.RateLimitRPS < 0 {
		return fmt.Errorf("RATE_LIMIT_RPS must not be negative, got %f", c.RateLimitRPS)
	}
	if c.RateLimitRPS > 0 && c.RateLimitBurst < 1 {
		return fmt.Errorf("RATE_LIMIT_BURST must be at least 1, got %d", c.RateLimitBurst)
	}
	if c.KafkaEnabled && len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required when KAFKA_ENABLED is set")
	}
	if c.OTELSampleRate < 0 || c.OTELSampleRate > 1.0 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be between 0.0 and 1.0, got %f", c.OTELSampleRate)
	}
	return nil
}

// CartTTLDuration returns the Redis expiry applied to cart snapshots.
func (c *Config) CartTTLDuration() time.Duration {
	return time.Duration(c.CartTTL) * time.Hour
}

// SessionIdleTTL returns how long an unused session cart stays in memory.
func (c *Config) SessionIdleTTL() time.Duration {
	return time.Duration(c.SessionIdleMinutes) * time.Minute
}

// SimulatorConfig holds configuration for the inventory simulator.
type SimulatorConfig struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	HTTPPort    int    `env:"SIMULATOR_HTTP_PORT" envDefault:"3333"`

	// SeedFile replaces the built-in catalog when set.
	SeedFile string `env:"SIMULATOR_SEED_FILE"`

	// LatencyMS delays every catalog response.
	LatencyMS int `env:"SIMULATOR_LATENCY_MS" envDefault:"0"`
}

// LoadSimulator reads the simulator configuration from environment variables.
func LoadSimulator() (*SimulatorConfig, error) {
	cfg := &SimulatorConfig{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load simulator config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *SimulatorConfig) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.LatencyMS < 0 {
		return fmt.Errorf("SIMULATOR_LATENCY_MS must not be negative, got %d", c.LatencyMS)
	}
	return nil
}

// Latency returns the artificial response delay.
func (c *SimulatorConfig) Latency() time.Duration {
	return time.Duration(c.LatencyMS) * time.Millisecond
}
