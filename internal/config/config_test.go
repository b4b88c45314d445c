package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, 8003, cfg.HTTPPort)
	assert.Equal(t, "@RocketShoes:cart", cfg.StorageKey)
	assert.Equal(t, StorageRedis, cfg.StorageDriver)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, 168, cfg.CartTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.CartTTLDuration())
	assert.Equal(t, "http://localhost:3333", cfg.InventoryURL)
	assert.Equal(t, 5, cfg.InventoryTimeout)
	assert.Zero(t, cfg.InventoryMaxRetries)
	assert.False(t, cfg.KafkaEnabled)
	assert.Equal(t, []string{"*"}, cfg.CORSAllowedOrigins)
	assert.Equal(t, 10.0, cfg.RateLimitRPS)
	assert.Equal(t, 20, cfg.RateLimitBurst)
	assert.Equal(t, 30*time.Minute, cfg.SessionIdleTTL())
}

func TestLoad_InvalidHTTPPort(t *testing.T) {
	t.Setenv("CART_HTTP_PORT", "0")

	cfg, err := Load()

	assert.Nil(t, cfg)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invalid HTTP port")
}

func TestLoad_InvalidOTELSampleRate(t *testing.T) {
	t.Setenv("OTEL_SAMPLE_RATE", "2.0")

	cfg, err := Load()

	assert.Nil(t, cfg)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "OTEL_SAMPLE_RATE must be between 0.0 and 1.0")
}

func TestLoad_StorageDriver(t *testing.T) {
	for _, driver := range []string{StorageRedis, StoragePostgres, StorageMemory} {
		t.Run(driver, func(t *testing.T) {
			t.Setenv("STORAGE_DRIVER", driver)

			cfg, err := Load()
			require.NoError(t, err)
			assert.Equal(t, driver, cfg.StorageDriver)
		})
	}

	t.Run("unknown", func(t *testing.T) {
		t.Setenv("STORAGE_DRIVER", "sqlite")

		cfg, err := Load()
		assert.Nil(t, cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), `invalid STORAGE_DRIVER "sqlite"`)
	})
}

func TestLoad_InvalidInventoryURL(t *testing.T) {
	t.Setenv("INVENTORY_URL", "localhost:3333")

	cfg, err := Load()

	assert.Nil(t, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid INVENTORY_URL")
}

func TestLoad_InvalidNumbers(t *testing.T) {
	tests := []struct {
		env, value, want string
	}{
		{"CART_TTL_HOURS", "-1", "CART_TTL_HOURS must not be negative"},
		{"INVENTORY_TIMEOUT_SECONDS", "0", "INVENTORY_TIMEOUT_SECONDS must be positive"},
		{"INVENTORY_MAX_RETRIES", "-2", "INVENTORY_MAX_RETRIES must not be negative"},
		{"CB_FAILURE_RATIO", "0", "CB_FAILURE_RATIO must be in"},
		{"CART_SESSION_IDLE_MINUTES", "-1", "CART_SESSION_IDLE_MINUTES must not be negative"},
		{"RATE_LIMIT_RPS", "-1", "RATE_LIMIT_RPS must not be negative"},
		{"RATE_LIMIT_BURST", "0", "RATE_LIMIT_BURST must be at least 1"},
	}
	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			t.Setenv(tt.env, tt.value)

			cfg, err := Load()
			assert.Nil(t, cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_CustomValues(t *testing.T) {
	t.Setenv("REDIS_ADDR", "redis.prod:6380")
	t.Setenv("KAFKA_ENABLED", "true")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://shop.example.com,https://admin.example.com")
	t.Setenv("CART_TTL_HOURS", "0")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, "redis.prod:6380", cfg.RedisAddr)
	assert.True(t, cfg.KafkaEnabled)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, []string{"https://shop.example.com", "https://admin.example.com"}, cfg.CORSAllowedOrigins)
	assert.Zero(t, cfg.CartTTLDuration())
}

func TestLoad_UnparsableValue(t *testing.T) {
	t.Setenv("CART_HTTP_PORT", "eighty")

	cfg, err := Load()

	assert.Nil(t, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load cart config")
}

func TestLoadSimulator_Defaults(t *testing.T) {
	cfg, err := LoadSimulator()

	require.NoError(t, err)
	assert.Equal(t, 3333, cfg.HTTPPort)
	assert.Empty(t, cfg.SeedFile)
	assert.Zero(t, cfg.Latency())
}

func TestLoadSimulator_Custom(t *testing.T) {
	t.Setenv("SIMULATOR_HTTP_PORT", "4000")
	t.Setenv("SIMULATOR_SEED_FILE", "/data/db.json")
	t.Setenv("SIMULATOR_LATENCY_MS", "250")

	cfg, err := LoadSimulator()

	require.NoError(t, err)
	assert.Equal(t, 4000, cfg.HTTPPort)
	assert.Equal(t, "/data/db.json", cfg.SeedFile)
	assert.Equal(t, 250*time.Millisecond, cfg.Latency())
}

func TestLoadSimulator_NegativeLatency(t *testing.T) {
	t.Setenv("SIMULATOR_LATENCY_MS", "-5")

	cfg, err := LoadSimulator()

	assert.Nil(t, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SIMULATOR_LATENCY_MS must not be negative")
}
