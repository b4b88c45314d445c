package httpclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/rocketcart/pkg/logger"
)

func testCBConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:         name,
		MaxRequests:  1,
		Interval:     60 * time.Second,
		Timeout:      50 * time.Millisecond,
		FailureRatio: 0.5,
		MinRequests:  3,
	}
}

func failingServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`boom`))
	}))
	t.Cleanup(server.Close)
	return server
}

func trip(t *testing.T, cb *CircuitBreakerClient, url string) {
	t.Helper()
	for i := 0; i < 3; i++ {
		_, err := get(context.Background(), cb, url)
		require.Error(t, err)
	}
	require.Equal(t, gobreaker.StateOpen, cb.State())
}

func TestCircuitBreaker_ClosedState_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cb := NewCircuitBreakerClient(New(fastRetryConfig(0)), testCBConfig("test-closed"), logger.Discard())

	resp, err := get(context.Background(), cb, server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, gobreaker.StateClosed, cb.State())
}

func TestCircuitBreaker_TripsOnFailures(t *testing.T) {
	server := failingServer(t)
	cb := NewCircuitBreakerClient(New(fastRetryConfig(0)), testCBConfig("test-trip"), logger.Discard())

	trip(t, cb, server.URL)

	_, err := get(context.Background(), cb, server.URL)
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestCircuitBreaker_NotFoundIsNotAFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	cb := NewCircuitBreakerClient(New(fastRetryConfig(0)), testCBConfig("test-404"), logger.Discard())
	for i := 0; i < 5; i++ {
		resp, err := get(context.Background(), cb, server.URL)
		require.NoError(t, err)
		_ = resp.Body.Close()
	}
	assert.Equal(t, gobreaker.StateClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenRecovers(t *testing.T) {
	var healthy atomic.Bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if healthy.Load() {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	cb := NewCircuitBreakerClient(New(fastRetryConfig(0)), testCBConfig("test-recover"), logger.Discard())
	trip(t, cb, server.URL)

	healthy.Store(true)
	time.Sleep(80 * time.Millisecond)

	resp, err := get(context.Background(), cb, server.URL)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, gobreaker.StateClosed, cb.State())
}

func TestCircuitBreaker_WithFallback(t *testing.T) {
	server := failingServer(t)
	sentinel := errors.New("fallback used")

	cb := NewCircuitBreakerClient(New(fastRetryConfig(0)), testCBConfig("test-fallback"), logger.Discard()).
		WithFallback(func(ctx context.Context, err error) (*http.Response, error) {
			assert.ErrorIs(t, err, ErrCircuitOpen)
			return nil, sentinel
		})
	trip(t, cb, server.URL)

	_, err := get(context.Background(), cb, server.URL)
	assert.ErrorIs(t, err, sentinel)
}

func TestCircuitBreaker_ServerErrorIsUpstreamError(t *testing.T) {
	server := failingServer(t)
	cb := NewCircuitBreakerClient(New(fastRetryConfig(0)), testCBConfig("test-upstream"), logger.Discard())

	_, err := get(context.Background(), cb, server.URL)
	var upstream *UpstreamError
	require.True(t, errors.As(err, &upstream))
	assert.Equal(t, http.StatusInternalServerError, upstream.Status)
	assert.Equal(t, "boom", upstream.Body)
	assert.Equal(t, gobreaker.StateClosed, cb.State(), "one failure is below MinRequests")
}

func TestCircuitBreakerConfig_ShouldTrip(t *testing.T) {
	cfg := testCBConfig("ratio")
	tests := []struct {
		name   string
		counts gobreaker.Counts
		want   bool
	}{
		{"no requests", gobreaker.Counts{}, false},
		{"below minimum", gobreaker.Counts{Requests: 2, TotalFailures: 2}, false},
		{"ratio below threshold", gobreaker.Counts{Requests: 4, TotalFailures: 1}, false},
		{"ratio at threshold", gobreaker.Counts{Requests: 4, TotalFailures: 2}, true},
		{"all failing", gobreaker.Counts{Requests: 3, TotalFailures: 3}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cfg.shouldTrip(tt.counts))
		})
	}
}

func TestCircuitBreaker_StateGauge(t *testing.T) {
	server := failingServer(t)
	cb := NewCircuitBreakerClient(New(fastRetryConfig(0)), testCBConfig("test-gauge"), logger.Discard())
	assert.Equal(t, 0.0, testutil.ToFloat64(breakerStateGauge.WithLabelValues("test-gauge")))

	trip(t, cb, server.URL)
	assert.Equal(t, 2.0, testutil.ToFloat64(breakerStateGauge.WithLabelValues("test-gauge")))
}

func TestDefaultCircuitBreakerConfig(t *testing.T) {
	cfg := DefaultCircuitBreakerConfig("inventory")
	assert.Equal(t, "inventory", cfg.Name)
	assert.Equal(t, uint32(1), cfg.MaxRequests)
	assert.Equal(t, time.Minute, cfg.Interval)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, uint32(5), cfg.MinRequests)
	assert.Equal(t, 0.5, cfg.FailureRatio)
}
