package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker/v2"
)

// maxErrorBody caps how much of a 5xx body is kept on UpstreamError.
const maxErrorBody = 64 << 10

// ErrCircuitOpen is returned when the breaker rejects a request.
var ErrCircuitOpen = gobreaker.ErrOpenState

var (
	breakerStateGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Breaker state per downstream (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	breakerFallbackTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_fallback_invoked_total",
			Help: "Requests answered by the fallback while the breaker was open",
		},
		[]string{"name"},
	)
)

// CircuitBreakerConfig describes when a downstream is considered unhealthy.
type CircuitBreakerConfig struct {
	Name string

	// MaxRequests is how many trial requests pass while half-open.
	MaxRequests uint32
	// Interval resets the closed-state counts. Zero keeps them forever.
	Interval time.Duration
	// Timeout is the open period before a half-open trial.
	Timeout time.Duration

	// The breaker opens once at least MinRequests were counted and
	// failures/requests >= FailureRatio.
	FailureRatio float64
	MinRequests  uint32
}

// DefaultCircuitBreakerConfig returns the production defaults for name.
// Callers override individual fields from their own configuration.
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:         name,
		MaxRequests:  1,
		Interval:     time.Minute,
		Timeout:      30 * time.Second,
		FailureRatio: 0.5,
		MinRequests:  5,
	}
}

func (cfg CircuitBreakerConfig) shouldTrip(counts gobreaker.Counts) bool {
	if counts.Requests == 0 || counts.Requests < cfg.MinRequests {
		return false
	}
	return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureRatio
}

func (cfg CircuitBreakerConfig) settings(logger *slog.Logger) gobreaker.Settings {
	return gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: cfg.shouldTrip,
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("downstream breaker changed state",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
			// gobreaker orders its states closed, half-open, open.
			breakerStateGauge.WithLabelValues(name).Set(float64(to))
		},
	}
}

// UpstreamError is a 5xx answer that the breaker counted as a failure.
type UpstreamError struct {
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream returned %d: %s", e.Status, e.Body)
}

// FallbackFunc answers a request in place of ErrCircuitOpen.
type FallbackFunc func(ctx context.Context, err error) (*http.Response, error)

// CircuitBreakerClient guards a Doer with a breaker. It is a Doer itself.
type CircuitBreakerClient struct {
	next     Doer
	cb       *gobreaker.CircuitBreaker[*http.Response]
	cfg      CircuitBreakerConfig
	logger   *slog.Logger
	fallback FallbackFunc
}

// NewCircuitBreakerClient wraps next with a breaker configured by cfg.
func NewCircuitBreakerClient(next Doer, cfg CircuitBreakerConfig, logger *slog.Logger) *CircuitBreakerClient {
	breakerStateGauge.WithLabelValues(cfg.Name).Set(float64(gobreaker.StateClosed))
	return &CircuitBreakerClient{
		next:   next,
		cb:     gobreaker.NewCircuitBreaker[*http.Response](cfg.settings(logger)),
		cfg:    cfg,
		logger: logger,
	}
}

// WithFallback returns a copy sharing the same breaker that calls fn
// instead of failing fast while open.
func (c *CircuitBreakerClient) WithFallback(fn FallbackFunc) *CircuitBreakerClient {
	dup := *c
	dup.fallback = fn
	return &dup
}

// Do sends req through the breaker. A 5xx response is drained, closed and
// reported as *UpstreamError; 4xx responses pass through untouched.
func (c *CircuitBreakerClient) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	resp, err := c.cb.Execute(func() (*http.Response, error) {
		return c.send(ctx, req)
	})
	switch {
	case err == nil:
		return resp, nil
	case c.fallback != nil && errors.Is(err, ErrCircuitOpen):
		breakerFallbackTotal.WithLabelValues(c.cfg.Name).Inc()
		c.logger.WarnContext(ctx, "downstream breaker open, using fallback",
			slog.String("breaker", c.cfg.Name),
		)
		return c.fallback(ctx, err)
	default:
		return nil, err
	}
}

func (c *CircuitBreakerClient) send(ctx context.Context, req *http.Request) (*http.Response, error) {
	resp, err := c.next.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < http.StatusInternalServerError {
		return resp, nil
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return nil, &UpstreamError{Status: resp.StatusCode, Body: string(body)}
}

// State reports the breaker state; readiness treats open as unhealthy.
func (c *CircuitBreakerClient) State() gobreaker.State {
	return c.cb.State()
}
