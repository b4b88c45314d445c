package middleware

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/utafrali/rocketcart/pkg/httputil"
)

// RateLimitConfig holds token bucket parameters for RateLimit.
type RateLimitConfig struct {
	// RPS is the sustained number of requests per second per client. 0
	// disables limiting.
	RPS float64
	// Burst is the bucket size.
	Burst int
	// IdleTTL evicts clients not seen for this long.
	IdleTTL time.Duration
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// limiterStore keeps one token bucket per client key.
type limiterStore struct {
	mu      sync.Mutex
	clients map[string]*client
	limit   rate.Limit
	burst   int
	ttl     time.Duration
	now     func() time.Time
}

func newLimiterStore(cfg RateLimitConfig) *limiterStore {
	return &limiterStore{
		clients: make(map[string]*client),
		limit:   rate.Limit(cfg.RPS),
		burst:   cfg.Burst,
		ttl:     cfg.IdleTTL,
		now:     time.Now,
	}
}

func (s *limiterStore) get(key string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.clients[key]
	if !ok {
		c = &client{limiter: rate.NewLimiter(s.limit, s.burst)}
		s.clients[key] = c
	}
	c.lastSeen = s.now()
	return c.limiter
}

func (s *limiterStore) evictIdle() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for key, c := range s.clients {
		if now.Sub(c.lastSeen) > s.ttl {
			delete(s.clients, key)
		}
	}
}

func (s *limiterStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// clientKey identifies the caller by session when one is sent, otherwise by
// remote IP.
func clientKey(r *http.Request) string {
	if session := SessionID(r); session != "" {
		return "session:" + session
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}

// RateLimit enforces a per-client token bucket and answers 429 with the
// error envelope once the bucket is empty. Idle clients are evicted until
// ctx is done.
func RateLimit(ctx context.Context, cfg RateLimitConfig, logger *slog.Logger) func(http.Handler) http.Handler {
	if cfg.RPS <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	if cfg.Burst < 1 {
		cfg.Burst = 1
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 3 * time.Minute
	}

	store := newLimiterStore(cfg)
	go func() {
		ticker := time.NewTicker(cfg.IdleTTL)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				store.evictIdle()
			}
		}
	}()

	return rateLimit(store, logger)
}

func rateLimit(store *limiterStore, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := clientKey(r)
			limiter := store.get(key)

			if !limiter.Allow() {
				logger.WarnContext(r.Context(), "rate limit exceeded",
					slog.String("client", key),
					slog.String("path", r.URL.Path),
				)
				retry := time.Duration(float64(time.Second) / float64(limiter.Limit()))
				w.Header().Set("Retry-After", strconv.Itoa(max(1, int(retry.Round(time.Second)/time.Second))))
				httputil.WriteJSON(w, http.StatusTooManyRequests, httputil.Response{
					Error: &httputil.ErrorResponse{
						Code:    "RATE_LIMITED",
						Message: "too many requests",
					},
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
