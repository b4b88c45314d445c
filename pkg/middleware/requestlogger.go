package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/utafrali/rocketcart/pkg/logger"
)

// SessionHeader identifies the shopper's cart session.
const SessionHeader = "X-Session-ID"

// SessionID returns the trimmed cart session sent by the client, or "" for
// the default session.
func SessionID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(SessionHeader))
}

// RequestLogger stores a request-scoped logger in the context, enriched with
// correlation_id, session_id, trace_id and span_id. Mount it after
// RequestLogging and Tracing so those values are already present.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if session := SessionID(r); session != "" {
				ctx = logger.WithSessionID(ctx, session)
			}

			ctx = logger.NewContext(ctx, logger.WithContext(ctx, base))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
