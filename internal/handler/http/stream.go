package http

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/utafrali/rocketcart/internal/domain"
	"github.com/utafrali/rocketcart/pkg/logger"
)

// DefaultHeartbeat is how often an idle stream sends a keep-alive comment.
const DefaultHeartbeat = 15 * time.Second

// Stream handles GET /api/v1/cart/stream. It sends the current cart as a
// "cart" Server-Sent Event, then one event per published snapshot until
// the client goes away or CloseStreams is called. A client that falls
// behind only gets the latest snapshot.
func (h *CartHandler) Stream(w http.ResponseWriter, r *http.Request) {
	store, release, ok := h.store(w, r)
	if !ok {
		return
	}
	defer release()

	rc := http.NewResponseController(w)
	updates := make(chan domain.Cart, 1)
	unsubscribe := store.Subscribe(func(c domain.Cart) {
		select {
		case updates <- c:
			return
		default:
		}
		// Replace the pending snapshot with the newer one.
		select {
		case <-updates:
		default:
		}
		select {
		case updates <- c:
		default:
		}
	})
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	log := logger.FromContext(r.Context())
	var seq uint64
	send := func(c domain.Cart) bool {
		seq++
		if err := writeEvent(w, seq, "cart", newCartResponse(c)); err != nil {
			log.DebugContext(r.Context(), "cart stream closed", slog.String("error", err.Error()))
			return false
		}
		return rc.Flush() == nil
	}

	if !send(store.Cart()) {
		return
	}

	heartbeat := time.NewTicker(h.heartbeat())
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-h.closing:
			log.DebugContext(r.Context(), "cart stream closed by server shutdown")
			return
		case c := <-updates:
			if !send(c) {
				return
			}
		case <-heartbeat.C:
			if _, err := io.WriteString(w, ": ping\n\n"); err != nil {
				return
			}
			if rc.Flush() != nil {
				return
			}
		}
	}
}

func (h *CartHandler) heartbeat() time.Duration {
	if h.heartbeatInterval > 0 {
		return h.heartbeatInterval
	}
	return DefaultHeartbeat
}

// writeEvent writes one SSE frame with a JSON data line.
func writeEvent(w io.Writer, id uint64, event string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", event, err)
	}
	_, err = fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", id, event, data)
	return err
}
