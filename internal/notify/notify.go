// Package notify delivers one-shot, user-facing cart messages.
package notify

import (
	"context"
	"log/slog"
	"sync"

	"github.com/utafrali/rocketcart/pkg/logger"
)

// Notifier sends a plain text message to the shopper. Delivery is
// fire-and-forget: implementations must not block on acknowledgement.
type Notifier interface {
	Notify(ctx context.Context, message string)
}

// Func adapts a function to Notifier.
type Func func(ctx context.Context, message string)

// Notify calls f.
func (f Func) Notify(ctx context.Context, message string) {
	f(ctx, message)
}

// Log writes each message as a warning line.
type Log struct {
	logger *slog.Logger
}

// NewLog creates a Notifier that logs through l.
func NewLog(l *slog.Logger) *Log {
	return &Log{logger: l}
}

// Notify logs message enriched with the request context.
func (n *Log) Notify(ctx context.Context, message string) {
	logger.WithContext(ctx, n.logger).WarnContext(ctx, "cart notification",
		slog.String("message", message),
	)
}

// Multi fans a message out to every notifier in order.
type Multi []Notifier

// Notify forwards message to each non-nil notifier.
func (m Multi) Notify(ctx context.Context, message string) {
	for _, n := range m {
		if n != nil {
			n.Notify(ctx, message)
		}
	}
}

// Recorder keeps every message it receives.
type Recorder struct {
	mu       sync.Mutex
	messages []string
}

// Notify appends message.
func (r *Recorder) Notify(_ context.Context, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, message)
}

// Messages returns a copy of the recorded messages.
func (r *Recorder) Messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.messages))
	copy(out, r.messages)
	return out
}

// Last returns the most recent message.
func (r *Recorder) Last() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.messages) == 0 {
		return "", false
	}
	return r.messages[len(r.messages)-1], true
}

// Reset drops the recorded messages.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = nil
}
