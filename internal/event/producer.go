package event

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/utafrali/rocketcart/internal/domain"
	pkgkafka "github.com/utafrali/rocketcart/pkg/kafka"
	"github.com/utafrali/rocketcart/pkg/logger"
)

// Kafka topic constants for storefront cart events.
const (
	TopicCartUpdated      = "storefront.cart.updated"
	TopicCartNotification = "storefront.cart.notification"
)

// SourceCartService identifies events originating from the cart service.
const SourceCartService = "cart-service"

// defaultAggregateID keys events of the unnamed session.
const defaultAggregateID = "default"

const publishTimeout = 5 * time.Second

// CartUpdatedData is the payload for a cart.updated event.
type CartUpdatedData struct {
	SessionID string           `json:"session_id"`
	Items     []domain.Product `json:"items"`
	ItemCount int              `json:"item_count"`
	Total     float64          `json:"total"`
}

// CartNotificationData is the payload for a cart.notification event.
type CartNotificationData struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// Publisher sends an event envelope to a topic. *pkgkafka.Producer
// satisfies it.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// Producer publishes cart events to Kafka. Listener and Notify publish in
// the background so a slow broker never holds up a cart operation; Wait
// blocks until those publishes finish.
type Producer struct {
	kafka  Publisher
	logger *slog.Logger
	wg     sync.WaitGroup
}

// NewProducer creates a new event producer for the cart service.
func NewProducer(kafka Publisher, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

func aggregateID(session string) string {
	if session == "" {
		return defaultAggregateID
	}
	return session
}

// PublishCartUpdated publishes a cart.updated event for session.
func (p *Producer) PublishCartUpdated(ctx context.Context, session string, cart domain.Cart) error {
	items := cart.Clone()
	data := CartUpdatedData{
		SessionID: session,
		Items:     items,
		ItemCount: items.ItemCount(),
		Total:     items.Total(),
	}

	event, err := pkgkafka.NewEvent(ctx, TopicCartUpdated, aggregateID(session), SourceCartService, data)
	if err != nil {
		return fmt.Errorf("create cart.updated event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicCartUpdated, event); err != nil {
		return fmt.Errorf("publish cart.updated event: %w", err)
	}

	p.logger.DebugContext(ctx, "published cart.updated event",
		slog.String("session_id", session),
		slog.Int("item_count", data.ItemCount),
	)

	return nil
}

// PublishNotification publishes a cart.notification event for session.
func (p *Producer) PublishNotification(ctx context.Context, session, message string) error {
	data := CartNotificationData{SessionID: session, Message: message}

	event, err := pkgkafka.NewEvent(ctx, TopicCartNotification, aggregateID(session), SourceCartService, data)
	if err != nil {
		return fmt.Errorf("create cart.notification event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicCartNotification, event); err != nil {
		return fmt.Errorf("publish cart.notification event: %w", err)
	}

	return nil
}

// Listener returns a cart subscriber that publishes every new snapshot of
// session's cart.
func (p *Producer) Listener(session string) func(domain.Cart) {
	return func(cart domain.Cart) {
		snapshot := cart.Clone()
		p.goPublish(context.Background(), func(ctx context.Context) error {
			return p.PublishCartUpdated(ctx, session, snapshot)
		})
	}
}

// Notify publishes message as a cart.notification event for the session
// carried by ctx. Errors are logged, never returned.
func (p *Producer) Notify(ctx context.Context, message string) {
	session := logger.SessionIDFromContext(ctx)
	p.goPublish(context.WithoutCancel(ctx), func(ctx context.Context) error {
		return p.PublishNotification(ctx, session, message)
	})
}

func (p *Producer) goPublish(parent context.Context, publish func(context.Context) error) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ctx, cancel := context.WithTimeout(parent, publishTimeout)
		defer cancel()
		if err := publish(ctx); err != nil {
			logger.WithContext(ctx, p.logger).ErrorContext(ctx, "cart event dropped",
				slog.String("error", err.Error()),
			)
		}
	}()
}

// Wait blocks until every background publish has completed.
func (p *Producer) Wait() {
	p.wg.Wait()
}
