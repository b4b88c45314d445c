package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/utafrali/rocketcart/internal/domain"
	"github.com/utafrali/rocketcart/internal/inventory"
	"github.com/utafrali/rocketcart/internal/notify"
	"github.com/utafrali/rocketcart/internal/repository"
	apperrors "github.com/utafrali/rocketcart/pkg/errors"
	"github.com/utafrali/rocketcart/pkg/logger"
	"github.com/utafrali/rocketcart/pkg/tracing"
)

const tracerName = "github.com/utafrali/rocketcart/internal/service"

// Operation names used in logs, spans and metrics.
const (
	opAdd    = "add_product"
	opRemove = "remove_product"
	opUpdate = "update_amount"
)

// UpdateProductAmount holds the parameters for setting an entry's quantity.
type UpdateProductAmount struct {
	ProductID int `json:"product_id"`
	Amount    int `json:"amount"`
}

// Listener receives every cart snapshot published after a successful
// operation. It runs while the store is locked and must not call back into
// the store's mutating operations.
type Listener func(domain.Cart)

type subscription struct {
	id uint64
	fn Listener
}

// CartStore owns one cart and mirrors it to a key-value store under a fixed
// key. Mutating operations are serialized; Cart never waits on them.
type CartStore struct {
	key       string
	kv        repository.KeyValueStore
	inventory inventory.Service
	notifier  notify.Notifier
	logger    *slog.Logger
	tracer    trace.Tracer

	// opMu serializes mutations, including their inventory round-trips.
	opMu sync.Mutex

	stateMu sync.RWMutex
	cart    domain.Cart

	subMu  sync.Mutex
	subs   []subscription
	nextID uint64
}

// Option configures a CartStore.
type Option func(*CartStore)

// WithNotifier sets where abort messages are sent. Defaults to a log notifier.
func WithNotifier(n notify.Notifier) Option {
	return func(s *CartStore) {
		s.notifier = n
	}
}

// WithLogger sets the store's logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *CartStore) {
		s.logger = l
	}
}

// Open loads the cart persisted under key. An absent key yields an empty
// cart, as does a snapshot that is not a valid cart (a warning is logged).
// A failing read is returned.
func Open(ctx context.Context, key string, kv repository.KeyValueStore, inv inventory.Service, opts ...Option) (*CartStore, error) {
	s := &CartStore{
		key:       key,
		kv:        kv,
		inventory: inv,
		logger:    slog.Default(),
		tracer:    tracing.Tracer(tracerName),
		cart:      domain.Cart{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.notifier == nil {
		s.notifier = notify.NewLog(s.logger)
	}

	raw, ok, err := kv.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("load cart %s: %w", key, err)
	}
	if !ok {
		return s, nil
	}

	cart, err := domain.DecodeCart(raw)
	if err != nil {
		logger.WithContext(ctx, s.logger).WarnContext(ctx, "discarding unreadable cart snapshot",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return s, nil
	}
	s.cart = cart
	return s, nil
}

// Key returns the storage key the cart is persisted under.
func (s *CartStore) Key() string {
	return s.key
}

// Cart returns a copy of the current cart.
func (s *CartStore) Cart() domain.Cart {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.cart.Clone()
}

// Subscribe registers fn to receive every new cart snapshot. Listeners are
// called in registration order. The returned function removes fn.
func (s *CartStore) Subscribe(fn Listener) (unsubscribe func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	s.nextID++
	id := s.nextID
	s.subs = append(s.subs, subscription{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subMu.Lock()
			defer s.subMu.Unlock()
			for i, sub := range s.subs {
				if sub.id == id {
					s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// AddProduct adds one unit of productID, bounded by its current stock. A
// product the catalog has no record for is silently ignored.
func (s *CartStore) AddProduct(ctx context.Context, productID int) (domain.Cart, error) {
	return s.mutate(ctx, opAdd, productID, func(ctx context.Context, cart domain.Cart) (domain.Cart, bool, error) {
		stock, err := s.inventory.Stock(ctx, productID)
		if err != nil {
			return nil, false, collaboratorFailure(MsgAddFailed, err)
		}

		idx := cart.FindIndex(productID)
		target := 1
		if idx >= 0 {
			target = cart[idx].Amount + 1
		}
		if target > stock.Amount {
			return nil, false, insufficientStock()
		}

		if idx >= 0 {
			cart[idx].Amount = target
			return cart, true, nil
		}

		product, err := s.inventory.Product(ctx, productID)
		if err != nil {
			return nil, false, collaboratorFailure(MsgAddFailed, err)
		}
		if product == nil {
			return nil, false, nil
		}

		entry := *product
		entry.Amount = 1
		return append(cart, entry), true, nil
	})
}

// RemoveProduct takes one unit of productID out of the cart, dropping the
// entry when it reaches zero.
func (s *CartStore) RemoveProduct(ctx context.Context, productID int) (domain.Cart, error) {
	return s.mutate(ctx, opRemove, productID, func(_ context.Context, cart domain.Cart) (domain.Cart, bool, error) {
		idx := cart.FindIndex(productID)
		if idx < 0 {
			return nil, false, notInCart()
		}

		if cart[idx].Amount > 1 {
			cart[idx].Amount--
			return cart, true, nil
		}
		return append(cart[:idx], cart[idx+1:]...), true, nil
	})
}

// UpdateProductAmount sets the quantity of an entry, bounded by stock. An
// amount of zero or less is ignored. An id that has no entry leaves the
// items unchanged but the cart is still persisted and published.
func (s *CartStore) UpdateProductAmount(ctx context.Context, in UpdateProductAmount) (domain.Cart, error) {
	if in.Amount <= 0 {
		return s.Cart(), nil
	}

	return s.mutate(ctx, opUpdate, in.ProductID, func(ctx context.Context, cart domain.Cart) (domain.Cart, bool, error) {
		stock, err := s.inventory.Stock(ctx, in.ProductID)
		if err != nil {
			return nil, false, collaboratorFailure(MsgUpdateFailed, err)
		}
		if in.Amount > stock.Amount {
			return nil, false, insufficientStock()
		}

		if idx := cart.FindIndex(in.ProductID); idx >= 0 {
			cart[idx].Amount = in.Amount
		}
		return cart, true, nil
	})
}

// mutation derives the next cart from a private copy of the current one.
// changed=false with a nil error is a no-op: nothing is persisted or
// published.
type mutation func(ctx context.Context, cart domain.Cart) (next domain.Cart, changed bool, err error)

func (s *CartStore) mutate(ctx context.Context, op string, productID int, fn mutation) (_ domain.Cart, err error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "CartStore."+op, trace.WithAttributes(
		attribute.String("cart.key", s.key),
		attribute.Int("product.id", productID),
	))
	result := "noop"
	defer func() {
		if err != nil {
			result = outcome(err)
			tracing.RecordError(span, err)
		}
		span.SetAttributes(attribute.String("cart.outcome", result))
		span.End()
		cartOperationsTotal.WithLabelValues(op, result).Inc()
		cartOperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}()

	log := logger.WithContext(ctx, s.logger).With(
		slog.String("operation", op),
		slog.Int("product_id", productID),
	)

	next, changed, err := fn(ctx, s.Cart())
	if err != nil {
		s.abort(ctx, log, err)
		return nil, err
	}
	if !changed {
		log.DebugContext(ctx, "cart operation changed nothing")
		return s.Cart(), nil
	}

	if err := s.persist(ctx, next); err != nil {
		err = collaboratorFailure(failureMessage(op), err)
		s.abort(ctx, log, err)
		return nil, err
	}

	s.stateMu.Lock()
	s.cart = next
	s.stateMu.Unlock()
	s.publish(next)

	result = "success"
	log.InfoContext(ctx, "cart updated",
		slog.Int("entries", len(next)),
		slog.Int("item_count", next.ItemCount()),
	)
	return next.Clone(), nil
}

func (s *CartStore) persist(ctx context.Context, cart domain.Cart) error {
	raw, err := domain.EncodeCart(cart)
	if err != nil {
		return err
	}
	if err := s.kv.Set(ctx, s.key, raw); err != nil {
		return fmt.Errorf("persist cart %s: %w", s.key, err)
	}
	return nil
}

func (s *CartStore) publish(cart domain.Cart) {
	s.subMu.Lock()
	subs := make([]subscription, len(s.subs))
	copy(subs, s.subs)
	s.subMu.Unlock()

	for _, sub := range subs {
		sub.fn(cart.Clone())
	}
}

// abort logs err and sends its message to the notifier.
func (s *CartStore) abort(ctx context.Context, log *slog.Logger, err error) {
	if errors.Is(err, ErrCollaborator) {
		log.ErrorContext(ctx, "cart operation failed", slog.String("error", err.Error()))
	} else {
		log.WarnContext(ctx, "cart operation rejected", slog.String("reason", outcome(err)))
	}

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		s.notifier.Notify(ctx, appErr.Message)
	}
}

func failureMessage(op string) string {
	switch op {
	case opAdd:
		return MsgAddFailed
	case opRemove:
		return MsgRemoveFailed
	default:
		return MsgUpdateFailed
	}
}
