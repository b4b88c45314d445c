package service

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode"

	"golang.org/x/sync/singleflight"

	"github.com/utafrali/rocketcart/internal/inventory"
	"github.com/utafrali/rocketcart/internal/notify"
	"github.com/utafrali/rocketcart/internal/repository"
	apperrors "github.com/utafrali/rocketcart/pkg/errors"
)

// maxSessionLen bounds session ids accepted from clients.
const maxSessionLen = 128

// OpenHook runs once for every newly opened store, before it is handed to
// any caller.
type OpenHook func(session string, store *CartStore)

// Registry hosts one CartStore per session. The empty session is the
// default cart stored under the base key. Stores nobody holds can be evicted
// once idle; the cart stays persisted and is reloaded on next use.
type Registry struct {
	baseKey   string
	kv        repository.KeyValueStore
	inventory inventory.Service
	notifier  notify.Notifier
	logger    *slog.Logger
	now       func() time.Time

	mu     sync.RWMutex
	stores map[string]*entry
	hooks  []OpenHook
	group  singleflight.Group
}

type entry struct {
	store    *CartStore
	lastUsed time.Time
	// active counts callers holding the store through Acquire.
	active int
}

// NewRegistry creates a registry persisting carts under baseKey.
func NewRegistry(baseKey string, kv repository.KeyValueStore, inv inventory.Service, notifier notify.Notifier, logger *slog.Logger) *Registry {
	return &Registry{
		baseKey:   baseKey,
		kv:        kv,
		inventory: inv,
		notifier:  notifier,
		logger:    logger,
		now:       time.Now,
		stores:    make(map[string]*entry),
	}
}

// OnOpen registers a hook for stores opened after this call.
func (r *Registry) OnOpen(hook OpenHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks = append(r.hooks, hook)
}

// StorageKey returns the key session's cart is persisted under.
func (r *Registry) StorageKey(session string) string {
	if session == "" {
		return r.baseKey
	}
	return r.baseKey + ":" + session
}

// ValidateSession rejects session ids that are too long or contain spaces
// or control characters.
func ValidateSession(session string) error {
	if len(session) > maxSessionLen {
		return apperrors.InvalidInput("session id is too long")
	}
	if strings.IndexFunc(session, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsControl(r)
	}) >= 0 {
		return apperrors.InvalidInput("session id contains invalid characters")
	}
	return nil
}

// Store returns session's cart store, opening it on first use. The store is
// not held: callers keeping it across an idle period should use Acquire.
func (r *Registry) Store(ctx context.Context, session string) (*CartStore, error) {
	store, release, err := r.Acquire(ctx, session)
	if err != nil {
		return nil, err
	}
	release()
	return store, nil
}

// Acquire returns session's cart store, opening it on first use, and holds
// it until release is called. A held store is never evicted. Concurrent
// first calls for one session share a single open.
func (r *Registry) Acquire(ctx context.Context, session string) (_ *CartStore, release func(), _ error) {
	if err := ValidateSession(session); err != nil {
		return nil, nil, err
	}

	for {
		store, err := r.open(ctx, session)
		if err != nil {
			return nil, nil, err
		}

		r.mu.Lock()
		e, ok := r.stores[session]
		if !ok || e.store != store {
			// Evicted between open and hold; open again.
			r.mu.Unlock()
			continue
		}
		e.active++
		e.lastUsed = r.now()
		r.mu.Unlock()

		var once sync.Once
		return store, func() {
			once.Do(func() {
				r.mu.Lock()
				defer r.mu.Unlock()
				e.active--
				e.lastUsed = r.now()
			})
		}, nil
	}
}

func (r *Registry) open(ctx context.Context, session string) (*CartStore, error) {
	r.mu.RLock()
	e, ok := r.stores[session]
	r.mu.RUnlock()
	if ok {
		return e.store, nil
	}

	v, err, _ := r.group.Do(session, func() (any, error) {
		r.mu.RLock()
		e, ok := r.stores[session]
		r.mu.RUnlock()
		if ok {
			return e.store, nil
		}

		store, err := Open(ctx, r.StorageKey(session), r.kv, r.inventory,
			WithNotifier(r.notifier),
			WithLogger(r.logger),
		)
		if err != nil {
			return nil, err
		}

		r.mu.RLock()
		hooks := make([]OpenHook, len(r.hooks))
		copy(hooks, r.hooks)
		r.mu.RUnlock()
		for _, hook := range hooks {
			hook(session, store)
		}

		r.mu.Lock()
		r.stores[session] = &entry{store: store, lastUsed: r.now()}
		r.mu.Unlock()
		r.logger.DebugContext(ctx, "cart store opened",
			slog.String("session_id", session),
			slog.String("key", store.Key()),
		)
		return store, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*CartStore), nil
}

// EvictIdle drops stores that nobody holds and that were last used more
// than ttl ago. It returns the number of stores dropped.
func (r *Registry) EvictIdle(ttl time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	evicted := 0
	for session, e := range r.stores {
		if e.active == 0 && now.Sub(e.lastUsed) > ttl {
			delete(r.stores, session)
			evicted++
		}
	}
	return evicted
}

// StartEviction runs EvictIdle every ttl until ctx is done. A ttl of zero
// or less keeps every store open.
func (r *Registry) StartEviction(ctx context.Context, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(ttl)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := r.EvictIdle(ttl); n > 0 {
					r.logger.Debug("idle cart stores evicted",
						slog.Int("evicted", n),
						slog.Int("open", r.Len()),
					)
				}
			}
		}
	}()
}

// Len returns the number of open stores.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.stores)
}
