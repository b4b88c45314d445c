package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/rocketcart/internal/domain"
	"github.com/utafrali/rocketcart/internal/notify"
	"github.com/utafrali/rocketcart/internal/repository/memory"
	apperrors "github.com/utafrali/rocketcart/pkg/errors"
	"github.com/utafrali/rocketcart/pkg/logger"
)

// countingStore counts reads so tests can tell how often a store was opened.
type countingStore struct {
	*memory.Store
	gets atomic.Int32
	err  error
}

func (c *countingStore) Get(ctx context.Context, key string) (string, bool, error) {
	c.gets.Add(1)
	if c.err != nil {
		return "", false, c.err
	}
	return c.Store.Get(ctx, key)
}

func newTestRegistry(kv *countingStore) *Registry {
	inv := &fakeInventory{stock: map[int]int{1: 5}, products: map[int]domain.Product{1: *shoe(1)}}
	return NewRegistry(testKey, kv, inv, &notify.Recorder{}, logger.Discard())
}

func TestRegistry_StorageKey(t *testing.T) {
	r := newTestRegistry(&countingStore{Store: memory.NewStore()})

	assert.Equal(t, "@RocketShoes:cart", r.StorageKey(""))
	assert.Equal(t, "@RocketShoes:cart:abc-123", r.StorageKey("abc-123"))
}

func TestRegistry_SessionsAreIsolated(t *testing.T) {
	kv := &countingStore{Store: memory.NewStore()}
	r := newTestRegistry(kv)
	ctx := context.Background()

	def, err := r.Store(ctx, "")
	require.NoError(t, err)
	other, err := r.Store(ctx, "s-1")
	require.NoError(t, err)
	require.NotSame(t, def, other)

	_, err = other.AddProduct(ctx, 1)
	require.NoError(t, err)

	assert.Empty(t, def.Cart())
	assert.Len(t, other.Cart(), 1)

	_, ok, _ := kv.Store.Get(ctx, "@RocketShoes:cart:s-1")
	assert.True(t, ok)
	_, ok, _ = kv.Store.Get(ctx, "@RocketShoes:cart")
	assert.False(t, ok)
}

func TestRegistry_ConcurrentFirstAccessOpensOnce(t *testing.T) {
	kv := &countingStore{Store: memory.NewStore()}
	r := newTestRegistry(kv)

	var hookCalls atomic.Int32
	r.OnOpen(func(session string, _ *CartStore) {
		assert.Equal(t, "s-1", session)
		hookCalls.Add(1)
	})

	const callers = 32
	stores := make([]*CartStore, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := r.Store(context.Background(), "s-1")
			assert.NoError(t, err)
			stores[i] = s
		}(i)
	}
	wg.Wait()

	for _, s := range stores {
		assert.Same(t, stores[0], s)
	}
	assert.Equal(t, int32(1), kv.gets.Load())
	assert.Equal(t, int32(1), hookCalls.Load())
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_HooksSubscribeBeforeFirstUse(t *testing.T) {
	r := newTestRegistry(&countingStore{Store: memory.NewStore()})

	var published []domain.Cart
	r.OnOpen(func(_ string, s *CartStore) {
		s.Subscribe(func(c domain.Cart) { published = append(published, c) })
	})

	s, err := r.Store(context.Background(), "")
	require.NoError(t, err)
	_, err = s.AddProduct(context.Background(), 1)
	require.NoError(t, err)

	require.Len(t, published, 1)
	assert.Equal(t, 1, published[0][0].Amount)
}

func TestRegistry_OpenErrorIsNotCached(t *testing.T) {
	kv := &countingStore{Store: memory.NewStore(), err: errors.New("dial tcp: connection refused")}
	r := newTestRegistry(kv)

	_, err := r.Store(context.Background(), "s-1")
	require.Error(t, err)
	assert.Zero(t, r.Len())

	kv.err = nil
	s, err := r.Store(context.Background(), "s-1")
	require.NoError(t, err)
	assert.NotNil(t, s)
	assert.Equal(t, int32(2), kv.gets.Load())
}

// fakeClock lets eviction tests move time forward.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newClockedRegistry(kv *countingStore) (*Registry, *fakeClock) {
	r := newTestRegistry(kv)
	clock := &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	r.now = clock.Now
	return r, clock
}

func TestRegistry_EvictIdle(t *testing.T) {
	kv := &countingStore{Store: memory.NewStore()}
	r, clock := newClockedRegistry(kv)
	ctx := context.Background()

	_, err := r.Store(ctx, "old")
	require.NoError(t, err)
	clock.Advance(20 * time.Minute)
	_, err = r.Store(ctx, "recent")
	require.NoError(t, err)
	clock.Advance(15 * time.Minute)

	assert.Equal(t, 1, r.EvictIdle(30*time.Minute))
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_HeldStoreIsNotEvicted(t *testing.T) {
	kv := &countingStore{Store: memory.NewStore()}
	r, clock := newClockedRegistry(kv)
	ctx := context.Background()

	held, release, err := r.Acquire(ctx, "streaming")
	require.NoError(t, err)
	clock.Advance(time.Hour)

	assert.Zero(t, r.EvictIdle(30*time.Minute))
	again, err := r.Store(ctx, "streaming")
	require.NoError(t, err)
	assert.Same(t, held, again)

	release()
	release()
	clock.Advance(time.Hour)
	assert.Equal(t, 1, r.EvictIdle(30*time.Minute))
	assert.Zero(t, r.Len())
}

func TestRegistry_EvictedCartIsReloaded(t *testing.T) {
	kv := &countingStore{Store: memory.NewStore()}
	r, clock := newClockedRegistry(kv)
	ctx := context.Background()

	var opened atomic.Int32
	r.OnOpen(func(string, *CartStore) { opened.Add(1) })

	s, err := r.Store(ctx, "s-1")
	require.NoError(t, err)
	_, err = s.AddProduct(ctx, 1)
	require.NoError(t, err)

	clock.Advance(time.Hour)
	require.Equal(t, 1, r.EvictIdle(30*time.Minute))

	reopened, err := r.Store(ctx, "s-1")
	require.NoError(t, err)
	assert.NotSame(t, s, reopened)
	assert.Equal(t, s.Cart(), reopened.Cart())
	assert.Equal(t, int32(2), opened.Load())
}

func TestRegistry_ManySessionsStayBounded(t *testing.T) {
	kv := &countingStore{Store: memory.NewStore()}
	r, clock := newClockedRegistry(kv)
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		_, err := r.Store(ctx, fmt.Sprintf("visitor-%d", i))
		require.NoError(t, err)
		clock.Advance(time.Minute)
		r.EvictIdle(10 * time.Minute)
	}

	assert.LessOrEqual(t, r.Len(), 11)
}

func TestRegistry_StartEvictionStopsWithContext(t *testing.T) {
	r := newTestRegistry(&countingStore{Store: memory.NewStore()})
	ctx, cancel := context.WithCancel(context.Background())

	_, err := r.Store(ctx, "s-1")
	require.NoError(t, err)
	r.StartEviction(ctx, 10*time.Millisecond)

	assert.Eventually(t, func() bool { return r.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
	cancel()
}

func TestValidateSession(t *testing.T) {
	assert.NoError(t, ValidateSession(""))
	assert.NoError(t, ValidateSession("3f1c9a2e-1b4d-4c55-9a8e-0d6f1e2b7c11"))

	for _, bad := range []string{"has space", "tab\there", "nl\n", strings.Repeat("x", 129)} {
		err := ValidateSession(bad)
		require.Error(t, err, bad)
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	}

	r := newTestRegistry(&countingStore{Store: memory.NewStore()})
	_, err := r.Store(context.Background(), "bad session")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}
