package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/rocketcart/internal/repository"
)

var _ repository.KeyValueStore = (*Store)(nil)

func TestStore_GetSet(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	_, ok, err := s.Get(ctx, "@RocketShoes:cart")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, "@RocketShoes:cart", "[]"))
	require.NoError(t, s.Set(ctx, "@RocketShoes:cart", `[{"id":1}]`))

	v, ok, err := s.Get(ctx, "@RocketShoes:cart")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `[{"id":1}]`, v)
	assert.Equal(t, 1, s.Len())
	assert.NoError(t, s.Ping(ctx))
}

func TestStore_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("k%d", i%5)
			_ = s.Set(ctx, key, "v")
			_, _, _ = s.Get(ctx, key)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 5, s.Len())
}
