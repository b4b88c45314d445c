package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/rocketcart/internal/repository"
)

var _ repository.KeyValueStore = (*Store)(nil)

func setupTestRedis(t *testing.T, ttl time.Duration) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewStore(client, ttl), mr
}

func TestStore_Get_Missing(t *testing.T) {
	store, _ := setupTestRedis(t, time.Hour)

	v, ok, err := store.Get(context.Background(), "@RocketShoes:cart")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, v)
}

func TestStore_Get_Existing(t *testing.T) {
	store, mr := setupTestRedis(t, time.Hour)
	require.NoError(t, mr.Set("@RocketShoes:cart", `[{"id":1,"amount":2}]`))

	v, ok, err := store.Get(context.Background(), "@RocketShoes:cart")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `[{"id":1,"amount":2}]`, v)
}

func TestStore_Set_OverwritesAndAppliesTTL(t *testing.T) {
	store, mr := setupTestRedis(t, 24*time.Hour)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "@RocketShoes:cart:s1", "[]"))
	require.NoError(t, store.Set(ctx, "@RocketShoes:cart:s1", `[{"id":2}]`))

	got, err := mr.Get("@RocketShoes:cart:s1")
	require.NoError(t, err)
	assert.Equal(t, `[{"id":2}]`, got)
	assert.Equal(t, 24*time.Hour, mr.TTL("@RocketShoes:cart:s1"))

	mr.FastForward(25 * time.Hour)
	_, ok, err := store.Get(ctx, "@RocketShoes:cart:s1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_Set_ZeroTTLNeverExpires(t *testing.T) {
	store, mr := setupTestRedis(t, 0)

	require.NoError(t, store.Set(context.Background(), "k", "v"))
	assert.Zero(t, mr.TTL("k"))
}

func TestStore_ConnectionErrors(t *testing.T) {
	store, mr := setupTestRedis(t, time.Hour)
	ctx := context.Background()
	require.NoError(t, store.Ping(ctx))

	mr.Close()

	_, _, err := store.Get(ctx, "k")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis get k")

	err = store.Set(ctx, "k", "v")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis set k")

	assert.Error(t, store.Ping(ctx))
}
