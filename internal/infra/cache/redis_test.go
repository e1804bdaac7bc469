package cache

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupCache(t *testing.T) (*DatasetCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewDatasetCache(client), mr
}

func TestDatasetCacheRoundTrip(t *testing.T) {
	c, _ := setupCache(t)
	ctx := context.Background()
	userID, id := uuid.New(), uuid.New()

	assert.Nil(t, c.Get(ctx, userID, id), "cold cache misses")

	c.Set(ctx, userID, id, []byte(`{"uuid":"x"}`))
	assert.Equal(t, []byte(`{"uuid":"x"}`), c.Get(ctx, userID, id))

	// Entries are scoped per user.
	assert.Nil(t, c.Get(ctx, uuid.New(), id))
}

func TestDatasetCacheInvalidate(t *testing.T) {
	c, _ := setupCache(t)
	ctx := context.Background()
	id, other := uuid.New(), uuid.New()
	alice, bob := uuid.New(), uuid.New()

	c.Set(ctx, alice, id, []byte("a"))
	c.Set(ctx, bob, id, []byte("b"))
	c.Set(ctx, alice, other, []byte("c"))

	c.Invalidate(ctx, id)

	assert.Nil(t, c.Get(ctx, alice, id), "invalidation drops every user's entry")
	assert.Nil(t, c.Get(ctx, bob, id))
	assert.Equal(t, []byte("c"), c.Get(ctx, alice, other), "other records stay cached")
}

func TestDatasetCacheExpiry(t *testing.T) {
	c, mr := setupCache(t)
	ctx := context.Background()
	userID, id := uuid.New(), uuid.New()

	c.Set(ctx, userID, id, []byte("payload"))
	mr.FastForward(detailTTL + 1)
	assert.Nil(t, c.Get(ctx, userID, id))
}

func TestDatasetCacheNilSafety(t *testing.T) {
	ctx := context.Background()
	userID, id := uuid.New(), uuid.New()

	var nilCache *DatasetCache
	assert.Nil(t, nilCache.Get(ctx, userID, id))
	nilCache.Set(ctx, userID, id, []byte("x"))
	nilCache.Invalidate(ctx, id)

	disabled := NewDatasetCache(nil)
	assert.Nil(t, disabled.Get(ctx, userID, id))
	disabled.Set(ctx, userID, id, []byte("x"))
	disabled.Invalidate(ctx, id)
}

func TestRegisterOpenTelemetryPlugin(t *testing.T) {
	require.NoError(t, RegisterOpenTelemetryPlugin(nil), "disabled cache is a no-op")

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	require.NoError(t, RegisterOpenTelemetryPlugin(client))

	// Commands still work with the tracing hook installed.
	ctx := context.Background()
	require.NoError(t, client.Set(ctx, "k", "v", 0).Err())
	got, err := client.Get(ctx, "k").Result()
	require.NoError(t, err)
	assert.Equal(t, "v", got)
}
