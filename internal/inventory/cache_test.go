package inventory

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*LowStockCache, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewLowStockCache(client, time.Minute), srv
}

func TestLowStockCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	cache, _ := newTestCache(t)

	_, ok, err := cache.Get(ctx)
	require.NoError(t, err)
	require.False(t, ok)

	snapshot := []ProductWithStock{
		{Product: Product{ID: 1, SKU: "WID-001", Name: "Widget"}, OnHand: 2, ReorderPoint: 10},
	}
	require.NoError(t, cache.Set(ctx, snapshot))

	got, ok, err := cache.Get(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, got, 1)
	require.Equal(t, "WID-001", got[0].SKU)
	require.EqualValues(t, 2, got[0].OnHand)
}

func TestLowStockCacheExpires(t *testing.T) {
	ctx := context.Background()
	cache, srv := newTestCache(t)

	require.NoError(t, cache.Set(ctx, []ProductWithStock{{Product: Product{ID: 1}}}))
	srv.FastForward(2 * time.Minute)

	_, ok, err := cache.Get(ctx)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestLowStockCacheInvalidate(t *testing.T) {
	ctx := context.Background()
	cache, _ := newTestCache(t)

	require.NoError(t, cache.Set(ctx, []ProductWithStock{{Product: Product{ID: 1}}}))
	require.NoError(t, cache.Invalidate(ctx))

	_, ok, err := cache.Get(ctx)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestLowStockCacheNilClientIsNoop(t *testing.T) {
	ctx := context.Background()
	var cache *LowStockCache

	_, ok, err := cache.Get(ctx)
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, cache.Set(ctx, nil))
	require.NoError(t, cache.Invalidate(ctx))
}
