package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const lowStockKey = "meridian:inventory:lowstock"

// LowStockCache holds a short-lived snapshot of products at or below
// their reorder point. The background scan refreshes it on a schedule;
// reads fall back to the database on a miss.
type LowStockCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewLowStockCache returns a cache bound to the given client.
func NewLowStockCache(client *redis.Client, ttl time.Duration) *LowStockCache {
	return &LowStockCache{client: client, ttl: ttl}
}

// Get returns the cached snapshot, or (nil, false) on a miss.
func (c *LowStockCache) Get(ctx context.Context) ([]ProductWithStock, bool, error) {
	if c == nil || c.client == nil {
		return nil, false, nil
	}
	raw, err := c.client.Get(ctx, lowStockKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	var products []ProductWithStock
	if err := json.Unmarshal(raw, &products); err != nil {
		return nil, false, err
	}
	return products, true, nil
}

// Set stores the snapshot with the configured TTL.
func (c *LowStockCache) Set(ctx context.Context, products []ProductWithStock) error {
	if c == nil || c.client == nil {
		return nil
	}
	raw, err := json.Marshal(products)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, lowStockKey, raw, c.ttl).Err()
}

// Invalidate drops the snapshot, forcing the next read to hit the database.
func (c *LowStockCache) Invalidate(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Del(ctx, lowStockKey).Err()
}
