// Package cache provides a Redis-backed price cache. All operations are
// nil-safe: without a configured client every read is a miss and every write
// is a no-op, so callers never branch on whether caching is enabled.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"

	"custodia/internal/logger"
)

const keyPrefix = "custodia:"

// Connect opens a Redis client and verifies the connection.
func Connect(addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// PriceCache caches current asset prices under asset:<id>:price keys.
// Cache failures degrade to misses; callers fall back to the database price.
type PriceCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewPriceCache creates a price cache. A nil client disables caching.
func NewPriceCache(client *redis.Client, ttl time.Duration) *PriceCache {
	return &PriceCache{client: client, ttl: ttl}
}

// Enabled reports whether a Redis client is configured.
func (c *PriceCache) Enabled() bool {
	return c != nil && c.client != nil
}

// GetPrice returns the cached price for an asset, or false on a miss.
func (c *PriceCache) GetPrice(ctx context.Context, assetID string) (decimal.Decimal, bool) {
	if !c.Enabled() {
		return decimal.Zero, false
	}

	val, err := c.client.Get(ctx, priceKey(assetID)).Result()
	if err == redis.Nil {
		return decimal.Zero, false
	}
	if err != nil {
		logger.Get().Warnw("price cache read failed", "asset_id", assetID, "error", err)
		return decimal.Zero, false
	}

	price, err := decimal.NewFromString(val)
	if err != nil {
		logger.Get().Warnw("price cache held a malformed value", "asset_id", assetID, "value", val)
		return decimal.Zero, false
	}
	return price, true
}

// SetPrice stores the current price for an asset with the configured TTL.
func (c *PriceCache) SetPrice(ctx context.Context, assetID string, price decimal.Decimal) {
	if !c.Enabled() {
		return
	}
	if err := c.client.Set(ctx, priceKey(assetID), price.String(), c.ttl).Err(); err != nil {
		logger.Get().Warnw("price cache write failed", "asset_id", assetID, "error", err)
	}
}

// InvalidatePrice drops the cached price for an asset.
func (c *PriceCache) InvalidatePrice(ctx context.Context, assetID string) {
	if !c.Enabled() {
		return
	}
	if err := c.client.Del(ctx, priceKey(assetID)).Err(); err != nil {
		logger.Get().Warnw("price cache invalidation failed", "asset_id", assetID, "error", err)
	}
}

// Close releases the underlying client.
func (c *PriceCache) Close() error {
	if !c.Enabled() {
		return nil
	}
	return c.client.Close()
}

func priceKey(assetID string) string {
	return fmt.Sprintf("%sasset:%s:price", keyPrefix, assetID)
}
