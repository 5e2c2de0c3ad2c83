package devicehealth

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultCacheTTL is how long a cached report stays fresh.
const DefaultCacheTTL = 15 * time.Minute

const cacheKeyPrefix = "devicehealth:"

// RedisCache decorates a Provider with a Redis read-through cache.
// BypassCache skips the read but still refreshes the cached entry.
type RedisCache struct {
	inner  Provider
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache wraps a provider with a Redis cache.
func NewRedisCache(inner Provider, client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &RedisCache{inner: inner, client: client, ttl: ttl}
}

func (c *RedisCache) Fetch(ctx context.Context, deviceID string, opts FetchOptions) (*Report, error) {
	key := cacheKeyPrefix + deviceID

	if !opts.BypassCache {
		raw, err := c.client.Get(ctx, key).Bytes()
		if err == nil {
			var report Report
			if jsonErr := json.Unmarshal(raw, &report); jsonErr == nil {
				return &report, nil
			}
			// Corrupt entry: fall through to a fresh fetch.
		}
	}

	report, err := c.inner.Fetch(ctx, deviceID, opts)
	if err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(report); err == nil {
		// Cache write failures are not fatal; the report is already in hand.
		_ = c.client.Set(ctx, key, raw, c.ttl).Err()
	}
	return report, nil
}
