package stats

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/achievehub/achievehub/internal/platform/cache"
)

const (
	// DefaultCacheKey is the Redis key holding the statistics snapshot.
	DefaultCacheKey = "achievehub:stats:v1"
	// DefaultGenerationKey counts invalidations. A snapshot is only served
	// while it carries the current generation.
	DefaultGenerationKey = "achievehub:stats:generation"
)

// RedisCache keeps the statistics snapshot in Redis as JSON.
type RedisCache struct {
	client redis.Cmdable
	key    string
	genKey string
	ttl    time.Duration
}

type cacheEntry struct {
	Generation int64      `json:"generation"`
	Statistics Statistics `json:"statistics"`
}

// NewRedisCache constructs a RedisCache. A non-positive ttl defaults to one
// minute.
func NewRedisCache(client redis.Cmdable, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &RedisCache{client: client, key: DefaultCacheKey, genKey: DefaultGenerationKey, ttl: ttl}
}

// Generation implements Cache.
func (c *RedisCache) Generation(ctx context.Context) (int64, error) {
	gen, err := c.client.Get(ctx, c.genKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("stats: read cache generation: %w", err)
	}
	return gen, nil
}

// Get implements Cache. The snapshot is read before the generation so an
// invalidation racing the read always turns it into a miss.
func (c *RedisCache) Get(ctx context.Context) (Statistics, bool, error) {
	var entry cacheEntry
	ok, err := cache.GetJSON(ctx, c.client, c.key, &entry)
	if err != nil || !ok {
		return Statistics{}, false, err
	}
	gen, err := c.Generation(ctx)
	if err != nil {
		return Statistics{}, false, err
	}
	if entry.Generation != gen {
		return Statistics{}, false, nil
	}
	return entry.Statistics, true, nil
}

// Set implements Cache.
func (c *RedisCache) Set(ctx context.Context, gen int64, s Statistics) error {
	return cache.SetJSON(ctx, c.client, c.key, cacheEntry{Generation: gen, Statistics: s}, c.ttl)
}

// Invalidate implements Cache.
func (c *RedisCache) Invalidate(ctx context.Context) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, c.genKey)
		pipe.Del(ctx, c.key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("stats: invalidate cache: %w", err)
	}
	return nil
}
