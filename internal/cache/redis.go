package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pairmatch/ledger/internal/config"
)

// counterTTL bounds staleness of cached counters; reads refresh it.
const counterTTL = time.Hour

type RedisCache struct {
	Client *redis.Client
}

// NewRedisCache initializes Redis client from config.
// Only Addr is mandatory, Password/DB are optional.
func NewRedisCache(cfg *config.Config) *RedisCache {
	opts := &redis.Options{
		Addr: cfg.Redis.Addr,
	}
	if cfg.Redis.Password != "" {
		opts.Password = cfg.Redis.Password
	}
	if cfg.Redis.DB != 0 {
		opts.DB = cfg.Redis.DB
	}
	return &RedisCache{Client: redis.NewClient(opts)}
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.Client.Ping(ctx).Err()
}

func (c *RedisCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return c.Client.Set(ctx, key, value, ttl).Err()
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, error) {
	return c.Client.Get(ctx, key).Result()
}

func (c *RedisCache) Del(ctx context.Context, key string) error {
	return c.Client.Del(ctx, key).Err()
}

func (c *RedisCache) Incr(ctx context.Context, key string) (int64, error) {
	return c.Client.Incr(ctx, key).Result()
}

// KeyForLikeCount generates the Redis key for an identity's liked-you count.
func (c *RedisCache) KeyForLikeCount(receiver string) string {
	return fmt.Sprintf("likes:count:%s", receiver)
}

// UpdateLikeCount stores the count with a fresh TTL.
func (c *RedisCache) UpdateLikeCount(ctx context.Context, receiver string, count int64) error {
	return c.Client.Set(ctx, c.KeyForLikeCount(receiver), count, counterTTL).Err()
}

// GetLikeCount reads the cached count. A cache miss returns (0, false, nil)
// so callers fall back to the store.
func (c *RedisCache) GetLikeCount(ctx context.Context, receiver string) (int64, bool, error) {
	key := c.KeyForLikeCount(receiver)
	val, err := c.Client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	} else if err != nil {
		return 0, false, err
	}
	// refresh TTL on access
	_ = c.Client.Expire(ctx, key, counterTTL).Err()
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, false, err
	}
	return n, true, nil
}

// BumpLikeCount increments the cached count after a successful like write
// and refreshes the TTL. Best-effort: callers ignore failures, the DB is
// the source of truth.
func (c *RedisCache) BumpLikeCount(ctx context.Context, receiver string) {
	key := c.KeyForLikeCount(receiver)
	if _, err := c.Client.Incr(ctx, key).Result(); err != nil {
		return
	}
	_ = c.Client.Expire(ctx, key, counterTTL).Err()
}
