// Package ratelimit counts requests per key in fixed time windows.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

type Limiter interface {
	// Allow records one hit for key and reports whether it is within the
	// limit for the current window.
	Allow(ctx context.Context, key string) (bool, error)
}

// RedisLimiter shares counters across server instances. Each key's
// counter expires with its window.
type RedisLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
}

func NewRedisLimiter(client *redis.Client, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{client: client, limit: limit, window: window}
}

// Allow increments the counter and sets its expiry in one transaction.
// ExpireNX only sets a TTL on a key that has none, so the window is never
// extended and a key can never be left without one.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	redisKey := "rate_limit:" + key

	var incr *redis.IntCmd
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, redisKey)
		pipe.ExpireNX(ctx, redisKey, l.window)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("incr %s: %w", redisKey, err)
	}
	return incr.Val() <= int64(l.limit), nil
}

// MemoryLimiter keeps counters in process. Used when no Redis is
// configured.
type MemoryLimiter struct {
	cache  *cache.Cache
	limit  int
	window time.Duration
	now    func() time.Time
}

func NewMemoryLimiter(limit int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		cache:  cache.New(window, 2*window),
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

// WithClock replaces the time source. Intended for tests.
func (l *MemoryLimiter) WithClock(now func() time.Time) *MemoryLimiter {
	l.now = now
	return l
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	bucket := fmt.Sprintf("%s:%d", key, l.now().UnixNano()/int64(l.window))

	// Add fails when the bucket already exists, which is fine.
	_ = l.cache.Add(bucket, int64(0), l.window)
	count, err := l.cache.IncrementInt64(bucket, 1)
	if err != nil {
		return false, err
	}
	return count <= int64(l.limit), nil
}
