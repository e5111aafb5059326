package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisWindowLimiter is a fixed-window limiter backed by a shared Redis
// counter, so every service instance sees the same per-key count. The
// counter key embeds the window start, and INCR plus a one-window expiry
// keeps Redis memory bounded without a cleanup pass.
type RedisWindowLimiter struct {
	client     *redis.Client
	windowSize time.Duration
	limit      int
	keyPrefix  string
}

// NewRedisWindowLimiter creates a Redis-backed fixed-window limiter
func NewRedisWindowLimiter(client *redis.Client, windowSize time.Duration, limit int) *RedisWindowLimiter {
	return &RedisWindowLimiter{
		client:     client,
		windowSize: windowSize,
		limit:      limit,
		keyPrefix:  "ratelimit:refresh",
	}
}

// Allow checks whether a request for the given key should be admitted
func (l *RedisWindowLimiter) Allow(ctx context.Context, key string) (bool, error) {
	windowStart := time.Now().Truncate(l.windowSize).Unix()
	counterKey := fmt.Sprintf("%s:%s:%d", l.keyPrefix, key, windowStart)

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, counterKey)
	pipe.Expire(ctx, counterKey, l.windowSize)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("failed to increment rate limit counter: %w", err)
	}

	return incr.Val() <= int64(l.limit), nil
}
