// Package ratelimit provides the shared, Redis-backed rate limiter buckets used
// by the device-linking flow.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/quillwire/devlink/core"
	"github.com/quillwire/devlink/ports"
	"github.com/redis/go-redis/v9"
)

// Bucket names for the two device-linking limiters.
const (
	BucketAllocateDevice = "allocateDevice"
	BucketVerifyDevice   = "verifyDevice"
)

// RedisRateLimiter is a fixed-window limiter over a shared Redis instance. Each
// (bucket, key) pair gets its own counter that expires at the end of its window.
type RedisRateLimiter struct {
	client *redis.Client
	bucket string
	max    int64
	window time.Duration
}

// NewRedisRateLimiter creates a limiter admitting at most max attempts per key
// within each window for the named bucket.
func NewRedisRateLimiter(client *redis.Client, bucket string, max int, window time.Duration) ports.RateLimiter {
	return &RedisRateLimiter{
		client: client,
		bucket: bucket,
		max:    int64(max),
		window: window,
	}
}

// Validate admits the attempt or returns *core.RateLimitError with the window's
// remaining time as the retry hint.
func (l *RedisRateLimiter) Validate(ctx context.Context, key uuid.UUID) error {
	counterKey := fmt.Sprintf("rateLimit::%s::%s", l.bucket, key)

	count, err := l.client.Incr(ctx, counterKey).Result()
	if err != nil {
		return fmt.Errorf("failed to increment rate limit counter: %w", err)
	}

	if count == 1 {
		if err := l.client.Expire(ctx, counterKey, l.window).Err(); err != nil {
			return fmt.Errorf("failed to set rate limit window: %w", err)
		}
	}

	if count > l.max {
		retryAfter, err := l.client.TTL(ctx, counterKey).Result()
		if err != nil || retryAfter < 0 {
			retryAfter = 0
		}

		return &core.RateLimitError{RetryAfter: retryAfter}
	}

	return nil
}
