package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter is a sliding-window request limiter on Redis. A nil
// *RateLimiter allows everything.
type RateLimiter struct {
	cache       *Cache
	maxRequests int
	window      time.Duration
}

// Decision is the outcome of one limiter check
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	Reset     time.Time
}

// NewRateLimiter returns nil when the cache is disabled or maxRequests is not positive
func NewRateLimiter(c *Cache, maxRequests int, window time.Duration) *RateLimiter {
	if c == nil || maxRequests <= 0 {
		return nil
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{cache: c, maxRequests: maxRequests, window: window}
}

// Allow records one request for identifier and reports whether it fits the window
func (rl *RateLimiter) Allow(ctx context.Context, identifier string) (Decision, error) {
	if rl == nil {
		return Decision{Allowed: true}, nil
	}

	key := "ratelimit:" + identifier
	now := time.Now()
	windowStart := now.Add(-rl.window)

	res, err := rl.cache.breaker.Execute(func() (interface{}, error) {
		pipe := rl.cache.client.Pipeline()
		pipe.ZRemRangeByScore(ctx, key, "0", fmt.Sprintf("%d", windowStart.UnixNano()))
		countCmd := pipe.ZCard(ctx, key)
		pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixNano()), Member: now.UnixNano()})
		pipe.Expire(ctx, key, rl.window+time.Minute)
		if _, err := pipe.Exec(ctx); err != nil {
			return nil, err
		}
		return countCmd.Val(), nil
	})
	if err != nil {
		return Decision{Allowed: true}, err
	}

	count := res.(int64)
	remaining := rl.maxRequests - int(count) - 1
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   count < int64(rl.maxRequests),
		Limit:     rl.maxRequests,
		Remaining: remaining,
		Reset:     now.Add(rl.window),
	}, nil
}
