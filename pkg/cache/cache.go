package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"

	"github.com/tair/commerce-ledger/pkg/logger"
	"github.com/tair/commerce-ledger/pkg/metrics"
)

// Config holds cache connection settings
type Config struct {
	Addr       string
	Password   string
	DB         int
	DefaultTTL time.Duration
}

// Cache is a read-through JSON cache on Redis. A nil *Cache is valid and
// passes every read through to the loader.
type Cache struct {
	client  redis.UniversalClient
	breaker *gobreaker.CircuitBreaker
	ttl     time.Duration
}

// New connects to Redis. It returns nil when no address is configured.
func New(cfg Config) *Cache {
	if cfg.Addr == "" {
		logger.Logger.Warn().Msg("Redis address not configured, cache disabled")
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	logger.Logger.Info().
		Str("addr", cfg.Addr).
		Int("db", cfg.DB).
		Dur("default_ttl", cfg.DefaultTTL).
		Msg("Redis cache initialized")

	return NewWithClient(client, cfg.DefaultTTL)
}

// NewWithClient wraps an existing client
func NewWithClient(client redis.UniversalClient, defaultTTL time.Duration) *Cache {
	if defaultTTL <= 0 {
		defaultTTL = 5 * time.Minute
	}

	settings := gobreaker.Settings{
		Name:        "redis-cache",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Logger.Warn().
				Str("name", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state changed")
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, redis.Nil)
		},
	}

	return &Cache{
		client:  client,
		breaker: gobreaker.NewCircuitBreaker(settings),
		ttl:     defaultTTL,
	}
}

// GetOrSet returns the cached value of key or loads, stores and returns it.
// Store failures never fail the read.
func GetOrSet[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, load func(context.Context) (T, error)) (T, error) {
	if c != nil {
		var cached T
		if c.get(ctx, key, &cached) {
			return cached, nil
		}
	}

	value, err := load(ctx)
	if err != nil {
		return value, err
	}

	if c != nil {
		c.set(ctx, key, value, ttl)
	}
	return value, nil
}

func (c *Cache) get(ctx context.Context, key string, dest interface{}) bool {
	raw, err := c.breaker.Execute(func() (interface{}, error) {
		return c.client.Get(ctx, key).Bytes()
	})
	switch {
	case errors.Is(err, redis.Nil):
		metrics.CacheRequests.WithLabelValues("miss").Inc()
		return false
	case err != nil:
		metrics.CacheRequests.WithLabelValues("error").Inc()
		logger.WithContext(ctx).Warn().Err(err).Str("key", key).Msg("Cache read failed")
		return false
	}

	if err := json.Unmarshal(raw.([]byte), dest); err != nil {
		metrics.CacheRequests.WithLabelValues("error").Inc()
		logger.WithContext(ctx).Warn().Err(err).Str("key", key).Msg("Cache entry undecodable")
		return false
	}

	metrics.CacheRequests.WithLabelValues("hit").Inc()
	return true
}

func (c *Cache) set(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.ttl
	}
	payload, err := json.Marshal(value)
	if err != nil {
		logger.WithContext(ctx).Warn().Err(err).Str("key", key).Msg("Cache value not serializable")
		return
	}

	_, err = c.breaker.Execute(func() (interface{}, error) {
		return nil, c.client.Set(ctx, key, payload, ttl).Err()
	})
	if err != nil {
		logger.WithContext(ctx).Warn().Err(err).Str("key", key).Msg("Cache write failed")
	}
}

// Invalidate deletes keys. Failures are logged, never returned.
func (c *Cache) Invalidate(ctx context.Context, keys ...string) {
	if c == nil || len(keys) == 0 {
		return
	}

	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.client.Del(ctx, keys...).Err()
	})
	c.recordInvalidation(ctx, err, fmt.Sprint(keys))
}

// InvalidatePrefix deletes every key starting with prefix
func (c *Cache) InvalidatePrefix(ctx context.Context, prefix string) {
	if c == nil || prefix == "" {
		return
	}

	_, err := c.breaker.Execute(func() (interface{}, error) {
		var cursor uint64
		for {
			keys, next, err := c.client.Scan(ctx, cursor, prefix+"*", 100).Result()
			if err != nil {
				return nil, err
			}
			if len(keys) > 0 {
				if err := c.client.Del(ctx, keys...).Err(); err != nil {
					return nil, err
				}
			}
			if next == 0 {
				return nil, nil
			}
			cursor = next
		}
	})
	c.recordInvalidation(ctx, err, prefix+"*")
}

func (c *Cache) recordInvalidation(ctx context.Context, err error, target string) {
	if err != nil {
		metrics.CacheInvalidations.WithLabelValues("error").Inc()
		logger.WithContext(ctx).Warn().Err(err).Str("target", target).Msg("Cache invalidation failed")
		return
	}
	metrics.CacheInvalidations.WithLabelValues("ok").Inc()
}

// Ping checks the Redis connection
func (c *Cache) Ping(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.client.Ping(ctx).Err()
}

// Close releases the Redis connection
func (c *Cache) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}
