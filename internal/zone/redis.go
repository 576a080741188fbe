package zone

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nerrad567/safewalk-core/internal/geo"
)

// RedisKey holds the JSON-encoded zone list.
const RedisKey = "safewalk:zones"

// RedisCache is a read-through cache in front of another Repository. A miss
// or any Redis error falls through to the backing repository.
type RedisCache struct {
	client *redis.Client
	next   Repository
	ttl    time.Duration
	logger Logger
}

// NewRedisCache wraps next with a shared Redis cache.
func NewRedisCache(client *redis.Client, next Repository, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, next: next, ttl: ttl, logger: noopLogger{}}
}

// SetLogger sets the logger for cache errors.
func (c *RedisCache) SetLogger(logger Logger) {
	c.logger = logger
}

// ListRedZones returns cached zones, filling the cache on a miss.
func (c *RedisCache) ListRedZones(ctx context.Context) ([]geo.Zone, error) {
	raw, err := c.client.Get(ctx, RedisKey).Bytes()
	switch {
	case err == nil:
		var zones []geo.Zone
		if jsonErr := json.Unmarshal(raw, &zones); jsonErr == nil {
			return zones, nil
		}
		c.logger.Warn("discarding corrupt zone cache entry")
	case errors.Is(err, redis.Nil):
	default:
		c.logger.Warn("zone cache read failed", "error", err)
	}

	zones, err := c.next.ListRedZones(ctx)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(zones)
	if err != nil {
		return nil, fmt.Errorf("encoding zones for cache: %w", err)
	}
	if err := c.client.Set(ctx, RedisKey, payload, c.ttl).Err(); err != nil {
		c.logger.Warn("zone cache write failed", "error", err)
	}
	return zones, nil
}

// Invalidate drops the cached list.
func (c *RedisCache) Invalidate(ctx context.Context) error {
	if err := c.client.Del(ctx, RedisKey).Err(); err != nil {
		return fmt.Errorf("invalidating zone cache: %w", err)
	}
	return nil
}

// Connect opens a Redis client and verifies it with PING.
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close() //nolint:errcheck // best effort on failed connect
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return client, nil
}
