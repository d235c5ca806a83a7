// Package cache provides a Redis-backed cache for rendered post payloads.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func postKey(slug string) string {
	return "post:" + slug
}

// GetPost retrieves a cached post payload by slug. A cache miss returns
// (nil, nil).
func (c *RedisCache) GetPost(ctx context.Context, slug string) ([]byte, error) {
	data, err := c.client.Get(ctx, postKey(slug)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get from cache: %w", err)
	}
	return data, nil
}

// SetPost stores a post payload under its slug with the configured TTL.
func (c *RedisCache) SetPost(ctx context.Context, slug string, payload []byte) error {
	if err := c.client.Set(ctx, postKey(slug), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set cache: %w", err)
	}
	return nil
}

// InvalidatePost removes a post payload from cache. Called on every write
// that changes the post or its comments.
func (c *RedisCache) InvalidatePost(ctx context.Context, slug string) error {
	if err := c.client.Del(ctx, postKey(slug)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate cache: %w", err)
	}
	return nil
}

// Ping checks if Redis is available
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
