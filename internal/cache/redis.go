package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Aaditya1273/TrustGraphV7/internal/ranking"
)

const snapshotKey = "trustgraph:ranking:snapshot"

// RedisCache shares the snapshot between instances.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	key    string
}

// NewRedisClient parses url and checks connectivity. An empty url returns
// nil, nil so callers can treat Redis as optional.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	if url == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// NewRedisCache wraps client. ttl bounds staleness if an invalidation is
// ever missed; zero means no expiry.
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl, key: snapshotKey}
}

func (c *RedisCache) Get(ctx context.Context) (*ranking.Snapshot, bool, error) {
	data, err := c.client.Get(ctx, c.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}
	var snap ranking.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, false, fmt.Errorf("decode snapshot: %w", err)
	}
	return &snap, true, nil
}

func (c *RedisCache) Set(ctx context.Context, snap *ranking.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return c.client.Set(ctx, c.key, data, c.ttl).Err()
}

func (c *RedisCache) Invalidate(ctx context.Context) error {
	return c.client.Del(ctx, c.key).Err()
}
