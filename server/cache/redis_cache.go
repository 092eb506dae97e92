package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const keyPrefix = "probowler:"

type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger

	hits   atomic.Int64
	misses atomic.Int64
}

// NewRedisCache connects to Redis and pings it before returning.
func NewRedisCache(ctx context.Context, addr, password string, db, poolSize int, ttl time.Duration, logger *zap.Logger) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
		PoolSize: poolSize,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis at %s: %w", addr, err)
	}

	logger.Info("Connected to Redis", zap.String("addr", addr), zap.Int("db", db))

	return &RedisCache{
		client: client,
		ttl:    ttl,
		logger: logger,
	}, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value any) error {
	return c.SetWithTTL(ctx, key, value, c.ttl)
}

func (c *RedisCache) SetWithTTL(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode cache value: %w", err)
	}
	return c.client.Set(ctx, keyPrefix+key, data, ttl).Err()
}

func (c *RedisCache) Get(ctx context.Context, key string, dest any) error {
	data, err := c.client.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		c.misses.Add(1)
		return ErrCacheMiss
	}
	if err != nil {
		return fmt.Errorf("redis get failed: %w", err)
	}

	c.hits.Add(1)
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("failed to decode cache value: %w", err)
	}
	return nil
}

func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, keyPrefix+key).Err()
}

func (c *RedisCache) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.client.Exists(ctx, keyPrefix+key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (c *RedisCache) GetStats(ctx context.Context) (*CacheStats, error) {
	stats := &CacheStats{
		Backend: "redis",
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
	}

	if err := c.client.Ping(ctx).Err(); err != nil {
		stats.Info = err.Error()
		return stats, nil
	}
	stats.Connected = true

	size, err := c.client.DBSize(ctx).Result()
	if err != nil {
		return nil, fmt.Errorf("redis dbsize failed: %w", err)
	}
	stats.Items = size

	pool := c.client.PoolStats()
	stats.Info = fmt.Sprintf("ttl=%v,pool_total=%d,pool_idle=%d", c.ttl, pool.TotalConns, pool.IdleConns)
	return stats, nil
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
