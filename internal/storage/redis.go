package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/compounding/growth-backend/internal/insight"
	"github.com/redis/go-redis/v9"
)

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// RedisInsightCache implements insight.Cache using Redis.
// Insights are stored as JSON with a TTL for automatic cleanup.
type RedisInsightCache struct {
	client *redis.Client
	ttl    time.Duration // Time-to-live for entries (0 = no expiration)
}

// NewRedisInsightCache connects to Redis and verifies the connection.
func NewRedisInsightCache(ctx context.Context, cfg RedisConfig, ttl time.Duration) (*RedisInsightCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisInsightCacheFromClient(client, ttl), nil
}

// NewRedisInsightCacheFromClient wraps an existing client
func NewRedisInsightCacheFromClient(client *redis.Client, ttl time.Duration) *RedisInsightCache {
	return &RedisInsightCache{
		client: client,
		ttl:    ttl,
	}
}

// Get retrieves an insight from Redis.
func (c *RedisInsightCache) Get(ctx context.Context, key string) (insight.Insight, bool, error) {
	data, err := c.client.Get(ctx, redisKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return insight.Insight{}, false, nil
		}
		return insight.Insight{}, false, fmt.Errorf("failed to get insight: %w", err)
	}

	var ins insight.Insight
	if err := json.Unmarshal(data, &ins); err != nil {
		return insight.Insight{}, false, fmt.Errorf("failed to unmarshal insight: %w", err)
	}

	return ins, true, nil
}

// Set stores an insight in Redis.
func (c *RedisInsightCache) Set(ctx context.Context, key string, ins insight.Insight) error {
	data, err := json.Marshal(ins)
	if err != nil {
		return fmt.Errorf("failed to marshal insight: %w", err)
	}

	if err := c.client.Set(ctx, redisKey(key), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store insight: %w", err)
	}

	return nil
}

// Close closes the Redis client
func (c *RedisInsightCache) Close() error {
	return c.client.Close()
}

// redisKey namespaces cache keys
func redisKey(key string) string {
	return fmt.Sprintf("growth:%s", key)
}
