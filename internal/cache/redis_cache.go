// Package cache provides a Redis read-through cache for composed contract
// trees. The cache is best-effort: every miss or Redis failure falls back to
// the database, and every contract-scoped write invalidates the entry.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrMiss is returned when no cached tree exists for the contract.
var ErrMiss = errors.New("cache miss")

type ContractCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// New creates a Redis-backed contract tree cache.
func New(redisURL string, ttl time.Duration) (*ContractCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &ContractCache{client: client, prefix: "contract:", ttl: ttl}, nil
}

// NewWithClient creates a cache from an existing Redis client.
func NewWithClient(client *redis.Client, ttl time.Duration) *ContractCache {
	return &ContractCache{client: client, prefix: "contract:", ttl: ttl}
}

func (c *ContractCache) key(contractID string) string {
	return c.prefix + contractID
}

// Get unmarshals the cached tree for contractID into target. Returns ErrMiss
// when the entry is absent or expired.
func (c *ContractCache) Get(ctx context.Context, contractID string, target any) error {
	payload, err := c.client.Get(ctx, c.key(contractID)).Result()
	if err == redis.Nil {
		return ErrMiss
	}
	if err != nil {
		return fmt.Errorf("cache get: %w", err)
	}
	if err := json.Unmarshal([]byte(payload), target); err != nil {
		return fmt.Errorf("cache decode: %w", err)
	}
	return nil
}

// Set stores the tree under the contract's key with the configured TTL.
func (c *ContractCache) Set(ctx context.Context, contractID string, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache encode: %w", err)
	}
	if err := c.client.Set(ctx, c.key(contractID), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

// Invalidate drops the cached tree for contractID.
func (c *ContractCache) Invalidate(ctx context.Context, contractID string) error {
	if err := c.client.Del(ctx, c.key(contractID)).Err(); err != nil {
		return fmt.Errorf("cache invalidate: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (c *ContractCache) Close() error {
	return c.client.Close()
}

// Ping checks if Redis is reachable.
func (c *ContractCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
