package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	appErrors "github.com/noah-isme/chronos/pkg/errors"
)

// RedisKVRepository stores entries in Redis under a shared key prefix.
type RedisKVRepository struct {
	client *redis.Client
	prefix string
	logger *zap.Logger
}

// NewRedisKVRepository constructs a Redis backed store.
func NewRedisKVRepository(client *redis.Client, prefix string, logger *zap.Logger) *RedisKVRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisKVRepository{client: client, prefix: prefix, logger: logger}
}

// Get returns the raw value for key or ErrCacheMiss.
func (r *RedisKVRepository) Get(ctx context.Context, key string) ([]byte, error) {
	if r.client == nil {
		return nil, appErrors.ErrCacheMiss
	}

	raw, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, appErrors.ErrCacheMiss
		}
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return raw, nil
}

// Set stores value with the given TTL. Redis expires entries on its own.
func (r *RedisKVRepository) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if r.client == nil {
		return nil
	}

	if err := r.client.Set(ctx, r.prefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Delete removes key.
func (r *RedisKVRepository) Delete(ctx context.Context, key string) error {
	if r.client == nil {
		return nil
	}
	if err := r.client.Del(ctx, r.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis delete %s: %w", key, err)
	}
	return nil
}

// DeleteByPattern removes entries whose unprefixed key matches pattern.
func (r *RedisKVRepository) DeleteByPattern(ctx context.Context, pattern string) (int64, error) {
	if r.client == nil {
		return 0, nil
	}

	var removed int64
	iter := r.client.Scan(ctx, 0, r.prefix+pattern, 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		if err := r.client.Del(ctx, key).Err(); err != nil {
			return removed, fmt.Errorf("redis delete %s: %w", key, err)
		}
		removed++
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("redis scan pattern %s: %w", pattern, err)
	}
	return removed, nil
}

// PurgeExpired is a no-op because Redis evicts expired keys itself.
func (r *RedisKVRepository) PurgeExpired(ctx context.Context) (int64, error) {
	return 0, nil
}

// Close releases the underlying Redis connection if present.
func (r *RedisKVRepository) Close() error {
	if r.client == nil {
		return nil
	}
	return r.client.Close()
}
