// Package cache provides the Redis-backed idempotency store.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds Redis connection settings.
type Config struct {
	Addr     string        `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	Password string        `envconfig:"REDIS_PASSWORD"`
	DB       int           `envconfig:"REDIS_DB" default:"0"`
	KeyTTL   time.Duration `envconfig:"REDIS_IDEMPOTENCY_TTL" default:"24h"`
}

// RedisStore caches payment responses keyed by idempotency key. It
// implements middleware.IdempotencyStore.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates the store and verifies the connection.
func NewRedisStore(ctx context.Context, cfg Config) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return &RedisStore{client: client}, nil
}

// Get returns the cached response for key, if any.
func (r *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := r.client.Get(ctx, redisKey(key)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis GET: %w", err)
	}
	return val, true, nil
}

// Set stores a response under key for ttl.
func (r *RedisStore) Set(ctx context.Context, key string, response []byte, ttl time.Duration) error {
	if err := r.client.Set(ctx, redisKey(key), response, ttl).Err(); err != nil {
		return fmt.Errorf("redis SET: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (r *RedisStore) Close() error {
	return r.client.Close()
}

func redisKey(key string) string {
	return "idempotency:" + key
}
