package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hszk-dev/imdb-watchlist/internal/domain/repository"
)

// RedisStore implements repository.KeyValueStore using Redis as the backing store.
// Every connectivity or protocol failure is reported as repository.ErrStorageUnavailable
// so the failover selector can route around it.
type RedisStore struct {
	client *redis.Client
}

// Compile-time verification that RedisStore implements repository.KeyValueStore.
var _ repository.KeyValueStore = (*RedisStore)(nil)

// NewRedisStore creates a new Redis-backed key-value store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{
		client: client,
	}
}

// Get retrieves a value from Redis.
// Returns nil, nil on cache miss.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil // Cache miss
		}
		return nil, unavailable("redis get", err)
	}
	return data, nil
}

// Set stores a value in Redis with the specified TTL. A zero TTL keeps the key forever.
func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return unavailable("redis set", err)
	}
	return nil
}

// Delete removes a key from Redis.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return unavailable("redis del", err)
	}
	return nil
}

// Increment bumps a counter and starts its expiry on the first increment.
func (s *RedisStore) Increment(ctx context.Context, key string, window time.Duration) (int64, error) {
	n, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, unavailable("redis incr", err)
	}
	if n == 1 {
		if err := s.client.PExpire(ctx, key, window).Err(); err != nil {
			return 0, unavailable("redis pexpire", err)
		}
	}
	return n, nil
}

// Ping verifies the Redis connection is alive.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return unavailable("redis ping", err)
	}
	return nil
}

// Stats describes the Redis connection pool and keyspace.
type Stats struct {
	Keys       int64  `json:"keys"`
	Hits       uint32 `json:"hits"`
	Misses     uint32 `json:"misses"`
	Timeouts   uint32 `json:"timeouts"`
	TotalConns uint32 `json:"totalConns"`
	IdleConns  uint32 `json:"idleConns"`
	StaleConns uint32 `json:"staleConns"`
}

// Stats returns pool statistics and the number of keys in the selected database.
func (s *RedisStore) Stats(ctx context.Context) (Stats, error) {
	keys, err := s.client.DBSize(ctx).Result()
	if err != nil {
		return Stats{}, unavailable("redis dbsize", err)
	}
	p := s.client.PoolStats()
	return Stats{
		Keys:       keys,
		Hits:       p.Hits,
		Misses:     p.Misses,
		Timeouts:   p.Timeouts,
		TotalConns: p.TotalConns,
		IdleConns:  p.IdleConns,
		StaleConns: p.StaleConns,
	}, nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, repository.ErrStorageUnavailable, err)
}
