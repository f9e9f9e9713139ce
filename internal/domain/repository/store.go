package repository

import (
	"context"
	"time"
)

// KeyValueStore defines the storage backend used for watchlist cache entries,
// rate limit counters and small runtime settings.
// Implementations: Redis (primary), in-process map (fallback) and the failover selector.
type KeyValueStore interface {
	// Get returns the stored value.
	// Returns nil, nil if the key does not exist.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key, replacing any previous value atomically.
	// A zero ttl stores the value without expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Increment atomically adds one to the counter at key and returns the new value.
	// The counter expires after window, starting from its first increment.
	Increment(ctx context.Context, key string, window time.Duration) (int64, error)

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error
}
