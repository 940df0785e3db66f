package store

import (
	"context"
	"time"
)

// Counter is the minimal contract over the shared counter store.
// Implementations must be safe for concurrent use from many processes; the
// store itself provides atomicity, callers never read-modify-write.
type Counter interface {
	// Increment adds one to key and returns the new value, creating the key
	// with value 1 when absent.
	Increment(ctx context.Context, key string) (int64, error)

	// SetExpiry arms a one-shot expiry on key. Later calls overwrite the
	// remaining TTL, so callers arm it once per window.
	SetExpiry(ctx context.Context, key string, ttl time.Duration) error

	// Ping is a liveness probe.
	Ping(ctx context.Context) error
}

// AtomicCounter increments and arms expiry in a single store-side operation.
// The expiry is armed when the counter is new or carries no TTL, and is never
// re-armed while a TTL is live.
type AtomicCounter interface {
	Counter
	IncrementWithExpiry(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// Inspector reads and removes counters without incrementing them.
type Inspector interface {
	// Get returns the counter value, or 0 when the key does not exist.
	Get(ctx context.Context, key string) (int64, error)

	// TTL returns the remaining time to live. It returns -1 when the key has
	// no expiry and -2 when it does not exist, mirroring Redis.
	TTL(ctx context.Context, key string) (time.Duration, error)

	Delete(ctx context.Context, key string) error
}

const (
	NoExpiry   time.Duration = -1
	KeyMissing time.Duration = -2
)
