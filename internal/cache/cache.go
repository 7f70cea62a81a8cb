// Package cache provides a small key-value cache abstraction with TTL
// expiry, used for serving computed aggregates without re-running their
// queries on every request.
package cache

import (
	"context"
	"time"
)

// Cache stores opaque byte values under string keys for a bounded time.
// A miss is reported through the boolean, not an error; errors are reserved
// for backend failures.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}
