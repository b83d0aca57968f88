// Package cache provides the shared minute-cache and the per-key lock
// used to collapse concurrent generations for the same minute.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrCacheMiss is returned by Get when the key is absent or expired.
var ErrCacheMiss = errors.New("cache: miss")

// ErrLockTimeout is returned by Acquire when the lock could not be
// obtained within the caller's deadline. It signals contention, not a
// store failure.
var ErrLockTimeout = errors.New("cache: lock wait timed out")

// Cache is a TTL key-value store. Implementations marshal values on Set
// and unmarshal into dest on Get.
type Cache interface {
	Get(ctx context.Context, key string, dest any) error
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Lease is a held lock. Release is safe to call once; releasing a lease
// that has already expired is a no-op.
type Lease interface {
	Release(ctx context.Context) error
}

// Locker hands out mutual-exclusion leases keyed by string. Acquire
// blocks until the lock is free, the context ends, or the wait budget
// runs out.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error)
}

// Store bundles the cache and the locker so callers wire one dependency.
type Store interface {
	Cache
	Locker
}
