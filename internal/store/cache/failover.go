package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// FailoverStore wraps a shared Store and downgrades to an in-process
// MemoryStore the first time the shared store errors. The downgrade is
// permanent for the process lifetime; a flapping shared store is worse
// than a working local one. Cache misses, lock timeouts and caller
// cancellation are normal outcomes and never trigger the downgrade.
type FailoverStore struct {
	primary  Store
	local    *MemoryStore
	logger   *zap.Logger
	degraded atomic.Bool
	logOnce  sync.Once
}

func NewFailoverStore(primary Store, logger *zap.Logger) *FailoverStore {
	return &FailoverStore{
		primary: primary,
		local:   NewMemoryStore(),
		logger:  logger,
	}
}

// Degraded reports whether the store has fallen back to local-only mode.
func (f *FailoverStore) Degraded() bool {
	return f.degraded.Load()
}

func (f *FailoverStore) Get(ctx context.Context, key string, dest any) error {
	if f.degraded.Load() {
		return f.local.Get(ctx, key, dest)
	}
	err := f.primary.Get(ctx, key, dest)
	if f.isStoreFailure(ctx, err) {
		f.degrade(err)
		return f.local.Get(ctx, key, dest)
	}
	return err
}

func (f *FailoverStore) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if f.degraded.Load() {
		return f.local.Set(ctx, key, value, ttl)
	}
	err := f.primary.Set(ctx, key, value, ttl)
	if f.isStoreFailure(ctx, err) {
		f.degrade(err)
		return f.local.Set(ctx, key, value, ttl)
	}
	return err
}

func (f *FailoverStore) Delete(ctx context.Context, key string) error {
	if f.degraded.Load() {
		return f.local.Delete(ctx, key)
	}
	err := f.primary.Delete(ctx, key)
	if f.isStoreFailure(ctx, err) {
		f.degrade(err)
		return f.local.Delete(ctx, key)
	}
	return err
}

func (f *FailoverStore) Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error) {
	if f.degraded.Load() {
		return f.local.Acquire(ctx, key, ttl)
	}
	lease, err := f.primary.Acquire(ctx, key, ttl)
	if f.isStoreFailure(ctx, err) {
		f.degrade(err)
		return f.local.Acquire(ctx, key, ttl)
	}
	return lease, err
}

func (f *FailoverStore) isStoreFailure(ctx context.Context, err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrCacheMiss) || errors.Is(err, ErrLockTimeout) {
		return false
	}
	if ctx.Err() != nil {
		return false
	}
	return true
}

func (f *FailoverStore) degrade(err error) {
	f.degraded.Store(true)
	f.logOnce.Do(func() {
		f.logger.Warn("shared store unavailable, falling back to in-process cache",
			zap.Error(err))
	})
}
