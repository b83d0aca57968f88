package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	type payload struct {
		Poem  string `json:"poem"`
		Model string `json:"model"`
	}

	require.NoError(t, store.Set(ctx, "k1", payload{Poem: "dawn", Model: "gpt-5-mini"}, time.Minute))

	var got payload
	require.NoError(t, store.Get(ctx, "k1", &got))
	assert.Equal(t, "dawn", got.Poem)
	assert.Equal(t, "gpt-5-mini", got.Model)
}

func TestMemoryStoreMissAndExpiry(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	var dest string
	assert.ErrorIs(t, store.Get(ctx, "absent", &dest), ErrCacheMiss)

	require.NoError(t, store.Set(ctx, "short", "v", -time.Second))
	assert.ErrorIs(t, store.Get(ctx, "short", &dest), ErrCacheMiss)
}

func TestMemoryStoreDelete(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.Set(ctx, "k", "v", time.Minute))
	require.NoError(t, store.Delete(ctx, "k"))

	var dest string
	assert.ErrorIs(t, store.Get(ctx, "k", &dest), ErrCacheMiss)
}

func TestMemoryLockerMutualExclusion(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	lease, err := store.Acquire(ctx, "minute", time.Second)
	require.NoError(t, err)

	// A second acquire on the same key should wait and time out.
	waitCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err = store.Acquire(waitCtx, "minute", time.Second)
	assert.ErrorIs(t, err, ErrLockTimeout)

	// Independent keys are unaffected.
	other, err := store.Acquire(ctx, "other-minute", time.Second)
	require.NoError(t, err)
	require.NoError(t, other.Release(ctx))

	require.NoError(t, lease.Release(ctx))

	// After release the key is free again.
	lease2, err := store.Acquire(ctx, "minute", time.Second)
	require.NoError(t, err)
	require.NoError(t, lease2.Release(ctx))
	// Double release is a no-op.
	require.NoError(t, lease2.Release(ctx))
}

// flakyStore fails every call with a fixed error.
type flakyStore struct {
	err error
}

func (s *flakyStore) Get(ctx context.Context, key string, dest any) error { return s.err }
func (s *flakyStore) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	return s.err
}
func (s *flakyStore) Delete(ctx context.Context, key string) error { return s.err }
func (s *flakyStore) Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error) {
	return nil, s.err
}

func TestFailoverDowngradesOnStoreError(t *testing.T) {
	ctx := context.Background()
	f := NewFailoverStore(&flakyStore{err: errors.New("connection refused")}, zap.NewNop())

	require.False(t, f.Degraded())

	// First failure flips to the local store and serves the call from it.
	require.NoError(t, f.Set(ctx, "k", "v", time.Minute))
	assert.True(t, f.Degraded())

	var got string
	require.NoError(t, f.Get(ctx, "k", &got))
	assert.Equal(t, "v", got)
}

func TestFailoverIgnoresMissAndLockTimeout(t *testing.T) {
	ctx := context.Background()

	f := NewFailoverStore(&flakyStore{err: ErrCacheMiss}, zap.NewNop())
	var dest string
	assert.ErrorIs(t, f.Get(ctx, "k", &dest), ErrCacheMiss)
	assert.False(t, f.Degraded())

	f = NewFailoverStore(&flakyStore{err: ErrLockTimeout}, zap.NewNop())
	_, err := f.Acquire(ctx, "k", time.Second)
	assert.ErrorIs(t, err, ErrLockTimeout)
	assert.False(t, f.Degraded())
}

func TestFailoverIgnoresCallerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := NewFailoverStore(&flakyStore{err: context.Canceled}, zap.NewNop())
	var dest string
	require.Error(t, f.Get(ctx, "k", &dest))
	assert.False(t, f.Degraded())
}
