package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// MemoryStore is the in-process Store used when no shared store is
// configured and as the failover target when one goes away. Single-node
// semantics only.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	locks   map[string]chan struct{}
}

type memoryEntry struct {
	payload   []byte
	expiresAt time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		locks:   make(map[string]chan struct{}),
	}
}

func (m *MemoryStore) Get(ctx context.Context, key string, dest any) error {
	m.mu.Lock()
	entry, ok := m.entries[key]
	if ok && time.Now().After(entry.expiresAt) {
		delete(m.entries, key)
		ok = false
	}
	m.mu.Unlock()

	if !ok {
		return ErrCacheMiss
	}
	if err := json.Unmarshal(entry.payload, dest); err != nil {
		return fmt.Errorf("memory cache decode %q: %w", key, err)
	}
	return nil
}

func (m *MemoryStore) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("memory cache encode %q: %w", key, err)
	}

	m.mu.Lock()
	m.entries[key] = memoryEntry{payload: payload, expiresAt: time.Now().Add(ttl)}
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}

// Acquire implements a per-key binary semaphore. The ttl is ignored
// in-process; leases are released explicitly and a crashed holder takes
// the process with it anyway.
func (m *MemoryStore) Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error) {
	m.mu.Lock()
	sem, ok := m.locks[key]
	if !ok {
		sem = make(chan struct{}, 1)
		m.locks[key] = sem
	}
	m.mu.Unlock()

	select {
	case sem <- struct{}{}:
		return &memoryLease{sem: sem}, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %s", ErrLockTimeout, key)
	}
}

type memoryLease struct {
	sem  chan struct{}
	once sync.Once
}

func (l *memoryLease) Release(ctx context.Context) error {
	l.once.Do(func() { <-l.sem })
	return nil
}
