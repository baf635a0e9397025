package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store for development and tests.
// Entries are copied on the way in and out.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]CacheEntry
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]CacheEntry),
	}
}

// FindByKey returns a copy of the entry for key or ErrCacheMiss.
func (s *MemoryStore) FindByKey(ctx context.Context, key string) (*CacheEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	defer observeStoreOp(BackendMemory, "get", time.Now())

	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()

	if !ok {
		return nil, ErrCacheMiss
	}
	entry.Payload = append([]byte(nil), entry.Payload...)
	return &entry, nil
}

// UpsertByKey stores a copy of entry under key.
func (s *MemoryStore) UpsertByKey(ctx context.Context, key string, entry *CacheEntry) error {
	if entry == nil {
		return errNilEntry
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	defer observeStoreOp(BackendMemory, "upsert", time.Now())

	stored := *entry
	stored.Payload = append([]byte(nil), entry.Payload...)

	s.mu.Lock()
	s.entries[key] = stored
	s.mu.Unlock()

	CacheWrites.WithLabelValues(BackendMemory).Inc()
	return nil
}

// DeleteOlderThan removes entries last refreshed before threshold.
func (s *MemoryStore) DeleteOlderThan(ctx context.Context, threshold time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	defer observeStoreOp(BackendMemory, "sweep", time.Now())

	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64
	for key, entry := range s.entries {
		if entry.UpdatedAt.Before(threshold) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed, nil
}

// Ping always succeeds.
func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Len returns the number of stored entries.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
