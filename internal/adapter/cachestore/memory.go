// Package cachestore provides the response cache backing stores: a
// process-local map for single-node setups and a Badger store when cached
// responses must survive restarts.
package cachestore

import (
	"context"
	"strings"
	"sync"
	"time"

	"inquest/internal/domain"
)

// MemoryStore is an in-process CacheStore. Expired entries are dropped
// lazily on read and in bulk by PurgeExpired.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]domain.CacheEntry
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]domain.CacheEntry)}
}

// Get implements domain.CacheStore.
func (s *MemoryStore) Get(_ context.Context, key string) (domain.CacheEntry, bool, error) {
	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()

	if !ok {
		return domain.CacheEntry{}, false, nil
	}
	if entry.Expired(time.Now()) {
		s.mu.Lock()
		// Re-check under the write lock; a concurrent Set may have renewed it.
		if cur, exists := s.entries[key]; exists && cur.Expired(time.Now()) {
			delete(s.entries, key)
		}
		s.mu.Unlock()
		return domain.CacheEntry{}, false, nil
	}
	return entry, true, nil
}

// Set implements domain.CacheStore.
func (s *MemoryStore) Set(_ context.Context, key string, entry domain.CacheEntry) error {
	s.mu.Lock()
	s.entries[key] = entry
	s.mu.Unlock()
	return nil
}

// Delete implements domain.CacheStore.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	return nil
}

// DeletePrefix implements domain.CacheStore.
func (s *MemoryStore) DeletePrefix(_ context.Context, prefix string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for k := range s.entries {
		if strings.HasPrefix(k, prefix) {
			delete(s.entries, k)
			n++
		}
	}
	return n, nil
}

// PurgeExpired drops every entry past its TTL and returns how many were
// removed. The janitor calls this on its cache purge schedule.
func (s *MemoryStore) PurgeExpired(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for k, e := range s.entries {
		if e.Expired(now) {
			delete(s.entries, k)
			n++
		}
	}
	return n
}

// Len reports how many entries are held, expired or not.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Close implements domain.CacheStore.
func (s *MemoryStore) Close() error { return nil }

var _ domain.CacheStore = (*MemoryStore)(nil)
