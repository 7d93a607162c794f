package domain

import (
	"context"
	"time"
)

// CacheEntry is one stored call response. Only successful responses are
// cached; entries are written atomically so a reader never observes a
// partial entry.
type CacheEntry struct {
	Success  bool           `json:"success"`
	Data     map[string]any `json:"data"`
	CachedAt time.Time      `json:"cached_at"`
	TTL      time.Duration  `json:"ttl"`
}

// Expired reports whether the entry is past its TTL at now.
func (e CacheEntry) Expired(now time.Time) bool {
	return now.After(e.CachedAt.Add(e.TTL))
}

// CacheStore is the backing store for the response cache. Implementations
// signal unavailability with ErrCacheUnavailable; callers absorb it as a
// miss. DeletePrefix removes every key beginning with prefix and returns
// ErrCacheUnavailable when the store cannot scan.
type CacheStore interface {
	Get(ctx context.Context, key string) (CacheEntry, bool, error)
	Set(ctx context.Context, key string, entry CacheEntry) error
	Delete(ctx context.Context, key string) error
	DeletePrefix(ctx context.Context, prefix string) (int, error)
	Close() error
}
