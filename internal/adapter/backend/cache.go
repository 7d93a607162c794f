package backend

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"time"

	"inquest/internal/domain"
	"inquest/internal/infra/metrics"
)

// ResponseCache fronts a CacheStore for the client. It is strictly an
// accelerator: every store failure is absorbed as a miss, counted and logged
// at debug, so a broken cache never breaks a call.
type ResponseCache struct {
	store  domain.CacheStore
	ttl    time.Duration
	logger *slog.Logger
	m      *metrics.Metrics
}

// NewResponseCache wraps a store. A nil store disables caching entirely;
// Get always misses and Set is a no-op.
func NewResponseCache(store domain.CacheStore, defaultTTL time.Duration, logger *slog.Logger, m *metrics.Metrics) *ResponseCache {
	if defaultTTL <= 0 {
		defaultTTL = 5 * time.Minute
	}
	return &ResponseCache{store: store, ttl: defaultTTL, logger: logger, m: m}
}

// CacheKey derives the deterministic key for one call. Identical
// (endpoint, operation, params) triples always produce the same key;
// params order is irrelevant because JSON marshaling sorts map keys.
// The endpoint and operation stay in clear text so prefix invalidation
// can target them.
func CacheKey(endpoint, operation string, params map[string]any) (string, error) {
	canonical, err := json.Marshal(params)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return endpoint + "|" + operation + "|" + hex.EncodeToString(sum[:]), nil
}

// Get returns the cached payload for a live entry. Unmarshalable params,
// store errors and expired entries all report a miss.
func (c *ResponseCache) Get(ctx context.Context, endpoint, operation string, params map[string]any) (map[string]any, bool) {
	if c.store == nil {
		return nil, false
	}
	key, err := CacheKey(endpoint, operation, params)
	if err != nil {
		return nil, false
	}

	entry, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.absorb("get", err)
		return nil, false
	}
	if !ok || entry.Expired(time.Now()) {
		c.count("miss")
		return nil, false
	}
	c.count("hit")
	return entry.Data, true
}

// Set stores a successful payload. Failures are absorbed.
func (c *ResponseCache) Set(ctx context.Context, endpoint, operation string, params, data map[string]any, ttl time.Duration) {
	if c.store == nil {
		return
	}
	key, err := CacheKey(endpoint, operation, params)
	if err != nil {
		return
	}
	if ttl <= 0 {
		ttl = c.ttl
	}

	entry := domain.CacheEntry{
		Success:  true,
		Data:     data,
		CachedAt: time.Now(),
		TTL:      ttl,
	}
	if err := c.store.Set(ctx, key, entry); err != nil {
		c.absorb("set", err)
		return
	}
	c.count("store")
}

// Invalidate removes one exact entry.
func (c *ResponseCache) Invalidate(ctx context.Context, endpoint, operation string, params map[string]any) error {
	if c.store == nil {
		return nil
	}
	key, err := CacheKey(endpoint, operation, params)
	if err != nil {
		return err
	}
	if err := c.store.Delete(ctx, key); err != nil {
		c.absorb("delete", err)
		return err
	}
	c.count("invalidate")
	return nil
}

// InvalidateEndpoint removes every entry for one endpoint and returns how
// many were dropped. Stores that cannot scan report zero.
func (c *ResponseCache) InvalidateEndpoint(ctx context.Context, endpoint string) (int, error) {
	if c.store == nil {
		return 0, nil
	}
	n, err := c.store.DeletePrefix(ctx, endpoint+"|")
	if err != nil {
		c.absorb("delete_prefix", err)
		return 0, err
	}
	if n > 0 {
		c.count("invalidate")
	}
	return n, nil
}

// Close shuts the backing store.
func (c *ResponseCache) Close() error {
	if c.store == nil {
		return nil
	}
	return c.store.Close()
}

func (c *ResponseCache) absorb(op string, err error) {
	c.count("error")
	if c.logger != nil {
		c.logger.Debug("cache unavailable", "op", op, "error", err)
	}
}

func (c *ResponseCache) count(event string) {
	if c.m != nil {
		c.m.CacheEvents.WithLabelValues(event).Inc()
	}
}
