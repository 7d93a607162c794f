package cachestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"

	"inquest/internal/domain"
)

// BadgerStore is a persistent CacheStore. Entry expiry rides on Badger's
// native TTL, so expired entries vanish without a sweep; whole-endpoint
// invalidation is a prefix scan.
type BadgerStore struct {
	db     *badger.DB
	logger *slog.Logger
}

// BadgerOptions tunes the store.
type BadgerOptions struct {
	Path     string
	InMemory bool // tests
	Logger   *slog.Logger
}

// badgerLogger adapts slog to Badger's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...any)   { l.logger.Error(fmt.Sprintf(format, args...)) }
func (l *badgerLogger) Warningf(format string, args ...any) { l.logger.Warn(fmt.Sprintf(format, args...)) }
func (l *badgerLogger) Infof(format string, args ...any)    { l.logger.Debug(fmt.Sprintf(format, args...)) }
func (l *badgerLogger) Debugf(format string, args ...any)   { l.logger.Debug(fmt.Sprintf(format, args...)) }

// NewBadgerStore opens the store, creating the directory when needed.
func NewBadgerStore(opts BadgerOptions) (*BadgerStore, error) {
	var badgerOpts badger.Options
	if opts.InMemory {
		badgerOpts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if opts.Path == "" {
			return nil, fmt.Errorf("badger cache: path required")
		}
		if err := os.MkdirAll(opts.Path, 0o750); err != nil {
			return nil, fmt.Errorf("badger cache: create directory %s: %w", opts.Path, err)
		}
		badgerOpts = badger.DefaultOptions(opts.Path)
	}
	badgerOpts = badgerOpts.WithNumVersionsToKeep(1)
	if opts.Logger != nil {
		badgerOpts = badgerOpts.WithLogger(&badgerLogger{logger: opts.Logger})
	} else {
		badgerOpts = badgerOpts.WithLogger(nil)
	}

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("badger cache: open: %w", err)
	}
	return &BadgerStore{db: db, logger: opts.Logger}, nil
}

// Get implements domain.CacheStore.
func (s *BadgerStore) Get(_ context.Context, key string) (domain.CacheEntry, bool, error) {
	var entry domain.CacheEntry
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &entry)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.CacheEntry{}, false, nil
	}
	if err != nil {
		return domain.CacheEntry{}, false, fmt.Errorf("%w: badger get: %v", domain.ErrCacheUnavailable, err)
	}
	return entry, true, nil
}

// Set implements domain.CacheStore. The Badger TTL matches the entry's so
// storage reclaims itself.
func (s *BadgerStore) Set(_ context.Context, key string, entry domain.CacheEntry) error {
	val, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("%w: marshal entry: %v", domain.ErrCacheUnavailable, err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(key), val)
		if entry.TTL > 0 {
			e = e.WithTTL(entry.TTL)
		}
		return txn.SetEntry(e)
	})
	if err != nil {
		return fmt.Errorf("%w: badger set: %v", domain.ErrCacheUnavailable, err)
	}
	return nil
}

// Delete implements domain.CacheStore.
func (s *BadgerStore) Delete(_ context.Context, key string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("%w: badger delete: %v", domain.ErrCacheUnavailable, err)
	}
	return nil
}

// DeletePrefix implements domain.CacheStore. Keys are collected in a read
// transaction and removed through a write batch, which splits oversized
// transactions itself.
func (s *BadgerStore) DeletePrefix(_ context.Context, prefix string) (int, error) {
	var keys [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(prefix)

		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: badger scan: %v", domain.ErrCacheUnavailable, err)
	}
	if len(keys) == 0 {
		return 0, nil
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, k := range keys {
		if err := wb.Delete(k); err != nil {
			return 0, fmt.Errorf("%w: badger batch delete: %v", domain.ErrCacheUnavailable, err)
		}
	}
	if err := wb.Flush(); err != nil {
		return 0, fmt.Errorf("%w: badger flush: %v", domain.ErrCacheUnavailable, err)
	}
	return len(keys), nil
}

// RunGC triggers one value log garbage collection pass. ErrNoRewrite means
// nothing needed collecting.
func (s *BadgerStore) RunGC(discardRatio float64) error {
	err := s.db.RunValueLogGC(discardRatio)
	if err != nil && !errors.Is(err, badger.ErrNoRewrite) {
		return fmt.Errorf("badger cache: gc: %w", err)
	}
	return nil
}

// Close implements domain.CacheStore.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

var _ domain.CacheStore = (*BadgerStore)(nil)

// Open builds the configured store kind: "badger" when selected, the
// in-process map otherwise.
func Open(store, path string, inMemory bool, logger *slog.Logger) (domain.CacheStore, error) {
	if store == "badger" {
		return NewBadgerStore(BadgerOptions{Path: path, InMemory: inMemory, Logger: logger})
	}
	return NewMemoryStore(), nil
}
