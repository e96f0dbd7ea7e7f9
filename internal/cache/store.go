// Criticus - Multi-Provider Ratings Aggregation for Media Libraries
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/criticus

// Package cache provides the persistent adaptive-TTL store backing both
// the provider response cache and the aggregation cache.
//
// Entries are stored in BadgerDB with an absolute expiry computed once
// at write time (see ComputeTTL); reads only ever perform the trivial
// "now past expiry" check, which Badger does natively. Payloads are
// compressed and tagged (see codec.go); a corrupt payload is logged and
// treated as a miss, never surfaced as an error to the aggregation path.
package cache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/tomtom215/criticus/internal/logging"
	"github.com/tomtom215/criticus/internal/metrics"
)

// Store wraps a Badger database holding all logical caches.
type Store struct {
	db *badger.DB
}

// Open opens (creating if necessary) the cache store at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}

	opts := badger.DefaultOptions(path).
		WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open cache store: %w", err)
	}

	return &Store{db: db}, nil
}

// OpenInMemory opens an ephemeral store, used by tests and ad hoc runs.
func OpenInMemory() (*Store, error) {
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("open in-memory cache store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// RunGC triggers one round of Badger value-log garbage collection.
// Returns badger.ErrNoRewrite when there was nothing to collect.
func (s *Store) RunGC() error {
	return s.db.RunValueLogGC(0.5)
}

// Bucket is a named logical cache over the shared store. The name
// prefixes every key and labels the cache metrics.
type Bucket struct {
	store *Store
	name  string
}

// Bucket returns the logical cache with the given name.
func (s *Store) Bucket(name string) *Bucket {
	return &Bucket{store: s, name: name}
}

// Standard logical cache names.
const (
	ProviderCache  = "provider"
	AggregateCache = "aggregate"
)

func (b *Bucket) key(key string) []byte {
	return []byte(b.name + ":" + key)
}

// Put writes value under key with the given TTL. The expiry is
// absolute from this moment; it is never re-evaluated on read.
func (b *Bucket) Put(key string, kind PayloadKind, value any, ttl time.Duration) error {
	raw, err := Encode(kind, value)
	if err != nil {
		return fmt.Errorf("cache %s: encode %s: %w", b.name, key, err)
	}

	err = b.store.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry(b.key(key), raw)
		if ttl > 0 {
			entry = entry.WithTTL(ttl)
		}
		return txn.SetEntry(entry)
	})
	if err != nil {
		return fmt.Errorf("cache %s: put %s: %w", b.name, key, err)
	}
	return nil
}

// Get reads the entry under key into out. Returns false on a miss:
// absent, expired, or corrupt (corrupt entries are logged and deleted).
func (b *Bucket) Get(key string, kind PayloadKind, out any) (bool, error) {
	var raw []byte

	err := b.store.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(b.key(key))
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})

	switch {
	case errors.Is(err, badger.ErrKeyNotFound):
		metrics.CacheMisses.WithLabelValues(b.name).Inc()
		return false, nil
	case err != nil:
		return false, fmt.Errorf("cache %s: get %s: %w", b.name, key, err)
	}

	if err := Decode(raw, kind, out); err != nil {
		if errors.Is(err, ErrCorrupt) {
			logging.Warn().
				Str("cache", b.name).
				Str("key", key).
				Err(err).
				Msg("Corrupt cache payload, treating as miss")
			metrics.CacheCorrupt.WithLabelValues(b.name).Inc()
			metrics.CacheMisses.WithLabelValues(b.name).Inc()
			b.delete(key)
			return false, nil
		}
		return false, err
	}

	metrics.CacheHits.WithLabelValues(b.name).Inc()
	return true, nil
}

// Delete removes the entry under key, ignoring absence.
func (b *Bucket) Delete(key string) error {
	err := b.store.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(b.key(key))
	})
	if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("cache %s: delete %s: %w", b.name, key, err)
	}
	return nil
}

// delete is Delete without error propagation, for corrupt-entry cleanup.
func (b *Bucket) delete(key string) {
	if err := b.Delete(key); err != nil {
		logging.Warn().Str("cache", b.name).Str("key", key).Err(err).Msg("Failed to drop corrupt entry")
	}
}
