// Package badger implements storage.Store on BadgerDB (LSM tree).
// The queue snapshot lives under one fixed key; the embedded database
// gives us atomic overwrite and crash-safe reads without managing
// file renames ourselves.
package badger

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
)

// queueKey is the single fixed key holding the serialized queue.
const queueKey = "probekit/report-queue"

// Store implements storage.Store using BadgerDB.
type Store struct {
	db *badger.DB
}

// Config holds BadgerDB configuration.
type Config struct {
	// Path to store database files.
	Path string

	// InMemory mode (for testing).
	InMemory bool
}

// New opens a BadgerDB-backed store.
//
// The workload here is tiny — one key rewritten a few times per
// second at worst — so memory limits are set far below Badger's
// defaults. Defaults assume a server; this store runs inside a host
// application that must never notice us.
func New(cfg Config) (*Store, error) {
	opts := badger.DefaultOptions(cfg.Path)

	if cfg.InMemory {
		opts = opts.WithInMemory(true)
	}

	opts = opts.
		WithCompression(options.Snappy).
		WithNumVersionsToKeep(1).
		WithMemTableSize(4 << 20). // 4 MB memtable is plenty for one key
		WithNumMemtables(2).
		WithBlockCacheSize(2 << 20).
		WithIndexCacheSize(1 << 20).
		WithMaxLevels(3).
		WithNumCompactors(1).
		WithValueLogFileSize(16 << 20).
		WithLogger(nil) // badger's own logging is noisy inside an SDK

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}

	return &Store{db: db}, nil
}

// Save overwrites the queue snapshot.
func (s *Store) Save(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(queueKey), data)
	})
	if err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return nil
}

// Load returns the queue snapshot, or (nil, nil) when none exists.
func (s *Store) Load(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(queueKey))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	return data, nil
}

// Close shuts down the database.
func (s *Store) Close() error {
	return s.db.Close()
}
