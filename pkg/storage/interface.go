// Package storage defines the durable store behind the report queue.
// Implementations: memory (testing), badger (production).
//
// The store holds a single value: the serialized snapshot of the
// pending queue, rewritten in full on every save. The report queue is
// the only writer.
package storage

import "context"

// Store persists the report-queue snapshot.
type Store interface {
	// Save overwrites the stored snapshot.
	Save(ctx context.Context, data []byte) error

	// Load returns the stored snapshot, or (nil, nil) when nothing
	// has been saved yet.
	Load(ctx context.Context) ([]byte, error)

	// Close cleanly shuts down the store.
	Close() error
}
