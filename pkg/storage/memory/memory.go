// Package memory provides an in-memory Store. Data is lost on
// restart. Useful for testing and development.
package memory

import (
	"context"
	"errors"
	"sync"
)

// Store keeps the queue snapshot in memory.
type Store struct {
	mu     sync.RWMutex
	data   []byte
	closed bool

	// SaveErr, when set, is returned by every Save. Tests use this to
	// exercise degraded-persistence paths.
	SaveErr error
}

// New creates an in-memory store.
func New() *Store {
	return &Store{}
}

// Save overwrites the stored snapshot.
func (s *Store) Save(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.New("store is closed")
	}
	if s.SaveErr != nil {
		return s.SaveErr
	}

	s.data = append([]byte(nil), data...)
	return nil
}

// Load returns a copy of the stored snapshot, or (nil, nil) when
// nothing has been saved.
func (s *Store) Load(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, errors.New("store is closed")
	}
	if s.data == nil {
		return nil, nil
	}
	return append([]byte(nil), s.data...), nil
}

// Close marks the store closed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
