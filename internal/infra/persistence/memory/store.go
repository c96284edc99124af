// Package memory provides an in-memory snapshot store used for tests and
// ephemeral environments.
package memory

import (
	"context"
	"sync"

	"microcosm/pkg/domain"
)

// Compile-time contract assertion.
var _ domain.SnapshotStore = (*Store)(nil)

// Store keeps the last snapshot as encoded buckets so callers never share
// maps with it.
type Store struct {
	mu      sync.RWMutex
	buckets map[string][]byte
	saves   int
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{}
}

// Save replaces the stored snapshot.
func (s *Store) Save(ctx context.Context, snapshot domain.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	buckets, err := domain.EncodeSnapshot(snapshot)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.buckets = buckets
	s.saves++
	s.mu.Unlock()
	return nil
}

// Load returns the stored snapshot.
func (s *Store) Load(ctx context.Context) (domain.Snapshot, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.Snapshot{}, false, err
	}
	s.mu.RLock()
	buckets := s.buckets
	s.mu.RUnlock()
	if buckets == nil {
		return domain.Snapshot{}, false, nil
	}
	snap, err := domain.DecodeSnapshot(buckets)
	if err != nil {
		return domain.Snapshot{}, false, err
	}
	return snap, true, nil
}

// Saves reports how many snapshots were written.
func (s *Store) Saves() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}

// Close implements domain.SnapshotStore.
func (s *Store) Close() error { return nil }
