package domain

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Snapshot captures what a repo persists: the folded, serialised domain state
// and the history tree for introspection.
type Snapshot struct {
	State   map[string]any `json:"state"`
	History HistoryJSON    `json:"history"`
	SavedAt time.Time      `json:"saved_at"`
}

// SnapshotStore is a minimal abstraction over durable snapshot backends.
type SnapshotStore interface {
	// Save replaces the stored snapshot.
	Save(ctx context.Context, snapshot Snapshot) error
	// Load returns the stored snapshot; ok is false when nothing was saved yet.
	Load(ctx context.Context) (snapshot Snapshot, ok bool, err error)
	// Close releases the backend.
	Close() error
}

// Snapshot buckets as stored by the SQL backends.
const (
	BucketState   = "state"
	BucketHistory = "history"
	BucketMeta    = "meta"
)

type snapshotMeta struct {
	SavedAt time.Time `json:"saved_at"`
}

// EncodeSnapshot splits a snapshot into JSON encoded buckets.
func EncodeSnapshot(s Snapshot) (map[string][]byte, error) {
	state := s.State
	if state == nil {
		state = map[string]any{}
	}
	out := make(map[string][]byte, 3)
	var err error
	if out[BucketState], err = json.Marshal(state); err != nil {
		return nil, fmt.Errorf("encode %s: %w", BucketState, err)
	}
	if out[BucketHistory], err = json.Marshal(s.History); err != nil {
		return nil, fmt.Errorf("encode %s: %w", BucketHistory, err)
	}
	if out[BucketMeta], err = json.Marshal(snapshotMeta{SavedAt: s.SavedAt}); err != nil {
		return nil, fmt.Errorf("encode %s: %w", BucketMeta, err)
	}
	return out, nil
}

// DecodeSnapshot reassembles buckets written by EncodeSnapshot. Unknown
// buckets are ignored and missing ones stay zero.
func DecodeSnapshot(buckets map[string][]byte) (Snapshot, error) {
	var s Snapshot
	if raw, ok := buckets[BucketState]; ok {
		if err := json.Unmarshal(raw, &s.State); err != nil {
			return Snapshot{}, fmt.Errorf("decode %s: %w", BucketState, err)
		}
	}
	if raw, ok := buckets[BucketHistory]; ok {
		if err := json.Unmarshal(raw, &s.History); err != nil {
			return Snapshot{}, fmt.Errorf("decode %s: %w", BucketHistory, err)
		}
	}
	if raw, ok := buckets[BucketMeta]; ok {
		var meta snapshotMeta
		if err := json.Unmarshal(raw, &meta); err != nil {
			return Snapshot{}, fmt.Errorf("decode %s: %w", BucketMeta, err)
		}
		s.SavedAt = meta.SavedAt
	}
	if s.State == nil {
		s.State = map[string]any{}
	}
	return s, nil
}
