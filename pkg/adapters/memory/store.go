package memory

import (
	"context"
	"sync"

	"github.com/aretw0/tapestry/pkg/domain"
)

// Store implements ports.HistoryStore in memory.
// Safe for concurrent use.
type Store struct {
	entries []domain.Snapshot
	mu      sync.RWMutex
}

// NewStore creates a new, empty in-memory history store.
func NewStore() *Store {
	return &Store{}
}

// Append adds a copy of snapshot to the end of the log.
// A cancelled context appends nothing.
func (s *Store) Append(ctx context.Context, snapshot domain.Snapshot) (domain.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return domain.Snapshot{}, err
	}
	// Deep copy to ensure isolation, similar to serialization
	stored := snapshot.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()
	stored.Seq = len(s.entries) + 1
	s.entries = append(s.entries, stored)
	return stored.Clone(), nil
}

// Entries returns a copy of the log, oldest first.
func (s *Store) Entries(ctx context.Context) ([]domain.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Copy on read so callers can't mutate the log through the slice
	out := make([]domain.Snapshot, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.Clone()
	}
	return out, nil
}

// Len returns the number of entries.
func (s *Store) Len(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries), nil
}

// LabelFor returns the display label of kind.
func (s *Store) LabelFor(kind domain.EventKind) string {
	return domain.LabelFor(kind)
}
