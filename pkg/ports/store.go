package ports

import (
	"context"

	"github.com/aretw0/tapestry/pkg/domain"
)

// HistoryStore is the append-only log of snapshots for one editing session.
// Entries are never mutated after insertion.
type HistoryStore interface {
	// Append adds snapshot to the end of the log and returns the stored
	// copy, with Seq set to its 1-based position.
	Append(ctx context.Context, snapshot domain.Snapshot) (domain.Snapshot, error)

	// Entries returns the log in chronological order (oldest first).
	// The returned slice is a copy; callers may not affect the store through it.
	Entries(ctx context.Context) ([]domain.Snapshot, error)

	// Len returns the number of entries.
	Len(ctx context.Context) (int, error)
}

// Dropper is implemented by stores that hold resources outside the process
// and can release them when their session ends.
type Dropper interface {
	Drop(ctx context.Context) error
}
