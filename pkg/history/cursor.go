package history

import (
	"sync"
	"time"

	"github.com/aretw0/tapestry/pkg/domain"
)

// baseline marks the seed graph on the cursor stack.
const baseline = -1

// Cursor tracks the undo/redo position over an append-only log.
//
// The log itself is never truncated. The cursor keeps its own stack of log
// positions, rooted at the seed graph the session started from: when an
// entry is appended after undoing, the positions past the cursor are dropped
// from the stack, so Redo no longer reaches them even though the log still
// holds them. The seed graph is position 0 and never enters the log.
type Cursor struct {
	mu      sync.Mutex
	base    domain.Graph
	entries []domain.Snapshot
	stack   []int // indices into entries, or baseline
	pos     int   // index into stack
}

// NewCursor returns a cursor whose only position is the seed graph.
func NewCursor(seed domain.Graph) *Cursor {
	return &Cursor{base: seed.Clone(), stack: []int{baseline}}
}

// Sync feeds the current log to the cursor. Entries beyond those already seen
// are pushed onto the stack and the cursor moves to the newest one.
//
// A log that shrank, or whose last seen entry changed, was restarted (an
// expired Redis key, for instance). The stack is then rebuilt from the seed
// graph over the new log.
func (c *Cursor) Sync(entries []domain.Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	seen := len(c.entries)
	if seen > 0 && (len(entries) < seen || !sameEntry(entries[seen-1], c.entries[seen-1])) {
		c.entries = nil
		c.stack = []int{baseline}
		c.pos = 0
		seen = 0
	}
	if len(entries) == seen {
		return
	}

	c.stack = c.stack[:c.pos+1]
	for i := seen; i < len(entries); i++ {
		c.stack = append(c.stack, i)
	}
	c.entries = entries
	c.pos = len(c.stack) - 1
}

func sameEntry(a, b domain.Snapshot) bool {
	return a.Seq == b.Seq && a.Event == b.Event && a.CapturedAt.Equal(b.CapturedAt)
}

// at returns the entry at stack index i. Caller holds c.mu.
func (c *Cursor) at(i int) domain.Snapshot {
	idx := c.stack[i]
	if idx == baseline {
		return domain.NewSnapshot("", c.base, time.Time{})
	}
	return c.entries[idx].Clone()
}

// Undo moves one step back and returns the entry to restore. Undoing the
// first entry returns the seed graph as a snapshot with Seq 0.
func (c *Cursor) Undo() (domain.Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pos <= 0 {
		return domain.Snapshot{}, false
	}
	c.pos--
	return c.at(c.pos), true
}

// Redo moves one step forward and returns the entry to restore.
func (c *Cursor) Redo() (domain.Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pos+1 >= len(c.stack) {
		return domain.Snapshot{}, false
	}
	c.pos++
	return c.at(c.pos), true
}

// Current returns the entry the cursor points at.
func (c *Cursor) Current() domain.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.at(c.pos)
}

// CanUndo reports whether Undo would move.
func (c *Cursor) CanUndo() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pos > 0
}

// CanRedo reports whether Redo would move.
func (c *Cursor) CanRedo() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pos+1 < len(c.stack)
}

// Position returns the Seq of the current entry, or 0 at the seed graph.
func (c *Cursor) Position() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if idx := c.stack[c.pos]; idx != baseline {
		return c.entries[idx].Seq
	}
	return 0
}
