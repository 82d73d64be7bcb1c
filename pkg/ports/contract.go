package ports

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/tapestry/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunHistoryStoreContract runs a suite of tests to verify that a HistoryStore
// implementation adheres to the interface contract.
// newStore must return an empty store on every call.
func RunHistoryStoreContract(t *testing.T, newStore func(t *testing.T) HistoryStore) {
	ctx := context.Background()
	at := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)

	graph := domain.Graph{
		Nodes: []domain.Node{
			{ID: "start", Type: domain.NodeTypeStart, Data: map[string]any{domain.KeyTitle: "Start"}},
			{ID: "llm", Type: domain.NodeTypeLLM, Position: domain.Position{X: 240, Y: 80}},
		},
		Edges: []domain.Edge{
			{ID: "start-llm", Source: "start", Target: "llm", SourceHandle: "source"},
		},
	}

	t.Run("Empty", func(t *testing.T) {
		store := newStore(t)

		entries, err := store.Entries(ctx)
		require.NoError(t, err)
		assert.Empty(t, entries)

		n, err := store.Len(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	})

	t.Run("Append and Entries", func(t *testing.T) {
		store := newStore(t)

		stored, err := store.Append(ctx, domain.NewSnapshot(domain.EventNodeAdd, graph, at))
		require.NoError(t, err)
		assert.Equal(t, 1, stored.Seq)

		entries, err := store.Entries(ctx)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, domain.EventNodeAdd, entries[0].Event)
		assert.Equal(t, 1, entries[0].Seq)
		assert.True(t, at.Equal(entries[0].CapturedAt))
		require.Len(t, entries[0].Nodes, 2)
		assert.Equal(t, "Start", entries[0].Nodes[0].Data[domain.KeyTitle])
		assert.Equal(t, 240.0, entries[0].Nodes[1].Position.X)
		require.Len(t, entries[0].Edges, 1)
		assert.Equal(t, "source", entries[0].Edges[0].SourceHandle)
	})

	t.Run("Chronological Order", func(t *testing.T) {
		store := newStore(t)
		kinds := []domain.EventKind{domain.EventNodeAdd, domain.EventNodeConnect, domain.EventEdgeDelete}

		for i, kind := range kinds {
			_, err := store.Append(ctx, domain.NewSnapshot(kind, graph, at.Add(time.Duration(i)*time.Second)))
			require.NoError(t, err)
		}

		entries, err := store.Entries(ctx)
		require.NoError(t, err)
		require.Len(t, entries, len(kinds))
		for i, kind := range kinds {
			assert.Equal(t, kind, entries[i].Event)
			assert.Equal(t, i+1, entries[i].Seq)
		}

		n, err := store.Len(ctx)
		require.NoError(t, err)
		assert.Equal(t, len(kinds), n)
	})

	t.Run("Entries Are Copies", func(t *testing.T) {
		store := newStore(t)
		snap := domain.NewSnapshot(domain.EventNodeTitleChange, graph, at)
		_, err := store.Append(ctx, snap)
		require.NoError(t, err)

		// Mutating the appended value or a read must not leak into the log.
		snap.Nodes[0].Data[domain.KeyTitle] = "Mutated before read"
		first, err := store.Entries(ctx)
		require.NoError(t, err)
		first[0].Nodes[0].Data[domain.KeyTitle] = "Mutated after read"
		first[0].Event = domain.EventNodeDelete

		second, err := store.Entries(ctx)
		require.NoError(t, err)
		assert.Equal(t, "Start", second[0].Nodes[0].Data[domain.KeyTitle])
		assert.Equal(t, domain.EventNodeTitleChange, second[0].Event)
	})

	t.Run("Cancelled Context", func(t *testing.T) {
		store := newStore(t)
		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		_, err := store.Append(cancelled, domain.NewSnapshot(domain.EventNodeAdd, graph, at))
		assert.ErrorIs(t, err, context.Canceled)

		n, err := store.Len(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	})
}
