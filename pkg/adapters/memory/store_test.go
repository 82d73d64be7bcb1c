package memory_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/tapestry/pkg/adapters/memory"
	"github.com/aretw0/tapestry/pkg/domain"
	"github.com/aretw0/tapestry/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_Contract(t *testing.T) {
	ports.RunHistoryStoreContract(t, func(t *testing.T) ports.HistoryStore {
		return memory.NewStore()
	})
}

func TestMemoryStore_ConcurrentAppend(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Append(ctx, domain.NewSnapshot(domain.EventNodeChange, domain.Graph{}, time.Now()))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	entries, err := store.Entries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 50)
	for i, e := range entries {
		assert.Equal(t, i+1, e.Seq)
	}
}

func TestMemoryStore_LabelFor(t *testing.T) {
	store := memory.NewStore()
	assert.Equal(t, "Edge Delete", store.LabelFor(domain.EventEdgeDelete))
	assert.Equal(t, domain.UnknownEventLabel, store.LabelFor("NodeSelect"))
}
