package ports

import (
	"context"

	"github.com/aretw0/tapestry/pkg/domain"
)

// GraphSource is the read accessor for the live graph of an editor.
// The recorder calls it exactly once per capture that fires.
type GraphSource interface {
	// Graph returns the current nodes and edges.
	// Returns domain.ErrSourceUnavailable once the editor is torn down.
	Graph(ctx context.Context) (domain.Graph, error)
}

// GraphSourceFunc adapts a function to GraphSource.
type GraphSourceFunc func(ctx context.Context) (domain.Graph, error)

// Graph calls f(ctx).
func (f GraphSourceFunc) Graph(ctx context.Context) (domain.Graph, error) {
	return f(ctx)
}
