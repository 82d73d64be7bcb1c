package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/aretw0/tapestry/pkg/domain"
)

// Canvas is the live graph of an editor. It implements ports.GraphSource.
// Safe for concurrent use.
type Canvas struct {
	mu       sync.RWMutex
	graph    domain.Graph
	detached bool
}

// NewCanvas creates a canvas seeded with a copy of g.
func NewCanvas(g domain.Graph) *Canvas {
	return &Canvas{graph: g.Clone()}
}

// Graph returns a copy of the current nodes and edges.
func (c *Canvas) Graph(ctx context.Context) (domain.Graph, error) {
	if err := ctx.Err(); err != nil {
		return domain.Graph{}, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.detached {
		return domain.Graph{}, domain.ErrSourceUnavailable
	}
	return c.graph.Clone(), nil
}

// Detach marks the canvas as torn down. Reads and writes fail afterwards.
func (c *Canvas) Detach() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.detached = true
}

// Replace swaps the whole graph, e.g. when restoring a snapshot or when an
// external canvas pushes its state.
func (c *Canvas) Replace(g domain.Graph) error {
	return c.mutate(func(cur *domain.Graph) error {
		*cur = g.Clone()
		return nil
	})
}

// AddNode appends n to the canvas.
func (c *Canvas) AddNode(n domain.Node) error {
	if n.ID == "" {
		return fmt.Errorf("node missing ID")
	}
	return c.mutate(func(g *domain.Graph) error {
		if indexOfNode(g, n.ID) >= 0 {
			return fmt.Errorf("%w: %s", domain.ErrDuplicateNode, n.ID)
		}
		g.Nodes = append(g.Nodes, n.Clone())
		return nil
	})
}

// UpdateNode applies fn to the node with the given ID. fn must not change the ID.
func (c *Canvas) UpdateNode(id string, fn func(*domain.Node)) error {
	return c.mutate(func(g *domain.Graph) error {
		i := indexOfNode(g, id)
		if i < 0 {
			return fmt.Errorf("%w: %s", domain.ErrNodeNotFound, id)
		}
		fn(&g.Nodes[i])
		g.Nodes[i].ID = id
		return nil
	})
}

// MoveNode shifts a node by (dx, dy).
func (c *Canvas) MoveNode(id string, dx, dy float64) error {
	return c.UpdateNode(id, func(n *domain.Node) {
		n.Position.X += dx
		n.Position.Y += dy
	})
}

// RemoveNode deletes a node and every edge incident to it.
// It returns the removed edges.
func (c *Canvas) RemoveNode(id string) ([]domain.Edge, error) {
	var removed []domain.Edge
	err := c.mutate(func(g *domain.Graph) error {
		i := indexOfNode(g, id)
		if i < 0 {
			return fmt.Errorf("%w: %s", domain.ErrNodeNotFound, id)
		}
		g.Nodes = append(g.Nodes[:i], g.Nodes[i+1:]...)
		removed = filterEdges(g, func(e domain.Edge) bool {
			return e.Source == id || e.Target == id
		})
		return nil
	})
	return removed, err
}

// Connect adds an edge. Both endpoints must exist and the ID must be unique.
func (c *Canvas) Connect(e domain.Edge) error {
	if e.ID == "" {
		return fmt.Errorf("%w: missing ID", domain.ErrInvalidEdge)
	}
	return c.mutate(func(g *domain.Graph) error {
		if indexOfEdge(g, e.ID) >= 0 {
			return fmt.Errorf("%w: duplicate ID %s", domain.ErrInvalidEdge, e.ID)
		}
		if indexOfNode(g, e.Source) < 0 {
			return fmt.Errorf("%w: unknown source %s", domain.ErrInvalidEdge, e.Source)
		}
		if indexOfNode(g, e.Target) < 0 {
			return fmt.Errorf("%w: unknown target %s", domain.ErrInvalidEdge, e.Target)
		}
		g.Edges = append(g.Edges, e.Clone())
		return nil
	})
}

// RemoveEdge deletes one edge.
func (c *Canvas) RemoveEdge(id string) error {
	return c.mutate(func(g *domain.Graph) error {
		i := indexOfEdge(g, id)
		if i < 0 {
			return fmt.Errorf("%w: %s", domain.ErrEdgeNotFound, id)
		}
		g.Edges = append(g.Edges[:i], g.Edges[i+1:]...)
		return nil
	})
}

// RemoveEdgesFromHandle deletes every edge leaving nodeID through handle.
// It returns the removed edges, which may be empty.
func (c *Canvas) RemoveEdgesFromHandle(nodeID, handle string) ([]domain.Edge, error) {
	var removed []domain.Edge
	err := c.mutate(func(g *domain.Graph) error {
		if indexOfNode(g, nodeID) < 0 {
			return fmt.Errorf("%w: %s", domain.ErrNodeNotFound, nodeID)
		}
		removed = filterEdges(g, func(e domain.Edge) bool {
			return e.Source == nodeID && e.SourceHandle == handle
		})
		return nil
	})
	return removed, err
}

// Select marks one node as selected and clears the others.
// An empty id clears the selection.
func (c *Canvas) Select(id string) error {
	return c.mutate(func(g *domain.Graph) error {
		if id != "" && indexOfNode(g, id) < 0 {
			return fmt.Errorf("%w: %s", domain.ErrNodeNotFound, id)
		}
		for i := range g.Nodes {
			g.Nodes[i].Selected = g.Nodes[i].ID == id
		}
		return nil
	})
}

func (c *Canvas) mutate(fn func(*domain.Graph) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.detached {
		return domain.ErrSourceUnavailable
	}
	return fn(&c.graph)
}

func indexOfNode(g *domain.Graph, id string) int {
	for i, n := range g.Nodes {
		if n.ID == id {
			return i
		}
	}
	return -1
}

func indexOfEdge(g *domain.Graph, id string) int {
	for i, e := range g.Edges {
		if e.ID == id {
			return i
		}
	}
	return -1
}

// filterEdges removes the edges matching drop and returns them.
func filterEdges(g *domain.Graph, drop func(domain.Edge) bool) []domain.Edge {
	var removed []domain.Edge
	kept := g.Edges[:0]
	for _, e := range g.Edges {
		if drop(e) {
			removed = append(removed, e)
			continue
		}
		kept = append(kept, e)
	}
	g.Edges = kept
	return removed
}
