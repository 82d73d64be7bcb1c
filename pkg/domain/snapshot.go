package domain

import "time"

// Snapshot is one history entry: a copy of the graph taken when a debounce
// window elapsed, tagged with the last event recorded in that window.
type Snapshot struct {
	// Seq is the 1-based position of the entry in its log. Set by the store.
	Seq        int       `json:"seq"`
	Event      EventKind `json:"event"`
	Nodes      []Node    `json:"nodes"`
	Edges      []Edge    `json:"edges"`
	CapturedAt time.Time `json:"captured_at"`
}

// NewSnapshot captures g for event. The graph is deep-copied.
func NewSnapshot(event EventKind, g Graph, at time.Time) Snapshot {
	c := g.Clone()
	return Snapshot{
		Event:      event,
		Nodes:      c.Nodes,
		Edges:      c.Edges,
		CapturedAt: at,
	}
}

// Graph returns a deep copy of the captured graph.
func (s Snapshot) Graph() Graph {
	return Graph{Nodes: s.Nodes, Edges: s.Edges}.Clone()
}

// Clone returns a deep copy of the snapshot.
func (s Snapshot) Clone() Snapshot {
	g := s.Graph()
	s.Nodes = g.Nodes
	s.Edges = g.Edges
	return s
}

// InitialStateLabel labels the seed graph a session started from.
const InitialStateLabel = "Initial State"

// IsInitial reports whether s stands for the seed graph rather than a
// history entry.
func (s Snapshot) IsInitial() bool {
	return s.Seq == 0 && s.Event == ""
}

// Label returns the display label of the snapshot's event.
func (s Snapshot) Label() string {
	if s.IsInitial() {
		return InitialStateLabel
	}
	return LabelFor(s.Event)
}
