package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleGraph() Graph {
	return Graph{
		Nodes: []Node{
			{
				ID:       "start",
				Type:     NodeTypeStart,
				Position: Position{X: 10, Y: 20},
				Data: map[string]any{
					KeyTitle: "Start",
					"variables": []any{
						map[string]any{"name": "query"},
					},
				},
			},
			{
				ID:   "branch",
				Type: NodeTypeIfElse,
				Data: map[string]any{KeyTitle: "Branch", "conditions": []string{"a", "b"}},
			},
		},
		Edges: []Edge{
			{ID: "e1", Source: "start", Target: "branch", Data: map[string]any{"sourceType": "start"}},
		},
	}
}

func TestGraph_CloneIsolation(t *testing.T) {
	g := sampleGraph()
	c := g.Clone()

	g.Nodes[0].Data[KeyTitle] = "Changed"
	g.Nodes[0].Data["variables"].([]any)[0].(map[string]any)["name"] = "other"
	g.Nodes[1].Data["conditions"].([]string)[0] = "z"
	g.Nodes[0].Position.X = 99
	g.Edges[0].Data["sourceType"] = "llm"
	g.Nodes = append(g.Nodes, Node{ID: "late"})

	assert.Equal(t, "Start", c.Nodes[0].Data[KeyTitle])
	assert.Equal(t, "query", c.Nodes[0].Data["variables"].([]any)[0].(map[string]any)["name"])
	assert.Equal(t, "a", c.Nodes[1].Data["conditions"].([]string)[0])
	assert.Equal(t, 10.0, c.Nodes[0].Position.X)
	assert.Equal(t, "start", c.Edges[0].Data["sourceType"])
	assert.Len(t, c.Nodes, 2)
}

func TestGraph_CloneIsolatesTypedValues(t *testing.T) {
	limit := 3
	headers := map[string]string{"Accept": "json"}
	weights := []float64{0.5, 0.25}
	ports := []int{80, 443}
	g := Graph{
		Nodes: []Node{{ID: "http", Type: NodeTypeHTTPRequest, Data: map[string]any{
			"headers": headers,
			"weights": weights,
			"ports":   ports,
			"retries": &limit,
		}}},
		Edges: []Edge{{ID: "e1", Source: "http", Target: "http", Data: map[string]any{"tags": map[string]string{"k": "v"}}}},
	}
	snap := NewSnapshot(EventNodeChange, g, time.Time{})

	headers["Accept"] = "xml"
	weights[0] = 9
	ports[1] = 8443
	limit = 10
	g.Edges[0].Data["tags"].(map[string]string)["k"] = "changed"

	data := snap.Nodes[0].Data
	assert.Equal(t, map[string]string{"Accept": "json"}, data["headers"])
	assert.Equal(t, []float64{0.5, 0.25}, data["weights"])
	assert.Equal(t, []int{80, 443}, data["ports"])
	assert.Equal(t, 3, *data["retries"].(*int))
	assert.Equal(t, map[string]string{"k": "v"}, snap.Edges[0].Data["tags"])

	// Clones of the snapshot are independent too.
	c := snap.Clone()
	c.Nodes[0].Data["headers"].(map[string]string)["Accept"] = "text"
	assert.Equal(t, "json", snap.Nodes[0].Data["headers"].(map[string]string)["Accept"])
}

func TestGraph_Lookup(t *testing.T) {
	g := sampleGraph()

	n, ok := g.Node("branch")
	require.True(t, ok)
	assert.Equal(t, NodeTypeIfElse, n.Type)

	_, ok = g.Node("missing")
	assert.False(t, ok)

	e, ok := g.Edge("e1")
	require.True(t, ok)
	assert.Equal(t, "branch", e.Target)
}

func TestNewSnapshot_CopiesGraph(t *testing.T) {
	g := sampleGraph()
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	snap := NewSnapshot(EventNodeAdd, g, at)

	g.Nodes[0].Data[KeyTitle] = "Mutated"

	assert.Equal(t, EventNodeAdd, snap.Event)
	assert.Equal(t, at, snap.CapturedAt)
	assert.Equal(t, "Start", snap.Nodes[0].Data[KeyTitle])
	assert.Equal(t, "Node Add", snap.Label())

	restored := snap.Graph()
	restored.Nodes[0].Data[KeyTitle] = "Mutated again"
	assert.Equal(t, "Start", snap.Nodes[0].Data[KeyTitle])
}

func TestSnapshot_InitialLabel(t *testing.T) {
	seed := NewSnapshot("", sampleGraph(), time.Time{})
	assert.True(t, seed.IsInitial())
	assert.Equal(t, InitialStateLabel, seed.Label())

	unknown := Snapshot{Seq: 4}
	assert.False(t, unknown.IsInitial())
	assert.Equal(t, UnknownEventLabel, unknown.Label())
}

func TestDecodeNodeData(t *testing.T) {
	n := Node{
		ID: "llm-1",
		Data: map[string]any{
			KeyTitle: "Summarize",
			KeyDesc:  "Summarizes the input",
			KeyType:  NodeTypeLLM,
			"model":  map[string]any{"provider": "openai"},
		},
	}

	data, err := DecodeNodeData(n)
	require.NoError(t, err)
	assert.Equal(t, "Summarize", data.Title)
	assert.Equal(t, "Summarizes the input", data.Desc)
	assert.Equal(t, NodeTypeLLM, data.Type)
	assert.Contains(t, data.Extra, "model")
	assert.Equal(t, "Summarize", n.Title())
}

func TestNodeTitle_FallsBackToID(t *testing.T) {
	assert.Equal(t, "n1", Node{ID: "n1"}.Title())
	assert.Equal(t, "n2", Node{ID: "n2", Data: map[string]any{KeyDesc: "no title"}}.Title())
	assert.Equal(t, "42", Node{ID: "n3", Data: map[string]any{KeyTitle: 42}}.Title())
}
