package testutils

import (
	"github.com/aretw0/tapestry/pkg/domain"
)

// SampleGraph returns a small start -> llm -> end workflow.
// Every call returns fresh maps, so tests may mutate the result.
func SampleGraph() domain.Graph {
	return domain.Graph{
		Nodes: []domain.Node{
			{
				ID:       "start",
				Type:     domain.NodeTypeStart,
				Position: domain.Position{X: 0, Y: 80},
				Data:     map[string]any{domain.KeyTitle: "Start", domain.KeyType: domain.NodeTypeStart},
			},
			{
				ID:       "llm",
				Type:     domain.NodeTypeLLM,
				Position: domain.Position{X: 240, Y: 80},
				Data: map[string]any{
					domain.KeyTitle: "LLM",
					domain.KeyType:  domain.NodeTypeLLM,
					"model":         map[string]any{"provider": "openai", "name": "gpt-4o"},
				},
			},
			{
				ID:       "end",
				Type:     domain.NodeTypeEnd,
				Position: domain.Position{X: 480, Y: 80},
				Data:     map[string]any{domain.KeyTitle: "End", domain.KeyType: domain.NodeTypeEnd},
			},
		},
		Edges: []domain.Edge{
			{ID: "start-llm", Source: "start", Target: "llm", SourceHandle: "source", TargetHandle: "target"},
			{ID: "llm-end", Source: "llm", Target: "end", SourceHandle: "source", TargetHandle: "target"},
		},
	}
}
