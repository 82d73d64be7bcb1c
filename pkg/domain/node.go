package domain

import "github.com/mohae/deepcopy"

// Node type tags used by the workflow editor.
// The canvas does not restrict Type to this list; they exist so callers and
// tests share spelling.
const (
	NodeTypeStart         = "start"
	NodeTypeEnd           = "end"
	NodeTypeLLM           = "llm"
	NodeTypeIfElse        = "if-else"
	NodeTypeCode          = "code"
	NodeTypeTool          = "tool"
	NodeTypeHTTPRequest   = "http-request"
	NodeTypeAnswer        = "answer"
	NodeTypeKnowledge     = "knowledge-retrieval"
	NodeTypeTemplate      = "template-transform"
	NodeTypeVariableMerge = "variable-assigner"
)

// Position is the canvas coordinate of a node.
type Position struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Node is a block on the workflow canvas.
// Data holds the title, the description and any type-specific fields.
type Node struct {
	ID       string         `json:"id" yaml:"id"`
	Type     string         `json:"type" yaml:"type"`
	Position Position       `json:"position" yaml:"position"`
	Data     map[string]any `json:"data,omitempty" yaml:"data,omitempty"`

	// Selected is canvas-local UI state. Changing it is never history-worthy.
	Selected bool `json:"selected,omitempty" yaml:"selected,omitempty"`
}

// Edge connects two nodes.
// SourceHandle carries the branch tag for branching nodes (e.g. "true" or
// "false" on an if/else node).
type Edge struct {
	ID           string         `json:"id" yaml:"id"`
	Source       string         `json:"source" yaml:"source"`
	Target       string         `json:"target" yaml:"target"`
	SourceHandle string         `json:"source_handle,omitempty" yaml:"source_handle,omitempty"`
	TargetHandle string         `json:"target_handle,omitempty" yaml:"target_handle,omitempty"`
	Data         map[string]any `json:"data,omitempty" yaml:"data,omitempty"`
}

// Clone returns a deep copy of the node.
func (n Node) Clone() Node {
	n.Data = cloneMap(n.Data)
	return n
}

// Clone returns a deep copy of the edge.
func (e Edge) Clone() Edge {
	e.Data = cloneMap(e.Data)
	return e
}

// cloneMap copies src so that the result shares no mutable memory with it,
// whatever the value types (nested maps, typed slices, pointers).
func cloneMap(src map[string]any) map[string]any {
	if src == nil {
		return nil
	}
	return deepcopy.Copy(src).(map[string]any)
}
