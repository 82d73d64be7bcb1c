package domain

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// NodeData is the typed view over the common fields of Node.Data.
// Type-specific fields are kept in Extra.
type NodeData struct {
	Title string         `json:"title" mapstructure:"title"`
	Desc  string         `json:"desc" mapstructure:"desc"`
	Type  string         `json:"type" mapstructure:"type"`
	Extra map[string]any `json:"-" mapstructure:",remain"`
}

// DecodeNodeData decodes n.Data into a NodeData.
// Scalars are weakly typed so that a numeric title still reads as text.
func DecodeNodeData(n Node) (NodeData, error) {
	var out NodeData
	if n.Data == nil {
		return out, nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return out, err
	}
	if err := dec.Decode(n.Data); err != nil {
		return out, fmt.Errorf("failed to decode data of node %s: %w", n.ID, err)
	}
	return out, nil
}

// Title returns the node title, falling back to its ID.
func (n Node) Title() string {
	data, err := DecodeNodeData(n)
	if err != nil || data.Title == "" {
		return n.ID
	}
	return data.Title
}
