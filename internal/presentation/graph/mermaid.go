package graph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aretw0/tapestry/pkg/domain"
)

// Overlay highlights nodes on the rendered graph.
type Overlay struct {
	// Changed lists nodes that differ from the previous history entry.
	Changed []string
}

// GenerateMermaid produces a Mermaid flowchart of a workflow graph.
// Node shapes follow the node type:
// - Start/End: ((Circle))
// - If/Else: {Rhombus}
// - Code/Tool/HTTP: [[Subroutine]]
// - LLM/Knowledge: [/Parallelogram/]
// - Default: [Rectangle]
// Edges leaving through a named branch handle carry the handle as label.
// The selected node and overlay nodes get their own classes.
func GenerateMermaid(g domain.Graph, overlay *Overlay) string {
	var sb strings.Builder
	sb.WriteString("graph LR\n")

	var selected string
	for _, node := range g.Nodes {
		safeID := sanitizeMermaidID(node.ID)

		opener, closer := "[", "]"
		switch node.Type {
		case domain.NodeTypeStart, domain.NodeTypeEnd:
			opener, closer = "((", "))"
		case domain.NodeTypeIfElse:
			opener, closer = "{", "}"
		case domain.NodeTypeCode, domain.NodeTypeTool, domain.NodeTypeHTTPRequest:
			opener, closer = "[[", "]]"
		case domain.NodeTypeLLM, domain.NodeTypeKnowledge:
			opener, closer = "[/", "/]"
		}

		fmt.Fprintf(&sb, "    %s%s\"%s\"%s\n", safeID, opener, escapeLabel(node.Title()), closer)
		if node.Selected {
			selected = safeID
		}
	}

	for _, e := range g.Edges {
		arrow := "-->"
		if h := e.SourceHandle; h != "" && h != "source" {
			arrow = fmt.Sprintf("-- \"%s\" -->", escapeLabel(h))
		}
		fmt.Fprintf(&sb, "    %s %s %s\n", sanitizeMermaidID(e.Source), arrow, sanitizeMermaidID(e.Target))
	}

	if selected == "" && (overlay == nil || len(overlay.Changed) == 0) {
		return sb.String()
	}

	sb.WriteString("\n    %% Overlay Styles\n")
	// Force black text (color:#000) for high-contrast on light backgrounds, regardless of theme (Light/Dark)
	sb.WriteString("    classDef changed fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
	sb.WriteString("    classDef selected fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")
	if overlay != nil {
		seen := make(map[string]bool)
		for _, id := range overlay.Changed {
			safeID := sanitizeMermaidID(id)
			if !seen[safeID] && safeID != "" {
				seen[safeID] = true
				fmt.Fprintf(&sb, "    class %s changed;\n", safeID)
			}
		}
	}
	if selected != "" {
		fmt.Fprintf(&sb, "    class %s selected;\n", selected)
	}
	return sb.String()
}

// ChangedNodes returns the IDs of nodes added, removed or modified between
// two graphs, sorted.
func ChangedNodes(before, after domain.Graph) []string {
	var ids []string
	for _, n := range after.Nodes {
		prev, ok := before.Node(n.ID)
		if !ok || !sameNode(prev, n) {
			ids = append(ids, n.ID)
		}
	}
	for _, n := range before.Nodes {
		if _, ok := after.Node(n.ID); !ok {
			ids = append(ids, n.ID)
		}
	}
	sort.Strings(ids)
	return ids
}

func sameNode(a, b domain.Node) bool {
	a.Selected, b.Selected = false, false
	return fmt.Sprintf("%#v", a) == fmt.Sprintf("%#v", b)
}

func escapeLabel(s string) string {
	return strings.ReplaceAll(s, "\"", "'")
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	return s
}
