package tui

import (
	"fmt"
	"io"
	"strings"

	"github.com/aretw0/tapestry/pkg/domain"
)

// HistoryMarkdown formats history entries as a markdown table. The entry
// whose Seq equals position is marked as current.
func HistoryMarkdown(entries []domain.Snapshot, position int) string {
	if len(entries) == 0 {
		return "_No history yet._\n"
	}

	var sb strings.Builder
	sb.WriteString("| # | Action | Nodes | Edges | Captured |\n")
	sb.WriteString("|---|--------|------:|------:|----------|\n")
	for _, e := range entries {
		marker := ""
		if e.Seq == position {
			marker = " ◀"
		}
		fmt.Fprintf(&sb, "| %d | %s%s | %d | %d | %s |\n",
			e.Seq, e.Label(), marker, len(e.Nodes), len(e.Edges), e.CapturedAt.Format("15:04:05.000"))
	}
	return sb.String()
}

// RenderHistory writes the history table to w, styled when w is a terminal.
func RenderHistory(w io.Writer, entries []domain.Snapshot, position int) error {
	out, err := NewRenderer(w)(HistoryMarkdown(entries, position))
	if err != nil {
		return fmt.Errorf("failed to render history: %w", err)
	}
	_, err = io.WriteString(w, out)
	return err
}

// LabelsMarkdown formats the event taxonomy as a markdown table.
func LabelsMarkdown() string {
	var sb strings.Builder
	sb.WriteString("| Event | Label |\n|-------|-------|\n")
	for _, k := range domain.AllEventKinds() {
		fmt.Fprintf(&sb, "| `%s` | %s |\n", k, k.Label())
	}
	return sb.String()
}
