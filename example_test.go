package tapestry_test

import (
	"context"
	"fmt"
	"log"

	"github.com/aretw0/tapestry"
	"github.com/aretw0/tapestry/pkg/domain"
)

// ExampleNew shows a burst of edits collapsing into one history entry.
func ExampleNew() {
	ctx := context.Background()
	app, err := tapestry.New()
	if err != nil {
		log.Fatal(err)
	}
	defer app.Close(ctx)

	ed, err := app.Open(ctx, "demo", domain.Graph{
		Nodes: []domain.Node{{ID: "start", Type: domain.NodeTypeStart}},
	})
	if err != nil {
		log.Fatal(err)
	}

	// Three edits inside one window.
	if _, err := ed.AddNode(domain.Node{ID: "llm", Type: domain.NodeTypeLLM}); err != nil {
		log.Fatal(err)
	}
	if _, err := ed.Connect(domain.Edge{Source: "start", Target: "llm"}); err != nil {
		log.Fatal(err)
	}
	if err := ed.SetTitle("llm", "Summarize"); err != nil {
		log.Fatal(err)
	}

	// Commit now instead of waiting for the window to elapse.
	ed.Flush()

	entries, _, err := ed.History(ctx)
	if err != nil {
		log.Fatal(err)
	}
	for _, e := range entries {
		fmt.Printf("%d %s (%d nodes, %d edges)\n", e.Seq, e.Label, len(e.Nodes), len(e.Edges))
	}
	// Output:
	// 1 Node Title Change (2 nodes, 1 edges)
}

func Example_labels() {
	fmt.Println(domain.LabelFor(domain.EventEdgeDeleteByDeleteBranch))
	fmt.Println(domain.LabelFor("ViewportChange"))
	// Output:
	// Edge Delete (by other action)
	// Unknown Event
}
