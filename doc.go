/*
Package tapestry records the edit history of a node-and-edge workflow editor.

Editor events are classified against a closed taxonomy. Events that only
change UI state are dropped; history-worthy events are coalesced with a
trailing-edge debounce, so a burst of edits produces exactly one history
entry, tagged with the last event of the burst and holding a copy of the
graph as it stood when the burst ended.

# Layout

  - pkg/domain: event kinds and labels, graph model, snapshots.
  - pkg/history: the coalescing Recorder and the undo/redo Cursor.
  - pkg/editor: gestures on a live canvas, each recording its event.
  - pkg/session: many editing sessions per process.
  - pkg/adapters: in-memory and Redis stores, HTTP and MCP transports.

# Usage

	app, err := tapestry.New(tapestry.WithDebounce(300 * time.Millisecond))
	if err != nil {
		log.Fatal(err)
	}
	defer app.Close(ctx)

	ed, err := app.Open(ctx, "", graph)
	if err != nil {
		log.Fatal(err)
	}
	_ = ed.SetTitle("llm", "Summarize")
	ed.Flush()

	entries, _, _ := ed.History(ctx)
	fmt.Println(entries[0].Label) // Node Title Change
*/
package tapestry
