package editor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aretw0/tapestry/internal/logging"
	"github.com/aretw0/tapestry/pkg/adapters/memory"
	"github.com/aretw0/tapestry/pkg/domain"
	"github.com/aretw0/tapestry/pkg/history"
	"github.com/aretw0/tapestry/pkg/ports"
	"github.com/google/uuid"
)

// EventNodeSelect is emitted when a node is selected on the canvas.
// It is UI-only and never reaches the history.
const EventNodeSelect domain.EventKind = "NodeSelect"

// pasteOffset shifts pasted nodes so they do not cover their originals.
const pasteOffset = 50.0

// Entry is a history entry prepared for display.
type Entry struct {
	domain.Snapshot
	Label string `json:"label"`
}

// Editor is one editing session: a live canvas, the recorder observing it
// and an undo/redo cursor over its history store.
type Editor struct {
	ID string

	canvas   *memory.Canvas
	store    ports.HistoryStore
	recorder *history.Recorder
	cursor   *history.Cursor
	logger   *slog.Logger

	// restore serializes undo/redo so the cursor and the canvas move together.
	restore sync.Mutex

	subsMu sync.RWMutex
	subs   map[int]func(domain.Snapshot)
	nextID int
}

// Option configures an Editor.
type Option func(*config)

type config struct {
	logger      *slog.Logger
	initial     domain.Graph
	recorderOpt []history.Option
}

// WithLogger configures a logger for the Editor and its recorder.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithGraph seeds the canvas.
func WithGraph(g domain.Graph) Option {
	return func(c *config) {
		c.initial = g
	}
}

// WithRecorderOptions passes options through to the history recorder.
func WithRecorderOptions(opts ...history.Option) Option {
	return func(c *config) {
		c.recorderOpt = append(c.recorderOpt, opts...)
	}
}

// New creates an editor appending its history to store.
func New(id string, store ports.HistoryStore, opts ...Option) *Editor {
	cfg := &config{logger: logging.NewNop()}
	for _, opt := range opts {
		opt(cfg)
	}

	e := &Editor{
		ID:     id,
		canvas: memory.NewCanvas(cfg.initial),
		store:  store,
		cursor: history.NewCursor(cfg.initial),
		logger: cfg.logger.With("session_id", id),
		subs:   make(map[int]func(domain.Snapshot)),
	}

	recOpts := append([]history.Option{
		history.WithLogger(e.logger),
		history.WithOnAppend(e.appended),
	}, cfg.recorderOpt...)
	e.recorder = history.NewRecorder(e.canvas, store, recOpts...)
	return e
}

// Graph returns the live graph.
func (e *Editor) Graph(ctx context.Context) (domain.Graph, error) {
	return e.canvas.Graph(ctx)
}

// Record forwards an event from an external surface to the recorder.
// Unknown kinds are ignored.
func (e *Editor) Record(kind domain.EventKind) {
	e.recorder.Record(kind)
}

// ReplaceGraph installs a graph pushed by an external canvas and records kind.
func (e *Editor) ReplaceGraph(g domain.Graph, kind domain.EventKind) error {
	if err := e.canvas.Replace(g); err != nil {
		return err
	}
	e.recorder.Record(kind)
	return nil
}

// AddNode places a new node. An empty ID gets a generated one.
func (e *Editor) AddNode(n domain.Node) (domain.Node, error) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if err := e.canvas.AddNode(n); err != nil {
		return domain.Node{}, err
	}
	e.recorder.Record(domain.EventNodeAdd)
	return n, nil
}

// Paste duplicates the given nodes with fresh IDs, offset on the canvas.
// Edges between pasted nodes are duplicated too. It returns the new nodes.
func (e *Editor) Paste(ctx context.Context, ids ...string) ([]domain.Node, error) {
	g, err := e.canvas.Graph(ctx)
	if err != nil {
		return nil, err
	}

	renamed := make(map[string]string, len(ids))
	var pasted []domain.Node
	for _, id := range ids {
		n, ok := g.Node(id)
		if !ok {
			return nil, fmt.Errorf("%w: %s", domain.ErrNodeNotFound, id)
		}
		n = n.Clone()
		renamed[id] = uuid.NewString()
		n.ID = renamed[id]
		n.Position.X += pasteOffset
		n.Position.Y += pasteOffset
		n.Selected = false
		pasted = append(pasted, n)
	}

	for _, n := range pasted {
		if err := e.canvas.AddNode(n); err != nil {
			return nil, err
		}
	}
	for _, edge := range g.Edges {
		src, okSrc := renamed[edge.Source]
		dst, okDst := renamed[edge.Target]
		if !okSrc || !okDst {
			continue
		}
		edge = edge.Clone()
		edge.ID = uuid.NewString()
		edge.Source, edge.Target = src, dst
		if err := e.canvas.Connect(edge); err != nil {
			return nil, err
		}
	}

	if len(pasted) > 0 {
		e.recorder.Record(domain.EventNodePaste)
	}
	return pasted, nil
}

// Drag moves a node by a delta. Intermediate drag steps are not recorded;
// call DragStop when the gesture ends.
func (e *Editor) Drag(id string, dx, dy float64) error {
	return e.canvas.MoveNode(id, dx, dy)
}

// DragStop ends a drag gesture.
func (e *Editor) DragStop(id string) error {
	if err := e.canvas.UpdateNode(id, func(*domain.Node) {}); err != nil {
		return err
	}
	e.recorder.Record(domain.EventNodeDragStop)
	return nil
}

// SetTitle is the title-blur handler of the node panel.
func (e *Editor) SetTitle(id, title string) error {
	return e.setData(id, domain.KeyTitle, title, domain.EventNodeTitleChange)
}

// SetDescription is the description-change handler of the node panel.
func (e *Editor) SetDescription(id, desc string) error {
	return e.setData(id, domain.KeyDesc, desc, domain.EventNodeDescriptionChange)
}

// UpdateData merges fields into a node's data.
func (e *Editor) UpdateData(id string, fields map[string]any) error {
	err := e.canvas.UpdateNode(id, func(n *domain.Node) {
		if n.Data == nil {
			n.Data = make(map[string]any, len(fields))
		}
		for k, v := range (domain.Node{Data: fields}).Clone().Data {
			n.Data[k] = v
		}
	})
	if err != nil {
		return err
	}
	e.recorder.Record(domain.EventNodeChange)
	return nil
}

func (e *Editor) setData(id, key, value string, kind domain.EventKind) error {
	err := e.canvas.UpdateNode(id, func(n *domain.Node) {
		if n.Data == nil {
			n.Data = make(map[string]any)
		}
		n.Data[key] = value
	})
	if err != nil {
		return err
	}
	e.recorder.Record(kind)
	return nil
}

// Connect links two nodes. An empty edge ID gets a generated one.
func (e *Editor) Connect(edge domain.Edge) (domain.Edge, error) {
	if edge.ID == "" {
		edge.ID = uuid.NewString()
	}
	if err := e.canvas.Connect(edge); err != nil {
		return domain.Edge{}, err
	}
	e.recorder.Record(domain.EventNodeConnect)
	return edge, nil
}

// DeleteNode removes a node and its incident edges.
func (e *Editor) DeleteNode(id string) error {
	if _, err := e.canvas.RemoveNode(id); err != nil {
		return err
	}
	e.recorder.Record(domain.EventNodeDelete)
	return nil
}

// DeleteEdge removes one edge.
func (e *Editor) DeleteEdge(id string) error {
	if err := e.canvas.RemoveEdge(id); err != nil {
		return err
	}
	e.recorder.Record(domain.EventEdgeDelete)
	return nil
}

// DeleteBranch removes a branch of a branching node (e.g. an if/else case)
// and with it every edge leaving through that handle.
// Nothing is recorded when the branch had no edges.
func (e *Editor) DeleteBranch(nodeID, handle string) (int, error) {
	removed, err := e.canvas.RemoveEdgesFromHandle(nodeID, handle)
	if err != nil {
		return 0, err
	}
	if len(removed) > 0 {
		e.recorder.Record(domain.EventEdgeDeleteByDeleteBranch)
	}
	return len(removed), nil
}

// Select changes the canvas selection. Selection is not part of history.
func (e *Editor) Select(id string) error {
	if err := e.canvas.Select(id); err != nil {
		return err
	}
	e.recorder.Record(EventNodeSelect)
	return nil
}

// Flush commits a pending capture without waiting for the window.
func (e *Editor) Flush() bool {
	return e.recorder.Flush()
}

// Undo restores the canvas to the previous history entry.
// A pending capture is committed first so the latest edit can be redone.
func (e *Editor) Undo(ctx context.Context) (domain.Snapshot, error) {
	return e.move(ctx, e.cursor.Undo, domain.ErrNothingToUndo)
}

// Redo restores the canvas to the next history entry.
func (e *Editor) Redo(ctx context.Context) (domain.Snapshot, error) {
	return e.move(ctx, e.cursor.Redo, domain.ErrNothingToRedo)
}

func (e *Editor) move(ctx context.Context, step func() (domain.Snapshot, bool), none error) (domain.Snapshot, error) {
	e.restore.Lock()
	defer e.restore.Unlock()

	e.recorder.Flush()
	if err := e.sync(ctx); err != nil {
		return domain.Snapshot{}, err
	}

	snap, ok := step()
	if !ok {
		return domain.Snapshot{}, none
	}
	if err := e.canvas.Replace(snap.Graph()); err != nil {
		return domain.Snapshot{}, err
	}
	e.logger.Debug("History cursor moved", "seq", snap.Seq, "event", snap.Event)
	return snap, nil
}

func (e *Editor) sync(ctx context.Context) error {
	entries, err := e.store.Entries(ctx)
	if err != nil {
		return fmt.Errorf("failed to read history: %w", err)
	}
	e.cursor.Sync(entries)
	return nil
}

// History returns the entries with their labels and the cursor position.
func (e *Editor) History(ctx context.Context) ([]Entry, int, error) {
	e.restore.Lock()
	defer e.restore.Unlock()

	entries, err := e.store.Entries(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read history: %w", err)
	}
	e.cursor.Sync(entries)

	out := make([]Entry, len(entries))
	for i, s := range entries {
		out[i] = Entry{Snapshot: s, Label: s.Label()}
	}
	return out, e.cursor.Position(), nil
}

// Subscribe registers fn to be called for every appended entry.
// The returned function unregisters it.
func (e *Editor) Subscribe(fn func(domain.Snapshot)) func() {
	e.subsMu.Lock()
	defer e.subsMu.Unlock()
	id := e.nextID
	e.nextID++
	e.subs[id] = fn
	return func() {
		e.subsMu.Lock()
		defer e.subsMu.Unlock()
		delete(e.subs, id)
	}
}

func (e *Editor) appended(s domain.Snapshot) {
	e.subsMu.RLock()
	defer e.subsMu.RUnlock()
	for _, fn := range e.subs {
		fn(s)
	}
}

// Store returns the history store of the editor.
func (e *Editor) Store() ports.HistoryStore {
	return e.store
}

// Close tears the editor down. A pending capture is discarded, never
// committed after the fact, and later gestures fail with
// domain.ErrSourceUnavailable. The history store is left untouched.
func (e *Editor) Close() {
	e.recorder.Close()
	e.canvas.Detach()
	e.logger.Debug("Editor closed")
}
