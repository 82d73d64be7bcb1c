package history_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/tapestry/internal/testutils"
	"github.com/aretw0/tapestry/pkg/adapters/memory"
	"github.com/aretw0/tapestry/pkg/domain"
	"github.com/aretw0/tapestry/pkg/history"
	"github.com/aretw0/tapestry/pkg/ports"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const delay = 500 * time.Millisecond

type fixture struct {
	canvas    *memory.Canvas
	store     *memory.Store
	scheduler *testutils.ManualScheduler
	metrics   *history.Metrics
	recorder  *history.Recorder
}

func newFixture(t *testing.T, opts ...history.Option) *fixture {
	t.Helper()
	f := &fixture{
		canvas:    memory.NewCanvas(testutils.SampleGraph()),
		store:     memory.NewStore(),
		scheduler: testutils.NewManualScheduler(),
		metrics:   history.NewMetrics(nil),
	}
	opts = append([]history.Option{
		history.WithDelay(delay),
		history.WithScheduler(f.scheduler),
		history.WithMetrics(f.metrics),
	}, opts...)
	f.recorder = history.NewRecorder(f.canvas, f.store, opts...)
	t.Cleanup(f.recorder.Close)
	return f
}

func (f *fixture) entries(t *testing.T) []domain.Snapshot {
	t.Helper()
	entries, err := f.store.Entries(context.Background())
	require.NoError(t, err)
	return entries
}

func TestRecorder_EveryWorthyKindAppendsOnce(t *testing.T) {
	for _, kind := range domain.AllEventKinds() {
		t.Run(string(kind), func(t *testing.T) {
			f := newFixture(t)

			f.recorder.Record(kind)
			f.scheduler.Advance(delay + 100*time.Millisecond)

			entries := f.entries(t)
			require.Len(t, entries, 1)
			assert.Equal(t, kind, entries[0].Event)
			assert.Equal(t, 1, entries[0].Seq)
		})
	}
}

func TestRecorder_IgnoresUIOnlyEvents(t *testing.T) {
	f := newFixture(t)

	for i := 0; i < 100; i++ {
		f.recorder.Record("NodeSelect")
		f.recorder.Record("ViewportChange")
	}
	f.scheduler.Advance(10 * delay)

	assert.Empty(t, f.entries(t))
	assert.Equal(t, 0, f.scheduler.Pending(), "ignored events must not arm a timer")
	_, pending := f.recorder.Pending()
	assert.False(t, pending)
	assert.Equal(t, 200.0, testutil.ToFloat64(f.metrics.Events.WithLabelValues("other", "ignored")))
}

func TestRecorder_CoalescesLastKindWins(t *testing.T) {
	f := newFixture(t)

	f.recorder.Record(domain.EventNodeChange)
	f.scheduler.Advance(300 * time.Millisecond)
	require.NoError(t, f.canvas.MoveNode("llm", 50, 0))
	f.recorder.Record(domain.EventNodeDragStop)

	// The window restarts at the second call.
	f.scheduler.Advance(499 * time.Millisecond)
	assert.Empty(t, f.entries(t))
	kind, pending := f.recorder.Pending()
	assert.True(t, pending)
	assert.Equal(t, domain.EventNodeDragStop, kind)

	f.scheduler.Advance(1 * time.Millisecond)
	entries := f.entries(t)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.EventNodeDragStop, entries[0].Event)
	n, ok := domain.Graph{Nodes: entries[0].Nodes}.Node("llm")
	require.True(t, ok)
	assert.Equal(t, 290.0, n.Position.X)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Superseded))
}

func TestRecorder_SnapshotReadAtElapse(t *testing.T) {
	f := newFixture(t)

	f.recorder.Record(domain.EventNodeAdd)
	require.NoError(t, f.canvas.AddNode(domain.Node{ID: "late", Type: domain.NodeTypeCode}))
	f.scheduler.Advance(delay)

	entries := f.entries(t)
	require.Len(t, entries, 1)
	_, ok := domain.Graph{Nodes: entries[0].Nodes}.Node("late")
	assert.True(t, ok, "snapshot must reflect graph state when the window elapsed")
}

func TestRecorder_DragBurstScenario(t *testing.T) {
	f := newFixture(t)

	for i := 0; i < 5; i++ {
		f.recorder.Record(domain.EventNodeDragStop)
		f.scheduler.Advance(100 * time.Millisecond)
	}
	f.scheduler.Advance(600 * time.Millisecond)

	entries := f.entries(t)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.EventNodeDragStop, entries[0].Event)
}

func TestRecorder_SpacedEventsScenario(t *testing.T) {
	f := newFixture(t)

	f.recorder.Record(domain.EventNodeAdd)
	f.scheduler.Advance(600 * time.Millisecond)
	require.Len(t, f.entries(t), 1)

	f.recorder.Record(domain.EventEdgeDelete)
	f.scheduler.Advance(600 * time.Millisecond)

	entries := f.entries(t)
	require.Len(t, entries, 2)
	assert.Equal(t, domain.EventNodeAdd, entries[0].Event)
	assert.Equal(t, "Edge Delete", entries[1].Label())
	assert.Equal(t, "Edge Delete", f.store.LabelFor(entries[1].Event))
}

func TestRecorder_EntriesNeverChangeAfterInsertion(t *testing.T) {
	f := newFixture(t)

	kinds := []domain.EventKind{domain.EventNodeAdd, domain.EventNodeTitleChange, domain.EventNodeDelete}
	titles := []string{"First", "Second", "Third"}
	for i, kind := range kinds {
		title := titles[i]
		require.NoError(t, f.canvas.UpdateNode("start", func(n *domain.Node) {
			n.Data[domain.KeyTitle] = title
		}))
		f.recorder.Record(kind)
		f.scheduler.Advance(time.Second)
	}

	entries := f.entries(t)
	require.Len(t, entries, len(kinds))
	for i, e := range entries {
		assert.Equal(t, kinds[i], e.Event)
		assert.Equal(t, i+1, e.Seq)
		n, _ := domain.Graph{Nodes: e.Nodes}.Node("start")
		assert.Equal(t, titles[i], n.Data[domain.KeyTitle])
	}
}

func TestRecorder_CloseDiscardsPending(t *testing.T) {
	f := newFixture(t)

	f.recorder.Record(domain.EventNodePaste)
	f.recorder.Close()
	f.scheduler.Advance(time.Second)

	assert.Empty(t, f.entries(t))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Discarded))

	f.recorder.Record(domain.EventNodePaste)
	f.scheduler.Advance(time.Second)
	assert.Empty(t, f.entries(t), "Record after Close must be a no-op")

	assert.NotPanics(t, f.recorder.Close)
}

func TestRecorder_AbandonsWhenSourceDetached(t *testing.T) {
	f := newFixture(t)

	f.recorder.Record(domain.EventNodeDelete)
	f.canvas.Detach()
	f.scheduler.Advance(time.Second)

	assert.Empty(t, f.entries(t))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Abandoned))
}

func TestRecorder_Flush(t *testing.T) {
	var appended []domain.Snapshot
	f := newFixture(t, history.WithOnAppend(func(s domain.Snapshot) {
		appended = append(appended, s)
	}))

	assert.False(t, f.recorder.Flush(), "nothing pending")

	f.recorder.Record(domain.EventNodeConnect)
	assert.True(t, f.recorder.Flush())
	require.Len(t, f.entries(t), 1)

	// The stopped timer must not produce a second entry.
	f.scheduler.Advance(time.Second)
	require.Len(t, f.entries(t), 1)
	require.Len(t, appended, 1)
	assert.Equal(t, domain.EventNodeConnect, appended[0].Event)
}

func TestRecorder_ClockStampsCapture(t *testing.T) {
	at := time.Date(2024, 7, 4, 10, 0, 0, 0, time.UTC)
	f := newFixture(t, history.WithClock(func() time.Time { return at }))

	f.recorder.Record(domain.EventNodeAdd)
	f.scheduler.Advance(delay)

	entries := f.entries(t)
	require.Len(t, entries, 1)
	assert.True(t, at.Equal(entries[0].CapturedAt))
}

// stubbornScheduler never manages to stop a timer, as when time.AfterFunc
// has already started the callback goroutine.
type stubbornScheduler struct {
	mu    sync.Mutex
	funcs []func()
}

type stubbornTimer struct{}

func (stubbornTimer) Stop() bool { return false }

func (s *stubbornScheduler) AfterFunc(d time.Duration, f func()) ports.Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.funcs = append(s.funcs, f)
	return stubbornTimer{}
}

func TestRecorder_SupersededCallbackIsNoop(t *testing.T) {
	sched := &stubbornScheduler{}
	store := memory.NewStore()
	rec := history.NewRecorder(memory.NewCanvas(testutils.SampleGraph()), store, history.WithScheduler(sched))
	defer rec.Close()

	rec.Record(domain.EventNodeChange)
	rec.Record(domain.EventNodeDelete)
	require.Len(t, sched.funcs, 2)

	sched.funcs[0]()
	n, _ := store.Len(context.Background())
	assert.Equal(t, 0, n, "superseded callback must not append")

	sched.funcs[1]()
	entries, _ := store.Entries(context.Background())
	require.Len(t, entries, 1)
	assert.Equal(t, domain.EventNodeDelete, entries[0].Event)

	// Firing again is harmless.
	sched.funcs[1]()
	n, _ = store.Len(context.Background())
	assert.Equal(t, 1, n)
}

// closingSource closes its recorder while the graph is being read, as an
// editor torn down mid-capture does.
type closingSource struct {
	rec *history.Recorder
}

func (s *closingSource) Graph(ctx context.Context) (domain.Graph, error) {
	s.rec.Close()
	return testutils.SampleGraph(), nil
}

func TestRecorder_CloseDuringGraphReadAbandons(t *testing.T) {
	sched := testutils.NewManualScheduler()
	metrics := history.NewMetrics(nil)
	store := memory.NewStore()
	src := &closingSource{}
	src.rec = history.NewRecorder(src, store, history.WithScheduler(sched), history.WithMetrics(metrics))

	src.rec.Record(domain.EventNodeDelete)
	sched.Advance(time.Second)

	n, err := store.Len(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n, "no entry may land after Close")
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Abandoned))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.Failed))
}

// blockingStore holds Append until its context is cancelled.
type blockingStore struct {
	memory.Store
	entered chan struct{}
}

func (s *blockingStore) Append(ctx context.Context, snap domain.Snapshot) (domain.Snapshot, error) {
	close(s.entered)
	<-ctx.Done()
	return domain.Snapshot{}, ctx.Err()
}

func TestRecorder_CloseWaitsForInFlightAppend(t *testing.T) {
	metrics := history.NewMetrics(nil)
	store := &blockingStore{entered: make(chan struct{})}
	rec := history.NewRecorder(memory.NewCanvas(testutils.SampleGraph()), store,
		history.WithScheduler(testutils.NewManualScheduler()), history.WithMetrics(metrics))

	rec.Record(domain.EventNodeAdd)
	flushed := make(chan bool)
	go func() { flushed <- rec.Flush() }()

	<-store.entered
	rec.Close()

	select {
	case ok := <-flushed:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("capture still running after Close returned")
	}
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Abandoned))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.Failed))
}

type failingStore struct{ memory.Store }

func (*failingStore) Append(ctx context.Context, s domain.Snapshot) (domain.Snapshot, error) {
	return domain.Snapshot{}, errors.New("disk full")
}

func TestRecorder_AppendFailureIsSwallowed(t *testing.T) {
	sched := testutils.NewManualScheduler()
	metrics := history.NewMetrics(nil)
	rec := history.NewRecorder(memory.NewCanvas(testutils.SampleGraph()), &failingStore{},
		history.WithScheduler(sched), history.WithMetrics(metrics))
	defer rec.Close()

	rec.Record(domain.EventNodeAdd)
	assert.NotPanics(t, func() { sched.Advance(time.Second) })
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Failed))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.Captures.WithLabelValues("NodeAdd")))
}

func TestRecorder_DefaultDelay(t *testing.T) {
	rec := history.NewRecorder(memory.NewCanvas(domain.Graph{}), memory.NewStore(), history.WithDelay(0))
	defer rec.Close()
	assert.Equal(t, history.DefaultDelay, rec.Delay())
}

func TestRecorder_WallClock(t *testing.T) {
	store := memory.NewStore()
	rec := history.NewRecorder(memory.NewCanvas(testutils.SampleGraph()), store,
		history.WithDelay(30*time.Millisecond))
	defer rec.Close()

	for i := 0; i < 5; i++ {
		rec.Record(domain.EventNodeDragStop)
	}

	assert.Eventually(t, func() bool {
		n, _ := store.Len(context.Background())
		return n == 1
	}, time.Second, 5*time.Millisecond)

	// Nothing else is pending, so the count stays at one.
	time.Sleep(100 * time.Millisecond)
	entries, err := store.Entries(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.EventNodeDragStop, entries[0].Event)
}

func TestDefault_IsProcessWide(t *testing.T) {
	a := history.Default()
	b := history.Default()
	assert.Same(t, a, b)
}
