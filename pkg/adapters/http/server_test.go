package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/tapestry/internal/logging"
	"github.com/aretw0/tapestry/internal/testutils"
	"github.com/aretw0/tapestry/pkg/adapters/memory"
	"github.com/aretw0/tapestry/pkg/domain"
	"github.com/aretw0/tapestry/pkg/editor"
	"github.com/aretw0/tapestry/pkg/history"
	"github.com/aretw0/tapestry/pkg/ports"
	"github.com/aretw0/tapestry/pkg/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	handler  http.Handler
	sessions *session.Manager
	sched    *testutils.ManualScheduler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithStores(t, nil)
}

func newFixtureWithStores(t *testing.T, stores session.StoreFactory) *fixture {
	t.Helper()
	sched := testutils.NewManualScheduler()
	reg := prometheus.NewRegistry()
	metrics := history.NewMetrics(reg)
	mgr := session.NewManager(stores, session.WithEditorOptions(
		editor.WithRecorderOptions(history.WithScheduler(sched), history.WithMetrics(metrics)),
	))
	t.Cleanup(func() { _ = mgr.CloseAll(context.Background()) })
	return &fixture{
		handler:  NewHandler(mgr, WithGatherer(reg)),
		sessions: mgr,
		sched:    sched,
	}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	return w
}

func (f *fixture) create(t *testing.T, id string) {
	t.Helper()
	g := testutils.SampleGraph()
	w := f.do(t, http.MethodPost, "/sessions", map[string]any{"id": id, "graph": g})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func TestHealthAndInfo(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	w = f.do(t, http.MethodGet, "/info", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"app":"tapestry-http"`)
}

func TestGetLabels(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/labels", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var labels map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &labels))
	assert.Len(t, labels, 10)
	assert.Equal(t, "Node Drag", labels["NodeDragStop"])
	assert.Equal(t, "Edge Delete (by other action)", labels["EdgeDeleteByDeleteBranch"])
}

func TestSessionLifecycle(t *testing.T) {
	f := newFixture(t)
	f.create(t, "s1")

	w := f.do(t, http.MethodPost, "/sessions", map[string]any{"id": "s1"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = f.do(t, http.MethodGet, "/sessions", nil)
	assert.JSONEq(t, `{"sessions":["s1"]}`, w.Body.String())

	w = f.do(t, http.MethodGet, "/sessions/s1/graph", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var g domain.Graph
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &g))
	assert.Len(t, g.Nodes, 3)

	w = f.do(t, http.MethodDelete, "/sessions/s1", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = f.do(t, http.MethodGet, "/sessions/s1/graph", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateSession_GeneratedID(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/sessions", nil)
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)

	var resp sessionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.ID)
	assert.Equal(t, "/sessions/"+resp.ID, w.Header().Get("Location"))
}

func TestValidation(t *testing.T) {
	f := newFixture(t)
	f.create(t, "s1")

	w := f.do(t, http.MethodPost, "/sessions/s1/events", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "event is required")

	w = f.do(t, http.MethodPut, "/sessions/s1/graph", map[string]any{"event": "NodeChange"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "graph is required")

	w = f.do(t, http.MethodPost, "/sessions", map[string]any{"id": "a/b"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/sessions/s1/events", strings.NewReader("{"))
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRecordEventAndHistory(t *testing.T) {
	f := newFixture(t)
	f.create(t, "s1")

	w := f.do(t, http.MethodPost, "/sessions/s1/events", recordEventRequest{Event: "NodeSelect"})
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.JSONEq(t, `{"event":"NodeSelect","recorded":false}`, w.Body.String())

	for i := 0; i < 3; i++ {
		w = f.do(t, http.MethodPost, "/sessions/s1/events", recordEventRequest{Event: "NodeDragStop"})
		require.Equal(t, http.StatusAccepted, w.Code)
	}
	f.sched.Advance(time.Second)

	w = f.do(t, http.MethodGet, "/sessions/s1/history", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var hist historyResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &hist))
	require.Len(t, hist.Entries, 1)
	assert.Equal(t, "NodeDragStop", hist.Entries[0].Event)
	assert.Equal(t, "Node Drag", hist.Entries[0].Label)
	assert.Equal(t, 1, hist.Position)

	w = f.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "tapestry_history_captures_total")
}

func TestPutGraphAndUndoRedo(t *testing.T) {
	f := newFixture(t)
	f.create(t, "s1")

	w := f.do(t, http.MethodPost, "/sessions/s1/undo", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	g := testutils.SampleGraph()
	g.Nodes = g.Nodes[:2]
	g.Edges = g.Edges[:1]
	w = f.do(t, http.MethodPut, "/sessions/s1/graph", putGraphRequest{Graph: &g, Event: "NodeDelete"})
	require.Equal(t, http.StatusAccepted, w.Code)
	f.sched.Advance(time.Second)

	g.Nodes = g.Nodes[:1]
	g.Edges = nil
	w = f.do(t, http.MethodPut, "/sessions/s1/graph", putGraphRequest{Graph: &g, Event: "NodeDelete"})
	require.Equal(t, http.StatusAccepted, w.Code)
	f.sched.Advance(time.Second)

	w = f.do(t, http.MethodPost, "/sessions/s1/undo", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var entry Entry
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entry))
	assert.Equal(t, 1, entry.Seq)
	assert.Len(t, entry.Nodes, 2)

	w = f.do(t, http.MethodGet, "/sessions/s1/graph", nil)
	var live domain.Graph
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &live))
	assert.Len(t, live.Nodes, 2)

	w = f.do(t, http.MethodPost, "/sessions/s1/redo", nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = f.do(t, http.MethodPost, "/sessions/s1/redo", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestSubscribeHistory(t *testing.T) {
	f := newFixture(t)
	f.create(t, "s1")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	wSub := httptest.NewRecorder()
	reqSub := httptest.NewRequest(http.MethodGet, "/sessions/s1/stream", nil).WithContext(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		f.handler.ServeHTTP(wSub, reqSub)
	}()

	time.Sleep(100 * time.Millisecond) // Wait for subscription to register

	ed, err := f.sessions.Get("s1")
	require.NoError(t, err)
	require.NoError(t, ed.SetTitle("llm", "Summarize"))
	f.sched.Advance(time.Second)

	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	output := wSub.Body.String()
	assert.Contains(t, output, "event: ping")
	assert.Contains(t, output, "event: entry")
	assert.Contains(t, output, `"label":"Node Title Change"`)
	assert.Contains(t, output, `"title":"Summarize"`)
}

// stuckStore keeps its history when asked to drop it.
type stuckStore struct{ *memory.Store }

func (stuckStore) Drop(ctx context.Context) error {
	return errors.New("connection reset")
}

func TestCloseSession_FailedDropStillDetachesStreams(t *testing.T) {
	f := newFixtureWithStores(t, func(string) ports.HistoryStore {
		return stuckStore{memory.NewStore()}
	})
	f.create(t, "s1")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		req := httptest.NewRequest(http.MethodGet, "/sessions/s1/stream", nil).WithContext(ctx)
		f.handler.ServeHTTP(httptest.NewRecorder(), req)
	}()
	time.Sleep(100 * time.Millisecond) // Wait for subscription to register

	w := f.do(t, http.MethodDelete, "/sessions/s1", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	_, err := f.sessions.Get("s1")
	require.ErrorIs(t, err, domain.ErrSessionNotFound)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("stream of the closed session is still open")
	}

	// A session reusing the ID streams its own entries.
	f.create(t, "s1")
	wSub := httptest.NewRecorder()
	subCtx, subCancel := context.WithCancel(context.Background())
	defer subCancel()
	subDone := make(chan struct{})
	go func() {
		defer close(subDone)
		req := httptest.NewRequest(http.MethodGet, "/sessions/s1/stream", nil).WithContext(subCtx)
		f.handler.ServeHTTP(wSub, req)
	}()
	time.Sleep(100 * time.Millisecond)

	ed, err := f.sessions.Get("s1")
	require.NoError(t, err)
	require.NoError(t, ed.DeleteNode("end"))
	f.sched.Advance(time.Second)

	time.Sleep(50 * time.Millisecond)
	subCancel()
	<-subDone
	assert.Contains(t, wSub.Body.String(), `"label":"Node Delete"`)
}

func TestStreamManager_DetachClosesSubscribers(t *testing.T) {
	sm := NewStreamManager(logging.NewNop())
	ch, cancel := sm.Subscribe("s1")

	sm.Broadcast("s1", "hello")
	assert.Equal(t, "hello", <-ch)

	sm.Detach("s1")
	_, open := <-ch
	assert.False(t, open)
	assert.NotPanics(t, cancel)
}
