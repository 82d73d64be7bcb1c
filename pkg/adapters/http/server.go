package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aretw0/tapestry"
	"github.com/aretw0/tapestry/internal/logging"
	"github.com/aretw0/tapestry/pkg/domain"
	"github.com/aretw0/tapestry/pkg/editor"
	"github.com/aretw0/tapestry/pkg/session"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server serves editing sessions over HTTP.
type Server struct {
	Sessions *session.Manager
	Streams  *StreamManager

	gatherer  prometheus.Gatherer
	logger    *slog.Logger
	validator *validator.Validate
}

// Option configures the Server.
type Option func(*Server)

// WithLogger configures a logger for the Server.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithGatherer sets the registry exposed on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// NewHandler creates the HTTP handler for a session registry.
func NewHandler(sessions *session.Manager, opts ...Option) http.Handler {
	s := &Server{
		Sessions:  sessions,
		gatherer:  prometheus.DefaultGatherer,
		logger:    logging.NewNop(),
		validator: newValidator(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.Streams = NewStreamManager(s.logger)

	r := chi.NewRouter()
	r.Get("/health", s.GetHealth)
	r.Get("/info", s.GetInfo)
	r.Get("/labels", s.GetLabels)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", s.CreateSession)
		r.Get("/", s.ListSessions)
		r.Route("/{id}", func(r chi.Router) {
			r.Delete("/", s.CloseSession)
			r.Get("/graph", s.GetGraph)
			r.Put("/graph", s.PutGraph)
			r.Post("/events", s.RecordEvent)
			r.Get("/history", s.GetHistory)
			r.Post("/undo", s.Undo)
			r.Post("/redo", s.Redo)
			r.Get("/stream", s.SubscribeHistory)
		})
	})

	return enableCORS(r)
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Custom-Header")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// -- Wire types --

type createSessionRequest struct {
	ID    string        `json:"id" validate:"omitempty,max=128,excludesall=/?#"`
	Graph *domain.Graph `json:"graph"`
}

type putGraphRequest struct {
	Graph *domain.Graph `json:"graph" validate:"required"`
	Event string        `json:"event" validate:"required,max=64"`
}

type recordEventRequest struct {
	Event string `json:"event" validate:"required,max=64"`
}

type sessionResponse struct {
	ID string `json:"id"`
}

type recordEventResponse struct {
	Event    string `json:"event"`
	Recorded bool   `json:"recorded"`
}

// Entry is a history entry on the wire.
type Entry struct {
	Seq        int           `json:"seq"`
	Event      string        `json:"event"`
	Label      string        `json:"label"`
	CapturedAt string        `json:"captured_at"`
	Nodes      []domain.Node `json:"nodes"`
	Edges      []domain.Edge `json:"edges"`
}

type historyResponse struct {
	Entries  []Entry `json:"entries"`
	Position int     `json:"position"`
}

func entryFromSnapshot(s domain.Snapshot) Entry {
	return Entry{
		Seq:        s.Seq,
		Event:      string(s.Event),
		Label:      s.Label(),
		CapturedAt: s.CapturedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		Nodes:      s.Nodes,
		Edges:      s.Edges,
	}
}

// -- Handlers --

// GetHealth handles the GET /health request.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles the GET /info request.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"app":      "tapestry-http",
		"version":  strings.TrimSpace(tapestry.Version),
		"sessions": len(s.Sessions.List()),
	})
}

// GetLabels handles the GET /labels request.
func (s *Server) GetLabels(w http.ResponseWriter, r *http.Request) {
	labels := make(map[string]string)
	for _, k := range domain.AllEventKinds() {
		labels[string(k)] = k.Label()
	}
	s.writeJSON(w, http.StatusOK, labels)
}

// CreateSession handles the POST /sessions request.
func (s *Server) CreateSession(w http.ResponseWriter, r *http.Request) {
	var body createSessionRequest
	if r.ContentLength != 0 {
		if !s.decode(w, r, &body) {
			return
		}
	}

	var g domain.Graph
	if body.Graph != nil {
		g = *body.Graph
	}
	ed, err := s.Sessions.Create(r.Context(), body.ID, g)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.Streams.Attach(ed.ID, ed)

	w.Header().Set("Location", "/sessions/"+ed.ID)
	s.writeJSON(w, http.StatusCreated, sessionResponse{ID: ed.ID})
}

// ListSessions handles the GET /sessions request.
func (s *Server) ListSessions(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string][]string{"sessions": s.Sessions.List()})
}

// CloseSession handles the DELETE /sessions/{id} request.
func (s *Server) CloseSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	err := s.Sessions.Close(r.Context(), id)
	// A failed drop still removes the session; its streams go with it.
	if _, getErr := s.Sessions.Get(id); errors.Is(getErr, domain.ErrSessionNotFound) {
		s.Streams.Detach(id)
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetGraph handles the GET /sessions/{id}/graph request.
func (s *Server) GetGraph(w http.ResponseWriter, r *http.Request) {
	ed, ok := s.editor(w, r)
	if !ok {
		return
	}
	g, err := ed.Graph(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, g)
}

// PutGraph handles the PUT /sessions/{id}/graph request: an external canvas
// pushes its state together with the event that produced it.
func (s *Server) PutGraph(w http.ResponseWriter, r *http.Request) {
	ed, ok := s.editor(w, r)
	if !ok {
		return
	}
	var body putGraphRequest
	if !s.decode(w, r, &body) {
		return
	}
	kind := domain.EventKind(body.Event)
	if err := ed.ReplaceGraph(*body.Graph, kind); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, recordEventResponse{Event: body.Event, Recorded: domain.IsHistoryWorthy(kind)})
}

// RecordEvent handles the POST /sessions/{id}/events request.
func (s *Server) RecordEvent(w http.ResponseWriter, r *http.Request) {
	ed, ok := s.editor(w, r)
	if !ok {
		return
	}
	var body recordEventRequest
	if !s.decode(w, r, &body) {
		return
	}
	kind := domain.EventKind(body.Event)
	ed.Record(kind)
	s.writeJSON(w, http.StatusAccepted, recordEventResponse{Event: body.Event, Recorded: domain.IsHistoryWorthy(kind)})
}

// GetHistory handles the GET /sessions/{id}/history request.
func (s *Server) GetHistory(w http.ResponseWriter, r *http.Request) {
	ed, ok := s.editor(w, r)
	if !ok {
		return
	}
	entries, pos, err := ed.History(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	resp := historyResponse{Entries: make([]Entry, len(entries)), Position: pos}
	for i, e := range entries {
		resp.Entries[i] = entryFromSnapshot(e.Snapshot)
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// Undo handles the POST /sessions/{id}/undo request.
func (s *Server) Undo(w http.ResponseWriter, r *http.Request) {
	s.restore(w, r, (*editor.Editor).Undo)
}

// Redo handles the POST /sessions/{id}/redo request.
func (s *Server) Redo(w http.ResponseWriter, r *http.Request) {
	s.restore(w, r, (*editor.Editor).Redo)
}

func (s *Server) restore(w http.ResponseWriter, r *http.Request, move func(*editor.Editor, context.Context) (domain.Snapshot, error)) {
	ed, ok := s.editor(w, r)
	if !ok {
		return
	}
	snap, err := move(ed, r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, entryFromSnapshot(snap))
}

// SubscribeHistory handles the GET /sessions/{id}/stream request (SSE).
// Every entry appended to the session's history is sent as one data line.
func (s *Server) SubscribeHistory(w http.ResponseWriter, r *http.Request) {
	ed, ok := s.editor(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		s.logger.Error("SubscribeHistory: Streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	s.Streams.Attach(ed.ID, ed)
	ch, cancel := s.Streams.Subscribe(ed.ID)
	defer cancel()

	s.logger.Info("SSE: Subscribing to history", "session_id", ed.ID)
	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			s.logger.Info("SSE Client Disconnected", "session_id", ed.ID)
			return
		case msg, ok := <-ch:
			if !ok {
				// Session closed.
				return
			}
			fmt.Fprintf(w, "event: entry\ndata: %s\n\n", msg)
			flusher.Flush()
		}
	}
}

// -- Helpers --

func (s *Server) editor(w http.ResponseWriter, r *http.Request) (*editor.Editor, bool) {
	ed, err := s.Sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return nil, false
	}
	return ed, true
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		s.logger.Warn("Invalid request body", "path", r.URL.Path, "err", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return false
	}
	if err := s.validate(dst); err != nil {
		s.writeError(w, err)
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Response encode failed", "err", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("Request failed", "err", err)
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrSessionExists),
		errors.Is(err, domain.ErrNothingToUndo),
		errors.Is(err, domain.ErrNothingToRedo):
		return http.StatusConflict
	case errors.Is(err, errValidation),
		errors.Is(err, domain.ErrNodeNotFound),
		errors.Is(err, domain.ErrEdgeNotFound),
		errors.Is(err, domain.ErrDuplicateNode),
		errors.Is(err, domain.ErrInvalidEdge):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrSourceUnavailable):
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}
