package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/tapestry"
	"github.com/aretw0/tapestry/internal/logging"
	"github.com/aretw0/tapestry/pkg/domain"
	"github.com/aretw0/tapestry/pkg/editor"
	"github.com/aretw0/tapestry/pkg/session"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// LabelsURI is the resource listing every history-worthy kind and its label.
const LabelsURI = "tapestry://labels"

// SessionArgs addresses one session.
type SessionArgs struct {
	SessionID string `json:"session_id"`
}

// CreateSessionArgs are the arguments of create_session.
type CreateSessionArgs struct {
	SessionID string `json:"session_id,omitempty"`
	Graph     string `json:"graph,omitempty"`
}

// RecordEventArgs are the arguments of record_event.
type RecordEventArgs struct {
	SessionID string `json:"session_id"`
	Event     string `json:"event"`
}

// SessionResponse is returned by create_session.
type SessionResponse struct {
	SessionID string `json:"session_id" jsonschema_description:"ID of the created session"`
}

// RecordResponse is returned by record_event.
type RecordResponse struct {
	Event    string `json:"event"`
	Recorded bool   `json:"recorded" jsonschema_description:"False when the event only affects UI state and was ignored"`
}

// HistoryEntry is one history entry as seen by MCP clients.
type HistoryEntry struct {
	Seq   int    `json:"seq"`
	Event string `json:"event"`
	Label string `json:"label"`
	Nodes int    `json:"nodes"`
	Edges int    `json:"edges"`
}

// HistoryResponse is returned by list_history.
type HistoryResponse struct {
	Entries  []HistoryEntry `json:"entries"`
	Position int            `json:"position" jsonschema_description:"Seq of the entry the canvas reflects, 0 when empty"`
}

// RestoreResponse is returned by undo and redo.
type RestoreResponse struct {
	Entry HistoryEntry `json:"entry"`
	Graph domain.Graph `json:"graph"`
}

// Server exposes a session registry as an MCP Server.
type Server struct {
	sessions  *session.Manager
	mcpServer *server.MCPServer
	logger    *slog.Logger
}

// Option configures the Server.
type Option func(*Server)

// WithLogger configures a logger for the Server.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates a new MCP Server instance.
func NewServer(sessions *session.Manager, opts ...Option) *Server {
	s := &Server{
		sessions:  sessions,
		mcpServer: server.NewMCPServer("tapestry-mcp", strings.TrimSpace(tapestry.Version)),
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerTools()
	s.registerResources()
	return s
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE starts the server on the given port using SSE.
// It returns when ctx is done or the listener fails.
func (s *Server) ServeSSE(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)
	baseURL := fmt.Sprintf("http://localhost:%d", port)

	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP Server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Info("Shutdown signal received, shutting down MCP server")
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("create_session",
		mcp.WithDescription("Open a new editing session. The canvas starts empty unless a graph is given."),
		mcp.WithString("session_id", mcp.Description("ID for the session (generated when omitted)")),
		mcp.WithString("graph", mcp.Description("JSON object with nodes and edges to seed the canvas")),
		mcp.WithOutputSchema[SessionResponse](),
	), mcp.NewStructuredToolHandler(s.handleCreateSession))

	kinds := make([]string, 0, len(domain.AllEventKinds()))
	for _, k := range domain.AllEventKinds() {
		kinds = append(kinds, string(k))
	}
	s.mcpServer.AddTool(mcp.NewTool("record_event",
		mcp.WithDescription("Record an editor event. History-worthy events are coalesced into one history entry per quiet window; other events are ignored."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session ID")),
		mcp.WithString("event", mcp.Required(), mcp.Description("Event kind, one of: "+strings.Join(kinds, ", "))),
		mcp.WithOutputSchema[RecordResponse](),
	), mcp.NewStructuredToolHandler(s.handleRecordEvent))

	s.mcpServer.AddTool(mcp.NewTool("list_history",
		mcp.WithDescription("List the history entries of a session with their display labels."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session ID")),
		mcp.WithOutputSchema[HistoryResponse](),
	), mcp.NewStructuredToolHandler(s.handleListHistory))

	s.mcpServer.AddTool(mcp.NewTool("undo",
		mcp.WithDescription("Restore the canvas to the previous history entry."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session ID")),
		mcp.WithOutputSchema[RestoreResponse](),
	), mcp.NewStructuredToolHandler(s.handleUndo))

	s.mcpServer.AddTool(mcp.NewTool("redo",
		mcp.WithDescription("Restore the canvas to the next history entry."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session ID")),
		mcp.WithOutputSchema[RestoreResponse](),
	), mcp.NewStructuredToolHandler(s.handleRedo))

	s.mcpServer.AddTool(mcp.NewTool("get_graph",
		mcp.WithDescription("Get the live graph of a session."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session ID")),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ed, err := s.sessions.Get(request.GetString("session_id", ""))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		g, err := ed.Graph(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("read graph failed: %v", err)), nil
		}
		jsonBytes, _ := json.Marshal(g)
		return mcp.NewToolResultText(string(jsonBytes)), nil
	})
}

func (s *Server) handleCreateSession(ctx context.Context, request mcp.CallToolRequest, args CreateSessionArgs) (SessionResponse, error) {
	var g domain.Graph
	if args.Graph != "" {
		if err := json.Unmarshal([]byte(args.Graph), &g); err != nil {
			return SessionResponse{}, fmt.Errorf("invalid graph: %w", err)
		}
	}
	ed, err := s.sessions.Create(ctx, args.SessionID, g)
	if err != nil {
		return SessionResponse{}, err
	}
	return SessionResponse{SessionID: ed.ID}, nil
}

func (s *Server) handleRecordEvent(ctx context.Context, request mcp.CallToolRequest, args RecordEventArgs) (RecordResponse, error) {
	ed, err := s.sessions.Get(args.SessionID)
	if err != nil {
		return RecordResponse{}, err
	}
	kind := domain.EventKind(args.Event)
	ed.Record(kind)
	return RecordResponse{Event: args.Event, Recorded: domain.IsHistoryWorthy(kind)}, nil
}

func (s *Server) handleListHistory(ctx context.Context, request mcp.CallToolRequest, args SessionArgs) (HistoryResponse, error) {
	ed, err := s.sessions.Get(args.SessionID)
	if err != nil {
		return HistoryResponse{}, err
	}
	entries, pos, err := ed.History(ctx)
	if err != nil {
		return HistoryResponse{}, err
	}
	resp := HistoryResponse{Entries: make([]HistoryEntry, len(entries)), Position: pos}
	for i, e := range entries {
		resp.Entries[i] = toHistoryEntry(e.Snapshot)
	}
	return resp, nil
}

func (s *Server) handleUndo(ctx context.Context, request mcp.CallToolRequest, args SessionArgs) (RestoreResponse, error) {
	return s.restore(ctx, args.SessionID, (*editor.Editor).Undo)
}

func (s *Server) handleRedo(ctx context.Context, request mcp.CallToolRequest, args SessionArgs) (RestoreResponse, error) {
	return s.restore(ctx, args.SessionID, (*editor.Editor).Redo)
}

func (s *Server) restore(ctx context.Context, sessionID string, move func(*editor.Editor, context.Context) (domain.Snapshot, error)) (RestoreResponse, error) {
	ed, err := s.sessions.Get(sessionID)
	if err != nil {
		return RestoreResponse{}, err
	}
	snap, err := move(ed, ctx)
	if err != nil {
		if !errors.Is(err, domain.ErrNothingToUndo) && !errors.Is(err, domain.ErrNothingToRedo) {
			s.logger.Error("MCP: Restore failed", "session_id", sessionID, "err", err)
		}
		return RestoreResponse{}, err
	}
	return RestoreResponse{Entry: toHistoryEntry(snap), Graph: snap.Graph()}, nil
}

func toHistoryEntry(s domain.Snapshot) HistoryEntry {
	return HistoryEntry{
		Seq:   s.Seq,
		Event: string(s.Event),
		Label: s.Label(),
		Nodes: len(s.Nodes),
		Edges: len(s.Edges),
	}
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(LabelsURI, "History Event Labels",
		mcp.WithMIMEType("application/json"),
	), s.readLabels)
}

func (s *Server) readLabels(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	labels := make(map[string]string)
	for _, k := range domain.AllEventKinds() {
		labels[string(k)] = k.Label()
	}
	jsonBytes, err := json.Marshal(labels)
	if err != nil {
		return nil, fmt.Errorf("failed to encode labels: %w", err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      LabelsURI,
			MIMEType: "application/json",
			Text:     string(jsonBytes),
		},
	}, nil
}
