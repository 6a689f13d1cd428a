package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/flowopsai/orchestrator/internal/ingest"
	"github.com/flowopsai/orchestrator/internal/runstore"
	"github.com/flowopsai/orchestrator/internal/tail"
)

// Delegator hands freshly queued runs to the trainer
type Delegator interface {
	Delegate(ctx context.Context, runID string) error
}

// Server is the HTTP API server
type Server struct {
	store     *runstore.Store
	ingest    *ingest.Service
	gateway   Delegator // nil disables delegation
	tailer    *tail.Tailer
	addr      string
	staticDir string
	mux       *http.ServeMux
	upgrader  websocket.Upgrader
	server    *http.Server
}

// NewServer creates a new API server
func NewServer(store *runstore.Store, ingestSvc *ingest.Service, gateway Delegator, tailer *tail.Tailer, addr, staticDir string) *Server {
	s := &Server{
		store:     store,
		ingest:    ingestSvc,
		gateway:   gateway,
		tailer:    tailer,
		addr:      addr,
		staticDir: staticDir,
		mux:       http.NewServeMux(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/health", s.healthHandler())
	s.mux.HandleFunc("/api/insights", s.insightsHandler())
	s.mux.HandleFunc("/api/chat/start-train", s.startTrainHandler())
	s.mux.HandleFunc("/api/workflows", s.listWorkflowsHandler())
	s.mux.HandleFunc("/api/runs", s.runsHandler())
	s.mux.HandleFunc("/api/runs/", s.runHandler())
	s.mux.HandleFunc("/api/models", s.listModelsHandler())
	s.mux.HandleFunc("/api/models/", s.modelHandler())
	s.mux.HandleFunc("/ws/runs/", s.wsRunHandler())

	// Static files (UI build output)
	if s.staticDir != "" {
		s.mux.Handle("/", http.FileServer(http.Dir(s.staticDir)))
	}
}

// Handler returns the server's root handler
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start starts the HTTP server and blocks until it stops
func (s *Server) Start() error {
	s.server = &http.Server{Addr: s.addr, Handler: s.mux}
	err := s.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully stops the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// writeStoreError maps store errors onto the HTTP taxonomy: absent
// records are client errors, retried completions are a benign
// conflict, and an invalid transition is a defect worth a 500.
func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, runstore.ErrRunNotFound),
		errors.Is(err, runstore.ErrWorkflowNotFound),
		errors.Is(err, runstore.ErrModelNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, runstore.ErrAlreadyTerminal):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
