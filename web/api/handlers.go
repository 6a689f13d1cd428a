package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/flowopsai/orchestrator/internal/domain"
)

// RunResponse is the API response for a run
type RunResponse struct {
	ID         string         `json:"id"`
	WorkflowID *int64         `json:"workflow_id,omitempty"`
	Status     string         `json:"status"`
	Metrics    map[string]any `json:"metrics"`
	CreatedAt  string         `json:"created_at"`
	UpdatedAt  string         `json:"updated_at"`
}

// EventResponse is the API response for a run event
type EventResponse struct {
	ID     int64  `json:"id"`
	TS     string `json:"ts"`
	Level  string `json:"level"`
	Title  string `json:"title"`
	Detail string `json:"detail,omitempty"`
}

// ModelResponse is the API response for a model artifact record
type ModelResponse struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Path      string `json:"path"`
	CreatedAt string `json:"created_at"`
}

// WorkflowResponse is the API response for a workflow
type WorkflowResponse struct {
	ID        int64                `json:"id"`
	Name      string               `json:"name"`
	Pipeline  *domain.PipelineSpec `json:"pipeline,omitempty"`
	CreatedAt string               `json:"created_at"`
}

// InsightsResponse is the API response for overall status
type InsightsResponse struct {
	Totals     InsightTotals `json:"totals"`
	LatestRuns []RunResponse `json:"latest_runs"`
}

// InsightTotals holds per-status run counts
type InsightTotals struct {
	Runs      int `json:"runs"`
	Models    int `json:"models"`
	Queued    int `json:"queued"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// CreateRunRequest creates a run, optionally from a pipeline spec
type CreateRunRequest struct {
	Name     string               `json:"name,omitempty"`
	Pipeline *domain.PipelineSpec `json:"pipeline,omitempty"`
}

// StartTrainRequest is the chat pathway's run creation body
type StartTrainRequest struct {
	Prompt string `json:"prompt"`
}

// PostEventRequest is the trainer's event callback body
type PostEventRequest struct {
	Level     string `json:"level"`
	Title     string `json:"title"`
	Detail    string `json:"detail,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

// PutMetricsRequest is the trainer's metrics callback body
type PutMetricsRequest struct {
	Metrics map[string]any `json:"metrics"`
}

// CompleteRequest is the trainer's completion callback body
type CompleteRequest struct {
	ModelName string `json:"model_name"`
	ModelPath string `json:"model_path"`
}

func runToResponse(r *domain.Run) RunResponse {
	return RunResponse{
		ID:         r.ID,
		WorkflowID: r.WorkflowID,
		Status:     string(r.Status),
		Metrics:    r.Metrics,
		CreatedAt:  r.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:  r.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func eventToResponse(ev *domain.RunEvent) EventResponse {
	return EventResponse{
		ID:     ev.ID,
		TS:     ev.TS.UTC().Format(time.RFC3339),
		Level:  string(ev.Level),
		Title:  ev.Title,
		Detail: ev.Detail,
	}
}

func modelToResponse(m *domain.Model) ModelResponse {
	return ModelResponse{
		ID:        m.ID,
		Name:      m.Name,
		Path:      m.Path,
		CreatedAt: m.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func (s *Server) healthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{"status": "ok"})
	}
}

func (s *Server) runsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			runs, err := s.store.ListRuns()
			if err != nil {
				writeStoreError(w, err)
				return
			}
			resp := make([]RunResponse, 0, len(runs))
			for _, run := range runs {
				resp = append(resp, runToResponse(run))
			}
			writeJSON(w, resp)

		case http.MethodPost:
			var req CreateRunRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
				return
			}
			s.enqueueRun(w, req.Name, req.Pipeline)

		default:
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	}
}

func (s *Server) startTrainHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		var req StartTrainRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
		s.enqueueRun(w, "chat", nil)
	}
}

// enqueueRun creates the workflow (when a pipeline is given) and the
// queued run, then kicks off delegation in the background. Delegation
// failure reports through the run's own event log, never through this
// response.
func (s *Server) enqueueRun(w http.ResponseWriter, name string, pipeline *domain.PipelineSpec) {
	var workflowID *int64
	if pipeline != nil {
		if name == "" {
			name = "ad-hoc"
		}
		wf, err := s.store.CreateWorkflow(name, pipeline)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		workflowID = &wf.ID
	}

	run, err := s.store.CreateRun(workflowID)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	if s.gateway != nil {
		go func() {
			if err := s.gateway.Delegate(context.Background(), run.ID); err != nil {
				log.Printf("delegation: %v", err)
			}
		}()
	}

	writeJSON(w, map[string]string{"run_id": run.ID})
}

func (s *Server) runHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Paths: /api/runs/{id}[/events|/metrics|/complete]
		rest := strings.TrimPrefix(r.URL.Path, "/api/runs/")
		parts := strings.SplitN(rest, "/", 2)
		runID := parts[0]
		if runID == "" {
			writeError(w, http.StatusBadRequest, "run ID required")
			return
		}

		sub := ""
		if len(parts) == 2 {
			sub = parts[1]
		}

		switch {
		case sub == "" && r.Method == http.MethodGet:
			s.getRun(w, runID)
		case sub == "events" && r.Method == http.MethodGet:
			s.listEvents(w, runID)
		case sub == "events" && r.Method == http.MethodPost:
			s.postEvent(w, r, runID)
		case sub == "metrics" && r.Method == http.MethodPut:
			s.putMetrics(w, r, runID)
		case sub == "complete" && r.Method == http.MethodPost:
			s.completeRun(w, r, runID)
		default:
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	}
}

func (s *Server) getRun(w http.ResponseWriter, runID string) {
	run, err := s.store.GetRun(runID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, runToResponse(run))
}

func (s *Server) listEvents(w http.ResponseWriter, runID string) {
	if _, err := s.store.GetRun(runID); err != nil {
		writeStoreError(w, err)
		return
	}
	events, err := s.store.ListEvents(runID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	resp := make([]EventResponse, 0, len(events))
	for _, ev := range events {
		resp = append(resp, eventToResponse(ev))
	}
	writeJSON(w, resp)
}

func (s *Server) postEvent(w http.ResponseWriter, r *http.Request, runID string) {
	var req PostEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}
	if !domain.ValidLevel(req.Level) {
		writeError(w, http.StatusBadRequest, "unrecognized level "+strconv.Quote(req.Level))
		return
	}

	// The caller's timestamp is informational only; a bad one is
	// simply ignored rather than rejected.
	var ts time.Time
	if req.Timestamp != "" {
		if parsed, err := time.Parse(time.RFC3339, req.Timestamp); err == nil {
			ts = parsed
		}
	}

	ev, err := s.ingest.PostEvent(runID, domain.EventLevel(req.Level), req.Title, req.Detail, ts)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, eventToResponse(ev))
}

func (s *Server) putMetrics(w http.ResponseWriter, r *http.Request, runID string) {
	var req PutMetricsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	run, err := s.ingest.PutMetrics(runID, req.Metrics)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, runToResponse(run))
}

func (s *Server) completeRun(w http.ResponseWriter, r *http.Request, runID string) {
	var req CompleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.ModelName == "" || req.ModelPath == "" {
		writeError(w, http.StatusBadRequest, "model_name and model_path are required")
		return
	}

	run, model, err := s.ingest.Complete(runID, req.ModelName, req.ModelPath)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, map[string]any{
		"run":   runToResponse(run),
		"model": modelToResponse(model),
	})
}

func (s *Server) listWorkflowsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		workflows, err := s.store.ListWorkflows()
		if err != nil {
			writeStoreError(w, err)
			return
		}
		resp := make([]WorkflowResponse, 0, len(workflows))
		for _, wf := range workflows {
			resp = append(resp, WorkflowResponse{
				ID:        wf.ID,
				Name:      wf.Name,
				Pipeline:  wf.PipelineSpec,
				CreatedAt: wf.CreatedAt.UTC().Format(time.RFC3339),
			})
		}
		writeJSON(w, resp)
	}
}

func (s *Server) listModelsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		models, err := s.store.ListModels()
		if err != nil {
			writeStoreError(w, err)
			return
		}
		resp := make([]ModelResponse, 0, len(models))
		for _, m := range models {
			resp = append(resp, modelToResponse(m))
		}
		writeJSON(w, resp)
	}
}

func (s *Server) modelHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		// Paths: /api/models/{id}[/download]
		rest := strings.TrimPrefix(r.URL.Path, "/api/models/")
		download := false
		if strings.HasSuffix(rest, "/download") {
			rest = strings.TrimSuffix(rest, "/download")
			download = true
		}
		id, err := strconv.ParseInt(rest, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid model ID")
			return
		}

		model, err := s.store.GetModel(id)
		if err != nil {
			writeStoreError(w, err)
			return
		}

		if download {
			// Artifact retrieval is a plain byte passthrough
			http.ServeFile(w, r, model.Path)
			return
		}
		writeJSON(w, modelToResponse(model))
	}
}

func (s *Server) insightsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		counts, err := s.store.CountRunsByStatus()
		if err != nil {
			writeStoreError(w, err)
			return
		}
		modelCount, err := s.store.CountModels()
		if err != nil {
			writeStoreError(w, err)
			return
		}
		latest, err := s.store.LatestRuns(10)
		if err != nil {
			writeStoreError(w, err)
			return
		}

		resp := InsightsResponse{
			Totals: InsightTotals{
				Models:    modelCount,
				Queued:    counts[domain.RunQueued],
				Running:   counts[domain.RunRunning],
				Completed: counts[domain.RunCompleted],
				Failed:    counts[domain.RunFailed],
			},
			LatestRuns: make([]RunResponse, 0, len(latest)),
		}
		for _, n := range counts {
			resp.Totals.Runs += n
		}
		for _, run := range latest {
			resp.LatestRuns = append(resp.LatestRuns, runToResponse(run))
		}
		writeJSON(w, resp)
	}
}
