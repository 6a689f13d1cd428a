//go:build integration

package integration

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/flowopsai/orchestrator/internal/ingest"
	"github.com/flowopsai/orchestrator/internal/runstore"
	"github.com/flowopsai/orchestrator/internal/tail"
	"github.com/flowopsai/orchestrator/internal/trainer"
	"github.com/flowopsai/orchestrator/web/api"
)

// newOrchestrator wires the full stack against a real database file
// and returns the API base URL plus a setter for the trainer address.
func newOrchestrator(t *testing.T) (baseURL string, setTrainer func(url string)) {
	t.Helper()

	store, err := runstore.New(TempDBPath(t))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	ingestSvc := ingest.New(store, nil)
	tailer := tail.New(store, tail.Options{Interval: 20 * time.Millisecond})

	lazy := &lazyDelegator{}
	srv := api.NewServer(store, ingestSvc, lazy, tailer, "127.0.0.1:0", "")
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return ts.URL, func(url string) {
		lazy.inner = trainer.New(url, 2*time.Second, ingestSvc)
	}
}

// lazyDelegator lets the trainer address be bound after the server,
// since the fake trainer needs the orchestrator URL first.
type lazyDelegator struct {
	inner api.Delegator
}

func (d *lazyDelegator) Delegate(ctx context.Context, runID string) error {
	return d.inner.Delegate(ctx, runID)
}

// fakeTrainer accepts delegated runs and plays back the full callback
// sequence against the orchestrator: started event, metrics, complete.
// Callbacks must not use t: they run in request goroutines.
func fakeTrainer(orchestratorURL string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		runID := strings.TrimPrefix(r.URL.Path, "/start/")
		w.WriteHeader(http.StatusOK)

		go func() {
			base := orchestratorURL + "/api/runs/" + runID
			call(http.MethodPost, base+"/events", `{"level":"info","title":"Run started"}`)
			call(http.MethodPut, base+"/metrics", `{"metrics":{"loss":0.42,"epoch":3}}`)
			call(http.MethodPost, base+"/complete", `{"model_name":"classifier-v1","model_path":"/tmp/classifier-v1.bin"}`)
		}()
	}))
}

func call(method, url, body string) {
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err == nil {
		resp.Body.Close()
	}
}

func TestRunLifecycle_EndToEnd(t *testing.T) {
	baseURL, setTrainer := newOrchestrator(t)

	trainerSrv := fakeTrainer(baseURL)
	defer trainerSrv.Close()
	setTrainer(trainerSrv.URL)

	// Create a run through the public API; delegation and the trainer
	// callbacks drive it to completion with no further input.
	resp := postJSON(t, baseURL+"/api/runs", map[string]any{"name": "e2e"})
	var created struct {
		RunID string `json:"run_id"`
	}
	decodeBody(t, resp, &created)

	waitForStatus(t, baseURL, created.RunID, "completed")

	var events []struct {
		Title string `json:"title"`
		Level string `json:"level"`
	}
	getJSON(t, baseURL+"/api/runs/"+created.RunID+"/events", &events)

	titles := make([]string, 0, len(events))
	for _, ev := range events {
		titles = append(titles, ev.Title)
	}
	for _, want := range []string{"Run queued", "Delegation accepted", "Run started", "Run completed"} {
		if !contains(titles, want) {
			t.Errorf("event log %v missing %q", titles, want)
		}
	}

	var run struct {
		Metrics map[string]any `json:"metrics"`
	}
	getJSON(t, baseURL+"/api/runs/"+created.RunID, &run)
	if run.Metrics["loss"] != 0.42 {
		t.Errorf("metrics = %v, want loss 0.42", run.Metrics)
	}

	var models []struct {
		Name string `json:"name"`
	}
	getJSON(t, baseURL+"/api/models", &models)
	if len(models) != 1 || models[0].Name != "classifier-v1" {
		t.Errorf("models = %v, want classifier-v1", models)
	}
}

func TestRunLifecycle_TrainerUnreachable(t *testing.T) {
	baseURL, setTrainer := newOrchestrator(t)

	// Point delegation at a server that is already gone
	dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	deadURL := dead.URL
	dead.Close()
	setTrainer(deadURL)

	resp := postJSON(t, baseURL+"/api/runs", map[string]any{})
	var created struct {
		RunID string `json:"run_id"`
	}
	decodeBody(t, resp, &created)

	waitForStatus(t, baseURL, created.RunID, "failed")

	var events []struct {
		Title string `json:"title"`
		Level string `json:"level"`
	}
	getJSON(t, baseURL+"/api/runs/"+created.RunID+"/events", &events)

	found := false
	for _, ev := range events {
		if ev.Title == "Run failed" && ev.Level == "error" {
			found = true
		}
	}
	if !found {
		t.Errorf("event log missing failure event: %v", events)
	}
}

func contains(ss []string, want string) bool {
	for _, s := range ss {
		if s == want {
			return true
		}
	}
	return false
}
