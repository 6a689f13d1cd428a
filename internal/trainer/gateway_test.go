package trainer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/flowopsai/orchestrator/internal/domain"
	"github.com/flowopsai/orchestrator/internal/ingest"
	"github.com/flowopsai/orchestrator/internal/runstore"
)

func newRunAndRecorder(t *testing.T) (*runstore.Store, *ingest.Service, *domain.Run) {
	t.Helper()
	store, err := runstore.New(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	run, err := store.CreateRun(nil)
	if err != nil {
		t.Fatal(err)
	}
	return store, ingest.New(store, nil), run
}

func TestGateway_DelegateAccepted(t *testing.T) {
	store, svc, run := newRunAndRecorder(t)

	var gotPath string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	g := New(ts.URL, time.Second, svc)
	if err := g.Delegate(context.Background(), run.ID); err != nil {
		t.Fatal(err)
	}

	if want := "/start/" + run.ID; gotPath != want {
		t.Errorf("path = %q, want %q", gotPath, want)
	}

	// Status is left to the trainer's own events
	got, _ := store.GetRun(run.ID)
	if got.Status != domain.RunQueued {
		t.Errorf("Status = %q, want queued", got.Status)
	}

	events, _ := store.ListEvents(run.ID)
	last := events[len(events)-1]
	if last.Title != "Delegation accepted" || last.Level != domain.LevelInfo {
		t.Errorf("last event = %q/%q, want Delegation accepted/info", last.Title, last.Level)
	}
}

func TestGateway_DelegateNonSuccessResponse(t *testing.T) {
	store, svc, run := newRunAndRecorder(t)

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	g := New(ts.URL, time.Second, svc)
	if err := g.Delegate(context.Background(), run.ID); err == nil {
		t.Fatal("expected delegation error")
	}

	assertFailedWithOneError(t, store, run.ID)
}

func TestGateway_DelegateTimeout(t *testing.T) {
	store, svc, run := newRunAndRecorder(t)

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer ts.Close()

	g := New(ts.URL, 50*time.Millisecond, svc)
	if err := g.Delegate(context.Background(), run.ID); err == nil {
		t.Fatal("expected delegation error")
	}

	assertFailedWithOneError(t, store, run.ID)
}

func TestGateway_DelegateConnectionRefused(t *testing.T) {
	store, svc, run := newRunAndRecorder(t)

	// Nothing is listening here
	g := New("http://127.0.0.1:1", 200*time.Millisecond, svc)
	if err := g.Delegate(context.Background(), run.ID); err == nil {
		t.Fatal("expected delegation error")
	}

	assertFailedWithOneError(t, store, run.ID)
}

func assertFailedWithOneError(t *testing.T, store *runstore.Store, runID string) {
	t.Helper()

	run, err := store.GetRun(runID)
	if err != nil {
		t.Fatal(err)
	}
	if run.Status != domain.RunFailed {
		t.Errorf("Status = %q, want failed", run.Status)
	}

	// Exactly one error event, titled so a log replay also lands on
	// failed, with the delegation cause in the detail
	events, err := store.ListEvents(runID)
	if err != nil {
		t.Fatal(err)
	}
	var errorEvents []*domain.RunEvent
	for _, ev := range events {
		if ev.Level == domain.LevelError {
			errorEvents = append(errorEvents, ev)
		}
	}
	if len(errorEvents) != 1 {
		t.Fatalf("error events = %d, want 1", len(errorEvents))
	}
	if errorEvents[0].Title != "Run failed" {
		t.Errorf("error event title = %q, want Run failed", errorEvents[0].Title)
	}
	if !strings.Contains(errorEvents[0].Detail, "delegation failed") {
		t.Errorf("error event detail = %q, want delegation cause", errorEvents[0].Detail)
	}
}
