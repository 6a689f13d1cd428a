// Package ingest is the boundary the external trainer calls back into.
// Every path that can move a run's cached status goes through here so
// the read-modify-write against the status field is serialized per
// run; event appends themselves need no coordination because the log
// is append-only.
package ingest

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/flowopsai/orchestrator/internal/domain"
	"github.com/flowopsai/orchestrator/internal/lifecycle"
	"github.com/flowopsai/orchestrator/internal/runstore"
)

// Notifier is told about runs reaching a terminal state
type Notifier interface {
	RunFinished(run *domain.Run)
}

// Service applies ingested events, metrics snapshots, and completion
// calls to the run registry. It is safe for concurrent use.
type Service struct {
	store    *runstore.Store
	notifier Notifier

	locks sync.Map // run ID -> *sync.Mutex
}

// New creates a new ingestion Service. notifier may be nil.
func New(store *runstore.Store, notifier Notifier) *Service {
	return &Service{store: store, notifier: notifier}
}

func (s *Service) lock(runID string) *sync.Mutex {
	mu, _ := s.locks.LoadOrStore(runID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// PostEvent validates and appends one event, then feeds it through the
// status inference engine. Duplicate or out-of-order titles are not
// errors: the state machine absorbs them. Returns ErrRunNotFound for
// an unknown run.
func (s *Service) PostEvent(runID string, level domain.EventLevel, title, detail string, ts time.Time) (*domain.RunEvent, error) {
	if !domain.ValidLevel(string(level)) {
		return nil, fmt.Errorf("unrecognized event level %q", level)
	}

	mu := s.lock(runID)
	mu.Lock()
	defer mu.Unlock()

	run, err := s.store.GetRun(runID)
	if err != nil {
		return nil, err
	}

	ev, err := s.store.AppendEvent(runID, level, title, detail, ts)
	if err != nil {
		return nil, err
	}

	next, changed := lifecycle.Infer(run.Status, title)
	if changed {
		if err := s.store.UpdateRunStatus(runID, next); err != nil {
			return nil, fmt.Errorf("advancing run %s to %s: %w", runID, next, err)
		}
		s.notifyIfFinished(runID, next)
	}
	return ev, nil
}

// PutMetrics replaces a run's metrics snapshot wholesale; the last
// call observed by the store wins.
func (s *Service) PutMetrics(runID string, metrics map[string]any) (*domain.Run, error) {
	return s.store.ReplaceMetrics(runID, metrics)
}

// Complete marks a run completed and registers its artifact. A
// synthesized "Run completed" event is appended so the log alone
// reconstructs the cached status. Safe to call more than once: retries
// after the first call fail with ErrAlreadyTerminal and leave no trace.
func (s *Service) Complete(runID, modelName, modelPath string) (*domain.Run, *domain.Model, error) {
	mu := s.lock(runID)
	mu.Lock()
	defer mu.Unlock()

	run, model, err := s.store.CompleteRun(runID, modelName, modelPath)
	if err != nil {
		return nil, nil, err
	}

	detail := fmt.Sprintf("Artifact %s registered", modelName)
	if _, err := s.store.AppendEvent(runID, domain.LevelInfo, "Run completed", detail, time.Time{}); err != nil {
		log.Printf("appending completion event for run %s: %v", runID, err)
	}

	s.notifyIfFinished(runID, run.Status)
	return run, model, nil
}

// FailRun records a failure cause and moves a non-terminal run to
// failed. The error event is appended even when the run is already
// terminal; history is preserved, the status is not touched. When the
// run does transition, a synthesized "Run failed" event follows the
// cause so the log alone reconstructs the cached status.
func (s *Service) FailRun(runID, title, detail string) error {
	mu := s.lock(runID)
	mu.Lock()
	defer mu.Unlock()

	run, err := s.store.GetRun(runID)
	if err != nil {
		return err
	}

	if _, err := s.store.AppendEvent(runID, domain.LevelError, title, detail, time.Time{}); err != nil {
		return err
	}

	if lifecycle.Terminal(run.Status) {
		return nil
	}
	if err := s.store.UpdateRunStatus(runID, domain.RunFailed); err != nil {
		return err
	}

	// Skip the synthesized event when the cause title already replays
	// to failed on its own.
	if next, _ := lifecycle.Infer(run.Status, title); next != domain.RunFailed {
		if _, err := s.store.AppendEvent(runID, domain.LevelError, "Run failed", title, time.Time{}); err != nil {
			log.Printf("appending failure event for run %s: %v", runID, err)
		}
	}
	s.notifyIfFinished(runID, domain.RunFailed)
	return nil
}

func (s *Service) notifyIfFinished(runID string, status domain.RunStatus) {
	if s.notifier == nil || !lifecycle.Terminal(status) {
		return
	}
	run, err := s.store.GetRun(runID)
	if err != nil {
		log.Printf("loading run %s for notification: %v", runID, err)
		return
	}
	s.notifier.RunFinished(run)
}
