// Package observer watches for runs that have gone quiet. A trainer
// that dies mid-run never sends another event, so the run would sit in
// running forever; the observer flags it in the run's own event log.
package observer

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/flowopsai/orchestrator/internal/domain"
)

// Store is the slice of the run store the observer reads from
type Store interface {
	ListRunsByStatus(status domain.RunStatus) ([]*domain.Run, error)
	LastEventTS(runID string) (time.Time, error)
}

// Recorder records stall warnings against a run
type Recorder interface {
	PostEvent(runID string, level domain.EventLevel, title, detail string, ts time.Time) (*domain.RunEvent, error)
}

// Observer monitors running runs and flags stalled ones
type Observer struct {
	store          Store
	recorder       Recorder
	staleThreshold time.Duration
	checkInterval  time.Duration

	warned map[string]bool
	mu     sync.Mutex
}

// New creates a new Observer. Runs in running status with no event for
// staleThreshold get one warning event each.
func New(store Store, recorder Recorder, staleThreshold time.Duration) *Observer {
	return &Observer{
		store:          store,
		recorder:       recorder,
		staleThreshold: staleThreshold,
		checkInterval:  time.Minute,
		warned:         make(map[string]bool),
	}
}

// IsStale returns true if a run appears stalled given its last event time
func (o *Observer) IsStale(run *domain.Run, lastEvent time.Time) bool {
	if run.Status != domain.RunRunning {
		return false
	}
	if lastEvent.IsZero() {
		lastEvent = run.UpdatedAt
	}
	return time.Since(lastEvent) > o.staleThreshold
}

// CheckOnce scans running runs and records a warning for each newly
// stalled one. Returns the run IDs flagged this pass.
func (o *Observer) CheckOnce() ([]string, error) {
	running, err := o.store.ListRunsByStatus(domain.RunRunning)
	if err != nil {
		return nil, err
	}

	// A run that left running is re-armed; the warning the observer
	// writes must not count as activity, so warnings stay sticky for
	// as long as the run remains in running.
	alive := make(map[string]bool, len(running))
	for _, run := range running {
		alive[run.ID] = true
	}
	o.pruneWarnings(alive)

	var flagged []string
	for _, run := range running {
		lastEvent, err := o.store.LastEventTS(run.ID)
		if err != nil {
			return flagged, err
		}
		if !o.IsStale(run, lastEvent) {
			continue
		}
		if !o.markWarned(run.ID) {
			continue
		}

		detail := "No events for " + o.staleThreshold.String()
		if _, err := o.recorder.PostEvent(run.ID, domain.LevelWarn, "Run stalled", detail, time.Time{}); err != nil {
			return flagged, err
		}
		flagged = append(flagged, run.ID)
	}
	return flagged, nil
}

// markWarned returns true if the run had not been warned yet
func (o *Observer) markWarned(runID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.warned[runID] {
		return false
	}
	o.warned[runID] = true
	return true
}

// pruneWarnings re-arms warnings for runs that left running
func (o *Observer) pruneWarnings(alive map[string]bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for runID := range o.warned {
		if !alive[runID] {
			delete(o.warned, runID)
		}
	}
}

// Start runs the check loop until ctx is cancelled
func (o *Observer) Start(ctx context.Context) {
	ticker := time.NewTicker(o.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := o.CheckOnce(); err != nil {
				log.Printf("observer check: %v", err)
			}
		}
	}
}
