// Package trainer hands queued runs to the external trainer process.
// The handoff is a single best-effort HTTP call with a bounded
// timeout; from the moment it is accepted the trainer drives the run
// through its own callbacks and the gateway is out of the picture.
package trainer

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/flowopsai/orchestrator/internal/domain"
)

// RunRecorder is the slice of the ingestion service the gateway needs
// to record delegation outcomes against a run.
type RunRecorder interface {
	PostEvent(runID string, level domain.EventLevel, title, detail string, ts time.Time) (*domain.RunEvent, error)
	FailRun(runID, title, detail string) error
}

// Gateway delegates runs to the trainer's start endpoint
type Gateway struct {
	baseURL  string
	client   *http.Client
	recorder RunRecorder
}

// DefaultTimeout bounds the handoff call. A hung trainer must not
// hang the orchestration loop.
const DefaultTimeout = 10 * time.Second

// New creates a Gateway talking to the trainer at baseURL. A
// non-positive timeout falls back to DefaultTimeout.
func New(baseURL string, timeout time.Duration, recorder RunRecorder) *Gateway {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Gateway{
		baseURL:  baseURL,
		client:   &http.Client{Timeout: timeout},
		recorder: recorder,
	}
}

// Delegate makes one attempt to hand the run to the trainer. On
// success an info event is recorded and the run stays under the
// trainer's control. On timeout, connection error, or a non-success
// response the run is moved to failed with a single "Run failed" error
// event carrying the cause, so replaying the log yields the same
// status; there is no automatic retry. The returned error mirrors the
// failure for the caller's log, it is never the run creator's problem.
func (g *Gateway) Delegate(ctx context.Context, runID string) error {
	url := fmt.Sprintf("%s/start/%s", g.baseURL, runID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return g.fail(runID, err.Error())
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return g.fail(runID, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return g.fail(runID, fmt.Sprintf("trainer returned status %d", resp.StatusCode))
	}

	if _, err := g.recorder.PostEvent(runID, domain.LevelInfo, "Delegation accepted", "Trainer accepted run", time.Time{}); err != nil {
		log.Printf("recording delegation for run %s: %v", runID, err)
	}
	return nil
}

func (g *Gateway) fail(runID, reason string) error {
	if err := g.recorder.FailRun(runID, "Run failed", "delegation failed: "+reason); err != nil {
		log.Printf("recording delegation failure for run %s: %v", runID, err)
	}
	return fmt.Errorf("delegating run %s: %s", runID, reason)
}
