// Package lifecycle is the single authoritative implementation of the
// run status state machine: queued -> running -> {completed | failed}.
// It is pure and storage-free so the transition policy can be tested
// in isolation.
package lifecycle

import (
	"strings"

	"github.com/flowopsai/orchestrator/internal/domain"
)

// Event title prefixes recognized by the inference engine. Matching is
// case-insensitive so echoes from different worker iterations agree.
const (
	startedPrefix   = "run started"
	completedPrefix = "run completed"
	failedPrefix    = "run failed"
)

// Terminal reports whether s is a terminal status. Terminal states are
// sticky: no event may move a run out of them.
func Terminal(s domain.RunStatus) bool {
	return s == domain.RunCompleted || s == domain.RunFailed
}

// Infer maps an ingested event title plus the current status to a new
// status. The second return value reports whether the status changed.
//
// The mapping is idempotent per (run, terminal-status) pair: duplicate
// or late "run completed" echoes from a retrying worker never error and
// never move the run backward. Progress chatter arriving before an
// explicit start signal leaves the run queued.
//
// Terminal titles are accepted from every non-terminal state, exactly
// the edges CanTransition allows. That keeps the log replayable: any
// status the registry can cache is reachable by folding the run's
// event titles through this function.
func Infer(current domain.RunStatus, title string) (domain.RunStatus, bool) {
	if Terminal(current) {
		return current, false
	}

	t := strings.ToLower(title)
	switch {
	case current == domain.RunQueued && strings.HasPrefix(t, startedPrefix):
		return domain.RunRunning, true
	case strings.HasPrefix(t, completedPrefix):
		return domain.RunCompleted, true
	case strings.HasPrefix(t, failedPrefix):
		return domain.RunFailed, true
	}
	return current, false
}

// CanTransition reports whether moving a run from one status to
// another is a legal forward transition. There is no edge back to
// queued and no edge out of a terminal state. A violation is a
// programming error in the caller, not a user error.
func CanTransition(from, to domain.RunStatus) bool {
	switch from {
	case domain.RunQueued:
		return to == domain.RunRunning || to == domain.RunCompleted || to == domain.RunFailed
	case domain.RunRunning:
		return to == domain.RunCompleted || to == domain.RunFailed
	}
	return false
}
