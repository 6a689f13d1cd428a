package notify

import (
	"fmt"

	"github.com/flowopsai/orchestrator/internal/domain"
)

// NotificationType represents the type of notification
type NotificationType int

const (
	NotifyInfo NotificationType = iota
	NotifySuccess
	NotifyError
)

// Notification represents a notification to be sent
type Notification struct {
	Title   string
	Message string
	Type    NotificationType
	RunID   string // Optional run reference
}

// Notifier is the interface for sending notifications
type Notifier interface {
	Send(n Notification) error
}

// NoopNotifier does nothing (for testing or disabled notifications)
type NoopNotifier struct{}

func (NoopNotifier) Send(n Notification) error { return nil }

// RunNotifier adapts a Notifier to the ingestion service's terminal
// state callback.
type RunNotifier struct {
	notifier Notifier
}

// NewRunNotifier creates a RunNotifier over the given Notifier
func NewRunNotifier(n Notifier) *RunNotifier {
	return &RunNotifier{notifier: n}
}

// RunFinished sends a notification for a run that reached a terminal
// state. Send failures are swallowed; the run record itself is the
// error-reporting channel.
func (r *RunNotifier) RunFinished(run *domain.Run) {
	n := Notification{
		Title: fmt.Sprintf("Run %s %s", run.ID, run.Status),
		RunID: run.ID,
	}
	switch run.Status {
	case domain.RunCompleted:
		n.Type = NotifySuccess
		n.Message = "Training run finished successfully"
	case domain.RunFailed:
		n.Type = NotifyError
		n.Message = "Training run failed; see the run's event log"
	default:
		return
	}
	r.notifier.Send(n)
}
