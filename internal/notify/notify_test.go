package notify

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/flowopsai/orchestrator/internal/domain"
)

func TestSlackNotifier_Send(t *testing.T) {
	var got SlackMessage
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	n := NewSlackNotifier(ts.URL)
	err := n.Send(Notification{Title: "Run abc failed", Message: "boom", Type: NotifyError, RunID: "abc"})
	if err != nil {
		t.Fatal(err)
	}

	if got.Text != "Run abc failed" {
		t.Errorf("Text = %q", got.Text)
	}
	if len(got.Attachments) != 1 || got.Attachments[0].Color != "danger" {
		t.Errorf("Attachments = %+v", got.Attachments)
	}
}

func TestSlackNotifier_EmptyWebhookIsDisabled(t *testing.T) {
	n := NewSlackNotifier("")
	if err := n.Send(Notification{Title: "x"}); err != nil {
		t.Errorf("disabled notifier errored: %v", err)
	}
}

type captureNotifier struct {
	sent []Notification
}

func (c *captureNotifier) Send(n Notification) error {
	c.sent = append(c.sent, n)
	return nil
}

func TestRunNotifier_TerminalStatesOnly(t *testing.T) {
	capture := &captureNotifier{}
	rn := NewRunNotifier(capture)

	rn.RunFinished(&domain.Run{ID: "r1", Status: domain.RunRunning})
	if len(capture.sent) != 0 {
		t.Errorf("non-terminal run notified: %+v", capture.sent)
	}

	rn.RunFinished(&domain.Run{ID: "r1", Status: domain.RunCompleted})
	rn.RunFinished(&domain.Run{ID: "r2", Status: domain.RunFailed})
	if len(capture.sent) != 2 {
		t.Fatalf("notifications = %d, want 2", len(capture.sent))
	}
	if capture.sent[0].Type != NotifySuccess || capture.sent[1].Type != NotifyError {
		t.Errorf("types = %v, %v", capture.sent[0].Type, capture.sent[1].Type)
	}
}
