package tui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/flowopsai/orchestrator/internal/domain"
	"github.com/flowopsai/orchestrator/internal/tail"
)

func newTestModel() Model {
	return NewModel(ModelConfig{RunID: "run-1"})
}

func feed(t *testing.T, m Model, msg tail.Message) Model {
	t.Helper()
	updated, _ := m.Update(FeedMsg(msg))
	return updated.(Model)
}

func TestModel_SnapshotReplaysStatus(t *testing.T) {
	m := newTestModel()

	m = feed(t, m, tail.Message{
		Type: tail.TypeSnapshot,
		Events: []tail.Event{
			{ID: 1, Title: "Run queued", Level: "info"},
			{ID: 2, Title: "Run started", Level: "info"},
			{ID: 3, Title: "Run completed", Level: "info"},
		},
	})

	if len(m.Events()) != 3 {
		t.Fatalf("events = %d, want 3", len(m.Events()))
	}
	if m.Status() != domain.RunCompleted {
		t.Errorf("status = %s, want completed", m.Status())
	}
}

func TestModel_IncrementalEventAdvancesStatus(t *testing.T) {
	m := newTestModel()
	if m.Status() != domain.RunQueued {
		t.Fatalf("initial status = %s, want queued", m.Status())
	}

	m = feed(t, m, tail.Message{Type: tail.TypeEvent, Event: tail.Event{ID: 1, Title: "Run started", Level: "info"}})
	if m.Status() != domain.RunRunning {
		t.Errorf("status = %s, want running", m.Status())
	}

	m = feed(t, m, tail.Message{Type: tail.TypeEvent, Event: tail.Event{ID: 2, Title: "Step 1 done", Level: "info"}})
	if m.Status() != domain.RunRunning {
		t.Errorf("status = %s after non-transition event, want running", m.Status())
	}
}

func TestModel_SnapshotReplaysFailure(t *testing.T) {
	m := newTestModel()

	// A run that failed at delegation: the cause event is all the
	// feed carries, and replay must land on failed
	m = feed(t, m, tail.Message{
		Type: tail.TypeSnapshot,
		Events: []tail.Event{
			{ID: 1, Title: "Run queued", Level: "info"},
			{ID: 2, Title: "Run failed", Level: "error", Detail: "delegation failed: connection refused"},
		},
	})

	if m.Status() != domain.RunFailed {
		t.Errorf("status = %s, want failed", m.Status())
	}
}

func TestModel_SeededStatusSurvivesSnapshot(t *testing.T) {
	m := NewModel(ModelConfig{RunID: "run-1", Status: domain.RunFailed})

	// Feed history without a terminal title must not walk the seeded
	// terminal status back
	m = feed(t, m, tail.Message{
		Type: tail.TypeSnapshot,
		Events: []tail.Event{
			{ID: 1, Title: "Run queued", Level: "info"},
			{ID: 2, Title: "Run started", Level: "info"},
		},
	})

	if m.Status() != domain.RunFailed {
		t.Errorf("status = %s, want seeded failed to stick", m.Status())
	}
}

func TestModel_TerminalStatusSticks(t *testing.T) {
	m := newTestModel()
	m = feed(t, m, tail.Message{Type: tail.TypeEvent, Event: tail.Event{ID: 1, Title: "Run completed", Level: "info"}})
	m = feed(t, m, tail.Message{Type: tail.TypeEvent, Event: tail.Event{ID: 2, Title: "Run started", Level: "info"}})

	if m.Status() != domain.RunCompleted {
		t.Errorf("status = %s, want completed to stick", m.Status())
	}
}

func TestModel_ViewShowsEvents(t *testing.T) {
	m := newTestModel()
	m, _ = applySize(m, 100, 30)
	m = feed(t, m, tail.Message{Type: tail.TypeEvent, Event: tail.Event{ID: 1, Title: "Epoch 3 finished", Level: "info", Detail: "loss 0.12"}})

	view := m.View()
	if !strings.Contains(view, "Epoch 3 finished") {
		t.Error("view missing event title")
	}
	if !strings.Contains(view, "run-1") {
		t.Error("view missing run ID")
	}
}

func TestModel_QuitKeys(t *testing.T) {
	m := newTestModel()
	for _, key := range []string{"q", "ctrl+c"} {
		_, cmd := m.Update(keyMsg(key))
		if cmd == nil {
			t.Errorf("key %q should quit", key)
		}
	}
}

func TestModel_FeedClosed(t *testing.T) {
	m := newTestModel()
	m, _ = applySize(m, 100, 30)

	updated, cmd := m.Update(FeedErrMsg{})
	m = updated.(Model)
	if cmd != nil {
		t.Error("closed feed should not schedule another read")
	}
	if !strings.Contains(m.View(), "feed closed") {
		t.Error("view should mention the feed closed")
	}
}

func applySize(m Model, w, h int) (Model, tea.Cmd) {
	updated, cmd := m.Update(tea.WindowSizeMsg{Width: w, Height: h})
	return updated.(Model), cmd
}

func keyMsg(s string) tea.KeyMsg {
	if s == "ctrl+c" {
		return tea.KeyMsg{Type: tea.KeyCtrlC}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}
