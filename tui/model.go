// Package tui is the live run watcher: it renders a run's event feed
// as it streams in over the websocket endpoint.
package tui

import (
	"github.com/flowopsai/orchestrator/internal/domain"
	"github.com/flowopsai/orchestrator/internal/lifecycle"
	"github.com/flowopsai/orchestrator/internal/tail"
	tea "github.com/charmbracelet/bubbletea"
)

// Model is the watch TUI application model
type Model struct {
	// Data
	runID  string
	status domain.RunStatus
	events []tail.Event

	// Feed
	feed   <-chan tea.Msg
	closed bool
	feedEr string

	// UI state
	width  int
	height int
	scroll int
	follow bool
}

// FeedMsg carries one message from the run's websocket feed
type FeedMsg tail.Message

// FeedErrMsg signals the feed terminated
type FeedErrMsg struct {
	Err error
}

// ModelConfig holds initial data for the watch model
type ModelConfig struct {
	RunID  string
	Status domain.RunStatus
	Feed   <-chan tea.Msg
}

// NewModel creates a new watch model
func NewModel(cfg ModelConfig) Model {
	status := cfg.Status
	if status == "" {
		status = domain.RunQueued
	}
	return Model{
		runID:  cfg.RunID,
		status: status,
		feed:   cfg.Feed,
		follow: true,
	}
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return waitForFeed(m.feed)
}

// waitForFeed relays the next feed message into the update loop
func waitForFeed(feed <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-feed
		if !ok {
			return FeedErrMsg{}
		}
		return msg
	}
}

// apply folds one feed message into the model state
func (m *Model) apply(msg tail.Message) {
	switch msg.Type {
	case tail.TypeSnapshot:
		m.events = append(m.events[:0], msg.Events...)
		m.status = replayStatus(m.status, m.events)
	case tail.TypeEvent:
		m.events = append(m.events, msg.Event)
		if next, changed := lifecycle.Infer(m.status, msg.Title); changed {
			m.status = next
		}
	}
}

// replayStatus folds a full history through the inference rules
func replayStatus(start domain.RunStatus, events []tail.Event) domain.RunStatus {
	status := start
	for _, ev := range events {
		if next, changed := lifecycle.Infer(status, ev.Title); changed {
			status = next
		}
	}
	return status
}

// Events returns the events accumulated so far
func (m Model) Events() []tail.Event {
	return m.events
}

// Status returns the run status as inferred from the feed
func (m Model) Status() domain.RunStatus {
	return m.status
}
