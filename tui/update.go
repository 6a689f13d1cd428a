package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/flowopsai/orchestrator/internal/tail"
)

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "j", "down":
			m.follow = false
			if m.scroll < len(m.events)-1 {
				m.scroll++
			}
		case "k", "up":
			m.follow = false
			if m.scroll > 0 {
				m.scroll--
			}
		case "g":
			m.follow = false
			m.scroll = 0
		case "G", "f":
			// Back to following the tail
			m.follow = true
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case FeedMsg:
		m.apply(tail.Message(msg))
		return m, waitForFeed(m.feed)

	case FeedErrMsg:
		m.closed = true
		if msg.Err != nil {
			m.feedEr = msg.Err.Error()
		}
		return m, nil
	}

	return m, nil
}
