package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/flowopsai/orchestrator/internal/domain"
	"github.com/flowopsai/orchestrator/internal/tail"
)

var (
	headerStyle = lipgloss.NewStyle().
		Background(lipgloss.Color("236")).
		Foreground(lipgloss.Color("255")).
		Padding(0, 1)

	sectionStyle = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	queuedStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("244"))

	runningStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("214"))

	completedStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("42"))

	failedStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("196"))

	warnStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("214"))

	errorStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("196"))

	dimmedStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("240"))

	statusBarStyle = lipgloss.NewStyle().
		Background(lipgloss.Color("236")).
		Foreground(lipgloss.Color("255"))
)

func statusStyle(s domain.RunStatus) lipgloss.Style {
	switch s {
	case domain.RunRunning:
		return runningStyle
	case domain.RunCompleted:
		return completedStyle
	case domain.RunFailed:
		return failedStyle
	default:
		return queuedStyle
	}
}

// View renders the watch TUI
func (m Model) View() string {
	if m.width == 0 {
		return "Connecting..."
	}

	var b strings.Builder

	header := fmt.Sprintf(" FlowOps │ run %s │ %s │ %d events ",
		m.runID, statusStyle(m.status).Render(string(m.status)), len(m.events))
	b.WriteString(headerStyle.Width(m.width).Render(header))
	b.WriteString("\n")

	b.WriteString(sectionStyle.Width(m.width - 2).Render(m.renderFeed()))
	b.WriteString("\n")

	help := " q: quit │ j/k: scroll │ f: follow "
	if m.closed {
		note := "feed closed"
		if m.feedEr != "" {
			note = "feed error: " + m.feedEr
		}
		help = " " + note + " │" + help
	}
	b.WriteString(statusBarStyle.Width(m.width).Render(help))

	return b.String()
}

func (m Model) renderFeed() string {
	if len(m.events) == 0 {
		return dimmedStyle.Render("No events yet")
	}

	// Reserve header, borders, and the status bar
	visible := m.height - 6
	if visible < 1 {
		visible = 1
	}

	start := m.scroll
	if m.follow && len(m.events) > visible {
		start = len(m.events) - visible
	}
	if start > len(m.events)-1 {
		start = len(m.events) - 1
	}
	end := start + visible
	if end > len(m.events) {
		end = len(m.events)
	}

	var b strings.Builder
	for i, ev := range m.events[start:end] {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(m.renderEvent(ev))
	}
	return b.String()
}

func (m Model) renderEvent(ev tail.Event) string {
	line := fmt.Sprintf("%s  %-5s  %s", dimmedStyle.Render(ev.TS), ev.Level, ev.Title)
	if ev.Detail != "" {
		line += dimmedStyle.Render("  " + ev.Detail)
	}
	switch ev.Level {
	case string(domain.LevelError):
		return errorStyle.Render(line)
	case string(domain.LevelWarn):
		return warnStyle.Render(line)
	default:
		return line
	}
}
