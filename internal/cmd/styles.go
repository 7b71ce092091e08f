package cmd

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/conclave-ai/conclave/internal/council"
	"github.com/conclave-ai/conclave/internal/vote"
)

// Shared lipgloss styles for command output.
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("170"))

	labelStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("245"))

	authorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39"))

	systemStyle = lipgloss.NewStyle().
			Faint(true).
			Foreground(lipgloss.Color("245"))

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	passedStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("42"))

	failedStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("196"))

	dividerStyle = lipgloss.NewStyle().
			Faint(true)
)

// statusBadge renders a colored session status indicator.
func statusBadge(s council.Status) string {
	var color string
	switch s {
	case council.StatusAdjourned:
		color = "42" // green
	case council.StatusPaused:
		color = "214" // orange
	case council.StatusIdle:
		color = "245" // gray
	default:
		color = "39" // blue, any active phase
	}
	return lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(color)).Render(string(s))
}

// outcomeBadge renders a vote outcome with pass/fail coloring.
func outcomeBadge(o vote.Outcome) string {
	switch o {
	case vote.OutcomePassed:
		return passedStyle.Render(string(o))
	case vote.OutcomeRejected:
		return failedStyle.Render(string(o))
	default:
		return warnStyle.Render(string(o))
	}
}

// divider returns a faint horizontal rule.
func divider(width int) string {
	if width <= 0 {
		width = 70
	}
	line := ""
	for i := 0; i < width; i++ {
		line += "─"
	}
	return dividerStyle.Render(line)
}

// kv renders a "Label: value" line with a styled label.
func kv(label string, value any) string {
	return fmt.Sprintf("%s %v", labelStyle.Render(label+":"), value)
}
