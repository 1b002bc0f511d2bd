package bubbletea

import (
	"strconv"

	"github.com/charmbracelet/lipgloss"

	"github.com/refinekit/refine"
)

// Styles maps a Theme to lipgloss styles for TUI rendering.
type Styles struct {
	Input   lipgloss.Style
	Output  lipgloss.Style
	Error   lipgloss.Style
	Success lipgloss.Style
	Muted   lipgloss.Style
	Accent  lipgloss.Style
}

// NewStyles creates Styles from a Theme.
func NewStyles(t refine.Theme) Styles {
	return Styles{
		Input:   lipgloss.NewStyle().Foreground(ansiColor(t.Input)).Bold(true),
		Output:  lipgloss.NewStyle().Foreground(ansiColor(t.Output)),
		Error:   lipgloss.NewStyle().Foreground(ansiColor(t.Error)),
		Success: lipgloss.NewStyle().Foreground(ansiColor(t.Success)),
		Muted:   lipgloss.NewStyle().Foreground(ansiColor(t.Muted)).Faint(true),
		Accent:  lipgloss.NewStyle().Foreground(ansiColor(t.Accent)).Bold(true),
	}
}

func ansiColor(index int) lipgloss.TerminalColor {
	if index < 0 {
		return lipgloss.NoColor{}
	}
	return lipgloss.Color(strconv.Itoa(index))
}
