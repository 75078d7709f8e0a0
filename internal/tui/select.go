// Package tui provides interactive terminal UI components.
package tui

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const (
	defaultListWidth  = 72
	defaultListHeight = 20
)

var runProgram = func(m tea.Model) (tea.Model, error) {
	return tea.NewProgram(m).Run()
}

// SelectionAction represents the user's action in the selection UI.
type SelectionAction int

const (
	ActionNone SelectionAction = iota
	ActionSelected
	ActionSkipped
	// ActionStopped means the user wants to stop processing entirely.
	ActionStopped
)

func (a SelectionAction) String() string {
	switch a {
	case ActionSelected:
		return "selected"
	case ActionSkipped:
		return "skipped"
	case ActionStopped:
		return "stopped"
	default:
		return "none"
	}
}

const (
	colorAccent = lipgloss.Color("214")
	colorBorder = lipgloss.Color("62")
	colorText   = lipgloss.Color("252")
	colorMuted  = lipgloss.Color("244")
)

type itemStyles struct {
	normal        lipgloss.Style
	selected      lipgloss.Style
	statusStyle   lipgloss.Style
	titleStyle    lipgloss.Style
	metadataStyle lipgloss.Style
	faintStyle    lipgloss.Style
}

func newItemStyles() itemStyles {
	card := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(colorBorder).
		Foreground(colorText).
		Padding(0, 1)

	return itemStyles{
		normal:        card,
		selected:      card.Copy().BorderForeground(colorAccent).Background(lipgloss.Color("236")),
		statusStyle:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("110")),
		titleStyle:    lipgloss.NewStyle().Bold(true),
		metadataStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("247")),
		faintStyle:    lipgloss.NewStyle().Foreground(colorMuted).Faint(true),
	}
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(colorAccent).MarginBottom(1)
	helpStyle   = lipgloss.NewStyle().MarginTop(1).Foreground(colorMuted)
	buttonStyle = lipgloss.NewStyle().MarginTop(1).Padding(0, 2).Bold(true)
)

func buttons() string {
	skip := buttonStyle.Copy().Background(lipgloss.Color("178")).Foreground(lipgloss.Color("0"))
	stop := buttonStyle.Copy().Background(lipgloss.Color("161")).Foreground(lipgloss.Color("230"))
	return lipgloss.JoinHorizontal(lipgloss.Left, skip.Render("s  Skip"), "  ", stop.Render("q  Stop"))
}

func truncate(value string, width int) string {
	value = strings.Join(strings.Fields(value), " ")
	if width <= 0 || len(value) <= width {
		return value
	}
	if width <= 3 {
		return value[:width]
	}
	return value[:width-3] + "..."
}

func clamp(defaultValue, available, minimum int) int {
	width := defaultValue
	if available > 0 && available < defaultValue {
		width = available
	}
	if width < minimum {
		width = minimum
	}
	return width
}
