package tui

import (
	"github.com/charmbracelet/lipgloss"
)

var (
	accent  = lipgloss.Color("#00B7FF")
	magenta = lipgloss.Color("#FF00FF")
	green   = lipgloss.Color("#39FF14")
	yellow  = lipgloss.Color("#FFFF00")
	orange  = lipgloss.Color("#FF6700")
	red     = lipgloss.Color("#FF3030")
	dim     = lipgloss.Color("#808080")
	white   = lipgloss.Color("#FFFFFF")

	titleStyle   = lipgloss.NewStyle().Foreground(white).Background(accent).Bold(true).Padding(0, 1)
	panelStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(magenta).Padding(0, 1)
	labelStyle   = lipgloss.NewStyle().Foreground(accent).Bold(true)
	valueStyle   = lipgloss.NewStyle().Foreground(yellow)
	successStyle = lipgloss.NewStyle().Foreground(green).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(red).Bold(true)
	warningStyle = lipgloss.NewStyle().Foreground(orange).Bold(true)
	dimStyle     = lipgloss.NewStyle().Foreground(dim)
	helpStyle    = lipgloss.NewStyle().Foreground(dim).PaddingLeft(2)
)

// logStyle colors a log line by level
func logStyle(level string) lipgloss.Style {
	switch level {
	case levelSuccess:
		return successStyle
	case levelError:
		return errorStyle
	case levelWarn:
		return warningStyle
	default:
		return dimStyle
	}
}
