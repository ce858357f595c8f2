package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"pixivcrawl/pkg/ui"
)

// View renders the entire TUI
func (m *Model) View() string {
	if m.summary != nil {
		return ""
	}

	sections := []string{
		m.renderHeader(),
		m.renderStats(),
		m.renderActive(),
		m.renderLog(),
	}
	if m.showHelp {
		sections = append(sections, m.renderHelp())
	} else {
		sections = append(sections, helpStyle.Render("q stop • ? help"))
	}
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m *Model) renderHeader() string {
	title := titleStyle.Render("pixivcrawl")
	if m.author == "" {
		return title + " " + m.spinner.View() + dimStyle.Render(" loading state")
	}

	status := m.spinner.View() + " crawling"
	if m.stopping {
		status = warningStyle.Render("stopping")
	}
	return fmt.Sprintf("%s %s %s %s", title, labelStyle.Render("author "+m.author), status, dimStyle.Render(m.runID))
}

func (m *Model) renderStats() string {
	stat := func(label string, value any) string {
		return labelStyle.Render(label+" ") + valueStyle.Render(fmt.Sprint(value))
	}

	rows := []string{
		m.progress.ViewAs(m.Percent()) + fmt.Sprintf(" %d/%d", m.Settled(), m.discovered),
		strings.Join([]string{
			stat("complete", m.complete),
			stat("failed", m.failed),
			stat("skipped", m.skipped),
		}, "  "),
		strings.Join([]string{
			stat("pages", m.pages),
			stat("bytes", ui.FormatBytes(m.bytes)),
			stat("workers", m.workers),
			stat("elapsed", ui.FormatDuration(time.Since(m.started))),
		}, "  "),
	}
	return panelStyle.Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func (m *Model) renderActive() string {
	active := m.Active()
	if len(active) == 0 {
		return panelStyle.Render(dimStyle.Render("no artworks in flight"))
	}

	var lines []string
	for i, item := range active {
		if i == m.maxActive {
			lines = append(lines, dimStyle.Render(fmt.Sprintf("… %d more", len(active)-i)))
			break
		}
		lines = append(lines, fmt.Sprintf("%s %s %d/%d", m.spinner.View(), item.ID, item.PagesDone, item.Pages))
	}
	return panelStyle.Render(strings.Join(lines, "\n"))
}

func (m *Model) renderLog() string {
	if len(m.logMessages) == 0 {
		return ""
	}

	var lines []string
	for _, msg := range m.logMessages {
		lines = append(lines, dimStyle.Render(msg.Time.Format("15:04:05"))+" "+logStyle(msg.Level).Render(msg.Message))
	}
	return strings.Join(lines, "\n")
}

func (m *Model) renderHelp() string {
	return helpStyle.Render(strings.Join([]string{
		"q, ctrl+c  stop queueing new artworks (twice to abort transfers)",
		"ctrl+l     clear the log",
		"?          toggle help",
	}, "\n"))
}
