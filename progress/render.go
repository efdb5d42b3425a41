package progress

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/nomis52/goprovision/stage"
)

var (
	colorGreen  = lipgloss.Color("#22c55e")
	colorRed    = lipgloss.Color("#ef4444")
	colorYellow = lipgloss.Color("#eab308")
	colorDim    = lipgloss.Color("#6b7280")
	colorWhite  = lipgloss.Color("#f9fafb")
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(colorWhite)
	dimStyle   = lipgloss.NewStyle().Foreground(colorDim)
	nameStyle  = lipgloss.NewStyle().Width(16)
	countStyle = lipgloss.NewStyle().Width(7).Align(lipgloss.Right)

	statusStyles = map[stage.Status]lipgloss.Style{
		stage.Initializing: lipgloss.NewStyle().Foreground(colorDim),
		stage.Running:      lipgloss.NewStyle().Foreground(colorYellow),
		stage.Success:      lipgloss.NewStyle().Foreground(colorGreen),
		stage.Error:        lipgloss.NewStyle().Foreground(colorRed).Bold(true),
	}
)

// Render formats the summary as a stage table for a terminal.
func Render(s Summary) string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Bootstrap stages"))
	b.WriteString("\n")
	b.WriteString(dimStyle.Render(strings.Repeat("─", 50)))
	b.WriteString("\n")

	for _, item := range s.Items {
		status := statusStyles[item.Status].Width(14).Render(item.Status.String())
		count := countStyle.Render(fmt.Sprintf("%d/%d", item.Done, item.Total))
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, nameStyle.Render(item.Name), status, count))
		if item.Message != "" {
			b.WriteString("  ")
			b.WriteString(dimStyle.Render(item.Message))
		}
		b.WriteString("\n")
	}

	b.WriteString(dimStyle.Render(strings.Repeat("─", 50)))
	b.WriteString("\n")
	switch {
	case s.FailedStage != nil:
		b.WriteString(statusStyles[stage.Error].Render(fmt.Sprintf("failed in %s: %s", s.FailedStage.String(), s.Error)))
	case s.Finished:
		b.WriteString(statusStyles[stage.Success].Render("provider " + s.ProviderUUID + " ready"))
	default:
		b.WriteString(statusStyles[stage.Running].Render("in progress"))
	}
	b.WriteString("\n")
	return b.String()
}
