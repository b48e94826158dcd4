// Package ui provides terminal user interface components for installkit.
package ui

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/lipgloss"

	"github.com/relicta-tech/installkit/internal/installation/domain"
)

// styles defines the shared styles for every screen.
type styles struct {
	title     lipgloss.Style
	subtitle  lipgloss.Style
	success   lipgloss.Style
	error     lipgloss.Style
	warning   lipgloss.Style
	info      lipgloss.Style
	subtle    lipgloss.Style
	bold      lipgloss.Style
	border    lipgloss.Style
	help      lipgloss.Style
	statusBar lipgloss.Style
	label     lipgloss.Style
	value     lipgloss.Style
	selected  lipgloss.Style
	normal    lipgloss.Style
}

func defaultStyles() styles {
	return styles{
		title:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99")).Padding(0, 1),
		subtitle: lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Italic(true),
		success:  lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		error:    lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		warning:  lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		info:     lipgloss.NewStyle().Foreground(lipgloss.Color("33")),
		subtle:   lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		bold:     lipgloss.NewStyle().Bold(true),
		border: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("99")).
			Padding(1, 2),
		help: lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			Padding(0, 1),
		statusBar: lipgloss.NewStyle().
			Background(lipgloss.Color("236")).
			Foreground(lipgloss.Color("255")).
			Padding(0, 1),
		label: lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			Width(18),
		value: lipgloss.NewStyle().Bold(true),
		selected: lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true).
			PaddingLeft(2),
		normal: lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")).
			PaddingLeft(2),
	}
}

var indicatorSteps = []struct {
	id   domain.StepID
	name string
}{
	{domain.StepSetURL, "Repository"},
	{domain.StepSelectPackage, "Package"},
	{domain.StepReadyToInstall, "Confirm"},
	{domain.StepInstalled, "Install"},
}

// renderStepIndicator shows where current sits in the GitHub flow.
func renderStepIndicator(current domain.StepID, s styles) string {
	pos := -1
	for i, step := range indicatorSteps {
		if step.id == current {
			pos = i
		}
	}

	var b strings.Builder
	for i, step := range indicatorSteps {
		if i > 0 {
			b.WriteString(s.subtle.Render(" → "))
		}
		switch {
		case i == pos:
			b.WriteString(s.success.Render("●") + " " + s.bold.Render(step.name))
		case i < pos:
			b.WriteString(s.success.Render("✓") + " " + s.subtle.Render(step.name))
		default:
			b.WriteString(s.subtle.Render("○") + " " + s.subtle.Render(step.name))
		}
	}
	return b.String()
}

// renderHelp renders the help text of the given bindings.
func renderHelp(s styles, bindings ...key.Binding) string {
	var b strings.Builder
	b.WriteString(s.subtle.Render("Shortcuts: "))
	for i, kb := range bindings {
		if i > 0 {
			b.WriteString(s.subtle.Render(" • "))
		}
		h := kb.Help()
		b.WriteString(s.info.Render(h.Key + ": " + h.Desc))
	}
	return b.String()
}
