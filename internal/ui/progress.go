package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/relicta-tech/installkit/internal/installation/app"
	"github.com/relicta-tech/installkit/internal/installation/domain"
)

// InstallResult is what an install run reports to the progress screen.
type InstallResult struct {
	Status  app.AttemptStatus
	Message string
	Items   []domain.BundleItemResult
}

// FromAttempt converts a single-target outcome.
func FromAttempt(o app.AttemptOutcome) InstallResult {
	return InstallResult{Status: o.Status, Message: o.Message}
}

// FromBundle converts a bundle outcome.
func FromBundle(o app.BundleOutcome) InstallResult {
	return InstallResult{Status: o.Status, Message: o.Message, Items: o.Items}
}

// InstallFunc performs the install. It runs off the UI goroutine.
type InstallFunc func() InstallResult

type installDoneMsg struct {
	result InstallResult
}

type progressKeyMap struct {
	Cancel key.Binding
}

// ProgressModel shows a spinner while an install runs, then its outcome.
type ProgressModel struct {
	styles    styles
	keymap    progressKeyMap
	spinner   spinner.Model
	label     string
	run       InstallFunc
	cancel    func()
	running   bool
	canceling bool
	done      bool
	result    InstallResult
}

// NewProgressModel creates a progress screen. cancel is called once when the
// user interrupts; run is expected to return shortly after.
func NewProgressModel(label string, run InstallFunc, cancel func()) ProgressModel {
	s := defaultStyles()
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = s.info

	return ProgressModel{
		styles: s,
		keymap: progressKeyMap{
			Cancel: key.NewBinding(
				key.WithKeys("ctrl+c", "esc", "q"),
				key.WithHelp("ctrl+c", "cancel"),
			),
		},
		spinner: sp,
		label:   label,
		run:     run,
		cancel:  cancel,
	}
}

// Init implements tea.Model.
func (m ProgressModel) Init() tea.Cmd {
	run := m.run
	return tea.Batch(
		m.spinner.Tick,
		func() tea.Msg { return installDoneMsg{result: run()} },
	)
}

// Update implements tea.Model.
func (m ProgressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case installDoneMsg:
		m.done = true
		m.running = false
		m.result = msg.result
		return m, tea.Quit

	case tea.KeyMsg:
		if key.Matches(msg, m.keymap.Cancel) && !m.done && !m.canceling {
			m.canceling = true
			if m.cancel != nil {
				m.cancel()
			}
		}
		return m, nil

	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		m.running = true
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View implements tea.Model.
func (m ProgressModel) View() string {
	if m.done {
		return RenderResult(m.result) + "\n"
	}
	var b strings.Builder
	b.WriteString(m.spinner.View())
	b.WriteString(" ")
	b.WriteString(m.label)
	if m.canceling {
		b.WriteString(m.styles.subtle.Render(" (canceling...)"))
	}
	b.WriteString("\n\n")
	b.WriteString(renderHelp(m.styles, m.keymap.Cancel))
	b.WriteString("\n")
	return b.String()
}

// Result returns the install result once done.
func (m ProgressModel) Result() (InstallResult, bool) {
	return m.result, m.done
}

// RenderResult formats an install result for the terminal.
func RenderResult(r InstallResult) string {
	s := defaultStyles()
	var b strings.Builder

	switch r.Status {
	case app.AttemptInstalled:
		b.WriteString(s.success.Render("✓ Installation successful"))
	case app.AttemptFailed:
		b.WriteString(s.error.Render("✗ Installation failed"))
		if r.Message != "" {
			b.WriteString(s.error.Render(": " + r.Message))
		}
	case app.AttemptCanceled:
		b.WriteString(s.warning.Render("Installation canceled"))
	case app.AttemptIgnored:
		b.WriteString(s.subtle.Render("Another installation is already running"))
	default:
		b.WriteString(s.subtle.Render(string(r.Status)))
	}

	for _, it := range r.Items {
		b.WriteString("\n")
		name := it.Dependency.Name()
		switch {
		case it.Skipped:
			b.WriteString(s.subtle.Render(fmt.Sprintf("  - %s (already installed)", name)))
		case it.Status == domain.TaskSuccess:
			b.WriteString(s.success.Render(fmt.Sprintf("  ✓ %s", name)))
		case it.Status == domain.TaskFailed:
			line := fmt.Sprintf("  ✗ %s", name)
			if it.Message != "" {
				line += ": " + it.Message
			}
			b.WriteString(s.error.Render(line))
		default:
			b.WriteString(s.subtle.Render(fmt.Sprintf("  ? %s", name)))
		}
	}
	return b.String()
}
