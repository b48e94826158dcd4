package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/relicta-tech/installkit/internal/domain/version"
	"github.com/relicta-tech/installkit/internal/installation/domain"
)

// ConfirmResult is the user's answer on the confirmation screen.
type ConfirmResult int

const (
	// ConfirmPending means no decision has been made yet.
	ConfirmPending ConfirmResult = iota
	// ConfirmAccepted means the user wants to install.
	ConfirmAccepted
	// ConfirmRejected means the user backed out.
	ConfirmRejected
)

// InstallSummary is what the confirmation screen shows.
type InstallSummary struct {
	Title            string
	Source           domain.Source
	Plugin           string
	PluginID         string
	Version          string
	InstalledVersion string
	// Warning is shown prominently, e.g. an incompatible host version.
	Warning      string
	Description  string
	Dependencies []string
}

// SummaryFromStep builds a summary from a ready-to-install step.
func SummaryFromStep(title string, st domain.ReadyToInstallStep, installed *domain.InstalledPluginInfo) InstallSummary {
	s := InstallSummary{Title: title, Warning: st.Warning}
	if st.IsBundle() {
		s.Source = domain.SourceBundle
		s.Plugin = fmt.Sprintf("%d plugins", len(st.Dependencies))
		for _, d := range st.Dependencies {
			s.Dependencies = append(s.Dependencies, d.Name())
		}
		return s
	}

	s.Source = st.Target.Source()
	s.PluginID = st.Target.PluginID()
	s.Plugin = s.PluginID
	if m := st.Target.Manifest(); m != nil {
		s.Plugin = m.DisplayName()
		s.Version = m.Version
		s.Description = m.Description
	}
	if installed != nil {
		s.InstalledVersion = installed.InstalledVersion
	}
	return s
}

// Action describes what confirming will do.
func (s InstallSummary) Action() string {
	switch {
	case s.InstalledVersion == "":
		return "install"
	case s.Version == "" || version.Compare(s.Version, s.InstalledVersion) == 0:
		return "reinstall"
	case version.IsNewer(s.Version, s.InstalledVersion):
		return "upgrade"
	default:
		return "downgrade"
	}
}

type confirmKeyMap struct {
	Accept     key.Binding
	Reject     key.Binding
	ToggleInfo key.Binding
	Help       key.Binding
	Quit       key.Binding
	Up         key.Binding
	Down       key.Binding
}

func defaultConfirmKeyMap() confirmKeyMap {
	return confirmKeyMap{
		Accept: key.NewBinding(
			key.WithKeys("y", "enter"),
			key.WithHelp("y/enter", "install"),
		),
		Reject: key.NewBinding(
			key.WithKeys("n", "esc"),
			key.WithHelp("n/esc", "cancel"),
		),
		ToggleInfo: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("tab", "toggle details"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "help"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("k/up", "scroll up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("j/down", "scroll down"),
		),
	}
}

// ConfirmModel asks whether to install the summarized target.
type ConfirmModel struct {
	summary  InstallSummary
	viewport viewport.Model
	result   ConfirmResult
	ready    bool
	width    int
	height   int
	showHelp bool
	showInfo bool
	keymap   confirmKeyMap
	styles   styles
}

// NewConfirmModel creates a confirmation screen.
func NewConfirmModel(summary InstallSummary) ConfirmModel {
	return ConfirmModel{
		summary: summary,
		keymap:  defaultConfirmKeyMap(),
		styles:  defaultStyles(),
	}
}

// Init implements tea.Model.
func (m ConfirmModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m ConfirmModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		h := m.height - 16
		if h < 3 {
			h = 3
		}
		if !m.ready {
			m.viewport = viewport.New(m.width-4, h)
			m.viewport.SetContent(m.renderDetails())
			m.ready = true
		} else {
			m.viewport.Width = m.width - 4
			m.viewport.Height = h
		}

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keymap.Accept):
			m.result = ConfirmAccepted
			return m, tea.Quit

		case key.Matches(msg, m.keymap.Reject), key.Matches(msg, m.keymap.Quit):
			m.result = ConfirmRejected
			return m, tea.Quit

		case key.Matches(msg, m.keymap.Help):
			m.showHelp = !m.showHelp
			return m, nil

		case key.Matches(msg, m.keymap.ToggleInfo):
			m.showInfo = !m.showInfo
			return m, nil

		case key.Matches(msg, m.keymap.Up), key.Matches(msg, m.keymap.Down):
			if m.showInfo {
				m.viewport, cmd = m.viewport.Update(msg)
				return m, cmd
			}
		}
	}

	if m.showInfo {
		m.viewport, cmd = m.viewport.Update(msg)
	}
	return m, cmd
}

// View implements tea.Model.
func (m ConfirmModel) View() string {
	if !m.ready {
		return "Initializing..."
	}

	var b strings.Builder
	title := m.summary.Title
	if title == "" {
		title = "Install plugin"
	}
	b.WriteString(m.styles.title.Render(title))
	b.WriteString("\n\n")
	b.WriteString(m.renderSummary())
	b.WriteString("\n")

	if m.summary.Warning != "" {
		b.WriteString(m.styles.warning.Render("! " + m.summary.Warning))
		b.WriteString("\n\n")
	}

	if m.showInfo {
		b.WriteString(m.styles.bold.Render("Details"))
		b.WriteString("\n")
		b.WriteString(m.styles.border.Render(m.viewport.View()))
		b.WriteString("\n")
	} else {
		b.WriteString(m.styles.subtle.Render("Press [tab] to view details"))
		b.WriteString("\n\n")
	}

	if m.showHelp {
		b.WriteString(renderHelp(m.styles, m.keymap.Accept, m.keymap.Reject, m.keymap.ToggleInfo, m.keymap.Up, m.keymap.Down, m.keymap.Quit))
		b.WriteString("\n")
	} else {
		b.WriteString(m.renderPrompt())
	}
	return b.String()
}

func (m ConfirmModel) renderSummary() string {
	var b strings.Builder
	row := func(label, value string) {
		if value == "" {
			return
		}
		b.WriteString(fmt.Sprintf("%s %s\n", m.styles.label.Render(label), m.styles.value.Render(value)))
	}

	row("Plugin:", m.summary.Plugin)
	if m.summary.PluginID != m.summary.Plugin {
		row("Plugin ID:", m.summary.PluginID)
	}
	row("Source:", m.summary.Source.String())
	if m.summary.InstalledVersion != "" {
		b.WriteString(fmt.Sprintf("%s %s  →  %s\n",
			m.styles.label.Render("Version:"),
			m.styles.subtle.Render(m.summary.InstalledVersion),
			m.styles.value.Render(m.summary.Version)))
	} else {
		row("Version:", m.summary.Version)
	}
	if n := len(m.summary.Dependencies); n > 0 {
		row("Members:", fmt.Sprintf("%d", n))
	}
	return b.String()
}

func (m ConfirmModel) renderDetails() string {
	var b strings.Builder
	if m.summary.Description != "" {
		b.WriteString(m.summary.Description)
		b.WriteString("\n")
	}
	for _, d := range m.summary.Dependencies {
		b.WriteString(fmt.Sprintf("  - %s\n", d))
	}
	if b.Len() == 0 {
		return m.styles.subtle.Render("No details available")
	}
	return b.String()
}

func (m ConfirmModel) renderPrompt() string {
	var b strings.Builder
	b.WriteString(m.styles.statusBar.Render(fmt.Sprintf("Do you want to %s %s?", m.summary.Action(), m.summary.Plugin)))
	b.WriteString("\n\n")
	b.WriteString(fmt.Sprintf("  %s  %s  %s\n",
		m.styles.success.Render("[y]es"),
		m.styles.error.Render("[n]o"),
		m.styles.subtle.Render("[?]help")))
	return b.String()
}

// Result returns the user's decision.
func (m ConfirmModel) Result() ConfirmResult {
	return m.result
}
