package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/relicta-tech/installkit/internal/domain/version"
	"github.com/relicta-tech/installkit/internal/installation/domain"
)

// PickerResult is how the picker ended.
type PickerResult int

const (
	// PickerPending means no choice has been made yet.
	PickerPending PickerResult = iota
	// PickerSelected means a release and an asset were chosen.
	PickerSelected
	// PickerCanceled means the user left without choosing.
	PickerCanceled
)

type pickerStage int

const (
	stageRelease pickerStage = iota
	stageAsset
)

type releaseItem struct {
	release domain.GitHubRelease
	note    string
}

func (i releaseItem) FilterValue() string { return i.release.Tag }
func (i releaseItem) Title() string       { return i.release.Tag }

func (i releaseItem) Description() string {
	desc := fmt.Sprintf("%d package(s)", len(i.release.Assets))
	if i.note != "" {
		desc += " • " + i.note
	}
	return desc
}

type assetItem struct {
	asset domain.ReleaseAsset
}

func (i assetItem) FilterValue() string { return i.asset.Name }
func (i assetItem) Title() string       { return i.asset.Name }
func (i assetItem) Description() string { return i.asset.DownloadURL }

type pickerKeyMap struct {
	Select key.Binding
	Back   key.Binding
	Quit   key.Binding
}

func defaultPickerKeyMap() pickerKeyMap {
	return pickerKeyMap{
		Select: key.NewBinding(
			key.WithKeys("enter", " "),
			key.WithHelp("enter", "select"),
		),
		Back: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "back"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// PickerModel lets the user choose a release, then one of its packages.
// Going back from the package list keeps the release cursor.
type PickerModel struct {
	styles   styles
	keymap   pickerKeyMap
	repo     domain.RepoRef
	releases []domain.GitHubRelease
	stage    pickerStage
	releaseL list.Model
	assetL   list.Model
	width    int
	height   int
	ready    bool

	tag    string
	asset  string
	result PickerResult
}

// NewPickerModel creates a picker over releases. installedVersion marks the
// release matching the installed copy.
func NewPickerModel(repo domain.RepoRef, releases []domain.GitHubRelease, installedVersion string) PickerModel {
	s := defaultStyles()

	latest, _ := version.Latest(domain.ReleaseTags(releases))
	items := make([]list.Item, 0, len(releases))
	for _, r := range releases {
		var notes []string
		if r.Tag == latest {
			notes = append(notes, "latest")
		}
		if installedVersion != "" && version.Compare(r.Tag, installedVersion) == 0 {
			notes = append(notes, "installed")
		}
		items = append(items, releaseItem{release: r, note: strings.Join(notes, ", ")})
	}

	l := newList(items, s)
	l.Title = "Select a version of " + repo.String()

	return PickerModel{
		styles:   s,
		keymap:   defaultPickerKeyMap(),
		repo:     repo,
		releases: releases,
		releaseL: l,
	}
}

func newList(items []list.Item, s styles) list.Model {
	delegate := list.NewDefaultDelegate()
	delegate.Styles.SelectedTitle = s.selected
	delegate.Styles.SelectedDesc = s.subtle.PaddingLeft(2)
	delegate.Styles.NormalTitle = s.normal
	delegate.Styles.NormalDesc = s.subtle.PaddingLeft(2)

	l := list.New(items, delegate, 0, 0)
	l.Styles.Title = s.title
	l.SetShowStatusBar(false)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(true)
	return l
}

// Init implements tea.Model.
func (m PickerModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m PickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m.releaseL.SetSize(m.width-4, m.height-6)
		if m.stage == stageAsset {
			m.assetL.SetSize(m.width-4, m.height-6)
		}
		return m, nil

	case tea.KeyMsg:
		if m.current().FilterState() == list.Filtering {
			break
		}
		switch {
		case key.Matches(msg, m.keymap.Quit):
			m.result = PickerCanceled
			return m, tea.Quit

		case key.Matches(msg, m.keymap.Back):
			if m.current().FilterState() == list.FilterApplied {
				break
			}
			if m.stage == stageAsset {
				m.stage = stageRelease
				m.asset = ""
				return m, nil
			}
			m.result = PickerCanceled
			return m, tea.Quit

		case key.Matches(msg, m.keymap.Select):
			return m.selectCurrent()
		}
	}

	var cmd tea.Cmd
	if m.stage == stageAsset {
		m.assetL, cmd = m.assetL.Update(msg)
	} else {
		m.releaseL, cmd = m.releaseL.Update(msg)
	}
	return m, cmd
}

func (m PickerModel) selectCurrent() (tea.Model, tea.Cmd) {
	if m.stage == stageRelease {
		item, ok := m.releaseL.SelectedItem().(releaseItem)
		if !ok || len(item.release.Assets) == 0 {
			return m, nil
		}
		m.tag = item.release.Tag
		items := make([]list.Item, 0, len(item.release.Assets))
		for _, a := range item.release.Assets {
			items = append(items, assetItem{asset: a})
		}
		m.assetL = newList(items, m.styles)
		m.assetL.Title = fmt.Sprintf("Select a package from %s@%s", m.repo, m.tag)
		if m.ready {
			m.assetL.SetSize(m.width-4, m.height-6)
		}
		m.stage = stageAsset
		return m, nil
	}

	item, ok := m.assetL.SelectedItem().(assetItem)
	if !ok {
		return m, nil
	}
	m.asset = item.asset.Name
	m.result = PickerSelected
	return m, tea.Quit
}

func (m PickerModel) current() list.Model {
	if m.stage == stageAsset {
		return m.assetL
	}
	return m.releaseL
}

// View implements tea.Model.
func (m PickerModel) View() string {
	if !m.ready {
		return "Initializing..."
	}

	var b strings.Builder
	b.WriteString(m.current().View())
	b.WriteString("\n\n")
	b.WriteString(renderStepIndicator(domain.StepSelectPackage, m.styles))
	b.WriteString("\n")
	b.WriteString(renderHelp(m.styles, m.keymap.Select, m.keymap.Back, m.keymap.Quit))
	b.WriteString("\n")
	return b.String()
}

// Result returns how the picker ended.
func (m PickerModel) Result() PickerResult {
	return m.result
}

// Selection returns the chosen tag and asset.
func (m PickerModel) Selection() (tag, asset string) {
	return m.tag, m.asset
}
