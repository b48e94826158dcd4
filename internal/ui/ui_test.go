package ui

import (
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/relicta-tech/installkit/internal/installation/app"
	"github.com/relicta-tech/installkit/internal/installation/domain"
)

func testReleases() []domain.GitHubRelease {
	return []domain.GitHubRelease{
		{Tag: "v2.0.0", Assets: []domain.ReleaseAsset{{Name: "search.difypkg"}, {Name: "search-arm.difypkg"}}},
		{Tag: "v1.0.0", Assets: []domain.ReleaseAsset{{Name: "search.difypkg"}}},
		{Tag: "v0.1.0"},
	}
}

func keyRunes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func sendAll(t *testing.T, m tea.Model, msgs ...tea.Msg) (tea.Model, tea.Cmd) {
	t.Helper()
	var cmd tea.Cmd
	for _, msg := range msgs {
		m, cmd = m.Update(msg)
	}
	return m, cmd
}

func TestPickerModel_SelectsReleaseThenAsset(t *testing.T) {
	repo := domain.RepoRef{Owner: "acme", Repo: "search"}
	m := NewPickerModel(repo, testReleases(), "1.0.0")

	final, cmd := sendAll(t, m,
		tea.WindowSizeMsg{Width: 80, Height: 40},
		tea.KeyMsg{Type: tea.KeyEnter},
		tea.KeyMsg{Type: tea.KeyDown},
		tea.KeyMsg{Type: tea.KeyEnter},
	)
	p := final.(PickerModel)
	if p.Result() != PickerSelected {
		t.Fatalf("Result = %v, want PickerSelected", p.Result())
	}
	if cmd == nil {
		t.Error("expected quit command after selecting an asset")
	}
	tag, asset := p.Selection()
	if tag != "v2.0.0" || asset != "search-arm.difypkg" {
		t.Errorf("Selection = %s, %s", tag, asset)
	}
}

func TestPickerModel_BackKeepsReleaseList(t *testing.T) {
	m := NewPickerModel(domain.RepoRef{Owner: "acme", Repo: "search"}, testReleases(), "")

	final, _ := sendAll(t, m,
		tea.WindowSizeMsg{Width: 80, Height: 40},
		tea.KeyMsg{Type: tea.KeyDown},
		tea.KeyMsg{Type: tea.KeyEnter},
		tea.KeyMsg{Type: tea.KeyEsc},
	)
	p := final.(PickerModel)
	if p.Result() != PickerPending || p.stage != stageRelease {
		t.Fatalf("after back: result %v, stage %v", p.Result(), p.stage)
	}
	if item := p.releaseL.SelectedItem().(releaseItem); item.release.Tag != "v1.0.0" {
		t.Errorf("release cursor = %s, want v1.0.0", item.release.Tag)
	}

	final, _ = sendAll(t, p, tea.KeyMsg{Type: tea.KeyEsc})
	if final.(PickerModel).Result() != PickerCanceled {
		t.Error("esc on the release list should cancel")
	}
}

func TestPickerModel_ReleaseWithoutAssets(t *testing.T) {
	m := NewPickerModel(domain.RepoRef{Owner: "acme", Repo: "search"}, testReleases(), "")

	final, _ := sendAll(t, m,
		tea.WindowSizeMsg{Width: 80, Height: 40},
		tea.KeyMsg{Type: tea.KeyDown},
		tea.KeyMsg{Type: tea.KeyDown},
		tea.KeyMsg{Type: tea.KeyEnter},
	)
	if p := final.(PickerModel); p.stage != stageRelease {
		t.Error("a release without packages should not be selectable")
	}
}

func TestPickerModel_Notes(t *testing.T) {
	m := NewPickerModel(domain.RepoRef{Owner: "acme", Repo: "search"}, testReleases(), "1.0.0")
	items := m.releaseL.Items()

	if got := items[0].(releaseItem).Description(); !strings.Contains(got, "latest") {
		t.Errorf("first release description = %q, want latest marker", got)
	}
	if got := items[1].(releaseItem).Description(); !strings.Contains(got, "installed") {
		t.Errorf("second release description = %q, want installed marker", got)
	}
}

func TestPickerModel_ViewNotReady(t *testing.T) {
	m := NewPickerModel(domain.RepoRef{Owner: "acme", Repo: "search"}, nil, "")
	if view := m.View(); view != "Initializing..." {
		t.Errorf("View = %q", view)
	}
}

func TestConfirmModel_Keys(t *testing.T) {
	tests := []struct {
		name string
		msg  tea.KeyMsg
		want ConfirmResult
	}{
		{"yes", keyRunes("y"), ConfirmAccepted},
		{"enter", tea.KeyMsg{Type: tea.KeyEnter}, ConfirmAccepted},
		{"no", keyRunes("n"), ConfirmRejected},
		{"esc", tea.KeyMsg{Type: tea.KeyEsc}, ConfirmRejected},
		{"quit", keyRunes("q"), ConfirmRejected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewConfirmModel(InstallSummary{Plugin: "Search"})
			final, cmd := sendAll(t, m, tea.WindowSizeMsg{Width: 80, Height: 40}, tt.msg)
			if got := final.(ConfirmModel).Result(); got != tt.want {
				t.Errorf("Result = %v, want %v", got, tt.want)
			}
			if cmd == nil {
				t.Error("expected quit command")
			}
		})
	}
}

func TestConfirmModel_View(t *testing.T) {
	m := NewConfirmModel(InstallSummary{
		Plugin:           "Search",
		PluginID:         "acme/search",
		Source:           domain.SourceGitHub,
		Version:          "2.0.0",
		InstalledVersion: "1.0.0",
		Warning:          "this plugin requires host version 3.0.0 or later",
		Description:      "Web search",
	})
	final, _ := sendAll(t, m, tea.WindowSizeMsg{Width: 80, Height: 40}, tea.KeyMsg{Type: tea.KeyTab})

	view := final.View()
	for _, want := range []string{"acme/search", "1.0.0", "2.0.0", "requires host version", "Web search", "upgrade Search"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestInstallSummary_Action(t *testing.T) {
	tests := []struct {
		version, installed, want string
	}{
		{"1.0.0", "", "install"},
		{"1.0.0", "1.0.0", "reinstall"},
		{"2.0.0", "1.0.0", "upgrade"},
		{"0.9.0", "1.0.0", "downgrade"},
	}
	for _, tt := range tests {
		s := InstallSummary{Version: tt.version, InstalledVersion: tt.installed}
		if got := s.Action(); got != tt.want {
			t.Errorf("Action(%s over %s) = %q, want %q", tt.version, tt.installed, got, tt.want)
		}
	}
}

func TestSummaryFromStep(t *testing.T) {
	m := &domain.PluginManifest{Name: "search", Author: "acme", Version: "2.0.0", Label: "Search"}
	target, err := domain.NewInstallTarget(domain.SourceGitHub, "acme/search:2.0.0@abc", m)
	if err != nil {
		t.Fatal(err)
	}

	s := SummaryFromStep("Install plugin", domain.ReadyToInstallStep{Target: target, Warning: "w"}, &domain.InstalledPluginInfo{InstalledVersion: "1.0.0"})
	if s.Plugin != "Search" || s.PluginID != "acme/search" || s.Version != "2.0.0" || s.InstalledVersion != "1.0.0" || s.Warning != "w" {
		t.Errorf("summary = %+v", s)
	}

	bundle := SummaryFromStep("", domain.ReadyToInstallStep{Dependencies: []domain.Dependency{
		{Type: domain.DependencyMarketplace, Marketplace: &domain.MarketplaceDependency{MarketplacePluginUniqueIdentifier: "acme/a:1@x"}},
	}}, nil)
	if bundle.Source != domain.SourceBundle || len(bundle.Dependencies) != 1 || bundle.Dependencies[0] != "acme/a" {
		t.Errorf("bundle summary = %+v", bundle)
	}
}

func TestProgressModel(t *testing.T) {
	canceled := 0
	m := NewProgressModel("Installing", func() InstallResult {
		return InstallResult{Status: app.AttemptInstalled}
	}, func() { canceled++ })

	if m.Init() == nil {
		t.Fatal("Init should start the install")
	}

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	next, _ = next.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if canceled != 1 {
		t.Errorf("cancel called %d times, want 1", canceled)
	}
	if !strings.Contains(next.View(), "canceling") {
		t.Error("view should show cancellation in progress")
	}

	next, cmd := next.Update(installDoneMsg{result: InstallResult{Status: app.AttemptCanceled}})
	if cmd == nil {
		t.Error("expected quit command once done")
	}
	res, done := next.(ProgressModel).Result()
	if !done || res.Status != app.AttemptCanceled {
		t.Errorf("Result = %+v, %v", res, done)
	}
}

func TestRenderResult(t *testing.T) {
	out := RenderResult(InstallResult{
		Status:  app.AttemptFailed,
		Message: "1 of 2 plugins failed to install",
		Items: []domain.BundleItemResult{
			{Dependency: domain.Dependency{Type: domain.DependencyMarketplace, Marketplace: &domain.MarketplaceDependency{MarketplacePluginUniqueIdentifier: "acme/a:1@x"}}, Status: domain.TaskSuccess, Skipped: true},
			{Dependency: domain.Dependency{Type: domain.DependencyMarketplace, Marketplace: &domain.MarketplaceDependency{MarketplacePluginUniqueIdentifier: "acme/b:1@x"}}, Status: domain.TaskFailed, Message: "boom"},
		},
	})
	for _, want := range []string{"Installation failed", "1 of 2 plugins", "acme/a (already installed)", "acme/b: boom"} {
		if !strings.Contains(out, want) {
			t.Errorf("RenderResult missing %q in %q", want, out)
		}
	}
}

type stubProgram struct {
	model tea.Model
	err   error
}

func (s stubProgram) Run() (tea.Model, error) {
	return s.model, s.err
}

func stubPrograms(t *testing.T, fn func(tea.Model) programRunner) {
	t.Helper()
	orig := newProgram
	t.Cleanup(func() { newProgram = orig })
	newProgram = fn
}

func TestPickPackage(t *testing.T) {
	stubPrograms(t, func(model tea.Model) programRunner {
		m := model.(PickerModel)
		m.tag, m.asset, m.result = "v1.0.0", "search.difypkg", PickerSelected
		return stubProgram{model: m}
	})

	tag, asset, ok, err := PickPackage(domain.RepoRef{Owner: "acme", Repo: "search"}, testReleases(), "")
	if err != nil || !ok || tag != "v1.0.0" || asset != "search.difypkg" {
		t.Errorf("PickPackage() = %s, %s, %v, %v", tag, asset, ok, err)
	}
}

func TestPickPackage_Errors(t *testing.T) {
	stubPrograms(t, func(tea.Model) programRunner {
		return stubProgram{err: errors.New("no tty")}
	})
	if _, _, _, err := PickPackage(domain.RepoRef{}, nil, ""); err == nil || !strings.Contains(err.Error(), "no tty") {
		t.Errorf("PickPackage() error = %v", err)
	}

	stubPrograms(t, func(tea.Model) programRunner {
		return stubProgram{model: NewConfirmModel(InstallSummary{})}
	})
	if _, _, _, err := PickPackage(domain.RepoRef{}, nil, ""); err == nil {
		t.Error("PickPackage() should reject an unexpected model")
	}
}

func TestConfirmAndRunInstall(t *testing.T) {
	stubPrograms(t, func(model tea.Model) programRunner {
		switch m := model.(type) {
		case ConfirmModel:
			m.result = ConfirmAccepted
			return stubProgram{model: m}
		case ProgressModel:
			m.done, m.result = true, m.run()
			return stubProgram{model: m}
		}
		return stubProgram{err: errors.New("unexpected model")}
	})

	ok, err := Confirm(InstallSummary{Plugin: "Search"})
	if err != nil || !ok {
		t.Fatalf("Confirm() = %v, %v", ok, err)
	}

	res, err := RunInstall("Installing", func() InstallResult {
		return FromAttempt(app.AttemptOutcome{Status: app.AttemptInstalled})
	}, nil)
	if err != nil || res.Status != app.AttemptInstalled {
		t.Errorf("RunInstall() = %+v, %v", res, err)
	}
}

func TestRenderStepIndicator(t *testing.T) {
	out := renderStepIndicator(domain.StepReadyToInstall, defaultStyles())
	for _, want := range []string{"Repository", "Package", "Confirm", "Install"} {
		if !strings.Contains(out, want) {
			t.Errorf("indicator missing %q", want)
		}
	}
}
