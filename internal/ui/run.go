package ui

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/relicta-tech/installkit/internal/installation/domain"
)

type programRunner interface {
	Run() (tea.Model, error)
}

var newProgram = func(model tea.Model) programRunner {
	return tea.NewProgram(model)
}

// PickPackage runs the release picker. ok is false when the user canceled.
func PickPackage(repo domain.RepoRef, releases []domain.GitHubRelease, installedVersion string) (tag, asset string, ok bool, err error) {
	final, err := newProgram(NewPickerModel(repo, releases, installedVersion)).Run()
	if err != nil {
		return "", "", false, fmt.Errorf("picker error: %w", err)
	}
	m, isPicker := final.(PickerModel)
	if !isPicker {
		return "", "", false, fmt.Errorf("unexpected model type from picker")
	}
	if m.Result() != PickerSelected {
		return "", "", false, nil
	}
	tag, asset = m.Selection()
	return tag, asset, true, nil
}

// Confirm runs the confirmation screen and reports whether to proceed.
func Confirm(summary InstallSummary) (bool, error) {
	final, err := newProgram(NewConfirmModel(summary)).Run()
	if err != nil {
		return false, fmt.Errorf("confirmation error: %w", err)
	}
	m, ok := final.(ConfirmModel)
	if !ok {
		return false, fmt.Errorf("unexpected model type from confirmation")
	}
	return m.Result() == ConfirmAccepted, nil
}

// RunInstall runs fn behind a spinner.
func RunInstall(label string, fn InstallFunc, cancel func()) (InstallResult, error) {
	final, err := newProgram(NewProgressModel(label, fn, cancel)).Run()
	if err != nil {
		return InstallResult{}, fmt.Errorf("progress error: %w", err)
	}
	m, ok := final.(ProgressModel)
	if !ok {
		return InstallResult{}, fmt.Errorf("unexpected model type from progress")
	}
	res, done := m.Result()
	if !done {
		return InstallResult{}, fmt.Errorf("install did not finish")
	}
	return res, nil
}
