package handlers

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rperrors "github.com/relicta-tech/installkit/internal/errors"
	"github.com/relicta-tech/installkit/internal/httpserver/dto"
	"github.com/relicta-tech/installkit/internal/installation/app"
	"github.com/relicta-tech/installkit/internal/installation/domain"
)

// stubWizard is a wizard stuck on one step.
type stubWizard struct {
	step     domain.Step
	canceled bool
}

func (w *stubWizard) Step() domain.Step   { return w.step }
func (w *stubWizard) OnStep(app.Listener) {}
func (w *stubWizard) Closed() bool        { return w.canceled }
func (w *stubWizard) IsInstalling() bool  { return false }
func (w *stubWizard) CanInstall() bool    { return !w.canceled }
func (w *stubWizard) Title() string       { return "Install plugin" }
func (w *stubWizard) Retry() bool         { return false }
func (w *stubWizard) Cancel()             { w.canceled = true }

func TestSessionStore_Prune(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	st := NewSessionStore(time.Minute)
	st.now = func() time.Time { return now }

	idle := &stubWizard{step: domain.SetURLStep{}}
	busy := &stubWizard{step: domain.SetURLStep{}}
	fresh := &stubWizard{step: domain.SetURLStep{}}
	a := st.add(domain.FlowGitHub, idle)
	b := st.add(domain.FlowGitHub, busy)
	require.True(t, b.startRun(func() {}))

	now = now.Add(2 * time.Minute)
	c := st.add(domain.FlowGitHub, fresh)

	assert.Equal(t, []string{a.id}, st.Prune())
	assert.True(t, idle.canceled)
	assert.False(t, busy.canceled, "running sessions are kept")
	assert.Equal(t, 2, st.Len())

	_, ok := st.get(c.id)
	assert.True(t, ok)
}

func TestSessionStore_GetTouches(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	st := NewSessionStore(time.Minute)
	st.now = func() time.Time { return now }

	s := st.add(domain.FlowLocal, &stubWizard{step: domain.UploadingStep{}})
	now = now.Add(50 * time.Second)
	_, ok := st.get(s.id)
	require.True(t, ok)
	now = now.Add(50 * time.Second)

	assert.Empty(t, st.Prune(), "a read resets the idle timer")
}

func TestSessionStore_Close(t *testing.T) {
	st := NewSessionStore(0)
	w := &stubWizard{step: domain.SetURLStep{}}
	s := st.add(domain.FlowGitHub, w)

	canceled := false
	require.True(t, s.startRun(func() { canceled = true }))
	require.False(t, s.startRun(func() {}), "one install at a time")

	st.Close()
	assert.True(t, w.canceled)
	assert.True(t, canceled)
	assert.Zero(t, st.Len())
}

func TestSession_InstallIgnoredWithoutInstaller(t *testing.T) {
	s := &session{wizard: &stubWizard{step: domain.ReadyToInstallStep{}}}
	out := s.install(context.Background())
	assert.Equal(t, string(app.AttemptIgnored), out.Status)

	s.finishRun(out)
	got := s.dto()
	require.NotNil(t, got.LastOutcome)
	assert.Equal(t, string(domain.StepReadyToInstall), got.Step.ID)
	assert.False(t, got.Installing)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", rperrors.Validation("op", "bad"), http.StatusBadRequest},
		{"not found", rperrors.NotFound("op", "gone"), http.StatusNotFound},
		{"state", app.ErrStepMismatch, http.StatusConflict},
		{"upload", rperrors.Upload("op", "rejected"), http.StatusUnprocessableEntity},
		{"network", rperrors.NetworkWrap(errors.New("reset"), "op", "down"), http.StatusBadGateway},
		{"too large", &http.MaxBytesError{Limit: 1}, http.StatusRequestEntityTooLarge},
		{"plain", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}

func TestFromStep(t *testing.T) {
	releases := []domain.GitHubRelease{
		{Tag: "v2", Assets: []domain.ReleaseAsset{{Name: "a.difypkg"}}},
		{Tag: "v1"},
	}
	got := dto.FromStep(domain.SelectPackageStep{
		Repo:        domain.RepoRef{Owner: "acme", Repo: "x"},
		Releases:    releases,
		SelectedTag: "v2",
	})
	assert.Equal(t, "select_package", got.ID)
	assert.Equal(t, "acme/x", got.Repo)
	assert.Equal(t, []string{"v2", "v1"}, got.Versions)
	assert.Len(t, got.Packages, 1)

	failed := dto.FromStep(domain.InstallFailedStep{Message: "boom"})
	assert.True(t, failed.Terminal)
	assert.Equal(t, "boom", failed.Message)

	assert.Equal(t, dto.StepDTO{}, dto.FromStep(nil))
}
