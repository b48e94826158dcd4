// Package dto provides data transfer objects for the session API.
package dto

import (
	"time"

	"github.com/relicta-tech/installkit/internal/installation/app"
	"github.com/relicta-tech/installkit/internal/installation/domain"
)

// ErrorResponse is an API error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
	// Recoverable is set when the client can fix the request and retry.
	Recoverable bool `json:"recoverable,omitempty"`
}

// HealthResponse is the response for the health check endpoint.
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Uptime    string `json:"uptime"`
	Version   string `json:"version,omitempty"`
	GoVersion string `json:"go_version"`
	Sessions  int    `json:"sessions"`
}

// TargetDTO is an install-ready package.
type TargetDTO struct {
	Source           string                 `json:"source"`
	UniqueIdentifier string                 `json:"unique_identifier"`
	PluginID         string                 `json:"plugin_id"`
	Manifest         *domain.PluginManifest `json:"manifest"`
}

// StepDTO is the API representation of a wizard step. Only the fields that
// belong to the step's ID are set.
type StepDTO struct {
	ID       string `json:"id"`
	Terminal bool   `json:"terminal"`
	Message  string `json:"message,omitempty"`

	// set_url
	URL string `json:"url,omitempty"`

	// select_package
	Repo            string                `json:"repo,omitempty"`
	Versions        []string              `json:"versions,omitempty"`
	SelectedVersion string                `json:"selected_version,omitempty"`
	SelectedPackage string                `json:"selected_package,omitempty"`
	Packages        []domain.ReleaseAsset `json:"packages,omitempty"`
	Uploading       bool                  `json:"uploading,omitempty"`

	// uploading
	FileName string `json:"file_name,omitempty"`
	Source   string `json:"source,omitempty"`

	// ready_to_install
	Target       *TargetDTO          `json:"target,omitempty"`
	Dependencies []domain.Dependency `json:"dependencies,omitempty"`
	Installing   bool                `json:"installing,omitempty"`

	// installed, install_failed, upload_failed
	Manifest     *domain.PluginManifest    `json:"manifest,omitempty"`
	NeedsRefresh bool                      `json:"needs_refresh,omitempty"`
	Items        []domain.BundleItemResult `json:"items,omitempty"`
}

// FromStep converts a wizard step.
func FromStep(s domain.Step) StepDTO {
	if s == nil {
		return StepDTO{}
	}
	out := StepDTO{
		ID:       s.ID().String(),
		Terminal: s.ID().IsTerminal(),
		Message:  domain.StepMessage(s),
	}
	switch st := s.(type) {
	case domain.SetURLStep:
		out.URL = st.URL
	case domain.SelectPackageStep:
		out.Repo = st.Repo.String()
		out.Versions = domain.ReleaseTags(st.Releases)
		out.SelectedVersion = st.SelectedTag
		out.SelectedPackage = st.SelectedAsset
		out.Uploading = st.Uploading
		if release, ok := domain.FindRelease(st.Releases, st.SelectedTag); ok {
			out.Packages = release.Assets
		}
	case domain.UploadingStep:
		out.FileName = st.FileName
		out.Source = st.Source.String()
	case domain.ReadyToInstallStep:
		if !st.Target.IsZero() {
			out.Target = FromTarget(st.Target)
		}
		out.Dependencies = st.Dependencies
		out.Installing = st.Installing
	case domain.InstalledStep:
		out.Manifest = st.Manifest
		out.NeedsRefresh = st.NeedsRefresh
		out.Items = st.Items
	case domain.InstallFailedStep:
		out.Manifest = st.Manifest
		out.Items = st.Items
	case domain.UploadFailedStep:
		out.Manifest = st.Manifest
	}
	return out
}

// FromTarget converts an install target.
func FromTarget(t domain.InstallTarget) *TargetDTO {
	return &TargetDTO{
		Source:           t.Source().String(),
		UniqueIdentifier: t.UniqueIdentifier(),
		PluginID:         t.PluginID(),
		Manifest:         t.Manifest(),
	}
}

// OutcomeDTO is the result of the last install attempt of a session.
type OutcomeDTO struct {
	Status       string                    `json:"status"`
	Message      string                    `json:"message,omitempty"`
	NeedsRefresh bool                      `json:"needs_refresh,omitempty"`
	TaskID       string                    `json:"task_id,omitempty"`
	Items        []domain.BundleItemResult `json:"items,omitempty"`
	FinishedAt   time.Time                 `json:"finished_at"`
}

// FromAttempt converts a single-package outcome.
func FromAttempt(o app.AttemptOutcome, at time.Time) *OutcomeDTO {
	return &OutcomeDTO{
		Status:       string(o.Status),
		Message:      o.Message,
		NeedsRefresh: o.NeedsRefresh,
		TaskID:       o.TaskID,
		FinishedAt:   at,
	}
}

// FromBundle converts a bundle outcome.
func FromBundle(o app.BundleOutcome, at time.Time) *OutcomeDTO {
	return &OutcomeDTO{
		Status:       string(o.Status),
		Message:      o.Message,
		NeedsRefresh: o.NeedsRefresh,
		Items:        o.Items,
		FinishedAt:   at,
	}
}

// SessionDTO is the API representation of an install session.
type SessionDTO struct {
	ID               string      `json:"id"`
	Flow             string      `json:"flow"`
	Title            string      `json:"title"`
	Step             StepDTO     `json:"step"`
	Installing       bool        `json:"installing"`
	CanInstall       bool        `json:"can_install"`
	Closed           bool        `json:"closed"`
	InstalledVersion string      `json:"installed_version,omitempty"`
	LastOutcome      *OutcomeDTO `json:"last_outcome,omitempty"`
	CreatedAt        time.Time   `json:"created_at"`
}

// StepEvent is broadcast over the WebSocket whenever a session changes step.
type StepEvent struct {
	SessionID string  `json:"session_id"`
	Flow      string  `json:"flow"`
	Step      StepDTO `json:"step"`
}

// GitHubUpdateRequest starts a GitHub session in update mode.
type GitHubUpdateRequest struct {
	Repo      string                     `json:"repo"`
	Version   string                     `json:"version"`
	Package   string                     `json:"package"`
	Installed domain.InstalledPluginInfo `json:"installed"`
}

// CreateGitHubSessionRequest creates a GitHub session. URL, when set, is
// submitted right away.
type CreateGitHubSessionRequest struct {
	URL    string               `json:"url,omitempty"`
	Update *GitHubUpdateRequest `json:"update,omitempty"`
}

// CreateMarketplaceSessionRequest creates a marketplace session.
type CreateMarketplaceSessionRequest struct {
	UniqueIdentifier string `json:"unique_identifier"`
}

// SubmitURLRequest submits a repository URL.
type SubmitURLRequest struct {
	URL string `json:"url"`
}

// SelectVersionRequest selects a release.
type SelectVersionRequest struct {
	Version string `json:"version"`
}

// SelectPackageRequest selects a release asset.
type SelectPackageRequest struct {
	Package string `json:"package"`
}

// InstallRequest starts an install attempt.
type InstallRequest struct {
	// SkipRefresh suppresses list invalidation after success.
	SkipRefresh bool `json:"skip_refresh,omitempty"`
}

// UpdateCheckResponse is the result of an update check.
type UpdateCheckResponse struct {
	Repo       string       `json:"repo"`
	Current    string       `json:"current"`
	NeedUpdate bool         `json:"need_update"`
	Advisory   app.Advisory `json:"advisory"`
	Versions   []string     `json:"versions,omitempty"`
}

// InstalledPluginsResponse lists installed plugins by plugin id. A null
// entry means the plugin is not installed.
type InstalledPluginsResponse struct {
	Plugins map[string]*domain.InstalledPluginInfo `json:"plugins"`
}
