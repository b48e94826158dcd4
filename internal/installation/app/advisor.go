package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/relicta-tech/installkit/internal/domain/version"
	"github.com/relicta-tech/installkit/internal/installation/domain"
	"github.com/relicta-tech/installkit/internal/installation/ports"
)

// AdvisoryKind is the severity of an update advisory.
type AdvisoryKind string

// Advisory kinds.
const (
	AdvisoryError           AdvisoryKind = "error"
	AdvisoryInfo            AdvisoryKind = "info"
	AdvisoryUpdateAvailable AdvisoryKind = "update_available"
)

// Advisory is the user-facing result of an update check.
type Advisory struct {
	Kind      AdvisoryKind `json:"kind"`
	Message   string       `json:"message"`
	LatestTag string       `json:"latest_tag,omitempty"`
}

// UpdateAdvice tells whether a newer release exists.
type UpdateAdvice struct {
	NeedUpdate bool     `json:"need_update"`
	Advisory   Advisory `json:"advisory"`
}

// UpdateAdvisor decides whether a plugin installed from GitHub can be updated.
type UpdateAdvisor struct {
	fetcher ports.ReleaseFetcher
	logger  *slog.Logger
}

// NewUpdateAdvisor creates an advisor. fetcher is only needed by CheckRepository.
func NewUpdateAdvisor(fetcher ports.ReleaseFetcher, logger *slog.Logger) *UpdateAdvisor {
	if logger == nil {
		logger = slog.Default()
	}
	return &UpdateAdvisor{fetcher: fetcher, logger: logger}
}

// CheckForUpdates compares the newest release tag with currentVersion.
func (a *UpdateAdvisor) CheckForUpdates(releases []domain.GitHubRelease, currentVersion string) UpdateAdvice {
	latest, err := version.Latest(domain.ReleaseTags(releases))
	if err != nil {
		return UpdateAdvice{Advisory: Advisory{Kind: AdvisoryError, Message: MessageNoReleases}}
	}

	if version.IsNewer(latest, currentVersion) {
		return UpdateAdvice{
			NeedUpdate: true,
			Advisory: Advisory{
				Kind:      AdvisoryUpdateAvailable,
				Message:   fmt.Sprintf("new version available: %s", latest),
				LatestTag: latest,
			},
		}
	}

	return UpdateAdvice{Advisory: Advisory{Kind: AdvisoryInfo, Message: MessageUpToDate, LatestTag: latest}}
}

// CheckRepository fetches the releases of repo and checks them against
// currentVersion. The releases are returned so a caller can offer them for
// an update without fetching twice.
func (a *UpdateAdvisor) CheckRepository(ctx context.Context, repo domain.RepoRef, currentVersion string) (UpdateAdvice, []domain.GitHubRelease, error) {
	releases, err := a.fetcher.FetchReleases(ctx, repo.Owner, repo.Repo)
	if err != nil {
		a.logger.Warn("failed to fetch releases", "repo", repo.String(), "error", err)
		return UpdateAdvice{Advisory: Advisory{Kind: AdvisoryError, Message: domain.ErrFetchReleases.Error()}}, nil, err
	}

	advice := a.CheckForUpdates(releases, currentVersion)
	a.logger.Debug("checked for updates",
		"repo", repo.String(),
		"current", currentVersion,
		"latest", advice.Advisory.LatestTag,
		"need_update", advice.NeedUpdate,
	)
	return advice, releases, nil
}
