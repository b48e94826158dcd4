package app

import (
	"context"
	"fmt"

	rperrors "github.com/relicta-tech/installkit/internal/errors"
	"github.com/relicta-tech/installkit/internal/installation/domain"
)

// GitHubUpdatePayload starts a GitHub wizard in update mode for a plugin
// that was installed from a release.
type GitHubUpdatePayload struct {
	// Repo is "owner/repo".
	Repo string
	// Version and Package identify the installed release asset.
	Version  string
	Package  string
	Releases []domain.GitHubRelease
	// Installed is the copy being replaced.
	Installed domain.InstalledPluginInfo
}

// GitHubWizard installs a plugin from a GitHub release asset.
type GitHubWizard struct {
	*wizard
	uploader *GitHubUploader
	update   *GitHubUpdatePayload

	// Selections survive back navigation.
	repo     domain.RepoRef
	url      string
	releases []domain.GitHubRelease
	tag      string
	asset    string
	target   domain.InstallTarget
}

// NewGitHubWizard creates a wizard waiting for a repository URL.
func NewGitHubWizard(services Services) (*GitHubWizard, error) {
	w, err := newWizard(services, domain.FlowGitHub, domain.SetURLStep{})
	if err != nil {
		return nil, err
	}
	return &GitHubWizard{
		wizard:   w,
		uploader: NewGitHubUploader(services.Uploader, services.uploaderOptions()...),
	}, nil
}

// NewGitHubUpdateWizard creates a wizard that updates an installed plugin.
// It starts on package selection with the payload's releases.
func NewGitHubUpdateWizard(services Services, payload GitHubUpdatePayload) (*GitHubWizard, error) {
	const op = "wizard.NewGitHubUpdate"

	repo, ok := domain.ParseRepoRef(payload.Repo)
	if !ok {
		return nil, rperrors.Wrap(domain.ErrInvalidGitHubURL, rperrors.KindValidation, op, domain.ErrInvalidGitHubURL.Error())
	}
	if len(payload.Releases) == 0 {
		return nil, rperrors.Wrap(domain.ErrNoReleasesFound, rperrors.KindValidation, op, domain.ErrNoReleasesFound.Error())
	}

	step := domain.SelectPackageStep{Repo: repo, Releases: payload.Releases}
	w, err := newWizard(services, domain.FlowGitHubUpdate, step)
	if err != nil {
		return nil, err
	}
	p := payload
	return &GitHubWizard{
		wizard:   w,
		uploader: NewGitHubUploader(services.Uploader, services.uploaderOptions()...),
		update:   &p,
		repo:     repo,
		url:      repo.URL(),
		releases: payload.Releases,
	}, nil
}

// IsUpdate reports whether the wizard replaces an installed plugin.
func (g *GitHubWizard) IsUpdate() bool {
	return g.update != nil
}

// Title returns the heading for the current step.
func (g *GitHubWizard) Title() string {
	if g.update != nil && !g.Step().ID().IsTerminal() {
		return "Update plugin"
	}
	return g.wizard.Title()
}

// RepoURL returns the address of the selected repository.
func (g *GitHubWizard) RepoURL() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.url
}

// SubmitURL validates rawURL and fetches the repository's releases. On
// failure the wizard stays on the URL step with a message.
func (g *GitHubWizard) SubmitURL(ctx context.Context, rawURL string) error {
	const op = "wizard.SubmitURL"

	g.mu.Lock()
	if _, ok := g.step.(domain.SetURLStep); !ok || g.closed {
		g.mu.Unlock()
		return ErrStepMismatch
	}
	g.mu.Unlock()

	repo, ok := domain.ParseGitHubURL(rawURL)
	if !ok {
		return g.rejectURL(rawURL, rperrors.Wrap(domain.ErrInvalidGitHubURL, rperrors.KindValidation, op, domain.ErrInvalidGitHubURL.Error()))
	}

	releases, err := g.services.Releases.FetchReleases(ctx, repo.Owner, repo.Repo)
	if err != nil {
		g.logger.Warn("failed to fetch releases", "repo", repo.String(), "error", rperrors.RedactError(err))
		return g.rejectURL(rawURL, rperrors.Wrap(fmt.Errorf("%w: %w", domain.ErrFetchReleases, err), rperrors.KindValidation, op, domain.ErrFetchReleases.Error()))
	}
	if len(releases) == 0 {
		return g.rejectURL(rawURL, rperrors.Wrap(domain.ErrNoReleasesFound, rperrors.KindValidation, op, domain.ErrNoReleasesFound.Error()))
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.transitionLocked(domain.EventSubmitURL, domain.SelectPackageStep{Repo: repo, Releases: releases}) {
		return ErrStepMismatch
	}
	g.repo, g.url, g.releases = repo, rawURL, releases
	g.tag, g.asset = "", ""
	return nil
}

func (g *GitHubWizard) rejectURL(rawURL string, err *rperrors.Error) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.replaceLocked(domain.SetURLStep{URL: rawURL, Message: err.Message})
	return err
}

// SelectVersion picks a release by tag and clears the asset selection.
func (g *GitHubWizard) SelectVersion(tag string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	st, ok := g.step.(domain.SelectPackageStep)
	if !ok || g.closed || st.Uploading {
		return ErrStepMismatch
	}
	if _, found := domain.FindRelease(st.Releases, tag); !found {
		return rperrors.Validation("wizard.SelectVersion", fmt.Sprintf("unknown version %q", tag))
	}
	st.SelectedTag, st.SelectedAsset = tag, ""
	g.tag, g.asset = tag, ""
	g.replaceLocked(st)
	return nil
}

// SelectPackage picks an asset of the selected release.
func (g *GitHubWizard) SelectPackage(asset string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	st, ok := g.step.(domain.SelectPackageStep)
	if !ok || g.closed || st.Uploading {
		return ErrStepMismatch
	}
	release, found := domain.FindRelease(st.Releases, st.SelectedTag)
	if !found {
		return rperrors.Validation("wizard.SelectPackage", "select a version first")
	}
	if _, found := release.Asset(asset); !found {
		return rperrors.Validation("wizard.SelectPackage", fmt.Sprintf("unknown package %q", asset))
	}
	st.SelectedAsset = asset
	g.asset = asset
	g.replaceLocked(st)
	return nil
}

// Versions lists the release tags in the order the backend returned them.
func (g *GitHubWizard) Versions() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return domain.ReleaseTags(g.releases)
}

// InstalledVersion returns the version being updated, or "".
func (g *GitHubWizard) InstalledVersion() string {
	if g.update == nil {
		return ""
	}
	return g.update.Version
}

// Packages lists the assets of the selected release.
func (g *GitHubWizard) Packages() []domain.ReleaseAsset {
	g.mu.Lock()
	defer g.mu.Unlock()
	release, ok := domain.FindRelease(g.releases, g.tag)
	if !ok {
		return nil
	}
	return append([]domain.ReleaseAsset(nil), release.Assets...)
}

// CanUpload reports whether a version and a package are selected.
func (g *GitHubWizard) CanUpload() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	st, ok := g.step.(domain.SelectPackageStep)
	return ok && !g.closed && !st.Uploading && st.SelectedTag != "" && st.SelectedAsset != ""
}

// Upload uploads the selected asset and moves to ReadyToInstall, or to
// UploadFailed with the upload message. A second Upload while one is
// running is dropped.
func (g *GitHubWizard) Upload(ctx context.Context) error {
	g.mu.Lock()
	st, ok := g.step.(domain.SelectPackageStep)
	if !ok || g.closed {
		g.mu.Unlock()
		return ErrStepMismatch
	}
	st.Uploading = true
	g.replaceLocked(st)
	sel := GitHubSelection{Repo: st.Repo, Tag: st.SelectedTag, Asset: st.SelectedAsset}
	g.mu.Unlock()

	out, err := g.uploader.Upload(ctx, sel)
	if rperrors.IsKind(err, rperrors.KindState) {
		return nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if cur, ok := g.step.(domain.SelectPackageStep); ok {
		cur.Uploading = false
		g.replaceLocked(cur)
	}
	if rperrors.IsKind(err, rperrors.KindValidation) {
		return err
	}
	if err != nil {
		msg, _ := rperrors.UserMessage(err)
		g.transitionLocked(domain.EventUploadFailed, domain.UploadFailedStep{Message: messageOr(msg)})
		return err
	}

	g.target = out.Target
	g.transitionLocked(domain.EventUploaded, domain.ReadyToInstallStep{
		Target:  out.Target,
		Warning: g.services.hostWarning(out.Target.Manifest()),
	})
	return nil
}

// Back returns to the previous step. It is a no-op where going back is not allowed.
func (g *GitHubWizard) Back() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch st := g.step.(type) {
	case domain.SelectPackageStep:
		if st.Uploading {
			return false
		}
		return g.transitionLocked(domain.EventBack, domain.SetURLStep{URL: g.url})
	case domain.ReadyToInstallStep:
		if st.Installing {
			return false
		}
		return g.transitionLocked(domain.EventBack, g.selectStepLocked())
	}
	return false
}

// Retry goes back to the nearest step that can be repeated after a failure.
func (g *GitHubWizard) Retry() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch g.step.(type) {
	case domain.InstallFailedStep:
		return g.transitionLocked(domain.EventRetry, domain.ReadyToInstallStep{
			Target:  g.target,
			Warning: g.services.hostWarning(g.target.Manifest()),
		})
	case domain.UploadFailedStep:
		return g.transitionLocked(domain.EventRetry, g.selectStepLocked())
	}
	return false
}

func (g *GitHubWizard) selectStepLocked() domain.SelectPackageStep {
	return domain.SelectPackageStep{
		Repo:          g.repo,
		Releases:      g.releases,
		SelectedTag:   g.tag,
		SelectedAsset: g.asset,
	}
}

// Install installs the uploaded package. In update mode the installed copy
// from the payload is replaced; otherwise the installed version is resolved.
func (g *GitHubWizard) Install(ctx context.Context, opts ...AttemptOption) AttemptOutcome {
	st, ok := g.beginInstall()
	if !ok {
		return AttemptOutcome{Status: AttemptIgnored}
	}
	defer g.endInstall()

	var installed *domain.InstalledPluginInfo
	if g.update != nil {
		info := g.update.Installed
		installed = &info
	} else {
		info, err := g.installedInfo(ctx, st.Target)
		if err != nil {
			return g.failInstall(st.Target.Manifest(), err)
		}
		installed = info
	}
	return g.install(ctx, st.Target, installed, opts...)
}
