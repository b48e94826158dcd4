package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"

	rperrors "github.com/relicta-tech/installkit/internal/errors"
	"github.com/relicta-tech/installkit/internal/installation/domain"
	"github.com/relicta-tech/installkit/internal/installation/ports"
	"github.com/relicta-tech/installkit/internal/observability"
)

// UploadOutcome is an install-ready package or, for bundles, its members.
type UploadOutcome struct {
	Target       domain.InstallTarget
	Dependencies []domain.Dependency
}

// IsBundle returns true when the upload produced a dependency list.
func (o UploadOutcome) IsBundle() bool {
	return o.Target.IsZero()
}

// UploaderOption configures the upload adapters.
type UploaderOption func(*uploadConfig)

type uploadConfig struct {
	legacyRejectedSuccess bool
	logger                *slog.Logger
	metrics               *observability.Metrics
}

// WithLegacyRejectedSuccess treats a rejected upload whose body carries no
// error message as a success. Some backends deliver successful uploads this way.
func WithLegacyRejectedSuccess(enabled bool) UploaderOption {
	return func(c *uploadConfig) {
		c.legacyRejectedSuccess = enabled
	}
}

// WithUploadLogger sets the logger.
func WithUploadLogger(l *slog.Logger) UploaderOption {
	return func(c *uploadConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithUploadMetrics sets the metrics sink.
func WithUploadMetrics(m *observability.Metrics) UploaderOption {
	return func(c *uploadConfig) {
		c.metrics = m
	}
}

func newUploadConfig(opts []UploaderOption) uploadConfig {
	c := uploadConfig{logger: slog.Default()}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// uploadGuard rejects concurrent uploads on one adapter.
type uploadGuard struct {
	busy atomic.Bool
}

func (g *uploadGuard) acquire() bool { return g.busy.CompareAndSwap(false, true) }
func (g *uploadGuard) release()      { g.busy.Store(false) }

// normalizeUpload turns the collaborator's answer into an outcome or a
// failure carrying a user-facing message. It is the only place that knows
// about rejected responses carrying a success body.
func normalizeUpload(op string, source domain.Source, resp ports.UploadResponse, err error, legacyRejectedSuccess bool) (UploadOutcome, error) {
	if err != nil {
		var rejected *ports.RejectedUploadError
		if !errors.As(err, &rejected) {
			if msg, ok := rperrors.UserMessage(err); ok {
				return UploadOutcome{}, rperrors.UploadWrap(err, op, msg)
			}
			return UploadOutcome{}, rperrors.UploadWrap(err, op, MessageUploadFailed)
		}
		if rejected.Response.Message != "" || !legacyRejectedSuccess {
			return UploadOutcome{}, rperrors.UploadWrap(err, op, messageOr(rejected.Response.Message))
		}
		resp = rejected.Response
	}

	if resp.Message != "" {
		return UploadOutcome{}, rperrors.Upload(op, resp.Message)
	}

	if source == domain.SourceBundle {
		if len(resp.Dependencies) == 0 {
			return UploadOutcome{}, rperrors.Upload(op, MessageUploadFailed).WithDetail("reason", "empty dependency list")
		}
		for _, dep := range resp.Dependencies {
			if verr := dep.Validate(); verr != nil {
				return UploadOutcome{}, rperrors.UploadWrap(verr, op, MessageUploadFailed)
			}
		}
		return UploadOutcome{Dependencies: resp.Dependencies}, nil
	}

	target, terr := domain.NewInstallTarget(source, resp.UniqueIdentifier, resp.Manifest)
	if terr != nil {
		return UploadOutcome{}, rperrors.UploadWrap(terr, op, MessageUploadFailed)
	}
	return UploadOutcome{Target: target}, nil
}

func messageOr(msg string) string {
	if msg == "" {
		return MessageUploadFailed
	}
	return msg
}

// GitHubSelection is the release asset chosen by the user.
type GitHubSelection struct {
	Repo  domain.RepoRef
	Tag   string
	Asset string
}

// GitHubUploader uploads release assets.
type GitHubUploader struct {
	uploader ports.PackageUploader
	cfg      uploadConfig
	guard    uploadGuard
}

// NewGitHubUploader creates a GitHub upload adapter. Use one per wizard.
func NewGitHubUploader(uploader ports.PackageUploader, opts ...UploaderOption) *GitHubUploader {
	return &GitHubUploader{uploader: uploader, cfg: newUploadConfig(opts)}
}

// Upload uploads the selected asset.
func (u *GitHubUploader) Upload(ctx context.Context, sel GitHubSelection) (UploadOutcome, error) {
	const op = "upload.GitHub"

	if sel.Tag == "" || sel.Asset == "" {
		return UploadOutcome{}, rperrors.Validation(op, "select a version and a package first")
	}
	if !u.guard.acquire() {
		return UploadOutcome{}, ErrUploadInProgress
	}
	defer u.guard.release()

	resp, err := u.uploader.UploadFromGitHub(ctx, sel.Repo.String(), sel.Tag, sel.Asset)
	out, err := normalizeUpload(op, domain.SourceGitHub, resp, err, u.cfg.legacyRejectedSuccess)
	u.cfg.metrics.RecordUpload(string(domain.SourceGitHub), err == nil)
	if err != nil {
		u.cfg.logger.Warn("github upload failed", "repo", sel.Repo.String(), "tag", sel.Tag, "asset", sel.Asset, "error", rperrors.RedactError(err))
		return UploadOutcome{}, err
	}
	u.cfg.logger.Debug("github upload complete", "repo", sel.Repo.String(), "unique_identifier", out.Target.UniqueIdentifier())
	return out, nil
}

// LocalFile is a package or bundle picked from disk.
type LocalFile struct {
	Name string
	Open func() (io.ReadCloser, error)
}

// Source returns the source implied by the file extension.
func (f LocalFile) Source() domain.Source {
	return domain.LocalSourceFor(f.Name)
}

// LocalUploader uploads local packages and bundles.
type LocalUploader struct {
	uploader ports.PackageUploader
	cfg      uploadConfig
	guard    uploadGuard
}

// NewLocalUploader creates a local upload adapter. Use one per wizard.
func NewLocalUploader(uploader ports.PackageUploader, opts ...UploaderOption) *LocalUploader {
	return &LocalUploader{uploader: uploader, cfg: newUploadConfig(opts)}
}

// Upload uploads file. Bundles yield dependencies, packages yield a target.
func (u *LocalUploader) Upload(ctx context.Context, file LocalFile) (UploadOutcome, error) {
	const op = "upload.Local"

	if file.Open == nil {
		return UploadOutcome{}, rperrors.Validation(op, "no file selected")
	}
	if !u.guard.acquire() {
		return UploadOutcome{}, ErrUploadInProgress
	}
	defer u.guard.release()

	source := file.Source()
	rc, err := file.Open()
	if err != nil {
		return UploadOutcome{}, rperrors.IOWrap(err, op, "failed to open "+file.Name)
	}
	defer func() { _ = rc.Close() }()

	var resp ports.UploadResponse
	if source == domain.SourceBundle {
		resp, err = u.uploader.UploadBundle(ctx, file.Name, rc)
	} else {
		resp, err = u.uploader.UploadPackage(ctx, file.Name, rc)
	}

	out, err := normalizeUpload(op, source, resp, err, u.cfg.legacyRejectedSuccess)
	u.cfg.metrics.RecordUpload(string(source), err == nil)
	if err != nil {
		u.cfg.logger.Warn("local upload failed", "file", file.Name, "error", rperrors.RedactError(err))
		return UploadOutcome{}, err
	}
	return out, nil
}

// MarketplaceSource hands a known marketplace identifier to the installer.
type MarketplaceSource struct {
	catalog ports.MarketplaceCatalog
}

// NewMarketplaceSource creates a marketplace adapter. catalog may be nil when
// callers always pass the manifest.
func NewMarketplaceSource(catalog ports.MarketplaceCatalog) *MarketplaceSource {
	return &MarketplaceSource{catalog: catalog}
}

// Resolve builds the install target. A missing manifest is looked up in the
// catalog when one is configured.
func (m *MarketplaceSource) Resolve(ctx context.Context, uniqueIdentifier string, manifest *domain.PluginManifest) (UploadOutcome, error) {
	const op = "upload.Marketplace"

	if manifest == nil && m.catalog != nil {
		found, err := m.catalog.LookupMarketplace(ctx, uniqueIdentifier)
		if err != nil {
			return UploadOutcome{}, rperrors.Wrap(err, rperrors.KindNotFound, op, "marketplace plugin not found")
		}
		manifest = found
	}

	target, err := domain.NewInstallTarget(domain.SourceMarketplace, uniqueIdentifier, manifest)
	if err != nil {
		return UploadOutcome{}, rperrors.Wrap(err, rperrors.KindValidation, op, err.Error())
	}
	return UploadOutcome{Target: target}, nil
}
