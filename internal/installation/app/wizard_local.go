package app

import (
	"context"

	rperrors "github.com/relicta-tech/installkit/internal/errors"
	"github.com/relicta-tech/installkit/internal/installation/domain"
)

// LocalWizard installs a package or bundle file from disk.
type LocalWizard struct {
	*wizard
	file     LocalFile
	uploader *LocalUploader
	bundle   *BundleInstaller

	target       domain.InstallTarget
	dependencies []domain.Dependency
}

// NewLocalWizard creates a wizard for file. Call Upload to start.
func NewLocalWizard(services Services, file LocalFile) (*LocalWizard, error) {
	w, err := newWizard(services, domain.FlowLocal, domain.UploadingStep{FileName: file.Name, Source: file.Source()})
	if err != nil {
		return nil, err
	}
	return &LocalWizard{
		wizard:   w,
		file:     file,
		uploader: NewLocalUploader(services.Uploader, services.uploaderOptions()...),
		bundle:   services.newBundleInstaller(),
	}, nil
}

// IsBundle reports whether the file is a bundle.
func (l *LocalWizard) IsBundle() bool {
	return l.file.Source() == domain.SourceBundle
}

// Upload uploads the file and moves to ReadyToInstall or UploadFailed.
func (l *LocalWizard) Upload(ctx context.Context) error {
	if _, ok := l.Step().(domain.UploadingStep); !ok {
		return ErrStepMismatch
	}

	out, err := l.uploader.Upload(ctx, l.file)
	if rperrors.IsKind(err, rperrors.KindState) {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if err != nil {
		msg, _ := rperrors.UserMessage(err)
		l.transitionLocked(domain.EventUploadFailed, domain.UploadFailedStep{Message: messageOr(msg)})
		return err
	}

	l.target, l.dependencies = out.Target, out.Dependencies
	l.transitionLocked(domain.EventUploaded, l.readyStepLocked())
	return nil
}

func (l *LocalWizard) readyStepLocked() domain.ReadyToInstallStep {
	if len(l.dependencies) > 0 {
		return domain.ReadyToInstallStep{Dependencies: l.dependencies}
	}
	return domain.ReadyToInstallStep{
		Target:  l.target,
		Warning: l.services.hostWarning(l.target.Manifest()),
	}
}

// Dependencies lists the members of an uploaded bundle.
func (l *LocalWizard) Dependencies() []domain.Dependency {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]domain.Dependency(nil), l.dependencies...)
}

// IsInstalling reports whether an install attempt is in flight.
func (l *LocalWizard) IsInstalling() bool {
	return l.wizard.IsInstalling() || l.bundle.IsInstalling()
}

// Install installs the uploaded package, replacing an installed copy by
// uninstalling it first, or installs every member of the bundle.
func (l *LocalWizard) Install(ctx context.Context, opts ...AttemptOption) AttemptOutcome {
	st, ok := l.beginInstall()
	if !ok {
		return AttemptOutcome{Status: AttemptIgnored}
	}
	defer l.endInstall()

	if st.IsBundle() {
		out := l.installBundle(ctx, st, opts...)
		return AttemptOutcome{Status: out.Status, NeedsRefresh: out.NeedsRefresh, Message: out.Message}
	}

	installed, err := l.installedInfo(ctx, st.Target)
	if err != nil {
		return l.failInstall(st.Target.Manifest(), err)
	}
	return l.install(ctx, st.Target, installed, opts...)
}

// InstallBundle installs the bundle members and records per-member results
// on the outcome step.
func (l *LocalWizard) InstallBundle(ctx context.Context, opts ...AttemptOption) BundleOutcome {
	st, ok := l.beginInstall()
	if !ok {
		return BundleOutcome{Status: AttemptIgnored}
	}
	defer l.endInstall()
	if !st.IsBundle() {
		return BundleOutcome{Status: AttemptIgnored}
	}
	return l.installBundle(ctx, st, opts...)
}

func (l *LocalWizard) installBundle(ctx context.Context, st domain.ReadyToInstallStep, opts ...AttemptOption) BundleOutcome {
	installed := map[string]*domain.InstalledPluginInfo{}
	if l.services.Resolver != nil {
		ids := make([]string, 0, len(st.Dependencies))
		for _, d := range st.Dependencies {
			ids = append(ids, d.PluginID())
		}
		infos, err := l.services.Resolver.Resolve(ctx, ids)
		if err != nil {
			out := l.failInstall(nil, rperrors.NetworkWrap(err, "wizard.InstallBundle", "failed to check installed plugins"))
			return BundleOutcome{Status: out.Status, Message: out.Message}
		}
		installed = infos
	}
	if !l.stillReady() {
		return BundleOutcome{Status: AttemptIgnored}
	}

	obs := &stepObserver{w: l.wizard}
	out := l.bundle.Install(ctx, st.Dependencies, installed, append(opts, WithObserver(obs))...)

	l.mu.Lock()
	defer l.mu.Unlock()
	switch out.Status {
	case AttemptInstalled:
		l.transitionLocked(domain.EventInstalled, domain.InstalledStep{NeedsRefresh: out.NeedsRefresh, Items: out.Items})
	case AttemptFailed:
		l.transitionLocked(domain.EventInstallFailed, domain.InstallFailedStep{Message: out.Message, Items: out.Items})
	}
	return out
}

// Retry returns to ReadyToInstall after a failed install.
func (l *LocalWizard) Retry() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.step.(domain.InstallFailedStep); !ok {
		return false
	}
	return l.transitionLocked(domain.EventRetry, l.readyStepLocked())
}

// Cancel stops running pollers and closes the wizard.
func (l *LocalWizard) Cancel() {
	l.wizard.Cancel()
	l.bundle.Cancel()
}
