package app

import (
	"context"

	"github.com/relicta-tech/installkit/internal/installation/domain"
)

// MarketplaceWizard installs a plugin picked from the marketplace. It starts
// ready to install.
type MarketplaceWizard struct {
	*wizard
	target domain.InstallTarget
}

// NewMarketplaceWizard creates a wizard for uniqueIdentifier. A nil manifest
// is looked up in the services' catalog.
func NewMarketplaceWizard(ctx context.Context, services Services, uniqueIdentifier string, manifest *domain.PluginManifest) (*MarketplaceWizard, error) {
	out, err := NewMarketplaceSource(services.Catalog).Resolve(ctx, uniqueIdentifier, manifest)
	if err != nil {
		return nil, err
	}

	step := domain.ReadyToInstallStep{
		Target:  out.Target,
		Warning: services.hostWarning(out.Target.Manifest()),
	}
	w, err := newWizard(services, domain.FlowMarketplace, step)
	if err != nil {
		return nil, err
	}
	return &MarketplaceWizard{wizard: w, target: out.Target}, nil
}

// Target returns the marketplace target.
func (m *MarketplaceWizard) Target() domain.InstallTarget {
	return m.target
}

// Install installs the target, updating an installed copy when its
// identifier differs.
func (m *MarketplaceWizard) Install(ctx context.Context, opts ...AttemptOption) AttemptOutcome {
	st, ok := m.beginInstall()
	if !ok {
		return AttemptOutcome{Status: AttemptIgnored}
	}
	defer m.endInstall()
	installed, err := m.installedInfo(ctx, st.Target)
	if err != nil {
		return m.failInstall(st.Target.Manifest(), err)
	}
	return m.install(ctx, st.Target, installed, opts...)
}

// Retry returns to ReadyToInstall after a failed install.
func (m *MarketplaceWizard) Retry() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.step.(domain.InstallFailedStep); !ok {
		return false
	}
	return m.transitionLocked(domain.EventRetry, domain.ReadyToInstallStep{
		Target:  m.target,
		Warning: m.services.hostWarning(m.target.Manifest()),
	})
}
