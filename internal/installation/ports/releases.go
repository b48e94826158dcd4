// Package ports defines the interfaces (ports) for the installation bounded context.
package ports

import (
	"context"

	"github.com/relicta-tech/installkit/internal/installation/domain"
)

// ReleaseFetcher lists the releases of a GitHub repository.
type ReleaseFetcher interface {
	// FetchReleases returns the releases of owner/repo, newest first when the
	// backend orders them. Transport failures are returned as errors.
	FetchReleases(ctx context.Context, owner, repo string) ([]domain.GitHubRelease, error)
}

// MarketplaceCatalog resolves marketplace identifiers to manifests.
type MarketplaceCatalog interface {
	// LookupMarketplace returns the manifest of a marketplace package.
	LookupMarketplace(ctx context.Context, uniqueIdentifier string) (*domain.PluginManifest, error)
}
