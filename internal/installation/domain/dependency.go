package domain

import "fmt"

// DependencyType is the kind of a bundle member.
type DependencyType string

// Bundle member kinds.
const (
	DependencyGitHub      DependencyType = "github"
	DependencyMarketplace DependencyType = "marketplace"
	DependencyPackage     DependencyType = "package"
)

// GitHubDependency references a release asset.
type GitHubDependency struct {
	Repo    string `json:"repo" yaml:"repo" toml:"repo"`
	Release string `json:"release" yaml:"release" toml:"release"`
	Package string `json:"package" yaml:"package" toml:"package"`
	// UniqueIdentifier is filled in once the asset has been uploaded.
	UniqueIdentifier string `json:"github_plugin_unique_identifier,omitempty" yaml:"unique_identifier,omitempty" toml:"unique_identifier,omitempty"`
}

// MarketplaceDependency references a marketplace package.
type MarketplaceDependency struct {
	MarketplacePluginUniqueIdentifier string `json:"marketplace_plugin_unique_identifier" yaml:"marketplace_plugin_unique_identifier" toml:"marketplace_plugin_unique_identifier"`
	Version                           string `json:"version,omitempty" yaml:"version,omitempty" toml:"version,omitempty"`
}

// PackageDependency is a package shipped inside the bundle.
type PackageDependency struct {
	UniqueIdentifier string          `json:"unique_identifier" yaml:"unique_identifier" toml:"unique_identifier"`
	Manifest         *PluginManifest `json:"manifest" yaml:"manifest" toml:"manifest"`
}

// Dependency is one member of a bundle. Exactly one of the typed values is
// set, matching Type.
type Dependency struct {
	Type        DependencyType         `json:"type" yaml:"type" toml:"type"`
	GitHub      *GitHubDependency      `json:"github,omitempty" yaml:"github,omitempty" toml:"github,omitempty"`
	Marketplace *MarketplaceDependency `json:"marketplace,omitempty" yaml:"marketplace,omitempty" toml:"marketplace,omitempty"`
	Package     *PackageDependency     `json:"package,omitempty" yaml:"package,omitempty" toml:"package,omitempty"`
}

// Validate checks that the typed value matching Type is present.
func (d Dependency) Validate() error {
	switch d.Type {
	case DependencyGitHub:
		if d.GitHub == nil || d.GitHub.Repo == "" || d.GitHub.Release == "" || d.GitHub.Package == "" {
			return fmt.Errorf("github dependency requires repo, release and package")
		}
	case DependencyMarketplace:
		if d.Marketplace == nil || d.Marketplace.MarketplacePluginUniqueIdentifier == "" {
			return fmt.Errorf("marketplace dependency requires a unique identifier")
		}
	case DependencyPackage:
		if d.Package == nil || d.Package.UniqueIdentifier == "" {
			return fmt.Errorf("package dependency requires a unique identifier")
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownDependencyType, d.Type)
	}
	return nil
}

// UniqueIdentifier returns the identifier the dependency installs, or "" when
// it is not known yet.
func (d Dependency) UniqueIdentifier() string {
	switch d.Type {
	case DependencyGitHub:
		if d.GitHub != nil {
			return d.GitHub.UniqueIdentifier
		}
	case DependencyMarketplace:
		if d.Marketplace != nil {
			return d.Marketplace.MarketplacePluginUniqueIdentifier
		}
	case DependencyPackage:
		if d.Package != nil {
			return d.Package.UniqueIdentifier
		}
	}
	return ""
}

// PluginID returns the logical plugin id of the dependency when known.
func (d Dependency) PluginID() string {
	if d.Type == DependencyPackage && d.Package != nil && d.Package.Manifest != nil {
		return d.Package.Manifest.PluginID()
	}
	return PluginIDFromUniqueIdentifier(d.UniqueIdentifier())
}

// Name returns a short label for listings.
func (d Dependency) Name() string {
	switch d.Type {
	case DependencyGitHub:
		if d.GitHub != nil {
			return fmt.Sprintf("%s@%s/%s", d.GitHub.Repo, d.GitHub.Release, d.GitHub.Package)
		}
	case DependencyPackage:
		if d.Package != nil && d.Package.Manifest != nil {
			return d.Package.Manifest.DisplayName()
		}
	}
	return d.PluginID()
}

// BundleItemResult is the outcome of installing one bundle member.
type BundleItemResult struct {
	Dependency       Dependency `json:"dependency"`
	UniqueIdentifier string     `json:"unique_identifier"`
	Status           TaskStatus `json:"status"`
	Message          string     `json:"message,omitempty"`
	// Skipped is set when the same identifier was already installed.
	Skipped bool `json:"skipped,omitempty"`
}
