// Package sandbox provides an in-memory plugin host. It serves releases,
// marketplace entries, uploads, install tasks and installed plugins from a
// catalog file so the installer can run without a real backend.
package sandbox

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	rperrors "github.com/relicta-tech/installkit/internal/errors"
	"github.com/relicta-tech/installkit/internal/fileutil"
	"github.com/relicta-tech/installkit/internal/installation/domain"
)

// Catalog is the content served by a Daemon.
type Catalog struct {
	Repositories []Repository       `json:"repositories" yaml:"repositories" toml:"repositories"`
	Marketplace  []MarketplaceEntry `json:"marketplace,omitempty" yaml:"marketplace,omitempty" toml:"marketplace,omitempty"`
	// Installed lists unique identifiers that start out installed.
	Installed []string `json:"installed,omitempty" yaml:"installed,omitempty" toml:"installed,omitempty"`
}

// Repository is a GitHub repository with its releases, newest first.
type Repository struct {
	Repo     string    `json:"repo" yaml:"repo" toml:"repo"`
	Releases []Release `json:"releases" yaml:"releases" toml:"releases"`
}

// Release is a tagged release.
type Release struct {
	Tag    string  `json:"tag" yaml:"tag" toml:"tag"`
	Assets []Asset `json:"assets" yaml:"assets" toml:"assets"`
}

// Asset is a release file and the package it contains.
type Asset struct {
	Name     string                `json:"name" yaml:"name" toml:"name"`
	Manifest domain.PluginManifest `json:"manifest" yaml:"manifest" toml:"manifest"`
	// Checksum overrides the derived package checksum.
	Checksum string `json:"checksum,omitempty" yaml:"checksum,omitempty" toml:"checksum,omitempty"`
	// Reject makes uploads of this asset fail with the message.
	Reject string `json:"reject,omitempty" yaml:"reject,omitempty" toml:"reject,omitempty"`
	// Fail makes install tasks for this asset fail with the message.
	Fail string `json:"fail,omitempty" yaml:"fail,omitempty" toml:"fail,omitempty"`
}

// MarketplaceEntry is a package published on the marketplace.
type MarketplaceEntry struct {
	UniqueIdentifier string                `json:"unique_identifier" yaml:"unique_identifier" toml:"unique_identifier"`
	Manifest         domain.PluginManifest `json:"manifest" yaml:"manifest" toml:"manifest"`
	Fail             string                `json:"fail,omitempty" yaml:"fail,omitempty" toml:"fail,omitempty"`
}

// maxCatalogBytes bounds catalog files read from disk.
const maxCatalogBytes = 8 << 20

// LoadCatalog reads a catalog file. The format follows the file extension.
func LoadCatalog(path string) (*Catalog, error) {
	const op = "sandbox.LoadCatalog"

	data, err := fileutil.ReadFileLimited(path, maxCatalogBytes)
	if err != nil {
		if rperrors.IsKind(err, rperrors.KindNotFound) {
			return nil, rperrors.NotFound(op, fmt.Sprintf("catalog not found: %s", path))
		}
		return nil, err
	}
	return ParseCatalog(data, strings.TrimPrefix(filepath.Ext(path), "."))
}

// ParseCatalog decodes a catalog in the given format (yaml, yml, toml or json).
func ParseCatalog(data []byte, format string) (*Catalog, error) {
	const op = "sandbox.ParseCatalog"

	var c Catalog
	var err error
	switch strings.ToLower(format) {
	case "yaml", "yml":
		err = yaml.Unmarshal(data, &c)
	case "toml":
		err = toml.Unmarshal(data, &c)
	case "json":
		err = json.Unmarshal(data, &c)
	default:
		return nil, rperrors.Config(op, fmt.Sprintf("unsupported catalog format %q", format))
	}
	if err != nil {
		return nil, rperrors.ConfigWrap(err, op, "failed to parse catalog")
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks repository names, manifests and identifiers.
func (c *Catalog) Validate() error {
	const op = "sandbox.Catalog.Validate"

	repos := make(map[string]bool, len(c.Repositories))
	for _, r := range c.Repositories {
		if _, ok := domain.ParseRepoRef(r.Repo); !ok {
			return rperrors.Config(op, fmt.Sprintf("invalid repository %q, expected owner/repo", r.Repo))
		}
		if repos[r.Repo] {
			return rperrors.Config(op, fmt.Sprintf("duplicate repository %q", r.Repo))
		}
		repos[r.Repo] = true
		for _, rel := range r.Releases {
			if rel.Tag == "" {
				return rperrors.Config(op, fmt.Sprintf("release without tag in %s", r.Repo))
			}
			for _, a := range rel.Assets {
				if a.Name == "" {
					return rperrors.Config(op, fmt.Sprintf("asset without name in %s@%s", r.Repo, rel.Tag))
				}
				if err := validateManifest(&a.Manifest); err != nil {
					return rperrors.ConfigWrap(err, op, fmt.Sprintf("invalid manifest for %s@%s/%s", r.Repo, rel.Tag, a.Name))
				}
			}
		}
	}
	for _, e := range c.Marketplace {
		if e.UniqueIdentifier == "" {
			return rperrors.Config(op, "marketplace entry without unique_identifier")
		}
		if err := validateManifest(&e.Manifest); err != nil {
			return rperrors.ConfigWrap(err, op, fmt.Sprintf("invalid manifest for %s", e.UniqueIdentifier))
		}
	}
	for _, uid := range c.Installed {
		if !strings.Contains(uid, "/") || !strings.Contains(uid, ":") {
			return rperrors.Config(op, fmt.Sprintf("invalid installed identifier %q", uid))
		}
	}
	return nil
}

func validateManifest(m *domain.PluginManifest) error {
	switch {
	case m.Name == "":
		return fmt.Errorf("manifest name is required")
	case m.Author == "":
		return fmt.Errorf("manifest author is required")
	case m.Version == "":
		return fmt.Errorf("manifest version is required")
	}
	return nil
}

// repository returns the repository named owner/repo.
func (c *Catalog) repository(ownerRepo string) (*Repository, bool) {
	for i := range c.Repositories {
		if strings.EqualFold(c.Repositories[i].Repo, ownerRepo) {
			return &c.Repositories[i], true
		}
	}
	return nil, false
}

// asset returns the asset of repo at tag.
func (c *Catalog) asset(ownerRepo, tag, name string) (*Asset, bool) {
	r, ok := c.repository(ownerRepo)
	if !ok {
		return nil, false
	}
	for i := range r.Releases {
		if r.Releases[i].Tag != tag {
			continue
		}
		for j := range r.Releases[i].Assets {
			if r.Releases[i].Assets[j].Name == name {
				return &r.Releases[i].Assets[j], true
			}
		}
	}
	return nil, false
}

// marketplaceEntry returns the marketplace entry with the given identifier.
func (c *Catalog) marketplaceEntry(uid string) (*MarketplaceEntry, bool) {
	for i := range c.Marketplace {
		if c.Marketplace[i].UniqueIdentifier == uid {
			return &c.Marketplace[i], true
		}
	}
	return nil, false
}

// AssetUniqueIdentifier returns the identifier a release asset uploads as.
func AssetUniqueIdentifier(ownerRepo, tag string, a Asset) string {
	checksum := a.Checksum
	if checksum == "" {
		checksum = Checksum([]byte(ownerRepo + "@" + tag + "/" + a.Name))
	}
	return domain.UniqueIdentifier(&a.Manifest, checksum)
}

// DefaultCatalog returns a small catalog used when none is configured.
func DefaultCatalog() *Catalog {
	search := func(v string) domain.PluginManifest {
		return domain.PluginManifest{
			Name:               "search",
			Author:             "acme",
			Version:            v,
			Label:              "Acme Search",
			Category:           "tool",
			Description:        "Web search for agents",
			MinimumHostVersion: "1.0.0",
		}
	}
	return &Catalog{
		Repositories: []Repository{
			{
				Repo: "acme/search-plugin",
				Releases: []Release{
					{Tag: "v1.2.0", Assets: []Asset{{Name: "search.difypkg", Manifest: search("1.2.0")}}},
					{Tag: "v1.1.0", Assets: []Asset{{Name: "search.difypkg", Manifest: search("1.1.0")}}},
					{Tag: "v1.0.0", Assets: []Asset{{Name: "search.difypkg", Manifest: search("1.0.0")}}},
				},
			},
		},
		Marketplace: []MarketplaceEntry{
			{
				UniqueIdentifier: "acme/translate:0.3.1@" + Checksum([]byte("acme/translate:0.3.1")),
				Manifest: domain.PluginManifest{
					Name:     "translate",
					Author:   "acme",
					Version:  "0.3.1",
					Label:    "Acme Translate",
					Category: "tool",
					Verified: true,
				},
			},
		},
	}
}
