package domain

import (
	"github.com/relicta-tech/installkit/internal/domain/version"
)

// PluginManifest describes a plugin package. It is sourced from the backend
// and never mutated by the installer.
type PluginManifest struct {
	Name               string   `json:"name" yaml:"name" toml:"name"`
	Label              string   `json:"label,omitempty" yaml:"label,omitempty" toml:"label,omitempty"`
	Author             string   `json:"author" yaml:"author" toml:"author"`
	Version            string   `json:"version" yaml:"version" toml:"version"`
	Category           string   `json:"category,omitempty" yaml:"category,omitempty" toml:"category,omitempty"`
	Icon               string   `json:"icon,omitempty" yaml:"icon,omitempty" toml:"icon,omitempty"`
	IconDark           string   `json:"icon_dark,omitempty" yaml:"icon_dark,omitempty" toml:"icon_dark,omitempty"`
	MinimumHostVersion string   `json:"minimum_host_version,omitempty" yaml:"minimum_host_version,omitempty" toml:"minimum_host_version,omitempty"`
	Tags               []string `json:"tags,omitempty" yaml:"tags,omitempty" toml:"tags,omitempty"`
	Description        string   `json:"description,omitempty" yaml:"description,omitempty" toml:"description,omitempty"`
	Verified           bool     `json:"verified,omitempty" yaml:"verified,omitempty" toml:"verified,omitempty"`
}

// PluginID returns the logical plugin id, author/name.
func (m *PluginManifest) PluginID() string {
	if m == nil {
		return ""
	}
	if m.Author == "" {
		return m.Name
	}
	return m.Author + "/" + m.Name
}

// DisplayName returns the label, falling back to the name.
func (m *PluginManifest) DisplayName() string {
	if m == nil {
		return ""
	}
	if m.Label != "" {
		return m.Label
	}
	return m.Name
}

// IsHostCompatible reports whether a host running hostVersion satisfies the
// manifest's declared minimum. A missing minimum or host version is compatible.
func (m *PluginManifest) IsHostCompatible(hostVersion string) bool {
	if m == nil || m.MinimumHostVersion == "" || hostVersion == "" {
		return true
	}
	return version.Compare(hostVersion, m.MinimumHostVersion) >= 0
}
