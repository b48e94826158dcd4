package domain

import (
	"fmt"
	"strings"
)

// InstallTarget identifies what is being installed. It is immutable once built.
type InstallTarget struct {
	source           Source
	uniqueIdentifier string
	manifest         *PluginManifest
}

// NewInstallTarget creates an install target. The manifest may be nil for
// marketplace selections whose metadata is not loaded yet.
func NewInstallTarget(source Source, uniqueIdentifier string, manifest *PluginManifest) (InstallTarget, error) {
	if !source.IsValid() {
		return InstallTarget{}, fmt.Errorf("%w: %q", ErrUnknownSource, source)
	}
	if strings.TrimSpace(uniqueIdentifier) == "" {
		return InstallTarget{}, ErrEmptyUniqueIdentifier
	}
	var m *PluginManifest
	if manifest != nil {
		cp := *manifest
		cp.Tags = append([]string(nil), manifest.Tags...)
		m = &cp
	}
	return InstallTarget{source: source, uniqueIdentifier: uniqueIdentifier, manifest: m}, nil
}

// Source returns the installation source.
func (t InstallTarget) Source() Source { return t.source }

// UniqueIdentifier returns the package identifier.
func (t InstallTarget) UniqueIdentifier() string { return t.uniqueIdentifier }

// Manifest returns a copy of the manifest, or nil.
func (t InstallTarget) Manifest() *PluginManifest {
	if t.manifest == nil {
		return nil
	}
	cp := *t.manifest
	cp.Tags = append([]string(nil), t.manifest.Tags...)
	return &cp
}

// PluginID returns the logical plugin id. Without a manifest it is derived
// from the unique identifier.
func (t InstallTarget) PluginID() string {
	if t.manifest != nil {
		return t.manifest.PluginID()
	}
	return PluginIDFromUniqueIdentifier(t.uniqueIdentifier)
}

// IsZero reports whether t was never built.
func (t InstallTarget) IsZero() bool {
	return t.uniqueIdentifier == ""
}

// PluginIDFromUniqueIdentifier extracts author/name from an identifier of the
// form author/name:version@checksum.
func PluginIDFromUniqueIdentifier(uid string) string {
	id, _, _ := strings.Cut(uid, ":")
	id, _, _ = strings.Cut(id, "@")
	return id
}

// UniqueIdentifier builds the identifier of a package from its manifest and
// content checksum.
func UniqueIdentifier(m *PluginManifest, checksum string) string {
	return fmt.Sprintf("%s:%s@%s", m.PluginID(), m.Version, checksum)
}

// InstalledPluginInfo describes the installed copy of a logical plugin.
type InstalledPluginInfo struct {
	InstalledID      string `json:"installed_id"`
	InstalledVersion string `json:"installed_version"`
	UniqueIdentifier string `json:"unique_identifier"`
}

// TaskHandle refers to a server-side install task for one target.
type TaskHandle struct {
	TaskID                 string
	TargetUniqueIdentifier string
}

// InstallResult is the backend response to an install or update request.
type InstallResult struct {
	AllInstalled bool   `json:"all_installed"`
	TaskID       string `json:"task_id,omitempty"`
}
