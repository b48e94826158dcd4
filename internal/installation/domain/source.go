package domain

import (
	"path/filepath"
	"strings"
)

// Source is the origin of a plugin installation.
type Source string

// Installation sources.
const (
	SourceGitHub      Source = "github"
	SourcePackage     Source = "package"
	SourceBundle      Source = "bundle"
	SourceMarketplace Source = "marketplace"
)

// BundleExtension marks a local file as a bundle of packages.
const BundleExtension = ".difybndl"

// PackageExtension is the conventional extension of a single plugin package.
const PackageExtension = ".difypkg"

// IsValid returns true if s is a known source.
func (s Source) IsValid() bool {
	switch s {
	case SourceGitHub, SourcePackage, SourceBundle, SourceMarketplace:
		return true
	}
	return false
}

// IsLocal returns true for sources uploaded from the local machine.
func (s Source) IsLocal() bool {
	return s == SourcePackage || s == SourceBundle
}

// String returns the string representation.
func (s Source) String() string {
	return string(s)
}

// IsBundleFile reports whether name designates a bundle. Every other
// extension is treated as a single package.
func IsBundleFile(name string) bool {
	return strings.EqualFold(filepath.Ext(name), BundleExtension)
}

// LocalSourceFor returns the local source matching the file name.
func LocalSourceFor(name string) Source {
	if IsBundleFile(name) {
		return SourceBundle
	}
	return SourcePackage
}
