package sandbox

import (
	"archive/zip"
	"bytes"
	"crypto/sha256"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/relicta-tech/installkit/internal/installation/domain"
)

// Archive member names.
const (
	ManifestFile = "manifest.yaml"
	BundleFile   = "bundle.yaml"
)

// maxArchiveSize bounds uploaded packages and bundles.
const maxArchiveSize = 64 << 20

// Package is a parsed plugin package.
type Package struct {
	Manifest         domain.PluginManifest
	Checksum         string
	UniqueIdentifier string
}

// Bundle is a parsed plugin bundle.
type Bundle struct {
	Dependencies []domain.Dependency
	// Packages are the packages shipped inside the bundle, by identifier.
	Packages map[string]Package
}

type bundleDocument struct {
	Dependencies []domain.Dependency `yaml:"dependencies"`
}

// Checksum returns the hex sha256 of data.
func Checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return fmt.Sprintf("%x", sum[:])
}

// ReadPackage parses a package archive.
func ReadPackage(r io.Reader) (Package, error) {
	data, err := readArchive(r)
	if err != nil {
		return Package{}, err
	}
	return parsePackage(data)
}

func parsePackage(data []byte) (Package, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return Package{}, fmt.Errorf("not a plugin package: %w", err)
	}
	raw, err := readMember(zr, ManifestFile)
	if err != nil {
		return Package{}, err
	}
	var m domain.PluginManifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return Package{}, fmt.Errorf("invalid %s: %w", ManifestFile, err)
	}
	if err := validateManifest(&m); err != nil {
		return Package{}, err
	}
	sum := Checksum(data)
	return Package{Manifest: m, Checksum: sum, UniqueIdentifier: domain.UniqueIdentifier(&m, sum)}, nil
}

// ReadBundle parses a bundle archive. Dependencies listed in bundle.yaml come
// first, followed by the packages embedded in the archive in name order.
func ReadBundle(r io.Reader) (Bundle, error) {
	data, err := readArchive(r)
	if err != nil {
		return Bundle{}, err
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return Bundle{}, fmt.Errorf("not a plugin bundle: %w", err)
	}

	b := Bundle{Packages: make(map[string]Package)}
	if raw, err := readMember(zr, BundleFile); err == nil {
		var doc bundleDocument
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			return Bundle{}, fmt.Errorf("invalid %s: %w", BundleFile, err)
		}
		for i, d := range doc.Dependencies {
			if err := d.Validate(); err != nil {
				return Bundle{}, fmt.Errorf("dependency %d: %w", i, err)
			}
		}
		b.Dependencies = doc.Dependencies
	}

	var embedded []*zip.File
	for _, f := range zr.File {
		if strings.EqualFold(path.Ext(f.Name), domain.PackageExtension) {
			embedded = append(embedded, f)
		}
	}
	sort.Slice(embedded, func(i, j int) bool { return embedded[i].Name < embedded[j].Name })
	for _, f := range embedded {
		raw, err := readFile(f)
		if err != nil {
			return Bundle{}, err
		}
		pkg, err := parsePackage(raw)
		if err != nil {
			return Bundle{}, fmt.Errorf("%s: %w", f.Name, err)
		}
		m := pkg.Manifest
		b.Packages[pkg.UniqueIdentifier] = pkg
		b.Dependencies = append(b.Dependencies, domain.Dependency{
			Type:    domain.DependencyPackage,
			Package: &domain.PackageDependency{UniqueIdentifier: pkg.UniqueIdentifier, Manifest: &m},
		})
	}

	if len(b.Dependencies) == 0 {
		return Bundle{}, fmt.Errorf("bundle has no dependencies")
	}
	return b, nil
}

// WritePackage writes a package archive containing m and any extra files.
func WritePackage(w io.Writer, m domain.PluginManifest, extra map[string][]byte) error {
	raw, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	files := map[string][]byte{ManifestFile: raw}
	for name, data := range extra {
		files[name] = data
	}
	return writeZip(w, files)
}

// WriteBundle writes a bundle archive. packages maps archive member names to
// package archives built with WritePackage.
func WriteBundle(w io.Writer, deps []domain.Dependency, packages map[string][]byte) error {
	files := make(map[string][]byte, len(packages)+1)
	if len(deps) > 0 {
		raw, err := yaml.Marshal(bundleDocument{Dependencies: deps})
		if err != nil {
			return fmt.Errorf("failed to encode bundle: %w", err)
		}
		files[BundleFile] = raw
	}
	for name, data := range packages {
		files[name] = data
	}
	return writeZip(w, files)
}

func writeZip(w io.Writer, files map[string][]byte) error {
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	zw := zip.NewWriter(w)
	for _, name := range names {
		fw, err := zw.Create(name)
		if err != nil {
			return fmt.Errorf("failed to add %s: %w", name, err)
		}
		if _, err := fw.Write(files[name]); err != nil {
			return fmt.Errorf("failed to write %s: %w", name, err)
		}
	}
	return zw.Close()
}

func readArchive(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxArchiveSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read archive: %w", err)
	}
	if len(data) > maxArchiveSize {
		return nil, fmt.Errorf("archive exceeds %d bytes", maxArchiveSize)
	}
	return data, nil
}

func readMember(zr *zip.Reader, name string) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name == name {
			return readFile(f)
		}
	}
	return nil, fmt.Errorf("archive has no %s", name)
}

func readFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", f.Name, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(io.LimitReader(rc, maxArchiveSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", f.Name, err)
	}
	if len(data) > maxArchiveSize {
		return nil, fmt.Errorf("%s exceeds %d bytes", f.Name, maxArchiveSize)
	}
	return data, nil
}
