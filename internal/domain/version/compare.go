package version

import (
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// key is the comparable form of a version string.
type key struct {
	segments []uint64
	// sv is set when the input is a valid semantic version; only then is a
	// pre-release taken into account.
	sv *semver.Version
}

func parseKey(s string) key {
	trimmed := strings.TrimSpace(s)
	if sv, err := semver.NewVersion(trimmed); err == nil {
		return key{
			segments: []uint64{sv.Major(), sv.Minor(), sv.Patch()},
			sv:       sv,
		}
	}

	core := strings.TrimPrefix(strings.TrimPrefix(trimmed, "v"), "V")
	if i := strings.IndexAny(core, "-+"); i >= 0 {
		core = core[:i]
	}

	parts := strings.Split(core, ".")
	segments := make([]uint64, 0, len(parts))
	for _, part := range parts {
		n, err := strconv.ParseUint(part, 10, 64)
		if err != nil {
			n = 0
		}
		segments = append(segments, n)
	}
	return key{segments: segments}
}

func (k key) segment(i int) uint64 {
	if i < len(k.segments) {
		return k.segments[i]
	}
	return 0
}

func (k key) prerelease() string {
	if k.sv == nil {
		return ""
	}
	return k.sv.Prerelease()
}

func compareKeys(a, b key) int {
	n := max(len(a.segments), len(b.segments))
	for i := range n {
		x, y := a.segment(i), b.segment(i)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
	}

	ap, bp := a.prerelease(), b.prerelease()
	switch {
	case ap == "" && bp == "":
		return 0
	case ap == "":
		return 1
	case bp == "":
		return -1
	}
	return a.sv.Compare(b.sv)
}

// Compare returns -1, 0 or 1 depending on whether a is lower than, equal to,
// or greater than b.
//
// A leading "v" is ignored and dotted numeric segments are compared left to
// right, with missing segments treated as zero ("1.2" equals "1.2.0"). Segments
// that are not numbers count as zero. When both inputs are semantic versions
// with equal numbers, a pre-release sorts below the release.
func Compare(a, b string) int {
	return compareKeys(parseKey(a), parseKey(b))
}

// IsNewer reports whether candidate is strictly greater than current.
func IsNewer(candidate, current string) bool {
	return Compare(candidate, current) > 0
}

// Latest returns the greatest version in versions, spelled as given.
// When several entries compare equal the first one wins.
func Latest(versions []string) (string, error) {
	if len(versions) == 0 {
		return "", ErrNoVersions
	}

	best := versions[0]
	bestKey := parseKey(best)
	for _, v := range versions[1:] {
		k := parseKey(v)
		if compareKeys(k, bestKey) > 0 {
			best, bestKey = v, k
		}
	}
	return best, nil
}
