// Package version compares plugin and release version strings.
package version

import "errors"

// Domain errors for version operations.
var (
	// ErrNoVersions indicates Latest was called with an empty list.
	ErrNoVersions = errors.New("no versions to compare")
)
