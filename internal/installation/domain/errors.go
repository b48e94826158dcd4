// Package domain provides the core domain model for plugin installation.
package domain

import "errors"

// Domain errors for installation flows.
var (
	// ErrInvalidGitHubURL indicates a repository URL that is not https://github.com/<owner>/<repo>.
	ErrInvalidGitHubURL = errors.New("invalid GitHub URL")

	// ErrNoReleasesFound indicates the repository has no releases to install from.
	ErrNoReleasesFound = errors.New("no releases found")

	// ErrFetchReleases indicates the release list could not be fetched.
	ErrFetchReleases = errors.New("failed to fetch repository releases")

	// ErrEmptyUniqueIdentifier indicates an install target without an identifier.
	ErrEmptyUniqueIdentifier = errors.New("unique identifier cannot be empty")

	// ErrUnknownSource indicates an unsupported installation source.
	ErrUnknownSource = errors.New("unknown installation source")

	// ErrUnknownDependencyType indicates a bundle entry of an unsupported type.
	ErrUnknownDependencyType = errors.New("unknown dependency type")
)
