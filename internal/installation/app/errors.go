// Package app provides application services (use cases) for plugin installation.
package app

import (
	rperrors "github.com/relicta-tech/installkit/internal/errors"
)

// User-facing messages.
const (
	// MessageTargetNotFound is reported when a task has no entry for the target.
	MessageTargetNotFound = "target not found in task"
	// MessageUploadFailed is the fallback for uploads failing without a message.
	MessageUploadFailed = "upload failed"
	// MessageUninstallFailed is reported when replacing a local install fails.
	MessageUninstallFailed = "failed to uninstall the previous version"
	// MessageNoReleases is the advisory for a repository without releases.
	MessageNoReleases = "no releases found"
	// MessageUpToDate is the advisory when no newer release exists.
	MessageUpToDate = "already up to date"
)

// Sentinel errors of the application layer. They match with errors.Is on
// kind and message.
var (
	// ErrUploadInProgress is returned when an upload is requested while the
	// same adapter is still uploading. Wizards drop it silently.
	ErrUploadInProgress = rperrors.New(rperrors.KindState, "an upload is already in progress")

	// ErrInstallInProgress is returned when an install is requested while
	// another attempt of the same wizard is in flight.
	ErrInstallInProgress = rperrors.New(rperrors.KindState, "an installation is already in progress")

	// ErrStepMismatch is returned when an action is not available in the current step.
	ErrStepMismatch = rperrors.New(rperrors.KindState, "action not available in the current step")
)
