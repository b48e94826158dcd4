// Package ports defines the interfaces (ports) for the installation bounded context.
package ports

import (
	"context"
	"fmt"
	"io"

	"github.com/relicta-tech/installkit/internal/installation/domain"
)

// UploadResponse is the body returned by the upload collaborator.
type UploadResponse struct {
	UniqueIdentifier string                 `json:"unique_identifier,omitempty"`
	Manifest         *domain.PluginManifest `json:"manifest,omitempty"`
	Dependencies     []domain.Dependency    `json:"dependencies,omitempty"`
	// Message is set by the backend when it refused the upload.
	Message string `json:"message,omitempty"`
}

// RejectedUploadError is returned when the transport reported a failure but
// still delivered a parsed body. Some backends answer successful uploads this
// way; the upload adapter decides what the body means.
type RejectedUploadError struct {
	Response UploadResponse
	Cause    error
}

// Error implements the error interface.
func (e *RejectedUploadError) Error() string {
	switch {
	case e.Response.Message != "":
		return fmt.Sprintf("upload rejected: %s", e.Response.Message)
	case e.Cause != nil:
		return fmt.Sprintf("upload rejected: %v", e.Cause)
	default:
		return "upload rejected"
	}
}

// Unwrap returns the transport error.
func (e *RejectedUploadError) Unwrap() error {
	return e.Cause
}

// PackageUploader turns a source selection into an install-ready package.
type PackageUploader interface {
	// UploadFromGitHub uploads a release asset of repo ("owner/repo").
	UploadFromGitHub(ctx context.Context, repo, tag, asset string) (UploadResponse, error)

	// UploadPackage uploads a local package file.
	UploadPackage(ctx context.Context, name string, r io.Reader) (UploadResponse, error)

	// UploadBundle uploads a local bundle file; the response lists its dependencies.
	UploadBundle(ctx context.Context, name string, r io.Reader) (UploadResponse, error)
}
