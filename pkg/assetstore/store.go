// Package assetstore defines abstractions for the remote release/object
// store that public artifact URLs are published to.
//
// Implementations expose a minimal surface: find-or-create a release
// by tag, list its assets, and upload a named asset. Uploads are made
// idempotent by the caller checking ListAssets for the name first.
package assetstore

import (
	"context"
	"io"
	"path/filepath"
	"strings"
)

// Store abstracts the remote asset store.
//
// Implementations should be safe for concurrent use, though the
// pipeline only runs one synchronization cycle at a time.
type Store interface {
	// FindOrCreateRelease returns the release for tag, creating it
	// if it does not exist.
	FindOrCreateRelease(ctx context.Context, tag, name string) (*Release, error)

	// ListAssets returns the current asset name -> public URL map
	// for the release.
	ListAssets(ctx context.Context, rel *Release) (AssetMap, error)

	// Upload transfers one named asset and returns its public URL.
	// Uploading a name that already exists is backend-defined; the
	// caller is expected to consult ListAssets first.
	Upload(ctx context.Context, rel *Release, name, mime string, body io.Reader, size int64) (string, error)
}

// Release is a handle to one remote release (or key namespace).
type Release struct {
	// ID is the backend-assigned release identifier.
	ID int64

	// Tag is the release tag the handle was resolved from.
	Tag string

	// UploadURL is the endpoint assets are posted to, when the
	// backend distinguishes it from the API base.
	UploadURL string

	// Assets holds the asset map known at resolution time.
	Assets AssetMap
}

// AssetMap maps asset filenames to public download URLs. It is
// ephemeral: produced by one upload cycle, consumed by reconciliation,
// then discarded.
type AssetMap map[string]string

// MimeForName returns the upload content type for a recognized asset
// filename, or empty string for unrecognized extensions.
func MimeForName(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".mp3":
		return "audio/mpeg"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	default:
		return ""
	}
}
