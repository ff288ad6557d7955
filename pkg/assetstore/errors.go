package assetstore

import (
	"errors"
	"fmt"
)

// Sentinel errors for store operations.
var (
	// ErrMissingToken indicates no credential is available for the
	// remote store. Synchronization cycles stop early on this error;
	// local processing is unaffected.
	ErrMissingToken = errors.New("missing store credential")

	// ErrNotFound indicates the requested release or asset does not exist.
	ErrNotFound = errors.New("not found")

	// ErrThrottled indicates the request was rate limited by the store.
	ErrThrottled = errors.New("request throttled")

	// ErrUnavailable indicates the store service is unavailable.
	ErrUnavailable = errors.New("store unavailable")
)

// StoreError wraps backend-specific errors with context.
type StoreError struct {
	// Op is the operation that failed (e.g., "Upload", "ListAssets").
	Op string

	// Backend is the store backend (e.g., "github", "s3").
	Backend string

	// Name is the asset or release name, if applicable.
	Name string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("%s %s: %s: %v", e.Backend, e.Op, e.Name, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Backend, e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *StoreError) Unwrap() error {
	return e.Err
}

// IsMissingToken returns true if the error indicates an absent credential.
func IsMissingToken(err error) bool {
	return errors.Is(err, ErrMissingToken)
}

// IsNotFound returns true if the error indicates a missing release or asset.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsThrottled returns true if the error indicates the store rate limited us.
func IsThrottled(err error) bool {
	return errors.Is(err, ErrThrottled)
}

// IsUnavailable returns true if the error indicates the store is unavailable.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
