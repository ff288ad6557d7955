// Package errors carries the categorized error wrappers commands
// attach before exiting, so failures map cleanly to exit codes.
package errors

import (
	"context"
	"fmt"
)

// Category classifies a command failure.
type Category string

const (
	CategoryValidation      Category = "validation"
	CategoryExternalService Category = "external_service"
	CategoryInternal        Category = "internal"
)

// CategorizedError pairs a failure category with the underlying error.
type CategorizedError struct {
	Category Category
	Message  string
	Err      error
}

func (e *CategorizedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Category, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Category, e.Message)
}

func (e *CategorizedError) Unwrap() error { return e.Err }

// NewValidationError marks a user-input problem.
func NewValidationError(message string) *CategorizedError {
	return &CategorizedError{Category: CategoryValidation, Message: message}
}

// NewExternalServiceError marks a dependency outage.
func NewExternalServiceError(message string) *CategorizedError {
	return &CategorizedError{Category: CategoryExternalService, Message: message}
}

// WrapInternal wraps an unexpected error, noting cancellation when the
// context already ended.
func WrapInternal(ctx context.Context, err error, message string) *CategorizedError {
	if ctx != nil && ctx.Err() != nil {
		message = message + " (context cancelled)"
	}
	return &CategorizedError{Category: CategoryInternal, Message: message, Err: err}
}
