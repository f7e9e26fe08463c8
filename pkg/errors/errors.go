// Package errors defines the error taxonomy shared by the memory
// engines. Transport layers map these kinds onto status codes; the
// engines themselves never retry.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Error types for the memory engines
type (
	// ValidationError represents bad caller input. It is returned
	// immediately and must never be retried.
	ValidationError struct {
		Field   string
		Message string
	}

	// EmbeddingError represents a failed call to the embedding
	// provider. Transient; the caller may retry with backoff.
	EmbeddingError struct {
		Provider string
		Err      error
	}

	// StoreError represents an unreachable or errored vector store.
	// Transient; the caller may retry with backoff.
	StoreError struct {
		Op  string
		Err error
	}

	// NotFoundError represents an unknown memory or category id.
	NotFoundError struct {
		Kind string
		ID   string
	}

	// ConflictError represents a blocked mutation: a duplicate
	// category name, or a delete while the category is still
	// referenced.
	ConflictError struct {
		Resource string
		Message  string
	}

	// CircularDependencyError represents a hierarchy mutation that
	// would create a cycle. It is raised before any write happens.
	CircularDependencyError struct {
		Category string
		Parent   string
	}

	// PartialFailure represents a multi-step cascade that partially
	// completed. The primary operation is committed; the failure is
	// reported as a warning, never silently dropped.
	PartialFailure struct {
		Op   string
		Errs []error
	}
)

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("embedding provider %s failed: %v", e.Provider, e.Err)
}

func (e *EmbeddingError) Unwrap() error { return e.Err }

func (e *StoreError) Error() string {
	return fmt.Sprintf("vector store unavailable during %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict on %s: %s", e.Resource, e.Message)
}

func (e *CircularDependencyError) Error() string {
	return fmt.Sprintf(
		"setting parent of %q to %q would create a cycle",
		e.Category, e.Parent,
	)
}

func (e *PartialFailure) Error() string {
	msgs := make([]string, 0, len(e.Errs))

	for _, err := range e.Errs {
		msgs = append(msgs, err.Error())
	}

	return fmt.Sprintf(
		"%s partially completed: %s", e.Op, strings.Join(msgs, "; "),
	)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

// IsConflict reports whether err is a ConflictError.
func IsConflict(err error) bool {
	var target *ConflictError
	return errors.As(err, &target)
}

// IsCircular reports whether err is a CircularDependencyError.
func IsCircular(err error) bool {
	var target *CircularDependencyError
	return errors.As(err, &target)
}

// IsTransient reports whether err is an infrastructure error the
// caller may retry with backoff.
func IsTransient(err error) bool {
	var embed *EmbeddingError
	var store *StoreError
	return errors.As(err, &embed) || errors.As(err, &store)
}
