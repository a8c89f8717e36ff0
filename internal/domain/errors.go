package domain

import (
	"errors"
	"fmt"
)

// Base error types (sentinel errors).
var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrUnavailable  = errors.New("service unavailable")
	ErrInternal     = errors.New("internal error")
)

// Specific errors.
var (
	ErrExtractNotFound = fmt.Errorf("extract: %w", ErrNotFound)
	ErrSourceNotFound  = fmt.Errorf("archive source: %w", ErrNotFound)
	ErrDuplicateSource = fmt.Errorf("archive source already registered: %w", ErrInvalidInput)
	ErrStalePlan       = fmt.Errorf("extraction plan does not match the open backend session: %w", ErrInvalidInput)
	ErrBackendClosed   = fmt.Errorf("remote backend: %w", ErrUnavailable)
)

// ValidationError represents a detailed validation error.
type ValidationError struct {
	Field      string      // Field that failed validation
	Value      interface{} // The invalid value
	Constraint string      // The constraint that was violated
	Message    string      // Human-readable message
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for %s: %s (value: %v, constraint: %s)",
		e.Field, e.Message, e.Value, e.Constraint)
}

// Unwrap returns the underlying error type.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// FormatError represents an unreadable archive header or index.
type FormatError struct {
	Path string // Archive path or URL
	Err  error  // Underlying error
}

// Error implements the error interface.
func (e *FormatError) Error() string {
	return fmt.Sprintf("format error in archive %s: %v", e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *FormatError) Unwrap() error {
	return e.Err
}

// NetworkError represents a remote fetch failure.
type NetworkError struct {
	URL string // Remote resource
	Op  string // Operation that failed (open, read_range, fetch)
	Err error  // Underlying error
}

// Error implements the error interface.
func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error during %s for %s: %v", e.Op, e.URL, e.Err)
}

// Unwrap returns the underlying error.
func (e *NetworkError) Unwrap() error {
	return e.Err
}

// StorageError represents a filesystem read/write/rename failure.
type StorageError struct {
	Operation string // Operation that failed (open, write, rename, delete)
	Path      string // Affected path
	Err       error  // Underlying error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error during %s for %s: %v", e.Operation, e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *StorageError) Unwrap() error {
	return e.Err
}
