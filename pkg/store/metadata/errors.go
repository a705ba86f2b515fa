package metadata

import (
	"errors"
	"fmt"
)

// StoreError represents a domain error from metadata store operations.
//
// These are business logic errors (record not found, duplicate path, etc.)
// as opposed to infrastructure errors (disk error, closed database).
// Infrastructure errors are returned wrapped with fmt.Errorf.
type StoreError struct {
	// Code is the error category
	Code ErrorCode

	// Message is a human-readable error description
	Message string

	// Path is the repository path related to the error (if applicable)
	Path string
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	if e.Path != "" {
		return e.Message + ": " + e.Path
	}
	return e.Message
}

// ErrorCode represents the category of a store error.
type ErrorCode int

const (
	// ErrNotFound indicates the requested record doesn't exist
	ErrNotFound ErrorCode = iota

	// ErrAlreadyExists indicates a record for the path is already registered
	ErrAlreadyExists

	// ErrInvalidArgument indicates invalid parameters were provided
	// Examples: empty repository, missing name, non-zero ID on insert
	ErrInvalidArgument

	// ErrIOError indicates the backing store failed
	ErrIOError

	// ErrClosed indicates the store has been closed
	ErrClosed
)

func (c ErrorCode) String() string {
	switch c {
	case ErrNotFound:
		return "not_found"
	case ErrAlreadyExists:
		return "already_exists"
	case ErrInvalidArgument:
		return "invalid_argument"
	case ErrIOError:
		return "io_error"
	case ErrClosed:
		return "closed"
	default:
		return fmt.Sprintf("code_%d", int(c))
	}
}

// NewNotFoundError creates a not-found error for a record id.
func NewNotFoundError(id int64) *StoreError {
	return &StoreError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("file record %d not found", id),
	}
}

// NewPathNotFoundError creates a not-found error for a repository path.
func NewPathNotFoundError(repository, path string) *StoreError {
	return &StoreError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("no file record registered in %s", repository),
		Path:    path,
	}
}

// NewAlreadyExistsError creates an already-exists error for a repository path.
func NewAlreadyExistsError(repository, path string) *StoreError {
	return &StoreError{
		Code:    ErrAlreadyExists,
		Message: fmt.Sprintf("file record already registered in %s", repository),
		Path:    path,
	}
}

// IsNotFoundError reports whether err is a StoreError with ErrNotFound.
func IsNotFoundError(err error) bool {
	return hasCode(err, ErrNotFound)
}

// IsAlreadyExistsError reports whether err is a StoreError with ErrAlreadyExists.
func IsAlreadyExistsError(err error) bool {
	return hasCode(err, ErrAlreadyExists)
}

func hasCode(err error, code ErrorCode) bool {
	var storeErr *StoreError
	if errors.As(err, &storeErr) {
		return storeErr.Code == code
	}
	return false
}
