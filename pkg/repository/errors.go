package repository

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"github.com/marmos91/dittorepo/pkg/store/metadata"
)

// Kind separates failures the caller caused from failures the server caused.
type Kind int

const (
	// KindValidation is the caller's fault: bad path, missing target, bad mode.
	KindValidation Kind = iota

	// KindInternal is the server's fault: filesystem or store failure,
	// servant registration failure, panics. Carries a stack diagnostic.
	KindInternal

	// KindNotSupported marks operations that exist but are not implemented.
	KindNotSupported
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindInternal:
		return "internal"
	case KindNotSupported:
		return "not_supported"
	default:
		return fmt.Sprintf("kind_%d", int(k))
	}
}

// Code is the specific failure.
type Code int

const (
	// ErrInvalidArgument indicates a malformed request: empty path, bad mode,
	// operating on the root where it is not allowed.
	ErrInvalidArgument Code = iota

	// ErrPathEscape indicates a path outside the repository root
	ErrPathEscape

	// ErrNotFound indicates a path or record that must exist does not
	ErrNotFound

	// ErrNotDirectory indicates a directory operation on a file
	ErrNotDirectory

	// ErrIsDirectory indicates a file operation on a directory
	ErrIsDirectory

	// ErrNotEmpty indicates deleting a directory that still has entries
	ErrNotEmpty

	// ErrCanceled indicates the caller's context ended before completion
	ErrCanceled

	// ErrNotSupported indicates an operation without an implementation
	ErrNotSupported

	// ErrInternal indicates a server-side failure
	ErrInternal
)

func (c Code) String() string {
	switch c {
	case ErrInvalidArgument:
		return "invalid_argument"
	case ErrPathEscape:
		return "path_escape"
	case ErrNotFound:
		return "not_found"
	case ErrNotDirectory:
		return "not_directory"
	case ErrIsDirectory:
		return "is_directory"
	case ErrNotEmpty:
		return "not_empty"
	case ErrCanceled:
		return "canceled"
	case ErrNotSupported:
		return "not_supported"
	case ErrInternal:
		return "internal"
	default:
		return fmt.Sprintf("code_%d", int(c))
	}
}

// Error is returned by every repository operation.
type Error struct {
	Code Code

	// Op is the repository operation that failed (e.g., "register")
	Op string

	Message string

	// Path is the client-supplied path involved, if any
	Path string

	// Diagnostic is the stack trace captured for internal errors
	Diagnostic string

	// Err is the underlying cause, if any
	Err error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Path != "" {
		msg += ": " + e.Path
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil && e.Code == ErrInternal {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Kind classifies the error.
func (e *Error) Kind() Kind {
	switch e.Code {
	case ErrInternal:
		return KindInternal
	case ErrNotSupported:
		return KindNotSupported
	default:
		return KindValidation
	}
}

func newValidationError(code Code, path, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Path: path}
}

func newInternalError(err error, path, format string, args ...any) *Error {
	return &Error{
		Code:       ErrInternal,
		Message:    fmt.Sprintf(format, args...),
		Path:       path,
		Err:        err,
		Diagnostic: string(debug.Stack()),
	}
}

// classify turns any error returned by an operation body into an *Error.
func classify(op string, err error) *Error {
	var repoErr *Error
	switch {
	case errors.As(err, &repoErr):
		// keep the innermost classification
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		repoErr = &Error{Code: ErrCanceled, Message: "request canceled", Err: err}
	case metadata.IsNotFoundError(err):
		repoErr = &Error{Code: ErrNotFound, Message: "file record not found", Err: err}
	default:
		repoErr = newInternalError(err, "", "operation failed")
	}

	if repoErr.Op == "" {
		repoErr.Op = op
	}
	return repoErr
}

// KindOf returns the kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	var repoErr *Error
	if errors.As(err, &repoErr) {
		return repoErr.Kind()
	}
	return KindInternal
}

// CodeOf returns the code of err, or ErrInternal for foreign errors.
func CodeOf(err error) Code {
	var repoErr *Error
	if errors.As(err, &repoErr) {
		return repoErr.Code
	}
	return ErrInternal
}

// IsValidation reports whether err is a client-side failure.
func IsValidation(err error) bool {
	return err != nil && KindOf(err) == KindValidation
}

// IsInternal reports whether err is a server-side failure.
func IsInternal(err error) bool {
	return err != nil && KindOf(err) == KindInternal
}

// IsNotFound reports whether err is a not-found validation error.
func IsNotFound(err error) bool {
	return err != nil && CodeOf(err) == ErrNotFound
}

// IsNotSupported reports whether err comes from an unimplemented operation.
func IsNotSupported(err error) bool {
	return err != nil && CodeOf(err) == ErrNotSupported
}
