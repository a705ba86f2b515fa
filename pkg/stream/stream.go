// Package stream implements the stream servants handed out by a repository:
// raw file streams and pixel streams. A servant wraps one open file and is
// owned by exactly one session.
package stream

import (
	"errors"
	"fmt"
	"os"
	"time"
)

var (
	// ErrClosed is returned by every operation on a closed servant.
	ErrClosed = errors.New("stream is closed")

	// ErrNotPermitted is returned when the open mode forbids the operation.
	ErrNotPermitted = errors.New("operation not permitted by stream mode")

	// ErrInvalidMode is returned by ParseMode for unknown modes.
	ErrInvalidMode = errors.New("invalid stream mode")

	// ErrInvalidRegion is returned for pixel regions outside the image.
	ErrInvalidRegion = errors.New("invalid pixel region")

	// ErrImageTooLarge is returned when an image exceeds the pixel budget.
	ErrImageTooLarge = errors.New("image exceeds pixel budget")
)

// Kind identifies the servant type behind a proxy.
type Kind string

const (
	KindFile   Kind = "file"
	KindPixels Kind = "pixels"
)

// Servant is the common surface of everything a session can own.
type Servant interface {
	Kind() Kind

	// Path is the absolute local path the servant is bound to.
	Path() string

	Info() (Info, error)

	// Close releases the underlying file. Closing twice is a no-op.
	Close() error
}

// Info describes the file behind a servant.
type Info struct {
	Path  string    `json:"path"`
	Size  int64     `json:"size"`
	Mtime time.Time `json:"mtime"`
	Mode  Mode      `json:"mode"`
	Kind  Kind      `json:"kind"`
}

// Mode is the access mode of a file stream.
type Mode string

const (
	// ModeRead opens an existing file read-only.
	ModeRead Mode = "r"

	// ModeReadWrite opens read-write, creating the file when missing.
	ModeReadWrite Mode = "rw"

	// ModeWrite opens write-only, creating the file when missing.
	ModeWrite Mode = "w"
)

// ParseMode validates a client-supplied mode string. Empty means read.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "":
		return ModeRead, nil
	case ModeRead, ModeReadWrite, ModeWrite:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
}

// MustExist reports whether the target has to exist before opening.
func (m Mode) MustExist() bool {
	return m == ModeRead
}

// CanRead reports whether reads are allowed.
func (m Mode) CanRead() bool {
	return m == ModeRead || m == ModeReadWrite
}

// CanWrite reports whether writes are allowed.
func (m Mode) CanWrite() bool {
	return m == ModeReadWrite || m == ModeWrite
}

// Flags returns the os.OpenFile flags for the mode.
func (m Mode) Flags() int {
	switch m {
	case ModeReadWrite:
		return os.O_RDWR | os.O_CREATE
	case ModeWrite:
		return os.O_WRONLY | os.O_CREATE
	default:
		return os.O_RDONLY
	}
}
