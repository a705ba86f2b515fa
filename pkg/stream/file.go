package stream

import (
	"fmt"
	"io"
	"sync"

	"github.com/spf13/afero"
)

// FileStream is a raw byte stream over one repository file.
//
// Thread Safety:
// Safe for concurrent use; operations are serialized by an internal mutex.
type FileStream struct {
	mu     sync.Mutex
	file   afero.File
	path   string
	mode   Mode
	closed bool

	observe func(direction string, n int)
}

// OpenFile opens path on fs with the given mode. The caller is expected to
// have validated path against the repository root.
func OpenFile(fs afero.Fs, path string, mode Mode) (*FileStream, error) {
	f, err := fs.OpenFile(path, mode.Flags(), 0o644)
	if err != nil {
		return nil, fmt.Errorf("open %s (%s): %w", path, mode, err)
	}
	return &FileStream{file: f, path: path, mode: mode}, nil
}

// Observe installs fn to be told how many bytes each read ("read") or write
// ("write") moved. Must be called before the stream is shared.
func (s *FileStream) Observe(fn func(direction string, n int)) {
	s.observe = fn
}

func (s *FileStream) observed(direction string, n int) {
	if s.observe != nil && n > 0 {
		s.observe(direction, n)
	}
}

func (s *FileStream) Kind() Kind   { return KindFile }
func (s *FileStream) Path() string { return s.path }
func (s *FileStream) Mode() Mode   { return s.mode }

func (s *FileStream) Info() (Info, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Info{}, ErrClosed
	}
	fi, err := s.file.Stat()
	if err != nil {
		return Info{}, err
	}
	return Info{
		Path:  s.path,
		Size:  fi.Size(),
		Mtime: fi.ModTime(),
		Mode:  s.mode,
		Kind:  KindFile,
	}, nil
}

// ReadAt reads len(p) bytes at off. At end of file it returns the bytes read
// and io.EOF, like io.ReaderAt.
func (s *FileStream) ReadAt(p []byte, off int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrClosed
	}
	if !s.mode.CanRead() {
		return 0, ErrNotPermitted
	}
	n, err := s.file.ReadAt(p, off)
	// some afero backends report a short read without io.EOF
	if err == nil && n < len(p) {
		err = io.EOF
	}
	s.observed("read", n)
	return n, err
}

// Read returns up to length bytes starting at off. A short read at end of
// file is not an error.
func (s *FileStream) Read(off int64, length int) ([]byte, error) {
	if off < 0 || length < 0 {
		return nil, fmt.Errorf("invalid range: offset=%d length=%d", off, length)
	}
	buf := make([]byte, length)
	n, err := s.ReadAt(buf, off)
	if err == io.EOF {
		err = nil
	}
	return buf[:n], err
}

func (s *FileStream) WriteAt(p []byte, off int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrClosed
	}
	if !s.mode.CanWrite() {
		return 0, ErrNotPermitted
	}
	if off < 0 {
		return 0, fmt.Errorf("invalid offset %d", off)
	}
	n, err := s.file.WriteAt(p, off)
	s.observed("write", n)
	return n, err
}

func (s *FileStream) Truncate(size int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if !s.mode.CanWrite() {
		return ErrNotPermitted
	}
	return s.file.Truncate(size)
}

// Sync flushes written data to stable storage.
func (s *FileStream) Sync() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	return s.file.Sync()
}

func (s *FileStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.file.Close()
}
