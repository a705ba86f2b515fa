package repository

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// PathResolver validates client-supplied paths against a repository root.
//
// The root is absolute and cleaned at construction and never changes, so a
// resolver is safe for concurrent use without locking.
//
// Accepted inputs:
//   - absolute paths, used as-is
//   - relative paths, interpreted relative to the root
//
// Every accepted path is either the root itself or has root+separator as a
// string prefix after filepath.Clean. Anything else is a path escape.
type PathResolver struct {
	fs   afero.Fs
	root string

	// prefix is root with a trailing separator ("/" stays "/")
	prefix string
}

// NewPathResolver creates a resolver for root, which must be an existing
// directory on fs.
func NewPathResolver(fsys afero.Fs, root string) (*PathResolver, error) {
	if root == "" {
		return nil, fmt.Errorf("repository root is required")
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("invalid repository root %q: %w", root, err)
	}
	abs = filepath.Clean(abs)

	info, err := fsys.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("repository root %s: %w", abs, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("repository root %s is not a directory", abs)
	}

	prefix := abs
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	return &PathResolver{fs: fsys, root: abs, prefix: prefix}, nil
}

// Root returns the absolute repository root.
func (r *PathResolver) Root() string {
	return r.root
}

// CheckPath validates p and returns its absolute, cleaned form.
//
// The exact root is returned without touching the filesystem. With mustExist
// set, a missing target is a not-found validation error.
func (r *PathResolver) CheckPath(p string, mustExist bool) (string, error) {
	if strings.TrimSpace(p) == "" {
		return "", newValidationError(ErrInvalidArgument, p, "path is empty")
	}

	candidate := p
	if !filepath.IsAbs(candidate) {
		candidate = filepath.Join(r.root, candidate)
	}
	candidate = filepath.Clean(candidate)

	if candidate == r.root {
		return r.root, nil
	}
	if !strings.HasPrefix(candidate, r.prefix) {
		return "", newValidationError(ErrPathEscape, p, "path is outside the repository root")
	}

	if mustExist {
		if _, err := r.fs.Stat(candidate); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return "", newValidationError(ErrNotFound, p, "path does not exist")
			}
			return "", newInternalError(err, p, "failed to stat path")
		}
	}
	return candidate, nil
}

// IsRoot reports whether abs (as returned by CheckPath) is the root.
func (r *PathResolver) IsRoot(abs string) bool {
	return abs == r.root
}

// Relative splits a resolved path into record form: the containing directory
// relative to the root ("/images/") and the base name ("foo.tif"). The root
// yields ("/", "").
func (r *PathResolver) Relative(abs string) (dir, name string) {
	if abs == r.root {
		return "/", ""
	}

	rel := filepath.ToSlash(strings.TrimPrefix(abs, r.prefix))
	i := strings.LastIndex(rel, "/")
	if i < 0 {
		return "/", rel
	}
	return "/" + rel[:i+1], rel[i+1:]
}

// RecordPath returns abs relative to the root in slash form ("/images/foo.tif").
func (r *PathResolver) RecordPath(abs string) string {
	dir, name := r.Relative(abs)
	return dir + name
}

// Abs maps a root-relative record location back to a local path.
func (r *PathResolver) Abs(dir, name string) string {
	return filepath.Join(r.root, filepath.FromSlash(dir), name)
}
