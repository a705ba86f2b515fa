package repository

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/marmos91/dittorepo/pkg/events"
	"github.com/marmos91/dittorepo/pkg/mimetype"
)

// Mimetype returns the content type of the existing entry at path.
// Directories report "Directory".
func (r *Repository) Mimetype(ctx context.Context, path string) (string, error) {
	return execute(ctx, r, "mimetype", path, func(ctx context.Context) (string, error) {
		abs, err := r.resolver.CheckPath(path, true)
		if err != nil {
			return "", err
		}

		info, err := r.fs.Stat(abs)
		if err != nil {
			return "", newInternalError(err, path, "failed to stat path")
		}
		if info.IsDir() {
			return mimetype.Directory, nil
		}
		return r.detect(abs)
	})
}

// FileExists reports whether path exists. A path outside the root is a
// validation error, not false.
func (r *Repository) FileExists(ctx context.Context, path string) (bool, error) {
	return execute(ctx, r, "file_exists", path, func(ctx context.Context) (bool, error) {
		abs, err := r.resolver.CheckPath(path, false)
		if err != nil {
			return false, err
		}
		if r.resolver.IsRoot(abs) {
			return true, nil
		}

		_, err = r.fs.Stat(abs)
		switch {
		case err == nil:
			return true, nil
		case errors.Is(err, fs.ErrNotExist):
			return false, nil
		default:
			return false, newInternalError(err, path, "failed to stat path")
		}
	})
}

// Create touches an empty file at path. It returns true if the file was
// created and false if something already existed there. The parent
// directory must exist.
func (r *Repository) Create(ctx context.Context, path string) (bool, error) {
	return execute(ctx, r, "create", path, func(ctx context.Context) (bool, error) {
		abs, err := r.resolver.CheckPath(path, false)
		if err != nil {
			return false, err
		}
		if r.resolver.IsRoot(abs) {
			return false, nil
		}
		if err := r.checkParent(abs, path); err != nil {
			return false, err
		}

		f, err := r.fs.OpenFile(abs, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err != nil {
			if errors.Is(err, fs.ErrExist) {
				return false, nil
			}
			return false, newInternalError(err, path, "failed to create file")
		}
		if err := f.Close(); err != nil {
			return false, newInternalError(err, path, "failed to close new file")
		}

		r.publish(events.Created, abs, 0)
		return true, nil
	})
}

// MakeDir creates the directory at path and any missing ancestors.
// An existing directory is not an error; an existing file is.
func (r *Repository) MakeDir(ctx context.Context, path string) error {
	return executeVoid(ctx, r, "make_dir", path, func(ctx context.Context) error {
		abs, err := r.resolver.CheckPath(path, false)
		if err != nil {
			return err
		}
		if r.resolver.IsRoot(abs) {
			return nil
		}

		info, err := r.fs.Stat(abs)
		switch {
		case err == nil && info.IsDir():
			return nil
		case err == nil:
			return newValidationError(ErrNotDirectory, path, "a file exists at this path")
		case !errors.Is(err, fs.ErrNotExist):
			return newInternalError(err, path, "failed to stat path")
		}

		if err := r.fs.MkdirAll(abs, 0o755); err != nil {
			return newInternalError(err, path, "failed to create directory")
		}

		r.publish(events.DirCreated, abs, 0)
		return nil
	})
}

// checkParent requires the directory containing abs to exist.
func (r *Repository) checkParent(abs, path string) error {
	parent := filepath.Dir(abs)
	if r.resolver.IsRoot(parent) {
		return nil
	}

	info, err := r.fs.Stat(parent)
	switch {
	case err == nil && info.IsDir():
		return nil
	case err == nil:
		return newValidationError(ErrNotDirectory, path, "parent is not a directory")
	case errors.Is(err, fs.ErrNotExist):
		return newValidationError(ErrNotFound, path, "parent directory does not exist")
	default:
		return newInternalError(err, path, "failed to stat parent directory")
	}
}
