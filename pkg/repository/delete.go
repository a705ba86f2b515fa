package repository

import (
	"context"
	"path/filepath"

	"github.com/marmos91/dittorepo/internal/logger"
	"github.com/marmos91/dittorepo/pkg/events"
	"github.com/spf13/afero"
)

// Delete removes the file or empty directory at path. The root cannot be
// deleted. Records registered for the path are kept.
func (r *Repository) Delete(ctx context.Context, path string) error {
	return executeVoid(ctx, r, "delete", path, func(ctx context.Context) error {
		abs, err := r.resolver.CheckPath(path, true)
		if err != nil {
			return err
		}
		if err := r.remove(abs, path); err != nil {
			return err
		}

		r.publish(events.Deleted, abs, 0)
		return nil
	})
}

// DeleteFiles deletes every path it can and returns the ones it could not:
// invalid, escaping, missing, the root, or failing to delete. After each
// successful delete, parent directories left empty are removed up to but not
// including the root.
//
// Individual failures never fail the call; only cancellation does.
func (r *Repository) DeleteFiles(ctx context.Context, paths []string) ([]string, error) {
	return execute(ctx, r, "delete_files", "", func(ctx context.Context) ([]string, error) {
		undeleted := make([]string, 0)

		for _, p := range paths {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			abs, err := r.resolver.CheckPath(p, true)
			if err == nil {
				err = r.remove(abs, p)
			}
			if err != nil {
				logger.Debug("Repository %s: could not delete %q: %v", r.name, p, err)
				undeleted = append(undeleted, p)
				continue
			}

			r.publish(events.Deleted, abs, 0)
			r.pruneEmptyParents(abs)
		}
		return undeleted, nil
	})
}

func (r *Repository) remove(abs, path string) error {
	if r.resolver.IsRoot(abs) {
		return newValidationError(ErrInvalidArgument, path, "the repository root cannot be deleted")
	}

	info, err := r.fs.Stat(abs)
	if err != nil {
		return newInternalError(err, path, "failed to stat path")
	}
	if info.IsDir() {
		empty, err := afero.IsEmpty(r.fs, abs)
		if err != nil {
			return newInternalError(err, path, "failed to read directory")
		}
		if !empty {
			return newValidationError(ErrNotEmpty, path, "directory is not empty")
		}
	}

	if err := r.fs.Remove(abs); err != nil {
		return newInternalError(err, path, "failed to delete path")
	}
	return nil
}

// pruneEmptyParents removes now-empty ancestors of abs, stopping at the first
// non-empty one and never touching the root.
func (r *Repository) pruneEmptyParents(abs string) {
	for dir := filepath.Dir(abs); dir != abs && !r.resolver.IsRoot(dir); dir = filepath.Dir(dir) {
		if _, err := r.resolver.CheckPath(dir, false); err != nil {
			return
		}

		empty, err := afero.IsEmpty(r.fs, dir)
		if err != nil || !empty {
			return
		}
		if err := r.fs.Remove(dir); err != nil {
			logger.Debug("Repository %s: failed to prune %s: %v", r.name, dir, err)
			return
		}
		r.publish(events.Deleted, dir, 0)
		abs = dir
	}
}
