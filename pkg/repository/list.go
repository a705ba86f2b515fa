package repository

import (
	"context"
	"os"
	"path/filepath"

	"github.com/marmos91/dittorepo/pkg/store/metadata"
	"github.com/spf13/afero"
)

// List returns the absolute paths of every entry below the directory at
// path, recursively, in lexical order. Reserved names (and everything below
// reserved directories) are skipped.
func (r *Repository) List(ctx context.Context, path string) ([]string, error) {
	return execute(ctx, r, "list", path, func(ctx context.Context) ([]string, error) {
		abs, err := r.checkDir(path)
		if err != nil {
			return nil, err
		}

		out := make([]string, 0)
		err = r.walk(ctx, abs, func(p string, info os.FileInfo) error {
			out = append(out, p)
			return nil
		})
		return out, err
	})
}

// ListFiles is List returning populated records instead of paths. Entries
// that are registered carry their ID; the others have ID zero.
func (r *Repository) ListFiles(ctx context.Context, path string) ([]*metadata.FileRecord, error) {
	return execute(ctx, r, "list_files", path, func(ctx context.Context) ([]*metadata.FileRecord, error) {
		abs, err := r.checkDir(path)
		if err != nil {
			return nil, err
		}

		out := make([]*metadata.FileRecord, 0)
		err = r.walk(ctx, abs, func(p string, info os.FileInfo) error {
			dir, name := r.resolver.Relative(p)
			if rec, err := r.store.GetByPath(ctx, r.name, dir, name); err == nil {
				out = append(out, rec)
				return nil
			} else if !metadata.IsNotFoundError(err) {
				return newInternalError(err, p, "failed to look up file record")
			}

			rec, err := r.buildRecord(p, "", false)
			if err != nil {
				return err
			}
			out = append(out, rec)
			return nil
		})
		return out, err
	})
}

func (r *Repository) checkDir(path string) (string, error) {
	abs, err := r.resolver.CheckPath(path, true)
	if err != nil {
		return "", err
	}
	if r.resolver.IsRoot(abs) {
		return abs, nil
	}

	info, err := r.fs.Stat(abs)
	if err != nil {
		return "", newInternalError(err, path, "failed to stat path")
	}
	if !info.IsDir() {
		return "", newValidationError(ErrNotDirectory, path, "path is not a directory")
	}
	return abs, nil
}

// walk visits every non-reserved entry strictly below dir.
func (r *Repository) walk(ctx context.Context, dir string, fn func(p string, info os.FileInfo) error) error {
	return afero.Walk(r.fs, dir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				// removed while walking
				return nil
			}
			return newInternalError(err, p, "failed to read directory")
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if p == dir {
			return nil
		}
		if r.IsReserved(filepath.Base(p)) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		return fn(p, info)
	})
}
