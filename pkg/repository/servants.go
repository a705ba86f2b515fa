package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/marmos91/dittorepo/internal/logger"
	"github.com/marmos91/dittorepo/pkg/session"
	"github.com/marmos91/dittorepo/pkg/store/metadata"
	"github.com/marmos91/dittorepo/pkg/stream"
)

// File opens a raw stream over the file at path and registers it with sess.
//
// Modes: "r" requires the file to exist; "rw" and "w" create it when missing
// (its parent directory must exist). An empty mode means "r".
func (r *Repository) File(ctx context.Context, sess *session.Session, path, mode string) (session.Proxy, error) {
	return execute(ctx, r, "file", path, func(ctx context.Context) (session.Proxy, error) {
		m, err := stream.ParseMode(mode)
		if err != nil {
			return session.Proxy{}, newValidationError(ErrInvalidArgument, path, "%v", err)
		}

		abs, err := r.checkFileTarget(path, m.MustExist())
		if err != nil {
			return session.Proxy{}, err
		}
		return r.openFile(sess, abs, path, m)
	})
}

// FileByID opens a read-only raw stream over the file registered under id.
// An unknown id, an id of another repository, or a registered file that has
// since disappeared are all not-found validation errors.
func (r *Repository) FileByID(ctx context.Context, sess *session.Session, id int64) (session.Proxy, error) {
	path := fmt.Sprintf("#%d", id)
	return execute(ctx, r, "file_by_id", path, func(ctx context.Context) (session.Proxy, error) {
		rec, err := r.store.Get(ctx, id)
		if err != nil {
			if metadata.IsNotFoundError(err) {
				return session.Proxy{}, newValidationError(ErrNotFound, path, "no file registered with this id")
			}
			return session.Proxy{}, newInternalError(err, path, "failed to look up file record")
		}
		if rec.Repository != r.name {
			return session.Proxy{}, newValidationError(ErrNotFound, path, "no file registered with this id")
		}

		abs, err := r.checkFileTarget(r.resolver.Abs(rec.Path, rec.Name), true)
		if err != nil {
			return session.Proxy{}, err
		}
		return r.openFile(sess, abs, path, stream.ModeRead)
	})
}

// Pixels opens a pixel stream over the image at path and registers it with
// sess. The image header is decoded lazily by the servant.
func (r *Repository) Pixels(ctx context.Context, sess *session.Session, path string) (session.Proxy, error) {
	return execute(ctx, r, "pixels", path, func(ctx context.Context) (session.Proxy, error) {
		if sess == nil {
			return session.Proxy{}, newValidationError(ErrInvalidArgument, path, "a session is required")
		}

		abs, err := r.checkFileTarget(path, true)
		if err != nil {
			return session.Proxy{}, err
		}

		px, err := stream.OpenPixels(r.fs, abs, r.maxPixels)
		if err != nil {
			return session.Proxy{}, newInternalError(err, path, "failed to open pixel stream")
		}
		return r.bind(sess, px, path)
	})
}

func (r *Repository) openFile(sess *session.Session, abs, path string, mode stream.Mode) (session.Proxy, error) {
	if sess == nil {
		return session.Proxy{}, newValidationError(ErrInvalidArgument, path, "a session is required")
	}

	fstream, err := stream.OpenFile(r.fs, abs, mode)
	if err != nil {
		return session.Proxy{}, newInternalError(err, path, "failed to open file stream")
	}
	fstream.Observe(func(direction string, n int) {
		r.metrics.RecordBytes(r.name, direction, int64(n))
	})
	return r.bind(sess, fstream, path)
}

// bind registers sv with sess. On failure the servant is closed and the
// operation fails with an internal error.
func (r *Repository) bind(sess *session.Session, sv stream.Servant, path string) (session.Proxy, error) {
	proxy, err := sess.Add(sv)
	if err != nil {
		if cerr := sv.Close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
		return session.Proxy{}, newInternalError(err, path, "failed to register servant")
	}

	logger.Debug("Repository %s: %s servant %d for %s in session %s",
		r.name, sv.Kind(), proxy.ServantID, r.resolver.RecordPath(sv.Path()), sess.ID)
	return proxy, nil
}

// checkFileTarget resolves path and rejects directories (and the root).
// Without mustExist, a missing target requires an existing parent.
func (r *Repository) checkFileTarget(path string, mustExist bool) (string, error) {
	abs, err := r.resolver.CheckPath(path, mustExist)
	if err != nil {
		return "", err
	}
	if r.resolver.IsRoot(abs) {
		return "", newValidationError(ErrIsDirectory, path, "path is a directory")
	}

	info, err := r.fs.Stat(abs)
	if err == nil {
		if info.IsDir() {
			return "", newValidationError(ErrIsDirectory, path, "path is a directory")
		}
		return abs, nil
	}
	if mustExist {
		return "", newInternalError(err, path, "failed to stat path")
	}
	if err := r.checkParent(abs, path); err != nil {
		return "", err
	}
	return abs, nil
}
