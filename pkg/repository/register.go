package repository

import (
	"context"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/marmos91/dittorepo/internal/logger"
	"github.com/marmos91/dittorepo/pkg/events"
	"github.com/marmos91/dittorepo/pkg/mimetype"
	"github.com/marmos91/dittorepo/pkg/store/metadata"
)

// Register persists a record for the existing entry at path and returns it
// with its assigned ID. An empty mimeType is detected from the name and, if
// needed, the content.
//
// Registering a path that already has a record returns that record unchanged.
func (r *Repository) Register(ctx context.Context, path, mimeType string) (*metadata.FileRecord, error) {
	return execute(ctx, r, "register", path, func(ctx context.Context) (*metadata.FileRecord, error) {
		abs, err := r.resolver.CheckPath(path, true)
		if err != nil {
			return nil, err
		}

		dir, name := r.resolver.Relative(abs)
		existing, err := r.store.GetByPath(ctx, r.name, dir, name)
		if err == nil {
			return existing, nil
		}
		if !metadata.IsNotFoundError(err) {
			return nil, newInternalError(err, path, "failed to look up file record")
		}

		rec, err := r.buildRecord(abs, mimeType, true)
		if err != nil {
			return nil, err
		}

		saved, err := r.store.Put(ctx, rec)
		if metadata.IsAlreadyExistsError(err) {
			// lost a race with a concurrent register of the same path
			return r.store.GetByPath(ctx, r.name, dir, name)
		}
		if err != nil {
			return nil, newInternalError(err, path, "failed to persist file record")
		}

		r.metrics.SetRegisteredFiles(r.name, r.registered.Add(1))
		r.publish(events.Registered, abs, saved.ID)
		logger.Debug("Repository %s: registered %s (%s, %s) as %d",
			r.name, saved.FullPath(), saved.MimeType, humanize.IBytes(uint64(saved.Size)), saved.ID)

		return saved, nil
	})
}

// buildRecord describes the entry at abs without persisting it. With sniff
// set, files whose names say nothing about their type are content-sniffed.
func (r *Repository) buildRecord(abs, mimeType string, sniff bool) (*metadata.FileRecord, error) {
	info, err := r.fs.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, newValidationError(ErrNotFound, abs, "path does not exist")
		}
		return nil, newInternalError(err, abs, "failed to stat path")
	}

	if mimeType == "" {
		switch {
		case info.IsDir():
			mimeType = metadata.DirectoryMimeType
		case sniff:
			mimeType, err = r.detect(abs)
			if err != nil {
				return nil, err
			}
		default:
			mimeType = mimetype.FromName(abs)
			if mimeType == "" {
				mimeType = mimetype.Default
			}
		}
	}

	dir, name := r.resolver.Relative(abs)
	return &metadata.FileRecord{
		Repository: r.name,
		Name:       name,
		Path:       dir,
		Size:       info.Size(),
		Mtime:      info.ModTime().UTC(),
		MimeType:   mimeType,
		Checksum:   metadata.UnknownChecksum,
	}, nil
}

func (r *Repository) detect(abs string) (string, error) {
	t, err := mimetype.Detect(abs, func() (io.ReadCloser, error) {
		return r.fs.Open(abs)
	})
	if err != nil {
		return "", newInternalError(err, abs, "failed to detect content type")
	}
	return t, nil
}
