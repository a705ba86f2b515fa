package repository

import (
	"context"
	"errors"
	"io/fs"

	"github.com/marmos91/dittorepo/internal/logger"
	"github.com/marmos91/dittorepo/pkg/events"
	"github.com/marmos91/dittorepo/pkg/store/metadata"
)

// Orphans returns the registered records whose file no longer exists under
// the root, ordered by ID. The root record is never an orphan.
func (r *Repository) Orphans(ctx context.Context) ([]*metadata.FileRecord, error) {
	return execute(ctx, r, "orphans", "", func(ctx context.Context) ([]*metadata.FileRecord, error) {
		records, err := r.store.List(ctx, r.name)
		if err != nil {
			return nil, newInternalError(err, "", "failed to list file records")
		}

		orphans := make([]*metadata.FileRecord, 0)
		for _, rec := range records {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if rec.IsRoot() {
				continue
			}

			_, err := r.fs.Stat(r.resolver.Abs(rec.Path, rec.Name))
			switch {
			case err == nil:
			case errors.Is(err, fs.ErrNotExist):
				orphans = append(orphans, rec)
			default:
				// unreadable is not the same as gone
				logger.Debug("Repository %s: cannot stat %s: %v", r.name, rec.FullPath(), err)
			}
		}
		return orphans, nil
	})
}

// Unregister removes the record with the given ID. Unregistering the root
// record is refused.
func (r *Repository) Unregister(ctx context.Context, id int64) error {
	return executeVoid(ctx, r, "unregister", "", func(ctx context.Context) error {
		rec, err := r.store.Get(ctx, id)
		if err != nil {
			return err
		}
		if rec.Repository != r.name {
			return metadata.NewNotFoundError(id)
		}
		if rec.IsRoot() {
			return newValidationError(ErrInvalidArgument, "/", "the root record cannot be unregistered")
		}

		if err := r.store.Delete(ctx, id); err != nil {
			return err
		}

		r.metrics.SetRegisteredFiles(r.name, r.registered.Add(-1))
		r.events.Publish(events.Event{
			Type:       events.Unregistered,
			Repository: r.name,
			Path:       rec.FullPath(),
			ID:         id,
		})
		logger.Debug("Repository %s: unregistered %s (%d)", r.name, rec.FullPath(), id)
		return nil
	})
}
