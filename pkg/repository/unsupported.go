package repository

import "context"

// The operations below are part of the repository surface but have no
// implementation. Each fails with ErrNotSupported and has no side effects.

func (r *Repository) notSupported(ctx context.Context, op, path string) error {
	return executeVoid(ctx, r, op, path, func(context.Context) error {
		return &Error{Code: ErrNotSupported, Message: "operation is not supported"}
	})
}

// Rename would move from to to.
func (r *Repository) Rename(ctx context.Context, from, to string) error {
	return r.notSupported(ctx, "rename", from)
}

// Render would produce a rendered image of path.
func (r *Repository) Render(ctx context.Context, path string) error {
	return r.notSupported(ctx, "render", path)
}

// Thumbs would produce thumbnails of path.
func (r *Repository) Thumbs(ctx context.Context, path string) error {
	return r.notSupported(ctx, "thumbs", path)
}

// Transfer would copy path to another repository.
func (r *Repository) Transfer(ctx context.Context, path, target string) error {
	return r.notSupported(ctx, "transfer", path)
}

// Load would import path into the image store.
func (r *Repository) Load(ctx context.Context, path string) error {
	return r.notSupported(ctx, "load", path)
}
