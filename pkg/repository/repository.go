// Package repository implements a filesystem-backed file repository scoped to
// one root directory.
//
// A Repository composes four parts:
//
//   - PathResolver: rejects any client path that escapes the root
//   - the file registry: register/list/delete/create/mkdir/mimetype, with
//     records persisted in a metadata.Store
//   - the stream servant factory: opens raw file and pixel streams and hands
//     them to the caller's session
//   - the facade itself: every operation runs through execute, which
//     classifies failures as validation (caller's fault) or internal
//     (server's fault, with a stack diagnostic)
//
// The repository keeps no in-memory copy of records: every read goes to the
// store. Concurrent operations on the same path are serialized only by the
// filesystem and the store; the repository adds no locking of its own.
package repository

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/marmos91/dittorepo/internal/logger"
	"github.com/marmos91/dittorepo/pkg/events"
	"github.com/marmos91/dittorepo/pkg/metrics"
	"github.com/marmos91/dittorepo/pkg/store/metadata"
	"github.com/spf13/afero"
)

// DefaultReservedPrefixes hides dotfiles and dot-directories from listings.
var DefaultReservedPrefixes = []string{"."}

// Config configures a Repository.
type Config struct {
	// Name identifies the repository; records are scoped by it.
	Name string

	// Root is the directory every path is confined to.
	Root string

	// Fs is the filesystem the root lives on. Nil uses the OS filesystem.
	Fs afero.Fs

	// Store persists file records. Required.
	Store metadata.Store

	// ReservedPrefixes are base-name prefixes hidden from listings.
	// Nil uses DefaultReservedPrefixes; an empty slice hides nothing.
	ReservedPrefixes []string

	// MaxImagePixels bounds the images pixel streams decode.
	// 0 uses stream.DefaultMaxPixels.
	MaxImagePixels int64

	// Metrics receives per-operation timings. Nil disables metrics.
	Metrics metrics.RepositoryMetrics

	// Events receives change notifications. Nil discards them.
	Events events.Publisher
}

// Repository is the externally addressable facade over one root directory.
type Repository struct {
	name      string
	fs        afero.Fs
	resolver  *PathResolver
	store     metadata.Store
	reserved  []string
	maxPixels int64
	metrics   metrics.RepositoryMetrics
	events    events.Publisher

	registered atomic.Int64
}

// New creates a repository and registers its root record if the store does
// not have one yet.
func New(ctx context.Context, cfg Config) (*Repository, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("repository name is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("repository %s: metadata store is required", cfg.Name)
	}

	fsys := cfg.Fs
	if fsys == nil {
		fsys = afero.NewOsFs()
	}

	resolver, err := NewPathResolver(fsys, cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("repository %s: %w", cfg.Name, err)
	}

	reserved := cfg.ReservedPrefixes
	if reserved == nil {
		reserved = DefaultReservedPrefixes
	}

	r := &Repository{
		name:      cfg.Name,
		fs:        fsys,
		resolver:  resolver,
		store:     cfg.Store,
		reserved:  reserved,
		maxPixels: cfg.MaxImagePixels,
		metrics:   cfg.Metrics,
		events:    cfg.Events,
	}
	if r.metrics == nil {
		r.metrics = metrics.NewNoopRepositoryMetrics()
	}
	if r.events == nil {
		r.events = events.Discard
	}

	if err := r.ensureRootRecord(ctx); err != nil {
		return nil, fmt.Errorf("repository %s: %w", cfg.Name, err)
	}

	records, err := r.store.List(ctx, r.name)
	if err != nil {
		return nil, fmt.Errorf("repository %s: failed to count records: %w", cfg.Name, err)
	}
	r.registered.Store(int64(len(records)))
	r.metrics.SetRegisteredFiles(r.name, r.registered.Load())

	logger.Info("Repository %s ready at %s (%d registered record(s))", r.name, resolver.Root(), len(records))
	return r, nil
}

func (r *Repository) ensureRootRecord(ctx context.Context) error {
	_, err := r.store.GetByPath(ctx, r.name, "/", "")
	if err == nil {
		return nil
	}
	if !metadata.IsNotFoundError(err) {
		return fmt.Errorf("failed to look up root record: %w", err)
	}

	info, err := r.fs.Stat(r.resolver.Root())
	if err != nil {
		return fmt.Errorf("failed to stat root: %w", err)
	}

	_, err = r.store.Put(ctx, &metadata.FileRecord{
		Repository: r.name,
		Path:       "/",
		Name:       "",
		Mtime:      info.ModTime().UTC(),
		MimeType:   metadata.DirectoryMimeType,
	})
	if err != nil && !metadata.IsAlreadyExistsError(err) {
		return fmt.Errorf("failed to register root record: %w", err)
	}
	return nil
}

// Name returns the repository name.
func (r *Repository) Name() string {
	return r.name
}

// RootPath returns the absolute root directory.
func (r *Repository) RootPath() string {
	return r.resolver.Root()
}

// Resolver exposes the repository's path resolver.
func (r *Repository) Resolver() *PathResolver {
	return r.resolver
}

// IsReserved reports whether a base name is hidden from listings.
func (r *Repository) IsReserved(name string) bool {
	for _, prefix := range r.reserved {
		if prefix != "" && strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// Root returns the repository's own root record.
func (r *Repository) Root(ctx context.Context) (*metadata.FileRecord, error) {
	return execute(ctx, r, "root", "", func(ctx context.Context) (*metadata.FileRecord, error) {
		return r.store.GetByPath(ctx, r.name, "/", "")
	})
}

// Healthcheck verifies the root is reachable and the store is usable.
func (r *Repository) Healthcheck(ctx context.Context) error {
	if _, err := r.fs.Stat(r.resolver.Root()); err != nil {
		return fmt.Errorf("repository %s: root unavailable: %w", r.name, err)
	}
	if err := r.store.Healthcheck(ctx); err != nil {
		return fmt.Errorf("repository %s: store unhealthy: %w", r.name, err)
	}
	return nil
}

func (r *Repository) publish(t events.Type, abs string, id int64) {
	r.events.Publish(events.Event{
		Type:       t,
		Repository: r.name,
		Path:       r.resolver.RecordPath(abs),
		ID:         id,
	})
}
