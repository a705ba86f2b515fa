package metadata

import (
	"context"
	"time"
)

// ============================================================================
// Store Interface
// ============================================================================

// Store persists FileRecords and hands out their numeric identifiers.
//
// The store is the repository's backing data store: the File Registry writes
// records into it on register, the Stream Servant Factory reads them back to
// resolve a numeric id to a path. It knows nothing about the filesystem.
//
// Each method is a single transactional unit. Implementations must be safe for
// concurrent use by multiple goroutines and must respect context cancellation.
//
// Business logic failures are reported as *StoreError (see errors.go).
type Store interface {
	// Put persists a new record and returns a copy carrying the assigned ID.
	//
	// rec.ID must be zero, rec.Repository non-empty. A record whose
	// (Repository, Path, Name) is already registered fails with ErrAlreadyExists.
	Put(ctx context.Context, rec *FileRecord) (*FileRecord, error)

	// Get returns the record with the given ID, or ErrNotFound.
	Get(ctx context.Context, id int64) (*FileRecord, error)

	// GetByPath returns the record registered for dir/name in repository,
	// or ErrNotFound. dir is normalized with NormalizeRecordDir.
	GetByPath(ctx context.Context, repository, dir, name string) (*FileRecord, error)

	// List returns every record of a repository ordered by ID.
	List(ctx context.Context, repository string) ([]*FileRecord, error)

	// Delete removes the record with the given ID, or returns ErrNotFound.
	Delete(ctx context.Context, id int64) error

	// Healthcheck verifies the backing store is usable.
	Healthcheck(ctx context.Context) error

	// Close releases resources. The store must not be used afterwards.
	Close() error
}

// ValidateNewRecord checks the invariants Put requires.
func ValidateNewRecord(rec *FileRecord) error {
	if rec == nil {
		return &StoreError{Code: ErrInvalidArgument, Message: "record is nil"}
	}
	if rec.ID != 0 {
		return &StoreError{Code: ErrInvalidArgument, Message: "record already has an id"}
	}
	if rec.Repository == "" {
		return &StoreError{Code: ErrInvalidArgument, Message: "record has no repository"}
	}
	if rec.Name == "" && !rec.IsRoot() {
		return &StoreError{Code: ErrInvalidArgument, Message: "record has no name", Path: rec.Path}
	}
	return nil
}

// PrepareNewRecord validates rec and returns a normalized copy ready to be
// stored. Registered defaults to now when unset.
func PrepareNewRecord(rec *FileRecord, now func() time.Time) (*FileRecord, error) {
	if err := ValidateNewRecord(rec); err != nil {
		return nil, err
	}

	c := rec.Clone()
	c.Path = NormalizeRecordDir(c.Path)
	if c.Checksum == "" {
		c.Checksum = UnknownChecksum
	}
	if c.Registered.IsZero() {
		c.Registered = now().UTC()
	}
	return c, nil
}
