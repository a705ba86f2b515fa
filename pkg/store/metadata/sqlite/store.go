// Package sqlite implements metadata.Store on an embedded SQLite database.
//
// Records live in a single table whose INTEGER PRIMARY KEY AUTOINCREMENT column
// provides the numeric ids; AUTOINCREMENT guarantees ids are never reused after
// a delete.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/marmos91/dittorepo/internal/logger"
	"github.com/marmos91/dittorepo/pkg/store/metadata"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS file_records (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	repository TEXT    NOT NULL,
	path       TEXT    NOT NULL,
	name       TEXT    NOT NULL,
	size       INTEGER NOT NULL DEFAULT 0,
	mtime      INTEGER NOT NULL DEFAULT 0,
	mimetype   TEXT    NOT NULL DEFAULT '',
	checksum   TEXT    NOT NULL DEFAULT '',
	registered INTEGER NOT NULL DEFAULT 0,
	UNIQUE (repository, path, name)
);
CREATE INDEX IF NOT EXISTS file_records_repository ON file_records (repository, id);
`

const selectColumns = `SELECT id, repository, path, name, size, mtime, mimetype, checksum, registered FROM file_records`

// SQLiteMetadataStoreConfig configures the SQLite store.
type SQLiteMetadataStoreConfig struct {
	// Path is the database file. ":memory:" keeps everything in memory.
	Path string `mapstructure:"path"`

	// BusyTimeout is how long a writer waits for a lock (default: 5s)
	BusyTimeout time.Duration `mapstructure:"busy_timeout"`
}

// SQLiteMetadataStore implements metadata.Store with database/sql.
//
// The pool is limited to one connection: SQLite serializes writers anyway, and
// an in-memory database exists per connection.
type SQLiteMetadataStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteMetadataStore opens the database and applies the schema.
func NewSQLiteMetadataStore(ctx context.Context, cfg SQLiteMetadataStoreConfig) (*SQLiteMetadataStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if cfg.Path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=foreign_keys(1)",
		cfg.Path, cfg.BusyTimeout.Milliseconds())

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database %s: %w", cfg.Path, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply sqlite schema: %w", err)
	}

	logger.Debug("SQLite metadata store opened (path=%s)", cfg.Path)

	return &SQLiteMetadataStore{db: db, now: time.Now}, nil
}

func (s *SQLiteMetadataStore) Put(ctx context.Context, rec *metadata.FileRecord) (*metadata.FileRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	prepared, err := metadata.PrepareNewRecord(rec, s.now)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, wrapErr(err)
	}
	defer func() { _ = tx.Rollback() }()

	var existing int64
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM file_records WHERE repository = ? AND path = ? AND name = ?`,
		prepared.Repository, prepared.Path, prepared.Name,
	).Scan(&existing)
	switch {
	case err == nil:
		return nil, metadata.NewAlreadyExistsError(prepared.Repository, prepared.FullPath())
	case !errors.Is(err, sql.ErrNoRows):
		return nil, wrapErr(err)
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO file_records (repository, path, name, size, mtime, mimetype, checksum, registered)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		prepared.Repository, prepared.Path, prepared.Name, prepared.Size,
		toUnixNano(prepared.Mtime), prepared.MimeType, prepared.Checksum, toUnixNano(prepared.Registered),
	)
	if err != nil {
		return nil, wrapErr(err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, wrapErr(err)
	}
	if err := tx.Commit(); err != nil {
		return nil, wrapErr(err)
	}

	prepared.ID = id
	return prepared, nil
}

func (s *SQLiteMetadataStore) Get(ctx context.Context, id int64) (*metadata.FileRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rec, err := scanRecord(s.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, metadata.NewNotFoundError(id)
	}
	if err != nil {
		return nil, wrapErr(err)
	}
	return rec, nil
}

func (s *SQLiteMetadataStore) GetByPath(ctx context.Context, repository, dir, name string) (*metadata.FileRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dir = metadata.NormalizeRecordDir(dir)
	rec, err := scanRecord(s.db.QueryRowContext(ctx,
		selectColumns+` WHERE repository = ? AND path = ? AND name = ?`, repository, dir, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, metadata.NewPathNotFoundError(repository, metadata.JoinRecordPath(dir, name))
	}
	if err != nil {
		return nil, wrapErr(err)
	}
	return rec, nil
}

func (s *SQLiteMetadataStore) List(ctx context.Context, repository string) ([]*metadata.FileRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, selectColumns+` WHERE repository = ? ORDER BY id`, repository)
	if err != nil {
		return nil, wrapErr(err)
	}
	defer func() { _ = rows.Close() }()

	out := make([]*metadata.FileRecord, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, wrapErr(err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr(err)
	}
	return out, nil
}

func (s *SQLiteMetadataStore) Delete(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM file_records WHERE id = ?`, id)
	if err != nil {
		return wrapErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrapErr(err)
	}
	if n == 0 {
		return metadata.NewNotFoundError(id)
	}
	return nil
}

func (s *SQLiteMetadataStore) Healthcheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return wrapErr(s.db.PingContext(ctx))
}

func (s *SQLiteMetadataStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*metadata.FileRecord, error) {
	var rec metadata.FileRecord
	var mtime, registered int64

	if err := row.Scan(&rec.ID, &rec.Repository, &rec.Path, &rec.Name, &rec.Size,
		&mtime, &rec.MimeType, &rec.Checksum, &registered); err != nil {
		return nil, err
	}

	rec.Mtime = fromUnixNano(mtime)
	rec.Registered = fromUnixNano(registered)
	return &rec, nil
}

func toUnixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

func wrapErr(err error) error {
	if err == nil {
		return nil
	}

	var storeErr *metadata.StoreError
	if errors.As(err, &storeErr) {
		return storeErr
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if errors.Is(err, sql.ErrConnDone) || err.Error() == "sql: database is closed" {
		return &metadata.StoreError{Code: metadata.ErrClosed, Message: "sqlite metadata store is closed"}
	}
	return &metadata.StoreError{Code: metadata.ErrIOError, Message: err.Error()}
}
