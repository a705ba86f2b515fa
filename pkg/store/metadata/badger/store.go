package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/dustin/go-humanize"
	"github.com/marmos91/dittorepo/internal/logger"
	"github.com/marmos91/dittorepo/pkg/store/metadata"
)

// sequenceBandwidth is the number of ids leased from the sequence at a time.
// Leased but unused ids are lost on restart; ids stay unique and increasing.
const sequenceBandwidth = 64

// BadgerMetadataStore implements metadata.Store using BadgerDB for persistence.
//
// Suitable for deployments where registered records must survive restarts.
// See keys.go for the key schema.
//
// Thread Safety:
// Mutations are serialized by mu so that the path-uniqueness check and the
// insert happen without transaction conflicts; reads run in concurrent
// read-only transactions.
type BadgerMetadataStore struct {
	mu  sync.Mutex
	db  *badger.DB
	seq *badger.Sequence
	now func() time.Time
}

// BadgerMetadataStoreConfig contains configuration for creating a BadgerDB metadata store.
type BadgerMetadataStoreConfig struct {
	// DBPath is the directory where BadgerDB will store its files
	DBPath string `mapstructure:"db_path"`

	// InMemory runs badger without touching disk (tests)
	InMemory bool `mapstructure:"in_memory"`

	// BlockCacheSize is the block cache size in bytes (default: 64MiB)
	BlockCacheSize int64 `mapstructure:"block_cache_size"`

	// IndexCacheSize is the index cache size in bytes (default: 32MiB)
	IndexCacheSize int64 `mapstructure:"index_cache_size"`

	// BadgerOptions overrides everything above when set
	BadgerOptions *badger.Options `mapstructure:"-"`
}

// NewBadgerMetadataStore opens (or creates) a BadgerDB store.
func NewBadgerMetadataStore(ctx context.Context, config BadgerMetadataStoreConfig) (*BadgerMetadataStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var opts badger.Options
	if config.BadgerOptions != nil {
		opts = *config.BadgerOptions
	} else {
		if config.InMemory {
			opts = badger.DefaultOptions("").WithInMemory(true)
		} else {
			if config.DBPath == "" {
				return nil, fmt.Errorf("badger db_path is required")
			}
			opts = badger.DefaultOptions(config.DBPath)
		}

		// Records are small JSON documents
		opts = opts.WithLoggingLevel(badger.WARNING)
		opts = opts.WithCompression(options.None)

		blockCache := config.BlockCacheSize
		if blockCache <= 0 {
			blockCache = 64 << 20
		}
		indexCache := config.IndexCacheSize
		if indexCache <= 0 {
			indexCache = 32 << 20
		}
		opts = opts.WithBlockCacheSize(blockCache)
		opts = opts.WithIndexCacheSize(indexCache)

		logger.Debug("BadgerDB caches: block %s, index %s",
			humanize.IBytes(uint64(blockCache)), humanize.IBytes(uint64(indexCache)))
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB at %s: %w", config.DBPath, err)
	}

	seq, err := db.GetSequence([]byte(keySequence), sequenceBandwidth)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to open id sequence: %w", err)
	}

	logger.Debug("Badger metadata store opened (path=%q, in_memory=%v)", config.DBPath, config.InMemory)

	return &BadgerMetadataStore{
		db:  db,
		seq: seq,
		now: time.Now,
	}, nil
}

func (s *BadgerMetadataStore) Put(ctx context.Context, rec *metadata.FileRecord) (*metadata.FileRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	prepared, err := metadata.PrepareNewRecord(rec, s.now)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	pathKey := keyPath(prepared.Repository, prepared.Path, prepared.Name)

	next, err := s.seq.Next()
	if err != nil {
		return nil, wrapErr(fmt.Errorf("failed to allocate id: %w", err))
	}
	// sequences start at 0; ids start at 1
	prepared.ID = int64(next) + 1

	err = s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(pathKey); err == nil {
			return metadata.NewAlreadyExistsError(prepared.Repository, prepared.FullPath())
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("failed to check path index: %w", err)
		}

		data, err := json.Marshal(prepared)
		if err != nil {
			return fmt.Errorf("failed to encode file record: %w", err)
		}

		if err := txn.Set(keyFile(prepared.ID), data); err != nil {
			return err
		}
		if err := txn.Set(pathKey, encodeID(prepared.ID)); err != nil {
			return err
		}
		return txn.Set(keyRepository(prepared.Repository, prepared.ID), nil)
	})
	if err != nil {
		return nil, wrapErr(err)
	}

	return prepared.Clone(), nil
}

func (s *BadgerMetadataStore) Get(ctx context.Context, id int64) (*metadata.FileRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var rec *metadata.FileRecord
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		rec, err = getRecord(txn, id)
		return err
	})
	if err != nil {
		return nil, wrapErr(err)
	}
	return rec, nil
}

func (s *BadgerMetadataStore) GetByPath(ctx context.Context, repository, dir, name string) (*metadata.FileRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var rec *metadata.FileRecord
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(keyPath(repository, dir, name))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return metadata.NewPathNotFoundError(repository, metadata.JoinRecordPath(dir, name))
		}
		if err != nil {
			return err
		}

		var id int64
		if err := item.Value(func(val []byte) error {
			id, err = decodeID(val)
			return err
		}); err != nil {
			return err
		}

		rec, err = getRecord(txn, id)
		return err
	})
	if err != nil {
		return nil, wrapErr(err)
	}
	return rec, nil
}

func (s *BadgerMetadataStore) List(ctx context.Context, repository string) ([]*metadata.FileRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([]*metadata.FileRecord, 0)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = keyRepositoryPrefix(repository)

		it := txn.NewIterator(opts)
		defer it.Close()

		count := 0
		for it.Rewind(); it.Valid(); it.Next() {
			if count%100 == 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
			}
			count++

			id, err := idFromRepositoryKey(it.Item().Key())
			if err != nil {
				return err
			}
			rec, err := getRecord(txn, id)
			if err != nil {
				return err
			}
			out = append(out, rec)
		}
		return nil
	})
	if err != nil {
		return nil, wrapErr(err)
	}
	return out, nil
}

func (s *BadgerMetadataStore) Delete(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.db.Update(func(txn *badger.Txn) error {
		rec, err := getRecord(txn, id)
		if err != nil {
			return err
		}
		if err := txn.Delete(keyFile(id)); err != nil {
			return err
		}
		if err := txn.Delete(keyPath(rec.Repository, rec.Path, rec.Name)); err != nil {
			return err
		}
		return txn.Delete(keyRepository(rec.Repository, id))
	})
	return wrapErr(err)
}

func (s *BadgerMetadataStore) Healthcheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.db.IsClosed() {
		return &metadata.StoreError{Code: metadata.ErrClosed, Message: "badger metadata store is closed"}
	}
	return s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(keySequence))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
}

// Close releases the id sequence and closes the database.
func (s *BadgerMetadataStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db.IsClosed() {
		return nil
	}
	if err := s.seq.Release(); err != nil {
		logger.Warn("Failed to release badger id sequence: %v", err)
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close BadgerDB: %w", err)
	}
	return nil
}

func getRecord(txn *badger.Txn, id int64) (*metadata.FileRecord, error) {
	item, err := txn.Get(keyFile(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, metadata.NewNotFoundError(id)
	}
	if err != nil {
		return nil, err
	}

	var rec metadata.FileRecord
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &rec)
	}); err != nil {
		return nil, fmt.Errorf("failed to decode file record %d: %w", id, err)
	}
	return &rec, nil
}

// wrapErr passes StoreErrors and context errors through and tags anything
// else as ErrIOError.
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
	if errors.Is(err, badger.ErrDBClosed) {
		return &metadata.StoreError{Code: metadata.ErrClosed, Message: "badger metadata store is closed"}
	}
	return &metadata.StoreError{Code: metadata.ErrIOError, Message: err.Error()}
}
