package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/marmos91/dittorepo/pkg/store/metadata"
)

// MemoryMetadataStoreConfig configures the in-memory store.
type MemoryMetadataStoreConfig struct {
	// MaxRecords caps the number of stored records. 0 means unlimited.
	MaxRecords int `mapstructure:"max_records"`
}

// MemoryMetadataStore implements metadata.Store using in-memory maps.
//
// Suitable for tests and ephemeral deployments. IDs are assigned from a
// monotonically increasing counter starting at 1 and are never reused.
//
// Thread Safety:
// All operations are protected by a single read-write mutex.
type MemoryMetadataStore struct {
	mu sync.RWMutex

	// records maps id to record
	records map[int64]*metadata.FileRecord

	// byPath maps pathKey(repository, dir, name) to id
	byPath map[string]int64

	nextID     int64
	maxRecords int
	closed     bool
	now        func() time.Time
}

// NewMemoryMetadataStore creates an empty store.
func NewMemoryMetadataStore(cfg MemoryMetadataStoreConfig) *MemoryMetadataStore {
	return &MemoryMetadataStore{
		records:    make(map[int64]*metadata.FileRecord),
		byPath:     make(map[string]int64),
		nextID:     1,
		maxRecords: cfg.MaxRecords,
		now:        time.Now,
	}
}

// NewMemoryMetadataStoreWithDefaults creates an unbounded store.
func NewMemoryMetadataStoreWithDefaults() *MemoryMetadataStore {
	return NewMemoryMetadataStore(MemoryMetadataStoreConfig{})
}

func pathKey(repository, dir, name string) string {
	return repository + "\x00" + metadata.NormalizeRecordDir(dir) + "\x00" + name
}

func (s *MemoryMetadataStore) Put(ctx context.Context, rec *metadata.FileRecord) (*metadata.FileRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	prepared, err := metadata.PrepareNewRecord(rec, s.now)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, errClosed()
	}

	key := pathKey(prepared.Repository, prepared.Path, prepared.Name)
	if _, exists := s.byPath[key]; exists {
		return nil, metadata.NewAlreadyExistsError(prepared.Repository, prepared.FullPath())
	}

	if s.maxRecords > 0 && len(s.records) >= s.maxRecords {
		return nil, &metadata.StoreError{
			Code:    metadata.ErrIOError,
			Message: "memory store record limit reached",
		}
	}

	prepared.ID = s.nextID
	s.nextID++

	s.records[prepared.ID] = prepared
	s.byPath[key] = prepared.ID

	return prepared.Clone(), nil
}

func (s *MemoryMetadataStore) Get(ctx context.Context, id int64) (*metadata.FileRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, errClosed()
	}

	rec, ok := s.records[id]
	if !ok {
		return nil, metadata.NewNotFoundError(id)
	}
	return rec.Clone(), nil
}

func (s *MemoryMetadataStore) GetByPath(ctx context.Context, repository, dir, name string) (*metadata.FileRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, errClosed()
	}

	id, ok := s.byPath[pathKey(repository, dir, name)]
	if !ok {
		return nil, metadata.NewPathNotFoundError(repository, metadata.JoinRecordPath(dir, name))
	}
	return s.records[id].Clone(), nil
}

func (s *MemoryMetadataStore) List(ctx context.Context, repository string) ([]*metadata.FileRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, errClosed()
	}

	out := make([]*metadata.FileRecord, 0)
	for _, rec := range s.records {
		if rec.Repository == repository {
			out = append(out, rec.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out, nil
}

func (s *MemoryMetadataStore) Delete(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errClosed()
	}

	rec, ok := s.records[id]
	if !ok {
		return metadata.NewNotFoundError(id)
	}

	delete(s.byPath, pathKey(rec.Repository, rec.Path, rec.Name))
	delete(s.records, id)
	return nil
}

func (s *MemoryMetadataStore) Healthcheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return errClosed()
	}
	return nil
}

func (s *MemoryMetadataStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.records = make(map[int64]*metadata.FileRecord)
	s.byPath = make(map[string]int64)
	return nil
}

func errClosed() error {
	return &metadata.StoreError{Code: metadata.ErrClosed, Message: "memory metadata store is closed"}
}
