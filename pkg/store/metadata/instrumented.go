package metadata

import (
	"context"
	"time"

	"github.com/marmos91/dittorepo/pkg/metrics"
)

// Instrument wraps store so every call is reported to m under storeType.
// A nil m returns store unchanged.
func Instrument(store Store, storeType string, m metrics.StoreMetrics) Store {
	if m == nil {
		return store
	}
	return &instrumentedStore{Store: store, storeType: storeType, metrics: m}
}

type instrumentedStore struct {
	Store
	storeType string
	metrics   metrics.StoreMetrics
}

func (s *instrumentedStore) record(op string, start time.Time, err error) {
	s.metrics.RecordOperation(s.storeType, op, time.Since(start), err)
}

func (s *instrumentedStore) Put(ctx context.Context, rec *FileRecord) (out *FileRecord, err error) {
	defer func(start time.Time) { s.record("put", start, err) }(time.Now())
	return s.Store.Put(ctx, rec)
}

func (s *instrumentedStore) Get(ctx context.Context, id int64) (out *FileRecord, err error) {
	defer func(start time.Time) { s.record("get", start, err) }(time.Now())
	return s.Store.Get(ctx, id)
}

func (s *instrumentedStore) GetByPath(ctx context.Context, repository, dir, name string) (out *FileRecord, err error) {
	defer func(start time.Time) { s.record("get_by_path", start, err) }(time.Now())
	return s.Store.GetByPath(ctx, repository, dir, name)
}

func (s *instrumentedStore) List(ctx context.Context, repository string) (out []*FileRecord, err error) {
	defer func(start time.Time) { s.record("list", start, err) }(time.Now())
	return s.Store.List(ctx, repository)
}

func (s *instrumentedStore) Delete(ctx context.Context, id int64) (err error) {
	defer func(start time.Time) { s.record("delete", start, err) }(time.Now())
	return s.Store.Delete(ctx, id)
}
