package metrics

import "time"

// StoreMetrics provides observability for metadata store operations.
//
// Example usage:
//
//	// With metrics enabled
//	store = metadata.Instrument(store, "badger", prometheus.NewStoreMetrics())
//
//	// Without metrics (no-op)
//	store = metadata.Instrument(store, "badger", nil)
type StoreMetrics interface {
	// RecordOperation records a completed store operation.
	//
	// Parameters:
	//   - storeType: Type of metadata store (e.g., "memory", "badger", "sqlite")
	//   - operation: Store method (e.g., "put", "get", "list")
	//   - duration: Time taken
	//   - err: Error if failed
	RecordOperation(storeType, operation string, duration time.Duration, err error)
}

// NewNoopStoreMetrics returns a StoreMetrics that records nothing.
func NewNoopStoreMetrics() StoreMetrics {
	return noopStoreMetrics{}
}

type noopStoreMetrics struct{}

func (noopStoreMetrics) RecordOperation(storeType, operation string, duration time.Duration, err error) {
}
