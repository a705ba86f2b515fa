package metrics

import "time"

// RepositoryMetrics provides observability for repository facade operations.
//
// Every facade operation goes through the repository's executor, which reports
// the operation name, its classified outcome and its duration here.
//
// This interface is optional - if not provided to a repository, operations
// proceed without metrics collection (zero overhead).
type RepositoryMetrics interface {
	// RecordOperation records a completed operation.
	//
	// Parameters:
	//   - repository: Repository name
	//   - operation: Operation name (e.g., "list", "register", "file")
	//   - status: One of the Status* constants
	//   - duration: Time taken to complete the operation
	RecordOperation(repository, operation, status string, duration time.Duration)

	// RecordBytes records bytes moved through stream servants.
	//
	// Parameters:
	//   - repository: Repository name
	//   - direction: "read" or "write"
	//   - bytes: Number of bytes transferred
	RecordBytes(repository, direction string, bytes int64)

	// SetRegisteredFiles updates the number of records known for a repository.
	SetRegisteredFiles(repository string, count int64)
}

// NewNoopRepositoryMetrics returns a RepositoryMetrics that records nothing.
func NewNoopRepositoryMetrics() RepositoryMetrics {
	return noopRepositoryMetrics{}
}

type noopRepositoryMetrics struct{}

func (noopRepositoryMetrics) RecordOperation(repository, operation, status string, duration time.Duration) {
}
func (noopRepositoryMetrics) RecordBytes(repository, direction string, bytes int64) {}
func (noopRepositoryMetrics) SetRegisteredFiles(repository string, count int64)     {}
