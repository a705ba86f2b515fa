// Package gc provides garbage collection for orphaned file records.
//
// A record is orphaned when the file it describes no longer exists under the
// repository root. This happens when:
//   - A registered file is deleted through the repository (records are kept)
//   - A file is removed or renamed outside the service
//   - A root is restored from an older backup
//
// Orphaned records still resolve by ID but can never be opened. The collector
// removes them so the registry reflects what is on disk.
package gc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/marmos91/dittorepo/internal/logger"
	"github.com/marmos91/dittorepo/pkg/store/metadata"
)

// Repository is the part of a repository the collector needs.
type Repository interface {
	Name() string
	Orphans(ctx context.Context) ([]*metadata.FileRecord, error)
	Unregister(ctx context.Context, id int64) error
}

// Collector performs periodic garbage collection on repository records.
//
// The collector runs in the background and periodically scans every
// repository for orphaned records and unregisters them.
//
// Thread Safety: Safe for concurrent use.
type Collector struct {
	repositories func() []Repository
	config       Config

	// runMu serializes collections so RunNow never races the worker
	runMu    sync.Mutex
	stopOnce sync.Once
	started  bool
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// Config contains configuration for the garbage collector.
type Config struct {
	// Enabled controls whether periodic collection is active (default: false)
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Interval is how often to run garbage collection (default: 24h)
	Interval time.Duration `mapstructure:"interval" validate:"gte=0" yaml:"interval"`

	// DryRun mode logs what would be unregistered without touching the store
	DryRun bool `mapstructure:"dry_run" yaml:"dry_run"`
}

// NewCollector creates a new garbage collector.
//
// repositories is called at the start of every run, so repositories added
// or removed later are picked up. The collector is not started.
func NewCollector(repositories func() []Repository, config Config) *Collector {
	if config.Interval == 0 {
		config.Interval = 24 * time.Hour
	}

	return &Collector{
		repositories: repositories,
		config:       config,
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}
}

// Start begins background garbage collection. It does nothing when the
// collector is disabled. Call Start at most once.
func (c *Collector) Start() {
	if !c.config.Enabled {
		logger.Info("Record garbage collection disabled")
		return
	}

	logger.Info("Starting record garbage collector: interval=%s dry_run=%v",
		c.config.Interval, c.config.DryRun)

	c.started = true
	go c.worker()
}

// Stop stops the garbage collector and waits for it to finish.
//
// Returns the context's error if ctx expires before the worker exits.
// Safe to call multiple times.
func (c *Collector) Stop(ctx context.Context) error {
	if !c.started {
		return nil
	}

	c.stopOnce.Do(func() { close(c.stopCh) })

	select {
	case <-c.doneCh:
		logger.Info("Record garbage collector stopped")
		return nil
	case <-ctx.Done():
		logger.Warn("Record garbage collector shutdown timeout")
		return ctx.Err()
	}
}

// RunNow runs one collection immediately and blocks until it completes or
// ctx is cancelled.
func (c *Collector) RunNow(ctx context.Context) (*Stats, error) {
	logger.Info("Running record garbage collection (manual trigger)")
	return c.collect(ctx)
}

// worker is the background goroutine that runs periodic garbage collection.
func (c *Collector) worker() {
	defer close(c.doneCh)

	ticker := time.NewTicker(c.config.Interval)
	defer ticker.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-c.stopCh
		cancel()
	}()

	for {
		select {
		case <-ticker.C:
			stats, err := c.collect(ctx)
			if err != nil {
				logger.Error("Record garbage collection failed: %v", err)
			} else {
				logger.Info("Record garbage collection completed: %s", stats.Summary())
			}

		case <-c.stopCh:
			return
		}
	}
}

// collect performs a single garbage collection run.
//
// For every repository:
//  1. Find the records whose file is gone
//  2. Unregister them one by one (unless DryRun)
//
// A repository that cannot be scanned is counted and skipped; only
// cancellation aborts the run.
func (c *Collector) collect(ctx context.Context) (*Stats, error) {
	c.runMu.Lock()
	defer c.runMu.Unlock()

	stats := &Stats{StartTime: time.Now()}
	defer func() { stats.EndTime = time.Now() }()

	for _, repo := range c.repositories() {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		stats.RepositoryCount++

		orphans, err := repo.Orphans(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return stats, ctx.Err()
			}
			logger.Warn("GC: failed to scan repository %s: %v", repo.Name(), err)
			stats.FailedRepositories++
			continue
		}
		stats.OrphanedCount += uint64(len(orphans))

		if len(orphans) == 0 {
			continue
		}

		if c.config.DryRun {
			logger.Info("GC: DRY RUN - would unregister %d record(s) in %s:", len(orphans), repo.Name())
			for i, rec := range orphans {
				if i == 10 {
					logger.Info("  ... and %d more", len(orphans)-10)
					break
				}
				logger.Info("  - %d %s", rec.ID, rec.FullPath())
			}
			continue
		}

		for _, rec := range orphans {
			if err := ctx.Err(); err != nil {
				return stats, err
			}
			if err := repo.Unregister(ctx, rec.ID); err != nil {
				logger.Debug("GC: failed to unregister %d in %s: %v", rec.ID, repo.Name(), err)
				stats.FailedCount++
				continue
			}
			stats.DeletedCount++
		}
	}

	return stats, nil
}

// Stats contains statistics from a garbage collection run.
type Stats struct {
	StartTime          time.Time // When collection started
	EndTime            time.Time // When collection ended
	RepositoryCount    uint64    // Repositories visited
	FailedRepositories uint64    // Repositories that could not be scanned
	OrphanedCount      uint64    // Orphaned records found
	DeletedCount       uint64    // Orphaned records unregistered
	FailedCount        uint64    // Orphaned records that failed to unregister
}

// Duration returns the total collection duration.
func (s *Stats) Duration() time.Duration {
	if s.EndTime.IsZero() {
		return time.Since(s.StartTime)
	}
	return s.EndTime.Sub(s.StartTime)
}

// Summary returns a human-readable summary of the collection.
func (s *Stats) Summary() string {
	return fmt.Sprintf("repositories=%d failed_repositories=%d orphaned=%d unregistered=%d failed=%d duration=%s",
		s.RepositoryCount, s.FailedRepositories, s.OrphanedCount,
		s.DeletedCount, s.FailedCount, s.Duration())
}
