package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/marmos91/dittorepo/internal/logger"
	"github.com/marmos91/dittorepo/pkg/adapter"
	"github.com/marmos91/dittorepo/pkg/events"
	"github.com/marmos91/dittorepo/pkg/gc"
	"github.com/marmos91/dittorepo/pkg/metrics"
	"github.com/marmos91/dittorepo/pkg/registry"
	"github.com/marmos91/dittorepo/pkg/session"
	"github.com/marmos91/dittorepo/pkg/watcher"
)

// DefaultShutdownTimeout bounds adapter shutdown when Options leaves it zero.
const DefaultShutdownTimeout = 30 * time.Second

// DittoServer manages the lifecycle of the protocol adapters and the
// background services that share one registry.
//
// Architecture:
// Adapters (HTTP today) expose the registry's repositories. Alongside them
// the server runs one filesystem watcher per repository configured with
// watch enabled, the record garbage collector and the optional metrics server. Sessions and the event bus
// are torn down after the last adapter stops, so no stream outlives the
// transports that handed it out.
//
// Lifecycle:
//  1. Creation: New() with the registry and shared services
//  2. Registration: AddAdapter() for each protocol
//  3. Startup: Serve() starts watchers, metrics and adapters concurrently
//  4. Shutdown: Context cancellation stops adapters in reverse order, then
//     closes sessions and the event bus
//
// Thread safety:
// AddAdapter() may be called concurrently before Serve(). Serve() may only
// be called once per server instance.
//
// Example usage:
//
//	srv := server.New(reg, server.Options{Sessions: sessions, Events: bus})
//	srv.AddAdapter(httpadapter.New(httpConfig, deps))
//
//	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
//	defer cancel()
//
//	if err := srv.Serve(ctx); err != nil && err != context.Canceled {
//	    log.Fatal(err)
//	}
type DittoServer struct {
	registry *registry.Registry
	opts     Options

	// adapters contains all registered protocol adapters
	adapters []adapter.Adapter

	// mu protects the adapters slice and serving flag
	mu     sync.Mutex
	served bool
}

// Options are the shared services the server owns the lifecycle of.
type Options struct {
	// Sessions is shut down after all adapters stop. Optional.
	Sessions *session.Manager

	// Events receives watcher notifications and is closed on shutdown.
	// Without it no watchers are started.
	Events *events.Bus

	// MetricsServer, if set, runs for the lifetime of Serve.
	MetricsServer *metrics.Server

	// RecordGC configures the orphaned record collector. Disabled by default.
	RecordGC gc.Config

	// ShutdownTimeout bounds the Stop() calls on adapters.
	ShutdownTimeout time.Duration
}

// New creates a server over reg.
//
// Panics if reg is nil (indicates programmer error).
func New(reg *registry.Registry, opts Options) *DittoServer {
	if reg == nil {
		panic("registry cannot be nil")
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = DefaultShutdownTimeout
	}

	return &DittoServer{
		registry: reg,
		opts:     opts,
		adapters: make([]adapter.Adapter, 0, 2),
	}
}

// AddAdapter registers a protocol adapter and injects the registry into it.
//
// Returns an error if an adapter for the same protocol or port is already
// registered.
//
// Panics if the adapter is nil or Serve() has already been called.
func (s *DittoServer) AddAdapter(a adapter.Adapter) error {
	if a == nil {
		panic("adapter cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.served {
		panic("cannot add adapter after Serve() has been called")
	}

	protocol := a.Protocol()
	port := a.Port()

	for _, existing := range s.adapters {
		if existing.Protocol() == protocol {
			return fmt.Errorf("adapter for protocol %s already registered", protocol)
		}
		if port != 0 && existing.Port() == port {
			return fmt.Errorf("port %d already in use by %s adapter", port, existing.Protocol())
		}
	}

	a.SetRegistry(s.registry)
	s.adapters = append(s.adapters, a)

	logger.Info("Registered %s adapter on port %d", protocol, port)
	return nil
}

// Serve starts everything and blocks until the context is cancelled or an
// adapter fails.
//
// Returns:
//   - context.Canceled (or the context's error) after a cancellation-driven shutdown
//   - an error naming the adapter if one failed
//   - an error if no adapters are registered or Serve was already called
func (s *DittoServer) Serve(ctx context.Context) error {
	s.mu.Lock()
	if s.served {
		s.mu.Unlock()
		return fmt.Errorf("serve has already been called on this server instance")
	}
	s.served = true
	if len(s.adapters) == 0 {
		s.mu.Unlock()
		return fmt.Errorf("no adapters registered; call AddAdapter() before Serve()")
	}
	adapters := make([]adapter.Adapter, len(s.adapters))
	copy(adapters, s.adapters)
	s.mu.Unlock()

	// Background services stop when bgCtx is cancelled.
	bgCtx, stopBackground := context.WithCancel(context.Background())
	var bg sync.WaitGroup
	collector := s.newCollector()
	defer func() {
		stopBackground()
		bg.Wait()
		s.stopCollector(collector)
		s.closeShared()
	}()

	if err := s.startWatchers(bgCtx, &bg); err != nil {
		return err
	}
	collector.Start()
	if ms := s.opts.MetricsServer; ms != nil {
		bg.Add(1)
		go func() {
			defer bg.Done()
			if err := ms.Start(bgCtx); err != nil {
				logger.Error("Metrics server error: %v", err)
			}
		}()
	}

	logger.Info("Starting server with %d adapter(s) and %d repositories",
		len(adapters), s.registry.CountRepositories())

	errChan := make(chan adapterError, len(adapters))
	var wg sync.WaitGroup

	for _, adp := range adapters {
		wg.Add(1)
		go func(a adapter.Adapter) {
			defer wg.Done()

			protocol := a.Protocol()
			logger.Info("Starting %s adapter on port %d", protocol, a.Port())

			if err := a.Serve(ctx); err != nil {
				if !errors.Is(err, context.Canceled) && ctx.Err() == nil {
					logger.Error("%s adapter failed: %v", protocol, err)
					errChan <- adapterError{protocol: protocol, err: err}
				}
				return
			}
			if ctx.Err() == nil {
				// returned without being asked to: treat as a failure
				errChan <- adapterError{protocol: protocol, err: fmt.Errorf("stopped unexpectedly")}
			}
			logger.Info("%s adapter stopped", protocol)
		}(adp)
	}

	var shutdownErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received (reason: %v)", ctx.Err())
		s.stopAllAdapters(adapters)
		shutdownErr = ctx.Err()

	case adapterErr := <-errChan:
		logger.Error("Adapter %s failed: %v - initiating shutdown of all adapters",
			adapterErr.protocol, adapterErr.err)
		s.stopAllAdapters(adapters)
		shutdownErr = fmt.Errorf("%s adapter error: %w", adapterErr.protocol, adapterErr.err)
	}

	logger.Debug("Waiting for all adapters to complete shutdown")
	wg.Wait()

	logger.Info("Server stopped gracefully")
	return shutdownErr
}

// adapterError pairs an adapter protocol name with its error for better error reporting.
type adapterError struct {
	protocol string
	err      error
}

// startWatchers runs a watcher for every repository with watching enabled.
// A watcher that cannot be created fails startup.
func (s *DittoServer) startWatchers(ctx context.Context, wg *sync.WaitGroup) error {
	if s.opts.Events == nil {
		return nil
	}

	for _, entry := range s.registry.Entries() {
		if !entry.Watch {
			continue
		}
		w, err := watcher.New(watcher.Config{
			Repository: entry.Name,
			Root:       entry.Repository.RootPath(),
			Skip:       entry.Repository.IsReserved,
		}, s.opts.Events)
		if err != nil {
			return fmt.Errorf("repository %s: %w", entry.Name, err)
		}

		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			if err := w.Run(ctx); err != nil {
				logger.Error("Watcher for repository %s stopped: %v", name, err)
			}
		}(entry.Name)
	}
	return nil
}

// newCollector builds the record collector over the registry's current
// repositories.
func (s *DittoServer) newCollector() *gc.Collector {
	return gc.NewCollector(func() []gc.Repository {
		entries := s.registry.Entries()
		repos := make([]gc.Repository, 0, len(entries))
		for _, entry := range entries {
			// records of read-only repositories are left alone
			if entry.ReadOnly {
				continue
			}
			repos = append(repos, entry.Repository)
		}
		return repos
	}, s.opts.RecordGC)
}

func (s *DittoServer) stopCollector(c *gc.Collector) {
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()
	if err := c.Stop(ctx); err != nil {
		logger.Warn("Record collector did not stop in time: %v", err)
	}
}

// stopAllAdapters initiates graceful shutdown of all adapters in reverse
// registration order. Errors are logged; the remaining adapters are still
// stopped.
func (s *DittoServer) stopAllAdapters(adapters []adapter.Adapter) {
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()

	logger.Info("Initiating graceful shutdown of %d adapter(s)", len(adapters))

	for i := len(adapters) - 1; i >= 0; i-- {
		adp := adapters[i]
		protocol := adp.Protocol()

		logger.Debug("Stopping %s adapter (port %d)", protocol, adp.Port())

		if err := adp.Stop(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Error stopping %s adapter: %v", protocol, err)
		}
	}
}

// closeShared releases the services adapters handed out: every open stream
// (through its session) and every event feed.
func (s *DittoServer) closeShared() {
	if s.opts.Sessions != nil {
		logger.Debug("Closing %d session(s)", s.opts.Sessions.Len())
		s.opts.Sessions.Shutdown()
	}
	if s.opts.Events != nil {
		s.opts.Events.Close()
	}
}

// Adapters returns a snapshot of currently registered adapters.
func (s *DittoServer) Adapters() []adapter.Adapter {
	s.mu.Lock()
	defer s.mu.Unlock()

	adapters := make([]adapter.Adapter, len(s.adapters))
	copy(adapters, s.adapters)
	return adapters
}
