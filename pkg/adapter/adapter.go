package adapter

import (
	"context"

	"github.com/marmos91/dittorepo/pkg/registry"
)

// Adapter represents a protocol-specific front end that can be managed by the
// server.
//
// Each adapter exposes the registered repositories over one transport (HTTP
// today) and provides a unified interface for lifecycle management. All
// adapters share the same registry, so every transport sees the same
// repositories, records and sessions.
//
// Lifecycle:
//  1. Creation: Adapter is created with protocol-specific configuration
//  2. Registry injection: SetRegistry() provides shared repository access
//  3. Startup: Serve() starts the protocol server and blocks until shutdown
//  4. Shutdown: Stop() initiates graceful shutdown with timeout
//
// Thread safety:
// Implementations must be safe for concurrent use. SetRegistry() is called
// once before Serve(), but Stop() may be called concurrently with Serve().
type Adapter interface {
	// Serve starts the protocol server and blocks until the context is cancelled
	// or an unrecoverable error occurs.
	//
	// When the context is cancelled, Serve must initiate graceful shutdown:
	//   - Stop accepting new connections
	//   - Wait for active requests to complete (with timeout)
	//   - Clean up resources
	//   - Return context.Canceled or nil
	//
	// If Serve returns before context cancellation, the server treats it as
	// a fatal error and stops all other adapters.
	Serve(ctx context.Context) error

	// SetRegistry injects the shared registry containing all stores and
	// repositories.
	//
	// This method is called exactly once by the server before Serve() is called.
	SetRegistry(reg *registry.Registry)

	// Stop initiates graceful shutdown of the protocol server.
	//
	// This method may be called concurrently with Serve() during shutdown.
	// Implementations must:
	//   - Be safe to call multiple times (idempotent)
	//   - Be safe to call concurrently with Serve()
	//   - Respect the context timeout for shutdown operations
	Stop(ctx context.Context) error

	// Protocol returns the human-readable protocol name for logging and metrics.
	//
	// Examples: "HTTP"
	Protocol() string

	// Port returns the TCP port the adapter is listening on.
	//
	// Returns the configured port before Serve() and the bound port afterwards
	// (they differ only when the configured port is 0).
	Port() int
}
