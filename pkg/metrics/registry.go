// Package metrics provides Prometheus metrics collection for dittorepo components.
//
// All metrics are optional - if not initialized, components use no-op implementations
// that have zero overhead. This allows dittorepo to run with or without metrics
// collection enabled.
//
// Usage:
//
//	// Initialize global registry (typically in main.go)
//	metrics.InitRegistry()
//
//	// Create metrics instances for components
//	repoMetrics := prometheus.NewRepositoryMetrics()
//	httpMetrics := prometheus.NewHTTPMetrics()
//
//	// and hand them over through the component configs
//	repo, err := repository.New(ctx, repository.Config{
//		Name:    "photos",
//		Root:    "/srv/photos",
//		Store:   store,
//		Metrics: repoMetrics, // nil for no-op behavior
//	})
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// registry is the global Prometheus registry for all dittorepo metrics
	// Protected by registryOnce for write-once, read-many pattern
	registry     *prometheus.Registry
	registryOnce sync.Once
)

// InitRegistry initializes the global Prometheus registry.
//
// This must be called before creating any metrics instances. It's safe to call
// multiple times - subsequent calls are ignored.
//
// If not called, GetRegistry() will return nil and all metrics constructors
// will return no-op implementations.
func InitRegistry() {
	registryOnce.Do(func() {
		registry = prometheus.NewRegistry()
	})
}

// GetRegistry returns the global Prometheus registry.
//
// Returns nil if InitRegistry() has not been called, indicating metrics
// are disabled.
func GetRegistry() *prometheus.Registry {
	return registry
}

// IsEnabled returns true if metrics collection is enabled.
func IsEnabled() bool {
	return GetRegistry() != nil
}

// Operation outcome labels shared by the repository and store metrics.
const (
	StatusSuccess      = "success"
	StatusValidation   = "validation_error"
	StatusInternal     = "internal_error"
	StatusNotSupported = "not_supported"
	StatusError        = "error"
)
