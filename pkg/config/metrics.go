package config

import (
	"github.com/marmos91/dittorepo/pkg/metrics"
	promMetrics "github.com/marmos91/dittorepo/pkg/metrics/prometheus"
)

// MetricsResult contains all metrics-related components created from configuration.
type MetricsResult struct {
	// Server is the HTTP server exposing Prometheus metrics (nil if disabled)
	Server *metrics.Server

	// Repository, Session, HTTP and Store are never nil; they are no-ops
	// when metrics are disabled.
	Repository metrics.RepositoryMetrics
	Session    metrics.SessionMetrics
	HTTP       metrics.HTTPMetrics
	Store      metrics.StoreMetrics
}

// InitializeMetrics creates and initializes all metrics components based on configuration.
//
// If metrics are enabled in the configuration:
//   - Initializes the global Prometheus registry
//   - Creates the metrics HTTP server
//   - Creates Prometheus-backed metrics instances for all components
//
// If metrics are disabled:
//   - Returns nil server
//   - Returns no-op metrics implementations (zero overhead)
//
// health backs the server's /healthz endpoint and may be nil.
func InitializeMetrics(cfg *Config, health metrics.HealthFunc) *MetricsResult {
	if !cfg.Server.Metrics.Enabled {
		return &MetricsResult{
			Repository: metrics.NewNoopRepositoryMetrics(),
			Session:    metrics.NewNoopSessionMetrics(),
			HTTP:       metrics.NewNoopHTTPMetrics(),
			Store:      metrics.NewNoopStoreMetrics(),
		}
	}

	// Initialize global Prometheus registry
	metrics.InitRegistry()

	server := metrics.NewServer(metrics.ServerConfig{
		Port:   cfg.Server.Metrics.Port,
		Health: health,
	})

	return &MetricsResult{
		Server:     server,
		Repository: promMetrics.NewRepositoryMetrics(),
		Session:    promMetrics.NewSessionMetrics(),
		HTTP:       promMetrics.NewHTTPMetrics(),
		Store:      promMetrics.NewStoreMetrics(),
	}
}
