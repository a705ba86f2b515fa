// Package prometheus contains the Prometheus-backed implementations of the
// interfaces in package metrics.
package prometheus

import (
	"time"

	"github.com/marmos91/dittorepo/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// repositoryMetrics is the Prometheus implementation of metrics.RepositoryMetrics.
type repositoryMetrics struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	bytesTransferred  *prometheus.CounterVec
	registeredFiles   *prometheus.GaugeVec
}

// NewRepositoryMetrics creates a new Prometheus-backed RepositoryMetrics instance.
//
// Returns a no-op implementation if metrics are not enabled (InitRegistry not called).
func NewRepositoryMetrics() metrics.RepositoryMetrics {
	if !metrics.IsEnabled() {
		return metrics.NewNoopRepositoryMetrics()
	}
	return newRepositoryMetrics(metrics.GetRegistry())
}

func newRepositoryMetrics(reg prometheus.Registerer) *repositoryMetrics {
	return &repositoryMetrics{
		operationsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittorepo_repository_operations_total",
				Help: "Total number of repository operations by repository, operation, and status",
			},
			[]string{"repository", "operation", "status"},
		),
		operationDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "dittorepo_repository_operation_duration_seconds",
				Help: "Duration of repository operations in seconds",
				Buckets: []float64{
					0.0001, // 100µs
					0.001,  // 1ms
					0.01,   // 10ms
					0.1,    // 100ms
					1.0,    // 1s
					10.0,   // 10s
				},
			},
			[]string{"repository", "operation"},
		),
		bytesTransferred: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittorepo_stream_bytes_total",
				Help: "Total bytes transferred through stream servants",
			},
			[]string{"repository", "direction"},
		),
		registeredFiles: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "dittorepo_repository_registered_files",
				Help: "Number of file records registered per repository",
			},
			[]string{"repository"},
		),
	}
}

func (m *repositoryMetrics) RecordOperation(repository, operation, status string, duration time.Duration) {
	m.operationsTotal.WithLabelValues(repository, operation, status).Inc()
	m.operationDuration.WithLabelValues(repository, operation).Observe(duration.Seconds())
}

func (m *repositoryMetrics) RecordBytes(repository, direction string, bytes int64) {
	if bytes <= 0 {
		return
	}
	m.bytesTransferred.WithLabelValues(repository, direction).Add(float64(bytes))
}

func (m *repositoryMetrics) SetRegisteredFiles(repository string, count int64) {
	m.registeredFiles.WithLabelValues(repository).Set(float64(count))
}
