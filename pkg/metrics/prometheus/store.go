package prometheus

import (
	"time"

	"github.com/marmos91/dittorepo/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// storeMetrics is the Prometheus implementation of metrics.StoreMetrics.
type storeMetrics struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
}

// NewStoreMetrics creates a new Prometheus-backed StoreMetrics instance.
//
// Returns a no-op implementation if metrics are not enabled (InitRegistry not called).
func NewStoreMetrics() metrics.StoreMetrics {
	if !metrics.IsEnabled() {
		return metrics.NewNoopStoreMetrics()
	}
	return newStoreMetrics(metrics.GetRegistry())
}

func newStoreMetrics(reg prometheus.Registerer) *storeMetrics {
	return &storeMetrics{
		operationsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittorepo_metadata_operations_total",
				Help: "Total number of metadata store operations by store type, operation, and status",
			},
			[]string{"store_type", "operation", "status"},
		),
		operationDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "dittorepo_metadata_operation_duration_seconds",
				Help: "Duration of metadata store operations in seconds",
				Buckets: []float64{
					0.0001, // 100µs
					0.0005, // 500µs
					0.001,  // 1ms
					0.005,  // 5ms
					0.01,   // 10ms
					0.05,   // 50ms
					0.1,    // 100ms
					0.5,    // 500ms
				},
			},
			[]string{"store_type", "operation"},
		),
	}
}

func (m *storeMetrics) RecordOperation(storeType, operation string, duration time.Duration, err error) {
	status := metrics.StatusSuccess
	if err != nil {
		status = metrics.StatusError
	}

	m.operationsTotal.WithLabelValues(storeType, operation, status).Inc()
	m.operationDuration.WithLabelValues(storeType, operation).Observe(duration.Seconds())
}
