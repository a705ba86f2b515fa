package prometheus

import (
	"github.com/marmos91/dittorepo/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// sessionMetrics is the Prometheus implementation of metrics.SessionMetrics.
type sessionMetrics struct {
	activeSessions prometheus.Gauge
	sessionsClosed *prometheus.CounterVec
	openServants   *prometheus.GaugeVec
}

// NewSessionMetrics creates a new Prometheus-backed SessionMetrics instance.
//
// Returns a no-op implementation if metrics are not enabled (InitRegistry not called).
func NewSessionMetrics() metrics.SessionMetrics {
	if !metrics.IsEnabled() {
		return metrics.NewNoopSessionMetrics()
	}
	return newSessionMetrics(metrics.GetRegistry())
}

func newSessionMetrics(reg prometheus.Registerer) *sessionMetrics {
	return &sessionMetrics{
		activeSessions: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "dittorepo_sessions_active",
				Help: "Current number of open client sessions",
			},
		),
		sessionsClosed: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittorepo_sessions_closed_total",
				Help: "Total number of closed sessions by reason",
			},
			[]string{"reason"},
		),
		openServants: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "dittorepo_servants_open",
				Help: "Current number of open stream servants by kind",
			},
			[]string{"kind"},
		),
	}
}

func (m *sessionMetrics) SetActiveSessions(count int) {
	m.activeSessions.Set(float64(count))
}

func (m *sessionMetrics) RecordSessionClosed(reason string) {
	m.sessionsClosed.WithLabelValues(reason).Inc()
}

func (m *sessionMetrics) RecordServantOpened(kind string) {
	m.openServants.WithLabelValues(kind).Inc()
}

func (m *sessionMetrics) RecordServantClosed(kind string) {
	m.openServants.WithLabelValues(kind).Dec()
}
