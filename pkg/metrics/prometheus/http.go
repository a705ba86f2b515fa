package prometheus

import (
	"strconv"
	"time"

	"github.com/marmos91/dittorepo/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// httpMetrics is the Prometheus implementation of metrics.HTTPMetrics.
type httpMetrics struct {
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	rateLimited      prometheus.Counter
	rateLimitClients prometheus.Gauge
	eventSubscribers prometheus.Gauge
}

// NewHTTPMetrics creates a new Prometheus-backed HTTPMetrics instance.
//
// Returns a no-op implementation if metrics are not enabled (InitRegistry not called).
func NewHTTPMetrics() metrics.HTTPMetrics {
	if !metrics.IsEnabled() {
		return metrics.NewNoopHTTPMetrics()
	}
	return newHTTPMetrics(metrics.GetRegistry())
}

func newHTTPMetrics(reg prometheus.Registerer) *httpMetrics {
	return &httpMetrics{
		requestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittorepo_http_requests_total",
				Help: "Total number of HTTP requests by method, route, and status code",
			},
			[]string{"method", "route", "code"},
		),
		requestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "dittorepo_http_request_duration_milliseconds",
				Help: "Duration of HTTP requests in milliseconds",
				Buckets: []float64{
					1,     // 1ms
					10,    // 10ms
					100,   // 100ms
					1000,  // 1s
					10000, // 10s
				},
			},
			[]string{"method", "route"},
		),
		rateLimited: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "dittorepo_http_rate_limited_total",
				Help: "Total number of HTTP requests rejected by the rate limiter",
			},
		),
		rateLimitClients: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "dittorepo_http_rate_limit_clients",
				Help: "Current number of client buckets tracked by the rate limiter",
			},
		),
		eventSubscribers: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "dittorepo_http_event_subscribers",
				Help: "Current number of connected event feed clients",
			},
		),
	}
}

func (m *httpMetrics) RecordRequest(method, route string, status int, duration time.Duration) {
	m.requestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(method, route).Observe(float64(duration.Microseconds()) / 1000)
}

func (m *httpMetrics) RecordRateLimited() {
	m.rateLimited.Inc()
}

func (m *httpMetrics) SetEventSubscribers(count int) {
	m.eventSubscribers.Set(float64(count))
}

func (m *httpMetrics) SetRateLimitClients(count int) {
	m.rateLimitClients.Set(float64(count))
}
