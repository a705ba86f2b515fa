package metrics

import "time"

// HTTPMetrics provides observability for the HTTP adapter.
type HTTPMetrics interface {
	// RecordRequest records a completed request.
	//
	// Parameters:
	//   - method: HTTP method
	//   - route: Route template (e.g., "/api/v1/repositories/:repo/list"), never the raw URL
	//   - status: Response status code
	//   - duration: Time taken to serve the request
	RecordRequest(method, route string, status int, duration time.Duration)

	// RecordRateLimited records a request rejected by the rate limiter.
	RecordRateLimited()

	// SetEventSubscribers updates the number of connected event feed clients.
	SetEventSubscribers(count int)

	// SetRateLimitClients updates the number of client buckets the rate
	// limiter currently tracks.
	SetRateLimitClients(count int)
}

// NewNoopHTTPMetrics returns an HTTPMetrics that records nothing.
func NewNoopHTTPMetrics() HTTPMetrics {
	return noopHTTPMetrics{}
}

type noopHTTPMetrics struct{}

func (noopHTTPMetrics) RecordRequest(method, route string, status int, duration time.Duration) {}
func (noopHTTPMetrics) RecordRateLimited()                                                   {}
func (noopHTTPMetrics) SetEventSubscribers(count int)                                        {}
func (noopHTTPMetrics) SetRateLimitClients(count int)                                        {}
