package ratelimiter

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"
)

// defaultMaxClients bounds the number of tracked client buckets.
const defaultMaxClients = 4096

// RateLimiter throttles requests per client key using one token bucket per key.
//
// Buckets live in a bounded LRU table: a client that has been quiet long
// enough to fall out of the table simply starts over with a full bucket.
//
// Special cases:
//   - requestsPerSecond = 0: no limiting, Allow always returns true
//   - burst = 0: burst defaults to requestsPerSecond
//
// All methods are safe for concurrent use.
type RateLimiter struct {
	limit   rate.Limit
	burst   int
	enabled bool

	mu      sync.Mutex
	buckets *lru.Cache[string, *rate.Limiter]
}

// New creates a keyed RateLimiter. maxClients <= 0 uses a default bound.
func New(requestsPerSecond, burst uint, maxClients int) *RateLimiter {
	if maxClients <= 0 {
		maxClients = defaultMaxClients
	}
	if burst == 0 {
		burst = requestsPerSecond
	}

	buckets, err := lru.New[string, *rate.Limiter](maxClients)
	if err != nil {
		// only returned for a non-positive size, which is excluded above
		panic(err)
	}

	return &RateLimiter{
		limit:   rate.Limit(requestsPerSecond),
		burst:   int(burst),
		enabled: requestsPerSecond > 0,
		buckets: buckets,
	}
}

// Enabled reports whether the limiter enforces anything.
func (r *RateLimiter) Enabled() bool {
	return r.enabled
}

// Allow consumes one token from the bucket of key, returning false when the
// bucket is empty.
func (r *RateLimiter) Allow(key string) bool {
	if !r.enabled {
		return true
	}
	return r.bucket(key).Allow()
}

// Clients returns the number of tracked buckets.
func (r *RateLimiter) Clients() int {
	return r.buckets.Len()
}

func (r *RateLimiter) bucket(key string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	if l, ok := r.buckets.Get(key); ok {
		return l
	}

	l := rate.NewLimiter(r.limit, r.burst)
	r.buckets.Add(key, l)
	return l
}
