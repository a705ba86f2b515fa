package http

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/marmos91/dittorepo/internal/logger"
)

// observe logs every request and records it in the HTTP metrics.
func (a *HTTPAdapter) observe() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		duration := time.Since(start)
		status := c.Writer.Status()

		a.metrics.RecordRequest(c.Request.Method, route, status, duration)
		logger.Debug("HTTP %s %s from %s -> %d (%v)",
			c.Request.Method, c.Request.URL.Path, c.ClientIP(), status, duration)
	}
}

// rateLimit rejects requests once the client's bucket is empty.
func (a *HTTPAdapter) rateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		allowed := a.limiter.Allow(c.ClientIP())
		a.metrics.SetRateLimitClients(a.limiter.Clients())
		if allowed {
			c.Next()
			return
		}
		a.metrics.RecordRateLimited()
		c.AbortWithStatusJSON(http.StatusTooManyRequests, errorBody{Error: errorDetail{
			Code:    "rate_limited",
			Kind:    "validation",
			Message: "too many requests",
		}})
	}
}

// recoverPanics turns a handler panic into a 500 with the stack as diagnostic.
func (a *HTTPAdapter) recoverPanics() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				stack := string(debug.Stack())
				logger.Error("HTTP handler panic on %s %s: %v\n%s", c.Request.Method, c.Request.URL.Path, rec, stack)
				c.AbortWithStatusJSON(http.StatusInternalServerError, errorBody{Error: errorDetail{
					Code:       "internal",
					Kind:       "internal",
					Message:    fmt.Sprintf("panic: %v", rec),
					Diagnostic: stack,
				}})
			}
		}()
		c.Next()
	}
}
