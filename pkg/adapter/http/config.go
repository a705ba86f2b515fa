package http

import (
	"fmt"
	"time"
)

// HTTPConfig holds configuration parameters for the HTTP adapter.
//
// Default values (applied by New if zero):
//   - Port: none (0 picks a free port; the config layer defaults it to 8080)
//   - ReadTimeout: 30s
//   - WriteTimeout: 5m (large stream reads)
//   - IdleTimeout: 2m
//   - ShutdownTimeout: 30s
//   - MaxReadSize: 16MiB
//   - EventBuffer: 256
type HTTPConfig struct {
	// Enabled controls whether the HTTP adapter is active.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the TCP port to listen on. 0 picks a free port (tests).
	Port int `mapstructure:"port" validate:"min=0,max=65535" yaml:"port"`

	// ReadTimeout bounds reading a whole request including the body.
	ReadTimeout time.Duration `mapstructure:"read_timeout" validate:"min=0" yaml:"read_timeout"`

	// WriteTimeout bounds writing a response. The event feed is not affected:
	// websocket connections are hijacked.
	WriteTimeout time.Duration `mapstructure:"write_timeout" validate:"min=0" yaml:"write_timeout"`

	// IdleTimeout closes keep-alive connections idle for this long.
	IdleTimeout time.Duration `mapstructure:"idle_timeout" validate:"min=0" yaml:"idle_timeout"`

	// ShutdownTimeout is the maximum time to wait for in-flight requests.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"min=0" yaml:"shutdown_timeout"`

	// MaxReadSize caps the length of a single stream read or region.
	MaxReadSize int `mapstructure:"max_read_size" validate:"min=0" yaml:"max_read_size"`

	// EventBuffer is the per-client event queue of the websocket feed.
	EventBuffer int `mapstructure:"event_buffer" validate:"min=0" yaml:"event_buffer"`

	// RateLimit throttles requests per client IP.
	RateLimit RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit"`
}

// RateLimitConfig configures per-client request throttling.
// RequestsPerSecond = 0 disables limiting.
type RateLimitConfig struct {
	RequestsPerSecond uint `mapstructure:"requests_per_second" yaml:"requests_per_second"`
	Burst             uint `mapstructure:"burst" yaml:"burst"`
	MaxClients        int  `mapstructure:"max_clients" validate:"min=0" yaml:"max_clients"`
}

// applyDefaults fills in zero values with sensible defaults.
func (c *HTTPConfig) applyDefaults() {
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 30 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 5 * time.Minute
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 2 * time.Minute
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 30 * time.Second
	}
	if c.MaxReadSize == 0 {
		c.MaxReadSize = 16 << 20
	}
	if c.EventBuffer == 0 {
		c.EventBuffer = 256
	}
}

func (c *HTTPConfig) validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d: must be 0-65535", c.Port)
	}
	if c.ReadTimeout < 0 || c.WriteTimeout < 0 || c.IdleTimeout < 0 {
		return fmt.Errorf("invalid timeouts: must be >= 0")
	}
	if c.ShutdownTimeout < 0 {
		return fmt.Errorf("invalid ShutdownTimeout %v: must be >= 0", c.ShutdownTimeout)
	}
	if c.MaxReadSize < 0 {
		return fmt.Errorf("invalid MaxReadSize %d: must be >= 0", c.MaxReadSize)
	}
	return nil
}
