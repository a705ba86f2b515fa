package config

import (
	"fmt"

	"github.com/marmos91/dittorepo/pkg/adapter"
	httpadapter "github.com/marmos91/dittorepo/pkg/adapter/http"
	"github.com/marmos91/dittorepo/pkg/events"
	"github.com/marmos91/dittorepo/pkg/metrics"
	"github.com/marmos91/dittorepo/pkg/session"
)

// AdapterDependencies are the shared components handed to every adapter.
type AdapterDependencies struct {
	// Sessions is required.
	Sessions *session.Manager

	// Events backs the event feed. Nil disables it.
	Events *events.Bus

	// HTTPMetrics is optional (nil = no metrics).
	HTTPMetrics metrics.HTTPMetrics
}

// CreateAdapters creates all enabled protocol adapters from the configuration.
//
// Returns:
//   - []adapter.Adapter: List of enabled adapters ready to be added to the server
//   - error: Any error during adapter creation
func CreateAdapters(cfg *Config, deps AdapterDependencies) ([]adapter.Adapter, error) {
	if deps.Sessions == nil {
		return nil, fmt.Errorf("adapters require a session manager")
	}

	var adapters []adapter.Adapter

	if cfg.Adapters.HTTP.Enabled {
		httpAdapter := httpadapter.New(cfg.Adapters.HTTP, httpadapter.Dependencies{
			Sessions: deps.Sessions,
			Events:   deps.Events,
			Metrics:  deps.HTTPMetrics,
		})
		adapters = append(adapters, httpAdapter)
	}

	if len(adapters) == 0 {
		return nil, fmt.Errorf("no adapters enabled in configuration")
	}

	return adapters, nil
}
