package config

import (
	"strings"
	"time"

	httpadapter "github.com/marmos91/dittorepo/pkg/adapter/http"
	"github.com/marmos91/dittorepo/pkg/session"
	"github.com/marmos91/dittorepo/pkg/stream"
)

const (
	// DefaultStoreName is the metadata store created when none is configured.
	DefaultStoreName = "default"

	// DefaultRepositoryName is the repository created when none is configured.
	DefaultRepositoryName = "default"

	// DefaultRepositoryRoot is the root of the default repository.
	DefaultRepositoryRoot = "/tmp/dittorepo"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// This function is called after loading configuration from file and environment
// variables to fill in any missing values with sensible defaults.
//
// Default Strategy:
//   - Zero values (0, "", false, nil) are replaced with defaults
//   - Explicit values are preserved
//   - Store-specific defaults are handled by store implementations
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyServerDefaults(&cfg.Server)
	applyMetadataDefaults(&cfg.Metadata)

	// Add default repository if none configured
	if len(cfg.Repositories) == 0 {
		cfg.Repositories = []RepositoryConfig{
			{
				Name:          DefaultRepositoryName,
				Root:          DefaultRepositoryRoot,
				MetadataStore: DefaultStoreName,
			},
		}
	}

	applyRepositoryDefaults(cfg.Repositories)
	applySessionDefaults(&cfg.Sessions)
	applyAdaptersDefaults(&cfg.Adapters)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize log level to uppercase for consistent internal representation
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyServerDefaults sets server defaults.
func applyServerDefaults(cfg *ServerConfig) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	if cfg.Metrics.Port == 0 {
		cfg.Metrics.Port = 9090
	}
	if cfg.GC.Interval == 0 {
		cfg.GC.Interval = 24 * time.Hour
	}
}

// applyMetadataDefaults declares the default in-memory store when no store
// is configured at all.
func applyMetadataDefaults(cfg *MetadataConfig) {
	if len(cfg.Stores) == 0 {
		cfg.Stores = map[string]MetadataStoreConfig{
			DefaultStoreName: {Type: "memory"},
		}
	}

	for name, store := range cfg.Stores {
		if store.Type == "" {
			store.Type = "memory"
		}
		if store.Type == "sqlite" {
			if store.SQLite == nil {
				store.SQLite = make(map[string]any)
			}
			if _, ok := store.SQLite["busy_timeout"]; !ok {
				store.SQLite["busy_timeout"] = "5s"
			}
		}
		cfg.Stores[name] = store
	}
}

// applyRepositoryDefaults sets repository defaults.
func applyRepositoryDefaults(repos []RepositoryConfig) {
	for i := range repos {
		repo := &repos[i]

		// Repositories without an explicit store share the default one
		if repo.MetadataStore == "" {
			repo.MetadataStore = DefaultStoreName
		}

		// If AllowedClients is nil, initialize to empty (all allowed)
		if repo.AllowedClients == nil {
			repo.AllowedClients = []string{}
		}

		// If DeniedClients is nil, initialize to empty (none denied)
		if repo.DeniedClients == nil {
			repo.DeniedClients = []string{}
		}

		if repo.MaxImagePixels == 0 {
			repo.MaxImagePixels = stream.DefaultMaxPixels
		}

		// ReservedPrefixes left empty means "hide dotfiles"
	}
}

// applySessionDefaults sets session table defaults.
func applySessionDefaults(cfg *session.Config) {
	if cfg.MaxSessions == 0 {
		cfg.MaxSessions = 1024
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 30 * time.Minute
	}
	if cfg.MaxServantsPerSession == 0 {
		cfg.MaxServantsPerSession = 64
	}
}

// applyAdaptersDefaults sets adapter defaults.
func applyAdaptersDefaults(cfg *AdaptersConfig) {
	// Enable HTTP adapter by default if no adapters are configured
	// This ensures that a freshly loaded config (with no config file) will have
	// at least one adapter enabled and pass validation.
	// Users can explicitly set enabled: false in their config to disable it.
	if !cfg.HTTP.Enabled {
		// Port 0 means no explicit configuration was provided
		if cfg.HTTP.Port == 0 {
			cfg.HTTP.Enabled = true
		}
	}

	applyHTTPDefaults(&cfg.HTTP)
}

// applyHTTPDefaults sets HTTP adapter defaults.
func applyHTTPDefaults(cfg *httpadapter.HTTPConfig) {
	if cfg.Port == 0 {
		cfg.Port = 8080
	}

	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}

	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 5 * time.Minute
	}

	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 2 * time.Minute
	}

	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}

	if cfg.MaxReadSize == 0 {
		cfg.MaxReadSize = 16 << 20
	}

	if cfg.EventBuffer == 0 {
		cfg.EventBuffer = 256
	}

	// RateLimit left at zero disables limiting
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// This is useful for:
//   - Generating sample configuration files
//   - Testing
//   - Documentation
func GetDefaultConfig() *Config {
	cfg := &Config{
		Metadata: MetadataConfig{
			Stores: map[string]MetadataStoreConfig{
				DefaultStoreName: {
					Type:   "memory",
					Memory: map[string]any{"max_records": 0},
				},
			},
		},
		Repositories: []RepositoryConfig{
			{
				Name:             DefaultRepositoryName,
				Root:             DefaultRepositoryRoot,
				MetadataStore:    DefaultStoreName,
				ReservedPrefixes: []string{"."},
			},
		},
		Adapters: AdaptersConfig{
			HTTP: httpadapter.HTTPConfig{
				Enabled: true, // HTTP adapter enabled by default
			},
		},
	}

	ApplyDefaults(cfg)
	return cfg
}
