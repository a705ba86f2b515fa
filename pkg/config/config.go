package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	httpadapter "github.com/marmos91/dittorepo/pkg/adapter/http"
	"github.com/marmos91/dittorepo/pkg/gc"
	"github.com/marmos91/dittorepo/pkg/session"
	"github.com/spf13/viper"
)

// Config represents the complete dittorepo configuration.
//
// This structure captures all configurable aspects of the server including:
//   - Logging configuration
//   - Server-wide settings (shutdown, metrics)
//   - Named metadata stores (store-specific sections)
//   - Repository definitions
//   - Session limits
//   - Protocol adapter configurations
//
// Configuration sources (in order of precedence):
//  1. Environment variables (DITTOREPO_*)
//  2. Configuration file (YAML or TOML)
//  3. Default values (lowest priority)
//
// Store Configuration Pattern:
// Each store implementation defines its own configuration type. A named store
// entry selects its implementation with Type and only the section matching
// the type is decoded.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Server contains server-wide settings
	Server ServerConfig `mapstructure:"server" yaml:"server"`

	// Metadata declares the named metadata stores
	Metadata MetadataConfig `mapstructure:"metadata" yaml:"metadata"`

	// Repositories defines the repositories served to clients
	Repositories []RepositoryConfig `mapstructure:"repositories" validate:"dive" yaml:"repositories"`

	// Sessions bounds the session table
	Sessions session.Config `mapstructure:"sessions" yaml:"sessions"`

	// Adapters contains protocol adapter configurations
	Adapters AdaptersConfig `mapstructure:"adapters" yaml:"adapters"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// ServerConfig contains server-wide settings.
type ServerConfig struct {
	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`

	// Metrics configures the Prometheus endpoint
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// GC configures the collector of records whose files are gone
	GC gc.Config `mapstructure:"gc" yaml:"gc"`
}

// MetricsConfig configures the metrics HTTP server.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port serves /metrics and /healthz
	Port int `mapstructure:"port" validate:"min=0,max=65535" yaml:"port"`
}

// MetadataConfig declares the named metadata stores.
type MetadataConfig struct {
	// Stores maps a store name to its configuration. Repositories refer to
	// stores by name; several repositories may share one store.
	Stores map[string]MetadataStoreConfig `mapstructure:"stores" validate:"dive" yaml:"stores"`
}

// MetadataStoreConfig configures one metadata store.
//
// The Type field determines which store implementation is used.
// Only the corresponding type-specific configuration section is used.
type MetadataStoreConfig struct {
	// Type specifies which metadata store implementation to use
	// Valid values: memory, badger, sqlite
	Type string `mapstructure:"type" validate:"required,oneof=memory badger sqlite" yaml:"type"`

	// Memory contains memory-specific configuration (max_records)
	Memory map[string]any `mapstructure:"memory" yaml:"memory,omitempty"`

	// Badger contains BadgerDB-specific configuration (db_path, ...)
	Badger map[string]any `mapstructure:"badger" yaml:"badger,omitempty"`

	// SQLite contains SQLite-specific configuration (path, busy_timeout)
	SQLite map[string]any `mapstructure:"sqlite" yaml:"sqlite,omitempty"`
}

// RepositoryConfig defines a single repository.
type RepositoryConfig struct {
	// Name addresses the repository in requests and scopes its records
	Name string `mapstructure:"name" validate:"required,excludesall=/" yaml:"name"`

	// Root is the local directory the repository is confined to
	Root string `mapstructure:"root" validate:"required" yaml:"root"`

	// MetadataStore names the store holding the repository's records
	MetadataStore string `mapstructure:"metadata_store" validate:"required" yaml:"metadata_store"`

	// ReservedPrefixes hides matching names from listings; empty means dotfiles
	ReservedPrefixes []string `mapstructure:"reserved_prefixes" yaml:"reserved_prefixes,omitempty"`

	// ReadOnly rejects every mutating request
	ReadOnly bool `mapstructure:"read_only" yaml:"read_only"`

	// Watch publishes out-of-band filesystem changes on the event feed
	Watch bool `mapstructure:"watch" yaml:"watch"`

	// MaxImagePixels refuses pixel regions of images larger than this
	MaxImagePixels int64 `mapstructure:"max_image_pixels" validate:"gte=0" yaml:"max_image_pixels"`

	// AllowedClients lists IP addresses or CIDR ranges allowed to access
	// Empty list means all clients are allowed
	AllowedClients []string `mapstructure:"allowed_clients" validate:"dive,ip|cidr" yaml:"allowed_clients,omitempty"`

	// DeniedClients lists IP addresses or CIDR ranges explicitly denied
	// Takes precedence over AllowedClients
	DeniedClients []string `mapstructure:"denied_clients" validate:"dive,ip|cidr" yaml:"denied_clients,omitempty"`
}

// AdaptersConfig contains all protocol adapter configurations.
type AdaptersConfig struct {
	// HTTP contains HTTP adapter configuration.
	// Uses the adapter's own config type directly to avoid duplication.
	HTTP httpadapter.HTTPConfig `mapstructure:"http" yaml:"http"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (DITTOREPO_*)
//  2. Configuration file
//  3. Default values
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: Configuration loading or validation error
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Example: DITTOREPO_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("DITTOREPO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Default location: $XDG_CONFIG_HOME/dittorepo/config.{yaml,toml}
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists.
func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		// An explicit path that does not exist is treated like no file
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to current
// directory (.) if home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "dittorepo")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "dittorepo")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// ConfigExists checks if a config file exists at the default location.
func ConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path (exposed for init command).
func GetConfigDir() string {
	return getConfigDir()
}
