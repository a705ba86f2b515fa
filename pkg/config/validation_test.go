package config

import (
	"strings"
	"testing"
	"time"
)

func TestValidate_ValidConfig(t *testing.T) {
	cfg := GetDefaultConfig()

	if err := Validate(cfg); err != nil {
		t.Errorf("Valid config failed validation: %v", err)
	}
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Logging.Level = "VERBOSE"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for invalid log level")
	}
	if !strings.Contains(err.Error(), "Level") {
		t.Errorf("Expected error to mention Level, got: %v", err)
	}
}

func TestValidate_InvalidLogFormat(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Logging.Format = "xml"

	if err := Validate(cfg); err == nil {
		t.Error("Expected validation error for invalid log format")
	}
}

func TestValidate_InvalidMetadataType(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Metadata.Stores[DefaultStoreName] = MetadataStoreConfig{Type: "postgres"}

	if err := Validate(cfg); err == nil {
		t.Error("Expected validation error for unknown metadata store type")
	}
}

func TestValidate_NoRepositories(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Repositories = nil

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error with no repositories")
	}
	if !strings.Contains(err.Error(), "at least one repository") {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestValidate_DuplicateRepositoryNames(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Repositories = append(cfg.Repositories, RepositoryConfig{
		Name:          DefaultRepositoryName,
		Root:          "/srv/other",
		MetadataStore: DefaultStoreName,
	})

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for duplicate repository names")
	}
	if !strings.Contains(err.Error(), "duplicate repository name") {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestValidate_SharedRoot(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Repositories = append(cfg.Repositories, RepositoryConfig{
		Name:          "mirror",
		Root:          DefaultRepositoryRoot + "/",
		MetadataStore: DefaultStoreName,
	})

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for two repositories over one root")
	}
	if !strings.Contains(err.Error(), "already used") {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestValidate_UnknownMetadataStore(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Repositories[0].MetadataStore = "missing"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for unknown metadata store")
	}
	if !strings.Contains(err.Error(), `"missing"`) {
		t.Errorf("Expected error to name the store, got: %v", err)
	}
}

func TestValidate_RepositoryNameWithSlash(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Repositories[0].Name = "photos/raw"

	if err := Validate(cfg); err == nil {
		t.Error("Expected validation error for repository name containing '/'")
	}
}

func TestValidate_EmptyRepositoryFields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*RepositoryConfig)
	}{
		{"empty name", func(r *RepositoryConfig) { r.Name = "" }},
		{"empty root", func(r *RepositoryConfig) { r.Root = "" }},
		{"empty store", func(r *RepositoryConfig) { r.MetadataStore = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := GetDefaultConfig()
			tt.mutate(&cfg.Repositories[0])

			if err := Validate(cfg); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}

func TestValidate_ClientLists(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		denied  []string
		wantErr bool
	}{
		{"ip and cidr", []string{"10.0.0.1", "192.168.0.0/16"}, []string{"::1"}, false},
		{"bad allowed", []string{"not-an-ip"}, nil, true},
		{"bad denied", nil, []string{"10.0.0.0/33"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := GetDefaultConfig()
			cfg.Repositories[0].AllowedClients = tt.allowed
			cfg.Repositories[0].DeniedClients = tt.denied

			err := Validate(cfg)
			if tt.wantErr && err == nil {
				t.Error("Expected validation error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Unexpected validation error: %v", err)
			}
		})
	}
}

func TestValidate_InvalidHTTPPort(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Adapters.HTTP.Port = 70000

	if err := Validate(cfg); err == nil {
		t.Error("Expected validation error for port > 65535")
	}
}

func TestValidate_NegativePort(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Adapters.HTTP.Port = -1

	if err := Validate(cfg); err == nil {
		t.Error("Expected validation error for negative port")
	}
}

func TestValidate_NegativeMaxClients(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Adapters.HTTP.RateLimit.MaxClients = -1

	if err := Validate(cfg); err == nil {
		t.Error("Expected validation error for negative max_clients")
	}
}

func TestValidate_InvalidShutdownTimeout(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Server.ShutdownTimeout = 0

	if err := Validate(cfg); err == nil {
		t.Error("Expected validation error for zero shutdown timeout")
	}
}

func TestValidate_NegativeSessionLimits(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Sessions.IdleTimeout = -time.Second

	if err := Validate(cfg); err == nil {
		t.Error("Expected validation error for negative idle timeout")
	}
}

func TestValidate_NoAdaptersEnabled(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Adapters.HTTP.Enabled = false

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error with no adapters enabled")
	}
	if !strings.Contains(err.Error(), "at least one adapter") {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestValidate_MetricsPortClash(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Server.Metrics.Enabled = true
	cfg.Server.Metrics.Port = cfg.Adapters.HTTP.Port

	if err := Validate(cfg); err == nil {
		t.Error("Expected validation error when metrics and http share a port")
	}
}

func TestValidate_LogLevelNormalization(t *testing.T) {
	for _, level := range []string{"debug", "Info", "WARN", "error"} {
		t.Run(level, func(t *testing.T) {
			cfg := GetDefaultConfig()
			cfg.Logging.Level = level
			ApplyDefaults(cfg)

			if err := Validate(cfg); err != nil {
				t.Errorf("Level %q should be valid after normalization: %v", level, err)
			}
			if cfg.Logging.Level != strings.ToUpper(level) {
				t.Errorf("Expected %q, got %q", strings.ToUpper(level), cfg.Logging.Level)
			}
		})
	}
}

func TestValidate_MultipleRepositories(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Metadata.Stores["catalog"] = MetadataStoreConfig{Type: "badger", Badger: map[string]any{"db_path": "/tmp/catalog"}}
	cfg.Repositories = append(cfg.Repositories,
		RepositoryConfig{Name: "photos", Root: "/srv/photos", MetadataStore: "catalog"},
		RepositoryConfig{Name: "scans", Root: "/srv/scans", MetadataStore: "catalog", ReadOnly: true},
	)

	if err := Validate(cfg); err != nil {
		t.Errorf("Multiple repositories should be valid: %v", err)
	}
}
