package config

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/marmos91/dittorepo/pkg/events"
	"github.com/marmos91/dittorepo/pkg/metrics"
	"github.com/marmos91/dittorepo/pkg/session"
	"github.com/marmos91/dittorepo/pkg/store/metadata/badger"
	"github.com/marmos91/dittorepo/pkg/store/metadata/sqlite"
	"github.com/spf13/afero"
)

func TestCreateMetadataStore_Types(t *testing.T) {
	ctx := context.Background()
	tmpDir := t.TempDir()

	tests := []struct {
		name string
		cfg  MetadataStoreConfig
	}{
		{"memory", MetadataStoreConfig{Type: "memory", Memory: map[string]any{"max_records": 10}}},
		{"badger", MetadataStoreConfig{Type: "badger", Badger: map[string]any{"db_path": filepath.Join(tmpDir, "badger")}}},
		{"badger in memory", MetadataStoreConfig{Type: "badger", Badger: map[string]any{"in_memory": true}}},
		{"sqlite", MetadataStoreConfig{Type: "sqlite", SQLite: map[string]any{"path": filepath.Join(tmpDir, "catalog.db"), "busy_timeout": "2s"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := createMetadataStore(ctx, tt.cfg, metrics.NewNoopStoreMetrics())
			if err != nil {
				t.Fatalf("createMetadataStore failed: %v", err)
			}
			if err := store.Healthcheck(ctx); err != nil {
				t.Errorf("Healthcheck failed: %v", err)
			}
			if err := store.Close(); err != nil {
				t.Errorf("Close failed: %v", err)
			}
		})
	}
}

func TestCreateMetadataStore_Errors(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		cfg     MetadataStoreConfig
		wantErr string
	}{
		{"unknown type", MetadataStoreConfig{Type: "postgres"}, "unknown metadata store type"},
		{"badger without path", MetadataStoreConfig{Type: "badger"}, "badger"},
		{"sqlite without path", MetadataStoreConfig{Type: "sqlite"}, "sqlite"},
		{"bad memory option", MetadataStoreConfig{Type: "memory", Memory: map[string]any{"max_records": "lots"}}, "invalid memory config"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := createMetadataStore(ctx, tt.cfg, nil)
			if err == nil {
				t.Fatal("Expected an error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got: %v", tt.wantErr, err)
			}
		})
	}
}

func TestDecodeStoreConfig_Durations(t *testing.T) {
	var cfg sqlite.SQLiteMetadataStoreConfig
	err := decodeStoreConfig(map[string]any{"path": ":memory:", "busy_timeout": "250ms"}, &cfg)
	if err != nil {
		t.Fatalf("decodeStoreConfig failed: %v", err)
	}
	if cfg.BusyTimeout != 250*time.Millisecond {
		t.Errorf("Expected busy timeout 250ms, got %v", cfg.BusyTimeout)
	}
	if cfg.Path != ":memory:" {
		t.Errorf("Expected path ':memory:', got %q", cfg.Path)
	}
}

func TestDecodeStoreConfig_ByteSizes(t *testing.T) {
	var cfg badger.BadgerMetadataStoreConfig
	err := decodeStoreConfig(map[string]any{
		"in_memory":        true,
		"block_cache_size": "16MiB",
		"index_cache_size": "4096",
	}, &cfg)
	if err != nil {
		t.Fatalf("decodeStoreConfig failed: %v", err)
	}
	if cfg.BlockCacheSize != 16<<20 {
		t.Errorf("Expected block cache 16MiB, got %d", cfg.BlockCacheSize)
	}
	if cfg.IndexCacheSize != 4096 {
		t.Errorf("Expected index cache 4096, got %d", cfg.IndexCacheSize)
	}

	err = decodeStoreConfig(map[string]any{"block_cache_size": "lots"}, &cfg)
	if err == nil || !strings.Contains(err.Error(), "invalid size") {
		t.Errorf("Expected invalid size error, got %v", err)
	}

	store, err := createMetadataStore(context.Background(), MetadataStoreConfig{
		Type:   "badger",
		Badger: map[string]any{"in_memory": true, "block_cache_size": "8MiB", "index_cache_size": "2 MB"},
	}, nil)
	if err != nil {
		t.Fatalf("createMetadataStore failed: %v", err)
	}
	_ = store.Close()
}

func TestInitializeRegistry(t *testing.T) {
	ctx := context.Background()

	fs := afero.NewMemMapFs()
	if err := fs.MkdirAll("/srv/photos", 0o755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	if err := fs.MkdirAll("/srv/scans", 0o755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}

	cfg := GetDefaultConfig()
	cfg.Metadata.Stores["catalog"] = MetadataStoreConfig{Type: "badger", Badger: map[string]any{"in_memory": true}}
	cfg.Repositories = []RepositoryConfig{
		{Name: "photos", Root: "/srv/photos", MetadataStore: "catalog", AllowedClients: []string{"10.0.0.0/8"}},
		{Name: "scans", Root: "/srv/scans", MetadataStore: DefaultStoreName, ReadOnly: true},
	}

	bus := events.NewBus()
	defer bus.Close()

	reg, err := InitializeRegistry(ctx, cfg, RegistryOptions{
		Metrics: InitializeMetrics(cfg, nil),
		Events:  bus,
		Fs:      fs,
	})
	if err != nil {
		t.Fatalf("InitializeRegistry failed: %v", err)
	}
	defer func() { _ = reg.Close() }()

	if got := reg.CountMetadataStores(); got != 2 {
		t.Errorf("Expected 2 metadata stores, got %d", got)
	}
	if got := reg.ListRepositories(); len(got) != 2 || got[0] != "photos" || got[1] != "scans" {
		t.Errorf("Unexpected repositories: %v", got)
	}
	if got := reg.ListRepositoriesUsingMetadataStore("catalog"); len(got) != 1 || got[0] != "photos" {
		t.Errorf("Expected only photos on catalog, got %v", got)
	}

	if err := reg.CheckAccess("scans", "10.1.2.3:4000", true); err == nil {
		t.Error("Expected write to read-only repository to be refused")
	}
	if err := reg.CheckAccess("photos", "192.168.1.1:4000", false); err == nil {
		t.Error("Expected client outside the allow list to be refused")
	}
	if err := reg.Healthcheck(ctx); err != nil {
		t.Errorf("Healthcheck failed: %v", err)
	}
}

func TestInitializeRegistry_MissingRoot(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Repositories[0].Root = "/does/not/exist"

	_, err := InitializeRegistry(context.Background(), cfg, RegistryOptions{Fs: afero.NewMemMapFs()})
	if err == nil {
		t.Fatal("Expected an error for a missing repository root")
	}
	if !strings.Contains(err.Error(), "failed to add repositories") {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestInitializeRegistry_NilConfig(t *testing.T) {
	if _, err := InitializeRegistry(context.Background(), nil, RegistryOptions{}); err == nil {
		t.Error("Expected an error for a nil configuration")
	}
}

func TestInitializeMetrics_Disabled(t *testing.T) {
	cfg := GetDefaultConfig()

	result := InitializeMetrics(cfg, nil)
	if result.Server != nil {
		t.Error("Expected no metrics server when metrics are disabled")
	}
	if result.Repository == nil || result.Session == nil || result.HTTP == nil || result.Store == nil {
		t.Error("Expected no-op collectors when metrics are disabled")
	}
}

func TestCreateAdapters(t *testing.T) {
	cfg := GetDefaultConfig()
	sessions := session.NewManager(cfg.Sessions, nil)
	defer sessions.Shutdown()

	adapters, err := CreateAdapters(cfg, AdapterDependencies{Sessions: sessions})
	if err != nil {
		t.Fatalf("CreateAdapters failed: %v", err)
	}
	if len(adapters) != 1 || adapters[0].Protocol() != "HTTP" {
		t.Fatalf("Expected one HTTP adapter, got %d", len(adapters))
	}
	if adapters[0].Port() != 8080 {
		t.Errorf("Expected port 8080, got %d", adapters[0].Port())
	}

	cfg.Adapters.HTTP.Enabled = false
	if _, err := CreateAdapters(cfg, AdapterDependencies{Sessions: sessions}); err == nil {
		t.Error("Expected an error with no adapters enabled")
	}
	if _, err := CreateAdapters(GetDefaultConfig(), AdapterDependencies{}); err == nil {
		t.Error("Expected an error without a session manager")
	}
}
