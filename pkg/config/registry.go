package config

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/marmos91/dittorepo/internal/logger"
	"github.com/marmos91/dittorepo/pkg/events"
	"github.com/marmos91/dittorepo/pkg/metrics"
	"github.com/marmos91/dittorepo/pkg/registry"
	"github.com/spf13/afero"
)

// RegistryOptions carries the shared components repositories are wired to.
// Zero values disable metrics and discard events.
type RegistryOptions struct {
	Metrics *MetricsResult
	Events  events.Publisher

	// Fs overrides the filesystem repositories operate on (tests).
	// Nil uses the host filesystem.
	Fs afero.Fs
}

func (o RegistryOptions) storeMetrics() metrics.StoreMetrics {
	if o.Metrics == nil {
		return nil
	}
	return o.Metrics.Store
}

// InitializeRegistry creates a fully configured Registry from the provided configuration.
//
// This function orchestrates the complete initialization process:
//  1. Creates and registers all metadata stores from cfg.Metadata.Stores
//  2. Validates and adds all repositories from cfg.Repositories
//
// On failure every store opened so far is closed again.
//
// Example:
//
//	cfg, _ := config.Load("config.yaml")
//	reg, err := config.InitializeRegistry(ctx, cfg, config.RegistryOptions{})
//	if err != nil {
//	    log.Fatalf("Failed to initialize registry: %v", err)
//	}
func InitializeRegistry(ctx context.Context, cfg *Config, opts RegistryOptions) (*registry.Registry, error) {
	logger.Debug("Initializing registry from configuration")

	if err := validateRegistryConfig(cfg); err != nil {
		return nil, err
	}

	reg := registry.NewRegistry()

	// Step 1: Register all metadata stores
	if err := registerMetadataStores(ctx, reg, cfg, opts); err != nil {
		return nil, errors.Join(fmt.Errorf("failed to register metadata stores: %w", err), reg.Close())
	}
	logger.Debug("Registered %d metadata store(s)", reg.CountMetadataStores())

	// Step 2: Add all repositories
	if err := addRepositories(ctx, reg, cfg, opts); err != nil {
		return nil, errors.Join(fmt.Errorf("failed to add repositories: %w", err), reg.Close())
	}
	logger.Debug("Registered %d repository(ies)", reg.CountRepositories())

	return reg, nil
}

// validateRegistryConfig performs basic validation on the configuration.
func validateRegistryConfig(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("configuration is nil")
	}

	if len(cfg.Metadata.Stores) == 0 {
		return fmt.Errorf("no metadata stores configured: at least one metadata store is required")
	}

	if len(cfg.Repositories) == 0 {
		return fmt.Errorf("no repositories configured: at least one repository is required")
	}

	return nil
}

// registerMetadataStores creates and registers all configured metadata stores
// in name order, so failures are reproducible.
func registerMetadataStores(ctx context.Context, reg *registry.Registry, cfg *Config, opts RegistryOptions) error {
	names := make([]string, 0, len(cfg.Metadata.Stores))
	for name := range cfg.Metadata.Stores {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		storeCfg := cfg.Metadata.Stores[name]
		logger.Debug("Creating metadata store %q (type: %s)", name, storeCfg.Type)

		store, err := createMetadataStore(ctx, storeCfg, opts.storeMetrics())
		if err != nil {
			return fmt.Errorf("failed to create metadata store %q: %w", name, err)
		}

		if err := reg.RegisterMetadataStore(name, store); err != nil {
			_ = store.Close()
			return fmt.Errorf("failed to register metadata store %q: %w", name, err)
		}

		logger.Debug("Metadata store %q registered successfully", name)
	}

	return nil
}

// addRepositories validates and adds all configured repositories to the registry.
func addRepositories(ctx context.Context, reg *registry.Registry, cfg *Config, opts RegistryOptions) error {
	for i, repoCfg := range cfg.Repositories {
		logger.Debug("Adding repository %q (root: %s, metadata: %s, read_only: %v)",
			repoCfg.Name, repoCfg.Root, repoCfg.MetadataStore, repoCfg.ReadOnly)

		if repoCfg.Name == "" {
			return fmt.Errorf("repository #%d: name cannot be empty", i+1)
		}

		repoConfig := &registry.RepositoryConfig{
			Name:             repoCfg.Name,
			Root:             repoCfg.Root,
			MetadataStore:    repoCfg.MetadataStore,
			ReadOnly:         repoCfg.ReadOnly,
			Watch:            repoCfg.Watch,
			ReservedPrefixes: repoCfg.ReservedPrefixes,
			MaxImagePixels:   repoCfg.MaxImagePixels,
			AllowedClients:   repoCfg.AllowedClients,
			DeniedClients:    repoCfg.DeniedClients,
			Fs:               opts.Fs,
			Events:           opts.Events,
		}
		if opts.Metrics != nil {
			repoConfig.Metrics = opts.Metrics.Repository
		}

		if _, err := reg.AddRepository(ctx, repoConfig); err != nil {
			return fmt.Errorf("failed to add repository %q: %w", repoCfg.Name, err)
		}

		logger.Debug("Repository %q added successfully", repoCfg.Name)
	}

	return nil
}
