package registry

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/marmos91/dittorepo/internal/logger"
	"github.com/marmos91/dittorepo/pkg/repository"
	"github.com/marmos91/dittorepo/pkg/store/metadata"
)

// Registry manages all named resources: metadata stores and repositories.
// It provides thread-safe registration and lookup of all server resources.
//
// Several repositories may share one metadata store; records are scoped by
// repository name inside the store.
//
// Example usage:
//
//	reg := NewRegistry()
//	reg.RegisterMetadataStore("badger-main", badgerStore)
//	reg.AddRepository(ctx, &RepositoryConfig{
//	    Name:          "images",
//	    Root:          "/data/images",
//	    MetadataStore: "badger-main",
//	})
//
//	repo, _ := reg.Repository("images")
type Registry struct {
	mu           sync.RWMutex
	metadata     map[string]metadata.Store
	repositories map[string]*Entry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		metadata:     make(map[string]metadata.Store),
		repositories: make(map[string]*Entry),
	}
}

// RegisterMetadataStore adds a named metadata store to the registry.
// Returns an error if a store with the same name already exists.
func (r *Registry) RegisterMetadataStore(name string, store metadata.Store) error {
	if store == nil {
		return fmt.Errorf("cannot register nil metadata store")
	}
	if name == "" {
		return fmt.Errorf("cannot register metadata store with empty name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.metadata[name]; exists {
		return fmt.Errorf("metadata store %q already registered", name)
	}

	r.metadata[name] = store
	return nil
}

// AddRepository creates and registers a repository.
// This method:
//  1. Validates that the repository doesn't already exist
//  2. Validates that the referenced metadata store exists
//  3. Parses the client access lists
//  4. Creates the repository, which registers its root record
//
// Returns an error if any step fails; nothing is registered in that case.
func (r *Registry) AddRepository(ctx context.Context, config *RepositoryConfig) (*Entry, error) {
	if config == nil || config.Name == "" {
		return nil, fmt.Errorf("cannot add repository with empty name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.repositories[config.Name]; exists {
		return nil, fmt.Errorf("repository %q already exists", config.Name)
	}

	store, exists := r.metadata[config.MetadataStore]
	if !exists {
		return nil, fmt.Errorf("metadata store %q not found", config.MetadataStore)
	}

	allowed, err := parseClientList(config.AllowedClients)
	if err != nil {
		return nil, fmt.Errorf("repository %q: allowed_clients: %w", config.Name, err)
	}
	denied, err := parseClientList(config.DeniedClients)
	if err != nil {
		return nil, fmt.Errorf("repository %q: denied_clients: %w", config.Name, err)
	}

	repo, err := repository.New(ctx, repository.Config{
		Name:             config.Name,
		Root:             config.Root,
		Fs:               config.Fs,
		Store:            store,
		ReservedPrefixes: config.ReservedPrefixes,
		MaxImagePixels:   config.MaxImagePixels,
		Metrics:          config.Metrics,
		Events:           config.Events,
	})
	if err != nil {
		return nil, err
	}

	entry := &Entry{
		Name:          config.Name,
		MetadataStore: config.MetadataStore,
		Repository:    repo,
		ReadOnly:      config.ReadOnly,
		Watch:         config.Watch,
		allowed:       allowed,
		denied:        denied,
	}
	r.repositories[config.Name] = entry

	logger.Debug("Registry: repository %q added (store=%s, read_only=%v)", config.Name, config.MetadataStore, config.ReadOnly)
	return entry, nil
}

// RemoveRepository removes a repository from the registry.
// Note: This does NOT close the underlying store, as it may be used by other repositories.
func (r *Registry) RemoveRepository(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.repositories[name]; !exists {
		return fmt.Errorf("repository %q not found", name)
	}

	delete(r.repositories, name)
	return nil
}

// GetRepository retrieves a repository entry by name.
func (r *Registry) GetRepository(name string) (*Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, exists := r.repositories[name]
	if !exists {
		return nil, fmt.Errorf("%w: %q", ErrRepositoryNotFound, name)
	}
	return entry, nil
}

// Repository retrieves a repository by name.
func (r *Registry) Repository(name string) (*repository.Repository, error) {
	entry, err := r.GetRepository(name)
	if err != nil {
		return nil, err
	}
	return entry.Repository, nil
}

// GetMetadataStore retrieves a metadata store by name.
func (r *Registry) GetMetadataStore(name string) (metadata.Store, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	store, exists := r.metadata[name]
	if !exists {
		return nil, fmt.Errorf("metadata store %q not found", name)
	}
	return store, nil
}

// ListRepositories returns all repository names, sorted.
func (r *Registry) ListRepositories() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.repositories))
	for name := range r.repositories {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Entries returns all repository entries ordered by name.
func (r *Registry) Entries() []*Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]*Entry, 0, len(r.repositories))
	for _, e := range r.repositories {
		entries = append(entries, e)
	}
	slices.SortFunc(entries, func(a, b *Entry) int {
		switch {
		case a.Name < b.Name:
			return -1
		case a.Name > b.Name:
			return 1
		}
		return 0
	})
	return entries
}

// ListMetadataStores returns all metadata store names, sorted.
func (r *Registry) ListMetadataStores() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.metadata))
	for name := range r.metadata {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// ListRepositoriesUsingMetadataStore returns the repositories backed by a store.
func (r *Registry) ListRepositoriesUsingMetadataStore(storeName string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var names []string
	for _, e := range r.repositories {
		if e.MetadataStore == storeName {
			names = append(names, e.Name)
		}
	}
	slices.Sort(names)
	return names
}

// CountRepositories returns the number of registered repositories.
func (r *Registry) CountRepositories() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.repositories)
}

// CountMetadataStores returns the number of registered metadata stores.
func (r *Registry) CountMetadataStores() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.metadata)
}

// Healthcheck checks every repository (root reachable, store usable).
func (r *Registry) Healthcheck(ctx context.Context) error {
	var errs []error
	for _, e := range r.Entries() {
		if err := e.Repository.Healthcheck(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every metadata store. Repositories must not be used afterwards.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for name, store := range r.metadata {
		if err := store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("metadata store %q: %w", name, err))
		}
	}
	return errors.Join(errs...)
}
