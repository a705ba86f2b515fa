package registry

import (
	"net"

	"github.com/marmos91/dittorepo/pkg/events"
	"github.com/marmos91/dittorepo/pkg/metrics"
	"github.com/marmos91/dittorepo/pkg/repository"
	"github.com/spf13/afero"
)

// Entry is a registered repository together with its serving policy.
type Entry struct {
	Name          string
	MetadataStore string // Name of the metadata store
	Repository    *repository.Repository
	ReadOnly      bool

	// Watch enables the filesystem watcher for this repository
	Watch bool

	allowed []*net.IPNet
	denied  []*net.IPNet
}

// RepositoryConfig contains all configuration needed to add a repository.
type RepositoryConfig struct {
	Name          string
	Root          string
	MetadataStore string
	ReadOnly      bool
	Watch         bool

	// ReservedPrefixes hides matching base names from listings (nil = dotfiles)
	ReservedPrefixes []string

	// MaxImagePixels bounds pixel stream decoding (0 = stream default)
	MaxImagePixels int64

	// AllowedClients are IPs or CIDRs allowed to use the repository (empty = all)
	AllowedClients []string

	// DeniedClients are IPs or CIDRs refused (takes precedence)
	DeniedClients []string

	// Fs overrides the filesystem (tests). Nil uses the OS filesystem.
	Fs afero.Fs

	Metrics metrics.RepositoryMetrics
	Events  events.Publisher
}
