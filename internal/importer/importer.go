// Package importer registers the supported remote server protocols and
// builds clients for them by name.
package importer

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/driftsync/driftsync/internal/plex"
)

// ItemIterator walks a library listing item by item.
type ItemIterator interface {
	Next(ctx context.Context) bool
	Item() *plex.Metadata
	Err() error
}

// Importer is the remote surface the ingest pipeline needs. Alternative
// protocols implement it by mapping their wire shapes onto the plex
// container types, which serve as the common item model.
type Importer interface {
	TestConnection(ctx context.Context) error
	Discover(ctx context.Context) ([]plex.Directory, error)
	Iterate(libraryKey string, itemType plex.ItemType, opts plex.ItemOptions) ItemIterator
}

// Builder constructs an importer for one remote server. A nil retry
// policy leaves the protocol's default in place.
type Builder func(baseURL, token string, logger zerolog.Logger, retry plex.RetryPolicy) Importer

var (
	mu       sync.RWMutex
	builders = map[string]Builder{}
)

// Register adds a protocol under a unique name. It panics on duplicates,
// which only happen at init time.
func Register(name string, b Builder) {
	mu.Lock()
	defer mu.Unlock()
	if _, ok := builders[name]; ok {
		panic(fmt.Sprintf("importer: %q registered twice", name))
	}
	builders[name] = b
}

// Build constructs an importer for the named protocol.
func Build(name, baseURL, token string, logger zerolog.Logger, retry plex.RetryPolicy) (Importer, error) {
	mu.RLock()
	b, ok := builders[name]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("importer: unknown protocol %q", name)
	}
	return b(baseURL, token, logger, retry), nil
}

// Names lists the registered protocols, sorted.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(builders))
	for name := range builders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// plexImporter adapts the concrete Plex client to the Importer surface.
type plexImporter struct {
	*plex.Client
}

func (p plexImporter) Discover(ctx context.Context) ([]plex.Directory, error) {
	return p.GetLibraries(ctx)
}

func (p plexImporter) Iterate(libraryKey string, itemType plex.ItemType, opts plex.ItemOptions) ItemIterator {
	return p.Items(libraryKey, itemType, opts)
}

func init() {
	Register("plex", func(baseURL, token string, logger zerolog.Logger, retry plex.RetryPolicy) Importer {
		var opts []plex.ClientOption
		if retry != nil {
			opts = append(opts, plex.WithRetryPolicy(retry))
		}
		return plexImporter{plex.NewClient(baseURL, token, logger, opts...)}
	})
}
