// Package app is the composition root: it owns construction of the
// store, path mapper, validator, fault handler and orchestrator, and
// exposes the stable operations everything else (CLI, HTTP API) calls.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/driftsync/driftsync/internal/catalog"
	"github.com/driftsync/driftsync/internal/config"
	"github.com/driftsync/driftsync/internal/crypto"
	"github.com/driftsync/driftsync/internal/faults"
	"github.com/driftsync/driftsync/internal/health"
	"github.com/driftsync/driftsync/internal/importer"
	"github.com/driftsync/driftsync/internal/ingest"
	"github.com/driftsync/driftsync/internal/mediaprobe"
	"github.com/driftsync/driftsync/internal/pathmap"
	"github.com/driftsync/driftsync/internal/validate"
)

// App wires the components together in dependency order. No component
// constructs another transitively.
type App struct {
	cfg       *config.Config
	store     *catalog.Store
	paths     *pathmap.Mapper
	validator *validate.Validator
	faults    *faults.Handler
	health    *health.Service
	logger    zerolog.Logger

	// syncMu serializes sync passes; a library is never synced by two
	// passes at once.
	syncMu chan struct{}
}

// New builds the application over an open database connection.
func New(db *sql.DB, cfg *config.Config, logger zerolog.Logger) (*App, error) {
	var storeOpts []catalog.Option
	if cfg.Security.TokenKey != "" {
		enc, err := crypto.NewEncryptor(cfg.Security.TokenKey)
		if err != nil {
			return nil, fmt.Errorf("configuring token encryption: %w", err)
		}
		storeOpts = append(storeOpts, catalog.WithEncryptor(enc))
	}

	store := catalog.New(db, logger, storeOpts...)
	paths := pathmap.New(store, logger)
	prober := mediaprobe.New(cfg.Ingest.FFprobePath)
	validator := validate.New(paths, prober, logger)
	handler := faults.NewHandler(logger)

	if !prober.Available() {
		logger.Warn().Msg("ffprobe not found, media probe stage disabled")
	}

	checks := health.NewService(logger)
	checks.Register("database", true, func(ctx context.Context) error {
		return db.PingContext(ctx)
	})
	checks.Register("media_probe", false, func(ctx context.Context) error {
		if !prober.Available() {
			return errors.New("ffprobe not found")
		}
		return nil
	})
	checks.Register("faults", false, func(ctx context.Context) error {
		sum := handler.Summarize(time.Now().Add(-time.Hour))
		if n := sum.BySeverity[faults.SeverityCritical]; n > 0 {
			return fmt.Errorf("%d critical faults in the last hour", n)
		}
		return nil
	})

	return &App{
		cfg:       cfg,
		store:     store,
		paths:     paths,
		validator: validator,
		faults:    handler,
		health:    checks,
		logger:    logger.With().Str("component", "app").Logger(),
		syncMu:    make(chan struct{}, 1),
	}, nil
}

// Store exposes the catalog for read-only API handlers.
func (a *App) Store() *catalog.Store { return a.store }

// Logger exposes the application logger for the outer layers.
func (a *App) Logger() zerolog.Logger { return a.logger }

// Health exposes the dependency check service.
func (a *App) Health() *health.Service { return a.health }

// FaultSummary aggregates recorded faults since the given time.
func (a *App) FaultSummary(since time.Time) faults.Summary {
	return a.faults.Summarize(since)
}

// RecentFaults returns up to n most recent fault records.
func (a *App) RecentFaults(n int) []faults.Record {
	return a.faults.Recent(n)
}

// buildImporter constructs a protocol client with retries driven by the
// fault handler's network policy.
func (a *App) buildImporter(baseURL, token string) (importer.Importer, error) {
	return importer.Build("plex", baseURL, token, a.logger, a.faults.NetworkPolicy())
}

// AddServer registers a remote server, verifying the connection first.
func (a *App) AddServer(ctx context.Context, name, baseURL, token string, makeDefault bool) (*catalog.Server, error) {
	client, err := a.buildImporter(baseURL, token)
	if err != nil {
		return nil, err
	}
	if err := client.TestConnection(ctx); err != nil {
		return nil, fmt.Errorf("server unreachable: %w", err)
	}

	id, err := a.store.AddServer(ctx, name, baseURL, token)
	if err != nil {
		return nil, err
	}
	if makeDefault {
		if err := a.store.SetDefaultServer(ctx, id); err != nil {
			return nil, err
		}
	}
	return a.store.GetServer(ctx, id)
}

// ListServers lists registered servers with tokens blanked.
func (a *App) ListServers(ctx context.Context) ([]catalog.Server, error) {
	return a.store.ListServers(ctx)
}

// DeleteServer removes a server and everything cascading from it.
func (a *App) DeleteServer(ctx context.Context, id int64) error {
	if err := a.store.DeleteServer(ctx, id); err != nil {
		return err
	}
	a.paths.InvalidateAll()
	return nil
}

// SetDefaultServer marks one server as the default.
func (a *App) SetDefaultServer(ctx context.Context, id int64) error {
	return a.store.SetDefaultServer(ctx, id)
}

// DiscoverLibraries fetches the server's sections and upserts a library
// row for each, returning the refreshed list.
func (a *App) DiscoverLibraries(ctx context.Context, serverID int64) ([]catalog.Library, error) {
	server, err := a.store.GetServer(ctx, serverID)
	if err != nil {
		return nil, err
	}
	client, err := a.buildImporter(server.BaseURL, server.Token)
	if err != nil {
		return nil, err
	}

	dirs, err := client.Discover(ctx)
	if err != nil {
		return nil, fmt.Errorf("discovering libraries: %w", err)
	}

	for _, d := range dirs {
		kind, ok := sectionKind(d.Type)
		if !ok {
			continue
		}
		if _, err := a.store.UpsertLibrary(ctx, serverID, d.Key, d.Title, kind); err != nil {
			return nil, err
		}
	}
	return a.store.ListLibraries(ctx, &serverID)
}

// ListLibraries lists known libraries, optionally scoped to one server.
func (a *App) ListLibraries(ctx context.Context, serverID *int64) ([]catalog.Library, error) {
	return a.store.ListLibraries(ctx, serverID)
}

// SetLibrarySyncEnabled toggles syncing for one library.
func (a *App) SetLibrarySyncEnabled(ctx context.Context, libraryID int64, enabled bool) error {
	n, err := a.store.SetLibrarySyncEnabled(ctx, libraryID, enabled)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("library %d: %w", libraryID, catalog.ErrNotFound)
	}
	return nil
}

// AddPathMapping records a mapping and drops the affected cache entry.
func (a *App) AddPathMapping(ctx context.Context, serverID, libraryID int64, plexPath, localPath string) (int64, error) {
	id, err := a.store.InsertPathMapping(ctx, serverID, libraryID, plexPath, localPath)
	if err != nil {
		return 0, err
	}
	a.paths.Invalidate(serverID, libraryID)
	return id, nil
}

// ListPathMappings lists the mappings for a server/library pair.
func (a *App) ListPathMappings(ctx context.Context, serverID, libraryID int64) ([]catalog.PathMapping, error) {
	return a.store.GetPathMappings(ctx, serverID, libraryID)
}

// DeletePathMapping removes a mapping and drops the whole cache; the
// mapping row is gone before we know which pair it covered.
func (a *App) DeletePathMapping(ctx context.Context, id int64) error {
	ok, err := a.store.DeletePathMapping(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("path mapping %d: %w", id, catalog.ErrNotFound)
	}
	a.paths.InvalidateAll()
	return nil
}

// SyncRequest parameterizes a sync over one server.
type SyncRequest struct {
	ServerID    int64
	LibraryKeys []string
	Kinds       []catalog.ItemKind
	Mode        ingest.Mode
	Limit       int
	DryRun      bool
}

// SyncContent runs the ingest pipeline over the requested libraries and
// returns an ordered stream of progress events. Passes run sequentially
// on a single worker; the channel closes when every pass finished.
func (a *App) SyncContent(ctx context.Context, req SyncRequest) (<-chan ingest.Event, error) {
	server, err := a.store.GetServer(ctx, req.ServerID)
	if err != nil {
		return nil, err
	}
	client, err := a.buildImporter(server.BaseURL, server.Token)
	if err != nil {
		return nil, err
	}

	passes, err := a.planPasses(ctx, server, req)
	if err != nil {
		return nil, err
	}

	if req.Mode == "" {
		req.Mode = ingest.ModeIncremental
	}

	out := make(chan ingest.Event, 64)
	go func() {
		defer close(out)

		// No matching libraries is a clean, empty pass, not a failure.
		if len(passes) == 0 {
			a.logger.Info().Int64("server_id", server.ID).Msg("no matching libraries to sync")
			select {
			case out <- ingest.Event{
				Stage: ingest.StageComplete,
				Msg:   "sync complete: 0 scanned, 0 errors",
				Stats: &ingest.Stats{},
			}:
			case <-ctx.Done():
			}
			return
		}

		select {
		case a.syncMu <- struct{}{}:
			defer func() { <-a.syncMu }()
		case <-ctx.Done():
			return
		}

		orch := ingest.New(a.store, client, a.validator, a.faults, a.logger)
		for _, pass := range passes {
			events := orch.Events(ctx, server, ingest.Options{
				LibraryKey:       pass.key,
				Kind:             pass.kind,
				Mode:             req.Mode,
				Limit:            req.Limit,
				DryRun:           req.DryRun,
				BatchSize:        a.cfg.Ingest.BatchSize,
				ProgressInterval: a.cfg.Ingest.ProgressInterval,
			})
			for e := range events {
				select {
				case out <- e:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

type syncPass struct {
	key  string
	kind catalog.ItemKind
}

// planPasses expands a request into concrete (library, kind) passes,
// pairing movie libraries with movie items and show libraries with
// episodes.
func (a *App) planPasses(ctx context.Context, server *catalog.Server, req SyncRequest) ([]syncPass, error) {
	libs, err := a.store.ListLibraries(ctx, &server.ID)
	if err != nil {
		return nil, err
	}
	if len(libs) == 0 {
		libs, err = a.DiscoverLibraries(ctx, server.ID)
		if err != nil {
			return nil, err
		}
	}

	wantKey := make(map[string]bool, len(req.LibraryKeys))
	for _, k := range req.LibraryKeys {
		wantKey[k] = true
	}
	wantKind := make(map[catalog.ItemKind]bool, len(req.Kinds))
	for _, k := range req.Kinds {
		wantKind[k] = true
	}

	var passes []syncPass
	for _, lib := range libs {
		if len(wantKey) > 0 && !wantKey[lib.ExternalKey] {
			continue
		}
		if len(wantKey) == 0 && !lib.SyncEnabled {
			continue
		}

		kind := catalog.ItemKindMovie
		if lib.Kind == catalog.LibraryKindShow {
			kind = catalog.ItemKindEpisode
		}
		if len(wantKind) > 0 && !wantKind[kind] {
			continue
		}
		passes = append(passes, syncPass{key: lib.ExternalKey, kind: kind})
	}
	return passes, nil
}

// TestServer checks connectivity to a registered server.
func (a *App) TestServer(ctx context.Context, serverID int64) error {
	server, err := a.store.GetServer(ctx, serverID)
	if err != nil {
		return err
	}
	client, err := a.buildImporter(server.BaseURL, server.Token)
	if err != nil {
		return err
	}
	return client.TestConnection(ctx)
}

func sectionKind(sectionType string) (catalog.LibraryKind, bool) {
	switch sectionType {
	case "movie":
		return catalog.LibraryKindMovie, true
	case "show":
		return catalog.LibraryKindShow, true
	}
	return "", false
}
