// Package ingest runs the content sync pipeline: fetch items from a
// remote server, map them, validate their files, and upsert everything
// into the catalog in batched transactions.
package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/driftsync/driftsync/internal/catalog"
	"github.com/driftsync/driftsync/internal/faults"
	"github.com/driftsync/driftsync/internal/importer"
	"github.com/driftsync/driftsync/internal/mapper"
	"github.com/driftsync/driftsync/internal/plex"
	"github.com/driftsync/driftsync/internal/validate"
)

// Mode selects how much of the library a pass covers.
type Mode string

const (
	ModeFull        Mode = "full"
	ModeIncremental Mode = "incremental"
)

const (
	defaultBatchSize        = 50
	defaultProgressInterval = 25
	scanningPreviewCount    = 5
)

// Options parameterizes one sync pass over one library.
type Options struct {
	LibraryKey       string
	Kind             catalog.ItemKind
	Mode             Mode
	Limit            int
	SinceEpoch       *int64
	DryRun           bool
	BatchSize        int
	ProgressInterval int
}

// Stats accumulates the outcome counters of a pass.
type Stats struct {
	Scanned       int `json:"scanned"`
	Mapped        int `json:"mapped"`
	InsertedItems int `json:"inserted_items"`
	UpdatedItems  int `json:"updated_items"`
	InsertedFiles int `json:"inserted_files"`
	UpdatedFiles  int `json:"updated_files"`
	Linked        int `json:"linked"`
	Skipped       int `json:"skipped"`
	Errors        int `json:"errors"`
}

// Stage labels a progress event.
type Stage string

const (
	StageStart           Stage = "start"
	StageLibraryReady    Stage = "library_ready"
	StageFetching        Stage = "fetching"
	StageScanning        Stage = "scanning"
	StageProgress        Stage = "progress"
	StageBatchComplete   Stage = "batch_complete"
	StageValidationError Stage = "validation_error"
	StageError           Stage = "error"
	StageFinalBatch      Stage = "final_batch"
	StageComplete        Stage = "complete"
	StageFatalError      Stage = "fatal_error"
)

// Event is one progress record; consumers see them in production order.
type Event struct {
	Stage     Stage  `json:"stage"`
	Msg       string `json:"msg"`
	Stats     *Stats `json:"stats,omitempty"`
	ItemTitle string `json:"item_title,omitempty"`
	LibraryID int64  `json:"library_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Orchestrator wires the pipeline together for one server at a time.
type Orchestrator struct {
	store     *catalog.Store
	client    importer.Importer
	validator *validate.Validator
	faults    *faults.Handler
	logger    zerolog.Logger

	// now is swapped out in tests.
	now func() time.Time
}

// New creates an Orchestrator.
func New(store *catalog.Store, client importer.Importer, validator *validate.Validator, handler *faults.Handler, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		store:     store,
		client:    client,
		validator: validator,
		faults:    handler,
		logger:    logger.With().Str("component", "ingest").Logger(),
		now:       time.Now,
	}
}

// Run executes one pass and blocks until it finishes, returning the
// accumulated stats. Progress events are logged but not surfaced.
func (o *Orchestrator) Run(ctx context.Context, server *catalog.Server, opts Options) (*Stats, error) {
	stats := &Stats{}
	err := o.run(ctx, server, opts, stats, func(Event) {})
	return stats, err
}

// Events executes one pass in the background and returns an ordered
// channel of progress events. The channel closes when the pass ends; a
// fatal error surfaces as the final fatal_error event.
func (o *Orchestrator) Events(ctx context.Context, server *catalog.Server, opts Options) <-chan Event {
	ch := make(chan Event, 64)
	go func() {
		defer close(ch)
		emit := func(e Event) {
			select {
			case ch <- e:
			case <-ctx.Done():
			}
		}
		stats := &Stats{}
		o.run(ctx, server, opts, stats, emit)
	}()
	return ch
}

func (o *Orchestrator) run(ctx context.Context, server *catalog.Server, opts Options, stats *Stats, emit func(Event)) error {
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.ProgressInterval <= 0 {
		opts.ProgressInterval = defaultProgressInterval
	}
	if opts.Mode == "" {
		opts.Mode = ModeFull
	}

	runID := uuid.NewString()
	log := o.logger.With().
		Str("run_id", runID).
		Str("server", server.Name).
		Str("library_key", opts.LibraryKey).
		Str("kind", string(opts.Kind)).
		Logger()

	fatal := func(err error, op string) error {
		o.faults.Handle(err, faults.Context{
			Operation: op,
			ServerID:  server.ID,
		})
		emit(Event{Stage: StageFatalError, Msg: "sync aborted", Error: err.Error(), Stats: stats})
		return err
	}

	emit(Event{Stage: StageStart, Msg: fmt.Sprintf("syncing %s items from library %s", opts.Kind, opts.LibraryKey)})
	log.Info().Str("mode", string(opts.Mode)).Bool("dry_run", opts.DryRun).Msg("sync started")

	lib, err := o.resolveLibrary(ctx, server, opts.LibraryKey)
	if err != nil {
		return fatal(err, "resolve_library")
	}
	emit(Event{Stage: StageLibraryReady, Msg: fmt.Sprintf("library %q ready", lib.Title), LibraryID: lib.ID})

	mode := opts.Mode
	since := opts.SinceEpoch
	if mode == ModeIncremental && since == nil {
		since = lib.LastIncrementalEpoch
		if since == nil {
			// A completed full sync works as the baseline too.
			since = lib.LastFullSyncEpoch
		}
		if since == nil {
			// Nothing to diff against yet.
			mode = ModeFull
			log.Info().Msg("no sync watermark, upgrading to full sync")
		}
	}
	if mode == ModeFull {
		since = nil
	}

	itemType := plex.TypeMovie
	if opts.Kind == catalog.ItemKindEpisode {
		itemType = plex.TypeEpisode
	}

	startEpoch := o.now().Unix()
	emit(Event{Stage: StageFetching, Msg: "fetching items", LibraryID: lib.ID})

	it := o.client.Iterate(opts.LibraryKey, itemType, plex.ItemOptions{
		Limit:      opts.Limit,
		SinceEpoch: since,
	})

	var batch []*mapper.Result
	flush := func(stage Stage) {
		if len(batch) == 0 {
			return
		}
		n := len(batch)
		if stage == StageFinalBatch {
			emit(Event{Stage: StageFinalBatch, Msg: fmt.Sprintf("processing final batch of %d items", n), LibraryID: lib.ID})
		}
		if err := o.processBatch(ctx, server, lib, batch, startEpoch, stats, emit); err != nil {
			o.faults.Handle(err, faults.Context{
				Operation: "process_batch",
				ServerID:  server.ID,
				LibraryID: lib.ID,
			})
			stats.Errors += n
			emit(Event{Stage: StageError, Msg: fmt.Sprintf("batch of %d items rolled back", n), Error: err.Error(), LibraryID: lib.ID})
		} else if stage != StageFinalBatch {
			emit(Event{Stage: StageBatchComplete, Msg: fmt.Sprintf("batch of %d items committed", n), Stats: stats, LibraryID: lib.ID})
		}
		batch = batch[:0]
	}

	for it.Next(ctx) {
		if err := ctx.Err(); err != nil {
			flush(StageFinalBatch)
			return fatal(err, "iterate_items")
		}

		md := it.Item()
		stats.Scanned++

		if stats.Scanned <= scanningPreviewCount {
			emit(Event{Stage: StageScanning, Msg: fmt.Sprintf("scanning %q", md.Title), ItemTitle: md.Title, LibraryID: lib.ID})
		}

		res, err := mapper.MapItem(md, server.ID, lib.ID)
		if err != nil {
			o.faults.Handle(err, faults.Context{
				Operation: "map_item",
				ItemKey:   md.RatingKey,
				ServerID:  server.ID,
				LibraryID: lib.ID,
			})
			stats.Errors++
			emit(Event{Stage: StageError, Msg: fmt.Sprintf("cannot map %q", md.Title), Error: err.Error(), ItemTitle: md.Title, LibraryID: lib.ID})
			continue
		}
		stats.Mapped++

		if opts.DryRun {
			stats.Skipped++
			log.Info().Str("item", res.Item.Title).Str("rating_key", res.Item.ExternalRatingKey).
				Int("files", len(res.Files)).Msg("dry run: would upsert")
			if stats.Scanned%opts.ProgressInterval == 0 {
				emit(Event{Stage: StageProgress, Msg: fmt.Sprintf("%d items scanned", stats.Scanned), Stats: stats, LibraryID: lib.ID})
			}
			continue
		}

		batch = append(batch, res)
		if len(batch) >= opts.BatchSize {
			flush(StageBatchComplete)
		}
	}

	if err := it.Err(); err != nil {
		flush(StageFinalBatch)
		return fatal(err, "iterate_items")
	}

	flush(StageFinalBatch)

	if !opts.DryRun && stats.Errors == 0 {
		var err error
		switch mode {
		case ModeFull:
			err = o.store.SetLibraryLastFull(ctx, lib.ID, startEpoch)
		case ModeIncremental:
			err = o.store.SetLibraryLastIncremental(ctx, lib.ID, startEpoch)
		}
		if err != nil {
			return fatal(err, "set_watermark")
		}
	}

	emit(Event{Stage: StageComplete, Msg: fmt.Sprintf("sync complete: %d scanned, %d errors", stats.Scanned, stats.Errors), Stats: stats, LibraryID: lib.ID})
	log.Info().
		Int("scanned", stats.Scanned).
		Int("inserted_items", stats.InsertedItems).
		Int("updated_items", stats.UpdatedItems).
		Int("errors", stats.Errors).
		Msg("sync finished")
	return nil
}

// resolveLibrary discovers the section on the remote and upserts the
// matching library row.
func (o *Orchestrator) resolveLibrary(ctx context.Context, server *catalog.Server, libraryKey string) (*catalog.Library, error) {
	dirs, err := o.client.Discover(ctx)
	if err != nil {
		return nil, err
	}

	for _, d := range dirs {
		if d.Key != libraryKey {
			continue
		}
		kind := catalog.LibraryKindMovie
		if d.Type == "show" {
			kind = catalog.LibraryKindShow
		}
		id, err := o.store.UpsertLibrary(ctx, server.ID, d.Key, d.Title, kind)
		if err != nil {
			return nil, err
		}
		return o.store.GetLibrary(ctx, id)
	}
	return nil, fmt.Errorf("library %q not found on server %s", libraryKey, server.Name)
}

// fileWork pairs a mapped file with its validation result.
type fileWork struct {
	file *catalog.MediaFile
	vres *validate.Result
}

// processBatch validates every file in the batch, then writes the batch
// in a single transaction. Validation runs before the transaction opens:
// it stats files and shells out to the probe, neither of which belongs
// inside a write transaction on a single-connection database.
func (o *Orchestrator) processBatch(ctx context.Context, server *catalog.Server, lib *catalog.Library, batch []*mapper.Result, seenAt int64, stats *Stats, emit func(Event)) error {
	work := make(map[*mapper.Result][]fileWork, len(batch))
	for _, res := range batch {
		if err := ctx.Err(); err != nil {
			return err
		}

		var durationMs int64
		if res.Item.DurationMs != nil {
			durationMs = *res.Item.DurationMs
		}

		var files []fileWork
		for i := range res.Files {
			f := &res.Files[i]
			vres, err := o.validator.ValidateFile(ctx, validate.Input{
				ServerID:   server.ID,
				LibraryID:  lib.ID,
				RemotePath: f.FilePath,
				VideoCodec: f.VideoCodec,
				AudioCodec: f.AudioCodec,
				DurationMs: durationMs,
			})
			if err != nil {
				return err
			}
			if !vres.Valid() {
				stats.Errors++
				o.faults.Handle(fmt.Errorf("%w: %s", catalog.ErrValidation, vres.Message), faults.Context{
					Operation: "validate_file",
					ItemKey:   res.Item.ExternalRatingKey,
					ServerID:  server.ID,
					LibraryID: lib.ID,
					FilePath:  f.FilePath,
				})
				emit(Event{
					Stage:     StageValidationError,
					Msg:       fmt.Sprintf("⚠ %s: %s", res.Item.Title, vres.Message),
					ItemTitle: res.Item.Title,
					LibraryID: lib.ID,
					Error:     string(vres.Status),
				})
				continue
			}
			files = append(files, fileWork{file: f, vres: vres})
		}
		work[res] = files
	}

	return o.store.WithTx(ctx, func(tx *catalog.Store) error {
		for _, res := range batch {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := o.writeItem(ctx, tx, server, lib, res, work[res], seenAt, stats); err != nil {
				return err
			}
		}
		return nil
	})
}

func (o *Orchestrator) writeItem(ctx context.Context, tx *catalog.Store, server *catalog.Server, lib *catalog.Library, res *mapper.Result, files []fileWork, seenAt int64, stats *Stats) error {
	if res.Item.Kind == catalog.ItemKindEpisode && res.Show != nil {
		showID, err := tx.GetOrCreateShow(ctx, server.ID, lib.ID,
			res.Show.ExternalRatingKey, res.Show.Title, nil, res.Show.ArtworkURL)
		if err != nil {
			return err
		}
		res.Item.ShowID = &showID

		if len(res.Show.GUIDs) > 0 {
			if err := tx.UpsertShowGUIDs(ctx, showID, res.Show.GUIDs); err != nil {
				return err
			}
		}

		if res.Item.SeasonNumber != nil {
			seasonID, err := tx.GetOrCreateSeason(ctx, showID, *res.Item.SeasonNumber,
				res.Show.SeasonRatingKey, "")
			if err != nil {
				return err
			}
			res.Item.SeasonID = &seasonID
		}
	}

	itemID, outcome, err := tx.UpsertContentItem(ctx, &res.Item)
	if err != nil {
		return err
	}
	switch outcome {
	case catalog.OutcomeInserted:
		stats.InsertedItems++
	case catalog.OutcomeUpdated:
		stats.UpdatedItems++
	}

	for _, w := range files {
		f, vres := w.file, w.vres

		// Carry the validated truth forward instead of the remote's claims.
		f.ContentItemID = itemID
		f.FilePath = vres.LocalPath
		f.VideoCodec = vres.VideoCodec
		f.AudioCodec = vres.AudioCodec
		if vres.SizeBytes > 0 {
			f.SizeBytes = vres.SizeBytes
		}
		if vres.Width > 0 {
			width := vres.Width
			f.Width = &width
		}
		if vres.Height > 0 {
			height := vres.Height
			f.Height = &height
		}
		if vres.Container != "" {
			f.Container = vres.Container
		}

		fileID, fOutcome, err := tx.UpsertMediaFile(ctx, f, seenAt)
		if err != nil {
			return err
		}
		switch fOutcome {
		case catalog.OutcomeInserted:
			stats.InsertedFiles++
		case catalog.OutcomeUpdated:
			stats.UpdatedFiles++
		}

		if err := tx.LinkContentItemFile(ctx, itemID, fileID, "primary"); err != nil {
			return err
		}
		stats.Linked++
	}

	if err := tx.UpsertEditorial(ctx, itemID, &res.Editorial); err != nil {
		return err
	}
	for _, tag := range res.Tags {
		if err := tx.UpsertTag(ctx, itemID, tag); err != nil {
			return err
		}
	}
	if len(res.GUIDs) > 0 {
		if err := tx.UpsertItemGUIDs(ctx, itemID, res.GUIDs); err != nil {
			return err
		}
	}

	return nil
}
