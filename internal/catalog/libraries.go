package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const libraryColumns = `id, server_id, external_key, title, kind, sync_enabled, last_full_sync_epoch, last_incremental_sync_epoch`

func scanLibrary(scanner interface{ Scan(...any) error }) (Library, error) {
	var lib Library
	var syncEnabled int64
	var lastFull, lastIncr sql.NullInt64
	err := scanner.Scan(&lib.ID, &lib.ServerID, &lib.ExternalKey, &lib.Title, &lib.Kind, &syncEnabled, &lastFull, &lastIncr)
	lib.SyncEnabled = syncEnabled == 1
	if lastFull.Valid {
		lib.LastFullSyncEpoch = &lastFull.Int64
	}
	if lastIncr.Valid {
		lib.LastIncrementalEpoch = &lastIncr.Int64
	}
	return lib, err
}

// UpsertLibrary creates or refreshes a library row discovered on the
// remote. An existing row keeps its sync_enabled flag and watermarks.
func (s *Store) UpsertLibrary(ctx context.Context, serverID int64, externalKey, title string, kind LibraryKind) (int64, error) {
	if kind != LibraryKindMovie && kind != LibraryKindShow {
		return 0, fmt.Errorf("%w: unknown library kind %q", ErrValidation, kind)
	}

	var id int64
	err := s.q.QueryRowContext(ctx, `
		INSERT INTO libraries (server_id, external_key, title, kind)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (server_id, external_key) DO UPDATE SET
			title = excluded.title,
			kind = excluded.kind
		RETURNING id`,
		serverID, externalKey, title, string(kind),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upserting library: %w", err)
	}
	return id, nil
}

// GetLibrary returns a library by id.
func (s *Store) GetLibrary(ctx context.Context, id int64) (*Library, error) {
	lib, err := scanLibrary(s.q.QueryRowContext(ctx,
		`SELECT `+libraryColumns+` FROM libraries WHERE id = ?`, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("library %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting library: %w", err)
	}
	return &lib, nil
}

// GetLibraryByKey returns a library by its remote section key.
func (s *Store) GetLibraryByKey(ctx context.Context, serverID int64, externalKey string) (*Library, error) {
	lib, err := scanLibrary(s.q.QueryRowContext(ctx,
		`SELECT `+libraryColumns+` FROM libraries WHERE server_id = ? AND external_key = ?`,
		serverID, externalKey,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("library %q: %w", externalKey, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting library: %w", err)
	}
	return &lib, nil
}

// ListLibraries returns libraries, optionally scoped to one server.
func (s *Store) ListLibraries(ctx context.Context, serverID *int64) ([]Library, error) {
	query := `SELECT ` + libraryColumns + ` FROM libraries`
	args := []any{}
	if serverID != nil {
		query += ` WHERE server_id = ?`
		args = append(args, *serverID)
	}
	query += ` ORDER BY id`

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing libraries: %w", err)
	}
	defer rows.Close()

	libraries := []Library{}
	for rows.Next() {
		lib, err := scanLibrary(rows)
		if err != nil {
			return nil, err
		}
		libraries = append(libraries, lib)
	}
	return libraries, rows.Err()
}

// SetLibrarySyncEnabled toggles syncing for one library.
func (s *Store) SetLibrarySyncEnabled(ctx context.Context, libraryID int64, enabled bool) (int64, error) {
	result, err := s.q.ExecContext(ctx,
		`UPDATE libraries SET sync_enabled = ? WHERE id = ?`, boolToInt(enabled), libraryID)
	if err != nil {
		return 0, fmt.Errorf("toggling library sync: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}

// SetServerLibrariesSyncEnabled toggles syncing for every library of a server.
func (s *Store) SetServerLibrariesSyncEnabled(ctx context.Context, serverID int64, enabled bool) (int64, error) {
	result, err := s.q.ExecContext(ctx,
		`UPDATE libraries SET sync_enabled = ? WHERE server_id = ?`, boolToInt(enabled), serverID)
	if err != nil {
		return 0, fmt.Errorf("toggling server libraries: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}

// SetLibraryLastFull records the full-sync watermark.
func (s *Store) SetLibraryLastFull(ctx context.Context, libraryID, epoch int64) error {
	if _, err := s.q.ExecContext(ctx,
		`UPDATE libraries SET last_full_sync_epoch = ? WHERE id = ?`, epoch, libraryID); err != nil {
		return fmt.Errorf("setting full sync watermark: %w", err)
	}
	return nil
}

// SetLibraryLastIncremental records the incremental-sync watermark.
func (s *Store) SetLibraryLastIncremental(ctx context.Context, libraryID, epoch int64) error {
	if _, err := s.q.ExecContext(ctx,
		`UPDATE libraries SET last_incremental_sync_epoch = ? WHERE id = ?`, epoch, libraryID); err != nil {
		return fmt.Errorf("setting incremental sync watermark: %w", err)
	}
	return nil
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
