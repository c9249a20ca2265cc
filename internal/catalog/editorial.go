package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// UpsertEditorial snapshots the original remote metadata for an item.
// Human overrides are never written here; re-syncs refresh the snapshot
// while leaving override columns untouched.
func (s *Store) UpsertEditorial(ctx context.Context, contentItemID int64, e *Editorial) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO content_editorial (content_item_id, original_title, original_synopsis, source_payload_json)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (content_item_id) DO UPDATE SET
			original_title = excluded.original_title,
			original_synopsis = excluded.original_synopsis,
			source_payload_json = excluded.source_payload_json`,
		contentItemID, nullStr(e.OriginalTitle), nullStr(e.OriginalSynopsis), nullStr(e.SourcePayloadJSON))
	if err != nil {
		return fmt.Errorf("upserting editorial: %w", err)
	}
	return nil
}

// SetEditorialOverrides records human title/synopsis overrides for an item.
func (s *Store) SetEditorialOverrides(ctx context.Context, contentItemID int64, title, synopsis string) error {
	now := time.Now().Unix()
	result, err := s.q.ExecContext(ctx, `
		UPDATE content_editorial
		SET override_title = ?, override_synopsis = ?, override_updated_at = ?
		WHERE content_item_id = ?`,
		nullStr(title), nullStr(synopsis), now, contentItemID)
	if err != nil {
		return fmt.Errorf("setting editorial overrides: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("editorial for item %d: %w", contentItemID, ErrNotFound)
	}
	return nil
}

// GetEditorial returns the editorial record for an item.
func (s *Store) GetEditorial(ctx context.Context, contentItemID int64) (*Editorial, error) {
	var e Editorial
	var origTitle, origSynopsis, payload, ovrTitle, ovrSynopsis sql.NullString
	var ovrUpdated sql.NullInt64

	err := s.q.QueryRowContext(ctx, `
		SELECT content_item_id, original_title, original_synopsis, source_payload_json,
			override_title, override_synopsis, override_updated_at
		FROM content_editorial WHERE content_item_id = ?`, contentItemID,
	).Scan(&e.ContentItemID, &origTitle, &origSynopsis, &payload, &ovrTitle, &ovrSynopsis, &ovrUpdated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("editorial for item %d: %w", contentItemID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting editorial: %w", err)
	}

	e.OriginalTitle = origTitle.String
	e.OriginalSynopsis = origSynopsis.String
	e.SourcePayloadJSON = payload.String
	e.OverrideTitle = ovrTitle.String
	e.OverrideSynopsis = ovrSynopsis.String
	if ovrUpdated.Valid {
		e.OverrideUpdatedAt = &ovrUpdated.Int64
	}
	return &e, nil
}
