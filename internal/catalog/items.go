package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const itemColumns = `id, server_id, library_id, external_rating_key, kind, title, synopsis,
	duration_ms, rating_system, rating_code, is_kids_friendly,
	show_id, season_id, season_number, episode_number, metadata_updated_at`

func scanItem(scanner interface{ Scan(...any) error }) (ContentItem, error) {
	var it ContentItem
	var synopsis, ratingSystem, ratingCode sql.NullString
	var durationMs, showID, seasonID, seasonNum, episodeNum, metaUpdated sql.NullInt64
	var kids int64

	err := scanner.Scan(&it.ID, &it.ServerID, &it.LibraryID, &it.ExternalRatingKey, &it.Kind,
		&it.Title, &synopsis, &durationMs, &ratingSystem, &ratingCode, &kids,
		&showID, &seasonID, &seasonNum, &episodeNum, &metaUpdated)
	if err != nil {
		return it, err
	}

	it.IsKidsFriendly = kids == 1
	it.Synopsis = synopsis.String
	it.RatingSystem = ratingSystem.String
	it.RatingCode = ratingCode.String
	if durationMs.Valid {
		it.DurationMs = &durationMs.Int64
	}
	if showID.Valid {
		it.ShowID = &showID.Int64
	}
	if seasonID.Valid {
		it.SeasonID = &seasonID.Int64
	}
	if seasonNum.Valid {
		n := int(seasonNum.Int64)
		it.SeasonNumber = &n
	}
	if episodeNum.Valid {
		n := int(episodeNum.Int64)
		it.EpisodeNumber = &n
	}
	if metaUpdated.Valid {
		it.MetadataUpdatedAt = &metaUpdated.Int64
	}
	return it, nil
}

// UpsertContentItem writes a content item keyed by
// (server_id, library_id, external_rating_key). Episodes must carry a
// show id. metadata_updated_at only ever advances: an older remote
// timestamp never overwrites a newer one.
func (s *Store) UpsertContentItem(ctx context.Context, item *ContentItem) (int64, UpsertOutcome, error) {
	if item.Kind == ItemKindEpisode && item.ShowID == nil {
		return 0, OutcomeUnchanged, fmt.Errorf("%w: episode requires a show", ErrValidation)
	}

	existing, err := scanItem(s.q.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM content_items
		 WHERE server_id = ? AND library_id = ? AND external_rating_key = ?`,
		item.ServerID, item.LibraryID, item.ExternalRatingKey,
	))
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, OutcomeUnchanged, fmt.Errorf("looking up content item: %w", err)
	}

	if errors.Is(err, sql.ErrNoRows) {
		var id int64
		err := s.q.QueryRowContext(ctx, `
			INSERT INTO content_items (server_id, library_id, external_rating_key, kind, title,
				synopsis, duration_ms, rating_system, rating_code, is_kids_friendly,
				show_id, season_id, season_number, episode_number, metadata_updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			RETURNING id`,
			item.ServerID, item.LibraryID, item.ExternalRatingKey, string(item.Kind), item.Title,
			nullStr(item.Synopsis), nullInt64(item.DurationMs), nullStr(item.RatingSystem),
			nullStr(item.RatingCode), boolToInt(item.IsKidsFriendly),
			nullInt64(item.ShowID), nullInt64(item.SeasonID), nullInt(item.SeasonNumber),
			nullInt(item.EpisodeNumber), nullInt64(item.MetadataUpdatedAt),
		).Scan(&id)
		if err != nil {
			return 0, OutcomeUnchanged, fmt.Errorf("inserting content item: %w", err)
		}
		return id, OutcomeInserted, nil
	}

	// Keep the newer remote timestamp regardless of write order.
	metaUpdated := existing.MetadataUpdatedAt
	if item.MetadataUpdatedAt != nil &&
		(metaUpdated == nil || *item.MetadataUpdatedAt > *metaUpdated) {
		metaUpdated = item.MetadataUpdatedAt
	}

	if itemEqual(&existing, item) && int64Equal(metaUpdated, existing.MetadataUpdatedAt) {
		return existing.ID, OutcomeUnchanged, nil
	}

	_, err = s.q.ExecContext(ctx, `
		UPDATE content_items SET kind = ?, title = ?, synopsis = ?, duration_ms = ?,
			rating_system = ?, rating_code = ?, is_kids_friendly = ?,
			show_id = ?, season_id = ?, season_number = ?, episode_number = ?,
			metadata_updated_at = ?
		WHERE id = ?`,
		string(item.Kind), item.Title, nullStr(item.Synopsis), nullInt64(item.DurationMs),
		nullStr(item.RatingSystem), nullStr(item.RatingCode), boolToInt(item.IsKidsFriendly),
		nullInt64(item.ShowID), nullInt64(item.SeasonID), nullInt(item.SeasonNumber),
		nullInt(item.EpisodeNumber), nullInt64(metaUpdated),
		existing.ID,
	)
	if err != nil {
		return 0, OutcomeUnchanged, fmt.Errorf("updating content item: %w", err)
	}
	return existing.ID, OutcomeUpdated, nil
}

// GetContentItem returns a content item by id.
func (s *Store) GetContentItem(ctx context.Context, id int64) (*ContentItem, error) {
	it, err := scanItem(s.q.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM content_items WHERE id = ?`, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("content item %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting content item: %w", err)
	}
	return &it, nil
}

// CountContentItems returns the number of items in a library.
func (s *Store) CountContentItems(ctx context.Context, libraryID int64) (int64, error) {
	var n int64
	err := s.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM content_items WHERE library_id = ?`, libraryID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting content items: %w", err)
	}
	return n, nil
}

// itemEqual compares the remote-derived columns of two items, ignoring id
// and metadata_updated_at (handled separately for monotonicity).
func itemEqual(a, b *ContentItem) bool {
	return a.Kind == b.Kind &&
		a.Title == b.Title &&
		a.Synopsis == b.Synopsis &&
		int64Equal(a.DurationMs, b.DurationMs) &&
		a.RatingSystem == b.RatingSystem &&
		a.RatingCode == b.RatingCode &&
		a.IsKidsFriendly == b.IsKidsFriendly &&
		int64Equal(a.ShowID, b.ShowID) &&
		int64Equal(a.SeasonID, b.SeasonID) &&
		intEqual(a.SeasonNumber, b.SeasonNumber) &&
		intEqual(a.EpisodeNumber, b.EpisodeNumber)
}

func int64Equal(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func intEqual(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
