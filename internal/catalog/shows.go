package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// GetOrCreateShow returns the id of the show identified by its remote
// rating key, creating it on first sight. Title, year and artwork refresh
// on every call so re-syncs pick up remote edits.
func (s *Store) GetOrCreateShow(ctx context.Context, serverID, libraryID int64, ratingKey, title string, year *int, artworkURL string) (int64, error) {
	var id int64
	err := s.q.QueryRowContext(ctx,
		`SELECT id FROM shows WHERE server_id = ? AND library_id = ? AND external_rating_key = ?`,
		serverID, libraryID, ratingKey,
	).Scan(&id)
	if err == nil {
		if _, err := s.q.ExecContext(ctx,
			`UPDATE shows SET title = ?, year = ?, artwork_url = ? WHERE id = ?
			 AND (title != ? OR year IS NOT ? OR artwork_url IS NOT ?)`,
			title, nullInt(year), nullStr(artworkURL), id,
			title, nullInt(year), nullStr(artworkURL)); err != nil {
			return 0, fmt.Errorf("refreshing show: %w", err)
		}
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("looking up show: %w", err)
	}

	err = s.q.QueryRowContext(ctx,
		`INSERT INTO shows (server_id, library_id, external_rating_key, title, year, artwork_url)
		 VALUES (?, ?, ?, ?, ?, ?) RETURNING id`,
		serverID, libraryID, ratingKey, title, nullInt(year), nullStr(artworkURL),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("creating show: %w", err)
	}
	return id, nil
}

// GetOrCreateSeason returns the id of the season (show_id, season_number),
// creating it on first sight.
func (s *Store) GetOrCreateSeason(ctx context.Context, showID int64, seasonNumber int, ratingKey, title string) (int64, error) {
	var id int64
	err := s.q.QueryRowContext(ctx,
		`SELECT id FROM seasons WHERE show_id = ? AND season_number = ?`,
		showID, seasonNumber,
	).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("looking up season: %w", err)
	}

	err = s.q.QueryRowContext(ctx,
		`INSERT INTO seasons (show_id, season_number, external_rating_key, title)
		 VALUES (?, ?, ?, ?) RETURNING id`,
		showID, seasonNumber, nullStr(ratingKey), nullStr(title),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("creating season: %w", err)
	}
	return id, nil
}

// GetShow returns a show by id.
func (s *Store) GetShow(ctx context.Context, id int64) (*Show, error) {
	var show Show
	var year sql.NullInt64
	var artwork sql.NullString
	err := s.q.QueryRowContext(ctx,
		`SELECT id, server_id, library_id, external_rating_key, title, year, artwork_url
		 FROM shows WHERE id = ?`, id,
	).Scan(&show.ID, &show.ServerID, &show.LibraryID, &show.ExternalRatingKey, &show.Title, &year, &artwork)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("show %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting show: %w", err)
	}
	if year.Valid {
		y := int(year.Int64)
		show.Year = &y
	}
	if artwork.Valid {
		show.ArtworkURL = artwork.String
	}
	return &show, nil
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullStr(v string) sql.NullString {
	if v == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: v, Valid: true}
}
