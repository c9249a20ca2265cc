package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const fileColumns = `id, server_id, library_id, content_item_id, external_rating_key, file_path,
	size_bytes, container, video_codec, audio_codec, width, height, bitrate,
	frame_rate, audio_channels, updated_at_remote, first_seen_at, last_seen_at`

func scanFile(scanner interface{ Scan(...any) error }) (MediaFile, error) {
	var f MediaFile
	var container, videoCodec, audioCodec sql.NullString
	var width, height, channels sql.NullInt64
	var bitrate, updatedRemote sql.NullInt64
	var frameRate sql.NullFloat64

	err := scanner.Scan(&f.ID, &f.ServerID, &f.LibraryID, &f.ContentItemID, &f.ExternalRatingKey,
		&f.FilePath, &f.SizeBytes, &container, &videoCodec, &audioCodec,
		&width, &height, &bitrate, &frameRate, &channels,
		&updatedRemote, &f.FirstSeenAt, &f.LastSeenAt)
	if err != nil {
		return f, err
	}

	f.Container = container.String
	f.VideoCodec = videoCodec.String
	f.AudioCodec = audioCodec.String
	if width.Valid {
		w := int(width.Int64)
		f.Width = &w
	}
	if height.Valid {
		h := int(height.Int64)
		f.Height = &h
	}
	if bitrate.Valid {
		f.Bitrate = &bitrate.Int64
	}
	if frameRate.Valid {
		f.FrameRate = &frameRate.Float64
	}
	if channels.Valid {
		c := int(channels.Int64)
		f.AudioChannels = &c
	}
	if updatedRemote.Valid {
		f.UpdatedAtRemote = &updatedRemote.Int64
	}
	return f, nil
}

// UpsertMediaFile writes a media file keyed by (server_id, file_path).
// last_seen_at advances every pass; first_seen_at is set once on insert.
// updated_at_remote only ever advances with the observed remote timestamp.
func (s *Store) UpsertMediaFile(ctx context.Context, file *MediaFile, seenAt int64) (int64, UpsertOutcome, error) {
	if file.FilePath == "" {
		return 0, OutcomeUnchanged, fmt.Errorf("%w: media file path must not be empty", ErrValidation)
	}

	existing, err := scanFile(s.q.QueryRowContext(ctx,
		`SELECT `+fileColumns+` FROM media_files WHERE server_id = ? AND file_path = ?`,
		file.ServerID, file.FilePath,
	))
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, OutcomeUnchanged, fmt.Errorf("looking up media file: %w", err)
	}

	if errors.Is(err, sql.ErrNoRows) {
		var id int64
		err := s.q.QueryRowContext(ctx, `
			INSERT INTO media_files (server_id, library_id, content_item_id, external_rating_key,
				file_path, size_bytes, container, video_codec, audio_codec, width, height,
				bitrate, frame_rate, audio_channels, updated_at_remote, first_seen_at, last_seen_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			RETURNING id`,
			file.ServerID, file.LibraryID, file.ContentItemID, file.ExternalRatingKey,
			file.FilePath, file.SizeBytes, nullStr(file.Container), nullStr(file.VideoCodec),
			nullStr(file.AudioCodec), nullInt(file.Width), nullInt(file.Height),
			nullInt64(file.Bitrate), nullFloat(file.FrameRate), nullInt(file.AudioChannels),
			nullInt64(file.UpdatedAtRemote), seenAt, seenAt,
		).Scan(&id)
		if err != nil {
			return 0, OutcomeUnchanged, fmt.Errorf("inserting media file: %w", err)
		}
		return id, OutcomeInserted, nil
	}

	updatedRemote := existing.UpdatedAtRemote
	if file.UpdatedAtRemote != nil &&
		(updatedRemote == nil || *file.UpdatedAtRemote > *updatedRemote) {
		updatedRemote = file.UpdatedAtRemote
	}

	changed := !fileEqual(&existing, file) || !int64Equal(updatedRemote, existing.UpdatedAtRemote)

	_, err = s.q.ExecContext(ctx, `
		UPDATE media_files SET library_id = ?, content_item_id = ?, external_rating_key = ?,
			size_bytes = ?, container = ?, video_codec = ?, audio_codec = ?,
			width = ?, height = ?, bitrate = ?, frame_rate = ?, audio_channels = ?,
			updated_at_remote = ?, last_seen_at = ?
		WHERE id = ?`,
		file.LibraryID, file.ContentItemID, file.ExternalRatingKey,
		file.SizeBytes, nullStr(file.Container), nullStr(file.VideoCodec), nullStr(file.AudioCodec),
		nullInt(file.Width), nullInt(file.Height), nullInt64(file.Bitrate),
		nullFloat(file.FrameRate), nullInt(file.AudioChannels),
		nullInt64(updatedRemote), seenAt,
		existing.ID,
	)
	if err != nil {
		return 0, OutcomeUnchanged, fmt.Errorf("updating media file: %w", err)
	}

	if changed {
		return existing.ID, OutcomeUpdated, nil
	}
	return existing.ID, OutcomeUnchanged, nil
}

// LinkContentItemFile records the item/file relation. No-op when the link
// already exists.
func (s *Store) LinkContentItemFile(ctx context.Context, contentItemID, mediaFileID int64, role string) error {
	if role == "" {
		role = "primary"
	}
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO content_item_files (content_item_id, media_file_id, role)
		VALUES (?, ?, ?)
		ON CONFLICT (content_item_id, media_file_id, role) DO NOTHING`,
		contentItemID, mediaFileID, role)
	if err != nil {
		return fmt.Errorf("linking content item file: %w", err)
	}
	return nil
}

// ListMediaFiles returns the files backing a content item.
func (s *Store) ListMediaFiles(ctx context.Context, contentItemID int64) ([]MediaFile, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+fileColumns+` FROM media_files WHERE content_item_id = ? ORDER BY id`,
		contentItemID)
	if err != nil {
		return nil, fmt.Errorf("listing media files: %w", err)
	}
	defer rows.Close()

	files := []MediaFile{}
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// CountMediaFiles returns the number of files in a library.
func (s *Store) CountMediaFiles(ctx context.Context, libraryID int64) (int64, error) {
	var n int64
	err := s.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM media_files WHERE library_id = ?`, libraryID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting media files: %w", err)
	}
	return n, nil
}

func fileEqual(a, b *MediaFile) bool {
	return a.LibraryID == b.LibraryID &&
		a.ContentItemID == b.ContentItemID &&
		a.ExternalRatingKey == b.ExternalRatingKey &&
		a.SizeBytes == b.SizeBytes &&
		a.Container == b.Container &&
		a.VideoCodec == b.VideoCodec &&
		a.AudioCodec == b.AudioCodec &&
		intEqual(a.Width, b.Width) &&
		intEqual(a.Height, b.Height) &&
		int64Equal(a.Bitrate, b.Bitrate) &&
		floatEqual(a.FrameRate, b.FrameRate) &&
		intEqual(a.AudioChannels, b.AudioChannels)
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func floatEqual(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
