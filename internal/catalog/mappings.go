package catalog

import (
	"context"
	"fmt"
)

// InsertPathMapping records a (remote prefix, local prefix) pair for a
// server/library scope. Duplicates are allowed; resolution picks the
// longest prefix.
func (s *Store) InsertPathMapping(ctx context.Context, serverID, libraryID int64, plexPath, localPath string) (int64, error) {
	if plexPath == "" || localPath == "" {
		return 0, fmt.Errorf("%w: mapping paths must not be empty", ErrValidation)
	}

	var id int64
	err := s.q.QueryRowContext(ctx, `
		INSERT INTO path_mappings (server_id, library_id, plex_path, local_path)
		VALUES (?, ?, ?, ?) RETURNING id`,
		serverID, libraryID, plexPath, localPath,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("inserting path mapping: %w", err)
	}
	return id, nil
}

// GetPathMappings returns all mappings for a server/library pair in
// insertion order.
func (s *Store) GetPathMappings(ctx context.Context, serverID, libraryID int64) ([]PathMapping, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, server_id, library_id, plex_path, local_path
		FROM path_mappings WHERE server_id = ? AND library_id = ? ORDER BY id`,
		serverID, libraryID)
	if err != nil {
		return nil, fmt.Errorf("listing path mappings: %w", err)
	}
	defer rows.Close()

	mappings := []PathMapping{}
	for rows.Next() {
		var m PathMapping
		if err := rows.Scan(&m.ID, &m.ServerID, &m.LibraryID, &m.PlexPath, &m.LocalPath); err != nil {
			return nil, err
		}
		mappings = append(mappings, m)
	}
	return mappings, rows.Err()
}

// DeletePathMapping removes a mapping by id. Returns false when no row
// matched.
func (s *Store) DeletePathMapping(ctx context.Context, id int64) (bool, error) {
	result, err := s.q.ExecContext(ctx, `DELETE FROM path_mappings WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("deleting path mapping: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking rows affected: %w", err)
	}
	return n > 0, nil
}
