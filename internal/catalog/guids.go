package catalog

import (
	"context"
	"database/sql"
	"fmt"
)

// UpsertShowGUIDs attaches external identifiers to a show. The primary
// flag follows the provider preference already decided by the mapper;
// re-attaching an existing (provider, external_id) pair re-points it.
func (s *Store) UpsertShowGUIDs(ctx context.Context, showID int64, guids []GUID) error {
	for _, g := range guids {
		_, err := s.q.ExecContext(ctx, `
			INSERT INTO guids (provider, external_id, show_id, is_primary)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (provider, external_id) DO UPDATE SET
				show_id = excluded.show_id,
				is_primary = excluded.is_primary`,
			string(g.Provider), g.ExternalID, showID, boolToInt(g.IsPrimary))
		if err != nil {
			return fmt.Errorf("upserting show guid %s://%s: %w", g.Provider, g.ExternalID, err)
		}
	}
	return nil
}

// UpsertItemGUIDs attaches external identifiers to a content item.
func (s *Store) UpsertItemGUIDs(ctx context.Context, contentItemID int64, guids []GUID) error {
	for _, g := range guids {
		_, err := s.q.ExecContext(ctx, `
			INSERT INTO guids (provider, external_id, content_item_id, is_primary)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (provider, external_id) DO UPDATE SET
				content_item_id = excluded.content_item_id,
				is_primary = excluded.is_primary`,
			string(g.Provider), g.ExternalID, contentItemID, boolToInt(g.IsPrimary))
		if err != nil {
			return fmt.Errorf("upserting item guid %s://%s: %w", g.Provider, g.ExternalID, err)
		}
	}
	return nil
}

// ListShowGUIDs returns the identifiers attached to a show, primary first.
func (s *Store) ListShowGUIDs(ctx context.Context, showID int64) ([]GUID, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT provider, external_id, is_primary FROM guids
		WHERE show_id = ? ORDER BY is_primary DESC, provider`, showID)
	if err != nil {
		return nil, fmt.Errorf("listing show guids: %w", err)
	}
	defer rows.Close()
	return collectGUIDs(rows)
}

// ListItemGUIDs returns the identifiers attached to a content item.
func (s *Store) ListItemGUIDs(ctx context.Context, contentItemID int64) ([]GUID, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT provider, external_id, is_primary FROM guids
		WHERE content_item_id = ? ORDER BY is_primary DESC, provider`, contentItemID)
	if err != nil {
		return nil, fmt.Errorf("listing item guids: %w", err)
	}
	defer rows.Close()
	return collectGUIDs(rows)
}

func collectGUIDs(rows *sql.Rows) ([]GUID, error) {
	guids := []GUID{}
	for rows.Next() {
		var g GUID
		var primary int64
		if err := rows.Scan(&g.Provider, &g.ExternalID, &primary); err != nil {
			return nil, err
		}
		g.IsPrimary = primary == 1
		guids = append(guids, g)
	}
	return guids, rows.Err()
}
