package catalog

import (
	"context"
	"fmt"
)

// UpsertTag writes a namespaced key/value facet on an item. The value
// refreshes in place when the (namespace, key) pair already exists.
func (s *Store) UpsertTag(ctx context.Context, contentItemID int64, tag Tag) error {
	if tag.Namespace == "" || tag.Key == "" {
		return fmt.Errorf("%w: tag namespace and key must not be empty", ErrValidation)
	}
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO content_tags (content_item_id, namespace, key, value)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (content_item_id, namespace, key) DO UPDATE SET
			value = excluded.value`,
		contentItemID, tag.Namespace, tag.Key, tag.Value)
	if err != nil {
		return fmt.Errorf("upserting tag: %w", err)
	}
	return nil
}

// ListTags returns all tags on an item ordered by namespace and key.
func (s *Store) ListTags(ctx context.Context, contentItemID int64) ([]Tag, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT namespace, key, value FROM content_tags
		WHERE content_item_id = ? ORDER BY namespace, key`, contentItemID)
	if err != nil {
		return nil, fmt.Errorf("listing tags: %w", err)
	}
	defer rows.Close()

	tags := []Tag{}
	for rows.Next() {
		var t Tag
		if err := rows.Scan(&t.Namespace, &t.Key, &t.Value); err != nil {
			return nil, err
		}
		tags = append(tags, t)
	}
	return tags, rows.Err()
}
