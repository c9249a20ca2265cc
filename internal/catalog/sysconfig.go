package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// GetConfig returns a system_config value, or ErrNotFound.
func (s *Store) GetConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := s.q.QueryRowContext(ctx,
		`SELECT value FROM system_config WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("config %q: %w", key, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("getting config: %w", err)
	}
	return value, nil
}

// SetConfig writes a system_config value.
func (s *Store) SetConfig(ctx context.Context, key, value string) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO system_config (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET
			value = excluded.value,
			updated_at = CURRENT_TIMESTAMP`,
		key, value)
	if err != nil {
		return fmt.Errorf("setting config: %w", err)
	}
	return nil
}
