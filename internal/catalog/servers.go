package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

const serverColumns = `id, name, base_url, token, is_default, created_at, updated_at`

func scanServer(scanner interface{ Scan(...any) error }) (Server, error) {
	var srv Server
	var isDefault int64
	err := scanner.Scan(&srv.ID, &srv.Name, &srv.BaseURL, &srv.Token, &isDefault, &srv.CreatedAt, &srv.UpdatedAt)
	srv.IsDefault = isDefault == 1
	return srv, err
}

// AddServer registers a remote media server. Idempotent on name: adding a
// server whose name already exists updates its URL and token in place.
func (s *Store) AddServer(ctx context.Context, name, baseURL, token string) (int64, error) {
	name = strings.TrimSpace(name)
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")

	if name == "" {
		return 0, fmt.Errorf("%w: server name must not be empty", ErrValidation)
	}
	if token == "" {
		return 0, fmt.Errorf("%w: server token must not be empty", ErrValidation)
	}
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		return 0, fmt.Errorf("%w: base URL must start with http:// or https://", ErrValidation)
	}

	sealed, err := s.sealToken(token)
	if err != nil {
		return 0, fmt.Errorf("sealing token: %w", err)
	}

	var id int64
	err = s.q.QueryRowContext(ctx, `
		INSERT INTO servers (name, base_url, token)
		VALUES (?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET
			base_url = excluded.base_url,
			token = excluded.token,
			updated_at = CURRENT_TIMESTAMP
		RETURNING id`,
		name, baseURL, sealed,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("adding server: %w", err)
	}

	s.logger.Info().Int64("id", id).Str("name", name).Msg("server registered")
	return id, nil
}

// GetServer returns a server by id with its token opened.
func (s *Store) GetServer(ctx context.Context, id int64) (*Server, error) {
	srv, err := scanServer(s.q.QueryRowContext(ctx,
		`SELECT `+serverColumns+` FROM servers WHERE id = ?`, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("server %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting server: %w", err)
	}
	if srv.Token, err = s.openToken(srv.Token); err != nil {
		return nil, fmt.Errorf("opening server token: %w", err)
	}
	return &srv, nil
}

// GetServerByName returns a server by its unique name.
func (s *Store) GetServerByName(ctx context.Context, name string) (*Server, error) {
	srv, err := scanServer(s.q.QueryRowContext(ctx,
		`SELECT `+serverColumns+` FROM servers WHERE name = ?`, name,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("server %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting server: %w", err)
	}
	if srv.Token, err = s.openToken(srv.Token); err != nil {
		return nil, fmt.Errorf("opening server token: %w", err)
	}
	return &srv, nil
}

// ListServers returns all registered servers ordered by id. Tokens are
// left sealed; callers needing a usable token go through GetServer.
func (s *Store) ListServers(ctx context.Context) ([]Server, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT `+serverColumns+` FROM servers ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing servers: %w", err)
	}
	defer rows.Close()

	servers := []Server{}
	for rows.Next() {
		srv, err := scanServer(rows)
		if err != nil {
			return nil, err
		}
		srv.Token = ""
		servers = append(servers, srv)
	}
	return servers, rows.Err()
}

// DeleteServer removes a server; libraries, shows, items, files, mappings
// and the rest of the tree go with it via ON DELETE CASCADE.
func (s *Store) DeleteServer(ctx context.Context, id int64) error {
	result, err := s.q.ExecContext(ctx, `DELETE FROM servers WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting server: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("server %d: %w", id, ErrNotFound)
	}
	s.logger.Info().Int64("id", id).Msg("server deleted")
	return nil
}

// SetDefaultServer atomically clears all defaults and marks one server.
// Post-condition: exactly one default row.
func (s *Store) SetDefaultServer(ctx context.Context, id int64) error {
	return s.WithTx(ctx, func(tx *Store) error {
		if _, err := tx.q.ExecContext(ctx, `UPDATE servers SET is_default = 0 WHERE is_default = 1`); err != nil {
			return fmt.Errorf("clearing default servers: %w", err)
		}
		result, err := tx.q.ExecContext(ctx, `UPDATE servers SET is_default = 1 WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("setting default server: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("checking rows affected: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("server %d: %w", id, ErrNotFound)
		}
		return nil
	})
}

// SetDefaultServerByName is SetDefaultServer keyed by the unique name.
func (s *Store) SetDefaultServerByName(ctx context.Context, name string) error {
	srv, err := s.GetServerByName(ctx, name)
	if err != nil {
		return err
	}
	return s.SetDefaultServer(ctx, srv.ID)
}

// DefaultServer returns the server marked as default, or ErrNotFound.
func (s *Store) DefaultServer(ctx context.Context) (*Server, error) {
	srv, err := scanServer(s.q.QueryRowContext(ctx,
		`SELECT `+serverColumns+` FROM servers WHERE is_default = 1`,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("default server: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting default server: %w", err)
	}
	if srv.Token, err = s.openToken(srv.Token); err != nil {
		return nil, fmt.Errorf("opening server token: %w", err)
	}
	return &srv, nil
}
