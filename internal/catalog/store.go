// Package catalog implements every read and write against the catalog
// schema. Writes are expressed as upserts keyed by uniqueness constraints,
// never as blind inserts.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/driftsync/driftsync/internal/crypto"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation failed")
)

// dbtx is satisfied by both *sql.DB and *sql.Tx so store methods work
// inside and outside a transaction.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store provides typed access to the catalog database.
type Store struct {
	db        *sql.DB
	q         dbtx
	encryptor *crypto.Encryptor
	logger    zerolog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithEncryptor makes the store seal server tokens before persisting them.
func WithEncryptor(e *crypto.Encryptor) Option {
	return func(s *Store) { s.encryptor = e }
}

// New creates a Store over an open database connection.
func New(db *sql.DB, logger zerolog.Logger, opts ...Option) *Store {
	s := &Store{
		db:     db,
		q:      db,
		logger: logger.With().Str("component", "catalog").Logger(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// WithTx runs fn with a Store bound to a single transaction. The
// transaction commits when fn returns nil and rolls back otherwise.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Store) error) error {
	if _, ok := s.q.(*sql.Tx); ok {
		return errors.New("catalog: nested transaction")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	txStore := &Store{
		db:        s.db,
		q:         tx,
		encryptor: s.encryptor,
		logger:    s.logger,
	}

	if err := fn(txStore); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Warn().Err(rbErr).Msg("rollback failed")
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// sealToken encrypts a token when an encryptor is configured.
func (s *Store) sealToken(token string) (string, error) {
	if s.encryptor == nil {
		return token, nil
	}
	return s.encryptor.Encrypt(token)
}

// openToken decrypts a token when an encryptor is configured.
func (s *Store) openToken(stored string) (string, error) {
	if s.encryptor == nil {
		return stored, nil
	}
	return s.encryptor.Decrypt(stored)
}
