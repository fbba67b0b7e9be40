// Package postgres implements storage.Store over database/sql with the pgx
// stdlib driver.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"session-plane/backend/internal/storage"
)

// DBTX is the subset of database/sql shared by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements storage.Store backed by Postgres.
type Store struct {
	db *sql.DB
}

// New returns a Store using the given db. Caller owns the db lifecycle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

var _ storage.Store = (*Store)(nil)

// InTx runs fn in one transaction; rollback on error, commit otherwise.
func (s *Store) InTx(ctx context.Context, fn func(tx storage.TxStore) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(&queries{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// queries implements storage.TxStore against a DBTX. The per-entity methods
// live in users.go, sessions.go, tokens.go, and outbox.go.
type queries struct {
	q DBTX
}

var _ storage.TxStore = (*queries)(nil)
