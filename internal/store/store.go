// Package store provides typed accessors for the control-plane database:
// projects, credentials, API keys, buckets, file metadata, audit entries,
// backups, cron jobs, users, and invites.
//
// All accessors run against a DBTX, so the same methods work on the pool and
// inside a transaction. Multi-row invariants (e.g. project deletion cascades)
// are coordinated exclusively through WithTx. DDL statements (CREATE/DROP
// DATABASE, CREATE/DROP ROLE) must never run inside WithTx — PostgreSQL
// rejects them in a transaction block; callers split that work explicitly.
package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DBTX is the subset of pgx operations the store needs. Both *pgxpool.Pool
// and pgx.Tx satisfy it.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store provides database operations for the platform metadata schema.
type Store struct {
	db DBTX
}

// New creates a Store over the given connection source.
func New(db DBTX) *Store {
	return &Store{db: db}
}

// WithTx begins a transaction on pool, runs fn with a transaction-scoped
// Store, and commits. Any error from fn rolls the transaction back.
func WithTx(ctx context.Context, pool *pgxpool.Pool, fn func(*Store) error) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(New(tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}
