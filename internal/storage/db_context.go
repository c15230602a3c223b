package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// WithTx runs fn inside a transaction, committing on success and rolling
// back on any error fn returns. Every write path in identity, calendar,
// and requests goes through this so a partial operation never persists.
//
// This replaces the teacher's WithTenantContext/WithoutRLS pair: tenant
// isolation here is enforced by the explicit authz.Scope predicate every
// query builds in Go (see ScopeWhere), not by a Postgres session variable
// and row level security policies. The tradeoff is deliberate — scope
// logic stays visible and testable in Go rather than split across two
// languages at the query boundary.
func WithTx(ctx context.Context, pool *pgxpool.Pool, fn func(tx pgx.Tx) error) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("storage: begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) // safe to call after Commit

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("storage: commit transaction: %w", err)
	}

	return nil
}

// Exec is a convenience wrapper for a single statement inside its own
// transaction.
func Exec(ctx context.Context, pool *pgxpool.Pool, sql string, args ...interface{}) error {
	return WithTx(ctx, pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, sql, args...)
		return err
	})
}
