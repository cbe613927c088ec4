// Package repository provides transaction, locking, and scanning helpers
// shared by the Postgres-backed stores.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// Querier is implemented by *sql.DB, *sql.Tx, and *sql.Conn.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Executor is implemented by *sql.DB, *sql.Tx, and *sql.Conn.
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Conn is the union of Querier and Executor.
type Conn interface {
	Querier
	Executor
}

// Scanner abstracts *sql.Row and *sql.Rows.
type Scanner interface {
	Scan(dest ...any) error
}

// ScanFunc converts a Scanner into a typed value.
type ScanFunc[T any] func(Scanner) (T, error)

// WithTx runs fn inside a transaction, committing on success and rolling
// back on any error.
func WithTx[T any](ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) (T, error)) (T, error) {
	var zero T

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return zero, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := fn(tx)
	if err != nil {
		return zero, err
	}

	if err := tx.Commit(); err != nil {
		return zero, fmt.Errorf("commit tx: %w", err)
	}

	return result, nil
}

// LockKey takes a transaction-scoped advisory lock on key. The lock is
// released when the surrounding transaction commits or rolls back, so two
// transactions locking the same key run one after the other.
func LockKey(ctx context.Context, e Executor, key string) error {
	if _, err := e.ExecContext(ctx, "SELECT pg_advisory_xact_lock(hashtextextended($1, 0))", key); err != nil {
		return fmt.Errorf("advisory lock %s: %w", key, err)
	}
	return nil
}

// QueryOne executes a query expected to return a single row.
func QueryOne[T any](ctx context.Context, q Querier, query string, args []any, scan ScanFunc[T]) (T, error) {
	return scan(q.QueryRowContext(ctx, query, args...))
}

// QueryMany executes a query and scans every row. An empty result is an
// empty, non-nil slice.
func QueryMany[T any](ctx context.Context, q Querier, query string, args []any, scan ScanFunc[T]) ([]T, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]T, 0)
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, item)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return results, nil
}

// ExecExpectOne executes a statement that must affect exactly one row.
// Zero affected rows is reported as sql.ErrNoRows.
func ExecExpectOne(ctx context.Context, e Executor, query string, args ...any) error {
	result, err := e.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}

	n, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if n == 0 {
		return sql.ErrNoRows
	}

	return nil
}

// JSON marshals v for a jsonb parameter.
func JSON(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal jsonb: %w", err)
	}
	return data, nil
}

// UnmarshalJSON decodes a jsonb column into dst. Empty or null columns
// leave dst untouched.
func UnmarshalJSON(raw []byte, dst any, column string) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("unmarshal %s: %w", column, err)
	}
	return nil
}
