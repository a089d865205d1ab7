// Package tagsql is a thin, context-first wrapper over database/sql.
// Every core component takes a tagsql.DB instead of a *sql.DB so that
// callers are forced to pass a context.Context (and, later, so that a
// tag can be attached to long-running statements for diagnostics)
// rather than reaching for the context-less *sql.DB methods.
package tagsql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// DB wraps *sql.DB, remembering the driver it was opened with so that
// queries written with "?" placeholders can be rebound to the driver's
// native bind syntax.
type DB struct {
	std        *sql.DB
	driverName string
}

// Open opens a database by driver name and DSN. The options argument is
// reserved for driver options and currently unused.
func Open(ctx context.Context, driverName, dataSourceName string, _ any) (*DB, error) {
	std, err := sql.Open(driverName, dataSourceName)
	if err != nil {
		return nil, err
	}
	if driverName == "sqlite3" || driverName == "sqlite" {
		// sqlite gives every pooled connection its own view of an
		// in-memory database and serializes writers anyway; a single
		// connection keeps :memory: databases coherent.
		std.SetMaxOpenConns(1)
	}
	if err := std.PingContext(ctx); err != nil {
		_ = std.Close()
		return nil, err
	}
	return &DB{std: std, driverName: driverName}, nil
}

// Wrap adapts an already-open *sql.DB. driverName governs Rebind, as
// in Open.
func Wrap(std *sql.DB, driverName string) *DB {
	return &DB{std: std, driverName: driverName}
}

// Std returns the underlying *sql.DB for code that needs driver-specific
// escape hatches (e.g. registering a custom sqlite3 connect hook).
func (db *DB) Std() *sql.DB { return db.std }

// Close closes the underlying connection pool.
func (db *DB) Close() error { return db.std.Close() }

// Rebind rewrites a query written with "?" placeholders into the
// driver's native bind-variable syntax: unchanged for the SQLite
// family, "$1", "$2", ... otherwise.
func (db *DB) Rebind(query string) string {
	if db.driverName == "sqlite3" || db.driverName == "sqlite" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// ExecContext executes a statement without returning rows.
func (db *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return db.std.ExecContext(ctx, query, args...)
}

// QueryContext executes a query that returns rows.
func (db *DB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return db.std.QueryContext(ctx, query, args...)
}

// QueryRowContext executes a query expected to return at most one row.
func (db *DB) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return db.std.QueryRowContext(ctx, query, args...)
}

// BeginTx starts a transaction.
func (db *DB) BeginTx(ctx context.Context, opts *sql.TxOptions) (*Tx, error) {
	std, err := db.std.BeginTx(ctx, opts)
	if err != nil {
		return nil, err
	}
	return &Tx{std: std}, nil
}

// PrepareContext creates a prepared statement.
func (db *DB) PrepareContext(ctx context.Context, query string) (*sql.Stmt, error) {
	return db.std.PrepareContext(ctx, query)
}

// Tx wraps *sql.Tx.
type Tx struct {
	std *sql.Tx
}

// Std returns the underlying *sql.Tx.
func (tx *Tx) Std() *sql.Tx { return tx.std }

// ExecContext executes a statement within the transaction.
func (tx *Tx) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return tx.std.ExecContext(ctx, query, args...)
}

// QueryContext executes a query within the transaction.
func (tx *Tx) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return tx.std.QueryContext(ctx, query, args...)
}

// QueryRowContext executes a single-row query within the transaction.
func (tx *Tx) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return tx.std.QueryRowContext(ctx, query, args...)
}

// Commit commits the transaction.
func (tx *Tx) Commit() error { return tx.std.Commit() }

// Rollback aborts the transaction.
func (tx *Tx) Rollback() error { return tx.std.Rollback() }
