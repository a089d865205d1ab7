package vaultdb

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"github.com/cloudvault/vaultd/shared/dbutil"
	"github.com/cloudvault/vaultd/shared/migrate"
	"github.com/cloudvault/vaultd/shared/tagsql"
)

// Error is the class of unexpected database failures.
var Error = errs.Class("vaultdb")

// DB is the shared handle every repository implementation in this
// package is built on: a dialect-tagged tagsql.DB plus the generic
// helpers the backup engine needs to operate on arbitrary tables.
type DB struct {
	sql     *tagsql.DB
	Dialect dbutil.Dialect
	log     *zap.Logger
}

// Open opens driverName/dsn and bootstraps the schema.
func Open(ctx context.Context, log *zap.Logger, driverName, dsn string) (*DB, error) {
	conn, err := tagsql.Open(ctx, driverName, dsn, nil)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	db := &DB{sql: conn, Dialect: dbutil.DialectForDriver(driverName), log: log}
	if err := db.bootstrap(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return db, nil
}

// Close releases the underlying connection pool.
func (db *DB) Close() error { return db.sql.Close() }

func (db *DB) bootstrap(ctx context.Context) error {
	m := migrate.Migration{Table: "schema_migrations_version"}
	for _, step := range schemaSteps {
		m.Steps = append(m.Steps, &migrate.Step{
			DB:          db.sql,
			Description: step.description,
			Version:     step.version,
			Action:      step.statements,
		})
	}
	if err := m.Run(ctx, db.log); err != nil {
		return Error.Wrap(err)
	}

	current, err := m.CurrentVersion(ctx, db.log, db.sql)
	if err != nil {
		return Error.Wrap(err)
	}
	label := fmt.Sprintf("app-v%02d", current)
	insert := `INSERT OR IGNORE INTO schema_migrations (version, applied_at) VALUES (?, ?)`
	if db.Dialect != dbutil.SQLite {
		insert = `INSERT INTO schema_migrations (version, applied_at) VALUES ($1, $2) ON CONFLICT (version) DO NOTHING`
	}
	_, err = db.sql.ExecContext(ctx, insert, label, time.Now().UTC().Format(time.RFC3339))
	return Error.Wrap(err)
}

// SchemaVersion returns the "app-vNN" label for the highest applied
// schema version.
func (db *DB) SchemaVersion(ctx context.Context) (string, error) {
	m := migrate.Migration{Table: "schema_migrations_version"}
	current, err := m.CurrentVersion(ctx, db.log, db.sql)
	if err != nil {
		return "", Error.Wrap(err)
	}
	return fmt.Sprintf("app-v%02d", current), nil
}

// TableExists reports whether table is present in the live schema. It
// is best-effort: on introspection failure it returns true, so the
// missing-table check does not block and pre-flight stays advisory.
func (db *DB) TableExists(ctx context.Context, table string) bool {
	query := `SELECT COUNT(*) FROM information_schema.tables WHERE table_name = $1`
	if db.Dialect == dbutil.SQLite {
		query = `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`
	}
	var n int
	if err := db.sql.QueryRowContext(ctx, query, table).Scan(&n); err != nil {
		return true
	}
	return n > 0
}

// TableColumns returns the live column names for table, or ok=false if
// introspection failed; introspection is best-effort.
func (db *DB) TableColumns(ctx context.Context, table string) (columns []string, ok bool) {
	return db.tableColumns(ctx, table)
}

func (db *DB) tableColumns(ctx context.Context, table string) ([]string, bool) {
	if db.Dialect == dbutil.SQLite {
		rows, err := db.sql.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", quoteIdent(table)))
		if err != nil {
			return nil, false
		}
		defer rows.Close()
		var cols []string
		for rows.Next() {
			var cid int
			var name, ctype string
			var notnull, pk int
			var dflt sql.NullString
			if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
				return nil, false
			}
			cols = append(cols, name)
		}
		if err := rows.Err(); err != nil {
			return nil, false
		}
		if len(cols) == 0 {
			return nil, false
		}
		return cols, true
	}

	rows, err := db.sql.QueryContext(ctx,
		`SELECT column_name FROM information_schema.columns WHERE table_name = $1`, table)
	if err != nil {
		return nil, false
	}
	defer rows.Close()
	var cols []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, false
		}
		cols = append(cols, name)
	}
	if len(cols) == 0 {
		return nil, false
	}
	return cols, true
}

func quoteIdent(name string) string {
	return strings.ReplaceAll(name, `"`, "")
}

// Rebind rewrites a query written with "?" placeholders into the
// dialect's native bind-variable syntax: unchanged for SQLite, "$1",
// "$2",... for Postgres. Repository implementations always write "?"
// and call Rebind once before executing, so one query string serves
// both dialects.
func (db *DB) Rebind(query string) string {
	return db.sql.Rebind(query)
}

// querier is satisfied by both *tagsql.DB and *tagsql.Tx, letting
// repository implementations run the same code inside or outside a
// transaction (used by WithTx).
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SelectAll returns every row of table as generic records, the shape
// the backup engine consumes.
func (db *DB) SelectAll(ctx context.Context, table string) ([]dbutil.Record, error) {
	rows, err := db.sql.QueryContext(ctx, fmt.Sprintf("SELECT * FROM %s", quoteIdent(table)))
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, Error.Wrap(err)
	}

	var records []dbutil.Record
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, Error.Wrap(err)
		}
		rec := make(dbutil.Record, len(cols))
		for i, col := range cols {
			rec[col] = normalizeScanned(values[i])
		}
		records = append(records, rec)
	}
	return records, Error.Wrap(rows.Err())
}

func normalizeScanned(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

// ExecResult is the outcome of one statement within a restore batch:
// the row count the driver reports changed, or an error if the
// statement itself failed.
type ExecResult struct {
	RowsAffected int64
	Err          error
}

// ExecStatements runs stmts in emitted order within chunks of at most
// maxPerBatch. It always runs every statement, even after a failure,
// so the caller
// can reconcile partial success; cancellation via ctx stops after the
// in-flight batch finishes.
func (db *DB) ExecStatements(ctx context.Context, stmts []dbutil.Statement, maxPerBatch int) ([]ExecResult, bool) {
	results := make([]ExecResult, len(stmts))
	cancelled := false

	for start := 0; start < len(stmts); start += maxPerBatch {
		end := start + maxPerBatch
		if end > len(stmts) {
			end = len(stmts)
		}
		for i := start; i < end; i++ {
			res, err := db.sql.ExecContext(ctx, db.Rebind(stmts[i].SQL), stmts[i].Args...)
			if err != nil {
				results[i] = ExecResult{Err: Error.Wrap(err)}
				continue
			}
			n, _ := res.RowsAffected()
			results[i] = ExecResult{RowsAffected: n}
		}
		select {
		case <-ctx.Done():
			cancelled = true
		default:
		}
		if cancelled {
			return results[:end], true
		}
	}
	return results, false
}

// DeleteAll removes every row from table (used by overwrite-mode
// restore and by the unconditional FS-search-index clear).
func (db *DB) DeleteAll(ctx context.Context, table string) error {
	_, err := db.sql.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s", quoteIdent(table)))
	return Error.Wrap(err)
}

// DeferForeignKeys enables the dialect's foreign-key deferral for the
// duration of a restore.
func (db *DB) DeferForeignKeys(ctx context.Context) error {
	if db.Dialect == dbutil.SQLite {
		_, err := db.sql.ExecContext(ctx, `PRAGMA defer_foreign_keys = ON`)
		return Error.Wrap(err)
	}
	_, err := db.sql.ExecContext(ctx, `SET CONSTRAINTS ALL DEFERRED`)
	return Error.Wrap(err)
}

// RestoreForeignKeys re-enables immediate foreign-key enforcement.
func (db *DB) RestoreForeignKeys(ctx context.Context) error {
	if db.Dialect == dbutil.SQLite {
		_, err := db.sql.ExecContext(ctx, `PRAGMA defer_foreign_keys = OFF`)
		return Error.Wrap(err)
	}
	_, err := db.sql.ExecContext(ctx, `SET CONSTRAINTS ALL IMMEDIATE`)
	return Error.Wrap(err)
}

// SortedKeys is a small helper used by callers that need a stable
// iteration order over a map[string]int (e.g. backup metadata.tables).
func SortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ParseAppVersion extracts the numeric NN from an "app-vNN" label; it
// returns 0 if label does not match that shape.
func ParseAppVersion(label string) int {
	if !strings.HasPrefix(label, "app-v") {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimPrefix(label, "app-v"))
	if err != nil {
		return 0
	}
	return n
}
