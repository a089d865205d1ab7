package vaultdb

import (
	"context"

	"github.com/cloudvault/vaultd/backup"
	"github.com/cloudvault/vaultd/shared/dbutil"
)

// BackupRepo adapts DB's generic table primitives to backup.Repository.
// It exists only to convert ExecStatements' result type: DB predates
// the backup package and exposes its own ExecResult for any caller that
// wants raw driver row counts, while backup.Repository needs its own
// identically-shaped type so the backup package never has to import
// vaultdb (vaultdb already imports backup for the fixed table
// constants; the reverse would cycle).
type BackupRepo struct {
	db *DB
}

// NewBackupRepo returns a repository bound to db.
func NewBackupRepo(db *DB) *BackupRepo {
	return &BackupRepo{db: db}
}

func (r *BackupRepo) SchemaVersion(ctx context.Context) (string, error) {
	return r.db.SchemaVersion(ctx)
}

func (r *BackupRepo) SelectAll(ctx context.Context, table string) ([]dbutil.Record, error) {
	return r.db.SelectAll(ctx, table)
}

func (r *BackupRepo) TableExists(ctx context.Context, table string) bool {
	return r.db.TableExists(ctx, table)
}

func (r *BackupRepo) TableColumns(ctx context.Context, table string) ([]string, bool) {
	return r.db.TableColumns(ctx, table)
}

func (r *BackupRepo) ExecStatements(ctx context.Context, stmts []dbutil.Statement, maxPerBatch int) ([]backup.ExecResult, bool) {
	results, cancelled := r.db.ExecStatements(ctx, stmts, maxPerBatch)
	out := make([]backup.ExecResult, len(results))
	for i, res := range results {
		out[i] = backup.ExecResult{RowsAffected: res.RowsAffected, Err: res.Err}
	}
	return out, cancelled
}

func (r *BackupRepo) DeleteAll(ctx context.Context, table string) error {
	return r.db.DeleteAll(ctx, table)
}

func (r *BackupRepo) DeferForeignKeys(ctx context.Context) error {
	return r.db.DeferForeignKeys(ctx)
}

func (r *BackupRepo) RestoreForeignKeys(ctx context.Context) error {
	return r.db.RestoreForeignKeys(ctx)
}
