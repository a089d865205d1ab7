package vaultdb_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cloudvault/vaultd/backup"
	"github.com/cloudvault/vaultd/searchindex"
	"github.com/cloudvault/vaultd/shared/dbutil"
	"github.com/cloudvault/vaultd/vaultdb"
)

// openTestDB opens a throwaway in-memory SQLite database with the full
// schema bootstrapped.
func openTestDB(t *testing.T) *vaultdb.DB {
	t.Helper()
	db, err := vaultdb.Open(context.Background(), zaptest.NewLogger(t), "sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// TestBackupRestoreRoundTrip runs the round trip end to end against a
// real SQLite database: createBackup(full) →
// restoreBackup(overwrite) → createBackup(full) yields identical data
// and an identical checksum.
func TestBackupRestoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	log := zaptest.NewLogger(t)

	src := openTestDB(t)
	seedAdminAndConfig(t, src, "admin-1", "cfg-1")

	searchIdx := searchindex.NewCoordinator(vaultdb.NewSearchIndexRepo(src))
	srcSvc := backup.NewService(vaultdb.NewBackupRepo(src), src.Dialect, searchIdx, log)

	b1, err := srcSvc.CreateBackup(ctx, backup.CreateRequest{BackupType: backup.TypeFull})
	require.NoError(t, err)
	require.NoError(t, srcSvc.ValidateBackupData(b1))
	assert.Equal(t, 1, b1.Metadata.Tables["admins"])
	assert.Equal(t, 1, b1.Metadata.Tables["storage_configs"])

	dst := openTestDB(t)
	dstSearchIdx := searchindex.NewCoordinator(vaultdb.NewSearchIndexRepo(dst))
	dstSvc := backup.NewService(vaultdb.NewBackupRepo(dst), dst.Dialect, dstSearchIdx, log)

	restoreResult, err := dstSvc.Restore(ctx, backup.RestoreRequest{
		Backup: b1,
		Mode:   dbutil.Overwrite,
	})
	require.NoError(t, err)
	for _, table := range restoreResult.RestoredTables {
		tr := restoreResult.Results[table]
		assert.Equalf(t, tr.Expected, tr.Success, "table %s: expected %d success, got %d (failed=%d ignored=%d)",
			table, tr.Expected, tr.Success, tr.Failed, tr.Ignored)
		assert.Zero(t, tr.Failed, "table %s should have no failures", table)
	}

	b2, err := dstSvc.CreateBackup(ctx, backup.CreateRequest{BackupType: backup.TypeFull})
	require.NoError(t, err)
	assert.Equal(t, b1.Metadata.Checksum, b2.Metadata.Checksum)
	assert.Equal(t, b1.Metadata.TotalRecords, b2.Metadata.TotalRecords)
}

// TestPreviewRestoreBlocksOnColumnMismatch checks against the real
// schema that a backup carrying a column the
// live table does not have is a hard pre-flight blocker, and Restore
// refuses to write anything.
func TestPreviewRestoreBlocksOnColumnMismatch(t *testing.T) {
	ctx := context.Background()
	log := zaptest.NewLogger(t)

	db := openTestDB(t)
	searchIdx := searchindex.NewCoordinator(vaultdb.NewSearchIndexRepo(db))
	svc := backup.NewService(vaultdb.NewBackupRepo(db), db.Dialect, searchIdx, log)

	schemaVersion, err := db.SchemaVersion(ctx)
	require.NoError(t, err)

	bad := &backup.Backup{
		Metadata: backup.Metadata{
			Version:       backup.FormatVersion,
			Timestamp:     "2025-01-01T00:00:00Z",
			BackupType:    backup.TypeFull,
			SchemaVersion: &schemaVersion,
			Tables:        map[string]int{"storage_configs": 1},
			TotalRecords:  1,
		},
		Data: backup.Data{
			"storage_configs": {
				{"id": "cfg-1", "new_field": "unexpected"},
			},
		},
	}
	checksum, err := backup.ComputeChecksum(bad.Data)
	require.NoError(t, err)
	bad.Metadata.Checksum = checksum

	preview, err := svc.PreviewRestore(ctx, backup.PreviewRequest{Backup: bad, Mode: dbutil.Overwrite, SkipIntegrityCheck: true})
	require.NoError(t, err)
	require.NotEmpty(t, preview.Issues)
	assert.Equal(t, backup.CodeColumnMismatch, preview.Issues[0].Code)
	assert.Equal(t, backup.LevelError, preview.Issues[0].Level)

	_, err = svc.Restore(ctx, backup.RestoreRequest{Backup: bad, Mode: dbutil.Overwrite})
	require.Error(t, err)

	rows, err := db.SelectAll(ctx, "storage_configs")
	require.NoError(t, err)
	assert.Empty(t, rows, "restore must not write anything once pre-flight blocks")
}

func seedAdminAndConfig(t *testing.T, db *vaultdb.DB, adminID, configID string) {
	t.Helper()
	ctx := context.Background()
	stmts := []dbutil.Statement{
		{
			SQL:      `INSERT INTO admins (id, username, password_hash, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
			Args:     []any{adminID, "root", "hash", "2025-01-01T00:00:00Z", "2025-01-01T00:00:00Z"},
			RowCount: 1,
		},
		{
			SQL: `INSERT INTO storage_configs (id, storage_type, admin_id, name, is_public, is_default, status, config_json, total_storage_bytes, created_at, updated_at)
			      VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			Args: []any{configID, "local", adminID, "primary", 0, 1, "active", "{}", int64(10737418240),
				"2025-01-01T00:00:00Z", "2025-01-01T00:00:00Z"},
			RowCount: 1,
		},
	}
	results, cancelled := db.ExecStatements(ctx, stmts, 80)
	require.False(t, cancelled)
	for _, res := range results {
		require.NoError(t, res.Err)
	}
}
