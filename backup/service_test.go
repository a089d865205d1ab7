package backup_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cloudvault/vaultd/backup"
	"github.com/cloudvault/vaultd/shared/dbutil"
	"github.com/cloudvault/vaultd/vaulterrs"
)

// fakeRepo is an in-memory stand-in for vaultdb's backup.Repository
// implementation. Tables are pre-seeded via rows; existingColumns
// models the live schema for pre-flight column-mismatch checks.
type fakeRepo struct {
	rows            map[string][]dbutil.Record
	existingTables  map[string]struct{}
	existingColumns map[string][]string
	schemaVersion   string
	deleted         []string
	deferCalled     bool
	restoreCalled   bool
	execResults     []backup.ExecResult
	execCancelled   bool
}

func (r *fakeRepo) SchemaVersion(context.Context) (string, error) { return r.schemaVersion, nil }

func (r *fakeRepo) SelectAll(_ context.Context, table string) ([]dbutil.Record, error) {
	return r.rows[table], nil
}

func (r *fakeRepo) TableExists(_ context.Context, table string) bool {
	_, ok := r.existingTables[table]
	return ok
}

func (r *fakeRepo) TableColumns(_ context.Context, table string) ([]string, bool) {
	cols, ok := r.existingColumns[table]
	return cols, ok
}

func (r *fakeRepo) ExecStatements(_ context.Context, stmts []dbutil.Statement, _ int) ([]backup.ExecResult, bool) {
	if r.execResults != nil {
		return r.execResults, r.execCancelled
	}
	out := make([]backup.ExecResult, len(stmts))
	for i, s := range stmts {
		out[i] = backup.ExecResult{RowsAffected: int64(s.RowCount)}
	}
	return out, false
}

func (r *fakeRepo) DeleteAll(_ context.Context, table string) error {
	r.deleted = append(r.deleted, table)
	return nil
}

func (r *fakeRepo) DeferForeignKeys(context.Context) error   { r.deferCalled = true; return nil }
func (r *fakeRepo) RestoreForeignKeys(context.Context) error { r.restoreCalled = true; return nil }

type fakeSearchIndex struct{ cleared bool }

func (f *fakeSearchIndex) ClearAll(context.Context) error {
	f.cleared = true
	return nil
}

func newService(t *testing.T, repo *fakeRepo, dialect dbutil.Dialect, idx backup.SearchIndexClearer) *backup.Service {
	return backup.NewService(repo, dialect, idx, zaptest.NewLogger(t))
}

func TestExpandModules_MountManagementPullsStorageConfig(t *testing.T) {
	included, auto := backup.ExpandModules([]string{"mount_management"})
	assert.Equal(t, []string{"mount_management", "storage_config"}, included)
	assert.Equal(t, []string{"storage_config"}, auto)

	tables := backup.TablesForModules(included)
	assert.ElementsMatch(t, []string{"storage_mounts", "storage_configs", "principal_storage_acl"}, tables)
}

func TestSortTables_ParentsPrecedeChildren(t *testing.T) {
	ordered := backup.SortTables([]string{"storage_mounts", "storage_configs", "admins", "admin_tokens"})
	index := map[string]int{}
	for i, t := range ordered {
		index[t] = i
	}
	assert.Less(t, index["admins"], index["storage_configs"])
	assert.Less(t, index["storage_configs"], index["storage_mounts"])
	assert.Less(t, index["admins"], index["admin_tokens"])
}

func TestSortTables_CycleFallsBackToInputOrder(t *testing.T) {
	// z_cycle_a and z_cycle_b depend on each other, so neither ever
	// becomes ready; the no-progress fallback appends both in input order.
	backup.TableDependencies["z_cycle_a"] = []string{"z_cycle_b"}
	backup.TableDependencies["z_cycle_b"] = []string{"z_cycle_a"}
	defer func() {
		delete(backup.TableDependencies, "z_cycle_a")
		delete(backup.TableDependencies, "z_cycle_b")
	}()

	ordered := backup.SortTables([]string{"z_cycle_b", "z_cycle_a"})
	assert.Equal(t, []string{"z_cycle_b", "z_cycle_a"}, ordered)
}

func TestCreateBackup_ChecksumStableUnderKeyReorder(t *testing.T) {
	repoA := &fakeRepo{rows: map[string][]dbutil.Record{
		"pastes": {{"id": "p1", "title": "a"}, {"title": "b", "id": "p2"}},
	}, schemaVersion: "app-v08"}
	repoB := &fakeRepo{rows: map[string][]dbutil.Record{
		"pastes": {{"title": "a", "id": "p1"}, {"id": "p2", "title": "b"}},
	}, schemaVersion: "app-v08"}

	svc := newService(t, repoA, dbutil.SQLite, nil)
	bA, err := svc.CreateBackup(context.Background(), backup.CreateRequest{BackupType: backup.TypeModules, SelectedModules: []string{"text_management"}})
	require.NoError(t, err)

	svc2 := newService(t, repoB, dbutil.SQLite, nil)
	bB, err := svc2.CreateBackup(context.Background(), backup.CreateRequest{BackupType: backup.TypeModules, SelectedModules: []string{"text_management"}})
	require.NoError(t, err)

	assert.Equal(t, bA.Metadata.Checksum, bB.Metadata.Checksum)
	assert.Len(t, bA.Metadata.Checksum, 16)
}

func TestCreateBackup_UnknownTypeIsValidationError(t *testing.T) {
	svc := newService(t, &fakeRepo{}, dbutil.SQLite, nil)
	_, err := svc.CreateBackup(context.Background(), backup.CreateRequest{BackupType: "bogus"})
	require.Error(t, err)
	assert.True(t, vaulterrs.IsValidation(err))
}

func TestValidateBackupData_RoundTrip(t *testing.T) {
	repo := &fakeRepo{rows: map[string][]dbutil.Record{"admins": {{"id": "a1"}}}, schemaVersion: "app-v08"}
	svc := newService(t, repo, dbutil.SQLite, nil)
	b, err := svc.CreateBackup(context.Background(), backup.CreateRequest{BackupType: backup.TypeFull})
	require.NoError(t, err)
	require.NoError(t, svc.ValidateBackupData(b))
}

func TestValidateBackupData_ChecksumMismatch(t *testing.T) {
	svc := newService(t, &fakeRepo{}, dbutil.SQLite, nil)
	b := &backup.Backup{
		Metadata: backup.Metadata{Version: "1.0", Timestamp: "2025-01-01T00:00:00Z", Checksum: "deadbeefdeadbeef"},
		Data:     backup.Data{"admins": {{"id": "a1"}}},
	}
	err := svc.ValidateBackupData(b)
	require.Error(t, err)
	assert.True(t, vaulterrs.IsValidation(err))
}

func TestPreviewRestore_ColumnMismatchIsBlockingError(t *testing.T) {
	repo := &fakeRepo{
		existingTables:  map[string]struct{}{"storage_configs": {}},
		existingColumns: map[string][]string{"storage_configs": {"id", "name"}},
	}
	svc := newService(t, repo, dbutil.SQLite, nil)
	b := &backup.Backup{
		Metadata: backup.Metadata{Version: "1.0", Timestamp: "x"},
		Data:     backup.Data{"storage_configs": {{"id": "c1", "name": "x", "new_field": "y"}}},
	}
	result, err := svc.PreviewRestore(context.Background(), backup.PreviewRequest{Backup: b, Mode: dbutil.Overwrite, SkipIntegrityCheck: true})
	require.NoError(t, err)
	require.Len(t, result.Issues, 1)
	assert.Equal(t, backup.CodeColumnMismatch, result.Issues[0].Code)
	assert.Equal(t, backup.LevelError, result.Issues[0].Level)
}

func TestPreviewRestore_TableNotFound(t *testing.T) {
	svc := newService(t, &fakeRepo{}, dbutil.SQLite, nil)
	b := &backup.Backup{
		Metadata: backup.Metadata{Version: "1.0", Timestamp: "x"},
		Data:     backup.Data{"storage_configs": {{"id": "c1"}}},
	}
	result, err := svc.PreviewRestore(context.Background(), backup.PreviewRequest{Backup: b, Mode: dbutil.Overwrite, SkipIntegrityCheck: true})
	require.NoError(t, err)
	require.Len(t, result.Issues, 1)
	assert.Equal(t, backup.CodeTableNotFound, result.Issues[0].Code)
}

func TestRestore_SchemaDriftBlocksBeforeAnyWrite(t *testing.T) {
	repo := &fakeRepo{
		existingTables:  map[string]struct{}{"storage_configs": {}},
		existingColumns: map[string][]string{"storage_configs": {"id", "name"}},
	}
	svc := newService(t, repo, dbutil.SQLite, nil)
	b := &backup.Backup{Data: backup.Data{"storage_configs": {{"id": "c1", "name": "x", "new_field": "y"}}}}
	b.Metadata = backup.Metadata{Version: "1.0", Timestamp: "2025-01-01T00:00:00Z"}
	checksum, err := backupChecksumFor(b.Data)
	require.NoError(t, err)
	b.Metadata.Checksum = checksum

	_, err = svc.Restore(context.Background(), backup.RestoreRequest{Backup: b, Mode: dbutil.Overwrite})
	require.Error(t, err)
	assert.True(t, vaulterrs.IsValidation(err))
	assert.Contains(t, err.Error(), "COLUMN_MISMATCH")
	assert.Empty(t, repo.deleted)
}

func TestRestore_UnknownTableRejected(t *testing.T) {
	svc := newService(t, &fakeRepo{}, dbutil.SQLite, nil)
	b := &backup.Backup{Data: backup.Data{"not_a_real_table": {{"id": "1"}}}}
	b.Metadata = backup.Metadata{Version: "1.0", Timestamp: "2025-01-01T00:00:00Z"}
	checksum, err := backupChecksumFor(b.Data)
	require.NoError(t, err)
	b.Metadata.Checksum = checksum

	_, err = svc.Restore(context.Background(), backup.RestoreRequest{Backup: b, Mode: dbutil.Overwrite})
	require.Error(t, err)
	assert.True(t, vaulterrs.IsValidation(err))
}

func TestRestore_EmptyDBOverwriteAllSucceed(t *testing.T) {
	repo := &fakeRepo{existingTables: map[string]struct{}{"admins": {}}, existingColumns: map[string][]string{"admins": {"id", "username"}}}
	svc := newService(t, repo, dbutil.SQLite, &fakeSearchIndex{})

	data := backup.Data{"admins": {{"id": "a1", "username": "root"}, {"id": "a2", "username": "ops"}}}
	b := &backup.Backup{Metadata: backup.Metadata{Version: "1.0", Timestamp: "2025-01-01T00:00:00Z"}, Data: data}
	checksum, err := backupChecksumFor(data)
	require.NoError(t, err)
	b.Metadata.Checksum = checksum

	result, err := svc.Restore(context.Background(), backup.RestoreRequest{Backup: b, Mode: dbutil.Overwrite})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Results["admins"].Success)
	assert.Equal(t, 0, result.Results["admins"].Failed)
	assert.True(t, repo.deferCalled)
	assert.True(t, repo.restoreCalled)
	assert.Contains(t, repo.deleted, "admins")
}

func TestRestore_ClearsSearchIndexEvenOnMerge(t *testing.T) {
	repo := &fakeRepo{existingTables: map[string]struct{}{"admins": {}}, existingColumns: map[string][]string{"admins": {"id", "username"}}}
	idx := &fakeSearchIndex{}
	svc := newService(t, repo, dbutil.SQLite, idx)

	data := backup.Data{"admins": {{"id": "a1", "username": "root"}}}
	b := &backup.Backup{Metadata: backup.Metadata{Version: "1.0", Timestamp: "2025-01-01T00:00:00Z"}, Data: data}
	checksum, err := backupChecksumFor(data)
	require.NoError(t, err)
	b.Metadata.Checksum = checksum

	_, err = svc.Restore(context.Background(), backup.RestoreRequest{Backup: b, Mode: dbutil.Merge})
	require.NoError(t, err)
	assert.True(t, idx.cleared)
}

func TestMapAdminIDs_Idempotent(t *testing.T) {
	data := backup.Data{"storage_configs": {{"id": "c1", "admin_id": "old-admin"}}}
	once := backup.MapAdminIDs(data, "new-admin")
	twice := backup.MapAdminIDs(once, "new-admin")
	assert.Equal(t, once, twice)
	assert.Equal(t, "new-admin", twice["storage_configs"][0]["admin_id"])
}

func TestRestore_ReconciliationCreditsFailedInOverwriteIgnoredInMerge(t *testing.T) {
	base := func(mode dbutil.Mode) (*fakeRepo, *backup.Backup) {
		repo := &fakeRepo{
			existingTables:  map[string]struct{}{"admins": {}},
			existingColumns: map[string][]string{"admins": {"id"}},
			execResults:     []backup.ExecResult{{RowsAffected: 1}},
		}
		data := backup.Data{"admins": {{"id": "a1"}, {"id": "a2"}}}
		b := &backup.Backup{Metadata: backup.Metadata{Version: "1.0", Timestamp: "x"}, Data: data}
		checksum, _ := backupChecksumFor(data)
		b.Metadata.Checksum = checksum
		return repo, b
	}

	repoOverwrite, bOverwrite := base(dbutil.Overwrite)
	svcOverwrite := newService(t, repoOverwrite, dbutil.SQLite, nil)
	resOverwrite, err := svcOverwrite.Restore(context.Background(), backup.RestoreRequest{Backup: bOverwrite, Mode: dbutil.Overwrite})
	require.NoError(t, err)
	assert.Equal(t, 1, resOverwrite.Results["admins"].Failed)

	repoMerge, bMerge := base(dbutil.Merge)
	svcMerge := newService(t, repoMerge, dbutil.SQLite, nil)
	resMerge, err := svcMerge.Restore(context.Background(), backup.RestoreRequest{Backup: bMerge, Mode: dbutil.Merge})
	require.NoError(t, err)
	assert.Equal(t, 1, resMerge.Results["admins"].Ignored)
}

func backupChecksumFor(data backup.Data) (string, error) {
	return backup.ComputeChecksum(data)
}
