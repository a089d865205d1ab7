package backup

import (
	"context"

	"github.com/cloudvault/vaultd/shared/dbutil"
)

// FormatVersion is the backup file format version written to every
// backup's metadata.version. The file format is pinned at "1.0";
// changing it is a compatibility break.
const FormatVersion = "1.0"

// Backup type tags.
const (
	TypeFull    = "full"
	TypeModules = "modules"
)

// Issue levels.
const (
	LevelError   = "error"
	LevelWarning = "warning"
)

// Issue codes.
const (
	CodeTableNotFound     = "TABLE_NOT_FOUND"
	CodeColumnMismatch    = "COLUMN_MISMATCH"
	CodeDanglingReference = "DANGLING_REFERENCE"
)

// maxStatementsPerBatch caps how many statements the restore engine
// executes per batch.
const maxStatementsPerBatch = 80

// Data is the backup file's "data" section: table name to the rows it
// held at backup time.
type Data map[string][]dbutil.Record

// Metadata is the backup file's "metadata" section.
type Metadata struct {
	Version                  string         `json:"version"`
	Timestamp                string         `json:"timestamp"`
	BackupType               string         `json:"backup_type"`
	SchemaVersion            *string        `json:"schema_version"`
	SelectedModules          []string       `json:"selected_modules"`
	IncludedModules          []string       `json:"included_modules"`
	AutoIncludedDependencies []string       `json:"auto_included_dependencies"`
	Tables                   map[string]int `json:"tables"`
	TotalRecords             int            `json:"total_records"`
	Checksum                 string         `json:"checksum"`
}

// Backup is the full backup file shape.
type Backup struct {
	Metadata Metadata `json:"metadata"`
	Data     Data     `json:"data"`
}

// Issue is one pre-flight or integrity-scan finding.
type Issue struct {
	Level   string
	Code    string
	Table   string
	Message string
}

// TablePlan is the per-table pre-flight plan.
type TablePlan struct {
	Table               string
	RecordCount         int
	SampledColumns      []string
	EstimatedStatements int
}

// PreviewResult is preview_restore's output.
type PreviewResult struct {
	Mode            dbutil.Mode
	Summary         Metadata
	OrderedTables   []string
	DeleteOrder     []string
	Plans           []TablePlan
	TotalStatements int
	Batches         int
	Issues          []Issue
	IntegrityIssues []Issue
	Notes           []string
}

// TableResult is the per-table reconciliation of one restore.
type TableResult struct {
	Success  int
	Ignored  int
	Failed   int
	Expected int
}

// RestoreResult is restore's output.
type RestoreResult struct {
	RestoredTables  []string
	TotalRecords    int
	Results         map[string]TableResult
	IntegrityIssues []Issue
	Cancelled       bool
}

// ExecResult is one statement's outcome within a restore batch. The
// shape is declared here rather than imported: vaultdb depends on
// backup for the fixed table constants, not the other way around, so
// vaultdb adapts to this type.
type ExecResult struct {
	RowsAffected int64
	Err          error
}

// Repository is vaultdb's persistence contract for the backup engine:
// generic table access plus the few schema-introspection and
// statement-execution primitives the engine needs across every table
// in the system.
type Repository interface {
	SchemaVersion(ctx context.Context) (string, error)
	SelectAll(ctx context.Context, table string) ([]dbutil.Record, error)
	TableExists(ctx context.Context, table string) bool
	TableColumns(ctx context.Context, table string) ([]string, bool)
	ExecStatements(ctx context.Context, stmts []dbutil.Statement, maxPerBatch int) ([]ExecResult, bool)
	DeleteAll(ctx context.Context, table string) error
	DeferForeignKeys(ctx context.Context) error
	RestoreForeignKeys(ctx context.Context) error
}

// SearchIndexClearer is the search-index view the restore engine needs: clear
// every derived FS search index table unconditionally.
type SearchIndexClearer interface {
	ClearAll(ctx context.Context) error
}
