package backup

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/cloudvault/vaultd/shared/dbutil"
	"github.com/cloudvault/vaultd/vaulterrs"
)

// Service implements the Backup Engine operations:
// create, validate, preview_restore, restore.
type Service struct {
	repo        Repository
	dialect     dbutil.Dialect
	searchIndex SearchIndexClearer
	log         *zap.Logger
	now         func() time.Time
}

// NewService wires a Service from its repository, the dialect it should
// build restore statements for, and the FS search index coordinator
// it invalidates unconditionally after every restore.
func NewService(repo Repository, dialect dbutil.Dialect, searchIndex SearchIndexClearer, log *zap.Logger) *Service {
	return &Service{repo: repo, dialect: dialect, searchIndex: searchIndex, log: log, now: time.Now}
}

// CreateRequest is the input to CreateBackup.
type CreateRequest struct {
	BackupType      string
	SelectedModules []string
}

// CreateBackup expands the requested scope into a table set, reads
// every table in dependency order, and emits the metadata + data
// envelope with its checksum.
func (s *Service) CreateBackup(ctx context.Context, req CreateRequest) (*Backup, error) {
	var tables []string
	var selectedModules, includedModules, autoIncluded []string

	switch req.BackupType {
	case TypeFull:
		tables = BackupTables()
	case TypeModules:
		selectedModules = req.SelectedModules
		includedModules, autoIncluded = ExpandModules(req.SelectedModules)
		tables = TablesForModules(includedModules)
	default:
		return nil, vaulterrs.Validation.New("unknown backup_type %q", req.BackupType)
	}

	ordered := SortTables(tables)
	data := make(Data, len(ordered))
	tableCounts := make(map[string]int, len(ordered))
	total := 0
	for _, t := range ordered {
		records, err := s.repo.SelectAll(ctx, t)
		if err != nil {
			return nil, err
		}
		data[t] = records
		tableCounts[t] = len(records)
		total += len(records)
	}

	checksum, err := computeChecksum(data)
	if err != nil {
		return nil, vaulterrs.Repository.Wrap(err)
	}

	schemaVersion, err := s.repo.SchemaVersion(ctx)
	if err != nil {
		return nil, err
	}

	return &Backup{
		Metadata: Metadata{
			Version:                  FormatVersion,
			Timestamp:                s.now().UTC().Format(time.RFC3339),
			BackupType:               req.BackupType,
			SchemaVersion:            &schemaVersion,
			SelectedModules:          selectedModules,
			IncludedModules:          includedModules,
			AutoIncludedDependencies: autoIncluded,
			Tables:                   tableCounts,
			TotalRecords:             total,
			Checksum:                 checksum,
		},
		Data: data,
	}, nil
}

// ValidateBackupData rejects a backup whose top-level shape is wrong,
// whose metadata.version/timestamp is missing, or whose recomputed
// checksum does not match.
func (s *Service) ValidateBackupData(b *Backup) error {
	if b == nil {
		return vaulterrs.Validation.New("backup is nil")
	}
	if b.Metadata.Version == "" {
		return vaulterrs.Validation.New("backup metadata.version is missing")
	}
	if b.Metadata.Timestamp == "" {
		return vaulterrs.Validation.New("backup metadata.timestamp is missing")
	}
	if b.Data == nil {
		return vaulterrs.Validation.New("backup data is missing")
	}
	recomputed, err := computeChecksum(b.Data)
	if err != nil {
		return vaulterrs.Repository.Wrap(err)
	}
	if recomputed != b.Metadata.Checksum {
		return vaulterrs.Validation.New("checksum mismatch: expected %q, got %q", b.Metadata.Checksum, recomputed)
	}
	return nil
}

// PreviewRequest is the input to PreviewRestore.
type PreviewRequest struct {
	Backup             *Backup
	Mode               dbutil.Mode
	SkipIntegrityCheck bool
}

// PreviewRestore is a dry-run that writes nothing and reports the
// insert/delete order, per-table plans, global statement/batch
// estimates, and any blocking issues.
func (s *Service) PreviewRestore(ctx context.Context, req PreviewRequest) (*PreviewResult, error) {
	tables := make([]string, 0, len(req.Backup.Data))
	for t := range req.Backup.Data {
		tables = append(tables, t)
	}
	ordered := SortTables(tables)

	result := &PreviewResult{
		Mode:          req.Mode,
		Summary:       req.Backup.Metadata,
		OrderedTables: ordered,
		DeleteOrder:   reverseOf(ordered),
	}

	for _, t := range ordered {
		records := req.Backup.Data[t]
		sampled := sampleColumns(records, 50)
		plan := TablePlan{Table: t, RecordCount: len(records), SampledColumns: sampled}

		if !s.repo.TableExists(ctx, t) {
			result.Issues = append(result.Issues, Issue{
				Level: LevelError, Code: CodeTableNotFound, Table: t,
				Message: fmt.Sprintf("table %q does not exist in the target schema", t),
			})
		} else if liveCols, ok := s.repo.TableColumns(ctx, t); ok {
			liveSet := make(map[string]struct{}, len(liveCols))
			for _, c := range liveCols {
				liveSet[c] = struct{}{}
			}
			for _, c := range sampled {
				if _, present := liveSet[c]; !present {
					result.Issues = append(result.Issues, Issue{
						Level: LevelError, Code: CodeColumnMismatch, Table: t,
						Message: fmt.Sprintf("column %q is not present in target table %q", c, t),
					})
				}
			}
		}

		plan.EstimatedStatements = estimateStatements(s.dialect, len(sampled), len(records))
		result.TotalStatements += plan.EstimatedStatements
		result.Plans = append(result.Plans, plan)
	}
	result.Batches = int(math.Ceil(float64(result.TotalStatements) / float64(maxStatementsPerBatch)))

	if !req.SkipIntegrityCheck {
		result.IntegrityIssues = s.integrityScan(ctx, req.Backup)
	}
	result.Notes = buildNotes(result)
	return result, nil
}

// estimateStatements projects how many insert statements a table will
// need; non-SQLite-family dialects assume one statement per row.
func estimateStatements(dialect dbutil.Dialect, columns, records int) int {
	if records == 0 {
		return 0
	}
	if dialect != dbutil.SQLite {
		return records
	}
	maxRows := dbutil.MaxBindVars / columns
	if maxRows < 1 {
		maxRows = 1
	}
	return int(math.Ceil(float64(records) / float64(maxRows)))
}

func buildNotes(r *PreviewResult) []string {
	notes := []string{
		fmt.Sprintf("mode=%s: %d table(s), %d statement(s) across %d batch(es)",
			r.Mode, len(r.OrderedTables), r.TotalStatements, r.Batches),
	}
	if len(r.Issues) > 0 {
		notes = append(notes, fmt.Sprintf("%d blocking issue(s) found", len(r.Issues)))
	}
	if len(r.IntegrityIssues) > 0 {
		notes = append(notes, fmt.Sprintf("%d integrity issue(s) found (advisory)", len(r.IntegrityIssues)))
	}
	return notes
}

// integrityScan is the advisory referential check: mount→config and
// password→parent references must resolve against either the backup
// itself or the live database.
func (s *Service) integrityScan(ctx context.Context, b *Backup) []Issue {
	var issues []Issue

	checkRefs := func(childTable, parentTable, fk string) {
		rows, ok := b.Data[childTable]
		if !ok {
			return
		}
		parentIDs := s.idsFromBackupAndLive(ctx, b, parentTable)
		for _, row := range rows {
			ref, _ := row[fk].(string)
			if ref == "" {
				continue
			}
			if _, known := parentIDs[ref]; !known {
				issues = append(issues, Issue{
					Level: LevelWarning, Code: CodeDanglingReference, Table: childTable,
					Message: fmt.Sprintf("%s row references missing %s.id=%q", childTable, parentTable, ref),
				})
			}
		}
	}

	checkRefs("storage_mounts", "storage_configs", "storage_config_id")
	checkRefs("file_passwords", "files", "file_id")
	checkRefs("paste_passwords", "pastes", "paste_id")
	return issues
}

func (s *Service) idsFromBackupAndLive(ctx context.Context, b *Backup, table string) map[string]struct{} {
	set := idSet(b.Data[table])
	if live, err := s.repo.SelectAll(ctx, table); err == nil {
		for id := range idSet(live) {
			set[id] = struct{}{}
		}
	}
	return set
}

func idSet(records []dbutil.Record) map[string]struct{} {
	set := map[string]struct{}{}
	for _, r := range records {
		if id, ok := r["id"].(string); ok {
			set[id] = struct{}{}
		}
	}
	return set
}

// RestoreRequest is the input to Restore.
type RestoreRequest struct {
	Backup             *Backup
	Mode               dbutil.Mode
	CurrentAdminID     string
	SkipIntegrityCheck bool
	PreserveTimestamps bool
}

// Restore validates the backup, remaps ownership in merge mode, runs
// pre-flight (hard-blocking on any error-level issue) and the optional
// advisory integrity scan, then assembles and executes statements in
// dependency order before unconditionally clearing the derived FS
// search index.
func (s *Service) Restore(ctx context.Context, req RestoreRequest) (*RestoreResult, error) {
	if err := s.ValidateBackupData(req.Backup); err != nil {
		return nil, err
	}

	data := req.Backup.Data
	if req.Mode == dbutil.Merge && req.CurrentAdminID != "" {
		data = MapAdminIDs(data, req.CurrentAdminID)
	}

	tables := make([]string, 0, len(data))
	for t := range data {
		if !IsKnownTable(t) {
			return nil, vaulterrs.Validation.New("backup references unknown table %q", t)
		}
		tables = append(tables, t)
	}

	scoped := &Backup{Metadata: req.Backup.Metadata, Data: data}
	preview, err := s.PreviewRestore(ctx, PreviewRequest{Backup: scoped, Mode: req.Mode, SkipIntegrityCheck: true})
	if err != nil {
		return nil, err
	}
	for _, issue := range preview.Issues {
		if issue.Level == LevelError {
			return nil, vaulterrs.Validation.New("restore pre-flight blocked: [%s] %s: %s", issue.Code, issue.Table, issue.Message)
		}
	}

	var integrityIssues []Issue
	if !req.SkipIntegrityCheck {
		integrityIssues = s.integrityScan(ctx, scoped)
	}

	ordered := SortTables(tables)

	if err := s.repo.DeferForeignKeys(ctx); err != nil {
		s.log.Warn("backup: defer foreign keys failed", zap.Error(err))
	}

	if req.Mode == dbutil.Overwrite {
		for _, t := range reverseOf(ordered) {
			if err := s.repo.DeleteAll(ctx, t); err != nil {
				return nil, err
			}
		}
	}

	now := s.now()
	var statements []dbutil.Statement
	stmtTable := make([]string, 0)
	for _, t := range ordered {
		stmts := dbutil.BuildInsert(s.dialect, t, data[t], req.Mode, req.PreserveTimestamps, now)
		for _, st := range stmts {
			statements = append(statements, st)
			stmtTable = append(stmtTable, t)
		}
	}

	execResults, cancelled := s.repo.ExecStatements(ctx, statements, maxStatementsPerBatch)

	tableResults := make(map[string]TableResult, len(ordered))
	for _, t := range ordered {
		tableResults[t] = TableResult{}
	}
	for i, res := range execResults {
		t := stmtTable[i]
		tr := tableResults[t]
		expected := statements[i].RowCount
		tr.Expected += expected
		switch {
		case res.Err != nil:
			if expected > 0 {
				tr.Failed += expected
			} else {
				tr.Failed++
			}
		case expected > int(res.RowsAffected):
			changes := int(res.RowsAffected)
			tr.Success += changes
			diff := expected - changes
			if req.Mode == dbutil.Merge {
				tr.Ignored += diff
			} else {
				tr.Failed += diff
			}
		default:
			tr.Success += int(res.RowsAffected)
		}
		tableResults[t] = tr
	}

	if err := s.repo.RestoreForeignKeys(ctx); err != nil {
		s.log.Warn("backup: restore foreign keys failed", zap.Error(err))
	}

	if s.searchIndex != nil {
		if err := s.searchIndex.ClearAll(ctx); err != nil {
			s.log.Warn("backup: failed to clear fs search index after restore", zap.Error(err))
		}
	}

	total := 0
	for _, t := range ordered {
		total += len(data[t])
	}

	return &RestoreResult{
		RestoredTables:  ordered,
		TotalRecords:    total,
		Results:         tableResults,
		IntegrityIssues: integrityIssues,
		Cancelled:       cancelled,
	}, nil
}

// adminOwnedFields names the (table, column) pairs remapped to the
// current admin on a merge restore. api_keys and admin_tokens keep
// their original owners.
var adminOwnedFields = []struct{ table, column string }{
	{"storage_configs", "admin_id"},
	{"storage_mounts", "created_by"},
	{"files", "created_by"},
	{"pastes", "created_by"},
}

// MapAdminIDs reassigns owned rows to adminID for a merge restore. It is
// idempotent by construction: every owned row is set to adminID
// regardless of its prior value, so applying it twice with the same
// adminID equals applying it once.
func MapAdminIDs(data Data, adminID string) Data {
	out := make(Data, len(data))
	for t, rows := range data {
		out[t] = rows
	}
	for _, f := range adminOwnedFields {
		rows, ok := out[f.table]
		if !ok {
			continue
		}
		remapped := make([]dbutil.Record, len(rows))
		for i, r := range rows {
			nr := make(dbutil.Record, len(r))
			for k, v := range r {
				nr[k] = v
			}
			if _, present := nr[f.column]; present {
				nr[f.column] = adminID
			}
			remapped[i] = nr
		}
		out[f.table] = remapped
	}
	return out
}
