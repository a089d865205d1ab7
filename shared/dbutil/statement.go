package dbutil

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Mode is the write mode a statement batch is built for.
type Mode string

const (
	// Overwrite emits plain INSERT statements (the caller is expected to
	// have cleared the table first).
	Overwrite Mode = "overwrite"
	// Merge emits insert-or-ignore statements, leaving existing rows
	// with the same primary key untouched.
	Merge Mode = "merge"
)

// Record is an unordered attribute bag for a single row.
type Record map[string]any

// Statement is one prepared statement plus the row count it carries
// (used by the restore engine to reconcile expected-vs-actual rows
// written).
type Statement struct {
	SQL      string
	Args     []any
	RowCount int
}

// tasksTable is the one table whose updated_at is milliseconds-since-
// epoch rather than an ISO-8601 string.
const tasksTable = "tasks"

// BuildInsert builds the insert statements for one table: given its records,
// a write mode and whether to preserve timestamps, produce the ordered
// statements to execute.
func BuildInsert(dialect Dialect, table string, records []Record, mode Mode, preserveTimestamps bool, now time.Time) []Statement {
	if len(records) == 0 {
		return nil
	}

	columns := columnUnion(records)
	processed := make([]Record, len(records))
	for i, rec := range records {
		processed[i] = applyTimestampPolicy(rec, table, mode, preserveTimestamps, now)
	}

	if dialect == SQLite {
		return buildPacked(table, columns, processed, mode)
	}
	return buildPerRow(table, columns, processed, mode)
}

func columnUnion(records []Record) []string {
	set := map[string]struct{}{}
	for _, rec := range records {
		for k := range rec {
			set[k] = struct{}{}
		}
	}
	columns := make([]string, 0, len(set))
	for k := range set {
		columns = append(columns, k)
	}
	sort.Strings(columns)
	return columns
}

func applyTimestampPolicy(rec Record, table string, mode Mode, preserveTimestamps bool, now time.Time) Record {
	if preserveTimestamps || mode != Merge {
		return rec
	}
	if _, ok := rec["updated_at"]; !ok {
		return rec
	}
	out := make(Record, len(rec))
	for k, v := range rec {
		out[k] = v
	}
	if table == tasksTable {
		out["updated_at"] = now.UnixMilli()
	} else {
		out["updated_at"] = now.UTC().Format(time.RFC3339)
	}
	return out
}

func rowsPerStatement(columns int) int {
	if columns <= 0 {
		return 1
	}
	n := MaxBindVars / columns
	if n < 1 {
		n = 1
	}
	return n
}

func buildPacked(table string, columns []string, records []Record, mode Mode) []Statement {
	maxRows := rowsPerStatement(len(columns))
	verb := sqliteInsertVerb(mode)

	var statements []Statement
	for start := 0; start < len(records); start += maxRows {
		end := start + maxRows
		if end > len(records) {
			end = len(records)
		}
		chunk := records[start:end]

		var sql strings.Builder
		fmt.Fprintf(&sql, "%s INTO %s (%s) VALUES ", verb, table, strings.Join(columns, ", "))
		args := make([]any, 0, len(chunk)*len(columns))
		placeholders := make([]string, 0, len(chunk))
		for _, rec := range chunk {
			ph := make([]string, len(columns))
			for i, col := range columns {
				ph[i] = "?"
				args = append(args, valueOrNull(rec, col))
			}
			placeholders = append(placeholders, "("+strings.Join(ph, ", ")+")")
		}
		sql.WriteString(strings.Join(placeholders, ", "))

		statements = append(statements, Statement{
			SQL:      sql.String(),
			Args:     args,
			RowCount: len(chunk),
		})
	}
	return statements
}

// buildPerRow is the non-SQLite-family path: one statement per row,
// using the dialect's insert-ignore abstraction (an ON CONFLICT clause)
// rather than SQLite's "INSERT OR IGNORE" spelling.
func buildPerRow(table string, columns []string, records []Record, mode Mode) []Statement {
	statements := make([]Statement, 0, len(records))
	for _, rec := range records {
		ph := make([]string, len(columns))
		args := make([]any, len(columns))
		for i, col := range columns {
			ph[i] = "?"
			args[i] = valueOrNull(rec, col)
		}
		sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(columns, ", "), strings.Join(ph, ", "))
		if mode == Merge {
			sql += conflictClause(table, columns)
		}
		statements = append(statements, Statement{SQL: sql, Args: args, RowCount: 1})
	}
	return statements
}

// sqliteInsertVerb picks the SQLite-family verb.
func sqliteInsertVerb(mode Mode) string {
	if mode == Merge {
		return "INSERT OR IGNORE"
	}
	return "INSERT"
}

// conflictClause is the non-SQLite (e.g. Postgres) spelling of
// insert-ignore. When the row has an "id" column the clause targets
// it; otherwise (e.g. system_settings, keyed by "key") it is an
// untargeted ON CONFLICT DO NOTHING.
func conflictClause(_ string, columns []string) string {
	for _, c := range columns {
		if c == "id" {
			return " ON CONFLICT (id) DO NOTHING"
		}
	}
	return " ON CONFLICT DO NOTHING"
}

func valueOrNull(rec Record, col string) any {
	if v, ok := rec[col]; ok {
		return v
	}
	return nil
}
