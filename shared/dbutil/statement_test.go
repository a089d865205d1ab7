package dbutil_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudvault/vaultd/shared/dbutil"
)

func TestBuildInsert_MultiRowPacking(t *testing.T) {
	// 10 columns, 100 rows, SQLite, merge.
	records := make([]dbutil.Record, 100)
	for i := range records {
		rec := dbutil.Record{}
		for c := 0; c < 10; c++ {
			rec[colName(c)] = i
		}
		records[i] = rec
	}

	stmts := dbutil.BuildInsert(dbutil.SQLite, "widgets", records, dbutil.Merge, true, time.Time{})
	require.Len(t, stmts, 13) // ceil(100/8)

	total := 0
	for _, s := range stmts {
		assert.Contains(t, s.SQL, "INSERT OR IGNORE")
		assert.LessOrEqual(t, s.RowCount, 8)
		total += s.RowCount
	}
	assert.Equal(t, 100, total)
}

func colName(i int) string {
	return string(rune('a' + i))
}

func TestBuildInsert_Overwrite(t *testing.T) {
	records := []dbutil.Record{{"id": "1"}, {"id": "2"}}
	stmts := dbutil.BuildInsert(dbutil.SQLite, "t", records, dbutil.Overwrite, true, time.Time{})
	require.Len(t, stmts, 1)
	assert.NotContains(t, stmts[0].SQL, "OR IGNORE")
	assert.Contains(t, stmts[0].SQL, "INSERT INTO t")
}

func TestBuildInsert_MissingAttributesBindNull(t *testing.T) {
	records := []dbutil.Record{
		{"id": "1", "name": "a"},
		{"id": "2"},
	}
	stmts := dbutil.BuildInsert(dbutil.SQLite, "t", records, dbutil.Overwrite, true, time.Time{})
	require.Len(t, stmts, 1)
	// columns sorted: id, name -> row2 should bind nil for name.
	assert.Equal(t, []any{"1", "a", "2", nil}, stmts[0].Args)
}

func TestBuildInsert_TimestampRewriteOnMerge(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	records := []dbutil.Record{{"id": "1", "updated_at": "old", "created_at": "keep-me"}}

	stmts := dbutil.BuildInsert(dbutil.SQLite, "pastes", records, dbutil.Merge, false, now)
	require.Len(t, stmts, 1)
	assert.Contains(t, stmts[0].Args, "2025-01-01T00:00:00Z")
	assert.Contains(t, stmts[0].Args, "keep-me")
}

func TestBuildInsert_TasksTimestampIsMillis(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	records := []dbutil.Record{{"id": "1", "updated_at": "old"}}

	stmts := dbutil.BuildInsert(dbutil.SQLite, "tasks", records, dbutil.Merge, false, now)
	require.Len(t, stmts, 1)
	assert.Contains(t, stmts[0].Args, now.UnixMilli())
}

func TestBuildInsert_PreserveTimestampsSkipsRewrite(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	records := []dbutil.Record{{"id": "1", "updated_at": "old"}}

	stmts := dbutil.BuildInsert(dbutil.SQLite, "pastes", records, dbutil.Merge, true, now)
	require.Len(t, stmts, 1)
	assert.Contains(t, stmts[0].Args, "old")
}

func TestBuildInsert_NonSQLiteUsesOnConflict(t *testing.T) {
	records := []dbutil.Record{{"id": "1"}, {"id": "2"}}
	stmts := dbutil.BuildInsert(dbutil.Other, "t", records, dbutil.Merge, true, time.Time{})
	require.Len(t, stmts, 2)
	for _, s := range stmts {
		assert.Contains(t, s.SQL, "ON CONFLICT")
		assert.NotContains(t, s.SQL, "OR IGNORE")
		assert.Equal(t, 1, s.RowCount)
	}
}

func TestBuildInsert_ColumnsExceedingBindCeilingStillOneRowPerStatement(t *testing.T) {
	rec := dbutil.Record{}
	for c := 0; c < dbutil.MaxBindVars+5; c++ {
		rec[colNameWide(c)] = c
	}
	stmts := dbutil.BuildInsert(dbutil.SQLite, "wide", []dbutil.Record{rec, rec}, dbutil.Merge, true, time.Time{})
	require.Len(t, stmts, 2)
	for _, s := range stmts {
		assert.Equal(t, 1, s.RowCount)
	}
}

func colNameWide(i int) string {
	return "col_" + colName(i%26) + string(rune('0'+i%10))
}
