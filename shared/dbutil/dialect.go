// Package dbutil implements the dialect-aware statement builder:
// given a table name, an unordered bag of records, a
// write mode and a timestamp-preservation flag, it produces the ordered
// list of prepared statements the backup/restore engine (and anything
// else doing bulk writes) should execute.
//
// MaxBindVars is pinned at 80, conservative enough for D1-style
// bind-variable ceilings.
package dbutil

import "strings"

// Dialect identifies the SQL flavor of the backing database.
type Dialect int

const (
	// Other is any dialect without bulk-insert optimization; statements
	// are emitted one row at a time.
	Other Dialect = iota
	// SQLite is the SQLite family (including D1-style ceilings), which
	// receives multi-row packing.
	SQLite
)

// MaxBindVars is the compiled bind-variable ceiling per statement,
// deliberately conservative to tolerate D1-style limits.
const MaxBindVars = 80

// DialectForDriver maps a database/sql driver name to its Dialect.
func DialectForDriver(driverName string) Dialect {
	switch strings.ToLower(driverName) {
	case "sqlite3", "sqlite":
		return SQLite
	default:
		return Other
	}
}
