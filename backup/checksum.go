package backup

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"

	"github.com/cloudvault/vaultd/shared/dbutil"
)

// checksumHexLen is the truncation length of the backup checksum.
const checksumHexLen = 16

// ComputeChecksum exposes computeChecksum for callers assembling a Data
// set outside of CreateBackup, e.g. tooling that patches a backup file
// by hand and must recompute metadata.checksum before it will validate.
func ComputeChecksum(data Data) (string, error) {
	return computeChecksum(data)
}

// computeChecksum is SHA-256 of the JSON serialization of data with
// recursively sorted object keys, truncated to 16 hex characters.
// encoding/json already serializes map[string]any with alphabetically
// sorted keys, so the only extra work is making row order within each
// table canonical too: two backups whose data are equal as multisets
// of rows must check out identical even if SELECT * happened to return
// rows in a different order.
func computeChecksum(data Data) (string, error) {
	tables := make([]string, 0, len(data))
	for t := range data {
		tables = append(tables, t)
	}
	sort.Strings(tables)

	canonical := make(map[string][]string, len(tables))
	for _, t := range tables {
		rows := data[t]
		rowJSON := make([]string, 0, len(rows))
		for _, r := range rows {
			raw, err := json.Marshal(r)
			if err != nil {
				return "", err
			}
			rowJSON = append(rowJSON, string(raw))
		}
		sort.Strings(rowJSON)
		canonical[t] = rowJSON
	}

	raw, err := json.Marshal(canonical)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])[:checksumHexLen], nil
}

// sampleColumns computes the column union across up to limit sampled
// records, sorted lexicographically for stability. It mirrors
// dbutil.BuildInsert's own column-union step but only over a sample,
// since pre-flight must not read every row of a huge table just to
// estimate statement counts.
func sampleColumns(records []dbutil.Record, limit int) []string {
	n := len(records)
	if n > limit {
		n = limit
	}
	set := map[string]struct{}{}
	for i := 0; i < n; i++ {
		for k := range records[i] {
			set[k] = struct{}{}
		}
	}
	cols := make([]string, 0, len(set))
	for k := range set {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}
