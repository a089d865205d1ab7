package backup

// SortTables is a Kahn-style dependency sort: repeatedly pick the
// first table (in the given order) whose dependencies are either
// already sorted or absent from the input set.
// On a cycle, a pathological input, the remaining tables are appended
// in their input order rather than looping forever.
func SortTables(tables []string) []string {
	set := make(map[string]struct{}, len(tables))
	for _, t := range tables {
		set[t] = struct{}{}
	}

	remaining := append([]string(nil), tables...)
	sorted := make([]string, 0, len(tables))
	done := map[string]struct{}{}

	for len(remaining) > 0 {
		pick := -1
		for i, t := range remaining {
			if ready(t, set, done) {
				pick = i
				break
			}
		}
		if pick == -1 {
			sorted = append(sorted, remaining...)
			break
		}
		t := remaining[pick]
		sorted = append(sorted, t)
		done[t] = struct{}{}
		remaining = append(remaining[:pick], remaining[pick+1:]...)
	}
	return sorted
}

func ready(table string, set, done map[string]struct{}) bool {
	for _, dep := range TableDependencies[table] {
		if _, inSet := set[dep]; !inSet {
			continue // dependency not part of this table set: doesn't block
		}
		if _, isDone := done[dep]; !isDone {
			return false
		}
	}
	return true
}

// reverseOf returns a new slice with tables in reverse order, used for
// the restore engine's DELETE order.
func reverseOf(tables []string) []string {
	out := make([]string, len(tables))
	for i, t := range tables {
		out[len(tables)-1-i] = t
	}
	return out
}
