// Package backup implements the backup engine: module→table expansion,
// dependency topological sort, chunked statement assembly, batch
// execution, result reconciliation, integrity scan, and restore
// pre-flight. Every metadata table in the system passes through it.
package backup

// ModuleTables maps each backup module to the tables it owns.
var ModuleTables = map[string][]string{
	"text_management":    {"pastes", "paste_passwords"},
	"file_management":    {"files", "file_passwords"},
	"mount_management":   {"storage_mounts"},
	"storage_config":     {"storage_configs", "principal_storage_acl"},
	"key_management":     {"api_keys"},
	"account_management": {"admins", "admin_tokens"},
	"system_settings":    {"system_settings"},
	"fs_meta_management": {"fs_meta"},
	"task_management":    {"tasks", "scheduled_jobs", "scheduled_job_runs"},
	"upload_sessions":    {"upload_sessions"},
}

// ModuleDependencies is the auto-inclusion map: selecting the key
// module also pulls in its values.
var ModuleDependencies = map[string][]string{
	"mount_management": {"storage_config"},
	"file_management":  {"storage_config"},
}

// TableDependencies is the child→parents table dependency DAG.
var TableDependencies = map[string][]string{
	"paste_passwords":       {"pastes"},
	"file_passwords":        {"files"},
	"admin_tokens":          {"admins"},
	"storage_configs":       {"admins"},
	"storage_mounts":        {"storage_configs"},
	"tasks":                 {"api_keys"}, // only when user_type='apikey'; the sort applies it to every tasks row
	"principal_storage_acl": {"api_keys", "storage_configs"},
	"scheduled_job_runs":    {"scheduled_jobs"},
	"upload_sessions":       {"storage_configs", "storage_mounts"},
}

// FSSearchIndexTables are the derived, never-backed-up search index
// tables. They are cleared unconditionally on every restore and
// excluded from a "full" backup.
var FSSearchIndexTables = []string{
	"fs_search_entries",
	"fs_search_state",
	"fs_search_dirty",
	"fs_search_fts",
}

// AllTables returns every table known to the schema, including the
// derived FS search index tables.
func AllTables() []string {
	seen := map[string]struct{}{}
	var tables []string
	for _, ts := range ModuleTables {
		for _, t := range ts {
			if _, ok := seen[t]; !ok {
				seen[t] = struct{}{}
				tables = append(tables, t)
			}
		}
	}
	for _, t := range FSSearchIndexTables {
		if _, ok := seen[t]; !ok {
			seen[t] = struct{}{}
			tables = append(tables, t)
		}
	}
	return tables
}

// BackupTables returns every table eligible for a "full" backup: every
// known table minus the derived FS search index tables.
func BackupTables() []string {
	excluded := map[string]struct{}{}
	for _, t := range FSSearchIndexTables {
		excluded[t] = struct{}{}
	}
	var tables []string
	for _, t := range AllTables() {
		if _, ok := excluded[t]; !ok {
			tables = append(tables, t)
		}
	}
	return tables
}

// ExpandModules applies ModuleDependencies to produce the final module
// set and returns it alongside the auto-included dependencies (the
// modules pulled in that were not in the caller's selection), matching
// the included_modules/auto_included_dependencies split in the backup
// metadata. Order is deterministic: selected modules first (as given),
// then auto-included dependencies in first-seen order.
func ExpandModules(selected []string) (included []string, autoIncluded []string) {
	seen := map[string]struct{}{}
	for _, m := range selected {
		if _, ok := seen[m]; !ok {
			seen[m] = struct{}{}
			included = append(included, m)
		}
	}
	for _, m := range selected {
		for _, dep := range ModuleDependencies[m] {
			if _, ok := seen[dep]; !ok {
				seen[dep] = struct{}{}
				included = append(included, dep)
				autoIncluded = append(autoIncluded, dep)
			}
		}
	}
	return included, autoIncluded
}

// TablesForModules unions the table lists of the given modules.
func TablesForModules(modules []string) []string {
	seen := map[string]struct{}{}
	var tables []string
	for _, m := range modules {
		for _, t := range ModuleTables[m] {
			if _, ok := seen[t]; !ok {
				seen[t] = struct{}{}
				tables = append(tables, t)
			}
		}
	}
	return tables
}

var knownTables = func() map[string]struct{} {
	set := map[string]struct{}{}
	for _, t := range AllTables() {
		set[t] = struct{}{}
	}
	return set
}()

// IsKnownTable reports whether t is part of the fixed schema.
func IsKnownTable(t string) bool {
	_, ok := knownTables[t]
	return ok
}
