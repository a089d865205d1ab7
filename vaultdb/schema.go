package vaultdb

import "github.com/cloudvault/vaultd/shared/migrate"

// schemaSteps is the DDL bootstrap for every table this core owns. Each
// step is tagged with an "app-vNN" version; a backup's schema_version
// is the highest NN applied (see DB.SchemaVersion).
var schemaSteps = []struct {
	version     int
	description string
	statements  migrate.SQL
}{
	{1, "schema migration ledger", migrate.SQL{
		`CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TEXT NOT NULL
		)`,
	}},
	{2, "admins and keys", migrate.SQL{
		`CREATE TABLE IF NOT EXISTS admins (
			id TEXT PRIMARY KEY,
			username TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS admin_tokens (
			id TEXT PRIMARY KEY,
			admin_id TEXT NOT NULL,
			token_hash TEXT NOT NULL,
			expires_at TEXT,
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS api_keys (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			key_hash TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
	}},
	{3, "storage configuration", migrate.SQL{
		`CREATE TABLE IF NOT EXISTS storage_configs (
			id TEXT PRIMARY KEY,
			storage_type TEXT NOT NULL,
			admin_id TEXT NOT NULL,
			name TEXT NOT NULL,
			is_public INTEGER NOT NULL DEFAULT 0,
			is_default INTEGER NOT NULL DEFAULT 0,
			remark TEXT,
			url_proxy TEXT,
			status TEXT NOT NULL DEFAULT 'active',
			config_json TEXT NOT NULL DEFAULT '{}',
			total_storage_bytes INTEGER,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			last_used_at TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS storage_mounts (
			id TEXT PRIMARY KEY,
			storage_config_id TEXT NOT NULL,
			mount_path TEXT NOT NULL,
			created_by TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS principal_storage_acl (
			id TEXT PRIMARY KEY,
			subject TEXT NOT NULL,
			storage_config_id TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`,
	}},
	{4, "shares", migrate.SQL{
		`CREATE TABLE IF NOT EXISTS pastes (
			id TEXT PRIMARY KEY,
			slug TEXT NOT NULL UNIQUE,
			storage_config_id TEXT,
			storage_path TEXT,
			file_path TEXT,
			use_proxy INTEGER NOT NULL DEFAULT 0,
			password_hash TEXT,
			max_views INTEGER,
			view_count INTEGER NOT NULL DEFAULT 0,
			expires_at TEXT,
			mime_type TEXT,
			etag TEXT,
			size_bytes INTEGER NOT NULL DEFAULT 0,
			created_by TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS paste_passwords (
			id TEXT PRIMARY KEY,
			paste_id TEXT NOT NULL,
			password_hash TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS files (
			id TEXT PRIMARY KEY,
			slug TEXT NOT NULL UNIQUE,
			storage_config_id TEXT,
			storage_path TEXT,
			file_path TEXT,
			use_proxy INTEGER NOT NULL DEFAULT 0,
			password_hash TEXT,
			max_views INTEGER,
			view_count INTEGER NOT NULL DEFAULT 0,
			expires_at TEXT,
			mime_type TEXT,
			etag TEXT,
			size_bytes INTEGER NOT NULL DEFAULT 0,
			created_by TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS file_passwords (
			id TEXT PRIMARY KEY,
			file_id TEXT NOT NULL,
			password_hash TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`,
	}},
	{5, "settings and metrics", migrate.SQL{
		`CREATE TABLE IF NOT EXISTS system_settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS metrics_cache_entries (
			scope TEXT NOT NULL,
			scope_id TEXT NOT NULL,
			key TEXT NOT NULL,
			value_num REAL,
			value_text TEXT,
			value_json_text TEXT,
			snapshot_at_ms INTEGER NOT NULL,
			PRIMARY KEY (scope, scope_id, key)
		)`,
	}},
	{6, "fs meta and tasks", migrate.SQL{
		`CREATE TABLE IF NOT EXISTS fs_meta (
			id TEXT PRIMARY KEY,
			storage_mount_id TEXT,
			path TEXT NOT NULL,
			size_bytes INTEGER NOT NULL DEFAULT 0,
			mime_type TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS tasks (
			id TEXT PRIMARY KEY,
			user_type TEXT NOT NULL,
			user_id TEXT,
			task_type TEXT NOT NULL,
			status TEXT NOT NULL,
			payload_json TEXT,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS scheduled_jobs (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			cron TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS scheduled_job_runs (
			id TEXT PRIMARY KEY,
			scheduled_job_id TEXT NOT NULL,
			started_at TEXT NOT NULL,
			finished_at TEXT,
			status TEXT NOT NULL
		)`,
	}},
	{7, "upload sessions", migrate.SQL{
		`CREATE TABLE IF NOT EXISTS upload_sessions (
			id TEXT PRIMARY KEY,
			storage_config_id TEXT NOT NULL,
			storage_mount_id TEXT,
			storage_key TEXT NOT NULL,
			status TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
	}},
	{8, "derived fs search index", migrate.SQL{
		`CREATE TABLE IF NOT EXISTS fs_search_entries (
			id TEXT PRIMARY KEY,
			storage_mount_id TEXT NOT NULL,
			path TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS fs_search_state (
			storage_mount_id TEXT PRIMARY KEY,
			ready INTEGER NOT NULL DEFAULT 0,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS fs_search_dirty (
			storage_mount_id TEXT PRIMARY KEY,
			marked_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS fs_search_fts (
			id TEXT PRIMARY KEY,
			storage_mount_id TEXT NOT NULL,
			content TEXT
		)`,
	}},
}
