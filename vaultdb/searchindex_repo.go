package vaultdb

import (
	"context"
	"time"

	"github.com/cloudvault/vaultd/backup"
	"github.com/cloudvault/vaultd/vaulterrs"
)

// SearchIndexRepo implements searchindex.Repository over the
// fs_search_entries/fs_search_state/fs_search_dirty/fs_search_fts
// tables.
type SearchIndexRepo struct {
	db *DB
}

// NewSearchIndexRepo returns a repository bound to db.
func NewSearchIndexRepo(db *DB) *SearchIndexRepo {
	return &SearchIndexRepo{db: db}
}

func (r *SearchIndexRepo) ClearMountEntries(ctx context.Context, mountID string) error {
	for _, table := range []string{"fs_search_entries", "fs_search_fts"} {
		query := r.db.Rebind(`DELETE FROM ` + table + ` WHERE storage_mount_id = ?`)
		if _, err := r.db.sql.ExecContext(ctx, query, mountID); err != nil {
			return vaulterrs.Repository.Wrap(err)
		}
	}
	return nil
}

func (r *SearchIndexRepo) MarkNotReady(ctx context.Context, mountID string) error {
	query := r.db.Rebind(`INSERT INTO fs_search_state (storage_mount_id, ready, updated_at) VALUES (?, 0, ?)
		ON CONFLICT (storage_mount_id) DO UPDATE SET ready = 0, updated_at = excluded.updated_at`)
	_, err := r.db.sql.ExecContext(ctx, query, mountID, formatTime(time.Now()))
	return vaulterrs.Repository.Wrap(err)
}

func (r *SearchIndexRepo) MarkDirty(ctx context.Context, mountID string) error {
	query := r.db.Rebind(`INSERT INTO fs_search_dirty (storage_mount_id, marked_at) VALUES (?, ?)
		ON CONFLICT (storage_mount_id) DO UPDATE SET marked_at = excluded.marked_at`)
	_, err := r.db.sql.ExecContext(ctx, query, mountID, formatTime(time.Now()))
	return vaulterrs.Repository.Wrap(err)
}

func (r *SearchIndexRepo) ClearDirty(ctx context.Context, mountID string) error {
	query := r.db.Rebind(`DELETE FROM fs_search_dirty WHERE storage_mount_id = ?`)
	_, err := r.db.sql.ExecContext(ctx, query, mountID)
	return vaulterrs.Repository.Wrap(err)
}

// ClearAll unconditionally empties every FS search index table.
func (r *SearchIndexRepo) ClearAll(ctx context.Context) error {
	for _, table := range backup.FSSearchIndexTables {
		if err := r.db.DeleteAll(ctx, table); err != nil {
			return err
		}
	}
	return nil
}
