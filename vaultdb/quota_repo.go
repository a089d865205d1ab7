package vaultdb

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/cloudvault/vaultd/quota"
	"github.com/cloudvault/vaultd/vaulterrs"
)

// QuotaRepo implements quota.Repository over storage_configs and
// metrics_cache_entries.
type QuotaRepo struct {
	db *DB
}

// NewQuotaRepo returns a repository bound to db.
func NewQuotaRepo(db *DB) *QuotaRepo {
	return &QuotaRepo{db: db}
}

func (r *QuotaRepo) ConfiguredLimitBytes(ctx context.Context, storageConfigID string) (*int64, error) {
	query := r.db.Rebind(`SELECT total_storage_bytes FROM storage_configs WHERE id = ?`)
	var limit sql.NullInt64
	err := r.db.sql.QueryRowContext(ctx, query, storageConfigID).Scan(&limit)
	if err == sql.ErrNoRows {
		return nil, vaulterrs.NotFound.New("storage config %q not found", storageConfigID)
	}
	if err != nil {
		return nil, vaulterrs.Repository.Wrap(err)
	}
	return int64Ptr(limit), nil
}

// metricsScopeStorageConfig and metricsKeyComputedUsage name the fixed
// metrics cache entry the quota guard reads: scope "storage_config",
// scope_id the config id, key "computed_usage".
const (
	metricsScopeStorageConfig = "storage_config"
	metricsKeyComputedUsage   = "computed_usage"
)

func (r *QuotaRepo) LatestUsage(ctx context.Context, storageConfigID string) (*quota.ComputedUsage, error) {
	query := r.db.Rebind(`SELECT value_num, value_text, value_json_text, snapshot_at_ms
		FROM metrics_cache_entries WHERE scope = ? AND scope_id = ? AND key = ?`)
	var (
		usedBytes  sql.NullFloat64
		source     sql.NullString
		detailsRaw sql.NullString
		snapshotAt int64
	)
	err := r.db.sql.QueryRowContext(ctx, query, metricsScopeStorageConfig, storageConfigID, metricsKeyComputedUsage).
		Scan(&usedBytes, &source, &detailsRaw, &snapshotAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, vaulterrs.Repository.Wrap(err)
	}

	usage := &quota.ComputedUsage{
		UsedBytes:  int64(usedBytes.Float64),
		Source:     source.String,
		SnapshotAt: snapshotAt,
	}
	if detailsRaw.Valid && detailsRaw.String != "" {
		if err := json.Unmarshal([]byte(detailsRaw.String), &usage.Details); err != nil {
			return nil, vaulterrs.Repository.Wrap(err)
		}
	}
	return usage, nil
}

// PriorShareSize finds a prior share record at (storage_config_id,
// storage_key) across both paste and file shares, whichever exists.
func (r *QuotaRepo) PriorShareSize(ctx context.Context, storageConfigID, storageKey string) (*int64, error) {
	for _, table := range []string{"pastes", "files"} {
		query := r.db.Rebind(`SELECT size_bytes FROM ` + table + ` WHERE storage_config_id = ? AND storage_path = ? ORDER BY created_at DESC`)
		rows, err := r.db.sql.QueryContext(ctx, query, storageConfigID, storageKey)
		if err != nil {
			return nil, vaulterrs.Repository.Wrap(err)
		}
		var size int64
		found := false
		if rows.Next() {
			if err := rows.Scan(&size); err != nil {
				rows.Close()
				return nil, vaulterrs.Repository.Wrap(err)
			}
			found = true
		}
		rows.Close()
		if found {
			return &size, nil
		}
	}
	return nil, nil
}

func (r *QuotaRepo) AllConfigIDs(ctx context.Context) ([]string, error) {
	query := `SELECT id FROM storage_configs ORDER BY created_at`
	rows, err := r.db.sql.QueryContext(ctx, query)
	if err != nil {
		return nil, vaulterrs.Repository.Wrap(err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, vaulterrs.Repository.Wrap(err)
		}
		ids = append(ids, id)
	}
	return ids, vaulterrs.Repository.Wrap(rows.Err())
}
