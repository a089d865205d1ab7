package vaultdb

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/cloudvault/vaultd/storageconfig"
	"github.com/cloudvault/vaultd/vaulterrs"
)

// StorageConfigRepo implements storageconfig.Repository over
// vaultdb.DB's storage_configs/storage_mounts/principal_storage_acl
// tables.
type StorageConfigRepo struct {
	db *DB
	q  querier
}

// NewStorageConfigRepo returns a repository bound to db's connection
// pool (outside any transaction).
func NewStorageConfigRepo(db *DB) *StorageConfigRepo {
	return &StorageConfigRepo{db: db, q: db.sql}
}

func (r *StorageConfigRepo) WithTx(ctx context.Context, fn func(storageconfig.Repository) error) error {
	tx, err := r.db.sql.BeginTx(ctx, nil)
	if err != nil {
		return Error.Wrap(err)
	}
	scoped := &StorageConfigRepo{db: r.db, q: tx}
	if err := fn(scoped); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return Error.Wrap(err)
	}
	return nil
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanStorageConfig(s scanner) (storageconfig.Config, error) {
	var (
		c          storageconfig.Config
		isPublic   int64
		isDefault  int64
		remark     sql.NullString
		urlProxy   sql.NullString
		configJSON string
		totalBytes sql.NullInt64
		createdAt  string
		updatedAt  string
		lastUsedAt sql.NullString
	)
	err := s.Scan(&c.ID, &c.StorageType, &c.AdminID, &c.Name, &isPublic, &isDefault,
		&remark, &urlProxy, &c.Status, &configJSON, &totalBytes, &createdAt, &updatedAt, &lastUsedAt)
	if err == sql.ErrNoRows {
		return storageconfig.Config{}, vaulterrs.NotFound.New("storage config not found")
	}
	if err != nil {
		return storageconfig.Config{}, vaulterrs.Repository.Wrap(err)
	}
	c.IsPublic = intToBool(isPublic)
	c.IsDefault = intToBool(isDefault)
	c.Remark = stringPtr(remark)
	c.URLProxy = stringPtr(urlProxy)
	c.TotalStorageBytes = int64Ptr(totalBytes)
	c.CreatedAt = parseTime(createdAt)
	c.UpdatedAt = parseTime(updatedAt)
	c.LastUsedAt = timePtr(lastUsedAt)
	if err := json.Unmarshal([]byte(configJSON), &c.ConfigJSON); err != nil {
		return storageconfig.Config{}, vaulterrs.Repository.Wrap(err)
	}
	return c, nil
}

const storageConfigColumns = `id, storage_type, admin_id, name, is_public, is_default, remark, url_proxy, status, config_json, total_storage_bytes, created_at, updated_at, last_used_at`

func (r *StorageConfigRepo) Get(ctx context.Context, id string) (storageconfig.Config, error) {
	query := r.db.Rebind(`SELECT ` + storageConfigColumns + ` FROM storage_configs WHERE id = ?`)
	return scanStorageConfig(r.q.QueryRowContext(ctx, query, id))
}

func (r *StorageConfigRepo) list(ctx context.Context, where string, args ...any) ([]storageconfig.Config, error) {
	query := r.db.Rebind(`SELECT ` + storageConfigColumns + ` FROM storage_configs ` + where + ` ORDER BY created_at`)
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, vaulterrs.Repository.Wrap(err)
	}
	defer rows.Close()

	var out []storageconfig.Config
	for rows.Next() {
		c, err := scanStorageConfig(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, vaulterrs.Repository.Wrap(rows.Err())
}

func (r *StorageConfigRepo) List(ctx context.Context, adminID string) ([]storageconfig.Config, error) {
	return r.list(ctx, "WHERE admin_id = ?", adminID)
}

func (r *StorageConfigRepo) ListPublic(ctx context.Context) ([]storageconfig.Config, error) {
	return r.list(ctx, "WHERE is_public = 1")
}

func (r *StorageConfigRepo) Create(ctx context.Context, c storageconfig.Config) error {
	configJSON, err := json.Marshal(c.ConfigJSON)
	if err != nil {
		return vaulterrs.Repository.Wrap(err)
	}
	query := r.db.Rebind(`INSERT INTO storage_configs
		(id, storage_type, admin_id, name, is_public, is_default, remark, url_proxy, status, config_json, total_storage_bytes, created_at, updated_at, last_used_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err = r.q.ExecContext(ctx, query,
		c.ID, c.StorageType, c.AdminID, c.Name, boolToInt(c.IsPublic), boolToInt(c.IsDefault),
		nullString(c.Remark), nullString(c.URLProxy), c.Status, string(configJSON), nullInt64(c.TotalStorageBytes),
		formatTime(c.CreatedAt), formatTime(c.UpdatedAt), nullTime(c.LastUsedAt))
	return vaulterrs.Repository.Wrap(err)
}

func (r *StorageConfigRepo) Update(ctx context.Context, c storageconfig.Config) error {
	configJSON, err := json.Marshal(c.ConfigJSON)
	if err != nil {
		return vaulterrs.Repository.Wrap(err)
	}
	query := r.db.Rebind(`UPDATE storage_configs SET
		name = ?, is_public = ?, is_default = ?, remark = ?, url_proxy = ?, status = ?,
		config_json = ?, total_storage_bytes = ?, updated_at = ?, last_used_at = ?
		WHERE id = ?`)
	_, err = r.q.ExecContext(ctx, query,
		c.Name, boolToInt(c.IsPublic), boolToInt(c.IsDefault), nullString(c.Remark), nullString(c.URLProxy), c.Status,
		string(configJSON), nullInt64(c.TotalStorageBytes), formatTime(c.UpdatedAt), nullTime(c.LastUsedAt), c.ID)
	return vaulterrs.Repository.Wrap(err)
}

func (r *StorageConfigRepo) Delete(ctx context.Context, id string) error {
	query := r.db.Rebind(`DELETE FROM storage_configs WHERE id = ?`)
	_, err := r.q.ExecContext(ctx, query, id)
	return vaulterrs.Repository.Wrap(err)
}

func (r *StorageConfigRepo) ClearDefault(ctx context.Context, adminID string) error {
	query := r.db.Rebind(`UPDATE storage_configs SET is_default = 0 WHERE admin_id = ? AND is_default = 1`)
	_, err := r.q.ExecContext(ctx, query, adminID)
	return vaulterrs.Repository.Wrap(err)
}

func (r *StorageConfigRepo) SetDefault(ctx context.Context, adminID, id string) error {
	query := r.db.Rebind(`UPDATE storage_configs SET is_default = 1 WHERE admin_id = ? AND id = ?`)
	_, err := r.q.ExecContext(ctx, query, adminID, id)
	return vaulterrs.Repository.Wrap(err)
}

func (r *StorageConfigRepo) MountIDsForConfig(ctx context.Context, configID string) ([]string, error) {
	query := r.db.Rebind(`SELECT id FROM storage_mounts WHERE storage_config_id = ?`)
	rows, err := r.q.QueryContext(ctx, query, configID)
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

func (r *StorageConfigRepo) DeleteMountsForConfig(ctx context.Context, configID string) error {
	query := r.db.Rebind(`DELETE FROM storage_mounts WHERE storage_config_id = ?`)
	_, err := r.q.ExecContext(ctx, query, configID)
	return vaulterrs.Repository.Wrap(err)
}

func (r *StorageConfigRepo) DeleteACLForConfig(ctx context.Context, configID string) error {
	query := r.db.Rebind(`DELETE FROM principal_storage_acl WHERE storage_config_id = ?`)
	_, err := r.q.ExecContext(ctx, query, configID)
	return vaulterrs.Repository.Wrap(err)
}
