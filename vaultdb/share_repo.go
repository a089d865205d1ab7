package vaultdb

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/cloudvault/vaultd/share"
	"github.com/cloudvault/vaultd/storageconfig"
	"github.com/cloudvault/vaultd/vaulterrs"
)

// shareTable returns the table a Kind is persisted in.
func shareTable(kind share.Kind) string {
	if kind == share.KindFile {
		return "files"
	}
	return "pastes"
}

// ShareRepo implements share.Repository over the pastes and files
// tables.
type ShareRepo struct {
	db *DB
}

// NewShareRepo returns a repository bound to db.
func NewShareRepo(db *DB) *ShareRepo {
	return &ShareRepo{db: db}
}

const shareColumns = `id, slug, storage_config_id, storage_path, file_path, use_proxy, password_hash,
	max_views, view_count, expires_at, mime_type, etag, size_bytes, created_by, created_at, updated_at`

func scanShare(kind share.Kind, s scanner) (*share.ShareRecord, error) {
	var (
		r               share.ShareRecord
		storageConfigID sql.NullString
		storagePath     sql.NullString
		filePath        sql.NullString
		useProxy        int64
		passwordHash    sql.NullString
		maxViews        sql.NullInt64
		viewCount       int64
		expiresAt       sql.NullString
		mimeType        sql.NullString
		etag            sql.NullString
		createdAt       string
		updatedAt       string
	)
	err := s.Scan(&r.ID, &r.Slug, &storageConfigID, &storagePath, &filePath, &useProxy, &passwordHash,
		&maxViews, &viewCount, &expiresAt, &mimeType, &etag, &r.SizeBytes, &r.CreatedBy, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, vaulterrs.Repository.Wrap(err)
	}
	r.Kind = kind
	r.StorageConfigID = stringPtr(storageConfigID)
	r.StoragePath = stringPtr(storagePath)
	r.FilePath = stringPtr(filePath)
	r.UseProxy = intToBool(useProxy)
	r.PasswordHash = stringPtr(passwordHash)
	if maxViews.Valid {
		n := int(maxViews.Int64)
		r.MaxViews = &n
	}
	r.ExpiresAt = timePtr(expiresAt)
	r.MimeType = stringPtr(mimeType)
	r.ETag = stringPtr(etag)
	r.CreatedAt = parseTime(createdAt)
	r.UpdatedAt = parseTime(updatedAt)
	return &r, nil
}

func (r *ShareRepo) FindBySlug(ctx context.Context, kind share.Kind, slug string) (*share.ShareRecord, error) {
	table := shareTable(kind)
	query := r.db.Rebind(`SELECT ` + shareColumns + ` FROM ` + table + ` WHERE slug = ?`)
	return scanShare(kind, r.db.sql.QueryRowContext(ctx, query, slug))
}

func (r *ShareRepo) Create(ctx context.Context, rec share.ShareRecord) error {
	table := shareTable(rec.Kind)
	var maxViews sql.NullInt64
	if rec.MaxViews != nil {
		maxViews = sql.NullInt64{Int64: int64(*rec.MaxViews), Valid: true}
	}
	query := r.db.Rebind(`INSERT INTO ` + table + ` (id, slug, storage_config_id, storage_path, file_path,
		use_proxy, password_hash, max_views, view_count, expires_at, mime_type, etag, size_bytes,
		created_by, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := r.db.sql.ExecContext(ctx, query,
		rec.ID, rec.Slug, nullString(rec.StorageConfigID), nullString(rec.StoragePath), nullString(rec.FilePath),
		boolToInt(rec.UseProxy), nullString(rec.PasswordHash), maxViews, nullTime(rec.ExpiresAt),
		nullString(rec.MimeType), nullString(rec.ETag), rec.SizeBytes,
		rec.CreatedBy, formatTime(rec.CreatedAt), formatTime(rec.UpdatedAt))
	return vaulterrs.Repository.Wrap(err)
}

func (r *ShareRepo) Update(ctx context.Context, rec share.ShareRecord) error {
	table := shareTable(rec.Kind)
	var maxViews sql.NullInt64
	if rec.MaxViews != nil {
		maxViews = sql.NullInt64{Int64: int64(*rec.MaxViews), Valid: true}
	}
	query := r.db.Rebind(`UPDATE ` + table + ` SET slug = ?, storage_config_id = ?, storage_path = ?,
		file_path = ?, use_proxy = ?, password_hash = ?, max_views = ?, expires_at = ?, mime_type = ?,
		etag = ?, size_bytes = ?, updated_at = ? WHERE id = ?`)
	_, err := r.db.sql.ExecContext(ctx, query,
		rec.Slug, nullString(rec.StorageConfigID), nullString(rec.StoragePath), nullString(rec.FilePath),
		boolToInt(rec.UseProxy), nullString(rec.PasswordHash), maxViews, nullTime(rec.ExpiresAt),
		nullString(rec.MimeType), nullString(rec.ETag), rec.SizeBytes, formatTime(rec.UpdatedAt), rec.ID)
	return vaulterrs.Repository.Wrap(err)
}

// ShareConfigLookup implements share.ConfigLookup over StorageConfigRepo,
// adding the one query storageconfig.Service doesn't expose: the
// system-wide default config.
type ShareConfigLookup struct {
	repo *StorageConfigRepo
	db   *DB
}

// NewShareConfigLookup returns a lookup bound to db.
func NewShareConfigLookup(db *DB) *ShareConfigLookup {
	return &ShareConfigLookup{repo: NewStorageConfigRepo(db), db: db}
}

func (l *ShareConfigLookup) Get(ctx context.Context, id string) (storageconfig.Config, error) {
	return l.repo.Get(ctx, id)
}

func (l *ShareConfigLookup) ListPublic(ctx context.Context) ([]storageconfig.Config, error) {
	return l.repo.ListPublic(ctx)
}

// GetDefault returns the single is_default=1 row, if any exists, across
// all admins. The upload pipeline is not admin-scoped, so "the default"
// is read globally rather than per owning admin.
func (l *ShareConfigLookup) GetDefault(ctx context.Context) (*storageconfig.Config, error) {
	query := l.db.Rebind(`SELECT ` + storageConfigColumns + ` FROM storage_configs WHERE is_default = 1 LIMIT 1`)
	cfg, err := scanStorageConfig(l.db.sql.QueryRowContext(ctx, query))
	if vaulterrs.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ShareACLRepo implements share.ACLResolver over principal_storage_acl.
type ShareACLRepo struct {
	db *DB
}

// NewShareACLRepo returns a resolver bound to db.
func NewShareACLRepo(db *DB) *ShareACLRepo {
	return &ShareACLRepo{db: db}
}

func (r *ShareACLRepo) AllowedConfigIDs(ctx context.Context, apiKeyID string) ([]string, error) {
	query := r.db.Rebind(`SELECT storage_config_id FROM principal_storage_acl WHERE subject = ?`)
	rows, err := r.db.sql.QueryContext(ctx, query, "API_KEY:"+apiKeyID)
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

// system_settings keys the share pipeline reads.
const (
	settingMaxUploadSize   = "max_upload_size"
	settingRandomSuffixAll = "random_suffix_mode"
)

// ShareSettingsRepo implements share.SystemSettings over the
// system_settings singleton table.
type ShareSettingsRepo struct {
	db           *DB
	defaultMax   int64
	defaultRandS bool
}

// NewShareSettingsRepo returns a settings repo bound to db, falling
// back to defaultMaxUploadSize/defaultRandomSuffix when a key hasn't
// been set yet.
func NewShareSettingsRepo(db *DB, defaultMaxUploadSize int64, defaultRandomSuffix bool) *ShareSettingsRepo {
	return &ShareSettingsRepo{db: db, defaultMax: defaultMaxUploadSize, defaultRandS: defaultRandomSuffix}
}

func (r *ShareSettingsRepo) readString(ctx context.Context, key string) (string, bool, error) {
	query := r.db.Rebind(`SELECT value FROM system_settings WHERE key = ?`)
	var value string
	err := r.db.sql.QueryRowContext(ctx, query, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, vaulterrs.Repository.Wrap(err)
	}
	return value, true, nil
}

func (r *ShareSettingsRepo) MaxUploadSize(ctx context.Context) (int64, error) {
	value, ok, err := r.readString(ctx, settingMaxUploadSize)
	if err != nil {
		return 0, err
	}
	if !ok {
		return r.defaultMax, nil
	}
	var n int64
	if _, err := fmt.Sscanf(value, "%d", &n); err != nil {
		return r.defaultMax, nil
	}
	return n, nil
}

func (r *ShareSettingsRepo) RandomSuffixMode(ctx context.Context) (bool, error) {
	value, ok, err := r.readString(ctx, settingRandomSuffixAll)
	if err != nil {
		return false, err
	}
	if !ok {
		return r.defaultRandS, nil
	}
	return value == "1" || value == "true", nil
}
