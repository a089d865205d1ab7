// Package storageconfig implements the storage-config service:
// CRUD over storage_configs, secret encryption, masked-placeholder
// rejection, WebDAV policy derivation, and cache/index invalidation
// fan-out.
package storageconfig

import (
	"context"
	"time"
)

// Config is one storage backend configuration. ConfigJSON holds the
// driver-private field bag; secret fields inside it are ciphertext,
// never plaintext, outside Reveal(mode=plain).
type Config struct {
	ID                string
	StorageType       string
	AdminID           string
	Name              string
	IsPublic          bool
	IsDefault         bool
	Remark            *string
	URLProxy          *string
	Status            string
	ConfigJSON        map[string]any
	TotalStorageBytes *int64
	CreatedAt         time.Time
	UpdatedAt         time.Time
	LastUsedAt        *time.Time
}

// Repository is vaultdb's persistence contract for Config, satisfied by
// the SQLite/Postgres implementations in package vaultdb.
type Repository interface {
	List(ctx context.Context, adminID string) ([]Config, error)
	ListPublic(ctx context.Context) ([]Config, error)
	Get(ctx context.Context, id string) (Config, error)
	Create(ctx context.Context, c Config) error
	Update(ctx context.Context, c Config) error
	Delete(ctx context.Context, id string) error
	ClearDefault(ctx context.Context, adminID string) error
	SetDefault(ctx context.Context, adminID, id string) error
	MountIDsForConfig(ctx context.Context, configID string) ([]string, error)
	DeleteMountsForConfig(ctx context.Context, configID string) error
	DeleteACLForConfig(ctx context.Context, configID string) error
	WithTx(ctx context.Context, fn func(Repository) error) error
}

// IndexInvalidator is the FS search index coordinator view this
// service needs: clear a mount's derived index, optionally keeping its
// "dirty" marker so a rebuild is scheduled rather than abandoned.
type IndexInvalidator interface {
	ClearMount(ctx context.Context, mountID string, keepState bool) error
}

// Cache is a whole-entry-replacement cache in front of the config
// store. Invalidate drops a single entry; it is never expected to
// fail.
type Cache interface {
	Invalidate(id string)
}

// NopCache is the zero-value Cache for callers that run without one
// (e.g. tests, or a single-process deployment with no read replica to
// desync from).
type NopCache struct{}

func (NopCache) Invalidate(string) {}
