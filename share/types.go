// Package share implements the share upload pipeline: ACL-aware
// storage-config resolution, system max-size enforcement, quota
// admission, driver dispatch, and share-record creation.
package share

import (
	"context"
	"io"
	"time"

	"github.com/cloudvault/vaultd/storageconfig"
)

// Kind distinguishes the two share tables a ShareRecord can live in:
// files and pastes.
type Kind string

const (
	KindFile  Kind = "file"
	KindPaste Kind = "paste"
)

// ShareRecord is the persisted entity behind a public share link: a
// slug tied to a stored object and its access policy.
type ShareRecord struct {
	ID              string
	Kind            Kind
	Slug            string
	StorageConfigID *string
	StoragePath     *string
	FilePath        *string
	UseProxy        bool
	PasswordHash    *string
	MaxViews        *int
	ExpiresAt       *time.Time
	MimeType        *string
	ETag            *string
	SizeBytes       int64
	CreatedBy       string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Subject is the identity issuing an upload request: exactly one of
// AdminID or APIKeyID is set. The creator identity stored on a share
// record derives from it (the admin id, or "apikey:<id>").
type Subject struct {
	AdminID  string
	APIKeyID string
}

// IsAdmin reports whether the subject is an admin rather than an API key.
func (s Subject) IsAdmin() bool { return s.AdminID != "" }

// CreatorIdentity renders the subject the way created_by is stored.
func (s Subject) CreatorIdentity() string {
	if s.IsAdmin() {
		return s.AdminID
	}
	return "apikey:" + s.APIKeyID
}

// Repository is vaultdb's persistence contract for share records.
type Repository interface {
	FindBySlug(ctx context.Context, kind Kind, slug string) (*ShareRecord, error)
	Create(ctx context.Context, r ShareRecord) error
	Update(ctx context.Context, r ShareRecord) error
}

// ConfigLookup is the narrow view of the storage-config service
// the prologue needs to resolve a target config.
type ConfigLookup interface {
	Get(ctx context.Context, id string) (storageconfig.Config, error)
	GetDefault(ctx context.Context) (*storageconfig.Config, error)
	ListPublic(ctx context.Context) ([]storageconfig.Config, error)
}

// ACLResolver reports the set of storage configs an API-Key subject is
// bound to. An empty slice means no restriction is configured.
type ACLResolver interface {
	AllowedConfigIDs(ctx context.Context, apiKeyID string) ([]string, error)
}

// QuotaGuard is the quota-guard view the pipeline needs: admission
// control plus the same-key overwrite old-bytes lookup.
type QuotaGuard interface {
	AssertCanConsume(ctx context.Context, storageConfigID string, incomingBytes, oldBytes int64, context string) error
	OldBytesForKey(ctx context.Context, storageConfigID, storageKey string) int64
}

// SystemSettings is the tiny KV surface the pipeline reads at request
// time.
type SystemSettings interface {
	MaxUploadSize(ctx context.Context) (int64, error)
	RandomSuffixMode(ctx context.Context) (bool, error)
}

// UploadInput is what a Driver needs to move bytes for a direct-stream
// or file-object upload.
type UploadInput struct {
	Config   storageconfig.Config
	Key      string
	Reader   io.Reader
	Size     int64
	MimeType string
}

// UploadOutput is the driver-reported outcome of a completed upload.
type UploadOutput struct {
	ETag string
}

// PresignedUpload is the client-facing handoff for a presign_init call.
type PresignedUpload struct {
	UploadID  string
	UploadURL string
	Fields    map[string]string
	ExpiresAt time.Time
}

// Driver is the capability interface a storage backend implements for
// the pipeline's driver-dispatch step. Production registrations wire
// it to a real client; tests wire it to a fake.
type Driver interface {
	// PlanKey computes the storage key an upload would land at,
	// honoring naming policy and conflict-rename.
	PlanKey(ctx context.Context, cfg storageconfig.Config, filename string) (string, error)
	UploadBackendStream(ctx context.Context, in UploadInput) (UploadOutput, error)
	UploadBackendForm(ctx context.Context, in UploadInput) (UploadOutput, error)
	PresignInit(ctx context.Context, cfg storageconfig.Config, filename string, size int64) (PresignedUpload, error)
	PresignCommit(ctx context.Context, cfg storageconfig.Config, uploadID, key string) (UploadOutput, error)
}

// Drivers resolves a storage_type tag to its Driver implementation.
type Drivers interface {
	Driver(storageType string) (Driver, bool)
}
