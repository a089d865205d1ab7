package share

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/cloudvault/vaultd/storageconfig"
	"github.com/cloudvault/vaultd/storageconfig/registry"
	"github.com/cloudvault/vaultd/vaulterrs"
)

// slugSuffixAttempts bounds the random-suffix collision retry loop.
const slugSuffixAttempts = 5

// defaultURLProbeTimeout bounds the HEAD/GET probe behind
// ValidateURLMetadata and ProxyURLContent.
const defaultURLProbeTimeout = 10 * time.Second

// Service routes an upload request through config resolution, quota
// admission, driver dispatch, and share-record creation.
type Service struct {
	repo       Repository
	configs    ConfigLookup
	acl        ACLResolver
	quota      QuotaGuard
	settings   SystemSettings
	drivers    Drivers
	registry   *registry.Registry
	log        *zap.Logger
	now        func() time.Time
	httpClient *http.Client
}

// NewService wires a Service from its collaborators.
func NewService(repo Repository, configs ConfigLookup, acl ACLResolver, quota QuotaGuard, settings SystemSettings, drivers Drivers, reg *registry.Registry, log *zap.Logger) *Service {
	return &Service{
		repo:       repo,
		configs:    configs,
		acl:        acl,
		quota:      quota,
		settings:   settings,
		drivers:    drivers,
		registry:   reg,
		log:        log,
		now:        time.Now,
		httpClient: &http.Client{Timeout: defaultURLProbeTimeout},
	}
}

// SetURLProbeTimeout adjusts the remote-URL probe timeout. Driver
// uploads are unaffected; they carry the caller's context deadline
// unchanged.
func (s *Service) SetURLProbeTimeout(d time.Duration) {
	s.httpClient.Timeout = d
}

// resolveConfig picks the target storage config: the requested one
// (checking ACL for API-Key subjects), else the default, else the
// first allowed public entry.
func (s *Service) resolveConfig(ctx context.Context, subject Subject, storageConfigID *string) (storageconfig.Config, error) {
	if storageConfigID != nil && *storageConfigID != "" {
		cfg, err := s.configs.Get(ctx, *storageConfigID)
		if err != nil {
			return storageconfig.Config{}, err
		}
		if !subject.IsAdmin() {
			if !cfg.IsPublic {
				return storageconfig.Config{}, vaulterrs.Validation.New("storage config %q is not public", cfg.ID)
			}
			if err := s.checkACL(ctx, subject, cfg.ID); err != nil {
				return storageconfig.Config{}, err
			}
		}
		return cfg, nil
	}

	def, err := s.configs.GetDefault(ctx)
	if err != nil {
		return storageconfig.Config{}, err
	}
	if def != nil {
		return *def, nil
	}

	public, err := s.configs.ListPublic(ctx)
	if err != nil {
		return storageconfig.Config{}, err
	}
	for _, cfg := range public {
		if subject.IsAdmin() {
			return cfg, nil
		}
		if err := s.checkACL(ctx, subject, cfg.ID); err == nil {
			return cfg, nil
		}
	}
	return storageconfig.Config{}, vaulterrs.Validation.New("no usable storage config")
}

// checkACL implements the "non-empty ACL" rule: an API-Key subject with
// no configured allow-set is unrestricted; one with an allow-set must
// name the config explicitly.
func (s *Service) checkACL(ctx context.Context, subject Subject, configID string) error {
	allowed, err := s.acl.AllowedConfigIDs(ctx, subject.APIKeyID)
	if err != nil {
		return err
	}
	if len(allowed) == 0 {
		return nil
	}
	for _, id := range allowed {
		if id == configID {
			return nil
		}
	}
	return vaulterrs.Validation.New("storage config %q is not in the caller's ACL allow-set", configID)
}

func (s *Service) checkMaxUploadSize(ctx context.Context, size int64) error {
	max, err := s.settings.MaxUploadSize(ctx)
	if err != nil {
		return err
	}
	if size > max {
		return vaulterrs.Validation.New("upload of %d bytes exceeds max_upload_size (%d bytes)", size, max)
	}
	return nil
}

// checkUploadCap enforces the driver's own per-upload body cap (the
// Telegram official bot API's 20 MiB, lifted for self-hosted API
// deployments), as declared on the descriptor.
func (s *Service) checkUploadCap(cfg storageconfig.Config, size int64) error {
	descriptor, err := s.registry.Lookup(cfg.StorageType)
	if err != nil {
		return err
	}
	capBytes := descriptor.UploadCap(cfg.ConfigJSON)
	if capBytes > 0 && size > capBytes {
		return vaulterrs.Validation.New("storage_type %q rejects uploads over %d bytes", cfg.StorageType, capBytes)
	}
	return nil
}

func (s *Service) requireCapability(cfg storageconfig.Config, check func(registry.ShareCapabilities) bool, opName string) (Driver, error) {
	descriptor, err := s.registry.Lookup(cfg.StorageType)
	if err != nil {
		return nil, err
	}
	if !check(descriptor.Share) {
		return nil, vaulterrs.Validation.New("storage_type %q does not support %s", cfg.StorageType, opName)
	}
	driver, ok := s.drivers.Driver(cfg.StorageType)
	if !ok {
		return nil, vaulterrs.Validation.New("no driver registered for storage_type %q", cfg.StorageType)
	}
	return driver, nil
}

// planAndAdmit plans the storage key via the driver, then runs it
// through the quota guard with the same-key old-bytes lookup.
func (s *Service) planAndAdmit(ctx context.Context, driver Driver, cfg storageconfig.Config, filename string, size int64, quotaContext string) (string, error) {
	key, err := driver.PlanKey(ctx, cfg, filename)
	if err != nil {
		return "", vaulterrs.Driver.Wrap(err)
	}
	oldBytes := s.quota.OldBytesForKey(ctx, cfg.ID, key)
	if err := s.quota.AssertCanConsume(ctx, cfg.ID, size, oldBytes, quotaContext); err != nil {
		return "", err
	}
	return key, nil
}

// resolveSlug applies the slug policy: honor a requested slug, else
// generate one; random-suffix mode decides collision handling.
func (s *Service) resolveSlug(ctx context.Context, kind Kind, requested *string) (slug string, updateIfExists bool, err error) {
	randomSuffix, err := s.settings.RandomSuffixMode(ctx)
	if err != nil {
		return "", false, err
	}

	base := ""
	if requested != nil && *requested != "" {
		base = *requested
	} else {
		base = randomSlugBase()
	}

	if !randomSuffix {
		return base, true, nil
	}

	candidate := base
	for attempt := 0; attempt < slugSuffixAttempts; attempt++ {
		existing, err := s.repo.FindBySlug(ctx, kind, candidate)
		if err != nil {
			return "", false, err
		}
		if existing == nil {
			return candidate, false, nil
		}
		candidate = base + "-" + randomSlugSuffix()
	}
	return candidate, false, nil
}

// createParams is the common input to createRecord.
type createParams struct {
	Kind            Kind
	Subject         Subject
	StorageConfigID *string
	StoragePath     *string
	FilePath        *string
	UseProxy        bool
	PasswordPlain   *string
	MaxViews        *int
	ExpiresAt       *time.Time
	MimeType        *string
	ETag            *string
	SizeBytes       int64
	Slug            *string
}

// createRecord creates the share record, or replaces an existing one
// under the overwrite slug policy.
func (s *Service) createRecord(ctx context.Context, p createParams) (*ShareRecord, error) {
	slug, updateIfExists, err := s.resolveSlug(ctx, p.Kind, p.Slug)
	if err != nil {
		return nil, err
	}

	var passwordHash *string
	if p.PasswordPlain != nil && *p.PasswordPlain != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(*p.PasswordPlain), bcrypt.DefaultCost)
		if err != nil {
			return nil, vaulterrs.Repository.Wrap(err)
		}
		h := string(hash)
		passwordHash = &h
	}

	now := s.now()
	record := ShareRecord{
		ID:              uuid.NewString(),
		Kind:            p.Kind,
		Slug:            slug,
		StorageConfigID: p.StorageConfigID,
		StoragePath:     p.StoragePath,
		FilePath:        p.FilePath,
		UseProxy:        p.UseProxy,
		PasswordHash:    passwordHash,
		MaxViews:        p.MaxViews,
		ExpiresAt:       p.ExpiresAt,
		MimeType:        p.MimeType,
		ETag:            p.ETag,
		SizeBytes:       p.SizeBytes,
		CreatedBy:       p.Subject.CreatorIdentity(),
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if updateIfExists {
		existing, err := s.repo.FindBySlug(ctx, p.Kind, slug)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			record.ID = existing.ID
			record.CreatedAt = existing.CreatedAt
			if err := s.repo.Update(ctx, record); err != nil {
				return nil, err
			}
			return &record, nil
		}
	}
	if err := s.repo.Create(ctx, record); err != nil {
		return nil, err
	}
	return &record, nil
}

// PresignInitRequest is the input to PresignInit.
type PresignInitRequest struct {
	Subject         Subject
	StorageConfigID *string
	Kind            Kind
	Filename        string
	Size            int64
}

// PresignInitResult hands the caller everything needed to complete a
// presigned upload out-of-process.
type PresignInitResult struct {
	Upload          PresignedUpload
	StorageConfigID string
	Key             string
}

// PresignInit runs the common prologue and returns a presigned upload
// handoff without creating a share record (the record is created at
// commit time).
func (s *Service) PresignInit(ctx context.Context, req PresignInitRequest) (*PresignInitResult, error) {
	if err := s.checkMaxUploadSize(ctx, req.Size); err != nil {
		return nil, err
	}
	cfg, err := s.resolveConfig(ctx, req.Subject, req.StorageConfigID)
	if err != nil {
		return nil, err
	}
	if err := s.checkUploadCap(cfg, req.Size); err != nil {
		return nil, err
	}
	driver, err := s.requireCapability(cfg, func(c registry.ShareCapabilities) bool { return c.Presigned }, "presigned upload")
	if err != nil {
		return nil, err
	}
	key, err := s.planAndAdmit(ctx, driver, cfg, req.Filename, req.Size, "presign_init")
	if err != nil {
		return nil, err
	}
	upload, err := driver.PresignInit(ctx, cfg, key, req.Size)
	if err != nil {
		return nil, vaulterrs.Driver.Wrap(err)
	}
	return &PresignInitResult{Upload: upload, StorageConfigID: cfg.ID, Key: key}, nil
}

// PresignCommitRequest is the input to PresignCommit.
type PresignCommitRequest struct {
	Subject         Subject
	StorageConfigID string
	UploadID        string
	Key             string
	Kind            Kind
	MimeType        *string
	Slug            *string
	PasswordPlain   *string
	MaxViews        *int
	ExpiresAt       *time.Time
	UseProxy        bool
}

// PresignCommit finalizes a presigned upload and creates its share
// record.
func (s *Service) PresignCommit(ctx context.Context, req PresignCommitRequest) (*ShareRecord, error) {
	cfg, err := s.configs.Get(ctx, req.StorageConfigID)
	if err != nil {
		return nil, err
	}
	driver, ok := s.drivers.Driver(cfg.StorageType)
	if !ok {
		return nil, vaulterrs.Validation.New("no driver registered for storage_type %q", cfg.StorageType)
	}
	out, err := driver.PresignCommit(ctx, cfg, req.UploadID, req.Key)
	if err != nil {
		return nil, vaulterrs.Driver.Wrap(err)
	}
	var etag *string
	if out.ETag != "" {
		etag = &out.ETag
	}
	key := req.Key
	return s.createRecord(ctx, createParams{
		Kind:            req.Kind,
		Subject:         req.Subject,
		StorageConfigID: &cfg.ID,
		StoragePath:     &key,
		UseProxy:        req.UseProxy,
		PasswordPlain:   req.PasswordPlain,
		MaxViews:        req.MaxViews,
		ExpiresAt:       req.ExpiresAt,
		MimeType:        req.MimeType,
		ETag:            etag,
		Slug:            req.Slug,
	})
}

// UploadDirectStreamRequest is the input to UploadDirectStream.
type UploadDirectStreamRequest struct {
	Subject         Subject
	StorageConfigID *string
	Kind            Kind
	Filename        string
	Size            int64
	MimeType        string
	Reader          io.Reader
	Slug            *string
	PasswordPlain   *string
	MaxViews        *int
	ExpiresAt       *time.Time
	UseProxy        bool
}

// UploadDirectStream runs the full upload pipeline for a backend-stream
// capable driver.
func (s *Service) UploadDirectStream(ctx context.Context, req UploadDirectStreamRequest) (*ShareRecord, error) {
	if err := s.checkMaxUploadSize(ctx, req.Size); err != nil {
		return nil, err
	}
	cfg, err := s.resolveConfig(ctx, req.Subject, req.StorageConfigID)
	if err != nil {
		return nil, err
	}
	if err := s.checkUploadCap(cfg, req.Size); err != nil {
		return nil, err
	}
	driver, err := s.requireCapability(cfg, func(c registry.ShareCapabilities) bool { return c.BackendStream }, "direct stream upload")
	if err != nil {
		return nil, err
	}
	key, err := s.planAndAdmit(ctx, driver, cfg, req.Filename, req.Size, "upload_direct_stream")
	if err != nil {
		return nil, err
	}
	out, err := driver.UploadBackendStream(ctx, UploadInput{Config: cfg, Key: key, Reader: req.Reader, Size: req.Size, MimeType: req.MimeType})
	if err != nil {
		return nil, vaulterrs.Driver.Wrap(err)
	}
	var etag *string
	if out.ETag != "" {
		etag = &out.ETag
	}
	mime := req.MimeType
	return s.createRecord(ctx, createParams{
		Kind:            req.Kind,
		Subject:         req.Subject,
		StorageConfigID: &cfg.ID,
		StoragePath:     &key,
		UseProxy:        req.UseProxy,
		PasswordPlain:   req.PasswordPlain,
		MaxViews:        req.MaxViews,
		ExpiresAt:       req.ExpiresAt,
		MimeType:        &mime,
		ETag:            etag,
		SizeBytes:       req.Size,
		Slug:            req.Slug,
	})
}

// UploadFileObjectRequest is the input to UploadFileObject: identical
// shape to UploadDirectStreamRequest, dispatched through a driver's
// form-upload primitive instead of its stream one (backends like
// WebDAV and Telegram's bot API).
type UploadFileObjectRequest UploadDirectStreamRequest

// UploadFileObject runs the full upload pipeline for a backend-form
// capable driver.
func (s *Service) UploadFileObject(ctx context.Context, req UploadFileObjectRequest) (*ShareRecord, error) {
	if err := s.checkMaxUploadSize(ctx, req.Size); err != nil {
		return nil, err
	}
	cfg, err := s.resolveConfig(ctx, req.Subject, req.StorageConfigID)
	if err != nil {
		return nil, err
	}
	if err := s.checkUploadCap(cfg, req.Size); err != nil {
		return nil, err
	}
	driver, err := s.requireCapability(cfg, func(c registry.ShareCapabilities) bool { return c.BackendForm }, "file-object upload")
	if err != nil {
		return nil, err
	}
	key, err := s.planAndAdmit(ctx, driver, cfg, req.Filename, req.Size, "upload_file_object")
	if err != nil {
		return nil, err
	}
	out, err := driver.UploadBackendForm(ctx, UploadInput{Config: cfg, Key: key, Reader: req.Reader, Size: req.Size, MimeType: req.MimeType})
	if err != nil {
		return nil, vaulterrs.Driver.Wrap(err)
	}
	var etag *string
	if out.ETag != "" {
		etag = &out.ETag
	}
	mime := req.MimeType
	return s.createRecord(ctx, createParams{
		Kind:            req.Kind,
		Subject:         req.Subject,
		StorageConfigID: &cfg.ID,
		StoragePath:     &key,
		UseProxy:        req.UseProxy,
		PasswordPlain:   req.PasswordPlain,
		MaxViews:        req.MaxViews,
		ExpiresAt:       req.ExpiresAt,
		MimeType:        &mime,
		ETag:            etag,
		SizeBytes:       req.Size,
		Slug:            req.Slug,
	})
}

// CreateShareFromFSRequest is the input to CreateShareFromFS. It
// references an object already materialized on a virtual-filesystem
// mount, so no driver upload or quota check runs; the bytes are
// already accounted for.
type CreateShareFromFSRequest struct {
	Subject         Subject
	StorageConfigID string
	Kind            Kind
	FilePath        string
	MimeType        *string
	SizeBytes       int64
	Slug            *string
	PasswordPlain   *string
	MaxViews        *int
	ExpiresAt       *time.Time
	UseProxy        bool
}

// CreateShareFromFS creates a share record pointing at an existing
// FS-origin file.
func (s *Service) CreateShareFromFS(ctx context.Context, req CreateShareFromFSRequest) (*ShareRecord, error) {
	configID := req.StorageConfigID
	filePath := req.FilePath
	return s.createRecord(ctx, createParams{
		Kind:            req.Kind,
		Subject:         req.Subject,
		StorageConfigID: &configID,
		FilePath:        &filePath,
		UseProxy:        req.UseProxy,
		PasswordPlain:   req.PasswordPlain,
		MaxViews:        req.MaxViews,
		ExpiresAt:       req.ExpiresAt,
		MimeType:        req.MimeType,
		SizeBytes:       req.SizeBytes,
		Slug:            req.Slug,
	})
}
