package share_test

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cloudvault/vaultd/share"
	"github.com/cloudvault/vaultd/storageconfig"
	"github.com/cloudvault/vaultd/storageconfig/registry"
	"github.com/cloudvault/vaultd/vaulterrs"
)

// fakeRepo is an in-memory share.Repository keyed by kind+slug.
type fakeRepo struct {
	byKey map[string]share.ShareRecord
}

func newFakeRepo() *fakeRepo { return &fakeRepo{byKey: map[string]share.ShareRecord{}} }

func (r *fakeRepo) key(kind share.Kind, slug string) string { return string(kind) + "/" + slug }

func (r *fakeRepo) FindBySlug(_ context.Context, kind share.Kind, slug string) (*share.ShareRecord, error) {
	rec, ok := r.byKey[r.key(kind, slug)]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (r *fakeRepo) Create(_ context.Context, rec share.ShareRecord) error {
	r.byKey[r.key(rec.Kind, rec.Slug)] = rec
	return nil
}

func (r *fakeRepo) Update(_ context.Context, rec share.ShareRecord) error {
	r.byKey[r.key(rec.Kind, rec.Slug)] = rec
	return nil
}

// fakeConfigs is an in-memory share.ConfigLookup.
type fakeConfigs struct {
	byID      map[string]storageconfig.Config
	defaultID string
}

func (c *fakeConfigs) Get(_ context.Context, id string) (storageconfig.Config, error) {
	cfg, ok := c.byID[id]
	if !ok {
		return storageconfig.Config{}, vaulterrs.NotFound.New("config %q not found", id)
	}
	return cfg, nil
}

func (c *fakeConfigs) GetDefault(_ context.Context) (*storageconfig.Config, error) {
	if c.defaultID == "" {
		return nil, nil
	}
	cfg := c.byID[c.defaultID]
	return &cfg, nil
}

func (c *fakeConfigs) ListPublic(_ context.Context) ([]storageconfig.Config, error) {
	var out []storageconfig.Config
	for _, cfg := range c.byID {
		if cfg.IsPublic {
			out = append(out, cfg)
		}
	}
	return out, nil
}

// fakeACL is an in-memory share.ACLResolver.
type fakeACL struct {
	allowed map[string][]string
}

func (a *fakeACL) AllowedConfigIDs(_ context.Context, apiKeyID string) ([]string, error) {
	return a.allowed[apiKeyID], nil
}

// fakeQuota is a share.QuotaGuard that always admits unless told not to.
type fakeQuota struct {
	denyErr  error
	oldBytes map[string]int64
}

func (q *fakeQuota) AssertCanConsume(context.Context, string, int64, int64, string) error {
	return q.denyErr
}

func (q *fakeQuota) OldBytesForKey(_ context.Context, storageConfigID, storageKey string) int64 {
	return q.oldBytes[storageConfigID+"/"+storageKey]
}

// fakeSettings is a share.SystemSettings with fixed values.
type fakeSettings struct {
	maxUploadSize    int64
	randomSuffixMode bool
}

func (s *fakeSettings) MaxUploadSize(context.Context) (int64, error) { return s.maxUploadSize, nil }
func (s *fakeSettings) RandomSuffixMode(context.Context) (bool, error) {
	return s.randomSuffixMode, nil
}

// fakeDriver is a share.Driver test double recording what was uploaded.
type fakeDriver struct {
	planKeyErr error
	uploaded   []share.UploadInput
	etag       string
	presign    share.PresignedUpload
}

func (d *fakeDriver) PlanKey(_ context.Context, cfg storageconfig.Config, filename string) (string, error) {
	if d.planKeyErr != nil {
		return "", d.planKeyErr
	}
	return cfg.ID + "/" + filename, nil
}

func (d *fakeDriver) UploadBackendStream(_ context.Context, in share.UploadInput) (share.UploadOutput, error) {
	d.uploaded = append(d.uploaded, in)
	return share.UploadOutput{ETag: d.etag}, nil
}

func (d *fakeDriver) UploadBackendForm(_ context.Context, in share.UploadInput) (share.UploadOutput, error) {
	d.uploaded = append(d.uploaded, in)
	return share.UploadOutput{ETag: d.etag}, nil
}

func (d *fakeDriver) PresignInit(_ context.Context, cfg storageconfig.Config, filename string, size int64) (share.PresignedUpload, error) {
	return d.presign, nil
}

func (d *fakeDriver) PresignCommit(_ context.Context, cfg storageconfig.Config, uploadID, key string) (share.UploadOutput, error) {
	return share.UploadOutput{ETag: d.etag}, nil
}

// fakeDrivers is an in-memory share.Drivers.
type fakeDrivers struct {
	byType map[string]share.Driver
}

func (d *fakeDrivers) Driver(storageType string) (share.Driver, bool) {
	drv, ok := d.byType[storageType]
	return drv, ok
}

func s3Config(id string, public bool) storageconfig.Config {
	return storageconfig.Config{
		ID:          id,
		StorageType: "s3",
		IsPublic:    public,
		Status:      "active",
		ConfigJSON:  map[string]any{},
	}
}

func telegramConfig(id string, selfHosted bool) storageconfig.Config {
	configJSON := map[string]any{}
	if selfHosted {
		configJSON["self_hosted_api_base_url"] = "https://my-bot.example.com"
	}
	return storageconfig.Config{
		ID:          id,
		StorageType: "telegram",
		IsPublic:    true,
		Status:      "active",
		ConfigJSON:  configJSON,
	}
}

type harness struct {
	repo     *fakeRepo
	configs  *fakeConfigs
	acl      *fakeACL
	quota    *fakeQuota
	settings *fakeSettings
	drivers  *fakeDrivers
	svc      *share.Service
}

func newHarness(t *testing.T) *harness {
	h := &harness{
		repo:     newFakeRepo(),
		configs:  &fakeConfigs{byID: map[string]storageconfig.Config{}},
		acl:      &fakeACL{allowed: map[string][]string{}},
		quota:    &fakeQuota{oldBytes: map[string]int64{}},
		settings: &fakeSettings{maxUploadSize: 1 << 30},
		drivers:  &fakeDrivers{byType: map[string]share.Driver{}},
	}
	h.svc = share.NewService(h.repo, h.configs, h.acl, h.quota, h.settings, h.drivers, registry.NewDefault(), zaptest.NewLogger(t))
	return h
}

func TestUploadDirectStream_HappyPath(t *testing.T) {
	h := newHarness(t)
	cfg := s3Config("cfg1", true)
	h.configs.byID[cfg.ID] = cfg
	h.configs.defaultID = cfg.ID
	drv := &fakeDriver{etag: "etag-1"}
	h.drivers.byType["s3"] = drv

	rec, err := h.svc.UploadDirectStream(context.Background(), share.UploadDirectStreamRequest{
		Subject:  share.Subject{AdminID: "admin1"},
		Kind:     share.KindFile,
		Filename: "report.pdf",
		Size:     1024,
		MimeType: "application/pdf",
		Reader:   bytes.NewReader(make([]byte, 1024)),
	})
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "cfg1/report.pdf", *rec.StoragePath)
	assert.Equal(t, "etag-1", *rec.ETag)
	assert.Equal(t, "admin1", rec.CreatedBy)
	assert.Len(t, drv.uploaded, 1)
}

func TestUploadDirectStream_ExceedsMaxUploadSize(t *testing.T) {
	h := newHarness(t)
	h.settings.maxUploadSize = 100
	cfg := s3Config("cfg1", true)
	h.configs.byID[cfg.ID] = cfg
	h.configs.defaultID = cfg.ID
	h.drivers.byType["s3"] = &fakeDriver{}

	_, err := h.svc.UploadDirectStream(context.Background(), share.UploadDirectStreamRequest{
		Subject:  share.Subject{AdminID: "admin1"},
		Kind:     share.KindFile,
		Filename: "big.bin",
		Size:     200,
		Reader:   bytes.NewReader(make([]byte, 200)),
	})
	require.Error(t, err)
	assert.True(t, vaulterrs.IsValidation(err))
}

func TestResolveConfig_APIKeySubjectRejectsPrivateConfig(t *testing.T) {
	h := newHarness(t)
	cfg := s3Config("cfg1", false)
	h.configs.byID[cfg.ID] = cfg
	h.drivers.byType["s3"] = &fakeDriver{}

	_, err := h.svc.UploadDirectStream(context.Background(), share.UploadDirectStreamRequest{
		Subject:         share.Subject{APIKeyID: "key1"},
		StorageConfigID: &cfg.ID,
		Kind:            share.KindFile,
		Filename:        "x.txt",
		Size:            10,
		Reader:          strings.NewReader("0123456789"),
	})
	require.Error(t, err)
	assert.True(t, vaulterrs.IsValidation(err))
}

func TestResolveConfig_APIKeySubjectACLAllowSet(t *testing.T) {
	h := newHarness(t)
	cfg := s3Config("cfg1", true)
	h.configs.byID[cfg.ID] = cfg
	other := s3Config("cfg2", true)
	h.configs.byID[other.ID] = other
	h.acl.allowed["key1"] = []string{"cfg2"}
	h.drivers.byType["s3"] = &fakeDriver{}

	_, err := h.svc.UploadDirectStream(context.Background(), share.UploadDirectStreamRequest{
		Subject:         share.Subject{APIKeyID: "key1"},
		StorageConfigID: &cfg.ID,
		Kind:            share.KindFile,
		Filename:        "x.txt",
		Size:            10,
		Reader:          strings.NewReader("0123456789"),
	})
	require.Error(t, err, "cfg1 is public but not in key1's allow-set")
	assert.True(t, vaulterrs.IsValidation(err))

	rec, err := h.svc.UploadDirectStream(context.Background(), share.UploadDirectStreamRequest{
		Subject:         share.Subject{APIKeyID: "key1"},
		StorageConfigID: &other.ID,
		Kind:            share.KindFile,
		Filename:        "x.txt",
		Size:            10,
		Reader:          strings.NewReader("0123456789"),
	})
	require.NoError(t, err)
	assert.Equal(t, "apikey:key1", rec.CreatedBy)
}

func TestResolveConfig_FallsBackToDefaultThenFirstPublic(t *testing.T) {
	h := newHarness(t)
	cfg := s3Config("cfg1", true)
	h.configs.byID[cfg.ID] = cfg
	h.drivers.byType["s3"] = &fakeDriver{}

	rec, err := h.svc.UploadDirectStream(context.Background(), share.UploadDirectStreamRequest{
		Subject:  share.Subject{AdminID: "admin1"},
		Kind:     share.KindFile,
		Filename: "x.txt",
		Size:     10,
		Reader:   strings.NewReader("0123456789"),
	})
	require.NoError(t, err)
	assert.Equal(t, cfg.ID, *rec.StorageConfigID)
}

func TestUploadCap_OfficialTelegramBotRejectsOver20MiB(t *testing.T) {
	h := newHarness(t)
	cfg := telegramConfig("cfg1", false)
	h.configs.byID[cfg.ID] = cfg
	h.configs.defaultID = cfg.ID
	h.drivers.byType["telegram"] = &fakeDriver{}

	_, err := h.svc.UploadFileObject(context.Background(), share.UploadFileObjectRequest{
		Subject:  share.Subject{AdminID: "admin1"},
		Kind:     share.KindFile,
		Filename: "huge.zip",
		Size:     21 * 1024 * 1024,
		Reader:   strings.NewReader("x"),
	})
	require.Error(t, err)
	assert.True(t, vaulterrs.IsValidation(err))
}

func TestUploadCap_SelfHostedTelegramHasNoCap(t *testing.T) {
	h := newHarness(t)
	cfg := telegramConfig("cfg1", true)
	h.configs.byID[cfg.ID] = cfg
	h.configs.defaultID = cfg.ID
	h.drivers.byType["telegram"] = &fakeDriver{}

	_, err := h.svc.UploadFileObject(context.Background(), share.UploadFileObjectRequest{
		Subject:  share.Subject{AdminID: "admin1"},
		Kind:     share.KindFile,
		Filename: "huge.zip",
		Size:     21 * 1024 * 1024,
		Reader:   strings.NewReader("x"),
	})
	require.NoError(t, err)
}

func TestRequireCapability_RejectsUnsupportedOperation(t *testing.T) {
	h := newHarness(t)
	// webdav has no Presigned capability (storageconfig/registry/drivers.go).
	cfg := storageconfig.Config{ID: "cfg1", StorageType: "webdav", IsPublic: true, Status: "active", ConfigJSON: map[string]any{}}
	h.configs.byID[cfg.ID] = cfg
	h.configs.defaultID = cfg.ID
	h.drivers.byType["webdav"] = &fakeDriver{}

	_, err := h.svc.PresignInit(context.Background(), share.PresignInitRequest{
		Subject:  share.Subject{AdminID: "admin1"},
		Kind:     share.KindFile,
		Filename: "x.txt",
		Size:     10,
	})
	require.Error(t, err)
	assert.True(t, vaulterrs.IsValidation(err))
}

func TestQuotaGuard_DenialPropagates(t *testing.T) {
	h := newHarness(t)
	cfg := s3Config("cfg1", true)
	h.configs.byID[cfg.ID] = cfg
	h.configs.defaultID = cfg.ID
	h.drivers.byType["s3"] = &fakeDriver{}
	h.quota.denyErr = vaulterrs.Validation.New("quota exceeded")

	_, err := h.svc.UploadDirectStream(context.Background(), share.UploadDirectStreamRequest{
		Subject:  share.Subject{AdminID: "admin1"},
		Kind:     share.KindFile,
		Filename: "x.txt",
		Size:     10,
		Reader:   strings.NewReader("0123456789"),
	})
	require.Error(t, err)
	assert.True(t, vaulterrs.IsValidation(err))
}

func TestResolveSlug_OverwriteModeReusesRequestedSlug(t *testing.T) {
	h := newHarness(t)
	h.settings.randomSuffixMode = false
	cfg := s3Config("cfg1", true)
	h.configs.byID[cfg.ID] = cfg
	h.configs.defaultID = cfg.ID
	h.drivers.byType["s3"] = &fakeDriver{}

	slug := "my-slug"
	first, err := h.svc.UploadDirectStream(context.Background(), share.UploadDirectStreamRequest{
		Subject: share.Subject{AdminID: "admin1"}, Kind: share.KindFile,
		Filename: "a.txt", Size: 1, Reader: strings.NewReader("a"), Slug: &slug,
	})
	require.NoError(t, err)

	second, err := h.svc.UploadDirectStream(context.Background(), share.UploadDirectStreamRequest{
		Subject: share.Subject{AdminID: "admin1"}, Kind: share.KindFile,
		Filename: "b.txt", Size: 1, Reader: strings.NewReader("b"), Slug: &slug,
	})
	require.NoError(t, err)

	assert.Equal(t, "my-slug", second.Slug)
	assert.Equal(t, first.ID, second.ID, "overwrite mode reuses the id of the record it replaces")
	assert.Equal(t, "cfg1/b.txt", *second.StoragePath)
}

func TestResolveSlug_RandomSuffixModeAvoidsCollision(t *testing.T) {
	h := newHarness(t)
	h.settings.randomSuffixMode = true
	cfg := s3Config("cfg1", true)
	h.configs.byID[cfg.ID] = cfg
	h.configs.defaultID = cfg.ID
	h.drivers.byType["s3"] = &fakeDriver{}

	slug := "my-slug"
	first, err := h.svc.UploadDirectStream(context.Background(), share.UploadDirectStreamRequest{
		Subject: share.Subject{AdminID: "admin1"}, Kind: share.KindFile,
		Filename: "a.txt", Size: 1, Reader: strings.NewReader("a"), Slug: &slug,
	})
	require.NoError(t, err)
	assert.Equal(t, "my-slug", first.Slug)

	second, err := h.svc.UploadDirectStream(context.Background(), share.UploadDirectStreamRequest{
		Subject: share.Subject{AdminID: "admin1"}, Kind: share.KindFile,
		Filename: "b.txt", Size: 1, Reader: strings.NewReader("b"), Slug: &slug,
	})
	require.NoError(t, err)
	assert.NotEqual(t, first.Slug, second.Slug, "a collision under random-suffix mode must produce a new slug")
	assert.True(t, strings.HasPrefix(second.Slug, "my-slug-"))
	assert.NotEqual(t, first.ID, second.ID)
}

func TestCreateRecord_HashesPlaintextPassword(t *testing.T) {
	h := newHarness(t)
	cfg := s3Config("cfg1", true)
	h.configs.byID[cfg.ID] = cfg
	h.configs.defaultID = cfg.ID
	h.drivers.byType["s3"] = &fakeDriver{}

	password := "correct horse battery staple"
	rec, err := h.svc.UploadDirectStream(context.Background(), share.UploadDirectStreamRequest{
		Subject: share.Subject{AdminID: "admin1"}, Kind: share.KindFile,
		Filename: "a.txt", Size: 1, Reader: strings.NewReader("a"), PasswordPlain: &password,
	})
	require.NoError(t, err)
	require.NotNil(t, rec.PasswordHash)
	assert.NotEqual(t, password, *rec.PasswordHash)
	assert.True(t, strings.HasPrefix(*rec.PasswordHash, "$2"), "bcrypt hashes are $2a$/$2b$-prefixed")
}

func TestCreateShareFromFS_SkipsDriverAndQuota(t *testing.T) {
	h := newHarness(t)
	// No driver registered for "local" and quota set to always deny;
	// CreateShareFromFS must not touch either.
	h.quota.denyErr = vaulterrs.Validation.New("would have failed")

	rec, err := h.svc.CreateShareFromFS(context.Background(), share.CreateShareFromFSRequest{
		Subject:         share.Subject{AdminID: "admin1"},
		StorageConfigID: "mount-cfg",
		Kind:            share.KindFile,
		FilePath:        "/docs/report.pdf",
		SizeBytes:       4096,
	})
	require.NoError(t, err)
	assert.Equal(t, "/docs/report.pdf", *rec.FilePath)
	assert.Nil(t, rec.StoragePath)
}

func TestPresignInitAndCommit_RoundTrip(t *testing.T) {
	h := newHarness(t)
	cfg := s3Config("cfg1", true)
	h.configs.byID[cfg.ID] = cfg
	h.configs.defaultID = cfg.ID
	drv := &fakeDriver{etag: "etag-2", presign: share.PresignedUpload{UploadID: "up1", UploadURL: "https://example.com/upload", ExpiresAt: time.Now().Add(time.Hour)}}
	h.drivers.byType["s3"] = drv

	initRes, err := h.svc.PresignInit(context.Background(), share.PresignInitRequest{
		Subject: share.Subject{AdminID: "admin1"}, Kind: share.KindFile,
		Filename: "big.mp4", Size: 1 << 20,
	})
	require.NoError(t, err)
	assert.Equal(t, "up1", initRes.Upload.UploadID)
	assert.Equal(t, "cfg1/big.mp4", initRes.Key)

	rec, err := h.svc.PresignCommit(context.Background(), share.PresignCommitRequest{
		Subject: share.Subject{AdminID: "admin1"}, StorageConfigID: initRes.StorageConfigID,
		UploadID: "up1", Key: initRes.Key, Kind: share.KindFile,
	})
	require.NoError(t, err)
	assert.Equal(t, "etag-2", *rec.ETag)
	assert.Equal(t, initRes.Key, *rec.StoragePath)
}

func TestValidateURLMetadata_RejectsNonHTTPScheme(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.ValidateURLMetadata(context.Background(), "ftp://example.com/file.txt")
	require.Error(t, err)
	assert.True(t, vaulterrs.IsValidation(err))
}

func TestValidateURLMetadata_RejectsMalformedURL(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.ValidateURLMetadata(context.Background(), "http://[::1]:not-a-port/")
	require.Error(t, err)
	assert.True(t, vaulterrs.IsValidation(err))
}

var _ io.Reader = (*bytes.Reader)(nil)
