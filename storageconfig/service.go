package storageconfig

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cloudvault/vaultd/storageconfig/registry"
	"github.com/cloudvault/vaultd/vaulterrs"
)

// Service is the storage-config service: list, get, reveal, create,
// update, delete, set_default and test_connection over storage_configs
// rows.
type Service struct {
	repo     Repository
	registry *registry.Registry
	index    IndexInvalidator
	cache    Cache
	log      *zap.Logger
	secret   Secret
	now      func() time.Time
}

// NewService wires a Service from its collaborators. secret is the
// process-wide encryption secret; it is stored once and never mutated.
func NewService(repo Repository, reg *registry.Registry, index IndexInvalidator, cache Cache, log *zap.Logger, secret Secret) *Service {
	if cache == nil {
		cache = NopCache{}
	}
	return &Service{
		repo:     repo,
		registry: reg,
		index:    index,
		cache:    cache,
		log:      log,
		secret:   secret,
		now:      time.Now,
	}
}

// cosmeticFields never affect how a driver reads or writes objects:
// mutating only these never invalidates the FS search index (the
// config cache entry is dropped on every update regardless).
var cosmeticFields = map[string]struct{}{
	"name": {}, "remark": {}, "is_public": {}, "is_default": {},
	"status": {}, "url_proxy": {},
}

// List returns every config owned by adminID.
func (s *Service) List(ctx context.Context, adminID string) ([]Config, error) {
	return s.repo.List(ctx, adminID)
}

// ListPublic returns every config with is_public=1, across admins.
func (s *Service) ListPublic(ctx context.Context) ([]Config, error) {
	return s.repo.ListPublic(ctx)
}

// Get returns the config by id regardless of visibility.
func (s *Service) Get(ctx context.Context, id string) (Config, error) {
	return s.repo.Get(ctx, id)
}

// GetPublic returns the config by id only if it is publicly visible.
func (s *Service) GetPublic(ctx context.Context, id string) (Config, error) {
	cfg, err := s.repo.Get(ctx, id)
	if err != nil {
		return Config{}, err
	}
	if !cfg.IsPublic {
		return Config{}, vaulterrs.NotFound.New("storage config %q is not public", id)
	}
	return cfg, nil
}

// RevealMode selects how Reveal renders secret fields.
type RevealMode string

const (
	RevealMasked RevealMode = "masked"
	RevealPlain  RevealMode = "plain"
)

// Reveal returns a copy of a config's config_json with secret fields
// either masked or decrypted to plaintext, depending on mode.
func (s *Service) Reveal(ctx context.Context, id string, mode RevealMode) (map[string]any, error) {
	cfg, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	descriptor, err := s.registry.Lookup(cfg.StorageType)
	if err != nil {
		return nil, err
	}

	out := make(map[string]any, len(cfg.ConfigJSON))
	for k, v := range cfg.ConfigJSON {
		out[k] = v
	}
	for _, f := range descriptor.Schema.Fields {
		if f.Kind != registry.KindSecret {
			continue
		}
		stored, ok := cfg.ConfigJSON[f.Name].(string)
		if !ok || stored == "" {
			continue
		}
		if mode == RevealPlain {
			plain, err := decryptField(s.secret, stored)
			if err != nil {
				return nil, err
			}
			out[f.Name] = plain
			continue
		}
		out[f.Name] = "********"
	}
	return out, nil
}

// CreateRequest is the submitted-field bag for Create. ConfigJSON holds
// plaintext driver field values; Create encrypts secret fields itself.
type CreateRequest struct {
	AdminID           string
	StorageType       string
	Name              string
	IsPublic          bool
	IsDefault         bool
	Remark            *string
	URLProxy          *string
	Status            string
	ConfigJSON        map[string]any
	TotalStorageBytes any
}

// Create validates req against the driver's schema, encrypts secret
// fields, and inserts the row.
func (s *Service) Create(ctx context.Context, req CreateRequest) (Config, error) {
	descriptor, err := s.registry.Lookup(req.StorageType)
	if err != nil {
		return Config{}, err
	}
	if err := checkRequired(descriptor.Schema, req.ConfigJSON, true); err != nil {
		return Config{}, err
	}
	if err := rejectMaskedOnCreate(descriptor.Schema, req.ConfigJSON); err != nil {
		return Config{}, err
	}

	normalized, err := s.normalizeConfigJSON(descriptor, nil, req.ConfigJSON)
	if err != nil {
		return Config{}, err
	}

	totalBytes, err := normalizeTotalStorageBytes(req.TotalStorageBytes, true)
	if err != nil {
		return Config{}, err
	}

	status := req.Status
	if status == "" {
		status = "active"
	}
	now := s.now()
	cfg := Config{
		ID:                uuid.NewString(),
		StorageType:       req.StorageType,
		AdminID:           req.AdminID,
		Name:              req.Name,
		IsPublic:          req.IsPublic,
		IsDefault:         req.IsDefault,
		Remark:            req.Remark,
		URLProxy:          req.URLProxy,
		Status:            status,
		ConfigJSON:        normalized,
		TotalStorageBytes: totalBytes,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if cfg.IsDefault {
		err = s.repo.WithTx(ctx, func(tx Repository) error {
			if err := tx.ClearDefault(ctx, cfg.AdminID); err != nil {
				return err
			}
			return tx.Create(ctx, cfg)
		})
	} else {
		err = s.repo.Create(ctx, cfg)
	}
	if err != nil {
		return Config{}, err
	}
	s.cache.Invalidate(cfg.ID)
	return cfg, nil
}

// normalizeConfigJSON applies the per-field coercions (URL and path
// normalization, boolean coercion, secret encryption) to a submitted
// field bag. existing, if non-nil, is the already-persisted
// config_json used to preserve secrets the caller dropped on update.
func (s *Service) normalizeConfigJSON(descriptor registry.Descriptor, existing map[string]any, submitted map[string]any) (map[string]any, error) {
	out := map[string]any{}
	for k, v := range existing {
		out[k] = v
	}

	for key, raw := range submitted {
		field, ok := descriptor.Schema.FieldByName(key)
		if !ok {
			return nil, vaulterrs.Validation.New("unknown config field %q for storage_type %q", key, descriptor.Type)
		}

		switch field.Kind {
		case registry.KindSecret:
			str, _ := raw.(string)
			if str == "" || isMasked(str) {
				continue // preserve existing ciphertext (or leave absent on create)
			}
			ciphertext, err := encryptField(s.secret, str)
			if err != nil {
				return nil, err
			}
			out[key] = ciphertext
		case registry.KindBoolean:
			out[key] = coerceBoolean(raw)
		case registry.KindString:
			str, _ := raw.(string)
			switch field.Validation {
			case registry.RuleURL:
				normalized, err := normalizeURL(field.Name, str)
				if err != nil {
					return nil, err
				}
				out[key] = normalized
			case registry.RuleAbsPath:
				out[key] = normalizeAbsPath(str)
			default:
				out[key] = str
			}
		default:
			out[key] = raw
		}
	}

	for _, f := range descriptor.Schema.Fields {
		if _, present := out[f.Name]; !present && f.DefaultValue != nil {
			out[f.Name] = f.DefaultValue
		}
	}
	return out, nil
}

// UpdateRequest is the submitted-field bag for Update. Only non-nil /
// present fields are applied; everything else is left unchanged.
type UpdateRequest struct {
	ID                   string
	Name                 *string
	IsPublic             *bool
	IsDefault            *bool
	Remark               *string
	URLProxy             *string
	Status               *string
	ConfigJSON           map[string]any
	TotalStorageBytesSet bool
	TotalStorageBytes    any
}

// Update applies req to the existing config, always drops its cache
// entry and, if any non-cosmetic field changed, best-effort invalidates
// the FS search index for every bound mount.
func (s *Service) Update(ctx context.Context, req UpdateRequest) (Config, error) {
	cfg, err := s.repo.Get(ctx, req.ID)
	if err != nil {
		return Config{}, err
	}
	descriptor, err := s.registry.Lookup(cfg.StorageType)
	if err != nil {
		return Config{}, err
	}

	nonCosmeticChanged := false

	if req.Name != nil && *req.Name != cfg.Name {
		cfg.Name = *req.Name
	}
	if req.Remark != nil && (cfg.Remark == nil || *req.Remark != *cfg.Remark) {
		cfg.Remark = req.Remark
	}
	if req.URLProxy != nil && (cfg.URLProxy == nil || *req.URLProxy != *cfg.URLProxy) {
		cfg.URLProxy = req.URLProxy
	}
	if req.Status != nil && *req.Status != cfg.Status {
		cfg.Status = *req.Status
	}
	if req.IsPublic != nil {
		cfg.IsPublic = *req.IsPublic
	}
	wantDefault := cfg.IsDefault
	if req.IsDefault != nil {
		wantDefault = *req.IsDefault
	}

	if len(req.ConfigJSON) > 0 {
		before := cfg.ConfigJSON
		normalized, err := s.normalizeConfigJSON(descriptor, cfg.ConfigJSON, req.ConfigJSON)
		if err != nil {
			return Config{}, err
		}
		cfg.ConfigJSON = normalized
		if !configJSONEqual(before, normalized) {
			nonCosmeticChanged = true
		}
	}

	if req.TotalStorageBytesSet {
		totalBytes, err := normalizeTotalStorageBytes(req.TotalStorageBytes, false)
		if err != nil {
			return Config{}, err
		}
		if !int64PtrEqual(cfg.TotalStorageBytes, totalBytes) {
			nonCosmeticChanged = true
		}
		cfg.TotalStorageBytes = totalBytes
	}

	cfg.UpdatedAt = s.now()

	if wantDefault != cfg.IsDefault {
		cfg.IsDefault = wantDefault
		if wantDefault {
			err = s.repo.WithTx(ctx, func(tx Repository) error {
				if err := tx.ClearDefault(ctx, cfg.AdminID); err != nil {
					return err
				}
				return tx.Update(ctx, cfg)
			})
		} else {
			err = s.repo.Update(ctx, cfg)
		}
	} else {
		err = s.repo.Update(ctx, cfg)
	}
	if err != nil {
		return Config{}, err
	}

	s.cache.Invalidate(cfg.ID)
	if nonCosmeticChanged {
		s.invalidateIndexBestEffort(ctx, cfg.ID, true)
	}
	return cfg, nil
}

func configJSONEqual(a, b map[string]any) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}

func int64PtrEqual(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// invalidateIndexBestEffort clears the FS search index for every mount
// bound to configID. Failures are logged, never propagated.
func (s *Service) invalidateIndexBestEffort(ctx context.Context, configID string, keepState bool) {
	if s.index == nil {
		return
	}
	mountIDs, err := s.repo.MountIDsForConfig(ctx, configID)
	if err != nil {
		s.log.Warn("storageconfig: failed to list mounts for index invalidation", zap.String("config_id", configID), zap.Error(err))
		return
	}
	for _, mountID := range mountIDs {
		if err := s.index.ClearMount(ctx, mountID, keepState); err != nil {
			s.log.Warn("storageconfig: failed to clear search index", zap.String("mount_id", mountID), zap.Error(err))
		}
	}
}

// Delete clears the index for every bound mount, cascades dependent
// mounts and ACL bindings, then deletes the config row.
func (s *Service) Delete(ctx context.Context, id string) error {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return err
	}
	s.invalidateIndexBestEffort(ctx, id, false)
	if err := s.repo.DeleteMountsForConfig(ctx, id); err != nil {
		return err
	}
	if err := s.repo.DeleteACLForConfig(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.cache.Invalidate(id)
	return nil
}

// SetDefault clears every sibling's is_default and sets the target's
// in one transaction.
func (s *Service) SetDefault(ctx context.Context, adminID, id string) error {
	err := s.repo.WithTx(ctx, func(tx Repository) error {
		if err := tx.ClearDefault(ctx, adminID); err != nil {
			return err
		}
		return tx.SetDefault(ctx, adminID, id)
	})
	if err != nil {
		return err
	}
	s.cache.Invalidate(id)
	return nil
}

// TestConnection decrypts the config's secrets, invokes the registered
// tester, and normalizes its report.
func (s *Service) TestConnection(ctx context.Context, id, origin string) (registry.TestReport, error) {
	cfg, err := s.repo.Get(ctx, id)
	if err != nil {
		return registry.TestReport{}, err
	}
	descriptor, err := s.registry.Lookup(cfg.StorageType)
	if err != nil {
		return registry.TestReport{}, err
	}
	if descriptor.Tester == nil {
		return registry.TestReport{}, vaulterrs.Validation.New("storage_type %q has no connection tester", cfg.StorageType)
	}

	decrypted := map[string]any{}
	for k, v := range cfg.ConfigJSON {
		decrypted[k] = v
	}
	for _, f := range descriptor.Schema.Fields {
		if f.Kind != registry.KindSecret {
			continue
		}
		stored, ok := cfg.ConfigJSON[f.Name].(string)
		if !ok || stored == "" {
			continue
		}
		plain, err := decryptField(s.secret, stored)
		if err != nil {
			return registry.TestReport{}, err
		}
		decrypted[f.Name] = plain
	}

	report, err := descriptor.Tester(ctx, decrypted, (*[32]byte)(&s.secret), origin)
	if err != nil {
		return registry.TestReport{}, vaulterrs.Driver.Wrap(err)
	}
	if len(report.Checks) == 0 {
		report.Checks = append(report.Checks, registry.Check{
			Name:    "contract",
			OK:      false,
			Message: "tester returned no checks",
		})
	}

	if report.Passed() {
		cfg.LastUsedAt = ptrTime(s.now())
		if err := s.repo.Update(ctx, cfg); err != nil {
			return registry.TestReport{}, err
		}
	}
	return report, nil
}

func ptrTime(t time.Time) *time.Time { return &t }
