package storageconfig

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/cloudvault/vaultd/storageconfig/registry"
	"github.com/cloudvault/vaultd/vaulterrs"
)

// defaultTotalStorageBytes is the quota a new config gets when the
// caller does not set one: 10 GiB.
const defaultTotalStorageBytes int64 = 10 * 1024 * 1024 * 1024

// checkRequired rejects a submission missing a field the schema marks
// requiredOnCreate, or required with a matching requiredWhen predicate.
func checkRequired(schema registry.ConfigSchema, submitted map[string]any, onCreate bool) error {
	for _, f := range schema.Fields {
		need := f.RequiredOnCreate && onCreate
		if f.Required && f.RequiredWhen.Match(submitted) {
			need = true
		}
		if !need {
			continue
		}
		v, ok := submitted[f.Name]
		if !ok || v == nil || v == "" {
			return vaulterrs.Validation.New("field %q is required", f.Name)
		}
	}
	return nil
}

// rejectMaskedOnCreate rejects a masked placeholder submitted for a
// secret field on create; there is no existing
// ciphertext to fall back to, so it cannot stand in for a real value.
func rejectMaskedOnCreate(schema registry.ConfigSchema, submitted map[string]any) error {
	for _, f := range schema.Fields {
		if f.Kind != registry.KindSecret {
			continue
		}
		v, ok := submitted[f.Name].(string)
		if ok && isMasked(v) {
			return vaulterrs.Validation.New("field %q: masked placeholder cannot be used as a new value", f.Name)
		}
	}
	return nil
}

// normalizeURL validates the scheme and, for endpoint_url specifically,
// normalizes to trailing-slash form.
func normalizeURL(fieldName, raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return "", vaulterrs.Validation.New("field %q must be an http(s) URL", fieldName)
	}
	if fieldName == "endpoint_url" && !strings.HasSuffix(raw, "/") {
		return raw + "/", nil
	}
	return raw, nil
}

// normalizeAbsPath strips a leading slash from path-shaped fields, e.g.
// default_folder.
func normalizeAbsPath(raw string) string {
	return strings.TrimPrefix(raw, "/")
}

// coerceBoolean maps the wire forms of a boolean field (bool, "0"/"1",
// 0/1, "true"/"false") to a canonical bool.
func coerceBoolean(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return t == "1" || strings.EqualFold(t, "true")
	case float64:
		return t != 0
	case int:
		return t != 0
	default:
		return false
	}
}

// normalizeTotalStorageBytes: absent on create defaults to
// defaultTotalStorageBytes; present must be a positive integer or
// null; empty string normalizes to null (unlimited).
func normalizeTotalStorageBytes(raw any, onCreate bool) (*int64, error) {
	if raw == nil {
		if onCreate {
			v := defaultTotalStorageBytes
			return &v, nil
		}
		return nil, nil
	}
	switch t := raw.(type) {
	case string:
		if t == "" {
			return nil, nil
		}
		n, err := strconv.ParseInt(t, 10, 64)
		if err != nil || n <= 0 {
			return nil, vaulterrs.Validation.New("total_storage_bytes must be a positive integer or null")
		}
		return &n, nil
	case float64:
		n := int64(t)
		if n <= 0 {
			return nil, vaulterrs.Validation.New("total_storage_bytes must be a positive integer or null")
		}
		return &n, nil
	case int64:
		if t <= 0 {
			return nil, vaulterrs.Validation.New("total_storage_bytes must be a positive integer or null")
		}
		return &t, nil
	default:
		return nil, vaulterrs.Validation.New("total_storage_bytes has an unsupported type %T", raw)
	}
}
