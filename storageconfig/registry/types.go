// Package registry holds the closed tagged union of storage driver
// variants: for each storage_type it describes the config schema, the
// capability set, and an optional tester callback, but never a
// concrete wire client.
package registry

import "context"

// FieldKind is the closed set of config field kinds.
type FieldKind string

const (
	KindString  FieldKind = "string"
	KindNumber  FieldKind = "number"
	KindBoolean FieldKind = "boolean"
	KindEnum    FieldKind = "enum"
	KindSecret  FieldKind = "secret"
)

// ValidationRule is the closed set of per-field validation rules.
type ValidationRule string

const (
	RuleNone    ValidationRule = ""
	RuleURL     ValidationRule = "url"
	RuleAbsPath ValidationRule = "abs_path"
)

// Predicate is a small data-only expression over another field's
// submitted value, used for RequiredWhen and UploadCapExemptWhen. It is never
// compiled code.
type Predicate struct {
	Field  string
	Equals any
	Values []any
	Truthy bool
}

// Match evaluates the predicate against a field→value map of the
// submitted config.
func (p *Predicate) Match(submitted map[string]any) bool {
	if p == nil {
		return true
	}
	v, ok := submitted[p.Field]
	if p.Truthy {
		return ok && isTruthy(v)
	}
	if p.Values != nil {
		for _, candidate := range p.Values {
			if candidate == v {
				return true
			}
		}
		return false
	}
	return ok && v == p.Equals
}

func isTruthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != "" && t != "0"
	case float64:
		return t != 0
	default:
		return true
	}
}

// Field describes one entry of a driver's ConfigSchema.
type Field struct {
	Name             string
	Kind             FieldKind
	Required         bool
	RequiredOnCreate bool
	RequiredWhen     *Predicate
	EnumValues       []string
	DefaultValue     any
	Validation       ValidationRule
}

// Group is one layout section of the admin-facing form. Fields may name
// a single field name or a row of field names shown together.
type Group struct {
	TitleKey string
	Fields   [][]string
}

// ConfigSchema is the per-driver field + layout metadata.
type ConfigSchema struct {
	Fields []Field
	Layout []Group
}

// FieldByName returns the field named name, or ok=false.
func (s ConfigSchema) FieldByName(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// ShareCapabilities are the upload/download shapes a driver supports
// for public share links.
type ShareCapabilities struct {
	BackendStream bool
	BackendForm   bool
	Presigned     bool
	URL           bool
}

// FSCapabilities are the upload/download shapes a driver supports for
// virtual-filesystem mounts.
type FSCapabilities struct {
	BackendStream   bool
	BackendForm     bool
	PresignedSingle bool
	Multipart       bool
}

// Check is one line of a TestReport.
type Check struct {
	Name    string
	OK      bool
	Message string
}

// TestReport is the normalized result of a tester callback.
type TestReport struct {
	Checks []Check
}

// Passed reports whether every check in the report succeeded. An empty
// report is not a pass — callers append a synthetic failure first.
func (r TestReport) Passed() bool {
	if len(r.Checks) == 0 {
		return false
	}
	for _, c := range r.Checks {
		if !c.OK {
			return false
		}
	}
	return true
}

// Tester probes a live config (decrypted secrets and all) and reports
// what it found. No descriptor in the built-in catalog sets one;
// tests register descriptors with a fake.
type Tester func(ctx context.Context, cfg map[string]any, encryptionSecret *[32]byte, origin string) (TestReport, error)

// Descriptor is the full per-storage_type entry the registry maps a tag
// to.
type Descriptor struct {
	Type            string
	DisplayName     string
	ProviderOptions []string
	Schema          ConfigSchema
	Share           ShareCapabilities
	FS              FSCapabilities
	DirectLink      bool
	ReadOnly        bool

	// UploadCapBytes caps a single upload body, 0 meaning no cap.
	// UploadCapExemptWhen, when set and matching the resolved config,
	// lifts the cap (e.g. a bot API moved onto a self-hosted server).
	UploadCapBytes      int64
	UploadCapExemptWhen *Predicate

	Tester Tester
}

// UploadCap returns the effective upload body cap for a resolved
// config's field bag: 0 when the descriptor carries no cap or the
// exemption predicate matches.
func (d Descriptor) UploadCap(configJSON map[string]any) int64 {
	if d.UploadCapBytes <= 0 {
		return 0
	}
	if d.UploadCapExemptWhen != nil && d.UploadCapExemptWhen.Match(configJSON) {
		return 0
	}
	return d.UploadCapBytes
}
