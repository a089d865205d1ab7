package registry

import (
	"sort"

	"github.com/cloudvault/vaultd/vaulterrs"
)

// Registry is a closed map of storage_type → Descriptor, populated
// once at construction from the fixed driver catalog. Unlike a factory
// keyed by a runtime string, the set of entries never grows at
// runtime; outside tests, Register is only called from NewDefault.
type Registry struct {
	descriptors map[string]Descriptor
}

// New returns an empty registry. Production code should use NewDefault;
// New exists so tests can assemble a minimal registry of fakes.
func New() *Registry {
	return &Registry{descriptors: map[string]Descriptor{}}
}

// NewDefault returns the registry populated with every driver variant
// this core ships.
func NewDefault() *Registry {
	r := New()
	for _, d := range defaultDescriptors() {
		r.Register(d)
	}
	return r
}

// Register adds or replaces a descriptor. Panics on a duplicate Type
// within the same call site's catalog would be surprising for tests
// assembling ad hoc registries, so duplicates simply overwrite — the
// closed-union guarantee is enforced by NewDefault only registering the
// fixed catalog once.
func (r *Registry) Register(d Descriptor) {
	r.descriptors[d.Type] = d
}

// Lookup resolves storageType to its descriptor. An unknown tag is a
// validation error, never a type-assertion panic or a silently-empty
// struct.
func (r *Registry) Lookup(storageType string) (Descriptor, error) {
	d, ok := r.descriptors[storageType]
	if !ok {
		return Descriptor{}, vaulterrs.Validation.New("unknown storage_type %q", storageType)
	}
	return d, nil
}

// Capabilities is the full capability view of one descriptor, the
// shape the admin UI consumes alongside the config schema.
type Capabilities struct {
	Share      ShareCapabilities
	FS         FSCapabilities
	DirectLink bool
	ReadOnly   bool
}

// TypeMetadata describes one storage type to the admin UI: display
// name, provider options, config schema (fields plus form layout) and
// the capability set.
type TypeMetadata struct {
	Type            string
	DisplayName     string
	ProviderOptions []string
	ConfigSchema    ConfigSchema
	Capabilities    Capabilities
}

// Metadata returns the admin-facing description of every registered
// type, sorted by type tag.
func (r *Registry) Metadata() []TypeMetadata {
	out := make([]TypeMetadata, 0, len(r.descriptors))
	for _, t := range r.Types() {
		d := r.descriptors[t]
		out = append(out, TypeMetadata{
			Type:            d.Type,
			DisplayName:     d.DisplayName,
			ProviderOptions: d.ProviderOptions,
			ConfigSchema:    d.Schema,
			Capabilities: Capabilities{
				Share:      d.Share,
				FS:         d.FS,
				DirectLink: d.DirectLink,
				ReadOnly:   d.ReadOnly,
			},
		})
	}
	return out
}

// Types returns every registered storage_type, sorted.
func (r *Registry) Types() []string {
	types := make([]string, 0, len(r.descriptors))
	for t := range r.descriptors {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
