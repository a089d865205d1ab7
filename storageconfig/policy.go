package storageconfig

import (
	"context"

	"github.com/cloudvault/vaultd/storageconfig/registry"
)

// SupportedPolicies returns the derived WebDAV policy view for a
// config: native_proxy always, use_proxy_url when a URL proxy base is
// set, 302_redirect when the driver type declares direct links.
func (s *Service) SupportedPolicies(ctx context.Context, id string) ([]string, error) {
	cfg, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	descriptor, err := s.registry.Lookup(cfg.StorageType)
	if err != nil {
		return nil, err
	}
	return registry.WebDAVPolicies(descriptor, cfg.URLProxy != nil && *cfg.URLProxy != ""), nil
}
