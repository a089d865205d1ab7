package registry

// WebDAVPolicies computes the derived "supported policies" view for a
// resolved config: every config supports native_proxy; use_proxy_url iff a
// url_proxy is configured; 302_redirect iff the driver declares
// DIRECT_LINK.
func WebDAVPolicies(d Descriptor, urlProxySet bool) []string {
	policies := []string{"native_proxy"}
	if urlProxySet {
		policies = append(policies, "use_proxy_url")
	}
	if d.DirectLink {
		policies = append(policies, "302_redirect")
	}
	return policies
}
