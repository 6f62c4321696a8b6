package authconfig

// ProviderRegistry is a small lookup helper over MultiLevelAuthConfig's
// Providers map, grounded on original_source's provider_manager.rs
// provider registry: a name-keyed lookup with per-provider introspection
// of which flows (oauth, device_code) are actually enabled. No other
// package in this module calls it; the resolver, discovery, and
// token exchange read ProviderConfig values directly.
type ProviderRegistry struct {
	providers map[string]ProviderConfig
}

// NewProviderRegistry builds a registry over cfg's Providers map.
func NewProviderRegistry(cfg *MultiLevelAuthConfig) *ProviderRegistry {
	return &ProviderRegistry{providers: cfg.Providers}
}

// Lookup returns the named provider's configuration.
func (r *ProviderRegistry) Lookup(name string) (ProviderConfig, bool) {
	p, ok := r.providers[name]
	return p, ok
}

// SupportsOAuth reports whether name is a known provider with the
// authorization-code flow enabled.
func (r *ProviderRegistry) SupportsOAuth(name string) bool {
	p, ok := r.providers[name]
	return ok && p.OAuthEnabled
}

// SupportsDeviceCode reports whether name is a known provider with the
// device-code flow enabled.
func (r *ProviderRegistry) SupportsDeviceCode(name string) bool {
	p, ok := r.providers[name]
	return ok && p.DeviceCodeEnabled
}

// Names returns every registered provider name.
func (r *ProviderRegistry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	return names
}
