package social

import (
	"sort"
	"strings"
)

// ProviderRegistry is the set of providers configured at startup
type ProviderRegistry struct {
	enabled   bool
	providers map[string]Provider
}

// NewProviderRegistry creates a registry. A disabled registry rejects every
// lookup with ErrOAuthDisabled.
func NewProviderRegistry(enabled bool, providers ...Provider) *ProviderRegistry {
	r := &ProviderRegistry{
		enabled:   enabled,
		providers: map[string]Provider{},
	}
	for _, p := range providers {
		if p != nil {
			r.providers[p.Name()] = p
		}
	}
	return r
}

// Enabled reports whether OAuth is on and at least one provider is configured
func (r *ProviderRegistry) Enabled() bool {
	return r != nil && r.enabled && len(r.providers) > 0
}

// Get returns the named provider
func (r *ProviderRegistry) Get(name string) (Provider, error) {
	if r == nil || !r.enabled {
		return nil, ErrOAuthDisabled
	}
	p, ok := r.providers[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, ErrProviderNotFound
	}
	return p, nil
}

// Names lists configured providers in a stable order
func (r *ProviderRegistry) Names() []string {
	if !r.Enabled() {
		return []string{}
	}
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
