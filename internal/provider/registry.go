package provider

import (
	"sync"

	"github.com/sells-group/valuation-cli/internal/model"
)

// Registry holds the constructed adapters for a provider roster.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// BuildRegistry constructs adapters for every active provider in the roster.
// A configuration error on any provider fails the whole build; this is the
// loud-failure class that must surface before any request is processed.
func BuildRegistry(providers []model.ProviderConfig, creds Credentials) (*Registry, error) {
	r := NewRegistry()
	for _, cfg := range providers {
		if !cfg.Active {
			continue
		}
		a, err := NewAdapter(cfg, creds)
		if err != nil {
			return nil, err
		}
		r.Register(a)
	}
	return r, nil
}

// Register adds an adapter to the registry, replacing any previous adapter
// with the same provider id.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Config().ID] = a
}

// Get returns the adapter for a provider id, or nil if not registered.
func (r *Registry) Get(providerID string) Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.adapters[providerID]
}

// ByCapability returns the registered adapters with the given capability tag,
// in no particular order.
func (r *Registry) ByCapability(cap model.Capability) []Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Adapter
	for _, a := range r.adapters {
		if a.Config().Capability == cap {
			out = append(out, a)
		}
	}
	return out
}

// Len returns the number of registered adapters.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.adapters)
}
