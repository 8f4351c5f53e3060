package breaker

import "sort"

// Registry holds the breakers for a process, keyed by dependency name.
//
// Constructed once from configuration and passed explicitly to whatever
// needs it; there is no package-level instance. Tests build isolated
// registries.
type Registry struct {
	breakers map[string]*Breaker
}

// NewRegistry builds a registry from per-dependency configs.
func NewRegistry(configs map[string]Config, opts ...Option) *Registry {
	r := &Registry{breakers: make(map[string]*Breaker, len(configs))}
	for name, cfg := range configs {
		r.breakers[name] = New(name, cfg, opts...)
	}
	return r
}

// Get returns the breaker for a dependency, or nil if none is
// configured.
func (r *Registry) Get(name string) *Breaker {
	return r.breakers[name]
}

// Statuses returns snapshots of all breakers, sorted by name for
// stable output.
func (r *Registry) Statuses() []Status {
	statuses := make([]Status, 0, len(r.breakers))
	for _, b := range r.breakers {
		statuses = append(statuses, b.GetStatus())
	}
	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].Name < statuses[j].Name
	})
	return statuses
}
