package module

import (
	"fmt"
	"sort"
)

// Registry resolves module IDs to modules. The set is closed at
// construction time; reads after that are lock-free.
type Registry struct {
	modules map[string]Module
}

// NewRegistry builds a registry from the given modules. Duplicate module
// IDs are rejected.
func NewRegistry(modules ...Module) (*Registry, error) {
	byID := make(map[string]Module, len(modules))
	for _, m := range modules {
		id := m.ID()
		if id == "" {
			return nil, fmt.Errorf("module: registry rejects empty module ID")
		}
		if _, exists := byID[id]; exists {
			return nil, fmt.Errorf("module: duplicate module ID %q", id)
		}
		byID[id] = m
	}
	return &Registry{modules: byID}, nil
}

// Get returns the module with the given ID.
func (r *Registry) Get(moduleID string) (Module, error) {
	m, ok := r.modules[moduleID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownModule, moduleID)
	}
	return m, nil
}

// Active returns all active modules ordered by ID for deterministic
// iteration.
func (r *Registry) Active() []Module {
	var active []Module
	for _, m := range r.modules {
		if m.Descriptor().Active {
			active = append(active, m)
		}
	}
	sort.Slice(active, func(i, j int) bool {
		return active[i].ID() < active[j].ID()
	})
	return active
}

// Len returns the number of registered modules.
func (r *Registry) Len() int {
	return len(r.modules)
}
