// Package registry holds the per-subtype node specifications: category, required config
// fields and the JSON schema each node config is checked against.
package registry

import (
	"sort"
	"sync"

	"github.com/dukex/fanflow/pkg/models"
)

// NodeSpec describes one node subtype.
type NodeSpec struct {
	Subtype     string          `json:"subtype"`
	Type        models.NodeType `json:"type"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Required    []string        `json:"required"`
	Schema      map[string]any  `json:"schema"`
}

type Registry struct {
	mu    sync.RWMutex
	specs map[string]NodeSpec
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{specs: make(map[string]NodeSpec)}
}

// NewDefault creates a registry with every built-in subtype registered.
func NewDefault() *Registry {
	r := New()
	r.RegisterDefaults()

	return r
}

// Register adds or replaces the spec of a subtype.
func (r *Registry) Register(spec NodeSpec) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.specs[spec.Subtype] = spec
}

// Lookup returns the spec registered for subtype.
func (r *Registry) Lookup(subtype string) (NodeSpec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	spec, ok := r.specs[subtype]

	return spec, ok
}

// RequiredFields returns the config fields a node of subtype must set. Unknown subtypes
// have none.
func (r *Registry) RequiredFields(subtype string) []string {
	spec, ok := r.Lookup(subtype)
	if !ok {
		return nil
	}

	return spec.Required
}

// Specs returns all registered specs ordered by type and subtype.
func (r *Registry) Specs() []NodeSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()

	specs := make([]NodeSpec, 0, len(r.specs))
	for _, spec := range r.specs {
		specs = append(specs, spec)
	}

	sort.Slice(specs, func(i, j int) bool {
		if specs[i].Type != specs[j].Type {
			return specs[i].Type > specs[j].Type
		}

		return specs[i].Subtype < specs[j].Subtype
	})

	return specs
}
