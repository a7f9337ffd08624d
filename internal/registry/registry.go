// Package registry holds the catalogue of estimation methods and ranks the
// ones applicable to a classified dataset.
package registry

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"statsuite/domain/core"
	"statsuite/domain/method"
	"statsuite/domain/structure"
	"statsuite/ports"
)

// MethodDescriptor is the static metadata of one registered method
type MethodDescriptor struct {
	Name        string
	Category    method.Category
	Kinds       []structure.Kind
	CostTier    method.CostTier
	Suitability int           // lower is preferred within a tier
	Timeout     time.Duration // zero uses the tier default
	Adapter     ports.MethodAdapter
}

// Supports reports whether the method applies to a kind
func (d MethodDescriptor) Supports(kind structure.Kind) bool {
	for _, k := range d.Kinds {
		if k == kind {
			return true
		}
	}
	return false
}

// Info is the serialisable view of a descriptor
type Info struct {
	Name        string           `json:"name"`
	Category    method.Category  `json:"category"`
	Kinds       []structure.Kind `json:"kinds"`
	CostTier    string           `json:"cost_tier"`
	Suitability int              `json:"suitability"`
	Timeout     string           `json:"timeout,omitempty"`
}

// Info returns the descriptor without its adapter
func (d MethodDescriptor) Info() Info {
	info := Info{
		Name:        d.Name,
		Category:    d.Category,
		Kinds:       append([]structure.Kind(nil), d.Kinds...),
		CostTier:    d.CostTier.String(),
		Suitability: d.Suitability,
	}
	if d.Timeout > 0 {
		info.Timeout = d.Timeout.String()
	}
	return info
}

type entry struct {
	desc  MethodDescriptor
	order int
}

// Registry maps method names to descriptors. It is populated at startup and
// sealed before dispatch begins; reads are safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	byName  map[string]*entry
	byKind  map[structure.Kind][]*entry
	ordered []*entry
	sealed  bool
}

// New creates an empty registry
func New() *Registry {
	return &Registry{
		byName: make(map[string]*entry),
		byKind: make(map[structure.Kind][]*entry),
	}
}

// Register adds a method. Names are unique and case-sensitive.
func (r *Registry) Register(desc MethodDescriptor) error {
	if err := validate(desc); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed {
		return fmt.Errorf("%w: cannot register %s", core.ErrRegistrySealed, desc.Name)
	}
	if _, exists := r.byName[desc.Name]; exists {
		return fmt.Errorf("%w: %s", core.ErrDuplicateMethod, desc.Name)
	}

	desc.Kinds = append([]structure.Kind(nil), desc.Kinds...)
	e := &entry{desc: desc, order: len(r.ordered)}
	r.byName[desc.Name] = e
	r.ordered = append(r.ordered, e)
	for _, k := range desc.Kinds {
		r.byKind[k] = append(r.byKind[k], e)
	}
	return nil
}

// MustRegister is Register for built-in catalogues; it panics on error
func (r *Registry) MustRegister(desc MethodDescriptor) {
	if err := r.Register(desc); err != nil {
		panic(err)
	}
}

func validate(desc MethodDescriptor) error {
	if strings.TrimSpace(desc.Name) == "" {
		return fmt.Errorf("%w: name is required", core.ErrInvalidMethod)
	}
	if desc.Adapter == nil {
		return fmt.Errorf("%w: %s has no adapter", core.ErrInvalidMethod, desc.Name)
	}
	if len(desc.Kinds) == 0 {
		return fmt.Errorf("%w: %s declares no structure kinds", core.ErrInvalidMethod, desc.Name)
	}
	for _, k := range desc.Kinds {
		if k == structure.KindUnknown || k == "" {
			return fmt.Errorf("%w: %s cannot target kind %q", core.ErrInvalidMethod, desc.Name, k)
		}
	}
	if desc.CostTier < method.TierClosedForm || desc.CostTier > method.TierSimulation {
		return fmt.Errorf("%w: %s has invalid cost tier %d", core.ErrInvalidMethod, desc.Name, desc.CostTier)
	}
	return nil
}

// Seal freezes the registry; later Register calls fail with ErrRegistrySealed
func (r *Registry) Seal() {
	r.mu.Lock()
	r.sealed = true
	r.mu.Unlock()
}

// Sealed reports whether Seal has been called
func (r *Registry) Sealed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sealed
}

// Lookup returns the descriptor registered under name
func (r *Registry) Lookup(name string) (MethodDescriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byName[name]
	if !ok {
		return MethodDescriptor{}, fmt.Errorf("%w: %s", core.ErrMethodNotFound, name)
	}
	return e.desc, nil
}

// ForKind returns the methods declared for a kind in registration order
func (r *Registry) ForKind(kind structure.Kind) []MethodDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]MethodDescriptor, len(r.byKind[kind]))
	for i, e := range r.byKind[kind] {
		out[i] = e.desc
	}
	return out
}

// All returns every method in registration order
func (r *Registry) All() []MethodDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]MethodDescriptor, len(r.ordered))
	for i, e := range r.ordered {
		out[i] = e.desc
	}
	return out
}

// ranked returns entries for kind sorted by tier, suitability, then
// registration order
func (r *Registry) ranked(kind structure.Kind) []*entry {
	r.mu.RLock()
	entries := append([]*entry(nil), r.byKind[kind]...)
	r.mu.RUnlock()

	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i].desc, entries[j].desc
		if a.CostTier != b.CostTier {
			return a.CostTier < b.CostTier
		}
		if a.Suitability != b.Suitability {
			return a.Suitability < b.Suitability
		}
		return entries[i].order < entries[j].order
	})
	return entries
}
