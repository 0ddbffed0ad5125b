// Package source defines the adapter contract for external metadata
// providers and the registry that orders them into a waterfall.
package source

import (
	"context"
	"sort"
	"sync"

	"github.com/filmgrid/enrich-cli/internal/model"
)

// Pool decides what an adapter's candidates are allowed to do. Primary
// adapters may set resolved values; comparison adapters only feed the
// conflict detector and never appear as a resolved field's source.
type Pool string

const (
	PoolPrimary    Pool = "primary"
	PoolComparison Pool = "comparison"
)

// Adapter is the contract every provider integration implements. Lower
// priority runs first. Fetch returns candidates for whatever fields the
// provider knows about the entity; the resolver filters to the requested
// set. Failures surface as *AdapterError — anything else is treated as
// unavailable.
type Adapter interface {
	Name() string
	Priority() int
	BaseConfidence() float64
	Pool() Pool
	Fields() []model.FieldName
	Fetch(ctx context.Context, key model.EntityKey) ([]model.Candidate, error)
}

// CanProvide reports whether the adapter declares the given field.
func CanProvide(a Adapter, field model.FieldName) bool {
	for _, f := range a.Fields() {
		if f == field {
			return true
		}
	}
	return false
}

// Registry holds registered adapters split by pool. Safe for concurrent
// use; the waterfall order is fixed at read time by ascending priority
// with name as tiebreaker, so runs are deterministic.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

// NewRegistry creates an empty adapter registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register adds an adapter, replacing any previous adapter with the same
// name.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Name()] = a
}

// Get returns an adapter by name, or nil when not registered.
func (r *Registry) Get(name string) Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.adapters[name]
}

// Primary returns primary-pool adapters in waterfall order.
func (r *Registry) Primary() []Adapter {
	return r.pool(PoolPrimary)
}

// Comparison returns comparison-pool adapters in waterfall order.
func (r *Registry) Comparison() []Adapter {
	return r.pool(PoolComparison)
}

func (r *Registry) pool(p Pool) []Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Adapter
	for _, a := range r.adapters {
		if a.Pool() == p {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority() != out[j].Priority() {
			return out[i].Priority() < out[j].Priority()
		}
		return out[i].Name() < out[j].Name()
	})
	return out
}

// Names returns all registered adapter names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
