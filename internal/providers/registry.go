package providers

// Registry is the routing table of adapters, keyed by provider id. Insertion
// order is preserved so compare mode fans out deterministically.
type Registry struct {
	adapters map[string]Adapter
	order    []string
}

// NewRegistry indexes the given adapters by their descriptor ids.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[string]Adapter, len(adapters))}
	for _, adapter := range adapters {
		id := adapter.Descriptor().ID
		if _, dup := r.adapters[id]; dup {
			continue
		}
		r.adapters[id] = adapter
		r.order = append(r.order, id)
	}
	return r
}

// Get returns the adapter registered under id.
func (r *Registry) Get(id string) (Adapter, bool) {
	adapter, ok := r.adapters[id]
	return adapter, ok
}

// ByKind returns every adapter producing the given media kind, in
// registration order. Configuration is not checked here; compare mode probes
// each adapter best effort.
func (r *Registry) ByKind(kind MediaKind) []Adapter {
	var out []Adapter
	for _, id := range r.order {
		if adapter := r.adapters[id]; adapter.Descriptor().Kind == kind {
			out = append(out, adapter)
		}
	}
	return out
}

// All returns every registered adapter in registration order.
func (r *Registry) All() []Adapter {
	out := make([]Adapter, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.adapters[id])
	}
	return out
}

// Descriptors lists all registered descriptors in registration order.
func (r *Registry) Descriptors() []Descriptor {
	out := make([]Descriptor, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.adapters[id].Descriptor())
	}
	return out
}
