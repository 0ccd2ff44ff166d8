package source

import (
	"sort"
	"sync"

	"github.com/wegman-software/geojson2mvt-go/internal/metrics"
)

// Registry holds sources by name.
type Registry struct {
	opts Options

	mu      sync.RWMutex
	sources map[string]*Source
}

// NewRegistry creates a registry whose sources share opts.
func NewRegistry(opts Options) *Registry {
	return &Registry{
		opts:    opts,
		sources: make(map[string]*Source),
	}
}

// Source returns the named source, creating it when missing.
func (r *Registry) Source(name string) *Source {
	r.mu.RLock()
	s, ok := r.sources[name]
	r.mu.RUnlock()
	if ok {
		return s
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sources[name]; ok {
		return s
	}
	s = New(name, r.opts)
	r.sources[name] = s
	return s
}

// Lookup returns the named source if it exists.
func (r *Registry) Lookup(name string) (*Source, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sources[name]
	return s, ok
}

// Remove abandons any pending load of the named source and forgets it.
func (r *Registry) Remove(name string) bool {
	r.mu.Lock()
	s, ok := r.sources[name]
	delete(r.sources, name)
	r.mu.Unlock()

	if !ok {
		return false
	}
	s.Remove()
	metrics.IndexedFeatures.DeleteLabelValues(name)
	return true
}

// Names returns the registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.sources))
	for name := range r.sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of sources.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sources)
}
