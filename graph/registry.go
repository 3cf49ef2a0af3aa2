package graph

import (
	"slices"
	"strings"
	"sync"
)

// Registry maps graph names to versioned graphs. Several versions of the
// same graph can coexist; the latest version is used for new executions
// while suspended executions resume on the version they started with.
// It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	versions map[string][]*Graph
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{versions: make(map[string][]*Graph)}
}

// Register adds g. A graph with the same name and version is replaced.
func (r *Registry) Register(g *Graph) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing := r.versions[g.Name()]
	for i, v := range existing {
		if v.Version() == g.Version() {
			existing[i] = g
			return
		}
	}
	r.versions[g.Name()] = append(existing, g)
}

// Get returns the latest version of the named graph.
func (r *Registry) Get(name string) (*Graph, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return latest(r.versions[name])
}

// GetVersion returns a specific version of the named graph. A version
// <= 0 behaves like Get.
func (r *Registry) GetVersion(name string, version int) (*Graph, bool) {
	if version <= 0 {
		return r.Get(name)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, g := range r.versions[name] {
		if g.Version() == version {
			return g, true
		}
	}
	return nil, false
}

// List returns the latest version of every graph, sorted by name.
func (r *Registry) List() []*Graph {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Graph, 0, len(r.versions))
	for _, versions := range r.versions {
		if g, ok := latest(versions); ok {
			out = append(out, g)
		}
	}
	slices.SortFunc(out, func(a, b *Graph) int { return strings.Compare(a.Name(), b.Name()) })
	return out
}

func latest(versions []*Graph) (*Graph, bool) {
	if len(versions) == 0 {
		return nil, false
	}
	best := versions[0]
	for _, g := range versions[1:] {
		if g.Version() > best.Version() {
			best = g
		}
	}
	return best, true
}
