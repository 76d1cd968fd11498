package plugin

import (
	"fmt"
	"sort"
	"sync"
)

// Registry is the compiled-in set of tool adapters a binary was built
// with. Adapters self-register from an init() in their internal/tools/<n>
// package; there is no dynamic loading (spec.md §6).
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]ToolAdapter
	config   *RegistryConfig
}

var defaultRegistry = &Registry{adapters: make(map[string]ToolAdapter), config: DefaultConfig()}

// Default returns the process-wide compiled-in registry.
func Default() *Registry { return defaultRegistry }

// NewRegistry returns a fresh, empty registry, used when a caller needs an
// adapter set isolated from the process-wide Default (most callers want
// Default; this exists for embedding sc as a library alongside another
// compiled-in tool set, and for tests).
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]ToolAdapter), config: DefaultConfig()}
}

// SetConfig overrides the registry's dependency/access policy, normally
// DefaultConfig's CI-aware choice.
func (r *Registry) SetConfig(cfg *RegistryConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.config = cfg
}

// Register adds an adapter under its metadata name. A second registration
// of the same name is an error, mirroring the teacher's registry
// behaviour of rejecting duplicate plugin types.
func (r *Registry) Register(a ToolAdapter) error {
	if a == nil {
		return fmt.Errorf("cannot register a nil tool adapter")
	}
	meta := a.Metadata()
	if err := meta.Validate(); err != nil {
		return fmt.Errorf("invalid tool adapter metadata: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.adapters[meta.Name]; exists {
		return fmt.Errorf("tool adapter %q already registered", meta.Name)
	}
	r.adapters[meta.Name] = a

	if init, ok := a.(AdapterInitializer); ok {
		if err := init.Init(r); err != nil {
			delete(r.adapters, meta.Name)
			return fmt.Errorf("initialize tool adapter %q: %w", meta.Name, err)
		}
	}
	return nil
}

// Get retrieves a registered adapter by tool name.
func (r *Registry) Get(name string) (ToolAdapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.adapters[name]
	if !ok {
		return nil, ErrAdapterNotFound{Name: name}
	}
	return a, nil
}

// Names returns every registered tool name, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// CheckDependencies verifies that every registered adapter's declared
// Dependencies are themselves registered and free of cycles (spec.md §7
// flowgraph validity: "tool without exe" generalizes to "tool whose
// declared dependency is absent"). Cycle detection is delegated to
// DependencyGraph, the teacher's plugin-ordering graph, generalized here
// from dotfile plugin names to tool adapter names.
func (r *Registry) CheckDependencies() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	strict := r.config == nil || r.config.DependencyPolicy != PolicyGraceful

	graph := NewDependencyGraph()
	for name, a := range r.adapters {
		graph.AddNode(name)
		for _, dep := range a.Metadata().Dependencies {
			depAdapter, ok := r.adapters[dep.Name]
			if !ok {
				if strict {
					return ErrMissingDependency{Adapter: name, Dependency: dep.Name}
				}
				continue
			}
			if dep.VersionConstraint != "" {
				vc, err := ParseVersionConstraint(dep.VersionConstraint)
				if err != nil {
					if strict {
						return fmt.Errorf("tool adapter %q declares invalid version constraint on %q: %w", name, dep.Name, err)
					}
					continue
				}
				if !vc.Satisfies(depAdapter.Metadata().Version) {
					if strict {
						return fmt.Errorf("tool adapter %q requires %q at %s, found %s", name, dep.Name, vc, depAdapter.Metadata().Version)
					}
					continue
				}
			}
			graph.AddEdge(name, dep.Name)
		}
	}

	if _, err := graph.TopologicalSort(); err != nil && strict {
		return err
	}
	return nil
}

// Reset clears all registrations; used by tests.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters = make(map[string]ToolAdapter)
}
