package calculator

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Registry holds the named calculator engines available to the process.
// It is constructed once at startup and passed by reference to every
// component needing calculator lookup; there is no package-level state.
type Registry struct {
	mu      sync.RWMutex
	engines map[string]Engine
}

func NewRegistry() *Registry {
	return &Registry{engines: make(map[string]Engine)}
}

// NewRegistryFromConfig builds a registry of HTTP engines from the
// name->URL map in configuration.
func NewRegistryFromConfig(engines map[string]string, timeout time.Duration) *Registry {
	r := NewRegistry()
	for name, url := range engines {
		r.Register(name, NewHTTPEngine(name, url, timeout))
	}
	return r
}

// Register adds or replaces an engine under the given name.
func (r *Registry) Register(name string, engine Engine) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.engines[name] = engine
}

// Get returns the engine registered under name.
func (r *Registry) Get(name string) (Engine, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	engine, ok := r.engines[name]
	if !ok {
		return nil, fmt.Errorf("no calculator engine registered as %q", name)
	}
	return engine, nil
}

// Names returns the registered engine names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.engines))
	for name := range r.engines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
