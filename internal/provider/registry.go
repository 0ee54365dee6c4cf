package provider

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Options carries what a service needs to be constructed.
type Options struct {
	APIKey   string
	Language string
	Logger   *slog.Logger
}

// Factory builds a ready-to-use service. Construction may log in to the
// remote API, so an invalid credential surfaces here as Unauthorized.
type Factory func(opts Options) (Service, error)

// Registry maps service names to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// GlobalRegistry is the default registry instance
var GlobalRegistry = NewRegistry()

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory under name.
func (r *Registry) Register(name string, factory Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if factory == nil {
		return fmt.Errorf("provider %s has no factory", name)
	}
	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("provider %s already registered", name)
	}
	r.factories[name] = factory
	return nil
}

// New constructs the named service.
func (r *Registry) New(name string, opts Options) (Service, error) {
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown provider %q (available: %v)", name, r.List())
	}
	return factory(opts)
}

// List returns the registered names in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
