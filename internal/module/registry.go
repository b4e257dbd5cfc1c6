package module

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Factory constructs a fresh implementation for one declared module.
type Factory func() (Implementation, error)

// Registry maps bare locators to implementation factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: map[string]Factory{}}
}

// Register installs a factory. Returns an error if the locator already exists.
func (r *Registry) Register(locator string, factory Factory) error {
	locator = strings.TrimSpace(locator)
	if locator == "" {
		return fmt.Errorf("module: locator is required")
	}
	if factory == nil {
		return fmt.Errorf("module: factory is required for %s", locator)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[locator]; exists {
		return fmt.Errorf("module: %s already registered", locator)
	}
	r.factories[locator] = factory
	return nil
}

// MustRegister panics if registration fails.
func (r *Registry) MustRegister(locator string, factory Factory) {
	if err := r.Register(locator, factory); err != nil {
		panic(err)
	}
}

// RegisterValue installs a factory that always returns impl. Useful for
// stateless implementations and tests.
func (r *Registry) RegisterValue(locator string, impl Implementation) error {
	return r.Register(locator, func() (Implementation, error) { return impl, nil })
}

// Resolve constructs the implementation registered under locator.
func (r *Registry) Resolve(locator string) (Implementation, error) {
	r.mu.RLock()
	factory, ok := r.factories[strings.TrimSpace(locator)]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w %s", ErrUnknownLocator, locator)
	}
	return factory()
}

// Locators returns a sorted list of registered locators.
func (r *Registry) Locators() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.factories))
	for id := range r.factories {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
