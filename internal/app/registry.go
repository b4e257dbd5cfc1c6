package app

import (
	"fmt"
	"sync"

	"github.com/kingrea/latticeboot/internal/module"
)

// Registry holds the modules that have entered the starting state. It only
// grows; entries are never removed.
type Registry struct {
	mu      sync.RWMutex
	order   []*module.Module
	byName  map[string]*module.Module
	started map[string]bool
}

func newRegistry() *Registry {
	return &Registry{
		byName:  map[string]*module.Module{},
		started: map[string]bool{},
	}
}

func (r *Registry) add(m *module.Module) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byName[m.Name()]; exists {
		return fmt.Errorf("app: module %s already registered", m.Name())
	}
	r.byName[m.Name()] = m
	r.order = append(r.order, m)
	return nil
}

func (r *Registry) markStarted(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started[name] = true
}

// Lookup returns the registered module called name.
func (r *Registry) Lookup(name string) (*module.Module, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.byName[name]
	return m, ok
}

// IsStarted reports whether name completed its start phase.
func (r *Registry) IsStarted(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.started[name]
}

// Modules returns the registered modules in start order.
func (r *Registry) Modules() []*module.Module {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*module.Module, len(r.order))
	copy(out, r.order)
	return out
}

// Len returns the number of registered modules.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
