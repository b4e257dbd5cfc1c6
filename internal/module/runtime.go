package module

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Module is the runtime record of one declared module.
type Module struct {
	name    string
	locator string
	config  Config
	refs    map[string]string
	impl    Implementation

	mu     sync.RWMutex
	state  State
	err    error
	deps   map[string]*Module
	logger *zap.SugaredLogger
}

// New creates a module in the declared state. The descriptor's config and refs
// are copied.
func New(d Descriptor) *Module {
	d = d.Normalized()
	refs := make(map[string]string, len(d.Refs))
	for prop, target := range d.Refs {
		refs[prop] = target
	}
	return &Module{
		name:    d.Name,
		locator: d.Locator,
		config:  d.Config.Clone(),
		refs:    refs,
		deps:    map[string]*Module{},
		state:   StateDeclared,
	}
}

// Name returns the unique module name.
func (m *Module) Name() string {
	return m.name
}

// Locator returns where the implementation was loaded from.
func (m *Module) Locator() string {
	return m.locator
}

// Config returns the effective configuration. Hooks may read it freely; only
// the loader writes to it.
func (m *Module) Config() Config {
	return m.config
}

// Impl returns the loaded implementation, or nil before loading.
func (m *Module) Impl() Implementation {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.impl
}

// Attach stores the loaded implementation and merges its default config.
func (m *Module) Attach(impl Implementation) error {
	if err := m.Advance(StateLoaded); err != nil {
		return err
	}
	m.mu.Lock()
	m.impl = impl
	m.mu.Unlock()
	if d, ok := impl.(Defaulter); ok {
		m.config.MergeDefaults(d.DefaultConfig())
	}
	return m.Advance(StateConfigMerged)
}

// State returns the current lifecycle state.
func (m *Module) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Advance moves the module to next. Moving backwards, staying put, or leaving
// a terminal state is an error.
func (m *Module) Advance(next State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Terminal() {
		return fmt.Errorf("module: %s is already %s", m.name, m.state)
	}
	if next <= m.state {
		return fmt.Errorf("module: %s cannot move from %s to %s", m.name, m.state, next)
	}
	m.state = next
	return nil
}

// Fail marks the module failed with err. It is a no-op once the module has
// reached a terminal state.
func (m *Module) Fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Terminal() {
		return
	}
	m.state = StateFailed
	m.err = err
}

// Err returns the failure recorded by Fail.
func (m *Module) Err() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.err
}

// Reference returns the module name bound to property, from the descriptor's
// refs or a "<property>Id" config key.
func (m *Module) Reference(property string) string {
	if target, ok := m.refs[property]; ok {
		return target
	}
	return m.config.References()[property]
}

// References returns every declared property -> module pair.
func (m *Module) References() map[string]string {
	refs := m.config.References()
	for prop, target := range m.refs {
		refs[prop] = target
	}
	return refs
}

// ReferenceProperties returns the declared properties in sorted order.
func (m *Module) ReferenceProperties() []string {
	return sortedKeys(m.References())
}

// Bind sets property to dep.
func (m *Module) Bind(property string, dep *Module) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deps[property] = dep
}

// Dependency returns the module bound to property.
func (m *Module) Dependency(property string) (*Module, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	dep, ok := m.deps[property]
	return dep, ok
}

// Dependencies returns a copy of every bound property.
func (m *Module) Dependencies() map[string]*Module {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]*Module, len(m.deps))
	for prop, dep := range m.deps {
		out[prop] = dep
	}
	return out
}

// SetLogger installs the module's child logger.
func (m *Module) SetLogger(logger *zap.SugaredLogger) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logger = logger
}

// Logger returns the module's logger, tagged with its name.
func (m *Module) Logger() *zap.SugaredLogger {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.logger == nil {
		return zap.NewNop().Sugar()
	}
	return m.logger
}

func (m *Module) String() string {
	return m.name
}
