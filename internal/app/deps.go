package app

import (
	"github.com/kingrea/latticeboot/internal/module"
)

// wireReferences binds every declared reference once its target starts.
func (a *App) wireReferences(m *module.Module) {
	for _, prop := range m.ReferenceProperties() {
		prop, target := prop, m.Reference(prop)
		a.waitFor([]string{target}, func() {
			dep, ok := a.registry.Lookup(target)
			if !ok {
				return
			}
			m.Bind(prop, dep)
			m.Logger().Debugw("Bound dependency", "property", prop, "target", target)
		})
	}
}

// wireRequired binds required properties immediately. A reference that is
// missing or not yet registered fails the module.
func (a *App) wireRequired(m *module.Module) error {
	req, ok := m.Impl().(module.Requirer)
	if !ok {
		return nil
	}
	for _, prop := range module.SplitProperties(req.RequiredModules()) {
		target := m.Reference(prop)
		if target == "" {
			return &module.MissingDependencyError{Module: m.Name(), Property: prop}
		}
		dep, ok := a.registry.Lookup(target)
		if !ok {
			return &module.MissingDependencyError{Module: m.Name(), Property: prop, Target: target}
		}
		m.Bind(prop, dep)
	}
	return nil
}

// wireOptional activates each optional group once all of its references have
// started. Groups with an unconfigured property never activate.
func (a *App) wireOptional(m *module.Module) {
	opt, ok := m.Impl().(module.OptionalDependent)
	if !ok {
		return
	}
	for _, group := range opt.OptionalModules() {
		group := group
		props := module.SplitProperties(group.Properties)
		if len(props) == 0 {
			continue
		}
		targets := make([]string, 0, len(props))
		for _, prop := range props {
			target := m.Reference(prop)
			if target == "" {
				m.Logger().Debugw("Optional group inactive", "properties", props, "missing", prop)
				targets = nil
				break
			}
			targets = append(targets, target)
		}
		if targets == nil {
			continue
		}
		a.waitFor(targets, func() {
			for i, prop := range props {
				if dep, ok := a.registry.Lookup(targets[i]); ok {
					m.Bind(prop, dep)
				}
			}
			for _, handler := range group.Handlers {
				if handler != nil {
					handler(a, m)
				}
			}
		})
	}
}
