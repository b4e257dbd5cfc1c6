// Package loader turns module descriptors into runtime modules with their
// implementation attached and default configuration merged.
package loader

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/kingrea/latticeboot/internal/module"
)

// ScriptResolver loads an implementation from a source path on disk.
type ScriptResolver interface {
	Resolve(path string) (module.Implementation, error)
}

// Loader resolves locators. Path locators are handed to Scripts relative to
// RootPath; bare locators are looked up in Packages.
type Loader struct {
	RootPath string
	Packages *module.Registry
	Scripts  ScriptResolver
}

// IsPath reports whether locator names a file system location rather than a
// registered package.
func IsPath(locator string) bool {
	return strings.HasPrefix(locator, "./") ||
		strings.HasPrefix(locator, "../") ||
		locator == "." || locator == ".." ||
		filepath.IsAbs(locator)
}

// Path returns the file system location for a path locator.
func (l *Loader) Path(locator string) string {
	if filepath.IsAbs(locator) {
		return filepath.Clean(locator)
	}
	return filepath.Join(l.RootPath, locator)
}

// Load resolves d into a module in the config-merged state.
func (l *Loader) Load(d module.Descriptor) (*module.Module, error) {
	if err := d.Validate(); err != nil {
		return nil, &module.LoadError{Module: d.Name, Locator: d.Locator, Err: err}
	}
	m := module.New(d)
	impl, err := l.resolve(m.Locator())
	if err != nil {
		return nil, &module.LoadError{Module: m.Name(), Locator: m.Locator(), Err: err}
	}
	if impl == nil {
		return nil, &module.InvalidModuleError{Module: m.Name(), Reason: "locator resolved to nil"}
	}
	if !module.CanStart(impl) {
		return nil, &module.InvalidModuleError{
			Module: m.Name(),
			Reason: fmt.Sprintf("%T implements neither Start nor StartAsync", impl),
		}
	}
	if err := m.Attach(impl); err != nil {
		return nil, &module.LoadError{Module: m.Name(), Locator: m.Locator(), Err: err}
	}
	return m, nil
}

// LoadAll loads every descriptor in order and stops at the first failure.
// Names must be unique.
func (l *Loader) LoadAll(descriptors []module.Descriptor) ([]*module.Module, error) {
	seen := make(map[string]struct{}, len(descriptors))
	modules := make([]*module.Module, 0, len(descriptors))
	for _, d := range descriptors {
		name := d.Normalized().Name
		if _, dup := seen[name]; dup {
			return nil, &module.LoadError{Module: name, Locator: d.Normalized().Locator, Err: fmt.Errorf("loader: duplicate module name %s", name)}
		}
		seen[name] = struct{}{}
		m, err := l.Load(d)
		if err != nil {
			return nil, err
		}
		modules = append(modules, m)
	}
	return modules, nil
}

func (l *Loader) resolve(locator string) (impl module.Implementation, err error) {
	defer func() {
		if r := recover(); r != nil {
			impl = nil
			err = &module.PanicError{Value: r}
		}
	}()
	if IsPath(locator) {
		if l.Scripts == nil {
			return nil, fmt.Errorf("loader: no script resolver for %s", locator)
		}
		return l.Scripts.Resolve(l.Path(locator))
	}
	if l.Packages == nil {
		return nil, fmt.Errorf("loader: %w %s", module.ErrUnknownLocator, locator)
	}
	return l.Packages.Resolve(locator)
}
