package plugins

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"github.com/kingrea/latticeboot/internal/module"
)

// Hook names looked up in a script's main package.
const (
	startFuncName         = "Start"
	startAsyncFuncName    = "StartAsync"
	setUpFuncName         = "SetUp"
	defaultConfigFuncName = "DefaultConfig"
	requiredFuncName      = "RequiredModules"
)

// ScriptResolver interprets Go source modules with yaegi. A script is a single
// .go file or a directory of .go files in package main that defines either
//
//	func Start(config map[string]any) error
//	func StartAsync(config map[string]any, done func(error))
//
// and optionally DefaultConfig() map[string]any, SetUp(map[string]any) error
// and RequiredModules() []string.
type ScriptResolver struct {
	// GoPath is handed to the interpreter so scripts can import vendored
	// packages. Empty means the standard library only.
	GoPath string
	// Stdout and Stderr receive what scripts print. Nil means the process
	// streams.
	Stdout io.Writer
	Stderr io.Writer
}

// NewScriptResolver returns a resolver limited to the standard library.
func NewScriptResolver() *ScriptResolver {
	return &ScriptResolver{}
}

// Resolve evaluates the script at path and adapts its functions to the module
// capability interfaces.
func (r *ScriptResolver) Resolve(path string) (module.Implementation, error) {
	files, err := scriptFiles(path)
	if err != nil {
		return nil, err
	}
	i := interp.New(interp.Options{GoPath: r.GoPath, Stdout: r.Stdout, Stderr: r.Stderr})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, fmt.Errorf("plugin: load stdlib symbols: %w", err)
	}
	for _, file := range files {
		if _, err := i.EvalPath(file); err != nil {
			return nil, fmt.Errorf("plugin: interpret %s: %w", file, err)
		}
	}
	lookup := func(name string) reflect.Value {
		v, err := i.Eval(name)
		if err != nil {
			return reflect.Value{}
		}
		return v
	}
	return newScriptModule(path, lookup)
}

func scriptFiles(path string) ([]string, error) {
	trimmed := strings.TrimSpace(path)
	info, err := os.Stat(trimmed)
	if err != nil {
		return nil, fmt.Errorf("plugin: stat %s: %w", trimmed, err)
	}
	if !info.IsDir() {
		if filepath.Ext(trimmed) != ".go" {
			return nil, fmt.Errorf("plugin: %s is not a .go file", trimmed)
		}
		return []string{trimmed}, nil
	}
	entries, err := os.ReadDir(trimmed)
	if err != nil {
		return nil, fmt.Errorf("plugin: read %s: %w", trimmed, err)
	}
	var files []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != ".go" || strings.HasSuffix(name, "_test.go") {
			continue
		}
		files = append(files, filepath.Join(trimmed, name))
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("plugin: %s contains no .go files", trimmed)
	}
	sort.Strings(files)
	return files, nil
}

type scriptHooks struct {
	path       string
	setUp      func(map[string]any) error
	defaults   func() map[string]any
	required   func() []string
	start      func(map[string]any) error
	startAsync func(map[string]any, func(error))
}

func newScriptModule(path string, lookup func(string) reflect.Value) (module.Implementation, error) {
	hooks := &scriptHooks{path: path}
	var err error
	if hooks.start, err = bindStart(lookup(startFuncName)); err != nil {
		return nil, fmt.Errorf("plugin: %s: %w", path, err)
	}
	if hooks.startAsync, err = bindStartAsync(lookup(startAsyncFuncName)); err != nil {
		return nil, fmt.Errorf("plugin: %s: %w", path, err)
	}
	if hooks.setUp, err = bindSetUp(lookup(setUpFuncName)); err != nil {
		return nil, fmt.Errorf("plugin: %s: %w", path, err)
	}
	if hooks.defaults, err = bindDefaults(lookup(defaultConfigFuncName)); err != nil {
		return nil, fmt.Errorf("plugin: %s: %w", path, err)
	}
	if hooks.required, err = bindRequired(lookup(requiredFuncName)); err != nil {
		return nil, fmt.Errorf("plugin: %s: %w", path, err)
	}
	switch {
	case hooks.startAsync != nil:
		return &asyncScriptModule{hooks}, nil
	case hooks.start != nil:
		return &scriptModule{hooks}, nil
	}
	return nil, fmt.Errorf("plugin: %s must define %s or %s", path, startFuncName, startAsyncFuncName)
}

// scriptModule is a script exposing a synchronous Start.
type scriptModule struct{ *scriptHooks }

func (s *scriptModule) Start(_ module.Host, m *module.Module) error {
	return s.start(m.Config())
}

// asyncScriptModule is a script exposing StartAsync.
type asyncScriptModule struct{ *scriptHooks }

func (s *asyncScriptModule) StartAsync(_ module.Host, m *module.Module, done func(error)) {
	s.startAsync(m.Config(), done)
}

func (s *scriptHooks) SetUp(_ module.Host, m *module.Module) error {
	if s.setUp == nil {
		return nil
	}
	return s.setUp(m.Config())
}

func (s *scriptHooks) DefaultConfig() module.Config {
	if s.defaults == nil {
		return nil
	}
	return module.Config(s.defaults())
}

func (s *scriptHooks) RequiredModules() []string {
	if s.required == nil {
		return nil
	}
	return s.required()
}

func (s *scriptHooks) String() string {
	return "script " + s.path
}

func bindStart(value reflect.Value) (func(map[string]any) error, error) {
	if !value.IsValid() {
		return nil, nil
	}
	fn, ok := value.Interface().(func(map[string]any) error)
	if !ok {
		return nil, fmt.Errorf("%s must be func(map[string]any) error, got %s", startFuncName, value.Type())
	}
	return fn, nil
}

func bindStartAsync(value reflect.Value) (func(map[string]any, func(error)), error) {
	if !value.IsValid() {
		return nil, nil
	}
	fn, ok := value.Interface().(func(map[string]any, func(error)))
	if !ok {
		return nil, fmt.Errorf("%s must be func(map[string]any, func(error)), got %s", startAsyncFuncName, value.Type())
	}
	return fn, nil
}

func bindSetUp(value reflect.Value) (func(map[string]any) error, error) {
	if !value.IsValid() {
		return nil, nil
	}
	fn, ok := value.Interface().(func(map[string]any) error)
	if !ok {
		return nil, fmt.Errorf("%s must be func(map[string]any) error, got %s", setUpFuncName, value.Type())
	}
	return fn, nil
}

func bindDefaults(value reflect.Value) (func() map[string]any, error) {
	if !value.IsValid() {
		return nil, nil
	}
	fn, ok := value.Interface().(func() map[string]any)
	if !ok {
		return nil, fmt.Errorf("%s must be func() map[string]any, got %s", defaultConfigFuncName, value.Type())
	}
	return fn, nil
}

func bindRequired(value reflect.Value) (func() []string, error) {
	if !value.IsValid() {
		return nil, nil
	}
	fn, ok := value.Interface().(func() []string)
	if !ok {
		return nil, fmt.Errorf("%s must be func() []string, got %s", requiredFuncName, value.Type())
	}
	return fn, nil
}
