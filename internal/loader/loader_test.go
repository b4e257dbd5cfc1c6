package loader

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/kingrea/latticeboot/internal/module"
)

type starter struct{}

func (starter) Start(module.Host, *module.Module) error { return nil }

type withDefaults struct{ starter }

func (withDefaults) DefaultConfig() module.Config {
	return module.Config{"port": 80, "host": "0.0.0.0"}
}

type fakeScripts struct {
	paths []string
	impl  module.Implementation
	err   error
}

func (f *fakeScripts) Resolve(path string) (module.Implementation, error) {
	f.paths = append(f.paths, path)
	return f.impl, f.err
}

func newLoader(t *testing.T) (*Loader, *fakeScripts) {
	t.Helper()
	reg := module.NewRegistry()
	reg.MustRegister("web", func() (module.Implementation, error) { return withDefaults{}, nil })
	reg.MustRegister("inert", func() (module.Implementation, error) { return struct{}{}, nil })
	reg.MustRegister("explodes", func() (module.Implementation, error) { panic("kaboom") })
	scripts := &fakeScripts{impl: starter{}}
	return &Loader{RootPath: "/srv/app", Packages: reg, Scripts: scripts}, scripts
}

func TestIsPath(t *testing.T) {
	cases := map[string]bool{
		"./api":       true,
		"../shared":   true,
		"/opt/mod.go": true,
		"web":         false,
		"acme/web":    false,
	}
	for locator, want := range cases {
		if got := IsPath(locator); got != want {
			t.Fatalf("IsPath(%q) = %v, want %v", locator, got, want)
		}
	}
}

func TestLoadMergesDefaults(t *testing.T) {
	l, _ := newLoader(t)
	cfg := module.Config{"port": 8080}
	m, err := l.Load(module.Descriptor{Name: "api", Locator: "web", Config: cfg})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if m.State() != module.StateConfigMerged {
		t.Fatalf("state = %s", m.State())
	}
	if m.Config().Int("port") != 8080 || m.Config().String("host") != "0.0.0.0" {
		t.Fatalf("config = %v", m.Config())
	}
	if _, ok := cfg["host"]; ok {
		t.Fatalf("descriptor config was mutated")
	}
}

func TestLoadPathLocatorUsesScripts(t *testing.T) {
	l, scripts := newLoader(t)
	if _, err := l.Load(module.Descriptor{Name: "job", Locator: "./modules/job"}); err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := l.Load(module.Descriptor{Name: "abs", Path: "/opt/abs.go"}); err != nil {
		t.Fatalf("load: %v", err)
	}
	want := []string{filepath.Join("/srv/app", "modules/job"), "/opt/abs.go"}
	if len(scripts.paths) != 2 || scripts.paths[0] != want[0] || scripts.paths[1] != want[1] {
		t.Fatalf("paths = %v, want %v", scripts.paths, want)
	}
}

func TestLoadErrors(t *testing.T) {
	l, scripts := newLoader(t)
	scripts.err = errors.New("syntax error")

	cases := []struct {
		name    string
		desc    module.Descriptor
		invalid bool
	}{
		{"unknown", module.Descriptor{Name: "a", Locator: "missing"}, false},
		{"panic", module.Descriptor{Name: "b", Locator: "explodes"}, false},
		{"script", module.Descriptor{Name: "c", Locator: "./broken.go"}, false},
		{"no name", module.Descriptor{Locator: "web"}, false},
		{"no start hook", module.Descriptor{Name: "d", Locator: "inert"}, true},
	}
	for _, tc := range cases {
		_, err := l.Load(tc.desc)
		if err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
		var loadErr *module.LoadError
		var invalid *module.InvalidModuleError
		if tc.invalid {
			if !errors.As(err, &invalid) {
				t.Fatalf("%s: err = %T, want InvalidModuleError", tc.name, err)
			}
			continue
		}
		if !errors.As(err, &loadErr) {
			t.Fatalf("%s: err = %T, want LoadError", tc.name, err)
		}
		if loadErr.Module != tc.desc.Name {
			t.Fatalf("%s: module = %q", tc.name, loadErr.Module)
		}
	}
}

func TestLoadAllRejectsDuplicates(t *testing.T) {
	l, _ := newLoader(t)
	modules, err := l.LoadAll([]module.Descriptor{
		{Name: "a", Locator: "web"},
		{Name: "b", Locator: "web"},
	})
	if err != nil || len(modules) != 2 {
		t.Fatalf("load all: %v %d", err, len(modules))
	}
	if _, err := l.LoadAll([]module.Descriptor{
		{Name: "a", Locator: "web"},
		{Name: "a", Locator: "web"},
	}); err == nil {
		t.Fatalf("expected duplicate error")
	}
}
