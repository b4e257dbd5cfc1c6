package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/kingrea/latticeboot/internal/module"
)

// Manifest is the on-disk declaration of an application: its options and the
// ordered module list.
type Manifest struct {
	Path    string              `yaml:"-" toml:"-"`
	Options Options             `yaml:"-" toml:"-"`
	Modules []module.Descriptor `yaml:"modules" toml:"modules"`
}

// LoadManifest reads the manifest at path. YAML, JSON and TOML are accepted,
// picked by extension.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	manifest, err := ParseManifest(data, manifestFormat(path))
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	opts, err := LoadOptions(path)
	if err != nil {
		return nil, err
	}
	manifest.Path = filepath.Clean(path)
	manifest.Options = opts
	return manifest, nil
}

// ParseManifest decodes the module list from data. format is "toml" or
// anything else for YAML (which also covers JSON).
func ParseManifest(data []byte, format string) (*Manifest, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("config: manifest is empty")
	}
	var manifest Manifest
	switch format {
	case "toml":
		if _, err := toml.Decode(string(data), &manifest); err != nil {
			return nil, fmt.Errorf("config: decode toml: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &manifest); err != nil {
			return nil, fmt.Errorf("config: decode manifest: %w", err)
		}
	}
	for i, d := range manifest.Modules {
		manifest.Modules[i] = d.Normalized()
	}
	if err := manifest.Validate(); err != nil {
		return nil, err
	}
	return &manifest, nil
}

// Validate checks that every descriptor is well-formed and names are unique.
func (m *Manifest) Validate() error {
	seen := make(map[string]int, len(m.Modules))
	for i, d := range m.Modules {
		if err := d.Validate(); err != nil {
			return fmt.Errorf("config: modules[%d]: %w", i, err)
		}
		name := d.Normalized().Name
		if prev, dup := seen[name]; dup {
			return fmt.Errorf("config: modules[%d]: duplicate module name %s (first declared at modules[%d])", i, name, prev)
		}
		seen[name] = i
	}
	return nil
}

// Names returns the declared module names in order.
func (m *Manifest) Names() []string {
	names := make([]string, len(m.Modules))
	for i, d := range m.Modules {
		names[i] = d.Name
	}
	return names
}

func manifestFormat(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return "toml"
	case ".json":
		return "json"
	case ".yaml", ".yml":
		return "yaml"
	}
	return ""
}
