package module

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// RefSuffix marks configuration keys that name another module.
const RefSuffix = "Id"

// Config represents module-specific configuration (opaque to the runtime).
type Config map[string]any

// Clone returns a shallow copy. A nil config clones to an empty one.
func (c Config) Clone() Config {
	out := make(Config, len(c))
	for key, value := range c {
		out[key] = value
	}
	return out
}

// String returns the value at key when it is a string.
func (c Config) String(key string) string {
	if v, ok := c[key].(string); ok {
		return v
	}
	return ""
}

// Bool returns the value at key when it is a bool.
func (c Config) Bool(key string) bool {
	v, _ := c[key].(bool)
	return v
}

// Int returns the value at key for any integer or float encoding the
// manifest decoders produce.
func (c Config) Int(key string) int {
	switch v := c[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

// Duration parses the value at key as a duration string or a number of
// milliseconds.
func (c Config) Duration(key string) time.Duration {
	switch v := c[key].(type) {
	case time.Duration:
		return v
	case string:
		d, err := time.ParseDuration(v)
		if err == nil {
			return d
		}
	case int, int64, float64:
		return time.Duration(c.Int(key)) * time.Millisecond
	}
	return 0
}

// MergeDefaults sets every key of defaults that c does not define. Explicit
// values always win.
func (c Config) MergeDefaults(defaults Config) {
	for key, value := range defaults {
		if _, ok := c[key]; !ok {
			c[key] = value
		}
	}
}

// References returns property -> module name pairs declared through keys
// ending in RefSuffix with a non-empty string value.
func (c Config) References() map[string]string {
	refs := map[string]string{}
	for key, value := range c {
		if len(key) <= len(RefSuffix) || !strings.HasSuffix(key, RefSuffix) {
			continue
		}
		name, ok := value.(string)
		if !ok || strings.TrimSpace(name) == "" {
			continue
		}
		refs[strings.TrimSuffix(key, RefSuffix)] = name
	}
	return refs
}

// Descriptor is the static declaration of a module.
type Descriptor struct {
	Name    string `yaml:"name" toml:"name" json:"name"`
	Locator string `yaml:"locator" toml:"locator" json:"locator"`
	// Path is accepted as an alias for Locator.
	Path   string `yaml:"path,omitempty" toml:"path,omitempty" json:"path,omitempty"`
	Config Config `yaml:"config,omitempty" toml:"config,omitempty" json:"config,omitempty"`
	// Refs maps a property name to the module it should be bound to. Entries
	// here take precedence over "<property>Id" config keys.
	Refs map[string]string `yaml:"refs,omitempty" toml:"refs,omitempty" json:"refs,omitempty"`
}

// Normalized trims fields and folds Path into Locator.
func (d Descriptor) Normalized() Descriptor {
	d.Name = strings.TrimSpace(d.Name)
	d.Locator = strings.TrimSpace(d.Locator)
	d.Path = strings.TrimSpace(d.Path)
	if d.Locator == "" {
		d.Locator = d.Path
	}
	d.Path = ""
	return d
}

// Validate ensures the descriptor is well-formed.
func (d Descriptor) Validate() error {
	n := d.Normalized()
	if n.Name == "" {
		return fmt.Errorf("module: name is required")
	}
	if n.Locator == "" {
		return fmt.Errorf("module: locator is required for %s", n.Name)
	}
	for prop, target := range n.Refs {
		if strings.TrimSpace(prop) == "" {
			return fmt.Errorf("module: %s declares a reference with an empty property", n.Name)
		}
		if strings.TrimSpace(target) == "" {
			return fmt.Errorf("module: %s reference %q has no target", n.Name, prop)
		}
	}
	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
