package plugins

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/kingrea/latticeboot/internal/module"
)

// RegisterScriptDir registers every script found directly under dir as a bare
// locator named after the file (without .go) or subdirectory. Scripts are
// interpreted lazily, each time the locator is resolved. A missing directory
// registers nothing.
func RegisterScriptDir(reg *module.Registry, resolver *ScriptResolver, dir string) ([]string, error) {
	if reg == nil || resolver == nil {
		return nil, nil
	}
	trimmed := strings.TrimSpace(dir)
	if trimmed == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(trimmed)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("plugin: read %s: %w", trimmed, err)
	}
	var locators []string
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") {
			continue
		}
		locator := name
		if !entry.IsDir() {
			if filepath.Ext(name) != ".go" || strings.HasSuffix(name, "_test.go") {
				continue
			}
			locator = strings.TrimSuffix(name, ".go")
		}
		path := filepath.Join(trimmed, name)
		if err := reg.Register(locator, func() (module.Implementation, error) {
			return resolver.Resolve(path)
		}); err != nil {
			return nil, fmt.Errorf("plugin: register %s from %s: %w", locator, path, err)
		}
		locators = append(locators, locator)
	}
	return locators, nil
}
