// Package config loads process-wide options and the module manifest.
//
// Options come from the manifest's "options" section and LATTICEBOOT_*
// environment variables. Module descriptors are decoded separately so that
// config keys keep their case.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	// EnvPrefix prefixes every environment override.
	EnvPrefix = "LATTICEBOOT"

	// StateDir holds runtime files (logs, journals) under the root path.
	StateDir = ".latticeboot"

	DefaultID                 = "nonameapp"
	DefaultEnv                = "development"
	DefaultModuleStartTimeout = 2000 * time.Millisecond
	DefaultLogLevel           = "info"
	DefaultLogFormat          = "json"
	DefaultMetricsNamespace   = "latticeboot"
)

// Options are the process-wide settings shared by every module.
type Options struct {
	ID       string `mapstructure:"id"`
	Env      string `mapstructure:"env"`
	RootPath string `mapstructure:"root_path"`
	// ModuleStartTimeout bounds each asynchronous start.
	ModuleStartTimeout time.Duration `mapstructure:"module_start_timeout"`
	// StartTime is when the process began booting; zero means "now" at
	// application construction.
	StartTime        time.Time `mapstructure:"-"`
	LogLevel         string    `mapstructure:"log_level"`
	LogFormat        string    `mapstructure:"log_format"`
	LogFile          string    `mapstructure:"log_file"`
	MetricsNamespace string    `mapstructure:"metrics_namespace"`
	// PluginDir is scanned for script modules registered under bare
	// locators. Relative values resolve against RootPath.
	PluginDir string `mapstructure:"plugin_dir"`
}

// DefaultOptions returns options with every default applied.
func DefaultOptions() Options {
	return Options{}.WithDefaults()
}

// WithDefaults fills every zero field with its default.
func (o Options) WithDefaults() Options {
	if strings.TrimSpace(o.ID) == "" {
		o.ID = DefaultID
	}
	if strings.TrimSpace(o.Env) == "" {
		o.Env = DefaultEnv
	}
	if strings.TrimSpace(o.RootPath) == "" {
		if wd, err := os.Getwd(); err == nil {
			o.RootPath = wd
		} else {
			o.RootPath = "."
		}
	}
	if o.ModuleStartTimeout <= 0 {
		o.ModuleStartTimeout = DefaultModuleStartTimeout
	}
	if o.StartTime.IsZero() {
		o.StartTime = time.Now()
	}
	if o.LogLevel == "" {
		o.LogLevel = DefaultLogLevel
	}
	if o.LogFormat == "" {
		o.LogFormat = DefaultLogFormat
	}
	if o.MetricsNamespace == "" {
		o.MetricsNamespace = DefaultMetricsNamespace
	}
	return o
}

// PathTo joins parts onto the root path. An absolute first part is returned
// as is.
func (o Options) PathTo(parts ...string) string {
	if len(parts) > 0 && filepath.IsAbs(parts[0]) {
		return filepath.Join(parts...)
	}
	return filepath.Join(append([]string{o.RootPath}, parts...)...)
}

// StatePath returns a path inside the runtime state directory.
func (o Options) StatePath(parts ...string) string {
	return o.PathTo(append([]string{StateDir}, parts...)...)
}

var optionKeys = []string{
	"id",
	"env",
	"root_path",
	"module_start_timeout",
	"log_level",
	"log_format",
	"log_file",
	"metrics_namespace",
	"plugin_dir",
}

// newViper prepares a viper instance for the options section of path. An
// empty path reads the environment only.
func newViper(path string) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, key := range optionKeys {
		if err := v.BindEnv("options."+key, EnvPrefix+"_"+strings.ToUpper(key)); err != nil {
			return nil, fmt.Errorf("config: bind %s: %w", key, err)
		}
	}
	if path == "" {
		return v, nil
	}
	v.SetConfigFile(path)
	if ext := manifestFormat(path); ext != "" {
		v.SetConfigType(ext)
	}
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read options from %s: %w", path, err)
	}
	return v, nil
}

// LoadOptions reads options from the manifest at path (may be empty) and the
// environment, then applies defaults. A relative root_path resolves against
// the manifest's directory.
func LoadOptions(path string) (Options, error) {
	v, err := newViper(path)
	if err != nil {
		return Options{}, err
	}
	opts := Options{
		ID:               v.GetString("options.id"),
		Env:              v.GetString("options.env"),
		RootPath:         v.GetString("options.root_path"),
		LogLevel:         v.GetString("options.log_level"),
		LogFormat:        v.GetString("options.log_format"),
		LogFile:          v.GetString("options.log_file"),
		MetricsNamespace: v.GetString("options.metrics_namespace"),
		PluginDir:        v.GetString("options.plugin_dir"),
	}
	timeout, err := parseMillis(v.Get("options.module_start_timeout"))
	if err != nil {
		return Options{}, fmt.Errorf("config: module_start_timeout: %w", err)
	}
	opts.ModuleStartTimeout = timeout
	if opts.RootPath != "" && !filepath.IsAbs(opts.RootPath) && path != "" {
		opts.RootPath = filepath.Join(filepath.Dir(path), opts.RootPath)
	}
	return opts.WithDefaults(), nil
}

// parseMillis accepts a duration string ("1.5s") or a number of
// milliseconds, as a number or numeric string.
func parseMillis(raw any) (time.Duration, error) {
	switch v := raw.(type) {
	case nil:
		return 0, nil
	case time.Duration:
		return v, nil
	case int:
		return time.Duration(v) * time.Millisecond, nil
	case int64:
		return time.Duration(v) * time.Millisecond, nil
	case float64:
		return time.Duration(v * float64(time.Millisecond)), nil
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return 0, nil
		}
		if ms, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
			return time.Duration(ms) * time.Millisecond, nil
		}
		return time.ParseDuration(trimmed)
	}
	return 0, fmt.Errorf("unsupported value %v (%T)", raw, raw)
}
