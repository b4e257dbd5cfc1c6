// Package cmd wires the latticeboot command line.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/kingrea/latticeboot/internal/config"
	"github.com/kingrea/latticeboot/internal/module"
	"github.com/kingrea/latticeboot/internal/modules"
	"github.com/kingrea/latticeboot/plugins"
)

var rootCmd = &cobra.Command{
	Use:   "latticeboot",
	Short: "Boot an application from a module manifest",
	Long: `latticeboot reads a manifest of module descriptors, loads each module,
runs every set-up hook in declaration order and then starts the modules one
at a time, waiting for each to report ready before moving on.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringP("manifest", "m", "main.yaml", "path to the module manifest (yaml, json or toml)")
}

func manifestPath(cmd *cobra.Command) string {
	path, _ := cmd.Flags().GetString("manifest")
	return path
}

// packages builds the package registry for opts: the builtin modules plus
// every script found in the plugin directory.
func packages(opts config.Options, resolver *plugins.ScriptResolver) (*module.Registry, error) {
	reg := module.NewRegistry()
	modules.RegisterBuiltins(reg, opts)
	if opts.PluginDir != "" {
		if _, err := plugins.RegisterScriptDir(reg, resolver, opts.PathTo(opts.PluginDir)); err != nil {
			return nil, err
		}
	}
	return reg, nil
}
