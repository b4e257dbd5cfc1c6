package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kingrea/latticeboot/internal/config"
	"github.com/kingrea/latticeboot/internal/loader"
	"github.com/kingrea/latticeboot/plugins"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check that every module in the manifest can be loaded",
	Long: `Decode the manifest, then resolve and attach every module through the
loader without running any set-up or start hooks.`,
	Args: cobra.NoArgs,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, _ []string) error {
	manifest, err := config.LoadManifest(manifestPath(cmd))
	if err != nil {
		return err
	}
	opts := manifest.Options
	resolver := plugins.NewScriptResolver()
	reg, err := packages(opts, resolver)
	if err != nil {
		return err
	}
	l := &loader.Loader{RootPath: opts.RootPath, Packages: reg, Scripts: resolver}
	loaded, err := l.LoadAll(manifest.Modules)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s (%s): %d modules\n", opts.ID, opts.Env, len(loaded))
	for _, m := range loaded {
		fmt.Fprintf(out, "  %-20s %s\n", m.Name(), m.Locator())
	}
	return nil
}
