package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kingrea/latticeboot/internal/app"
	"github.com/kingrea/latticeboot/internal/config"
	"github.com/kingrea/latticeboot/internal/loader"
	"github.com/kingrea/latticeboot/internal/logging"
	"github.com/kingrea/latticeboot/internal/tui"
	"github.com/kingrea/latticeboot/plugins"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Boot every module in the manifest and keep running",
	Long: `Boot every module in the manifest, then block until SIGINT or SIGTERM.

The process exits with status 1 if any module fails to load, set up or start
within the module start timeout.`,
	RunE: runRun,
}

var (
	runTUI     bool
	runTimeout time.Duration
	runEnv     string
)

func init() {
	runCmd.Flags().BoolVar(&runTUI, "tui", false, "show boot progress in the terminal")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 0, "override module_start_timeout")
	runCmd.Flags().StringVar(&runEnv, "env", "", "override the environment name")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, _ []string) error {
	manifest, err := config.LoadManifest(manifestPath(cmd))
	if err != nil {
		return err
	}
	opts := manifest.Options
	if cmd.Flags().Changed("env") {
		opts.Env = runEnv
	}
	if cmd.Flags().Changed("timeout") {
		opts.ModuleStartTimeout = runTimeout
	}

	logCfg := logging.FromOptions(opts)
	if runTUI {
		logCfg.Output = io.Discard
	}
	logger, err := logging.New(logCfg)
	if err != nil {
		return err
	}
	defer logger.Close()

	resolver := plugins.NewScriptResolver()
	resolver.Stdout = logger.Writer("script")
	resolver.Stderr = logger.Writer("script")
	reg, err := packages(opts, resolver)
	if err != nil {
		return err
	}

	exitCode := 0
	a := app.New(opts,
		app.WithLoader(&loader.Loader{RootPath: opts.RootPath, Packages: reg, Scripts: resolver}),
		app.WithLogger(logger.Logger),
		app.WithExit(func(code int) { exitCode = code }),
	)
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	if runTUI {
		program := tea.NewProgram(tui.NewMonitor(opts.ID),
			tea.WithContext(gctx),
			tea.WithOutput(cmd.OutOrStdout()),
		)
		sub := tui.Attach(program, a.Broker())
		defer sub.Cancel()
		g.Go(func() error {
			_, err := program.Run()
			if errors.Is(err, tea.ErrProgramKilled) {
				return nil
			}
			return err
		})
	}
	g.Go(func() error {
		return a.Main(gctx, manifest.Modules)
	})
	if err := g.Wait(); err != nil {
		if exitCode != 0 {
			return fmt.Errorf("boot failed: %w", err)
		}
		return err
	}

	select {
	case <-ctx.Done():
	case <-a.Done():
	}
	a.Logger().Info("Shutting down...")
	_ = a.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	shutdownErr := shutdownModules(shutdownCtx, a.Modules(), a.Logger())
	if err := a.Err(); err != nil {
		return err
	}
	return shutdownErr
}
