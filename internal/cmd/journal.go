package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kingrea/latticeboot/internal/config"
	"github.com/kingrea/latticeboot/internal/logbook"
	"github.com/kingrea/latticeboot/internal/modules/journal"
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Print the tail of the startup journal",
	Args:  cobra.NoArgs,
	RunE:  runJournal,
}

var (
	journalPath string
	journalTail int
)

func init() {
	journalCmd.Flags().StringVar(&journalPath, "path", "", "journal file (default is the logbook path under the manifest root)")
	journalCmd.Flags().IntVarP(&journalTail, "tail", "n", 20, "number of lines to print")
	rootCmd.AddCommand(journalCmd)
}

func runJournal(cmd *cobra.Command, _ []string) error {
	path := journalPath
	if path == "" {
		opts, err := config.LoadOptions(optionalManifest(cmd))
		if err != nil {
			return err
		}
		path = opts.PathTo(journal.DefaultPath)
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("journal: %w", err)
	}
	book, err := logbook.New(path)
	if err != nil {
		return err
	}
	lines, total := book.Tail(journalTail)
	out := cmd.OutOrStdout()
	for _, line := range lines {
		fmt.Fprintln(out, line)
	}
	if total > len(lines) {
		fmt.Fprintf(out, "(%d of %d lines)\n", len(lines), total)
	}
	return nil
}

// optionalManifest returns the manifest path when the file exists.
func optionalManifest(cmd *cobra.Command) string {
	path := manifestPath(cmd)
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}
