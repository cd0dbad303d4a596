package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/cleared-dev/tally/internal/importlog"
	"github.com/cleared-dev/tally/internal/ingest"
)

func newImportCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>...",
		Short: "Import export files",
		Long: "Import one or more bank or card export files. The institution is " +
			"detected from each file's name.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd, opts)
			if err != nil {
				return err
			}
			return runImport(cmd, a, args)
		},
	}
}

func runImport(cmd *cobra.Command, a *app, paths []string) error {
	ctx := cmd.Context()
	s, err := a.openStore(ctx)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer s.Close()

	coord := a.coordinator(s)
	out := cmd.OutOrStdout()
	failed := 0
	for _, path := range paths {
		name := filepath.Base(path)
		content, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintf(out, "%s: could not read file: %v\n", name, err)
			failed++
			continue
		}

		res, err := coord.ImportFile(ctx, name, content)
		fmt.Fprintf(out, "%s: %s\n", name, res.Message)
		if res.SkippedCount > 0 {
			fmt.Fprintf(out, "%s: %d rows skipped (see the warnings logged above)\n", name, res.SkippedCount)
		}
		if err != nil && ingest.KindOf(err) != ingest.KindDuplicateFile {
			failed++
		}

		entry := importlog.NewEntry(time.Now(), "cli", name, res, err)
		if err := importlog.Append(a.root, []importlog.Entry{entry}); err != nil {
			a.logger.Warn("writing import log", "error", err)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d files failed to import", failed, len(paths))
	}
	return nil
}
