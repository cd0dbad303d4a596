package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cleared-dev/tally/internal/sweep"
)

func newSweepCommand(opts *globalOptions) *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Import every export waiting in the import directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd, opts)
			if err != nil {
				return err
			}
			return runSweep(cmd, a, watch)
		},
	}

	cmd.Flags().BoolVar(&watch, "watch", false, "keep sweeping on the configured schedule until interrupted")

	return cmd
}

func runSweep(cmd *cobra.Command, a *app, watch bool) error {
	ctx := cmd.Context()
	s, err := a.openStore(ctx)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer s.Close()

	sw := sweep.New(a.root, a.importDir(), a.coordinator(s), a.logger)

	sum, err := sw.Run(ctx)
	fmt.Fprintf(cmd.OutOrStdout(), "Swept %d files: %d imported, %d duplicates, %d failed (%d new transactions)\n",
		sum.Files, sum.Imported, sum.Duplicates, sum.Failed, sum.Transactions)
	if err != nil {
		return err
	}
	if !watch {
		return nil
	}

	loc, err := a.cfg.Location()
	if err != nil {
		return err
	}
	return sw.Schedule(ctx, a.cfg.Import.Schedule, loc)
}
