package cmd

import (
	"github.com/spf13/cobra"

	apperrors "github.com/askfolder/askfolder/internal/errors"
	"github.com/askfolder/askfolder/internal/indexer"
	"github.com/askfolder/askfolder/internal/ui"
)

func newIngestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest [path]",
		Short: "Run one indexing cycle over the watched folder",
		Long: `Walk the watched folder once, index new and changed files, and remove
deleted ones. Unchanged files are skipped by fingerprint.

With a path argument the cycle is limited to that file or subtree. The path
must lie inside the watched folder; relative paths are resolved against it.

Examples:
  askfolder ingest
  askfolder ingest manuals/printer.pdf
  askfolder ingest --config /docs/.askfolder.yaml`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			printer := ui.NewPrinter(cmd.OutOrStdout())

			a, err := openApp(ctx)
			if err != nil {
				printer.PrintError(err)
				return err
			}
			defer a.Close()

			// An active watch process owns the data directory.
			guard := indexer.NewGuard(a.Config.LockPath())
			acquired, err := guard.TryLock()
			if err != nil {
				return err
			}
			if !acquired {
				err := apperrors.ConfigError("another askfolder process is indexing this folder", nil).
					WithSuggestion("a running `askfolder watch` picks changes up on its own")
				printer.PrintError(err)
				return err
			}
			defer func() { _ = guard.Unlock() }()

			var report *indexer.CycleReport
			if len(args) == 1 {
				report, err = a.Scheduler.RunCycleFor(ctx, args[0])
			} else {
				report, err = a.Scheduler.RunCycle(ctx)
			}
			if err != nil {
				printer.PrintError(err)
				return err
			}
			printer.PrintReport(report)
			return nil
		},
	}
}
