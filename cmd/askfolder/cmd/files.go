package cmd

import (
	"github.com/spf13/cobra"

	"github.com/askfolder/askfolder/internal/ui"
)

func newFilesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "files",
		Short: "List watched files and their index state",
		Long: `Compare the watched folder against the index without changing anything.

Each file is INGESTED (up to date), NEW (never indexed), STALE (changed
since indexing), or MISSING (indexed but gone from disk).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			printer := ui.NewPrinter(cmd.OutOrStdout())

			a, err := openApp(cmd.Context())
			if err != nil {
				printer.PrintError(err)
				return err
			}
			defer a.Close()

			statuses, err := a.Scheduler.Statuses(cmd.Context())
			if err != nil {
				printer.PrintError(err)
				return err
			}
			printer.PrintFiles(statuses)
			return nil
		},
	}
}
