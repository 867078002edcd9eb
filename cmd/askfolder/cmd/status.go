package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/askfolder/askfolder/internal/ui"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show index totals per namespace",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			printer := ui.NewPrinter(cmd.OutOrStdout())

			a, err := openApp(ctx)
			if err != nil {
				printer.PrintError(err)
				return err
			}
			defer a.Close()

			files, err := a.Store.ListFiles(ctx)
			if err != nil {
				return err
			}
			counts, err := a.Store.CountChunks(ctx)
			if err != nil {
				return err
			}

			var lastIndexed time.Time
			for _, f := range files {
				if f.IndexedAt.After(lastIndexed) {
					lastIndexed = f.IndexedAt
				}
			}

			printer.PrintStatus(len(files), counts, lastIndexed)
			return nil
		},
	}
}
