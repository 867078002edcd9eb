package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/askfolder/askfolder/internal/ui"
	"github.com/askfolder/askfolder/internal/watcher"
)

func newWatchCmd() *cobra.Command {
	var debounce time.Duration
	var noEvents bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch the folder and keep the index fresh",
		Long: `Run indexing cycles continuously: once at startup, then on every
interval tick, and immediately after filesystem change bursts.

Stops on Ctrl-C. Only one watch process may own a data directory.

Examples:
  askfolder watch
  askfolder watch --debounce 2s
  askfolder watch --no-events   # interval polling only`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			printer := ui.NewPrinter(cmd.OutOrStdout())

			a, err := openApp(cmd.Context())
			if err != nil {
				printer.PrintError(err)
				return err
			}
			defer a.Close()

			interval, err := a.Config.IntervalDuration()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Watching %s (interval %s), Ctrl-C to stop\n",
				a.Config.Watch.Root, interval)

			g, ctx := errgroup.WithContext(cmd.Context())
			g.Go(func() error {
				return a.Scheduler.Run(ctx)
			})
			if !noEvents {
				w := watcher.New(a.Config.Watch.Root, debounce,
					a.Scheduler.TriggerNow, a.logger, ".askfolder")
				g.Go(func() error {
					return w.Run(ctx)
				})
			}

			err = g.Wait()
			if errors.Is(err, context.Canceled) {
				fmt.Fprintln(cmd.OutOrStdout(), "Stopped.")
				return nil
			}
			if err != nil {
				printer.PrintError(err)
			}
			return err
		},
	}

	cmd.Flags().DurationVar(&debounce, "debounce", watcher.DefaultDebounceWindow,
		"Quiet period after a change burst before triggering a cycle")
	cmd.Flags().BoolVar(&noEvents, "no-events", false,
		"Disable filesystem event triggers, rely on the interval only")

	return cmd
}
