package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/askfolder/askfolder/internal/config"
	"github.com/askfolder/askfolder/internal/embed"
	"github.com/askfolder/askfolder/internal/preflight"
)

func newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check the environment before indexing",
		Long: `Validate the configuration, the watched folder, the data directory,
free disk space, and provider reachability. Unreachable providers are
warnings: the indexer retries them every cycle.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if dataDir != "" {
				cfg.Storage.DataDir = dataDir
			}

			// Broken providers are reported by the checks, not fatal here.
			embedders, err := embed.BuildAll(ctx, cfg.Providers, slog.Default())
			if err != nil {
				embedders = nil
			}
			defer func() {
				for _, e := range embedders {
					_ = e.Close()
				}
			}()

			checker := preflight.New(preflight.WithOutput(cmd.OutOrStdout()))
			results := checker.RunAll(ctx, cfg, embedders)
			checker.PrintResults(results)

			if checker.HasCriticalFailures(results) {
				return fmt.Errorf("environment is not ready")
			}
			return nil
		},
	}
}
