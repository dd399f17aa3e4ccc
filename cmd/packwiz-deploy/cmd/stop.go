package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/packwiz-deploy/internal/report"
	"github.com/oshokin/packwiz-deploy/internal/service/stopper"
)

// stopCmd stops a package server left running by --keep-serving.
var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop a packwiz serve process left running by --keep-serving.",
	Long: `Reads the session recorded in the tool directory, verifies the recorded
process is still a running packwiz and kills it. A missing session is not an error.`,
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
		defer stop()

		result, err := stopper.Run(ctx, &stopper.Options{
			ConfigPath: configPath,
			RootDir:    rootDir,
		})
		if err != nil {
			return err
		}

		_, _ = fmt.Fprint(cmd.OutOrStdout(), report.RenderStop(result))

		return nil
	},
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	rootCmd.AddCommand(stopCmd)
}
