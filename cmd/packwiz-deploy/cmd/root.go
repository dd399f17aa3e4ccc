package cmd

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/packwiz-deploy/internal/config"
	"github.com/oshokin/packwiz-deploy/internal/domain/deploy"
	"github.com/oshokin/packwiz-deploy/internal/logger"
	"github.com/oshokin/packwiz-deploy/internal/report"
	"github.com/oshokin/packwiz-deploy/internal/service/deployer"
	"github.com/oshokin/packwiz-deploy/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string
	// rootDir is the project root holding pack.toml.
	rootDir string
	// logLevel is the minimum level written to stderr.
	logLevel string
	// portNumber is the packwiz serve port, 0 picks one.
	portNumber int
	// skipDownload reuses an already downloaded bootstrap installer.
	skipDownload bool
	// keepServing leaves packwiz serve running after success.
	keepServing bool
	// installDir is the deployment output.
	installDir string
	// reported is set once the summary, which includes the error, was printed.
	reported bool

	// errBadPort is returned for --port values outside 0..65535.
	errBadPort = errors.New("port must be between 0 and 65535")
	// errBadLogLevel is returned for unknown --log-level values.
	errBadLogLevel = errors.New("unknown log level")

	// rootCmd represents the base command for running a deployment.
	rootCmd = &cobra.Command{
		Use:   "packwiz-deploy",
		Short: "Build a Minecraft modpack server with packwiz.",
		Long: `Deploys the modpack in the project root into a server directory.

The tool serves the pack with "packwiz serve", runs packwiz-installer-bootstrap
against it and copies the "server" overrides directory on top of the result.
The package server is stopped when the run ends unless --keep-serving is set
and the run succeeded; use "packwiz-deploy stop" to stop it later.
Mods excluded from the CurseForge API are listed with their download pages.`,
		Args:              cobra.NoArgs,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: applyLogLevel,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if portNumber < 0 || portNumber > math.MaxUint16 {
				return fmt.Errorf("%d: %w", portNumber, errBadPort)
			}

			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			options := &deployer.Options{
				ConfigPath: configPath,
				Request: deploy.Request{
					RootDir:      rootDir,
					InstallDir:   installDir,
					Port:         uint16(portNumber), //nolint:gosec // Range checked above.
					SkipDownload: skipDownload,
					KeepServing:  keepServing,
				},
			}

			result, err := deployer.Run(ctx, options)

			_, _ = fmt.Fprint(cmd.OutOrStdout(), report.Render(result, err))
			reported = true

			return err
		},
	}
)

// Execute runs the packwiz-deploy CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		if !reported {
			_, _ = fmt.Fprintln(os.Stderr, "Error:", err)
		}

		os.Exit(1)
	}
}

// applyLogLevel configures the global logger from --log-level.
func applyLogLevel(_ *cobra.Command, _ []string) error {
	level, ok := logger.ParseLogLevel(logLevel)
	if !ok {
		return fmt.Errorf("%q: %w", logLevel, errBadLogLevel)
	}

	logger.SetLevel(level)

	return nil
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	rootCmd.PersistentFlags().
		StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	rootCmd.PersistentFlags().StringVarP(&rootDir, "root", "r", ".", "project root holding pack.toml")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn or error")

	rootCmd.Flags().IntVarP(&portNumber, "port", "p", 0, "packwiz serve port, 0 picks a free one")
	rootCmd.Flags().BoolVar(&skipDownload, "skip-download", false, "reuse the downloaded bootstrap installer")
	rootCmd.Flags().BoolVar(&keepServing, "keep-serving", false, "leave packwiz serve running after success")
	rootCmd.Flags().
		StringVarP(&installDir, "install-dir", "o", deploy.DefaultInstallDir, "directory the server is installed into")
}
