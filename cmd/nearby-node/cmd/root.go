package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/nearby-handshake/internal/config"
	"github.com/oshokin/nearby-handshake/internal/service/node"
	"github.com/oshokin/nearby-handshake/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string
	// peers overrides the configured peer addresses.
	peers []string
	// logLevel overrides the configured log level.
	logLevel string

	// rootCmd represents the base command for running a node.
	rootCmd = &cobra.Command{
		Use:   "nearby-node [listen-address]",
		Short: "Run a proximity node and exchange names with nearby peers.",
		Long: `Starts a proximity node that links to the configured peers over gRPC,
ranges against every connected peer and sends its display name to the nearest
one once it stays within the threshold distance for the hold duration.

The listen address can be provided as argument to override config (e.g., 127.0.0.1:7000).
The same address serves the presentation API read by nearby-status.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			// Use listen address argument if provided, otherwise rely on config.
			var listenAddress string
			if len(args) > 0 {
				listenAddress = args[0]
			}

			options := &node.Options{
				ConfigPath:    configPath,
				ListenAddress: listenAddress,
				Peers:         peers,
				LogLevel:      logLevel,
			}

			return node.Run(ctx, options)
		},
	}
)

// Execute runs the nearby-node CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	rootCmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	rootCmd.Flags().StringSliceVarP(&peers, "peer", "p", nil, "peer address to browse, repeatable (overrides config)")
	rootCmd.Flags().StringVarP(&logLevel, "log-level", "l", "", "log level: debug, info, warn, error (overrides config)")
}
