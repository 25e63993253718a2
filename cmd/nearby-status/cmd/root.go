package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/oshokin/nearby-handshake/internal/config"
	"github.com/oshokin/nearby-handshake/internal/service/status"
	"github.com/oshokin/nearby-handshake/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string
	// pollInterval between snapshot reads.
	pollInterval time.Duration
	// once prints a single snapshot and exits.
	once bool
	// asJSON switches the output to protobuf JSON.
	asJSON bool

	// rootCmd represents the base command for reading node snapshots.
	rootCmd = &cobra.Command{
		Use:   "nearby-status [node-address]",
		Short: "Print the proximity snapshot published by a node.",
		Long: `Connects to the presentation API of a running node and prints its snapshot:
debounce stage, nearest distance, connected peers and the last received peer name.

The node address is taken from the listen address in the configuration file
unless provided as argument (e.g., 127.0.0.1:7000).`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			var address string
			if len(args) > 0 {
				address = args[0]
			}

			options := &status.Options{
				ConfigPath:   configPath,
				Address:      address,
				PollInterval: pollInterval,
				Once:         once,
				JSON:         asJSON,
				Out:          cmd.OutOrStdout(),
			}

			return status.Run(ctx, options)
		},
	}
)

// Execute runs the nearby-status CLI and exits with non-zero status on error.
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
	rootCmd.Flags().DurationVarP(&pollInterval, "interval", "i", status.DefaultPollInterval, "interval between snapshot reads")
	rootCmd.Flags().BoolVarP(&once, "once", "o", false, "print a single snapshot and exit")
	rootCmd.Flags().BoolVar(&asJSON, "json", false, "print snapshots as JSON")
}
