package node

import (
	"context"
	"errors"
	"fmt"

	"github.com/oshokin/nearby-handshake/internal/config"
	"github.com/oshokin/nearby-handshake/internal/logger"
)

// Options controls the nearby-node process and configuration.
type Options struct {
	// ConfigPath specifies the path to settings YAML file.
	ConfigPath string
	// ListenAddress provides an optional listen address override.
	ListenAddress string
	// Peers replaces the configured peer addresses when not empty.
	Peers []string
	// LogLevel overrides the configured log level when set.
	LogLevel string
}

// ErrUnknownLogLevel indicates a log level that logger.ParseLogLevel rejects.
var ErrUnknownLogLevel = errors.New("unknown log level")

// Run starts a node and blocks until context is canceled or the node fails.
// Loads configuration first, then applies command line overrides.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "nearby-node")

	// Load configuration first to get node settings.
	settings, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	applyOverrides(settings, opts)

	// Apply the log level before anything else logs.
	level, ok := logger.ParseLogLevel(settings.LogLevel)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownLogLevel, settings.LogLevel)
	}

	logger.SetLevel(level)

	n, err := New(ctx, settings)
	if err != nil {
		return fmt.Errorf("initialise node: %w", err)
	}

	return n.Run(ctx)
}

// applyOverrides copies non-empty command line values over the loaded settings.
func applyOverrides(settings *config.Config, opts *Options) {
	if opts.ListenAddress != "" {
		settings.ListenAddress = opts.ListenAddress
	}

	if len(opts.Peers) > 0 {
		settings.Peers = opts.Peers
	}

	if opts.LogLevel != "" {
		settings.LogLevel = opts.LogLevel
	}
}
