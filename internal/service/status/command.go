package status

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"google.golang.org/protobuf/encoding/protojson"

	api "github.com/oshokin/nearby-handshake/internal/api/grpc/proximity"
	"github.com/oshokin/nearby-handshake/internal/config"
	domain "github.com/oshokin/nearby-handshake/internal/domain/proximity"
	"github.com/oshokin/nearby-handshake/internal/logger"
	"github.com/oshokin/nearby-handshake/internal/service/common"
)

// Options controls the status polling behavior and configuration.
type Options struct {
	// ConfigPath specifies the path to the settings YAML file.
	ConfigPath string
	// Address provides an optional node address override.
	Address string
	// PollInterval defines the interval between snapshot reads.
	PollInterval time.Duration
	// Once prints a single snapshot and exits.
	Once bool
	// JSON prints snapshots in the protobuf JSON form of the presentation API.
	JSON bool
	// Out receives the rendered snapshots; defaults to stdout.
	Out io.Writer
}

// DefaultPollInterval defines the default interval between snapshot reads.
const DefaultPollInterval = time.Second

// errNoAddress is returned when neither an override nor a config address is available.
var errNoAddress = errors.New("no node address configured")

// Run polls the node snapshot until the context is canceled.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "nearby-status")

	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}

	if opts.Out == nil {
		opts.Out = os.Stdout
	}

	timeout := config.DefaultTimeout

	// The node address comes from the override or from the node's own settings.
	address := opts.Address
	if address == "" {
		cfg, err := config.Load(opts.ConfigPath)
		if err != nil {
			return fmt.Errorf("load configuration: %w", err)
		}

		address, err = dialAddress(cfg.ListenAddress)
		if err != nil {
			return err
		}

		timeout = cfg.Timeout
	}

	client, err := common.Dial(ctx, address, common.WithCallTimeout(timeout))
	if err != nil {
		return fmt.Errorf("dial node: %w", err)
	}

	// Ensure connection cleanup on function exit.
	defer func() {
		_ = client.Close()
	}()

	if opts.Once {
		return printSnapshot(ctx, client, opts)
	}

	logger.InfoKV(ctx, "Polling node snapshot", "address", address, "interval", opts.PollInterval.String())

	ticker := time.NewTicker(opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info(ctx, "Context canceled, exiting")
			return nil
		case <-ticker.C:
			if err := printSnapshot(ctx, client, opts); err != nil {
				logger.ErrorKV(ctx, "Read snapshot failed", "error", err)
			}
		}
	}
}

// printSnapshot reads one snapshot and writes it as a single line.
func printSnapshot(ctx context.Context, client *common.Client, opts *Options) error {
	snapshot, err := client.GetProximity(ctx)
	if err != nil {
		return err
	}

	line := formatSnapshot(snapshot)

	if opts.JSON {
		line, err = formatSnapshotJSON(snapshot)
		if err != nil {
			return err
		}
	}

	if _, err := fmt.Fprintln(opts.Out, line); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}

	return nil
}

// formatSnapshotJSON renders a snapshot the way the presentation API encodes it.
func formatSnapshotJSON(s *domain.Snapshot) (string, error) {
	message, err := api.ToStruct(s)
	if err != nil {
		return "", err
	}

	raw, err := protojson.Marshal(message)
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}

	return string(raw), nil
}

// formatSnapshot renders a snapshot as space separated key=value pairs.
func formatSnapshot(s *domain.Snapshot) string {
	nearest := "none"
	if s.Nearest != nil {
		nearest = strconv.FormatFloat(*s.Nearest, 'f', 3, 64)
	}

	peerName := s.PeerName
	if peerName == "" {
		peerName = "-"
	}

	fields := []string{
		"stage=" + s.Stage.String(),
		"in_range=" + strconv.FormatBool(s.InRange),
		"armed=" + strconv.FormatBool(s.Armed),
		"nearest=" + nearest,
		"connected_peers=" + strconv.Itoa(s.ConnectedPeers),
		"peer_name=" + strconv.Quote(peerName),
		"actions_fired=" + strconv.FormatUint(s.ActionsFired, 10),
	}

	if s.NearestPeer != "" {
		fields = append(fields, "nearest_peer="+string(s.NearestPeer))
	}

	return strings.Join(fields, " ")
}

// dialAddress turns a listen address into one a local client can dial.
// Wildcard and empty hosts are replaced with the loopback address.
func dialAddress(listenAddress string) (string, error) {
	if listenAddress == "" {
		return "", errNoAddress
	}

	host, port, err := net.SplitHostPort(listenAddress)
	if err != nil {
		return "", fmt.Errorf("invalid listen address format %q: %w", listenAddress, err)
	}

	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}

	return net.JoinHostPort(host, port), nil
}
