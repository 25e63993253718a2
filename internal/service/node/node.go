package node

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/google/uuid"
	grpcprometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	api "github.com/oshokin/nearby-handshake/internal/api/grpc/proximity"
	"github.com/oshokin/nearby-handshake/internal/config"
	domain "github.com/oshokin/nearby-handshake/internal/domain/proximity"
	"github.com/oshokin/nearby-handshake/internal/logger"
	"github.com/oshokin/nearby-handshake/internal/proximity"
	"github.com/oshokin/nearby-handshake/internal/ranging/sim"
	"github.com/oshokin/nearby-handshake/internal/transport/grpclink"
	"github.com/oshokin/nearby-handshake/internal/version"
)

// Node is a fully wired proximity node.
type Node struct {
	cfg *config.Config
	id  domain.PeerID

	ranger      *sim.Simulator
	transport   *grpclink.Transport
	coordinator *proximity.Coordinator

	server   *grpc.Server
	listener net.Listener

	metricsServer   *http.Server
	metricsListener net.Listener
}

// New builds a node from validated settings and binds its listeners.
func New(ctx context.Context, cfg *config.Config) (*Node, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate settings: %w", err)
	}

	// Peer identifiers only need to be unique for the session.
	id := domain.PeerID(uuid.NewString())

	queue := proximity.NewQueue(proximity.DefaultQueueCapacity)

	ranger := sim.New(ctx, queue, sim.Options{
		Interval:      cfg.Ranging.Interval,
		StartDistance: cfg.Ranging.StartDistance,
		MinDistance:   cfg.Ranging.MinDistance,
		Approach:      cfg.Ranging.Approach,
		Jitter:        cfg.Ranging.Jitter,
	})

	transport := grpclink.New(id, queue, grpclink.Options{
		RetryInterval: cfg.RetryInterval,
	})

	serverMetrics := grpcprometheus.NewServerMetrics()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		serverMetrics,
	)

	coordinator, err := proximity.New(queue, transport, ranger, proximity.Options{
		Name:             cfg.NodeName,
		Threshold:        cfg.Threshold,
		Hold:             cfg.Hold,
		Tick:             cfg.Tick,
		SampleTTL:        cfg.SampleTTL,
		DepartedCapacity: cfg.DepartedCapacity,
		Registerer:       registry,
	})
	if err != nil {
		return nil, multierr.Combine(fmt.Errorf("create coordinator: %w", err), transport.Close(), ranger.Close())
	}

	// Setup TCP listener shared by the peer link and the presentation API.
	lc := net.ListenConfig{}

	listener, err := lc.Listen(ctx, "tcp", cfg.ListenAddress)
	if err != nil {
		return nil, multierr.Combine(
			fmt.Errorf("listen on %s: %w", cfg.ListenAddress, err), transport.Close(), ranger.Close())
	}

	server := grpc.NewServer(
		grpc.ChainUnaryInterceptor(serverMetrics.UnaryServerInterceptor()),
		grpc.ChainStreamInterceptor(serverMetrics.StreamServerInterceptor()),
	)
	transport.Advertise(server)
	api.Register(server, api.NewServer(coordinator))

	// Export zero-valued series for every registered method.
	serverMetrics.InitializeMetrics(server)

	n := &Node{
		cfg:         cfg,
		id:          id,
		ranger:      ranger,
		transport:   transport,
		coordinator: coordinator,
		server:      server,
		listener:    listener,
	}

	if cfg.MetricsAddress != "" {
		metricsListener, err := lc.Listen(ctx, "tcp", cfg.MetricsAddress)
		if err != nil {
			return nil, multierr.Combine(
				fmt.Errorf("listen on %s: %w", cfg.MetricsAddress, err),
				listener.Close(), transport.Close(), ranger.Close())
		}

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

		n.metricsListener = metricsListener
		n.metricsServer = &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: cfg.Timeout,
		}
	}

	return n, nil
}

// ID returns the session peer identifier of the node.
func (n *Node) ID() domain.PeerID {
	return n.id
}

// Addr returns the bound gRPC address.
func (n *Node) Addr() net.Addr {
	return n.listener.Addr()
}

// MetricsAddr returns the bound metrics address, or nil when metrics are disabled.
func (n *Node) MetricsAddr() net.Addr {
	if n.metricsListener == nil {
		return nil
	}

	return n.metricsListener.Addr()
}

// Snapshot returns the latest published snapshot.
func (n *Node) Snapshot() *domain.Snapshot {
	return n.coordinator.Snapshot()
}

// Run serves until ctx is canceled or a component fails, then shuts everything down.
func (n *Node) Run(ctx context.Context) error {
	ctx = logger.WithKV(ctx, "peer_id", n.id)

	logger.InfoKV(ctx, "Node listening",
		"listen_address", n.Addr().String(),
		"name", n.cfg.NodeName,
		"peers", len(n.cfg.Peers),
		"version", version.Short())

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return n.coordinator.Run(gctx)
	})

	g.Go(func() error {
		if err := n.server.Serve(n.listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("serve gRPC: %w", err)
		}

		return nil
	})

	if n.metricsServer != nil {
		logger.InfoKV(ctx, "Metrics listening", "metrics_address", n.MetricsAddr().String())

		g.Go(func() error {
			if err := n.metricsServer.Serve(n.metricsListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("serve metrics: %w", err)
			}

			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()

		return n.shutdown(ctx)
	})

	n.transport.Browse(gctx, n.cfg.Peers)

	err := g.Wait()

	logger.Info(ctx, "Node stopped")

	return multierr.Append(err, n.ranger.Close())
}

// shutdown closes the peer links first so that GracefulStop does not wait on them.
func (n *Node) shutdown(ctx context.Context) error {
	logger.Info(ctx, "Shutting down node")

	err := n.transport.Close()

	n.server.GracefulStop()

	if n.metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.cfg.Timeout)
		defer cancel()

		err = multierr.Append(err, n.metricsServer.Shutdown(shutdownCtx))
	}

	return err
}
