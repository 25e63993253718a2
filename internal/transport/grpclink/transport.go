package grpclink

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"
	"time"

	"go.uber.org/multierr"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"

	domain "github.com/oshokin/nearby-handshake/internal/domain/proximity"
	"github.com/oshokin/nearby-handshake/internal/logger"
	"github.com/oshokin/nearby-handshake/internal/proximity"
)

// Sink receives link events.
type Sink interface {
	Post(ctx context.Context, ev proximity.Event) error
}

// Options configures a Transport.
type Options struct {
	// RetryInterval is the delay between dial attempts to a browsed address.
	RetryInterval time.Duration
	// OutboundCapacity bounds the queued payloads per link.
	OutboundCapacity int
	// DialOptions are appended to the defaults when browsing.
	DialOptions []grpc.DialOption
}

const (
	// DefaultRetryInterval is used when Options.RetryInterval is not positive.
	DefaultRetryInterval = time.Second
	// DefaultOutboundCapacity is used when Options.OutboundCapacity is not positive.
	DefaultOutboundCapacity = 32
)

var (
	// ErrPeerNotLinked is returned by Send for peers without a live link.
	ErrPeerNotLinked = errors.New("peer not linked")
	// ErrOutboundFull is returned by Send when a link's queue is full.
	ErrOutboundFull = errors.New("outbound queue full")

	errMissingPeerID = errors.New("missing peer id")
	errSelfLink      = errors.New("link to self")
)

// link is one Exchange stream to a peer.
type link struct {
	peer     domain.PeerID
	outbound chan []byte
}

// Transport implements proximity.Transport over gRPC streams.
// A peer may be reachable through several streams at once (both sides
// dialing); it is reported Connected while at least one stream is live.
type Transport struct {
	local domain.PeerID
	sink  Sink
	opts  Options

	// ctx bounds every link; canceled by Close.
	ctx    context.Context //nolint:containedctx // Links outlive the calls that open them.
	cancel context.CancelFunc

	// stateMu orders link changes with the events they post.
	stateMu sync.Mutex
	// mu guards links; never held while posting.
	mu    sync.Mutex
	links map[domain.PeerID][]*link

	wg sync.WaitGroup
}

// New creates a transport identifying itself as local.
func New(local domain.PeerID, sink Sink, opts Options) *Transport {
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = DefaultRetryInterval
	}

	if opts.OutboundCapacity <= 0 {
		opts.OutboundCapacity = DefaultOutboundCapacity
	}

	ctx, cancel := context.WithCancel(logger.WithKV(
		logger.WithName(context.Background(), "peer-link"), "local_peer", local))

	return &Transport{
		local:  local,
		sink:   sink,
		opts:   opts,
		ctx:    ctx,
		cancel: cancel,
		links:  make(map[domain.PeerID][]*link),
	}
}

// Advertise registers the PeerLink service on server.
func (t *Transport) Advertise(server *grpc.Server) {
	server.RegisterService(&serviceDesc, &linkServer{transport: t})
}

// Browse keeps a link to every address until ctx is canceled or the transport is closed.
func (t *Transport) Browse(ctx context.Context, addresses []string) {
	for _, address := range addresses {
		t.wg.Add(1)

		go func() {
			defer t.wg.Done()

			t.browse(ctx, address)
		}()
	}
}

// Send queues payload for every recipient. It never blocks; recipients
// without a link or with a full queue are reported in the returned error.
func (t *Transport) Send(_ context.Context, payload []byte, to []domain.PeerID) error {
	var errs error

	for _, peer := range to {
		l := t.primary(peer)
		if l == nil {
			errs = multierr.Append(errs, fmt.Errorf("%w: %s: %w", proximity.ErrTransportSend, peer, ErrPeerNotLinked))

			continue
		}

		select {
		case l.outbound <- bytes.Clone(payload):
		default:
			errs = multierr.Append(errs, fmt.Errorf("%w: %s: %w", proximity.ErrTransportSend, peer, ErrOutboundFull))
		}
	}

	return errs
}

// Peers returns the currently linked peers, sorted.
func (t *Transport) Peers() []domain.PeerID {
	t.mu.Lock()
	defer t.mu.Unlock()

	peers := make([]domain.PeerID, 0, len(t.links))
	for peer := range t.links {
		peers = append(peers, peer)
	}

	slices.Sort(peers)

	return peers
}

// Close tears down every link and waits for the browse loops to exit.
func (t *Transport) Close() error {
	t.cancel()
	t.wg.Wait()

	return nil
}

func (t *Transport) primary(peer domain.PeerID) *link {
	t.mu.Lock()
	defer t.mu.Unlock()

	if links := t.links[peer]; len(links) > 0 {
		return links[0]
	}

	return nil
}

// attach registers a stream and reports the peer when it is the first one.
func (t *Transport) attach(peer domain.PeerID) *link {
	t.stateMu.Lock()
	defer t.stateMu.Unlock()

	l := &link{
		peer:     peer,
		outbound: make(chan []byte, t.opts.OutboundCapacity),
	}

	t.mu.Lock()
	t.links[peer] = append(t.links[peer], l)
	first := len(t.links[peer]) == 1
	t.mu.Unlock()

	if first {
		t.post(proximity.PeerStateChanged{Peer: peer, State: domain.Connecting})
		t.post(proximity.PeerStateChanged{Peer: peer, State: domain.Connected})
	}

	return l
}

// detach removes a stream and reports the peer when it was the last one.
func (t *Transport) detach(l *link) {
	t.stateMu.Lock()
	defer t.stateMu.Unlock()

	t.mu.Lock()

	links := slices.DeleteFunc(t.links[l.peer], func(other *link) bool { return other == l })
	if len(links) == 0 {
		delete(t.links, l.peer)
	} else {
		t.links[l.peer] = links
	}

	t.mu.Unlock()

	if len(links) == 0 {
		t.post(proximity.PeerStateChanged{Peer: l.peer, State: domain.Disconnected})
	}
}

func (t *Transport) post(ev proximity.Event) {
	if err := t.sink.Post(t.ctx, ev); err != nil {
		logger.DebugKV(t.ctx, "Link event not posted", "error", err)
	}
}

// msgStream is the part of client and server streams a link uses.
type msgStream interface {
	SendMsg(m any) error
	RecvMsg(m any) error
}

// serve pumps a stream until either side ends it. Outbound payloads are
// written from the calling goroutine; inbound ones are read in a helper.
func (t *Transport) serve(ctx context.Context, l *link, stream msgStream) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stop := context.AfterFunc(t.ctx, cancel)
	defer stop()

	defer t.detach(l)

	readErr := make(chan error, 1)

	go func() {
		readErr <- t.readLoop(l.peer, stream)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			return err
		case payload := <-l.outbound:
			if err := stream.SendMsg(wrapperspb.Bytes(payload)); err != nil {
				return fmt.Errorf("send to %s: %w", l.peer, err)
			}
		}
	}
}

func (t *Transport) readLoop(peer domain.PeerID, stream msgStream) error {
	for {
		var msg wrapperspb.BytesValue

		if err := stream.RecvMsg(&msg); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}

			return fmt.Errorf("receive from %s: %w", peer, err)
		}

		t.post(proximity.DataReceived{Peer: peer, Payload: msg.GetValue()})
	}
}

func (t *Transport) browse(ctx context.Context, address string) {
	ctx, cancel := context.WithCancel(logger.ToContext(ctx, logger.FromContext(t.ctx).With("address", address)))
	defer cancel()

	// Close also ends browsing started with an unrelated context.
	stop := context.AfterFunc(t.ctx, cancel)
	defer stop()

	options := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}, t.opts.DialOptions...)

	conn, err := grpc.NewClient(address, options...)
	if err != nil {
		logger.ErrorKV(ctx, "Peer address rejected", "error", err)

		return
	}

	defer func() {
		if closeErr := conn.Close(); closeErr != nil {
			logger.DebugKV(ctx, "Close peer connection", "error", closeErr)
		}
	}()

	ticker := time.NewTicker(t.opts.RetryInterval)
	defer ticker.Stop()

	for {
		if err := t.dial(ctx, conn); err != nil && ctx.Err() == nil {
			logger.DebugKV(ctx, "Peer link ended", "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// dial opens one Exchange stream and serves it until it ends.
func (t *Transport) dial(ctx context.Context, conn *grpc.ClientConn) error {
	ctx, cancel := context.WithCancel(metadata.AppendToOutgoingContext(ctx, peerIDMetadataKey, string(t.local)))
	defer cancel()

	stream, err := conn.NewStream(ctx, &serviceDesc.Streams[0], ExchangeFullMethod)
	if err != nil {
		return fmt.Errorf("open stream: %w", err)
	}

	header, err := stream.Header()
	if err != nil {
		return fmt.Errorf("read header: %w", err)
	}

	peer, err := peerFromMetadata(header)
	if err != nil {
		// A rejected stream ends without headers; its status is on the first receive.
		if recvErr := stream.RecvMsg(new(wrapperspb.BytesValue)); recvErr != nil && !errors.Is(recvErr, io.EOF) {
			return fmt.Errorf("stream rejected: %w", recvErr)
		}

		return err
	}

	if peer == t.local {
		return errSelfLink
	}

	l := t.attach(peer)

	logger.InfoKV(ctx, "Peer link established", "peer", peer, "direction", "outbound")

	return t.serve(ctx, l, stream)
}

func peerFromMetadata(md metadata.MD) (domain.PeerID, error) {
	values := md.Get(peerIDMetadataKey)
	if len(values) == 0 || values[0] == "" {
		return "", errMissingPeerID
	}

	return domain.PeerID(values[0]), nil
}

// linkServer accepts inbound Exchange streams.
type linkServer struct {
	transport *Transport
}

// Exchange serves one inbound link.
func (s *linkServer) Exchange(stream grpc.ServerStream) error {
	t := s.transport
	ctx := stream.Context()

	md, _ := metadata.FromIncomingContext(ctx)

	peer, err := peerFromMetadata(md)
	if err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}

	if peer == t.local {
		return status.Error(codes.InvalidArgument, errSelfLink.Error())
	}

	if t.ctx.Err() != nil {
		return status.Error(codes.Unavailable, "transport closed")
	}

	if err := stream.SendHeader(metadata.Pairs(peerIDMetadataKey, string(t.local))); err != nil {
		return fmt.Errorf("send header: %w", err)
	}

	l := t.attach(peer)

	logger.InfoKV(t.ctx, "Peer link established", "peer", peer, "direction", "inbound")

	if err := t.serve(ctx, l, stream); err != nil {
		logger.DebugKV(t.ctx, "Peer link ended", "peer", peer, "error", err)
	}

	return nil
}
