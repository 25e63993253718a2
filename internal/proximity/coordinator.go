package proximity

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"

	domain "github.com/oshokin/nearby-handshake/internal/domain/proximity"
	"github.com/oshokin/nearby-handshake/internal/logger"
)

// Transport is the peer link the coordinator sends payloads through.
// Send must not block indefinitely; delivery is best effort.
type Transport interface {
	Send(ctx context.Context, payload []byte, to []domain.PeerID) error
}

// Ranger is the ranging collaborator. Start and Stop are fire-and-forget;
// results arrive later as DistanceUpdated or RangingInvalidated events.
type Ranger interface {
	// LocalToken returns the token peers need to range against this device,
	// or nil when none is available yet.
	LocalToken() domain.RangingToken
	// Start begins (or restarts) a session for a peer token.
	Start(token domain.RangingToken)
	// Stop invalidates the session for a peer token.
	Stop(token domain.RangingToken)
}

// Options configures a Coordinator.
type Options struct {
	// Name is the local display name sent when the action fires.
	Name string
	// Threshold is the exclusive in-range distance.
	Threshold float64
	// Hold is the debounce hold duration.
	Hold time.Duration
	// Tick is the debounce evaluation period.
	Tick time.Duration
	// SampleTTL is the maximum sample age; zero accepts any age.
	SampleTTL time.Duration
	// DepartedCapacity bounds the departed-peer cache.
	DepartedCapacity int
	// Clock drives ticks and timestamps; defaults to the wall clock.
	Clock clock.Clock
	// Registerer receives the coordinator metrics; nil skips registration.
	Registerer prometheus.Registerer
}

var (
	errNameRequired      = errors.New("local name must be provided")
	errThresholdRequired = errors.New("threshold must be positive")
	errTickRequired      = errors.New("tick must be positive")
	errMissingDependency = errors.New("queue, transport and ranger must be provided")
)

// Coordinator is the single owner of all proximity state.
type Coordinator struct {
	opts      Options
	clock     clock.Clock
	queue     *Queue
	transport Transport
	ranger    Ranger

	registry   *Registry
	aggregator *Aggregator
	debouncer  *Debouncer
	trigger    *Trigger
	metrics    *Metrics

	// snapshot is the latest published view; written only by the Run goroutine.
	snapshot atomic.Pointer[domain.Snapshot]
}

// New creates a coordinator consuming events from queue.
func New(queue *Queue, transport Transport, ranger Ranger, opts Options) (*Coordinator, error) {
	if queue == nil || transport == nil || ranger == nil {
		return nil, errMissingDependency
	}

	if opts.Name == "" {
		return nil, errNameRequired
	}

	if !(opts.Threshold > 0) {
		return nil, errThresholdRequired
	}

	if opts.Tick <= 0 {
		return nil, errTickRequired
	}

	if opts.Clock == nil {
		opts.Clock = clock.New()
	}

	registry, err := NewRegistry(opts.DepartedCapacity)
	if err != nil {
		return nil, err
	}

	metrics, err := NewMetrics(opts.Registerer)
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	c := &Coordinator{
		opts:       opts,
		clock:      opts.Clock,
		queue:      queue,
		transport:  transport,
		ranger:     ranger,
		registry:   registry,
		aggregator: NewAggregator(registry, opts.SampleTTL),
		debouncer:  NewDebouncer(opts.Threshold, opts.Hold),
		metrics:    metrics,
	}

	c.trigger = NewTrigger(c.sendIdentity)
	c.publish()

	return c, nil
}

// Run consumes events and ticks until ctx is canceled.
func (c *Coordinator) Run(ctx context.Context) error {
	ctx = logger.WithName(ctx, "coordinator")

	ticker := c.clock.Ticker(c.opts.Tick)
	defer ticker.Stop()

	logger.InfoKV(ctx, "Coordinator started",
		"name", c.opts.Name,
		"threshold", c.opts.Threshold,
		"hold", c.opts.Hold.String(),
		"tick", c.opts.Tick.String())

	for {
		select {
		case <-ctx.Done():
			logger.Info(ctx, "Coordinator stopped")
			return nil
		case ev := <-c.queue.events:
			c.handle(ctx, ev)
		case <-ticker.C:
			c.tick(ctx)
		}
	}
}

// Snapshot returns the latest published view. Safe for concurrent use.
func (c *Coordinator) Snapshot() *domain.Snapshot {
	return c.snapshot.Load().Clone()
}

// State returns the current proximity state. Only call it from the Run goroutine or tests.
func (c *Coordinator) State() domain.ProximityState {
	var state domain.ProximityState

	sample, ok := c.aggregator.ComputeNearest(c.clock.Now())
	if ok {
		nearest := sample.Distance
		state.Nearest = &nearest

		if rec := c.registry.Get(sample.Peer); rec != nil {
			state.Armed = rec.Armed
		}
	}

	state.InRange = c.debouncer.InRange()

	return state
}

// handle applies one event and publishes the result.
func (c *Coordinator) handle(ctx context.Context, ev Event) {
	c.metrics.observeEvent(ev)

	switch e := ev.(type) {
	case PeerStateChanged:
		c.onPeerStateChanged(ctx, e)
	case DataReceived:
		c.onDataReceived(ctx, e)
	case DistanceUpdated:
		c.onDistanceUpdated(ctx, e)
	case RangingInvalidated:
		logger.WarnKV(ctx, "Ranging session invalidated",
			"error", fmt.Errorf("%w: %w", ErrRangingInvalidated, e.Err))
	case RangingSuspended:
		logger.Info(ctx, "Ranging suspended")
	case RangingResumed:
		c.onRangingResumed(ctx)
	default:
		logger.WarnKV(ctx, "Unknown event dropped", "event", fmt.Sprintf("%T", ev))
	}

	c.settle(ctx)
	c.publish()
}

// tick advances the debouncer on the periodic schedule.
func (c *Coordinator) tick(ctx context.Context) {
	c.evaluate(ctx)
	c.publish()
}

func (c *Coordinator) onPeerStateChanged(ctx context.Context, e PeerStateChanged) {
	tr := c.registry.SetState(e.Peer, e.State)
	if tr.Previous == e.State {
		return
	}

	logger.InfoKV(ctx, "Peer state changed",
		"peer", e.Peer,
		"from", tr.Previous.String(),
		"to", e.State.String(),
		"epoch", tr.Record.Epoch)

	if tr.DroppedToken != nil {
		c.ranger.Stop(tr.DroppedToken)
	}

	if tr.Entered {
		c.sendLocalToken(ctx, e.Peer)
	}
}

func (c *Coordinator) onDataReceived(ctx context.Context, e DataReceived) {
	payload, err := DecodePayload(e.Payload)
	if err != nil {
		reason := dropMalformedPayload
		if errors.Is(err, ErrTokenDecode) {
			reason = dropTokenDecode
		}

		c.metrics.observeDrop(reason)
		logger.WarnKV(ctx, "Payload dropped", "peer", e.Peer, "size", len(e.Payload), "error", err)

		return
	}

	switch payload.Kind {
	case PayloadName:
		if err := c.registry.SetDisplayName(e.Peer, payload.Name); err != nil {
			c.metrics.observeDrop(dropStaleName)
			logger.WarnKV(ctx, "Display name dropped", "peer", e.Peer, "error", err)

			return
		}

		logger.InfoKV(ctx, "Display name received", "peer", e.Peer, "name", payload.Name)
	case PayloadToken:
		previous, err := c.registry.SetToken(e.Peer, payload.Token)
		if err != nil {
			c.metrics.observeDrop(dropStaleToken)
			logger.WarnKV(ctx, "Ranging token dropped", "peer", e.Peer, "error", err)

			return
		}

		if previous != nil {
			c.ranger.Stop(previous)
		}

		logger.InfoKV(ctx, "Ranging token received", "peer", e.Peer, "restart", previous != nil)
		c.ranger.Start(payload.Token)
	}
}

func (c *Coordinator) onDistanceUpdated(ctx context.Context, e DistanceUpdated) {
	at := e.At
	if at.IsZero() {
		at = c.clock.Now()
	}

	peer, err := c.aggregator.OnDistanceSample(e.Token, e.Distance, at)
	switch {
	case err == nil:
		logger.DebugKV(ctx, "Distance updated", "peer", peer, "distance", e.Distance)
	case errors.Is(err, ErrUnknownPeerSample):
		c.metrics.observeDrop(dropUnknownPeer)
	default:
		c.metrics.observeDrop(dropInvalidDistance)
		logger.WarnKV(ctx, "Distance sample dropped", "peer", peer, "error", err)
	}
}

func (c *Coordinator) onRangingResumed(ctx context.Context) {
	restarted := 0

	for _, rec := range c.registry.Connected() {
		if rec.Token == nil {
			continue
		}

		c.ranger.Start(rec.Token)
		restarted++
	}

	logger.InfoKV(ctx, "Ranging resumed", "sessions", restarted)
}

// evaluate recomputes the nearest distance, advances the debouncer and fires on confirmation.
func (c *Coordinator) evaluate(ctx context.Context) {
	now := c.clock.Now()
	sample, ok := c.aggregator.ComputeNearest(now)

	before := c.debouncer.Stage()
	confirmed := c.debouncer.Observe(sample.Distance, ok, now)

	if after := c.debouncer.Stage(); after != before {
		logger.DebugKV(ctx, "Debounce stage changed", "from", before.String(), "to", after.String())
	}

	if confirmed {
		c.onStableConfirmed(ctx, now)
	}
}

// settle drops out of range as soon as an event invalidates the nearest distance.
// Promotions wait for the tick; a reset is always safe to apply early.
func (c *Coordinator) settle(ctx context.Context) {
	if c.debouncer.Stage() == domain.OutOfRange {
		return
	}

	sample, ok := c.aggregator.ComputeNearest(c.clock.Now())
	if ok && sample.Distance < c.opts.Threshold {
		return
	}

	logger.DebugKV(ctx, "Debounce stage changed", "from", c.debouncer.Stage().String(), "to", domain.OutOfRange.String())
	c.debouncer.Reset()
}

// onStableConfirmed targets the nearest peer at fire time, which may differ
// from the peer that started the hold.
func (c *Coordinator) onStableConfirmed(ctx context.Context, now time.Time) {
	sample, ok := c.aggregator.ComputeNearest(now)
	if !ok {
		return
	}

	target := c.registry.Get(sample.Peer)

	fired, err := c.trigger.OnStableConfirmed(ctx, target)
	if !fired {
		logger.DebugKV(ctx, "Stable range confirmed, peer not armed", "peer", sample.Peer)
		return
	}

	c.metrics.actionsFired.Inc()
	logger.InfoKV(ctx, "Stable range confirmed, action fired",
		"peer", sample.Peer,
		"distance", sample.Distance,
		"epoch", target.Epoch)

	if err != nil {
		logger.ErrorKV(ctx, "Action failed", "peer", sample.Peer, "error", err)
	}
}

// sendIdentity is the one-shot action: send the local display name to the target.
func (c *Coordinator) sendIdentity(ctx context.Context, target domain.PeerID) error {
	return c.send(ctx, EncodeName(c.opts.Name), target)
}

func (c *Coordinator) sendLocalToken(ctx context.Context, peer domain.PeerID) {
	token := c.ranger.LocalToken()
	if token == nil {
		logger.WarnKV(ctx, "Local ranging token unavailable", "peer", peer)
		return
	}

	data, err := EncodeToken(token)
	if err != nil {
		logger.ErrorKV(ctx, "Encode local token", "error", err)
		return
	}

	if err := c.send(ctx, data, peer); err != nil {
		logger.WarnKV(ctx, "Ranging token not sent", "peer", peer, "error", err)
	}
}

func (c *Coordinator) send(ctx context.Context, payload []byte, peer domain.PeerID) error {
	if err := c.transport.Send(ctx, payload, []domain.PeerID{peer}); err != nil {
		c.metrics.sendFailures.Inc()

		if errors.Is(err, ErrTransportSend) {
			return err
		}

		return fmt.Errorf("%w: %w", ErrTransportSend, err)
	}

	return nil
}

// publish stores a fresh snapshot for readers on other goroutines.
func (c *Coordinator) publish() {
	now := c.clock.Now()
	connected := c.registry.Connected()

	snapshot := &domain.Snapshot{
		PeerName:       c.registry.LastDisplayName(),
		Connected:      len(connected) > 0,
		InRange:        c.debouncer.InRange(),
		Stage:          c.debouncer.Stage(),
		ConnectedPeers: len(connected),
		ActionsFired:   c.trigger.Fired(),
		UpdatedAt:      now,
	}

	if sample, ok := c.aggregator.ComputeNearest(now); ok {
		nearest := sample.Distance
		snapshot.Nearest = &nearest
		snapshot.NearestPeer = sample.Peer

		if rec := c.registry.Get(sample.Peer); rec != nil {
			snapshot.Armed = rec.Armed
		}
	}

	c.metrics.observeSnapshot(snapshot)
	c.snapshot.Store(snapshot)
}
