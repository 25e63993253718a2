package sim

import (
	"context"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	domain "github.com/oshokin/nearby-handshake/internal/domain/proximity"
	"github.com/oshokin/nearby-handshake/internal/logger"
	"github.com/oshokin/nearby-handshake/internal/proximity"
)

// Sink receives the events produced by the simulator.
type Sink interface {
	Post(ctx context.Context, ev proximity.Event) error
}

// Options configures the distance profile.
type Options struct {
	// Interval is the period between samples.
	Interval time.Duration
	// StartDistance is reported at the start of a session.
	StartDistance float64
	// MinDistance is reached once Approach has elapsed.
	MinDistance float64
	// Approach is the duration of the linear approach.
	Approach time.Duration
	// Jitter is the maximum absolute noise added to each sample.
	Jitter float64
	// Clock drives the session tickers; defaults to the wall clock.
	Clock clock.Clock
}

// defaultInterval is used when Options.Interval is not positive.
const defaultInterval = 100 * time.Millisecond

// Simulator implements proximity.Ranger.
type Simulator struct {
	opts  Options
	clock clock.Clock
	sink  Sink
	local domain.RangingToken

	// ctx bounds every session; canceled by Close.
	ctx    context.Context //nolint:containedctx // Sessions outlive the Start call.
	cancel context.CancelFunc

	mu        sync.Mutex
	sessions  map[string]*session
	suspended bool
	wg        sync.WaitGroup
}

// session is one running ranging session.
type session struct {
	token   domain.RangingToken
	started time.Time
	cancel  context.CancelFunc
}

// New creates a simulator posting to sink. The local token is a fresh random UUID.
func New(ctx context.Context, sink Sink, opts Options) *Simulator {
	if opts.Interval <= 0 {
		opts.Interval = defaultInterval
	}

	if opts.Clock == nil {
		opts.Clock = clock.New()
	}

	id := uuid.New()
	ctx, cancel := context.WithCancel(logger.WithName(ctx, "ranging"))

	return &Simulator{
		opts:     opts,
		clock:    opts.Clock,
		sink:     sink,
		local:    domain.RangingToken(id[:]),
		ctx:      ctx,
		cancel:   cancel,
		sessions: make(map[string]*session),
	}
}

// LocalToken returns the token peers use to range against this device.
func (s *Simulator) LocalToken() domain.RangingToken {
	return s.local.Clone()
}

// Start begins a session for token, replacing a running one.
func (s *Simulator) Start(token domain.RangingToken) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx.Err() != nil {
		return
	}

	s.stopLocked(token)

	ctx, cancel := context.WithCancel(s.ctx)
	sess := &session{
		token:   token.Clone(),
		started: s.clock.Now(),
		cancel:  cancel,
	}
	s.sessions[token.Key()] = sess

	// The ticker is created before the goroutine so mock clocks see it immediately.
	ticker := s.clock.Ticker(s.opts.Interval)

	s.wg.Add(1)

	go func() {
		defer s.wg.Done()
		defer ticker.Stop()

		s.run(ctx, sess, ticker)
	}()

	logger.DebugKV(s.ctx, "Ranging session started", "sessions", len(s.sessions))
}

// Stop invalidates the session for token.
func (s *Simulator) Stop(token domain.RangingToken) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLocked(token)
}

// Invalidate stops the session for token and reports the failure.
func (s *Simulator) Invalidate(ctx context.Context, token domain.RangingToken, cause error) error {
	s.Stop(token)

	return s.sink.Post(ctx, proximity.RangingInvalidated{Token: token.Clone(), Err: cause})
}

// Suspend pauses every session until Resume.
func (s *Simulator) Suspend(ctx context.Context) error {
	s.mu.Lock()
	s.suspended = true
	s.mu.Unlock()

	return s.sink.Post(ctx, proximity.RangingSuspended{})
}

// Resume ends a suspension; the coordinator restarts the sessions it still needs.
func (s *Simulator) Resume(ctx context.Context) error {
	s.mu.Lock()
	s.suspended = false
	s.mu.Unlock()

	return s.sink.Post(ctx, proximity.RangingResumed{})
}

// Sessions returns the number of running sessions.
func (s *Simulator) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.sessions)
}

// Close stops every session and waits for them to exit.
func (s *Simulator) Close() error {
	s.cancel()

	s.mu.Lock()
	clear(s.sessions)
	s.mu.Unlock()

	s.wg.Wait()

	return nil
}

// Distance returns the profile value after elapsed time, without jitter.
func (s *Simulator) Distance(elapsed time.Duration) float64 {
	if s.opts.Approach <= 0 || elapsed >= s.opts.Approach {
		return s.opts.MinDistance
	}

	progress := float64(elapsed) / float64(s.opts.Approach)

	return s.opts.StartDistance + (s.opts.MinDistance-s.opts.StartDistance)*progress
}

func (s *Simulator) stopLocked(token domain.RangingToken) {
	if sess, ok := s.sessions[token.Key()]; ok {
		sess.cancel()
		delete(s.sessions, token.Key())
	}
}

func (s *Simulator) run(ctx context.Context, sess *session, ticker *clock.Ticker) {
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if ctx.Err() != nil {
				return
			}

			if s.isSuspended() {
				continue
			}

			ev := proximity.DistanceUpdated{
				Token:    sess.token,
				Distance: s.sample(now.Sub(sess.started)),
			}

			if err := s.sink.Post(ctx, ev); err != nil {
				return
			}
		}
	}
}

func (s *Simulator) sample(elapsed time.Duration) float64 {
	d := s.Distance(elapsed)

	if s.opts.Jitter > 0 {
		//nolint:gosec // Simulated noise, not security sensitive.
		d += (rand.Float64()*2 - 1) * s.opts.Jitter
	}

	return math.Max(d, 0)
}

func (s *Simulator) isSuspended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.suspended
}
