package sim

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	domain "github.com/oshokin/nearby-handshake/internal/domain/proximity"
	"github.com/oshokin/nearby-handshake/internal/proximity"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// chanSink records posted events on a buffered channel.
type chanSink chan proximity.Event

func (s chanSink) Post(ctx context.Context, ev proximity.Event) error {
	select {
	case s <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func newTestSimulator(t *testing.T) (*Simulator, *clock.Mock, chanSink) {
	t.Helper()

	mock := clock.NewMock()
	sink := make(chanSink, 16)
	sim := New(context.Background(), sink, Options{
		Interval:      100 * time.Millisecond,
		StartDistance: 1.0,
		MinDistance:   0.0,
		Approach:      time.Second,
		Clock:         mock,
	})

	t.Cleanup(func() { require.NoError(t, sim.Close()) })

	return sim, mock, sink
}

func receive(t *testing.T, sink chanSink) proximity.Event {
	t.Helper()

	select {
	case ev := <-sink:
		return ev
	case <-time.After(time.Second):
		require.FailNow(t, "no event received")

		return nil
	}
}

func requireSilent(t *testing.T, sink chanSink) {
	t.Helper()

	select {
	case ev := <-sink:
		require.FailNow(t, "unexpected event", "%#v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSimulator_LocalToken(t *testing.T) {
	t.Parallel()

	sim, _, _ := newTestSimulator(t)

	token := sim.LocalToken()
	require.Len(t, token, 16)
	require.True(t, token.Equal(sim.LocalToken()))

	token[0] ^= 0xFF
	require.False(t, token.Equal(sim.LocalToken()))
}

func TestSimulator_Distance(t *testing.T) {
	t.Parallel()

	sim, _, _ := newTestSimulator(t)

	require.InDelta(t, 1.0, sim.Distance(0), 1e-9)
	require.InDelta(t, 0.5, sim.Distance(500*time.Millisecond), 1e-9)
	require.InDelta(t, 0.0, sim.Distance(time.Second), 1e-9)
	require.InDelta(t, 0.0, sim.Distance(time.Hour), 1e-9)
}

func TestSimulator_SessionEmitsApproach(t *testing.T) {
	t.Parallel()

	sim, mock, sink := newTestSimulator(t)
	token := domain.RangingToken("peer-token")

	sim.Start(token)
	require.Equal(t, 1, sim.Sessions())

	mock.Add(100 * time.Millisecond)

	ev, ok := receive(t, sink).(proximity.DistanceUpdated)
	require.True(t, ok)
	require.True(t, token.Equal(ev.Token))
	require.InDelta(t, 0.9, ev.Distance, 1e-9)

	mock.Add(100 * time.Millisecond)

	ev, ok = receive(t, sink).(proximity.DistanceUpdated)
	require.True(t, ok)
	require.InDelta(t, 0.8, ev.Distance, 1e-9)
}

func TestSimulator_Stop(t *testing.T) {
	t.Parallel()

	sim, mock, sink := newTestSimulator(t)
	token := domain.RangingToken("peer-token")

	sim.Start(token)
	sim.Stop(token)
	require.Zero(t, sim.Sessions())

	mock.Add(100 * time.Millisecond)
	requireSilent(t, sink)

	// Stopping an unknown token is a no-op.
	sim.Stop(domain.RangingToken("other"))
}

func TestSimulator_RestartReplacesSession(t *testing.T) {
	t.Parallel()

	sim, _, _ := newTestSimulator(t)
	token := domain.RangingToken("peer-token")

	sim.Start(token)
	sim.Start(token)
	require.Equal(t, 1, sim.Sessions())

	sim.Start(domain.RangingToken("other-token"))
	require.Equal(t, 2, sim.Sessions())
}

func TestSimulator_SuspendResume(t *testing.T) {
	t.Parallel()

	sim, mock, sink := newTestSimulator(t)
	ctx := context.Background()

	sim.Start(domain.RangingToken("peer-token"))

	require.NoError(t, sim.Suspend(ctx))
	require.IsType(t, proximity.RangingSuspended{}, receive(t, sink))

	mock.Add(100 * time.Millisecond)
	requireSilent(t, sink)

	require.NoError(t, sim.Resume(ctx))
	require.IsType(t, proximity.RangingResumed{}, receive(t, sink))

	mock.Add(100 * time.Millisecond)
	require.IsType(t, proximity.DistanceUpdated{}, receive(t, sink))
}

func TestSimulator_Invalidate(t *testing.T) {
	t.Parallel()

	sim, _, sink := newTestSimulator(t)
	token := domain.RangingToken("peer-token")
	cause := errors.New("radio lost")

	sim.Start(token)
	require.NoError(t, sim.Invalidate(context.Background(), token, cause))
	require.Zero(t, sim.Sessions())

	ev, ok := receive(t, sink).(proximity.RangingInvalidated)
	require.True(t, ok)
	require.True(t, token.Equal(ev.Token))
	require.ErrorIs(t, ev.Err, cause)
}

func TestSimulator_StartAfterClose(t *testing.T) {
	t.Parallel()

	sim, _, _ := newTestSimulator(t)

	require.NoError(t, sim.Close())

	sim.Start(domain.RangingToken("peer-token"))
	require.Zero(t, sim.Sessions())
}
