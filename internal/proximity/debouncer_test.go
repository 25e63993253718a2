package proximity

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	domain "github.com/oshokin/nearby-handshake/internal/domain/proximity"
)

// TestDebouncer_Transitions walks through every transition of the state machine.
func TestDebouncer_Transitions(t *testing.T) {
	t.Parallel()

	start := time.Unix(1000, 0)
	d := NewDebouncer(testThreshold, testHold)
	require.Equal(t, domain.OutOfRange, d.Stage())

	// Undefined nearest keeps OutOfRange.
	require.False(t, d.Observe(0, false, start))
	require.Equal(t, domain.OutOfRange, d.Stage())

	// Below threshold starts the hold.
	require.False(t, d.Observe(0.02, true, start))
	require.Equal(t, domain.Pending, d.Stage())

	// Not yet elapsed.
	require.False(t, d.Observe(0.02, true, start.Add(999*time.Millisecond)))
	require.Equal(t, domain.Pending, d.Stage())

	// Elapsed: confirmed exactly once.
	require.True(t, d.Observe(0.02, true, start.Add(testHold)))
	require.Equal(t, domain.Stable, d.Stage())
	require.True(t, d.InRange())

	require.False(t, d.Observe(0.01, true, start.Add(2*testHold)))
	require.Equal(t, domain.Stable, d.Stage())

	// Threshold itself is out of range.
	require.False(t, d.Observe(testThreshold, true, start.Add(3*testHold)))
	require.Equal(t, domain.OutOfRange, d.Stage())
	require.False(t, d.InRange())
}

// TestDebouncer_NoPartialCredit verifies re-entering Pending restarts the hold from zero.
func TestDebouncer_NoPartialCredit(t *testing.T) {
	t.Parallel()

	start := time.Unix(0, 0)
	d := NewDebouncer(testThreshold, testHold)

	require.False(t, d.Observe(0.02, true, start))
	require.False(t, d.Observe(0.02, true, start.Add(900*time.Millisecond)))

	// A single sample above threshold cancels the hold.
	require.False(t, d.Observe(0.08, true, start.Add(950*time.Millisecond)))
	require.Equal(t, domain.OutOfRange, d.Stage())

	require.False(t, d.Observe(0.02, true, start.Add(time.Second)))
	require.False(t, d.Observe(0.02, true, start.Add(1900*time.Millisecond)))
	require.Equal(t, domain.Pending, d.Stage())

	require.True(t, d.Observe(0.02, true, start.Add(2*time.Second)))
}

// TestDebouncer_RejectsNaN treats NaN as out of range.
func TestDebouncer_RejectsNaN(t *testing.T) {
	t.Parallel()

	d := NewDebouncer(testThreshold, 0)
	require.False(t, d.Observe(math.NaN(), true, time.Unix(0, 0)))
	require.Equal(t, domain.OutOfRange, d.Stage())

	// Zero hold confirms on the first observation below threshold.
	require.True(t, d.Observe(0.01, true, time.Unix(0, 0)))
}
