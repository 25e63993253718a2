package proximity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	domain "github.com/oshokin/nearby-handshake/internal/domain/proximity"
)

// TestRegistry_ConnectLifecycle checks epochs, arming and token cleanup across a reconnect.
func TestRegistry_ConnectLifecycle(t *testing.T) {
	t.Parallel()

	r, err := NewRegistry(4)
	require.NoError(t, err)

	tr := r.SetState("p1", domain.Connecting)
	require.Equal(t, domain.Disconnected, tr.Previous)
	require.False(t, tr.Entered)

	tr = r.SetState("p1", domain.Connected)
	require.True(t, tr.Entered)
	require.True(t, tr.Record.Armed)
	require.Equal(t, uint64(1), tr.Record.Epoch)

	// Repeated Connected is a no-op and does not re-arm.
	tr.Record.Armed = false
	tr = r.SetState("p1", domain.Connected)
	require.False(t, tr.Entered)
	require.False(t, tr.Record.Armed)

	_, err = r.SetToken("p1", domain.RangingToken("t1"))
	require.NoError(t, err)

	id, ok := r.Resolve(domain.RangingToken("t1"))
	require.True(t, ok)
	require.Equal(t, domain.PeerID("p1"), id)

	tr = r.SetState("p1", domain.Disconnected)
	require.True(t, tr.Left)
	require.Equal(t, domain.RangingToken("t1"), tr.DroppedToken)
	require.Nil(t, r.Get("p1"))

	_, ok = r.Resolve(domain.RangingToken("t1"))
	require.False(t, ok)

	// Reconnect starts a new epoch.
	r.SetState("p1", domain.Connecting)
	tr = r.SetState("p1", domain.Connected)
	require.Equal(t, uint64(2), tr.Record.Epoch)
	require.True(t, tr.Record.Armed)
	require.Nil(t, tr.Record.Token)
}

// TestRegistry_DepartedKeepsDisplayName verifies reconnecting peers keep their name.
func TestRegistry_DepartedKeepsDisplayName(t *testing.T) {
	t.Parallel()

	r, err := NewRegistry(1)
	require.NoError(t, err)

	r.SetState("p1", domain.Connected)
	require.NoError(t, r.SetDisplayName("p1", "kitchen"))
	require.Equal(t, "kitchen", r.LastDisplayName())

	r.SetState("p1", domain.Disconnected)
	tr := r.SetState("p1", domain.Connected)
	require.Equal(t, "kitchen", tr.Record.DisplayName)

	// Capacity 1: a second departure evicts the first.
	r.SetState("p1", domain.Disconnected)
	r.SetState("p2", domain.Connected)
	r.SetState("p2", domain.Disconnected)

	tr = r.SetState("p1", domain.Connected)
	require.Empty(t, tr.Record.DisplayName)
}

// TestRegistry_SetTokenRequiresConnected rejects tokens from peers that are not connected.
func TestRegistry_SetTokenRequiresConnected(t *testing.T) {
	t.Parallel()

	r, err := NewRegistry(4)
	require.NoError(t, err)

	_, err = r.SetToken("ghost", domain.RangingToken("t"))
	require.ErrorIs(t, err, ErrPeerNotConnected)

	r.SetState("p1", domain.Connecting)

	_, err = r.SetToken("p1", domain.RangingToken("t"))
	require.ErrorIs(t, err, ErrPeerNotConnected)

	require.ErrorIs(t, r.SetDisplayName("ghost", "x"), ErrPeerNotConnected)
}

// TestRegistry_ReplaceToken returns the previous token and remaps lookups.
func TestRegistry_ReplaceToken(t *testing.T) {
	t.Parallel()

	r, err := NewRegistry(4)
	require.NoError(t, err)

	r.SetState("p1", domain.Connected)

	prev, err := r.SetToken("p1", domain.RangingToken("old"))
	require.NoError(t, err)
	require.Nil(t, prev)

	r.Get("p1").Sample = &domain.DistanceSample{Peer: "p1", Distance: 1, At: time.Unix(0, 0)}

	prev, err = r.SetToken("p1", domain.RangingToken("new"))
	require.NoError(t, err)
	require.Equal(t, domain.RangingToken("old"), prev)
	require.Nil(t, r.Get("p1").Sample)

	_, ok := r.Resolve(domain.RangingToken("old"))
	require.False(t, ok)

	_, ok = r.Resolve(domain.RangingToken("new"))
	require.True(t, ok)
}

// TestNewRegistry_InvalidCapacity rejects a non-positive departed capacity.
func TestNewRegistry_InvalidCapacity(t *testing.T) {
	t.Parallel()

	_, err := NewRegistry(0)
	require.Error(t, err)
}
