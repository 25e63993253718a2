//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	api "github.com/oshokin/nearby-handshake/internal/api/grpc/proximity"
	domain "github.com/oshokin/nearby-handshake/internal/domain/proximity"
)

// TestDial_ValidatesAddress verifies that Dial rejects empty addresses.
func TestDial_ValidatesAddress(t *testing.T) {
	t.Parallel()

	c, err := Dial(context.Background(), "")
	require.Error(t, err)
	require.Nil(t, c)
}

// TestClient_callContext checks timeout vs cancel-only behavior of callContext.
func TestClient_callContext(t *testing.T) {
	t.Parallel()

	c := &Client{
		callTimeout: 0,
	}

	ctx, cancel := c.callContext(context.Background())
	cancel()

	require.NotNil(t, ctx)

	c.callTimeout = 10 * time.Millisecond

	ctx, cancel = c.callContext(context.Background())
	defer cancel()

	deadline, ok := ctx.Deadline()
	require.True(t, ok)
	require.WithinDuration(t, time.Now().Add(10*time.Millisecond), deadline, 30*time.Millisecond)
}

// TestClient_GetProximity reads a snapshot through a real Proximity server.
func TestClient_GetProximity(t *testing.T) {
	t.Parallel()

	nearest := 0.2
	lis := bufconn.Listen(1 << 20)
	server := grpc.NewServer()
	api.Register(server, api.NewServer(&fixedSnapshot{snapshot: &domain.Snapshot{
		PeerName:       "hallway",
		Connected:      true,
		Nearest:        &nearest,
		NearestPeer:    "peer-b",
		Stage:          domain.Pending,
		ConnectedPeers: 1,
	}}))

	go func() {
		_ = server.Serve(lis)
	}()

	t.Cleanup(server.Stop)

	c, err := Dial(context.Background(), "passthrough:///bufnet",
		WithCallTimeout(time.Second),
		WithDialOptions(grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		})))
	require.NoError(t, err)

	t.Cleanup(func() { require.NoError(t, c.Close()) })

	snapshot, err := c.GetProximity(context.Background())
	require.NoError(t, err)
	require.Equal(t, "hallway", snapshot.PeerName)
	require.Equal(t, domain.Pending, snapshot.Stage)
	require.InDelta(t, 0.2, *snapshot.Nearest, 1e-12)
}

// TestClient_GetProximity_Unavailable surfaces the server status code.
func TestClient_GetProximity_Unavailable(t *testing.T) {
	t.Parallel()

	lis := bufconn.Listen(1 << 20)
	server := grpc.NewServer()
	api.Register(server, api.NewServer(new(fixedSnapshot)))

	go func() {
		_ = server.Serve(lis)
	}()

	t.Cleanup(server.Stop)

	c, err := Dial(context.Background(), "passthrough:///bufnet",
		WithDialOptions(grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		})))
	require.NoError(t, err)

	t.Cleanup(func() { require.NoError(t, c.Close()) })

	_, err = c.GetProximity(context.Background())
	require.Equal(t, codes.Unavailable, status.Code(err))
}

// fixedSnapshot serves a constant snapshot.
type fixedSnapshot struct {
	snapshot *domain.Snapshot
}

func (f *fixedSnapshot) Snapshot() *domain.Snapshot { return f.snapshot }

// TestClient_CloseNil ensures Close tolerates a nil client.
func TestClient_CloseNil(t *testing.T) {
	t.Parallel()

	var c *Client
	require.NoError(t, c.Close())
}
