package status

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oshokin/nearby-handshake/internal/config"
	domain "github.com/oshokin/nearby-handshake/internal/domain/proximity"
	"github.com/oshokin/nearby-handshake/internal/service/node"
)

// TestDialAddress covers wildcard replacement and invalid input.
func TestDialAddress(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		listen  string
		want    string
		wantErr bool
	}{
		{name: "port only", listen: ":7000", want: "127.0.0.1:7000"},
		{name: "ipv4 wildcard", listen: "0.0.0.0:7000", want: "127.0.0.1:7000"},
		{name: "ipv6 wildcard", listen: "[::]:7000", want: "127.0.0.1:7000"},
		{name: "explicit host", listen: "10.0.0.5:7000", want: "10.0.0.5:7000"},
		{name: "empty", listen: "", wantErr: true},
		{name: "no port", listen: "localhost", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := dialAddress(tt.listen)
			if tt.wantErr {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

// TestFormatSnapshot checks both the undefined and the populated rendering.
func TestFormatSnapshot(t *testing.T) {
	t.Parallel()

	require.Equal(t,
		`stage=out_of_range in_range=false armed=false nearest=none connected_peers=0 peer_name="-" actions_fired=0`,
		formatSnapshot(&domain.Snapshot{}))

	nearest := 0.0314
	got := formatSnapshot(&domain.Snapshot{
		PeerName:       "kitchen",
		Nearest:        &nearest,
		NearestPeer:    "peer-b",
		InRange:        true,
		Stage:          domain.Stable,
		ConnectedPeers: 1,
		ActionsFired:   1,
	})
	require.Equal(t,
		`stage=stable in_range=true armed=false nearest=0.031 connected_peers=1 peer_name="kitchen" actions_fired=1 nearest_peer=peer-b`,
		got)
}

// TestRun_Once reads a single snapshot from a running node.
func TestRun_Once(t *testing.T) {
	t.Parallel()

	n, err := node.New(context.Background(), &config.Config{
		NodeName:      "desk",
		ListenAddress: "127.0.0.1:0",
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() {
		done <- n.Run(ctx)
	}()

	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})

	var out bytes.Buffer

	require.Eventually(t, func() bool {
		out.Reset()

		return Run(context.Background(), &Options{
			Address: n.Addr().String(),
			Once:    true,
			Out:     &out,
		}) == nil
	}, 2*time.Second, 20*time.Millisecond)

	require.Contains(t, out.String(), "stage=out_of_range")
	require.Contains(t, out.String(), "connected_peers=0")

	out.Reset()
	require.NoError(t, Run(context.Background(), &Options{
		Address: n.Addr().String(),
		Once:    true,
		JSON:    true,
		Out:     &out,
	}))

	var decoded structpb.Struct
	require.NoError(t, protojson.Unmarshal(bytes.TrimSpace(out.Bytes()), &decoded))
	require.Equal(t, "out_of_range", decoded.GetFields()["stage"].GetStringValue())
	require.Empty(t, decoded.GetFields()["peer_name"].GetStringValue())

	_, isNull := decoded.GetFields()["nearest_distance"].GetKind().(*structpb.Value_NullValue)
	require.True(t, isNull)
}

// TestRun_NoAddress fails when the configuration cannot be loaded.
func TestRun_NoAddress(t *testing.T) {
	t.Parallel()

	err := Run(context.Background(), &Options{ConfigPath: "does-not-exist.yaml", Once: true})
	require.Error(t, err)
}
