package proximity

import (
	"errors"
	"fmt"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	domain "github.com/oshokin/nearby-handshake/internal/domain/proximity"
)

// Snapshot field names on the wire.
const (
	fieldPeerName        = "peer_name"
	fieldConnected       = "connected"
	fieldNearestDistance = "nearest_distance"
	fieldNearestPeer     = "nearest_peer"
	fieldInRange         = "in_range"
	fieldArmed           = "armed"
	fieldStage           = "stage"
	fieldConnectedPeers  = "connected_peers"
	fieldActionsFired    = "actions_fired"
	fieldUpdatedAt       = "updated_at"
)

var (
	// ErrInvalidSnapshot is returned when a Struct does not describe a snapshot.
	ErrInvalidSnapshot = errors.New("invalid snapshot")

	errSnapshotRequired = errors.New("snapshot is required")
)

// ToStruct converts a snapshot into its wire form. An undefined nearest
// distance is encoded as null.
func ToStruct(snapshot *domain.Snapshot) (*structpb.Struct, error) {
	if snapshot == nil {
		return nil, errSnapshotRequired
	}

	var nearest any
	if snapshot.Nearest != nil {
		nearest = *snapshot.Nearest
	}

	var updatedAt string
	if !snapshot.UpdatedAt.IsZero() {
		updatedAt = snapshot.UpdatedAt.UTC().Format(time.RFC3339Nano)
	}

	out, err := structpb.NewStruct(map[string]any{
		fieldPeerName:        snapshot.PeerName,
		fieldConnected:       snapshot.Connected,
		fieldNearestDistance: nearest,
		fieldNearestPeer:     string(snapshot.NearestPeer),
		fieldInRange:         snapshot.InRange,
		fieldArmed:           snapshot.Armed,
		fieldStage:           snapshot.Stage.String(),
		fieldConnectedPeers:  snapshot.ConnectedPeers,
		fieldActionsFired:    snapshot.ActionsFired,
		fieldUpdatedAt:       updatedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}

	return out, nil
}

// FromStruct converts the wire form back into a snapshot.
func FromStruct(in *structpb.Struct) (*domain.Snapshot, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSnapshot, errSnapshotRequired)
	}

	fields := in.GetFields()

	stage, ok := domain.ParseStage(fields[fieldStage].GetStringValue())
	if !ok {
		return nil, fmt.Errorf("%w: unknown stage %q", ErrInvalidSnapshot, fields[fieldStage].GetStringValue())
	}

	snapshot := &domain.Snapshot{
		PeerName:       fields[fieldPeerName].GetStringValue(),
		Connected:      fields[fieldConnected].GetBoolValue(),
		NearestPeer:    domain.PeerID(fields[fieldNearestPeer].GetStringValue()),
		InRange:        fields[fieldInRange].GetBoolValue(),
		Armed:          fields[fieldArmed].GetBoolValue(),
		Stage:          stage,
		ConnectedPeers: int(fields[fieldConnectedPeers].GetNumberValue()),
		ActionsFired:   uint64(fields[fieldActionsFired].GetNumberValue()),
	}

	if v, ok := fields[fieldNearestDistance].GetKind().(*structpb.Value_NumberValue); ok {
		nearest := v.NumberValue
		snapshot.Nearest = &nearest
	}

	if raw := fields[fieldUpdatedAt].GetStringValue(); raw != "" {
		updatedAt, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, fmt.Errorf("%w: updated_at: %w", ErrInvalidSnapshot, err)
		}

		snapshot.UpdatedAt = updatedAt
	}

	return snapshot, nil
}
