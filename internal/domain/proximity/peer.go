package proximity

import (
	"bytes"
	"time"
)

// PeerID identifies a remote endpoint for the lifetime of a session.
type PeerID string

// Less orders peer identifiers lexically; used for deterministic tie-breaks.
func (id PeerID) Less(other PeerID) bool {
	return id < other
}

// ConnectionState is the link state of a peer.
type ConnectionState int

const (
	// Disconnected means there is no link to the peer.
	Disconnected ConnectionState = iota
	// Connecting means a link is being established.
	Connecting
	// Connected means the link is established and payloads can be exchanged.
	Connected
)

// String implements fmt.Stringer.
func (s ConnectionState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "unknown"
	}
}

// RangingToken is the opaque credential handed to the ranging collaborator.
type RangingToken []byte

// Key returns a value usable as a map key.
func (t RangingToken) Key() string {
	return string(t)
}

// Clone returns a copy of the token.
func (t RangingToken) Clone() RangingToken {
	if t == nil {
		return nil
	}

	return bytes.Clone(t)
}

// Equal reports whether both tokens hold the same bytes.
func (t RangingToken) Equal(other RangingToken) bool {
	return bytes.Equal(t, other)
}

// DistanceSample is the latest distance reported for a peer.
type DistanceSample struct {
	// Peer is the peer the distance was measured to.
	Peer PeerID
	// Distance is a non-negative distance in the ranging collaborator's units.
	Distance float64
	// At is when the coordinator received the sample.
	At time.Time
}

// Clone returns a copy of the sample.
func (s *DistanceSample) Clone() *DistanceSample {
	if s == nil {
		return nil
	}

	cloned := *s

	return &cloned
}

// PeerRecord is everything the registry knows about one peer.
type PeerRecord struct {
	// ID is the peer identifier.
	ID PeerID
	// State is the current connection state.
	State ConnectionState
	// DisplayName is the name the peer sent us, if any.
	DisplayName string
	// Token is the peer's ranging token for the current epoch.
	Token RangingToken
	// Sample is the last distance sample for the current epoch.
	Sample *DistanceSample
	// Armed allows the action to fire once for the current epoch.
	Armed bool
	// Epoch counts transitions into Connected.
	Epoch uint64
}

// Clone returns a deep copy of the record.
func (r *PeerRecord) Clone() *PeerRecord {
	if r == nil {
		return nil
	}

	cloned := *r
	cloned.Token = r.Token.Clone()
	cloned.Sample = r.Sample.Clone()

	return &cloned
}
