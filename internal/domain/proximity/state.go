package proximity

import "time"

// Stage is the debounce stage of the nearest distance signal.
type Stage int

const (
	// OutOfRange means no peer is below the threshold.
	OutOfRange Stage = iota
	// Pending means the nearest peer is below the threshold and the hold is running.
	Pending
	// Stable means the nearest peer stayed below the threshold for the hold duration.
	Stable
)

// String implements fmt.Stringer.
func (s Stage) String() string {
	switch s {
	case OutOfRange:
		return "out_of_range"
	case Pending:
		return "pending"
	case Stable:
		return "stable"
	default:
		return "unknown"
	}
}

// ParseStage converts the String form back into a Stage.
func ParseStage(s string) (Stage, bool) {
	switch s {
	case "out_of_range":
		return OutOfRange, true
	case "pending":
		return Pending, true
	case "stable":
		return Stable, true
	default:
		return OutOfRange, false
	}
}

// ProximityState is recomputed on every aggregation tick.
//
//nolint:revive // proximity.ProximityState keeps the glossary name.
type ProximityState struct {
	// Nearest is the minimum fresh distance among connected peers.
	Nearest *float64
	// InRange is true only while the debouncer is Stable.
	InRange bool
	// Armed reports whether the nearest peer can still trigger the action.
	Armed bool
}

// Snapshot is the read-only view published to the presentation layer.
type Snapshot struct {
	// PeerName is the last display name received from any peer.
	PeerName string
	// Connected is true while at least one peer is connected.
	Connected bool
	// Nearest is the nearest fresh distance, nil when undefined.
	Nearest *float64
	// NearestPeer is the peer Nearest belongs to.
	NearestPeer PeerID
	// InRange mirrors ProximityState.InRange.
	InRange bool
	// Armed mirrors ProximityState.Armed.
	Armed bool
	// Stage is the current debounce stage.
	Stage Stage
	// ConnectedPeers is the number of connected peers.
	ConnectedPeers int
	// ActionsFired counts how many times the action fired since start.
	ActionsFired uint64
	// UpdatedAt is when the snapshot was published.
	UpdatedAt time.Time
}

// Clone returns a copy of the snapshot to avoid leaking internal references.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}

	cloned := *s

	if s.Nearest != nil {
		nearest := *s.Nearest
		cloned.Nearest = &nearest
	}

	return &cloned
}
