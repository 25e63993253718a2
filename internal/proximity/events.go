package proximity

import (
	"context"
	"time"

	domain "github.com/oshokin/nearby-handshake/internal/domain/proximity"
)

// Event is a unit of work handed to the coordinator by an external producer.
// The set of events is closed; see the types below.
type Event interface {
	// kind names the event in logs and metrics.
	kind() string
}

// PeerStateChanged is reported by the transport when a link changes state.
type PeerStateChanged struct {
	Peer  domain.PeerID
	State domain.ConnectionState
}

// DataReceived is reported by the transport for every inbound payload.
type DataReceived struct {
	Peer    domain.PeerID
	Payload []byte
}

// DistanceUpdated is reported by the ranging collaborator for a running session.
type DistanceUpdated struct {
	Token    domain.RangingToken
	Distance float64
	// At is the measurement time; zero means "now" on the coordinator clock.
	At time.Time
}

// RangingInvalidated is reported when a ranging session fails.
type RangingInvalidated struct {
	Token domain.RangingToken
	Err   error
}

// RangingSuspended is reported when the ranging collaborator pauses all sessions.
type RangingSuspended struct{}

// RangingResumed is reported when a suspension ends.
type RangingResumed struct{}

func (PeerStateChanged) kind() string   { return "peer_state" }
func (DataReceived) kind() string       { return "data" }
func (DistanceUpdated) kind() string    { return "distance" }
func (RangingInvalidated) kind() string { return "ranging_invalidated" }
func (RangingSuspended) kind() string   { return "ranging_suspended" }
func (RangingResumed) kind() string     { return "ranging_resumed" }

// DefaultQueueCapacity is the buffer size used when NewQueue gets a non-positive capacity.
const DefaultQueueCapacity = 256

// Queue hands events from any number of producers to the coordinator.
type Queue struct {
	// events is the buffered channel drained by Coordinator.Run.
	events chan Event
}

// NewQueue creates a queue with the provided buffer capacity.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}

	return &Queue{
		events: make(chan Event, capacity),
	}
}

// Post enqueues ev, blocking until there is room or ctx is done.
func (q *Queue) Post(ctx context.Context, ev Event) error {
	select {
	case q.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
