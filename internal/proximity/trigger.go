package proximity

import (
	"context"

	domain "github.com/oshokin/nearby-handshake/internal/domain/proximity"
)

// Action is the one-shot work performed when a peer stays in range.
type Action func(ctx context.Context, target domain.PeerID) error

// Trigger fires the action at most once per armed connection epoch.
type Trigger struct {
	// action is run for the target peer.
	action Action
	// fired counts completed firings.
	fired uint64
}

// NewTrigger creates a trigger for the provided action.
func NewTrigger(action Action) *Trigger {
	return &Trigger{
		action: action,
	}
}

// OnStableConfirmed fires the action for target when it is armed.
// The peer is disarmed before the action runs, so a re-entrant call can not fire twice.
func (t *Trigger) OnStableConfirmed(ctx context.Context, target *domain.PeerRecord) (bool, error) {
	if target == nil || target.State != domain.Connected || !target.Armed {
		return false, nil
	}

	target.Armed = false
	t.fired++

	return true, t.action(ctx, target.ID)
}

// Fired returns how many times the action has fired.
func (t *Trigger) Fired() uint64 {
	return t.fired
}
