package proximity

import (
	"time"

	domain "github.com/oshokin/nearby-handshake/internal/domain/proximity"
)

// Debouncer turns the noisy nearest-distance signal into a stable in-range decision.
//
// The hold timer is a deadline evaluated by Observe on the owning goroutine,
// so cancelling it is a plain state reset with nothing left to race.
type Debouncer struct {
	// threshold is the exclusive upper bound for "in range".
	threshold float64
	// hold is how long the signal must stay below threshold.
	hold time.Duration
	// stage is the current state.
	stage domain.Stage
	// pendingSince is when the current hold started; zero outside Pending/Stable.
	pendingSince time.Time
}

// NewDebouncer creates a debouncer in the OutOfRange stage.
func NewDebouncer(threshold float64, hold time.Duration) *Debouncer {
	return &Debouncer{
		threshold: threshold,
		hold:      hold,
		stage:     domain.OutOfRange,
	}
}

// Observe feeds the current nearest distance (ok=false when undefined).
// It returns true exactly on the Pending -> Stable transition.
func (d *Debouncer) Observe(nearest float64, ok bool, now time.Time) bool {
	// !(a < b) also rejects NaN.
	if !ok || !(nearest < d.threshold) {
		d.Reset()

		return false
	}

	if d.stage == domain.OutOfRange {
		d.stage = domain.Pending
		d.pendingSince = now
	}

	if d.stage == domain.Pending && now.Sub(d.pendingSince) >= d.hold {
		d.stage = domain.Stable

		return true
	}

	return false
}

// Reset returns to OutOfRange and cancels the hold.
func (d *Debouncer) Reset() {
	d.stage = domain.OutOfRange
	d.pendingSince = time.Time{}
}

// Stage returns the current stage.
func (d *Debouncer) Stage() domain.Stage {
	return d.stage
}

// InRange reports whether the stage is Stable.
func (d *Debouncer) InRange() bool {
	return d.stage == domain.Stable
}
