package proximity

import (
	"fmt"
	"math"
	"time"

	domain "github.com/oshokin/nearby-handshake/internal/domain/proximity"
)

// Aggregator keeps the latest distance per connected peer and derives the
// nearest distance from them.
type Aggregator struct {
	// registry owns the records the samples are stored on.
	registry *Registry
	// ttl is the maximum sample age; zero accepts samples of any age.
	ttl time.Duration
}

// NewAggregator creates an aggregator over the registry's records.
func NewAggregator(registry *Registry, ttl time.Duration) *Aggregator {
	return &Aggregator{
		registry: registry,
		ttl:      ttl,
	}
}

// OnDistanceSample stores a sample for the peer owning token, replacing the previous one.
// Samples for tokens that no longer belong to a connected peer return ErrUnknownPeerSample:
// a ranging session may outlive its peer's disconnect.
func (a *Aggregator) OnDistanceSample(token domain.RangingToken, distance float64, at time.Time) (domain.PeerID, error) {
	if distance < 0 || math.IsNaN(distance) || math.IsInf(distance, 0) {
		return "", fmt.Errorf("%w: %v", ErrInvalidDistance, distance)
	}

	id, ok := a.registry.Resolve(token)
	if !ok {
		return "", ErrUnknownPeerSample
	}

	rec := a.registry.Get(id)
	if rec == nil || rec.State != domain.Connected {
		return id, ErrUnknownPeerSample
	}

	rec.Sample = &domain.DistanceSample{
		Peer:     id,
		Distance: distance,
		At:       at,
	}

	return id, nil
}

// ComputeNearest returns the smallest fresh sample among connected peers.
// Equal distances resolve to the lowest PeerID.
func (a *Aggregator) ComputeNearest(now time.Time) (domain.DistanceSample, bool) {
	var (
		best  domain.DistanceSample
		found bool
	)

	// Connected is ordered by PeerID, so strict < keeps the lowest id on ties.
	for _, rec := range a.registry.Connected() {
		if rec.Sample == nil || !a.fresh(rec.Sample, now) {
			continue
		}

		if !found || rec.Sample.Distance < best.Distance {
			best = *rec.Sample
			found = true
		}
	}

	return best, found
}

func (a *Aggregator) fresh(sample *domain.DistanceSample, now time.Time) bool {
	return a.ttl <= 0 || now.Sub(sample.At) <= a.ttl
}
