package proximity

import (
	"fmt"
	"sort"

	lru "github.com/hashicorp/golang-lru/v2"

	domain "github.com/oshokin/nearby-handshake/internal/domain/proximity"
)

// Registry tracks known peers, their connection state and their ranging tokens.
// It is not safe for concurrent use; the coordinator goroutine owns it.
type Registry struct {
	// peers holds every peer that is not Disconnected.
	peers map[domain.PeerID]*domain.PeerRecord
	// byToken maps a token key back to the peer that sent it.
	byToken map[string]domain.PeerID
	// departed remembers disconnected peers so reconnects keep their display name.
	departed *lru.Cache[domain.PeerID, *domain.PeerRecord]
	// lastName is the most recent display name received from any peer.
	lastName string
}

// Transition describes the effect of a connection state change.
type Transition struct {
	// Record is the peer record after the change.
	Record *domain.PeerRecord
	// Previous is the state before the change.
	Previous domain.ConnectionState
	// Entered is true when the peer has just become Connected.
	Entered bool
	// Left is true when the peer has just stopped being Connected.
	Left bool
	// DroppedToken is the token invalidated by leaving Connected.
	DroppedToken domain.RangingToken
}

// NewRegistry creates a registry remembering up to departedCapacity disconnected peers.
func NewRegistry(departedCapacity int) (*Registry, error) {
	departed, err := lru.New[domain.PeerID, *domain.PeerRecord](departedCapacity)
	if err != nil {
		return nil, fmt.Errorf("create departed cache: %w", err)
	}

	return &Registry{
		peers:    make(map[domain.PeerID]*domain.PeerRecord),
		byToken:  make(map[string]domain.PeerID),
		departed: departed,
	}, nil
}

// SetState applies a connection state change reported by the transport.
// Entering Connected starts a new epoch and re-arms the peer. Leaving
// Connected clears the token, the reverse mapping and the last sample.
func (r *Registry) SetState(id domain.PeerID, state domain.ConnectionState) Transition {
	rec := r.lookupOrRestore(id)

	tr := Transition{
		Record:   rec,
		Previous: rec.State,
	}

	if rec.State == state {
		return tr
	}

	if rec.State == domain.Connected {
		tr.Left = true
		tr.DroppedToken = r.clearRanging(rec)
		rec.Armed = false
	}

	rec.State = state

	switch state {
	case domain.Connected:
		rec.Epoch++
		rec.Armed = true
		tr.Entered = true
	case domain.Disconnected:
		delete(r.peers, id)
		r.departed.Add(id, rec)
	case domain.Connecting:
	}

	return tr
}

// SetToken stores the peer's token and its reverse mapping.
// It returns the token it replaced, if any.
func (r *Registry) SetToken(id domain.PeerID, token domain.RangingToken) (domain.RangingToken, error) {
	rec, ok := r.peers[id]
	if !ok || rec.State != domain.Connected {
		return nil, fmt.Errorf("set token for %s: %w", id, ErrPeerNotConnected)
	}

	previous := r.clearRanging(rec)

	rec.Token = token.Clone()
	r.byToken[token.Key()] = id

	return previous, nil
}

// SetDisplayName stores the name the peer sent us and publishes it.
func (r *Registry) SetDisplayName(id domain.PeerID, name string) error {
	rec, ok := r.peers[id]
	if !ok {
		return fmt.Errorf("set display name for %s: %w", id, ErrPeerNotConnected)
	}

	rec.DisplayName = name
	r.lastName = name

	return nil
}

// Resolve maps a ranging token back to its peer.
func (r *Registry) Resolve(token domain.RangingToken) (domain.PeerID, bool) {
	id, ok := r.byToken[token.Key()]

	return id, ok
}

// Get returns the live record of a known peer, or nil.
func (r *Registry) Get(id domain.PeerID) *domain.PeerRecord {
	return r.peers[id]
}

// Connected returns the connected peers ordered by PeerID.
func (r *Registry) Connected() []*domain.PeerRecord {
	result := make([]*domain.PeerRecord, 0, len(r.peers))

	for _, rec := range r.peers {
		if rec.State == domain.Connected {
			result = append(result, rec)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].ID.Less(result[j].ID)
	})

	return result
}

// LastDisplayName returns the most recent display name received from any peer.
func (r *Registry) LastDisplayName() string {
	return r.lastName
}

// lookupOrRestore returns the live record, restoring it from the departed
// cache or creating it on first discovery.
func (r *Registry) lookupOrRestore(id domain.PeerID) *domain.PeerRecord {
	if rec, ok := r.peers[id]; ok {
		return rec
	}

	rec, ok := r.departed.Peek(id)
	if ok {
		r.departed.Remove(id)
	} else {
		rec = &domain.PeerRecord{
			ID:    id,
			State: domain.Disconnected,
		}
	}

	r.peers[id] = rec

	return rec
}

// clearRanging drops token, reverse mapping and sample, returning the old token.
func (r *Registry) clearRanging(rec *domain.PeerRecord) domain.RangingToken {
	token := rec.Token
	if token != nil && r.byToken[token.Key()] == rec.ID {
		delete(r.byToken, token.Key())
	}

	rec.Token = nil
	rec.Sample = nil

	return token
}
