package proximity

import "errors"

var (
	// ErrTransportSend is returned when a payload could not be handed to the transport.
	// Sends are not retried; the next state change drives the next attempt.
	ErrTransportSend = errors.New("transport send failed")
	// ErrTokenDecode is returned for token payloads with a corrupt body.
	ErrTokenDecode = errors.New("ranging token decode failed")
	// ErrMalformedPayload is returned for payloads that are neither a name nor a token.
	ErrMalformedPayload = errors.New("malformed payload")
	// ErrUnknownPeerSample is returned for samples whose token maps to no connected peer.
	ErrUnknownPeerSample = errors.New("distance sample for unknown peer")
	// ErrRangingInvalidated marks a ranging session failure reported by the collaborator.
	ErrRangingInvalidated = errors.New("ranging session invalidated")
	// ErrInvalidDistance is returned for negative or non-finite distances.
	ErrInvalidDistance = errors.New("invalid distance")
	// ErrPeerNotConnected is returned when a peer-scoped update targets a peer that is not connected.
	ErrPeerNotConnected = errors.New("peer is not connected")
)
