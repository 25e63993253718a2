// Package grpclink implements the peer link over gRPC bidirectional streams.
//
// Every node advertises the nearby.v1.PeerLink service on its gRPC server and
// browses a static list of peer addresses. A link is one Exchange stream; the
// peer identity travels in the x-nearby-peer-id metadata key in both
// directions. Link changes and received payloads are posted as proximity events.
package grpclink
