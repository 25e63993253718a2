// Package proximity implements the gRPC presentation API of a node.
//
// The nearby.v1.Proximity service exposes the latest published snapshot as a
// google.protobuf.Struct so that status tools can read it without generated code.
package proximity
