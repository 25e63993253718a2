// Package proximity contains the core domain types of a nearby-handshake node.
//
// It defines peers and their connection state, ranging tokens, distance
// samples, the derived proximity state and the Snapshot published to the
// presentation layer, with Clone helpers to avoid leaking internal references.
package proximity
