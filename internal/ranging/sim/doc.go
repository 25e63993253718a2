// Package sim provides a simulated ranging collaborator.
//
// Every started session emits DistanceUpdated events on a fixed interval,
// following a linear approach from a start distance to a minimum distance.
// It stands in for radio-based ranging on hosts that have none.
package sim
