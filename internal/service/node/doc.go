// Package node assembles and runs a proximity node: the coordinator, the gRPC
// peer link, the simulated ranging collaborator, the presentation API and the
// optional Prometheus endpoint.
package node
