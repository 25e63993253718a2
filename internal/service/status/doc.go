// Package status polls the presentation API of a node and prints its snapshot.
package status
