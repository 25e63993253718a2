// Package config defines the settings of a nearby-handshake node and provides
// helpers to load, validate and save them in YAML format.
//
// Validate fills defaults for everything except the listen address, so a
// minimal file only needs `listen_addr` and, optionally, `peers`.
package config
