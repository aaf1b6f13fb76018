// Package handshake implements the stateful session layer of trust
// establishment: deciding accept or reject for inbound handshake requests,
// opening and tearing down in-memory channels, and re-checking open channels
// against fresh geometry. Similarity is always computed through the geometry
// package and peer state always flows through the registry; nothing here
// touches the wire.
package handshake
