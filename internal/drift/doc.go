// Package drift implements the high-precision drift monitor that sweeps the
// known peer set out-of-band. Where the registry's coarse check exists to
// avoid false-positive quarantines during ordinary handshake traffic, this
// detector hunts slow, incremental manipulation of a declared trust profile
// that would stay under the coarse band, trading sensitivity for earlier
// detection. It keeps its own counters and a capped audit ring but persists
// nothing; the registry's stored geometry is its baseline.
package drift
