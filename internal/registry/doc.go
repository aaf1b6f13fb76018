// Package registry maintains the persistent table of known peers: their last
// observed geometry hash, overlap against the local baseline, and trust
// status. It owns the status transition rules, the auto-quarantine triggers,
// and the coarse drift check, mirroring every mutation to a durable store.
// One registry instance expects serialized callers; the store implementations
// are individually safe for concurrent use.
package registry
