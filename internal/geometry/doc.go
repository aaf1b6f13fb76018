// Package geometry implements the similarity engine underneath trust
// establishment: fixed-dimension trust vectors over the closed behavioral
// category set, cosine overlap with per-category alignment classification,
// and a stable content hash of a vector's canonical form. All functions are
// pure and side-effect free.
package geometry
