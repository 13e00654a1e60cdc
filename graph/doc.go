// Package graph turns per-table schema descriptors into a fully resolved,
// mutually consistent entity graph. Resolution is a single synchronous pass
// at schema-build time: it pairs each declared edge with its inverse,
// decides the storage strategy of every relationship, synthesizes join
// tables for many:many edges, and validates deletion configuration across
// both ends.
//
// The resolved Graph is the immutable registry consumed read-only by the
// runtime: the writer and the deletion scheduler look up tables, edges,
// indexes and unique columns through it but never modify it.
package graph
