// Package ents provides an entity-relationship layer over a transactional
// document store. Tables ("ents") declare typed fields and directional edges
// to other tables; the schema packages accumulate those declarations, the
// graph package resolves them into a mutually consistent registry, and the
// writer and deletion packages maintain edge consistency and deletion
// semantics at runtime.
//
// The root package holds the types shared by every layer: document IDs,
// documents and their typed views, write operations, runtime configuration,
// and the error family.
package ents
