// Package storage defines the transactional document-store contract the
// runtime components operate against: get/insert/patch/delete by id plus
// indexed range scans with cursor-based pagination and per-call byte and
// row accounting.
//
// Two drivers implement it: memstore, an in-memory store for tests and
// embedding, and sqlitestore, backed by an embedded SQLite database.
package storage
