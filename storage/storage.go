package storage

import (
	"context"

	"github.com/get-convex/convex-ents"
)

// Cursor marks a position in an index scan: the creation timestamp and id
// of the last row returned. Rows are ordered by (creation time, id), both
// monotonic, so resuming a scan from the same cursor with no intervening
// writes returns an identical page.
type Cursor struct {
	CreationTime int64   `msgpack:"t"`
	ID           ents.ID `msgpack:"i"`
}

// Zero reports if the cursor is the start-of-scan position.
func (c Cursor) Zero() bool {
	return c.CreationTime == 0 && c.ID == ""
}

// Less orders cursors by (creation time, id).
func (c Cursor) Less(o Cursor) bool {
	if c.CreationTime != o.CreationTime {
		return c.CreationTime < o.CreationTime
	}
	return c.ID < o.ID
}

// ScanQuery describes one bounded index scan: rows of Table whose first
// Index field equals Value, strictly after After, at most Limit rows.
// MaxBytes caps the serialized size read; the scan always returns at least
// one row even over budget, so a caller making progress can never stall.
type ScanQuery struct {
	Table string
	Index string
	// Value is matched against the first field of the index.
	Value any
	After Cursor
	Limit int
	// MaxBytes caps the total serialized size of the returned rows.
	// Zero means no byte cap.
	MaxBytes int
}

// Page is the result of one index scan.
type Page struct {
	Rows []ents.Document
	// Cursor points at the last returned row; resume from it to continue.
	Cursor Cursor
	// HasMore reports if rows past Cursor remained when the scan stopped.
	HasMore bool
	// BytesRead is the total serialized size of the returned rows.
	BytesRead int
}

// Tx is one atomic unit of work against the document store. All reads and
// writes of a Tx commit together or not at all; implementations provide
// serializable isolation between units.
type Tx interface {
	// Get returns the document with the given id. It returns a
	// NotFoundError (unwrapping to ents.ErrNotFound) if no such document
	// exists.
	Get(ctx context.Context, table string, id ents.ID) (ents.Document, error)
	// Insert stores a new document. The document's _id must be set and
	// unused; the store assigns _creationTime.
	Insert(ctx context.Context, table string, doc ents.Document) error
	// Patch merges the given fields into an existing document. A nil
	// value deletes the field.
	Patch(ctx context.Context, table string, id ents.ID, patch map[string]any) error
	// Delete removes the document with the given id, returning a
	// NotFoundError if it does not exist.
	Delete(ctx context.Context, table string, id ents.ID) error
	// Scan fetches one page of an index scan.
	Scan(ctx context.Context, q ScanQuery) (Page, error)
}

// Driver is a document store. Run executes fn inside one atomic unit of
// work, committing its writes iff fn returns nil.
type Driver interface {
	Run(ctx context.Context, fn func(tx Tx) error) error
	Close() error
}
