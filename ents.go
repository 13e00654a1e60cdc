package ents

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
)

// ID is the identifier of a single document. IDs are opaque strings; new
// ones are generated with NewID and are unique across all tables.
type ID string

// NewID returns a fresh document ID.
func NewID() ID {
	return ID(uuid.NewString())
}

// String returns the ID as a plain string.
func (id ID) String() string { return string(id) }

// Well-known document field names. Every stored document carries an ID and
// a creation timestamp; soft-deleted documents additionally carry a
// deletion timestamp.
const (
	FieldID           = "_id"
	FieldCreationTime = "_creationTime"
	FieldDeletionTime = "deletionTime"
)

// Document is a single stored row: the schema-declared fields plus the
// well-known system fields above. Values are the msgpack/JSON scalar set
// (string, bool, int64, float64, []byte, nil).
type Document map[string]any

// ID returns the document ID, or the empty ID if unset.
func (d Document) ID() ID {
	id, _ := d[FieldID].(string)
	return ID(id)
}

// CreationTime returns the monotonic per-row creation timestamp.
func (d Document) CreationTime() int64 {
	v, _ := asInt64(d[FieldCreationTime])
	return v
}

// DeletionTime returns the soft-deletion timestamp and whether it is set.
func (d Document) DeletionTime() (int64, bool) {
	return asInt64(d[FieldDeletionTime])
}

// asInt64 coerces the integer representations a document value can take on
// after a serialization round trip. msgpack decodes integers at their wire
// width, not the width they were encoded from.
func asInt64(v any) (int64, bool) {
	switch v := v.(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case int8:
		return int64(v), true
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case uint8:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint64:
		return int64(v), true
	case float64:
		return int64(v), true
	}
	return 0, false
}

// SoftDeleted reports if the document carries a deletion timestamp.
func (d Document) SoftDeleted() bool {
	_, ok := d.DeletionTime()
	return ok
}

// Clone returns a shallow copy of the document.
func (d Document) Clone() Document {
	c := make(Document, len(d))
	for k, v := range d {
		c[k] = v
	}
	return c
}

// Size returns the msgpack-encoded size of the document in bytes. It is the
// estimate used for byte-budget accounting on scans.
func (d Document) Size() int64 {
	b, err := msgpack.Marshal(map[string]any(d))
	if err != nil {
		return 0
	}
	return int64(len(b))
}

// Decode decodes a document into a typed value T through msgpack. It is the
// typed view over the loosely-typed document representation:
//
//	type Team struct {
//	    Name string `msgpack:"name"`
//	}
//	team, err := ents.Decode[Team](doc)
func Decode[T any](d Document) (T, error) {
	var v T
	b, err := msgpack.Marshal(map[string]any(d))
	if err != nil {
		return v, fmt.Errorf("ents: encoding document: %w", err)
	}
	if err := msgpack.Unmarshal(b, &v); err != nil {
		return v, fmt.Errorf("ents: decoding document: %w", err)
	}
	return v, nil
}

// WriteOp is the kind of write operation evaluated by write policies.
type WriteOp int

// Write operations.
const (
	OpCreate WriteOp = iota
	OpUpdate
	OpDelete
)

// String returns the operation name.
func (op WriteOp) String() string {
	switch op {
	case OpCreate:
		return "create"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	}
	return fmt.Sprintf("WriteOp(%d)", int(op))
}
