package ents

import (
	"errors"
	"fmt"
)

// Standard sentinel errors for common operations.
var (
	// ErrNotFound is returned when a requested document does not exist.
	ErrNotFound = errors.New("ents: document not found")

	// ErrDuplicate is returned when a unique field or unique edge column
	// already holds the candidate value.
	ErrDuplicate = errors.New("ents: duplicate value")
)

// NotFoundError reports a document that does not exist in its table.
type NotFoundError struct {
	Table string
	ID    ID
}

// Error returns the error string.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("ents: document %q not found in table %q", e.ID, e.Table)
}

// Is reports whether the target error matches NotFoundError.
// This allows errors.Is(err, ErrNotFound) to return true.
func (e *NotFoundError) Is(err error) bool {
	return err == ErrNotFound
}

// NewNotFoundError returns a new NotFoundError for the given table and id.
func NewNotFoundError(table string, id ID) *NotFoundError {
	return &NotFoundError{Table: table, ID: id}
}

// IsNotFound returns true if the error is a NotFoundError.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	var e *NotFoundError
	return errors.As(err, &e) || errors.Is(err, ErrNotFound)
}

// DuplicateValueError reports a uniqueness violation: a different document
// already holds the candidate value in a unique field or unique edge column.
type DuplicateValueError struct {
	Table         string
	Field         string
	Value         any
	ConflictingID ID
}

// Error returns the error string.
func (e *DuplicateValueError) Error() string {
	return fmt.Sprintf("ents: duplicate value %v for %s.%s (held by %q)",
		e.Value, e.Table, e.Field, e.ConflictingID)
}

// Is reports whether the target error matches DuplicateValueError.
func (e *DuplicateValueError) Is(err error) bool {
	return err == ErrDuplicate
}

// IsDuplicateValue returns true if the error is a DuplicateValueError.
func IsDuplicateValue(err error) bool {
	if err == nil {
		return false
	}
	var e *DuplicateValueError
	return errors.As(err, &e) || errors.Is(err, ErrDuplicate)
}

// PolicyDeniedError reports a read/write policy rejecting an operation.
type PolicyDeniedError struct {
	Table string
	Op    string // "read" or a WriteOp name
	Err   error  // the Deny decision, if any
}

// Error returns the error string.
func (e *PolicyDeniedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("ents: policy denied %s on %s: %v", e.Op, e.Table, e.Err)
	}
	return fmt.Sprintf("ents: policy denied %s on %s", e.Op, e.Table)
}

// Unwrap returns the underlying decision error.
func (e *PolicyDeniedError) Unwrap() error { return e.Err }

// IsPolicyDenied returns true if the error is a PolicyDeniedError.
func IsPolicyDenied(err error) bool {
	if err == nil {
		return false
	}
	var e *PolicyDeniedError
	return errors.As(err, &e)
}

// JoinTableWriteError reports a direct mutation attempted on a synthesized
// join table. Join rows are owned by their many:many edge and are written
// only through the edge helpers.
type JoinTableWriteError struct {
	Table string
	Op    string
}

// Error returns the error string.
func (e *JoinTableWriteError) Error() string {
	return fmt.Sprintf("ents: cannot %s on join table %q; join rows are managed through edge writes", e.Op, e.Table)
}

// IsJoinTableWrite returns true if the error is a JoinTableWriteError.
func IsJoinTableWrite(err error) bool {
	if err == nil {
		return false
	}
	var e *JoinTableWriteError
	return errors.As(err, &e)
}

// ConfigMismatchError reports a delete request that contradicts the table's
// deletion configuration, e.g. asking for a soft delete on a table with no
// soft or scheduled deletion configured.
type ConfigMismatchError struct {
	Table string
	Msg   string
}

// Error returns the error string.
func (e *ConfigMismatchError) Error() string {
	return fmt.Sprintf("ents: table %q: %s", e.Table, e.Msg)
}

// IsConfigMismatch returns true if the error is a ConfigMismatchError.
func IsConfigMismatch(err error) bool {
	if err == nil {
		return false
	}
	var e *ConfigMismatchError
	return errors.As(err, &e)
}
