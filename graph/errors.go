package graph

import (
	"errors"
	"fmt"
	"strings"
)

// Schema resolution errors are configuration defects: they are returned
// synchronously from Resolve, named per cause, and must never be retried.

// AmbiguousInverseError reports an edge with more than one inverse
// candidate on the target table.
type AmbiguousInverseError struct {
	Table      string
	Edge       string
	Target     string
	Candidates []string
}

// Error returns the error string.
func (e *AmbiguousInverseError) Error() string {
	return fmt.Sprintf("graph: ambiguous inverse for edge %s.%s: candidates on %q: %s",
		e.Table, e.Edge, e.Target, strings.Join(e.Candidates, ", "))
}

// IsAmbiguousInverse returns true if the error is an AmbiguousInverseError.
func IsAmbiguousInverse(err error) bool {
	var e *AmbiguousInverseError
	return errors.As(err, &e)
}

// MissingInverseError reports an edge that requires a matching inverse
// declaration on the target table but has none.
type MissingInverseError struct {
	Table  string
	Edge   string
	Target string
}

// Error returns the error string.
func (e *MissingInverseError) Error() string {
	return fmt.Sprintf("graph: edge %s.%s has no matching inverse edge on table %q",
		e.Table, e.Edge, e.Target)
}

// IsMissingInverse returns true if the error is a MissingInverseError.
func IsMissingInverse(err error) bool {
	var e *MissingInverseError
	return errors.As(err, &e)
}

// StorageConflictError reports an edge pair whose declared cardinalities or
// storage strategies cannot be resolved into one consistent decision.
type StorageConflictError struct {
	Table   string
	Edge    string
	Inverse string // inverse edge name, if any
	Reason  string
}

// Error returns the error string.
func (e *StorageConflictError) Error() string {
	if e.Inverse != "" {
		return fmt.Sprintf("graph: edge %s.%s and inverse %q: %s", e.Table, e.Edge, e.Inverse, e.Reason)
	}
	return fmt.Sprintf("graph: edge %s.%s: %s", e.Table, e.Edge, e.Reason)
}

// IsStorageConflict returns true if the error is a StorageConflictError.
func IsStorageConflict(err error) bool {
	var e *StorageConflictError
	return errors.As(err, &e)
}

// DeletionConfigError reports an edge cascading softly into a table that is
// not configured for soft or scheduled deletion.
type DeletionConfigError struct {
	Table  string
	Edge   string
	Target string
}

// Error returns the error string.
func (e *DeletionConfigError) Error() string {
	return fmt.Sprintf("graph: edge %s.%s cascades softly but table %q has no soft or scheduled deletion configured",
		e.Table, e.Edge, e.Target)
}

// IsDeletionConfig returns true if the error is a DeletionConfigError.
func IsDeletionConfig(err error) bool {
	var e *DeletionConfigError
	return errors.As(err, &e)
}

// UnknownTableError reports an edge pointing at a table that was never
// declared.
type UnknownTableError struct {
	Table  string
	Edge   string
	Target string
}

// Error returns the error string.
func (e *UnknownTableError) Error() string {
	return fmt.Sprintf("graph: edge %s.%s points at unknown table %q", e.Table, e.Edge, e.Target)
}

// IsUnknownTable returns true if the error is an UnknownTableError.
func IsUnknownTable(err error) bool {
	var e *UnknownTableError
	return errors.As(err, &e)
}
