package schema

import (
	"fmt"
	"time"

	"github.com/get-convex/convex-ents/schema/edge"
	"github.com/get-convex/convex-ents/schema/field"
	"github.com/get-convex/convex-ents/schema/index"
)

// DeletionBehavior is the deletion strategy configured for a table.
type DeletionBehavior int

// Deletion behaviors.
const (
	// DeletionNone removes documents immediately.
	DeletionNone DeletionBehavior = iota
	// DeletionSoft marks documents with a deletion timestamp instead of
	// removing them.
	DeletionSoft
	// DeletionScheduled soft-deletes immediately and enqueues a deferred
	// hard-deletion job for the document and everything behind its
	// cascading edges.
	DeletionScheduled
)

// String returns the behavior name.
func (d DeletionBehavior) String() string {
	switch d {
	case DeletionNone:
		return "none"
	case DeletionSoft:
		return "soft"
	case DeletionScheduled:
		return "scheduled"
	}
	return fmt.Sprintf("DeletionBehavior(%d)", int(d))
}

// DeletionConfig is a table's deletion strategy, with an optional delay
// before the scheduled hard-deletion job runs.
type DeletionConfig struct {
	Behavior DeletionBehavior `json:"behavior,omitempty"`
	Delay    time.Duration    `json:"delay,omitempty"`
}

// TableDescriptor is the immutable intermediate representation of one
// table: everything declared on it, before any cross-table resolution.
type TableDescriptor struct {
	Name     string              `json:"name,omitempty"`
	Fields   []*field.Descriptor `json:"fields,omitempty"`
	Edges    []*edge.Descriptor  `json:"edges,omitempty"`
	Indexes  []*index.Descriptor `json:"indexes,omitempty"`
	Deletion DeletionConfig      `json:"deletion,omitempty"`
}

// Builder accumulates table declarations and produces their intermediate
// representations. Cross-table consistency is not checked here; that is the
// resolver's job.
type Builder struct {
	tables []*TableBuilder
	byName map[string]*TableBuilder
	errs   []error
}

// New returns an empty schema builder.
func New() *Builder {
	return &Builder{byName: make(map[string]*TableBuilder)}
}

// Table declares a new table and returns its builder. Declaring the same
// table twice is a build error.
func (b *Builder) Table(name string) *TableBuilder {
	t := &TableBuilder{name: name}
	switch {
	case name == "":
		b.errs = append(b.errs, fmt.Errorf("table name cannot be empty"))
	case b.byName[name] != nil:
		b.errs = append(b.errs, fmt.Errorf("table %q declared twice", name))
	default:
		b.byName[name] = t
	}
	b.tables = append(b.tables, t)
	return t
}

// Build validates each table in isolation and returns the immutable
// per-table descriptors, in declaration order.
func (b *Builder) Build() ([]*TableDescriptor, error) {
	if len(b.errs) > 0 {
		return nil, b.errs[0]
	}
	out := make([]*TableDescriptor, 0, len(b.tables))
	for _, t := range b.tables {
		td, err := t.build()
		if err != nil {
			return nil, fmt.Errorf("table %q: %w", t.name, err)
		}
		out = append(out, td)
	}
	return out, nil
}

// TableBuilder accumulates the declarations of a single table.
type TableBuilder struct {
	name     string
	fields   []*field.Builder
	edges    []*edge.Builder
	indexes  []*index.Builder
	deletion DeletionConfig
}

// Fields appends field declarations to the table.
func (t *TableBuilder) Fields(fields ...*field.Builder) *TableBuilder {
	t.fields = append(t.fields, fields...)
	return t
}

// Edges appends edge declarations to the table.
func (t *TableBuilder) Edges(edges ...*edge.Builder) *TableBuilder {
	t.edges = append(t.edges, edges...)
	return t
}

// Indexes appends index declarations to the table.
func (t *TableBuilder) Indexes(indexes ...*index.Builder) *TableBuilder {
	t.indexes = append(t.indexes, indexes...)
	return t
}

// SoftDeletion configures the table for soft deletion.
func (t *TableBuilder) SoftDeletion() *TableBuilder {
	t.deletion = DeletionConfig{Behavior: DeletionSoft}
	return t
}

// ScheduledDeletion configures the table for scheduled deletion: a delete
// soft-deletes immediately and enqueues the hard-deletion cascade after the
// given delay.
func (t *TableBuilder) ScheduledDeletion(delay time.Duration) *TableBuilder {
	t.deletion = DeletionConfig{Behavior: DeletionScheduled, Delay: delay}
	return t
}

// reserved field names that every document carries implicitly.
var reserved = map[string]bool{
	"_id":           true,
	"_creationTime": true,
}

func (t *TableBuilder) build() (*TableDescriptor, error) {
	td := &TableDescriptor{
		Name:     t.name,
		Deletion: t.deletion,
		Fields:   make([]*field.Descriptor, 0, len(t.fields)),
		Edges:    make([]*edge.Descriptor, 0, len(t.edges)),
		Indexes:  make([]*index.Descriptor, 0, len(t.indexes)),
	}
	fields := make(map[string]bool, len(t.fields))
	for _, fb := range t.fields {
		fd := fb.Descriptor()
		switch {
		case fd.Err != nil:
			return nil, fd.Err
		case !fd.Type.Valid():
			return nil, fmt.Errorf("field %q: invalid type", fd.Name)
		case reserved[fd.Name]:
			return nil, fmt.Errorf("field %q: name is reserved", fd.Name)
		case fields[fd.Name]:
			return nil, fmt.Errorf("field %q redeclared", fd.Name)
		}
		fields[fd.Name] = true
		td.Fields = append(td.Fields, fd)
	}
	edges := make(map[string]bool, len(t.edges))
	for _, eb := range t.edges {
		ed := eb.Descriptor()
		switch {
		case ed.Err != nil:
			return nil, ed.Err
		case edges[ed.Name]:
			return nil, fmt.Errorf("edge %q redeclared", ed.Name)
		case fields[ed.Name]:
			return nil, fmt.Errorf("edge %q conflicts with a field of the same name", ed.Name)
		}
		edges[ed.Name] = true
		td.Edges = append(td.Edges, ed)
		// Foreign-key columns are indexable even when not declared as fields.
		if ed.Field != "" {
			fields[ed.Field] = true
		}
	}
	if t.deletion.Behavior != DeletionNone {
		fields["deletionTime"] = true
	}
	for _, ib := range t.indexes {
		id := ib.Descriptor()
		if id.Err != nil {
			return nil, id.Err
		}
		for _, f := range id.Fields {
			if !fields[f] && !reserved[f] {
				return nil, fmt.Errorf("index covers unknown field %q", f)
			}
		}
		td.Indexes = append(td.Indexes, id)
	}
	return td, nil
}
