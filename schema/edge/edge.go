package edge

import "fmt"

// Cardinality is the declared cardinality of an edge.
type Cardinality int

// Edge cardinalities.
const (
	One Cardinality = iota + 1
	Many
)

// String returns the cardinality name.
func (c Cardinality) String() string {
	switch c {
	case One:
		return "one"
	case Many:
		return "many"
	}
	return fmt.Sprintf("Cardinality(%d)", int(c))
}

// Descriptor holds the accumulated declaration of a single edge. The storage
// strategy is not fixed here: it is inferred and validated across both ends
// of the relationship when the full schema is resolved.
type Descriptor struct {
	Name string `json:"name,omitempty"`
	// To is the target table name.
	To          string      `json:"to,omitempty"`
	Cardinality Cardinality `json:"cardinality,omitempty"`

	// Field names the foreign-key column on the declaring table (one edges).
	Field string `json:"field,omitempty"`
	// Ref names the foreign-key column on the target table.
	Ref string `json:"ref,omitempty"`
	// Table names the join table backing a many:many edge.
	Table string `json:"table,omitempty"`
	// Inverse names the matching edge on the target table. It is required
	// for self-directed edges and otherwise narrows inverse matching.
	Inverse string `json:"inverse,omitempty"`

	Unique   bool `json:"unique,omitempty"`
	Optional bool `json:"optional,omitempty"`
	// SoftDeletion marks the edge as cascading softly: soft-deleting the
	// declaring document soft-deletes the documents behind this edge.
	SoftDeletion bool `json:"soft_deletion,omitempty"`

	// Err holds the first builder error. It is surfaced when the enclosing
	// table is built.
	Err error `json:"-"`
}

// Builder is the fluent builder for an edge declaration.
type Builder struct {
	desc *Descriptor
}

// ToOne returns a new edge with cardinality one, pointing at table to.
// By default the declaring table holds the foreign key in a column named
// after the edge; use Ref to place the key on the target table instead.
func ToOne(name, to string) *Builder {
	return newBuilder(name, to, One)
}

// ToMany returns a new edge with cardinality many, pointing at table to.
// Depending on the inverse declaration it resolves to a 1:many edge backed
// by a foreign key on the target table, or to a many:many edge backed by a
// join table.
func ToMany(name, to string) *Builder {
	return newBuilder(name, to, Many)
}

func newBuilder(name, to string, c Cardinality) *Builder {
	b := &Builder{desc: &Descriptor{Name: name, To: to, Cardinality: c}}
	switch {
	case name == "":
		b.desc.Err = fmt.Errorf("edge name cannot be empty")
	case to == "":
		b.desc.Err = fmt.Errorf("edge %q: target table cannot be empty", name)
	}
	return b
}

func (b *Builder) err(format string, a ...any) {
	if b.desc.Err == nil {
		b.desc.Err = fmt.Errorf(format, a...)
	}
}

// Field names the foreign-key column held by the declaring table. Valid
// only on one edges.
func (b *Builder) Field(column string) *Builder {
	switch {
	case b.desc.Cardinality != One:
		b.err("edge %q: Field is allowed only on one edges", b.desc.Name)
	case b.desc.Ref != "":
		b.err("edge %q: Field and Ref are mutually exclusive", b.desc.Name)
	default:
		b.desc.Field = column
	}
	return b
}

// Ref names the foreign-key column held by the target table.
func (b *Builder) Ref(column string) *Builder {
	switch {
	case b.desc.Field != "":
		b.err("edge %q: Field and Ref are mutually exclusive", b.desc.Name)
	case b.desc.Table != "":
		b.err("edge %q: Ref and Table are mutually exclusive", b.desc.Name)
	default:
		b.desc.Ref = column
	}
	return b
}

// Table names the join table backing a many:many edge. Valid only on many
// edges.
func (b *Builder) Table(name string) *Builder {
	switch {
	case b.desc.Cardinality != Many:
		b.err("edge %q: Table is allowed only on many edges", b.desc.Name)
	case b.desc.Ref != "":
		b.err("edge %q: Ref and Table are mutually exclusive", b.desc.Name)
	default:
		b.desc.Table = name
	}
	return b
}

// Inverse names the matching edge declared on the target table. Required
// for self-directed edges.
func (b *Builder) Inverse(name string) *Builder {
	b.desc.Inverse = name
	return b
}

// Unique marks the foreign key unique, turning a one edge into one side of
// a 1:1 relationship.
func (b *Builder) Unique() *Builder {
	if b.desc.Cardinality != One {
		b.err("edge %q: Unique is allowed only on one edges", b.desc.Name)
		return b
	}
	b.desc.Unique = true
	return b
}

// Optional marks the foreign key as optional: documents behind the edge are
// not cascaded into on deletion.
func (b *Builder) Optional() *Builder {
	b.desc.Optional = true
	return b
}

// SoftDeletion marks the edge as cascading softly on soft deletion of the
// declaring document. The target table must itself be configured for soft
// or scheduled deletion.
func (b *Builder) SoftDeletion() *Builder {
	b.desc.SoftDeletion = true
	return b
}

// Descriptor returns the accumulated edge descriptor.
func (b *Builder) Descriptor() *Descriptor {
	return b.desc
}
