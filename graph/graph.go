package graph

import (
	"github.com/get-convex/convex-ents/schema"
	"github.com/get-convex/convex-ents/schema/edge"
	"github.com/get-convex/convex-ents/schema/field"
)

// Storage is the resolved storage strategy of an edge.
type Storage int

// Edge storage strategies.
const (
	// StorageField: the declaring table holds the foreign key.
	StorageField Storage = iota + 1
	// StorageRef: the target table holds the foreign key.
	StorageRef
	// StorageJoin: the relationship is backed by a join table.
	StorageJoin
)

// String returns the storage name.
func (s Storage) String() string {
	switch s {
	case StorageField:
		return "field"
	case StorageRef:
		return "ref"
	case StorageJoin:
		return "join"
	}
	return "unknown"
}

// Edge is a fully resolved edge: one direction of a relationship, with its
// storage decision applied consistently to both declared ends.
type Edge struct {
	// Name is the edge name on the owning table.
	Name string
	// From and To are the owning and target table names.
	From, To string

	Cardinality edge.Cardinality
	Storage     Storage

	// Field is the foreign-key column on From (StorageField).
	Field string
	// Unique marks a StorageField edge as one side of a 1:1 relationship.
	Unique bool

	// Ref is the foreign-key column on To (StorageRef).
	Ref string

	// Table, JoinField and JoinRef describe the join table of a
	// StorageJoin edge: JoinField is From's column, JoinRef is To's.
	Table     string
	JoinField string
	JoinRef   string
	// Symmetric means no distinct inverse edge exists; both directions are
	// served by the same join rows via swapped index lookups.
	Symmetric bool

	// Optional reports if the relationship's foreign key may be absent.
	// Required StorageRef edges cascade on deletion; optional ones do not.
	Optional bool
	// SoftDeletion marks the edge as cascading softly on soft deletion.
	SoftDeletion bool
	// InverseName is the resolved inverse edge name on To, if one was
	// declared.
	InverseName string
}

// ScanIndex returns the table and index a lookup of this edge's rows goes
// through, given the owning document's id as the index value.
func (e *Edge) ScanIndex() (table, index string) {
	switch e.Storage {
	case StorageRef:
		return e.To, e.Ref
	case StorageJoin:
		return e.Table, e.JoinField
	}
	return "", ""
}

// MirrorIndex returns the swapped-direction index of a symmetric join edge.
func (e *Edge) MirrorIndex() (table, index string) {
	if e.Storage != StorageJoin || !e.Symmetric {
		return "", ""
	}
	return e.Table, e.JoinRef
}

// Index is a resolved table index.
type Index struct {
	Name   string
	Fields []string
	Unique bool
}

// Table is one resolved table: its fields, edges, indexes, unique columns
// and deletion configuration. Join tables synthesized during resolution
// appear as regular tables with IsJoin set.
type Table struct {
	Name     string
	Fields   []*field.Descriptor
	Edges    []*Edge
	Indexes  []*Index
	Deletion schema.DeletionConfig
	// IsJoin marks a table synthesized to back a many:many edge.
	IsJoin bool

	fields  map[string]*field.Descriptor
	edges   map[string]*Edge
	indexes map[string]*Index
}

// Edge returns the edge with the given name.
func (t *Table) Edge(name string) (*Edge, bool) {
	e, ok := t.edges[name]
	return e, ok
}

// Field returns the field with the given name.
func (t *Table) Field(name string) (*field.Descriptor, bool) {
	f, ok := t.fields[name]
	return f, ok
}

// Index returns the index with the given name.
func (t *Table) Index(name string) (*Index, bool) {
	i, ok := t.indexes[name]
	return i, ok
}

// UniqueColumns returns the columns checked for uniqueness before insert
// and patch: unique fields plus unique foreign-key columns.
func (t *Table) UniqueColumns() []string {
	var cols []string
	for _, f := range t.Fields {
		if f.Unique {
			cols = append(cols, f.Name)
		}
	}
	for _, e := range t.Edges {
		if e.Storage == StorageField && e.Unique {
			cols = append(cols, e.Field)
		}
	}
	return cols
}

// SoftDeletes reports if the table keeps soft-deleted documents.
func (t *Table) SoftDeletes() bool {
	return t.Deletion.Behavior != schema.DeletionNone
}

// CascadeEdges returns the edges that require cleanup when a document of
// this table is hard-deleted: required ref edges (their foreign key can
// never be left dangling) and join edges (their rows are owned by the
// relationship).
func (t *Table) CascadeEdges() []*Edge {
	var out []*Edge
	for _, e := range t.Edges {
		switch e.Storage {
		case StorageRef:
			if !e.Optional {
				out = append(out, e)
			}
		case StorageJoin:
			out = append(out, e)
		}
	}
	return out
}

// Graph is the immutable, fully resolved schema: the by-table-name registry
// consumed read-only by the runtime components.
type Graph struct {
	Tables []*Table

	byName map[string]*Table
}

// Table returns the resolved table with the given name.
func (g *Graph) Table(name string) (*Table, bool) {
	t, ok := g.byName[name]
	return t, ok
}

// MustTable returns the resolved table with the given name, panicking if it
// does not exist. For use after resolution has validated the schema.
func (g *Graph) MustTable(name string) *Table {
	t, ok := g.byName[name]
	if !ok {
		panic("graph: unknown table " + name)
	}
	return t
}

func newTable(name string, deletion schema.DeletionConfig) *Table {
	return &Table{
		Name:     name,
		Deletion: deletion,
		fields:   make(map[string]*field.Descriptor),
		edges:    make(map[string]*Edge),
		indexes:  make(map[string]*Index),
	}
}

func (t *Table) addField(f *field.Descriptor) {
	t.Fields = append(t.Fields, f)
	t.fields[f.Name] = f
}

func (t *Table) addEdge(e *Edge) {
	t.Edges = append(t.Edges, e)
	t.edges[e.Name] = e
}

func (t *Table) addIndex(i *Index) bool {
	if _, ok := t.indexes[i.Name]; ok {
		return false
	}
	t.Indexes = append(t.Indexes, i)
	t.indexes[i.Name] = i
	return true
}
