package graph

import (
	"fmt"

	"github.com/go-openapi/inflect"

	"github.com/get-convex/convex-ents/schema"
	"github.com/get-convex/convex-ents/schema/edge"
	"github.com/get-convex/convex-ents/schema/field"
)

// Resolve runs the cross-table resolution pass over the per-table
// descriptors: it matches inverse edges, infers missing storage strategies,
// synthesizes join tables and returns the immutable resolved graph. It is a
// pure function of its input; the descriptors are never mutated. Forward and
// inverse edges are processed as one unit, so no edge is resolved twice.
func Resolve(tables []*schema.TableDescriptor) (*Graph, error) {
	r := &resolver{
		descs:     tables,
		byName:    make(map[string]*schema.TableDescriptor, len(tables)),
		processed: make(map[*edge.Descriptor]bool),
		graph:     &Graph{byName: make(map[string]*Table)},
	}
	if err := r.init(); err != nil {
		return nil, err
	}
	for _, td := range tables {
		for _, e := range td.Edges {
			if r.processed[e] {
				continue
			}
			if err := r.resolveEdge(td, e); err != nil {
				return nil, err
			}
		}
	}
	r.finish()
	return r.graph, nil
}

type resolver struct {
	descs     []*schema.TableDescriptor
	byName    map[string]*schema.TableDescriptor
	processed map[*edge.Descriptor]bool
	graph     *Graph
}

// init registers the declared tables and validates every edge's target and
// soft-cascade configuration before any pairing happens.
func (r *resolver) init() error {
	for _, td := range r.descs {
		if _, ok := r.byName[td.Name]; ok {
			return fmt.Errorf("graph: table %q declared twice", td.Name)
		}
		r.byName[td.Name] = td
		t := newTable(td.Name, td.Deletion)
		for _, f := range td.Fields {
			t.addField(f)
		}
		for _, ix := range td.Indexes {
			t.addIndex(&Index{Name: ix.Name, Fields: ix.Fields, Unique: ix.Unique})
		}
		r.graph.Tables = append(r.graph.Tables, t)
		r.graph.byName[td.Name] = t
	}
	for _, td := range r.descs {
		for _, e := range td.Edges {
			target, ok := r.byName[e.To]
			if !ok {
				return &UnknownTableError{Table: td.Name, Edge: e.Name, Target: e.To}
			}
			if e.SoftDeletion && target.Deletion.Behavior == schema.DeletionNone {
				return &DeletionConfigError{Table: td.Name, Edge: e.Name, Target: e.To}
			}
		}
	}
	return nil
}

// finish adds the implicit single-column indexes: one behind every
// foreign-key column, so the ref side of each edge can be scanned, and one
// behind every unique field, backing uniqueness checks. Declared indexes of
// the same name win.
func (r *resolver) finish() {
	for _, t := range r.graph.Tables {
		for _, e := range t.Edges {
			if e.Storage != StorageField {
				continue
			}
			t.addIndex(&Index{Name: e.Field, Fields: []string{e.Field}, Unique: e.Unique})
		}
		for _, f := range t.Fields {
			if f.Unique {
				t.addIndex(&Index{Name: f.Name, Fields: []string{f.Name}, Unique: true})
			}
		}
	}
}

// fkColumn returns the effective foreign-key column of a one edge: the
// explicit Field, or the edge name suffixed with "Id".
func fkColumn(e *edge.Descriptor) string {
	if e.Field != "" {
		return e.Field
	}
	return e.Name + "Id"
}

// findInverse is the inverse matcher. Self-directed edges pair only through
// an explicit inverse name. Otherwise every unprocessed edge on the target
// pointing back at the source is a candidate, narrowed by whatever keys are
// known: an explicit inverse name on either side, a declared ref against the
// candidate's foreign-key column, a declared field against the candidate's
// ref, or a shared join table name. More than one surviving candidate is
// fatal. The matcher is total and deterministic: candidates are considered
// in declaration order and the narrowing depends only on the declarations.
func (r *resolver) findInverse(src *schema.TableDescriptor, e *edge.Descriptor) (*edge.Descriptor, error) {
	target := r.byName[e.To]
	if e.To == src.Name {
		if e.Inverse == "" {
			return nil, nil
		}
		for _, f := range target.Edges {
			if f != e && f.Name == e.Inverse && f.To == src.Name {
				return f, nil
			}
		}
		return nil, &MissingInverseError{Table: src.Name, Edge: e.Name, Target: e.To}
	}
	var cands []*edge.Descriptor
	for _, f := range target.Edges {
		if f == e || r.processed[f] || f.To != src.Name {
			continue
		}
		if e.Inverse != "" && f.Name != e.Inverse {
			continue
		}
		if f.Inverse != "" && f.Inverse != e.Name {
			continue
		}
		if e.Ref != "" && f.Cardinality == edge.One && fkColumn(f) != e.Ref {
			continue
		}
		if f.Ref != "" && e.Cardinality == edge.One && fkColumn(e) != f.Ref {
			continue
		}
		if e.Table != "" && f.Table != "" && f.Table != e.Table {
			continue
		}
		cands = append(cands, f)
	}
	switch len(cands) {
	case 0:
		return nil, nil
	case 1:
		return cands[0], nil
	}
	names := make([]string, len(cands))
	for i, f := range cands {
		names[i] = f.Name
	}
	return nil, &AmbiguousInverseError{Table: src.Name, Edge: e.Name, Target: e.To, Candidates: names}
}

// resolveEdge pairs one declared edge with its inverse (if any) and applies
// the storage decision to both ends.
func (r *resolver) resolveEdge(src *schema.TableDescriptor, e *edge.Descriptor) error {
	inv, err := r.findInverse(src, e)
	if err != nil {
		return err
	}
	r.processed[e] = true
	if inv != nil {
		r.processed[inv] = true
	}

	switch {
	case e.Cardinality == edge.One && inv == nil:
		return r.resolveLoneOne(src, e)
	case e.Cardinality == edge.One && inv.Cardinality == edge.One:
		return r.resolveOneToOne(src, e, inv)
	case e.Cardinality == edge.One: // inv many
		return r.resolveOneToMany(src, e, r.byName[e.To], inv)
	case inv == nil:
		return r.resolveLoneMany(src, e)
	case inv.Cardinality == edge.One:
		return r.resolveOneToMany(r.byName[e.To], inv, src, e)
	default:
		return r.resolveManyToMany(src, e, inv)
	}
}

// resolveLoneOne handles a one edge with no inverse: a plain foreign key on
// the declaring table, with no reverse traversal.
func (r *resolver) resolveLoneOne(src *schema.TableDescriptor, e *edge.Descriptor) error {
	if e.Ref != "" {
		return &MissingInverseError{Table: src.Name, Edge: e.Name, Target: e.To}
	}
	r.addFieldEdge(src.Name, e, "")
	return nil
}

// resolveOneToOne handles a one/one pair: one end must declare (or default
// to) holding the foreign key, the other end resolves to ref storage over
// that column, and the column becomes unique.
func (r *resolver) resolveOneToOne(src *schema.TableDescriptor, e, inv *edge.Descriptor) error {
	refEdge, fieldEdge := e, inv
	if e.Ref == "" {
		refEdge, fieldEdge = inv, e
	}
	if refEdge.Ref == "" || fieldEdge.Ref != "" {
		return &StorageConflictError{
			Table: src.Name, Edge: e.Name, Inverse: inv.Name,
			Reason: "a 1:1 pair needs exactly one end declared with Ref",
		}
	}
	if refEdge.Optional && fieldEdge.Optional {
		return &StorageConflictError{
			Table: src.Name, Edge: e.Name, Inverse: inv.Name,
			Reason: "a 1:1 pair cannot be optional on both ends",
		}
	}
	fieldTable, refTable := r.tableOf(fieldEdge, refEdge)
	column := fkColumn(fieldEdge)
	if refEdge.Ref != column {
		return &StorageConflictError{
			Table: src.Name, Edge: e.Name, Inverse: inv.Name,
			Reason: fmt.Sprintf("declared ref %q does not match foreign-key column %q", refEdge.Ref, column),
		}
	}
	fe := r.addFieldEdge(fieldTable, fieldEdge, refEdge.Name)
	fe.Unique = true
	refTableDesc := r.graph.byName[refTable]
	refTableDesc.addEdge(&Edge{
		Name:         refEdge.Name,
		From:         refTable,
		To:           fieldTable,
		Cardinality:  edge.One,
		Storage:      StorageRef,
		Ref:          column,
		Optional:     fieldEdge.Optional,
		SoftDeletion: refEdge.SoftDeletion,
		InverseName:  fieldEdge.Name,
	})
	return nil
}

// resolveOneToMany handles a 1:many pair: the one end keeps field storage,
// the many end resolves to ref storage over the one end's column.
func (r *resolver) resolveOneToMany(oneTable *schema.TableDescriptor, one *edge.Descriptor, manyTable *schema.TableDescriptor, many *edge.Descriptor) error {
	if one.Ref != "" {
		return &StorageConflictError{
			Table: oneTable.Name, Edge: one.Name, Inverse: many.Name,
			Reason: "the one end of a 1:many pair must hold the foreign key",
		}
	}
	if many.Table != "" {
		return &StorageConflictError{
			Table: manyTable.Name, Edge: many.Name, Inverse: one.Name,
			Reason: "a join table cannot back a 1:many pair",
		}
	}
	column := fkColumn(one)
	if many.Ref != "" && many.Ref != column {
		return &StorageConflictError{
			Table: manyTable.Name, Edge: many.Name, Inverse: one.Name,
			Reason: fmt.Sprintf("declared ref %q does not match foreign-key column %q", many.Ref, column),
		}
	}
	r.addFieldEdge(oneTable.Name, one, many.Name)
	r.graph.byName[manyTable.Name].addEdge(&Edge{
		Name:         many.Name,
		From:         manyTable.Name,
		To:           oneTable.Name,
		Cardinality:  edge.Many,
		Storage:      StorageRef,
		Ref:          column,
		Optional:     one.Optional,
		SoftDeletion: many.SoftDeletion,
		InverseName:  one.Name,
	})
	return nil
}

// resolveLoneMany handles a many edge with no inverse. Self-directed with an
// explicit ref it is a self-referencing 1:many over that column of the same
// table; self-directed without one it is a symmetric many:many; anything
// else is a missing inverse.
func (r *resolver) resolveLoneMany(src *schema.TableDescriptor, e *edge.Descriptor) error {
	if e.To != src.Name {
		return &MissingInverseError{Table: src.Name, Edge: e.Name, Target: e.To}
	}
	if e.Ref != "" {
		r.ensureColumn(src.Name, e.Ref, e.Optional)
		t := r.graph.byName[src.Name]
		t.addEdge(&Edge{
			Name:         e.Name,
			From:         src.Name,
			To:           src.Name,
			Cardinality:  edge.Many,
			Storage:      StorageRef,
			Ref:          e.Ref,
			Optional:     e.Optional,
			SoftDeletion: e.SoftDeletion,
		})
		t.addIndex(&Index{Name: e.Ref, Fields: []string{e.Ref}})
		return nil
	}
	return r.synthesizeJoin(src, e, nil)
}

// resolveManyToMany handles a many/many pair backed by a join table.
func (r *resolver) resolveManyToMany(src *schema.TableDescriptor, e, inv *edge.Descriptor) error {
	if e.Ref != "" || inv.Ref != "" {
		return &StorageConflictError{
			Table: src.Name, Edge: e.Name, Inverse: inv.Name,
			Reason: "Ref is not valid on a many:many pair",
		}
	}
	return r.synthesizeJoin(src, e, inv)
}

// synthesizeJoin creates (or reuses, when both ends name the same table) the
// join table backing a many:many edge, with one foreign-key column and one
// compound index per direction, and attaches a join-storage edge to each
// declared end. inv == nil means the edge is self-directed and symmetric.
func (r *resolver) synthesizeJoin(src *schema.TableDescriptor, e, inv *edge.Descriptor) error {
	name := e.Table
	if name == "" && inv != nil {
		name = inv.Table
	}
	if name == "" {
		name = src.Name + "_" + e.Name
	}
	if _, ok := r.byName[name]; ok {
		return &StorageConflictError{
			Table: src.Name, Edge: e.Name,
			Reason: fmt.Sprintf("join table %q collides with a declared table", name),
		}
	}
	if _, ok := r.graph.byName[name]; ok {
		return &StorageConflictError{
			Table: src.Name, Edge: e.Name,
			Reason: fmt.Sprintf("join table %q synthesized twice", name),
		}
	}

	srcCol := inflect.Singularize(src.Name) + "Id"
	dstCol := inflect.Singularize(e.To) + "Id"
	if srcCol == dstCol {
		// Self-directed: the mirror column needs a distinct name.
		dstCol = "other" + inflect.Capitalize(inflect.Singularize(e.To)) + "Id"
	}

	jt := newTable(name, schema.DeletionConfig{})
	jt.IsJoin = true
	jt.addField(&field.Descriptor{Name: srcCol, Type: field.TypeString})
	jt.addField(&field.Descriptor{Name: dstCol, Type: field.TypeString})
	jt.addIndex(&Index{Name: srcCol, Fields: []string{srcCol, dstCol}})
	jt.addIndex(&Index{Name: dstCol, Fields: []string{dstCol, srcCol}})
	r.graph.Tables = append(r.graph.Tables, jt)
	r.graph.byName[name] = jt

	symmetric := inv == nil
	forward := &Edge{
		Name:         e.Name,
		From:         src.Name,
		To:           e.To,
		Cardinality:  edge.Many,
		Storage:      StorageJoin,
		Table:        name,
		JoinField:    srcCol,
		JoinRef:      dstCol,
		Symmetric:    symmetric,
		Optional:     e.Optional,
		SoftDeletion: e.SoftDeletion,
	}
	if inv != nil {
		forward.InverseName = inv.Name
	}
	r.graph.byName[src.Name].addEdge(forward)
	if inv != nil {
		r.graph.byName[e.To].addEdge(&Edge{
			Name:         inv.Name,
			From:         e.To,
			To:           src.Name,
			Cardinality:  edge.Many,
			Storage:      StorageJoin,
			Table:        name,
			JoinField:    dstCol,
			JoinRef:      srcCol,
			Optional:     inv.Optional,
			SoftDeletion: inv.SoftDeletion,
			InverseName:  e.Name,
		})
	}
	return nil
}

// addFieldEdge attaches a resolved field-storage edge to its owning table
// and materializes the foreign-key column as a field when the schema did not
// declare it.
func (r *resolver) addFieldEdge(table string, e *edge.Descriptor, inverseName string) *Edge {
	column := fkColumn(e)
	r.ensureColumn(table, column, e.Optional)
	re := &Edge{
		Name:         e.Name,
		From:         table,
		To:           e.To,
		Cardinality:  edge.One,
		Storage:      StorageField,
		Field:        column,
		Unique:       e.Unique,
		Optional:     e.Optional,
		SoftDeletion: e.SoftDeletion,
		InverseName:  inverseName,
	}
	r.graph.byName[table].addEdge(re)
	return re
}

// tableOf returns the owning tables of a field/ref edge pair, field end
// first.
func (r *resolver) tableOf(fieldEdge, refEdge *edge.Descriptor) (fieldTable, refTable string) {
	return refEdge.To, fieldEdge.To
}

func (r *resolver) ensureColumn(table, column string, optional bool) {
	t := r.graph.byName[table]
	if _, ok := t.Field(column); ok {
		return
	}
	t.addField(&field.Descriptor{Name: column, Type: field.TypeString, Optional: optional})
}
