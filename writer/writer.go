// Package writer is the runtime mutation helper. It operates against one
// table at a time, maintaining edge consistency on insert and patch,
// enforcing uniqueness and read/write policies, and performing soft and
// hard deletes with cascading edge cleanup. Deletes on tables configured
// for scheduled deletion soft-delete immediately and hand the hard cascade
// to the deletion machine.
package writer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/get-convex/convex-ents"
	"github.com/get-convex/convex-ents/deletion"
	"github.com/get-convex/convex-ents/graph"
	"github.com/get-convex/convex-ents/privacy"
	"github.com/get-convex/convex-ents/storage"
)

// Behavior selects how DeleteID treats a table's deletion configuration.
type Behavior int

const (
	// Default follows the table's configuration: soft or scheduled
	// tables soft-delete, others hard-delete.
	Default Behavior = iota
	// Soft forces a soft delete. Asking for it on a table with no soft
	// or scheduled deletion configured is a configuration mismatch.
	Soft
	// Hard forces an immediate hard delete with synchronous cascade.
	Hard
)

// String returns the behavior name.
func (b Behavior) String() string {
	switch b {
	case Default:
		return "default"
	case Soft:
		return "soft"
	case Hard:
		return "hard"
	}
	return fmt.Sprintf("Behavior(%d)", int(b))
}

// Writer mutates documents under the resolved graph's edge discipline.
type Writer struct {
	g        *graph.Graph
	store    storage.Driver
	machine  *deletion.Machine
	policies map[string]privacy.Policy
	cfg      ents.Config
	log      *slog.Logger
	now      func() int64
}

// Option configures a Writer.
type Option func(*Writer)

// WithPolicies sets the per-table read/write policies.
func WithPolicies(policies map[string]privacy.Policy) Option {
	return func(w *Writer) { w.policies = policies }
}

// WithMachine sets the deletion machine scheduled deletes are handed to.
// Without one, deletes on scheduled tables fail.
func WithMachine(m *deletion.Machine) Option {
	return func(w *Writer) { w.machine = m }
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(w *Writer) { w.log = log }
}

// WithClock sets the timestamp source for deletion times. Tests use it for
// determinism.
func WithClock(now func() int64) Option {
	return func(w *Writer) { w.now = now }
}

// New returns a writer over the resolved graph and store.
func New(g *graph.Graph, store storage.Driver, cfg ents.Config, opts ...Option) *Writer {
	w := &Writer{
		g:     g,
		store: store,
		cfg:   cfg,
		log:   slog.Default(),
		now:   func() int64 { return time.Now().UnixMilli() },
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *Writer) table(name string) (*graph.Table, error) {
	t, ok := w.g.Table(name)
	if !ok {
		return nil, fmt.Errorf("writer: unknown table %q", name)
	}
	return t, nil
}

// mutableTable resolves a table for a direct mutation. Synthesized join
// tables are rejected: their rows carry invariants (idempotent pairs, mirror
// rows) that only the edge helpers maintain.
func (w *Writer) mutableTable(name, op string) (*graph.Table, error) {
	t, err := w.table(name)
	if err != nil {
		return nil, err
	}
	if t.IsJoin {
		return nil, &ents.JoinTableWriteError{Table: name, Op: op}
	}
	return t, nil
}

func (w *Writer) policy(table string) privacy.Policy {
	return w.policies[table]
}

// Get returns the document with the given id, after evaluating the table's
// read policy against it.
func (w *Writer) Get(ctx context.Context, table string, id ents.ID) (ents.Document, error) {
	if _, err := w.table(table); err != nil {
		return nil, err
	}
	var doc ents.Document
	err := w.store.Run(ctx, func(tx storage.Tx) error {
		var err error
		doc, err = tx.Get(ctx, table, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	if err := w.policy(table).EvalRead(ctx, table, doc); err != nil {
		return nil, &ents.PolicyDeniedError{Table: table, Op: "read", Err: err}
	}
	return doc, nil
}

// Insert stores a new document: write policy, field defaults, foreign-key
// validation and uniqueness checks, then the write. It returns the new id.
func (w *Writer) Insert(ctx context.Context, table string, value map[string]any) (ents.ID, error) {
	t, err := w.mutableTable(table, "insert")
	if err != nil {
		return "", err
	}
	if err := w.policy(table).EvalWrite(ctx, ents.OpCreate, table, nil, value); err != nil {
		return "", &ents.PolicyDeniedError{Table: table, Op: ents.OpCreate.String(), Err: err}
	}

	doc := make(ents.Document, len(value)+2)
	for k, v := range value {
		doc[k] = v
	}
	for _, f := range t.Fields {
		if _, ok := doc[f.Name]; ok {
			continue
		}
		switch {
		case f.Default != nil:
			doc[f.Name] = f.Default
		case !f.Optional:
			return "", fmt.Errorf("writer: missing required field %s.%s", table, f.Name)
		}
	}

	id := ents.NewID()
	doc[ents.FieldID] = string(id)
	err = w.store.Run(ctx, func(tx storage.Tx) error {
		if err := w.checkEdgeTargets(ctx, tx, t, doc); err != nil {
			return err
		}
		if err := w.checkUniqueness(ctx, tx, t, doc, ""); err != nil {
			return err
		}
		return tx.Insert(ctx, table, doc)
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// Patch merges fields into an existing document after policy, foreign-key
// and uniqueness checks.
func (w *Writer) Patch(ctx context.Context, table string, id ents.ID, patch map[string]any) error {
	t, err := w.mutableTable(table, "patch")
	if err != nil {
		return err
	}
	return w.store.Run(ctx, func(tx storage.Tx) error {
		doc, err := tx.Get(ctx, table, id)
		if err != nil {
			return err
		}
		if err := w.policy(table).EvalWrite(ctx, ents.OpUpdate, table, doc, patch); err != nil {
			return &ents.PolicyDeniedError{Table: table, Op: ents.OpUpdate.String(), Err: err}
		}
		candidate := doc.Clone()
		for k, v := range patch {
			if v == nil {
				delete(candidate, k)
				continue
			}
			candidate[k] = v
		}
		if err := w.checkEdgeTargets(ctx, tx, t, candidate); err != nil {
			return err
		}
		if err := w.checkUniqueness(ctx, tx, t, candidate, id); err != nil {
			return err
		}
		return tx.Patch(ctx, table, id, patch)
	})
}

// checkEdgeTargets verifies that every foreign key held by the document
// points at an existing row.
func (w *Writer) checkEdgeTargets(ctx context.Context, tx storage.Tx, t *graph.Table, doc ents.Document) error {
	for _, e := range t.Edges {
		if e.Storage != graph.StorageField {
			continue
		}
		v, ok := doc[e.Field]
		if !ok || v == nil {
			if !e.Optional {
				return fmt.Errorf("writer: missing required edge %s.%s", t.Name, e.Name)
			}
			continue
		}
		target, ok := v.(string)
		if !ok {
			return fmt.Errorf("writer: edge column %s.%s must hold an id", t.Name, e.Field)
		}
		if _, err := tx.Get(ctx, e.To, ents.ID(target)); err != nil {
			return err
		}
	}
	return nil
}

// checkUniqueness queries the backing index of every unique field and
// unique edge column present on the document. A different document already
// holding the value is a duplicate-value error.
func (w *Writer) checkUniqueness(ctx context.Context, tx storage.Tx, t *graph.Table, doc ents.Document, self ents.ID) error {
	for _, column := range t.UniqueColumns() {
		v, ok := doc[column]
		if !ok || v == nil {
			continue
		}
		page, err := tx.Scan(ctx, storage.ScanQuery{
			Table: t.Name,
			Index: column,
			Value: v,
			Limit: 2,
		})
		if err != nil {
			return err
		}
		for _, row := range page.Rows {
			if row.ID() != self {
				return &ents.DuplicateValueError{
					Table:         t.Name,
					Field:         column,
					Value:         v,
					ConflictingID: row.ID(),
				}
			}
		}
	}
	return nil
}
