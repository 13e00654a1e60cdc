// Package memstore is the in-memory storage driver. It keeps every table as
// a map of documents plus a (creation time, id) ordering, serializes units
// of work under one lock and stages writes so a failed unit leaves no trace.
// It is the reference driver: tests and embedded use run against it.
package memstore

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/get-convex/convex-ents"
	"github.com/get-convex/convex-ents/graph"
	"github.com/get-convex/convex-ents/storage"
)

// Store is an in-memory document store over a resolved graph.
type Store struct {
	g *graph.Graph

	mu     sync.Mutex
	tables map[string]*table
	clock  int64
}

type table struct {
	docs  map[ents.ID]ents.Document
	order []rowKey // sorted by (creation, id); creation is strictly monotonic
}

type rowKey struct {
	creation int64
	id       ents.ID
}

// New returns an empty store holding one table per resolved graph table,
// join tables included.
func New(g *graph.Graph) *Store {
	s := &Store{g: g, tables: make(map[string]*table, len(g.Tables))}
	for _, t := range g.Tables {
		s.tables[t.Name] = &table{docs: make(map[ents.ID]ents.Document)}
	}
	return s
}

// Run executes fn as one atomic unit of work. Writes are staged and applied
// only when fn returns nil; units are fully serialized.
func (s *Store) Run(ctx context.Context, fn func(tx storage.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tx := &memTx{s: s, staged: make(map[string]*table, len(s.tables)), clock: s.clock}
	for name, t := range s.tables {
		tx.staged[name] = &table{
			docs:  cloneDocs(t.docs),
			order: append([]rowKey(nil), t.order...),
		}
	}
	if err := fn(tx); err != nil {
		return err
	}
	s.tables = tx.staged
	s.clock = tx.clock
	return nil
}

// Close releases the store. It exists to satisfy the driver contract.
func (s *Store) Close() error { return nil }

func cloneDocs(docs map[ents.ID]ents.Document) map[ents.ID]ents.Document {
	out := make(map[ents.ID]ents.Document, len(docs))
	for id, d := range docs {
		out[id] = d
	}
	return out
}

type memTx struct {
	s      *Store
	staged map[string]*table
	clock  int64
}

func (tx *memTx) table(name string) (*table, error) {
	t, ok := tx.staged[name]
	if !ok {
		return nil, fmt.Errorf("memstore: unknown table %q", name)
	}
	return t, nil
}

// Get returns a copy of the document with the given id.
func (tx *memTx) Get(ctx context.Context, tbl string, id ents.ID) (ents.Document, error) {
	t, err := tx.table(tbl)
	if err != nil {
		return nil, err
	}
	doc, ok := t.docs[id]
	if !ok {
		return nil, ents.NewNotFoundError(tbl, id)
	}
	return doc.Clone(), nil
}

// Insert stores a new document, assigning the next monotonic creation
// timestamp.
func (tx *memTx) Insert(ctx context.Context, tbl string, doc ents.Document) error {
	t, err := tx.table(tbl)
	if err != nil {
		return err
	}
	id := doc.ID()
	if id == "" {
		return fmt.Errorf("memstore: insert into %q without an id", tbl)
	}
	if _, ok := t.docs[id]; ok {
		return &ents.DuplicateValueError{Table: tbl, Field: ents.FieldID, Value: string(id), ConflictingID: id}
	}
	tx.clock++
	stored := doc.Clone()
	stored[ents.FieldCreationTime] = tx.clock
	t.docs[id] = stored
	t.order = append(t.order, rowKey{creation: tx.clock, id: id})
	return nil
}

// Patch merges fields into an existing document. A nil value removes the
// field.
func (tx *memTx) Patch(ctx context.Context, tbl string, id ents.ID, patch map[string]any) error {
	t, err := tx.table(tbl)
	if err != nil {
		return err
	}
	doc, ok := t.docs[id]
	if !ok {
		return ents.NewNotFoundError(tbl, id)
	}
	next := doc.Clone()
	for k, v := range patch {
		if v == nil {
			delete(next, k)
			continue
		}
		next[k] = v
	}
	t.docs[id] = next
	return nil
}

// Delete removes the document with the given id.
func (tx *memTx) Delete(ctx context.Context, tbl string, id ents.ID) error {
	t, err := tx.table(tbl)
	if err != nil {
		return err
	}
	doc, ok := t.docs[id]
	if !ok {
		return ents.NewNotFoundError(tbl, id)
	}
	delete(t.docs, id)
	key := rowKey{creation: doc.CreationTime(), id: id}
	i := sort.Search(len(t.order), func(i int) bool { return !less(t.order[i], key) })
	if i < len(t.order) && t.order[i] == key {
		t.order = append(t.order[:i], t.order[i+1:]...)
	}
	return nil
}

// Scan fetches one page of rows matching the query, in (creation time, id)
// order strictly after the cursor. The page honors the row limit and the
// byte budget but always contains at least one matching row.
func (tx *memTx) Scan(ctx context.Context, q storage.ScanQuery) (storage.Page, error) {
	t, err := tx.table(q.Table)
	if err != nil {
		return storage.Page{}, err
	}
	gt, ok := tx.s.g.Table(q.Table)
	if !ok {
		return storage.Page{}, fmt.Errorf("memstore: table %q not in schema", q.Table)
	}
	idx, ok := gt.Index(q.Index)
	if !ok {
		return storage.Page{}, fmt.Errorf("memstore: unknown index %q on table %q", q.Index, q.Table)
	}
	column := idx.Fields[0]

	after := rowKey{creation: q.After.CreationTime, id: q.After.ID}
	start := sort.Search(len(t.order), func(i int) bool { return less(after, t.order[i]) })

	var page storage.Page
	page.Cursor = q.After
	for i := start; i < len(t.order); i++ {
		key := t.order[i]
		doc := t.docs[key.id]
		if !valueEqual(doc[column], q.Value) {
			continue
		}
		if len(page.Rows) > 0 {
			if q.Limit > 0 && len(page.Rows) >= q.Limit {
				page.HasMore = true
				break
			}
			if q.MaxBytes > 0 && page.BytesRead >= q.MaxBytes {
				page.HasMore = true
				break
			}
		}
		page.Rows = append(page.Rows, doc.Clone())
		page.BytesRead += int(doc.Size())
		page.Cursor = storage.Cursor{CreationTime: key.creation, ID: key.id}
	}
	return page, nil
}

func less(a, b rowKey) bool {
	if a.creation != b.creation {
		return a.creation < b.creation
	}
	return a.id < b.id
}

func valueEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == b
	}
	return reflect.DeepEqual(a, b)
}
