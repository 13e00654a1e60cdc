package writer

import (
	"context"
	"fmt"

	"github.com/get-convex/convex-ents"
	"github.com/get-convex/convex-ents/graph"
	"github.com/get-convex/convex-ents/schema/edge"
	"github.com/get-convex/convex-ents/storage"
)

// AddEdge links two documents over a many:many edge. The add is idempotent:
// an existing join row is left alone, and on symmetric edges the mirror row
// is maintained alongside.
func (w *Writer) AddEdge(ctx context.Context, table, edgeName string, from, to ents.ID) error {
	e, err := w.joinEdge(table, edgeName)
	if err != nil {
		return err
	}
	return w.store.Run(ctx, func(tx storage.Tx) error {
		if _, err := tx.Get(ctx, e.To, to); err != nil {
			return err
		}
		if err := w.insertJoinRow(ctx, tx, e, e.JoinField, e.JoinRef, from, to); err != nil {
			return err
		}
		if e.Symmetric {
			return w.insertJoinRow(ctx, tx, e, e.JoinRef, e.JoinField, to, from)
		}
		return nil
	})
}

// RemoveEdge unlinks two documents over a many:many edge, deleting the
// matched join rows by id and swallowing already-absent rows. On symmetric
// edges both directions are removed.
func (w *Writer) RemoveEdge(ctx context.Context, table, edgeName string, from, to ents.ID) error {
	e, err := w.joinEdge(table, edgeName)
	if err != nil {
		return err
	}
	return w.store.Run(ctx, func(tx storage.Tx) error {
		if err := w.deleteJoinRows(ctx, tx, e, e.JoinField, e.JoinRef, from, to); err != nil {
			return err
		}
		if e.Symmetric {
			return w.deleteJoinRows(ctx, tx, e, e.JoinRef, e.JoinField, to, from)
		}
		return nil
	})
}

// SetEdge points a one edge at a new target, or clears it. On a
// field-storage edge this patches the owning document's key. On a
// ref-storage edge it patches the far row's key; clearing a required ref
// edge cascade-deletes the far row, since its key can never be left
// dangling.
func (w *Writer) SetEdge(ctx context.Context, table, edgeName string, id ents.ID, target *ents.ID) error {
	t, err := w.table(table)
	if err != nil {
		return err
	}
	e, ok := t.Edge(edgeName)
	if !ok {
		return fmt.Errorf("writer: unknown edge %s.%s", table, edgeName)
	}
	switch {
	case e.Storage == graph.StorageField:
		if target == nil {
			if !e.Optional {
				return fmt.Errorf("writer: cannot clear required edge %s.%s", table, edgeName)
			}
			return w.Patch(ctx, table, id, map[string]any{e.Field: nil})
		}
		return w.Patch(ctx, table, id, map[string]any{e.Field: string(*target)})

	case e.Storage == graph.StorageRef && e.Cardinality == edge.One:
		return w.setRefEdge(ctx, t, e, id, target)
	}
	return fmt.Errorf("writer: edge %s.%s is not a one edge; use AddEdge/RemoveEdge", table, edgeName)
}

func (w *Writer) setRefEdge(ctx context.Context, t *graph.Table, e *graph.Edge, id ents.ID, target *ents.ID) error {
	return w.store.Run(ctx, func(tx storage.Tx) error {
		// Unlink or delete the current far row first; a unique key must
		// be free before the new target takes it.
		var current ents.Document
		err := w.forEachRow(ctx, tx, e, id, func(row ents.Document) error {
			current = row
			return nil
		})
		if err != nil {
			return err
		}
		if current != nil {
			if e.Optional {
				if err := tx.Patch(ctx, e.To, current.ID(), map[string]any{e.Ref: nil}); err != nil {
					return err
				}
			} else {
				if _, err := w.deleteInTx(ctx, tx, e.To, current.ID(), Hard, false); err != nil {
					return err
				}
			}
		}
		if target == nil {
			return nil
		}
		return tx.Patch(ctx, e.To, *target, map[string]any{e.Ref: string(id)})
	})
}

func (w *Writer) joinEdge(table, edgeName string) (*graph.Edge, error) {
	t, err := w.table(table)
	if err != nil {
		return nil, err
	}
	e, ok := t.Edge(edgeName)
	if !ok {
		return nil, fmt.Errorf("writer: unknown edge %s.%s", table, edgeName)
	}
	if e.Storage != graph.StorageJoin {
		return nil, fmt.Errorf("writer: edge %s.%s is not a many:many edge", table, edgeName)
	}
	return e, nil
}

// insertJoinRow inserts {fieldCol: from, refCol: to} unless a row with that
// pair already exists.
func (w *Writer) insertJoinRow(ctx context.Context, tx storage.Tx, e *graph.Edge, fieldCol, refCol string, from, to ents.ID) error {
	exists := false
	err := w.scanRows(ctx, tx, e.Table, fieldCol, from, func(row ents.Document) error {
		if row[refCol] == string(to) {
			exists = true
		}
		return nil
	})
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return tx.Insert(ctx, e.Table, ents.Document{
		ents.FieldID: string(ents.NewID()),
		fieldCol:     string(from),
		refCol:       string(to),
	})
}

// deleteJoinRows removes every join row matching the pair.
func (w *Writer) deleteJoinRows(ctx context.Context, tx storage.Tx, e *graph.Edge, fieldCol, refCol string, from, to ents.ID) error {
	return w.scanRows(ctx, tx, e.Table, fieldCol, from, func(row ents.Document) error {
		if row[refCol] != string(to) {
			return nil
		}
		err := tx.Delete(ctx, e.Table, row.ID())
		if ents.IsNotFound(err) {
			return nil
		}
		return err
	})
}
