package writer

import (
	"context"
	"time"

	"github.com/get-convex/convex-ents"
	"github.com/get-convex/convex-ents/graph"
	"github.com/get-convex/convex-ents/schema"
	"github.com/get-convex/convex-ents/storage"
)

// scheduledJob is a hard-deletion cascade to enqueue once the enclosing
// unit of work commits.
type scheduledJob struct {
	table        string
	id           ents.ID
	deletionTime int64
	delay        time.Duration
}

// DeleteID deletes a document. Depending on the behavior and the table's
// deletion configuration this is a hard delete with synchronous cascading
// edge cleanup, a soft delete marking a deletion timestamp, or a soft
// delete plus a deferred hard-deletion cascade. The write and its edge
// cleanup commit as one atomic unit; scheduling happens after the commit.
func (w *Writer) DeleteID(ctx context.Context, table string, id ents.ID, behavior Behavior) error {
	if _, err := w.mutableTable(table, "delete"); err != nil {
		return err
	}
	var jobs []scheduledJob
	err := w.store.Run(ctx, func(tx storage.Tx) error {
		var err error
		jobs, err = w.deleteInTx(ctx, tx, table, id, behavior, true)
		if err != nil {
			return err
		}
		// A job with nowhere to go must fail here, rolling the soft delete
		// back with the rest of the unit of work.
		if len(jobs) > 0 && w.machine == nil {
			return &ents.ConfigMismatchError{Table: jobs[0].table, Msg: "scheduled deletion configured but no deletion machine attached"}
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, job := range jobs {
		w.log.Info("scheduling hard-deletion cascade",
			"table", job.table, "id", job.id, "delay", job.delay)
		if err := w.machine.Schedule(ctx, job.table, job.id, job.deletionTime, job.delay); err != nil {
			return err
		}
	}
	return nil
}

// deleteInTx deletes one document inside an open unit of work, cascading
// through its edges. root distinguishes the caller's delete from recursive
// cascade steps: a missing document fails the former and is a benign race
// for the latter.
func (w *Writer) deleteInTx(ctx context.Context, tx storage.Tx, table string, id ents.ID, behavior Behavior, root bool) ([]scheduledJob, error) {
	t, err := w.table(table)
	if err != nil {
		return nil, err
	}
	doc, err := tx.Get(ctx, table, id)
	if ents.IsNotFound(err) {
		if root {
			return nil, err
		}
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if err := w.policy(table).EvalWrite(ctx, ents.OpDelete, table, doc, nil); err != nil {
		return nil, &ents.PolicyDeniedError{Table: table, Op: ents.OpDelete.String(), Err: err}
	}

	softConfigured := t.Deletion.Behavior != schema.DeletionNone
	if behavior == Soft && !softConfigured {
		return nil, &ents.ConfigMismatchError{Table: table, Msg: "soft delete requested but no soft or scheduled deletion configured"}
	}
	isSoft := behavior != Hard && softConfigured

	var jobs []scheduledJob
	for _, e := range t.Edges {
		switch e.Storage {
		case graph.StorageRef:
			childJobs, err := w.cleanupRefEdge(ctx, tx, e, id, isSoft)
			if err != nil {
				return nil, err
			}
			jobs = append(jobs, childJobs...)
		case graph.StorageJoin:
			if isSoft {
				continue
			}
			if err := w.cleanupJoinEdge(ctx, tx, e, id); err != nil {
				return nil, err
			}
		}
	}

	if isSoft {
		deletionTime := w.now()
		if err := tx.Patch(ctx, table, id, map[string]any{ents.FieldDeletionTime: deletionTime}); err != nil {
			return nil, err
		}
		w.log.Debug("soft-deleted document", "table", table, "id", id)
		if t.Deletion.Behavior == schema.DeletionScheduled {
			jobs = append(jobs, scheduledJob{table: table, id: id, deletionTime: deletionTime, delay: t.Deletion.Delay})
		}
		return jobs, nil
	}

	// "Already absent" is success: a concurrent cascade may have reached
	// this document via another edge path.
	err = tx.Delete(ctx, table, id)
	if err != nil && !ents.IsNotFound(err) {
		return nil, err
	}
	w.log.Debug("hard-deleted document", "table", table, "id", id)
	return jobs, nil
}

// cleanupRefEdge handles the far side of an edge whose foreign key lives on
// the far table. Required edges cascade: the key can never be left
// dangling, so the far rows are deleted (softly when the edge cascades
// softly during a soft delete). Optional edges get their key cleared on a
// hard delete and are untouched on a soft one.
func (w *Writer) cleanupRefEdge(ctx context.Context, tx storage.Tx, e *graph.Edge, id ents.ID, isSoft bool) ([]scheduledJob, error) {
	if e.Optional {
		if isSoft {
			return nil, nil
		}
		return nil, w.forEachRow(ctx, tx, e, id, func(row ents.Document) error {
			return tx.Patch(ctx, e.To, row.ID(), map[string]any{e.Ref: nil})
		})
	}
	if isSoft && !e.SoftDeletion {
		return nil, nil
	}
	childBehavior := Hard
	if isSoft {
		childBehavior = Soft
	}
	var jobs []scheduledJob
	err := w.forEachRow(ctx, tx, e, id, func(row ents.Document) error {
		childJobs, err := w.deleteInTx(ctx, tx, e.To, row.ID(), childBehavior, false)
		if err != nil {
			return err
		}
		jobs = append(jobs, childJobs...)
		return nil
	})
	return jobs, err
}

// cleanupJoinEdge removes the join rows of a many:many edge, both index
// directions when symmetric. Join rows are owned by the relationship, never
// cascading into the endpoint entities.
func (w *Writer) cleanupJoinEdge(ctx context.Context, tx storage.Tx, e *graph.Edge, id ents.ID) error {
	deleteRow := func(row ents.Document) error {
		err := tx.Delete(ctx, e.Table, row.ID())
		if ents.IsNotFound(err) {
			return nil
		}
		return err
	}
	if err := w.scanRows(ctx, tx, e.Table, e.JoinField, id, deleteRow); err != nil {
		return err
	}
	if e.Symmetric {
		return w.scanRows(ctx, tx, e.Table, e.JoinRef, id, deleteRow)
	}
	return nil
}

// forEachRow visits every far-side row of a ref edge.
func (w *Writer) forEachRow(ctx context.Context, tx storage.Tx, e *graph.Edge, id ents.ID, fn func(ents.Document) error) error {
	table, index := e.ScanIndex()
	return w.scanRows(ctx, tx, table, index, id, fn)
}

// scanRows pages through an index scan, visiting every matching row. fn
// may delete or unlink the rows it visits; the cursor is unaffected.
func (w *Writer) scanRows(ctx context.Context, tx storage.Tx, table, index string, id ents.ID, fn func(ents.Document) error) error {
	var after storage.Cursor
	for {
		page, err := tx.Scan(ctx, storage.ScanQuery{
			Table: table,
			Index: index,
			Value: string(id),
			After: after,
			Limit: w.cfg.PaginatePageSize,
		})
		if err != nil {
			return err
		}
		for _, row := range page.Rows {
			if err := fn(row); err != nil {
				return err
			}
		}
		if !page.HasMore {
			return nil
		}
		after = page.Cursor
	}
}
