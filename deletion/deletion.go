// Package deletion implements scheduled cascading deletion: given a
// soft-deleted root, it walks the root's cascade-eligible edges and
// hard-deletes everything transitively reachable. Each invocation runs as
// one atomic unit of work under a document and byte budget; when a budget
// is exhausted the entire traversal stack is serialized and handed back to
// the deferred scheduler, so arbitrarily large subtrees drain across a
// chain of bounded invocations.
package deletion

import (
	"context"
	"log/slog"
	"time"

	"github.com/get-convex/convex-ents"
	"github.com/get-convex/convex-ents/graph"
	"github.com/get-convex/convex-ents/scheduler"
	"github.com/get-convex/convex-ents/storage"
)

// HandlerName is the unit-of-work name the machine registers under.
const HandlerName = "ents.deletion.cascade"

// Machine is the resumable cascading-deletion state machine.
type Machine struct {
	g     *graph.Graph
	store storage.Driver
	sched scheduler.Scheduler
	cfg   ents.Config
	log   *slog.Logger
}

// NewMachine returns a machine over the resolved graph and store,
// checkpointing into sched when budgets run out.
func NewMachine(g *graph.Graph, store storage.Driver, sched scheduler.Scheduler, cfg ents.Config, log *slog.Logger) *Machine {
	if log == nil {
		log = slog.Default()
	}
	return &Machine{g: g, store: store, sched: sched, cfg: cfg, log: log}
}

// Register binds the machine's handler into the registry.
func (m *Machine) Register(reg *scheduler.Registry) {
	reg.Register(HandlerName, m.Handle)
}

// Schedule enqueues the first invocation for a soft-deleted root: a
// one-element stack holding the root's node frame, plus the origin captured
// at this instant.
func (m *Machine) Schedule(ctx context.Context, table string, id ents.ID, deletionTime int64, delay time.Duration) error {
	args := Args{
		Origin: Origin{ID: id, Table: table, DeletionTime: deletionTime},
		Stack:  []Frame{NodeFrame{ID: id, Table: table, Edges: CascadeTasks(m.g, table)}},
	}
	b, err := EncodeArgs(args)
	if err != nil {
		return err
	}
	return m.sched.RunAfter(ctx, delay, HandlerName, b)
}

// Handle is the scheduler entry point: decode, run one bounded invocation.
func (m *Machine) Handle(ctx context.Context, raw []byte) error {
	args, err := DecodeArgs(raw)
	if err != nil {
		return err
	}
	return m.Run(ctx, args)
}

// budget tracks documents and bytes read across all steps of one
// invocation.
type budget struct {
	docs  int
	bytes int64
	cfg   ents.Config
}

func (b *budget) count(p storage.Page) {
	b.docs += len(p.Rows)
	b.bytes += int64(p.BytesRead)
}

func (b *budget) exhausted() bool {
	return b.docs >= b.cfg.MaxDocumentsPerRun || b.bytes >= b.cfg.MaxBytesPerRun
}

// remainingDocs returns the document quota for the next scan, never below
// one so every scan makes progress.
func (b *budget) remainingDocs(pageSize int) int {
	remaining := b.cfg.MaxDocumentsPerRun - b.docs
	if pageSize < remaining {
		remaining = pageSize
	}
	if remaining < 1 {
		remaining = 1
	}
	return remaining
}

// remainingBytes returns the byte quota for the next scan, never below one.
func (b *budget) remainingBytes() int {
	remaining := b.cfg.MaxBytesPerRun - b.bytes
	if remaining < 1 {
		remaining = 1
	}
	return int(remaining)
}

// Run executes one invocation: the cancellation guard, then transition
// steps until the stack drains or a budget is exhausted, in which case the
// remaining stack is checkpointed to the deferred scheduler. The whole
// invocation is one atomic unit against the store.
func (m *Machine) Run(ctx context.Context, args Args) error {
	var checkpoint *Args
	err := m.store.Run(ctx, func(tx storage.Tx) error {
		ok, err := m.originUnchanged(ctx, tx, args)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}

		b := &budget{cfg: m.cfg}
		stack := args.Stack
		for len(stack) > 0 {
			stack, err = m.step(ctx, tx, stack, b)
			if err != nil {
				return err
			}
			if len(stack) > 0 && b.exhausted() {
				checkpoint = &Args{Origin: args.Origin, Stack: stack, InProgress: true}
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	if checkpoint == nil {
		return nil
	}
	raw, err := EncodeArgs(*checkpoint)
	if err != nil {
		return err
	}
	return m.sched.RunAfter(ctx, 0, HandlerName, raw)
}

// originUnchanged re-reads the root and compares its current deletion
// timestamp to the one captured at schedule time. A mismatch means the root
// was un-deleted or re-deleted since: the job is stale and must stop. On
// the first invocation nothing has been touched, so this is routine; on a
// resumed one a partial cascade has already been applied and stopping is
// strictly safer than continuing against a changed root.
func (m *Machine) originUnchanged(ctx context.Context, tx storage.Tx, args Args) (bool, error) {
	var current int64
	doc, err := tx.Get(ctx, args.Origin.Table, args.Origin.ID)
	switch {
	case ents.IsNotFound(err):
		// Root already gone; treated as a changed timestamp.
	case err != nil:
		return false, err
	default:
		current, _ = doc.DeletionTime()
	}
	if current == args.Origin.DeletionTime {
		return true, nil
	}
	if args.InProgress {
		m.log.Error("abandoning partially applied cascade, root deletion changed",
			"table", args.Origin.Table, "id", args.Origin.ID,
			"scheduled", args.Origin.DeletionTime, "current", current)
	} else {
		m.log.Info("skipping cascade, root deletion changed before it started",
			"table", args.Origin.Table, "id", args.Origin.ID,
			"scheduled", args.Origin.DeletionTime, "current", current)
	}
	return false, nil
}

// step applies the transition function to the top frame and returns the new
// stack.
func (m *Machine) step(ctx context.Context, tx storage.Tx, stack []Frame, b *budget) ([]Frame, error) {
	top := stack[len(stack)-1]
	switch f := top.(type) {
	case NodeFrame:
		if len(f.Edges) == 0 {
			if err := deleteSwallowingNotFound(ctx, tx, f.Table, f.ID); err != nil {
				return nil, err
			}
			return stack[:len(stack)-1], nil
		}
		next := f.Edges[0]
		stack[len(stack)-1] = NodeFrame{ID: f.ID, Table: f.Table, Edges: f.Edges[1:]}
		return append(stack, PageFrame{
			Approach: next.Approach,
			Table:    next.Table,
			Index:    next.Index,
			Value:    string(f.ID),
		}), nil

	case PageFrame:
		pageSize := m.cfg.PaginatePageSize
		if f.Approach == Cascade {
			pageSize = m.cfg.CascadePageSize
		}
		page, err := tx.Scan(ctx, storage.ScanQuery{
			Table:    f.Table,
			Index:    f.Index,
			Value:    f.Value,
			After:    f.Cursor,
			Limit:    b.remainingDocs(pageSize),
			MaxBytes: b.remainingBytes(),
		})
		if err != nil {
			return nil, err
		}
		b.count(page)
		if len(page.Rows) == 0 {
			return stack[:len(stack)-1], nil
		}

		if f.Approach == Cascade {
			// Drain one child completely before touching the rest of
			// the page; each child may itself fan out.
			row := page.Rows[0]
			f.Cursor = storage.Cursor{CreationTime: row.CreationTime(), ID: row.ID()}
			stack[len(stack)-1] = f
			return append(stack, NodeFrame{
				ID:    row.ID(),
				Table: f.Table,
				Edges: CascadeTasks(m.g, f.Table),
			}), nil
		}

		for _, row := range page.Rows {
			if err := deleteSwallowingNotFound(ctx, tx, f.Table, row.ID()); err != nil {
				return nil, err
			}
		}
		if !page.HasMore {
			return stack[:len(stack)-1], nil
		}
		f.Cursor = page.Cursor
		stack[len(stack)-1] = f
		return stack, nil
	}
	return stack, nil
}

// deleteSwallowingNotFound hard-deletes a row, treating "already absent" as
// success: a concurrent cascade may reach the same node via another edge
// path.
func deleteSwallowingNotFound(ctx context.Context, tx storage.Tx, table string, id ents.ID) error {
	err := tx.Delete(ctx, table, id)
	if ents.IsNotFound(err) {
		return nil
	}
	return err
}
