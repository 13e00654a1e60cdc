package deletion

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/get-convex/convex-ents"
	"github.com/get-convex/convex-ents/graph"
	"github.com/get-convex/convex-ents/storage"
)

// Approach is how one edge's far-side rows are drained.
type Approach int

const (
	// Paginate bulk-deletes a page of rows with no further recursion.
	Paginate Approach = iota + 1
	// Cascade drains rows one at a time, recursing into each before
	// moving on, since each may itself fan out.
	Cascade
)

// String returns the approach name.
func (a Approach) String() string {
	switch a {
	case Paginate:
		return "paginate"
	case Cascade:
		return "cascade"
	}
	return fmt.Sprintf("Approach(%d)", int(a))
}

// EdgeTask is one pending edge scan of a node: the far-side table, the
// index to scan with the node's id, and the chosen approach.
type EdgeTask struct {
	Approach Approach `msgpack:"a"`
	Table    string   `msgpack:"t"`
	Index    string   `msgpack:"i"`
}

// Frame is one unit of serializable traversal state. Frames exist only as
// serialized arguments passed between deferred invocations; they are never
// persisted independently.
type Frame interface {
	frame()
}

// NodeFrame is the work still to do for one entity: the edges not yet
// drained, then the hard delete of the entity itself.
type NodeFrame struct {
	ID    ents.ID    `msgpack:"id"`
	Table string     `msgpack:"table"`
	Edges []EdgeTask `msgpack:"edges"`
}

func (NodeFrame) frame() {}

// PageFrame is an in-progress index scan: rows of Table whose index field
// equals Value, resumed strictly after Cursor.
type PageFrame struct {
	Approach Approach       `msgpack:"a"`
	Table    string         `msgpack:"table"`
	Index    string         `msgpack:"index"`
	Value    string         `msgpack:"value"`
	Cursor   storage.Cursor `msgpack:"cursor"`
}

func (PageFrame) frame() {}

// Origin is the root of a scheduled cascade, captured at schedule time. The
// deletion timestamp doubles as the cancellation guard: if the root's
// current timestamp no longer matches, the job belongs to a stale delete
// and must not run.
type Origin struct {
	ID           ents.ID `msgpack:"id"`
	Table        string  `msgpack:"table"`
	DeletionTime int64   `msgpack:"deletionTime"`
}

// Args is the full argument set of one deletion invocation: everything a
// resumed run needs, since no in-memory state survives between invocations.
type Args struct {
	Origin Origin
	Stack  []Frame
	// InProgress is false only on the first invocation, before anything
	// has been touched.
	InProgress bool
}

const (
	kindNode = 1
	kindPage = 2
)

// frameEnvelope is the tagged-union wire form of a Frame.
type frameEnvelope struct {
	Kind int        `msgpack:"k"`
	Node *NodeFrame `msgpack:"n,omitempty"`
	Page *PageFrame `msgpack:"p,omitempty"`
}

type wireArgs struct {
	Origin     Origin          `msgpack:"origin"`
	Stack      []frameEnvelope `msgpack:"stack"`
	InProgress bool            `msgpack:"inProgress"`
}

// EncodeArgs serializes invocation arguments for the deferred scheduler.
func EncodeArgs(a Args) ([]byte, error) {
	w := wireArgs{Origin: a.Origin, InProgress: a.InProgress}
	w.Stack = make([]frameEnvelope, len(a.Stack))
	for i, f := range a.Stack {
		switch f := f.(type) {
		case NodeFrame:
			w.Stack[i] = frameEnvelope{Kind: kindNode, Node: &f}
		case PageFrame:
			w.Stack[i] = frameEnvelope{Kind: kindPage, Page: &f}
		default:
			return nil, fmt.Errorf("deletion: unknown frame type %T", f)
		}
	}
	b, err := msgpack.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("deletion: encoding arguments: %w", err)
	}
	return b, nil
}

// DecodeArgs deserializes invocation arguments.
func DecodeArgs(b []byte) (Args, error) {
	var w wireArgs
	if err := msgpack.Unmarshal(b, &w); err != nil {
		return Args{}, fmt.Errorf("deletion: decoding arguments: %w", err)
	}
	a := Args{Origin: w.Origin, InProgress: w.InProgress}
	a.Stack = make([]Frame, len(w.Stack))
	for i, env := range w.Stack {
		switch {
		case env.Kind == kindNode && env.Node != nil:
			a.Stack[i] = *env.Node
		case env.Kind == kindPage && env.Page != nil:
			a.Stack[i] = *env.Page
		default:
			return Args{}, fmt.Errorf("deletion: malformed frame envelope (kind %d)", env.Kind)
		}
	}
	return a, nil
}

// CascadeTasks returns the edge scans draining everything structurally
// dependent on one row of the table: required ref edges recurse when the
// far table itself fans out and paginate otherwise; join edges always
// paginate over the join table, both directions when symmetric.
func CascadeTasks(g *graph.Graph, table string) []EdgeTask {
	gt, ok := g.Table(table)
	if !ok {
		return nil
	}
	var tasks []EdgeTask
	for _, e := range gt.CascadeEdges() {
		switch e.Storage {
		case graph.StorageRef:
			approach := Paginate
			if far, ok := g.Table(e.To); ok && len(far.CascadeEdges()) > 0 {
				approach = Cascade
			}
			scanTable, scanIndex := e.ScanIndex()
			tasks = append(tasks, EdgeTask{Approach: approach, Table: scanTable, Index: scanIndex})
		case graph.StorageJoin:
			scanTable, scanIndex := e.ScanIndex()
			tasks = append(tasks, EdgeTask{Approach: Paginate, Table: scanTable, Index: scanIndex})
			if e.Symmetric {
				mirrorTable, mirrorIndex := e.MirrorIndex()
				tasks = append(tasks, EdgeTask{Approach: Paginate, Table: mirrorTable, Index: mirrorIndex})
			}
		}
	}
	return tasks
}
