package writer_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/get-convex/convex-ents"
	"github.com/get-convex/convex-ents/graph"
	"github.com/get-convex/convex-ents/schema"
	"github.com/get-convex/convex-ents/schema/edge"
	"github.com/get-convex/convex-ents/schema/field"
	"github.com/get-convex/convex-ents/storage"
	"github.com/get-convex/convex-ents/writer"
)

func friendsGraph(t *testing.T) *graph.Graph {
	t.Helper()
	b := schema.New()
	b.Table("users").
		Fields(field.String("email")).
		Edges(edge.ToMany("friends", "users"))
	return resolve(t, b)
}

// lookup returns the far-side ids of a many:many edge.
func (f *fixture) lookup(t *testing.T, table, edgeName string, id ents.ID) []string {
	t.Helper()
	gt := f.g.MustTable(table)
	e, ok := gt.Edge(edgeName)
	require.True(t, ok)

	var out []string
	require.NoError(t, f.store.Run(context.Background(), func(tx storage.Tx) error {
		scanTable, index := e.ScanIndex()
		page, err := tx.Scan(context.Background(), storage.ScanQuery{
			Table: scanTable, Index: index, Value: string(id),
		})
		if err != nil {
			return err
		}
		for _, row := range page.Rows {
			out = append(out, row[e.JoinRef].(string))
		}
		return nil
	}))
	return out
}

func TestAddEdgeSymmetric(t *testing.T) {
	t.Parallel()

	f := newFixture(t, friendsGraph(t))
	a, err := f.w.Insert(context.Background(), "users", map[string]any{"email": "a@x.y"})
	require.NoError(t, err)
	b, err := f.w.Insert(context.Background(), "users", map[string]any{"email": "b@x.y"})
	require.NoError(t, err)

	require.NoError(t, f.w.AddEdge(context.Background(), "users", "friends", a, b))

	// Both directions see each other exactly once.
	assert.Equal(t, []string{string(b)}, f.lookup(t, "users", "friends", a))
	assert.Equal(t, []string{string(a)}, f.lookup(t, "users", "friends", b))

	// Adding again is a no-op.
	require.NoError(t, f.w.AddEdge(context.Background(), "users", "friends", a, b))
	assert.Len(t, f.lookup(t, "users", "friends", a), 1)
	assert.Len(t, f.lookup(t, "users", "friends", b), 1)
}

func TestRemoveEdgeSymmetric(t *testing.T) {
	t.Parallel()

	f := newFixture(t, friendsGraph(t))
	a, err := f.w.Insert(context.Background(), "users", map[string]any{"email": "a@x.y"})
	require.NoError(t, err)
	b, err := f.w.Insert(context.Background(), "users", map[string]any{"email": "b@x.y"})
	require.NoError(t, err)

	require.NoError(t, f.w.AddEdge(context.Background(), "users", "friends", a, b))
	require.NoError(t, f.w.RemoveEdge(context.Background(), "users", "friends", a, b))

	assert.Empty(t, f.lookup(t, "users", "friends", a))
	assert.Empty(t, f.lookup(t, "users", "friends", b))

	// Removing an absent edge is a no-op.
	require.NoError(t, f.w.RemoveEdge(context.Background(), "users", "friends", a, b))
}

func TestDeleteEndpointCleansJoinRows(t *testing.T) {
	t.Parallel()

	f := newFixture(t, friendsGraph(t))
	a, err := f.w.Insert(context.Background(), "users", map[string]any{"email": "a@x.y"})
	require.NoError(t, err)
	b, err := f.w.Insert(context.Background(), "users", map[string]any{"email": "b@x.y"})
	require.NoError(t, err)
	require.NoError(t, f.w.AddEdge(context.Background(), "users", "friends", a, b))

	require.NoError(t, f.w.DeleteID(context.Background(), "users", a, writer.Default))

	// Deleting either endpoint removes both directions' join rows.
	assert.Empty(t, f.lookup(t, "users", "friends", b))
	assert.True(t, f.exists(t, "users", b), "join cleanup never cascades into endpoint entities")
}

func TestJoinTableRejectsDirectWrites(t *testing.T) {
	t.Parallel()

	f := newFixture(t, friendsGraph(t))
	a, err := f.w.Insert(context.Background(), "users", map[string]any{"email": "a@x.y"})
	require.NoError(t, err)
	b, err := f.w.Insert(context.Background(), "users", map[string]any{"email": "b@x.y"})
	require.NoError(t, err)
	require.NoError(t, f.w.AddEdge(context.Background(), "users", "friends", a, b))

	// Join rows are written only through the edge helpers; direct
	// mutations would bypass the idempotent-pair and mirror-row discipline.
	_, err = f.w.Insert(context.Background(), "users_friends", map[string]any{
		"userId": string(a), "otherUserId": string(b),
	})
	assert.True(t, ents.IsJoinTableWrite(err))

	err = f.w.Patch(context.Background(), "users_friends", ents.NewID(), map[string]any{"userId": "x"})
	assert.True(t, ents.IsJoinTableWrite(err))

	err = f.w.DeleteID(context.Background(), "users_friends", ents.NewID(), writer.Hard)
	assert.True(t, ents.IsJoinTableWrite(err))

	// The rows behind the edge are untouched.
	assert.Len(t, f.lookup(t, "users", "friends", a), 1)
}

func TestAddEdgeOnNonJoinEdge(t *testing.T) {
	t.Parallel()

	f := newFixture(t, blogGraph(t))
	err := f.w.AddEdge(context.Background(), "posts", "author", "p1", "u1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a many:many edge")
}

func oneToOneGraph(t *testing.T) *graph.Graph {
	t.Helper()
	b := schema.New()
	b.Table("users").
		Fields(field.String("email")).
		Edges(edge.ToOne("profile", "profiles").Ref("userId").Optional())
	b.Table("profiles").
		Fields(field.String("bio")).
		Edges(edge.ToOne("user", "users").Field("userId"))
	return resolve(t, b)
}

func TestSetEdgeMovesUniqueRef(t *testing.T) {
	t.Parallel()

	f := newFixture(t, oneToOneGraph(t))
	u1, err := f.w.Insert(context.Background(), "users", map[string]any{"email": "a@x.y"})
	require.NoError(t, err)
	u2, err := f.w.Insert(context.Background(), "users", map[string]any{"email": "b@x.y"})
	require.NoError(t, err)
	p1, err := f.w.Insert(context.Background(), "profiles", map[string]any{
		"bio": "old", "userId": string(u1),
	})
	require.NoError(t, err)
	p2, err := f.w.Insert(context.Background(), "profiles", map[string]any{
		"bio": "new", "userId": string(u2),
	})
	require.NoError(t, err)

	// Pointing u1's profile at p2 frees the unique key by deleting the
	// displaced required far row, then rebinds p2.
	require.NoError(t, f.w.SetEdge(context.Background(), "users", "profile", u1, &p2))

	assert.False(t, f.exists(t, "profiles", p1),
		"a displaced required 1:1 far row cannot be left dangling")
	doc := f.get(t, "profiles", p2)
	assert.Equal(t, string(u1), doc["userId"])
}

func TestInsertDuplicateUniqueEdgeColumn(t *testing.T) {
	t.Parallel()

	f := newFixture(t, oneToOneGraph(t))
	u1, err := f.w.Insert(context.Background(), "users", map[string]any{"email": "a@x.y"})
	require.NoError(t, err)
	_, err = f.w.Insert(context.Background(), "profiles", map[string]any{
		"bio": "first", "userId": string(u1),
	})
	require.NoError(t, err)

	_, err = f.w.Insert(context.Background(), "profiles", map[string]any{
		"bio": "second", "userId": string(u1),
	})
	assert.True(t, ents.IsDuplicateValue(err),
		"the field end of a 1:1 edge enforces uniqueness")
}
