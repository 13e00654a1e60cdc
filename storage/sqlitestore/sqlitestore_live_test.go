package sqlitestore_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/get-convex/convex-ents"
	"github.com/get-convex/convex-ents/graph"
	"github.com/get-convex/convex-ents/schema"
	"github.com/get-convex/convex-ents/schema/edge"
	"github.com/get-convex/convex-ents/schema/field"
	"github.com/get-convex/convex-ents/storage"
	"github.com/get-convex/convex-ents/storage/sqlitestore"
)

func liveGraph(t *testing.T) *graph.Graph {
	t.Helper()
	b := schema.New()
	b.Table("teams").
		Fields(field.String("name")).
		Edges(edge.ToMany("members", "members").Ref("teamId"))
	b.Table("members").
		Fields(field.String("name")).
		Edges(edge.ToOne("team", "teams").Field("teamId"))
	tables, err := b.Build()
	require.NoError(t, err)
	g, err := graph.Resolve(tables)
	require.NoError(t, err)
	return g
}

func openLive(t *testing.T) *sqlitestore.Store {
	t.Helper()
	s, err := sqlitestore.Open(filepath.Join(t.TempDir(), "ents.db"), liveGraph(t))
	if err != nil {
		t.Skipf("sqlite driver unavailable: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestLiveRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := openLive(t)

	err := s.Run(ctx, func(tx storage.Tx) error {
		if err := tx.Insert(ctx, "teams", ents.Document{ents.FieldID: "t1", "name": "core"}); err != nil {
			return err
		}
		for _, m := range []string{"m1", "m2", "m3"} {
			if err := tx.Insert(ctx, "members", ents.Document{
				ents.FieldID: m,
				"name":       m,
				"teamId":     "t1",
			}); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	err = s.Run(ctx, func(tx storage.Tx) error {
		doc, err := tx.Get(ctx, "members", "m1")
		require.NoError(t, err)
		assert.Equal(t, "m1", doc["name"])
		assert.Positive(t, doc.CreationTime())
		return nil
	})
	require.NoError(t, err)

	// Paged scan over the synthesized foreign-key index, resuming from the
	// returned cursor.
	err = s.Run(ctx, func(tx storage.Tx) error {
		page, err := tx.Scan(ctx, storage.ScanQuery{
			Table: "members", Index: "teamId", Value: "t1", Limit: 2,
		})
		require.NoError(t, err)
		require.Len(t, page.Rows, 2)
		assert.True(t, page.HasMore)
		assert.Equal(t, ents.ID("m1"), page.Rows[0].ID())
		assert.Equal(t, ents.ID("m2"), page.Rows[1].ID())
		assert.Positive(t, page.BytesRead)

		rest, err := tx.Scan(ctx, storage.ScanQuery{
			Table: "members", Index: "teamId", Value: "t1", After: page.Cursor, Limit: 2,
		})
		require.NoError(t, err)
		require.Len(t, rest.Rows, 1)
		assert.False(t, rest.HasMore)
		assert.Equal(t, ents.ID("m3"), rest.Rows[0].ID())
		return nil
	})
	require.NoError(t, err)
}

func TestLivePatchReindexes(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := openLive(t)

	err := s.Run(ctx, func(tx storage.Tx) error {
		if err := tx.Insert(ctx, "members", ents.Document{
			ents.FieldID: "m1", "name": "before", "teamId": "t1",
		}); err != nil {
			return err
		}
		return tx.Patch(ctx, "members", "m1", map[string]any{"teamId": "t2"})
	})
	require.NoError(t, err)

	err = s.Run(ctx, func(tx storage.Tx) error {
		old, err := tx.Scan(ctx, storage.ScanQuery{Table: "members", Index: "teamId", Value: "t1"})
		require.NoError(t, err)
		assert.Empty(t, old.Rows)

		moved, err := tx.Scan(ctx, storage.ScanQuery{Table: "members", Index: "teamId", Value: "t2"})
		require.NoError(t, err)
		require.Len(t, moved.Rows, 1)
		assert.Equal(t, "before", moved.Rows[0]["name"])
		return nil
	})
	require.NoError(t, err)
}

func TestLiveDeleteClearsIndexEntries(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := openLive(t)

	err := s.Run(ctx, func(tx storage.Tx) error {
		if err := tx.Insert(ctx, "members", ents.Document{
			ents.FieldID: "m1", "name": "m1", "teamId": "t1",
		}); err != nil {
			return err
		}
		return tx.Delete(ctx, "members", "m1")
	})
	require.NoError(t, err)

	err = s.Run(ctx, func(tx storage.Tx) error {
		_, err := tx.Get(ctx, "members", "m1")
		assert.True(t, ents.IsNotFound(err))

		page, err := tx.Scan(ctx, storage.ScanQuery{Table: "members", Index: "teamId", Value: "t1"})
		require.NoError(t, err)
		assert.Empty(t, page.Rows)
		return nil
	})
	require.NoError(t, err)
}

func TestLiveRollback(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := openLive(t)

	wantErr := assert.AnError
	err := s.Run(ctx, func(tx storage.Tx) error {
		if err := tx.Insert(ctx, "teams", ents.Document{ents.FieldID: "t1", "name": "core"}); err != nil {
			return err
		}
		return wantErr
	})
	require.ErrorIs(t, err, wantErr)

	err = s.Run(ctx, func(tx storage.Tx) error {
		_, err := tx.Get(ctx, "teams", "t1")
		assert.True(t, ents.IsNotFound(err))
		return nil
	})
	require.NoError(t, err)
}
