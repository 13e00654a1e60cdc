package sqlitestore_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/get-convex/convex-ents"
	"github.com/get-convex/convex-ents/graph"
	"github.com/get-convex/convex-ents/schema"
	"github.com/get-convex/convex-ents/schema/field"
	"github.com/get-convex/convex-ents/storage"
	"github.com/get-convex/convex-ents/storage/sqlitestore"
)

func testGraph(t *testing.T) *graph.Graph {
	t.Helper()
	b := schema.New()
	b.Table("teams").
		Fields(field.String("name"))
	tables, err := b.Build()
	require.NoError(t, err)
	g, err := graph.Resolve(tables)
	require.NoError(t, err)
	return g
}

func encode(t *testing.T, doc ents.Document) []byte {
	t.Helper()
	b, err := msgpack.Marshal(map[string]any(doc))
	require.NoError(t, err)
	return b
}

func TestGetNotFound(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT body FROM documents`).
		WithArgs("teams", "missing").
		WillReturnRows(sqlmock.NewRows([]string{"body"}))
	mock.ExpectCommit()

	s := sqlitestore.NewWithDB(db, testGraph(t))
	err = s.Run(context.Background(), func(tx storage.Tx) error {
		_, err := tx.Get(context.Background(), "teams", "missing")
		assert.True(t, ents.IsNotFound(err))
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetDecodesBody(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	body := encode(t, ents.Document{
		ents.FieldID:           "t1",
		ents.FieldCreationTime: int64(7),
		"name":                 "core",
	})
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT body FROM documents`).
		WithArgs("teams", "t1").
		WillReturnRows(sqlmock.NewRows([]string{"body"}).AddRow(body))
	mock.ExpectCommit()

	s := sqlitestore.NewWithDB(db, testGraph(t))
	err = s.Run(context.Background(), func(tx storage.Tx) error {
		doc, err := tx.Get(context.Background(), "teams", "t1")
		require.NoError(t, err)
		assert.Equal(t, ents.ID("t1"), doc.ID())
		assert.Equal(t, int64(7), doc.CreationTime())
		assert.Equal(t, "core", doc["name"])
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertDuplicate(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM documents`).
		WithArgs("teams", "t1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectRollback()

	s := sqlitestore.NewWithDB(db, testGraph(t))
	err = s.Run(context.Background(), func(tx storage.Tx) error {
		return tx.Insert(context.Background(), "teams", ents.Document{
			ents.FieldID: "t1",
			"name":       "core",
		})
	})
	assert.True(t, ents.IsDuplicateValue(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteNotFound(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM documents`).
		WithArgs("teams", "gone").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	s := sqlitestore.NewWithDB(db, testGraph(t))
	err = s.Run(context.Background(), func(tx storage.Tx) error {
		return tx.Delete(context.Background(), "teams", "gone")
	})
	assert.True(t, ents.IsNotFound(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunRollsBackOnError(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectRollback()

	boom := fmt.Errorf("boom")
	s := sqlitestore.NewWithDB(db, testGraph(t))
	err = s.Run(context.Background(), func(tx storage.Tx) error { return boom })
	require.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunCommitError(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectCommit().WillReturnError(fmt.Errorf("disk full"))

	s := sqlitestore.NewWithDB(db, testGraph(t))
	err = s.Run(context.Background(), func(tx storage.Tx) error { return nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "committing")
	require.NoError(t, mock.ExpectationsWereMet())
}
