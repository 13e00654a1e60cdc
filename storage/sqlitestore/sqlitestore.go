// Package sqlitestore is the SQLite-backed storage driver. Documents are
// stored as msgpack blobs keyed by (table, id); index entries live in a
// side table maintained on every write, so scans run as ordered range
// queries without decoding unrelated rows. Each unit of work is one
// serializable SQL transaction.
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/vmihailenco/msgpack/v5"
	_ "modernc.org/sqlite"

	"github.com/get-convex/convex-ents"
	"github.com/get-convex/convex-ents/graph"
	"github.com/get-convex/convex-ents/storage"
)

const schemaDDL = `
CREATE TABLE IF NOT EXISTS documents (
	tbl      TEXT    NOT NULL,
	id       TEXT    NOT NULL,
	creation INTEGER NOT NULL,
	body     BLOB    NOT NULL,
	PRIMARY KEY (tbl, id)
);
CREATE TABLE IF NOT EXISTS index_entries (
	tbl      TEXT    NOT NULL,
	idx      TEXT    NOT NULL,
	val      TEXT    NOT NULL,
	creation INTEGER NOT NULL,
	id       TEXT    NOT NULL,
	PRIMARY KEY (tbl, idx, val, creation, id)
);
CREATE TABLE IF NOT EXISTS clock (
	k INTEGER PRIMARY KEY CHECK (k = 0),
	v INTEGER NOT NULL
);
INSERT OR IGNORE INTO clock (k, v) VALUES (0, 0);
`

// Store is a document store backed by an embedded SQLite database.
type Store struct {
	db *sql.DB
	g  *graph.Graph
}

// Open opens (creating if needed) the database at path and prepares the
// storage schema. Use ":memory:" for an ephemeral store.
func Open(path string, g *graph.Graph) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: opening %q: %w", path, err)
	}
	// SQLite serializes writers; a single connection avoids busy errors.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schemaDDL); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlitestore: preparing schema: %w", err)
	}
	return &Store{db: db, g: g}, nil
}

// NewWithDB wraps an already-open database. The caller owns schema
// preparation and connection limits.
func NewWithDB(db *sql.DB, g *graph.Graph) *Store {
	return &Store{db: db, g: g}
}

// Run executes fn as one serializable SQL transaction, committing iff fn
// returns nil.
func (s *Store) Run(ctx context.Context, fn func(tx storage.Tx) error) error {
	// SQLite transactions are serializable by default.
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlitestore: beginning transaction: %w", err)
	}
	if err := fn(&sqliteTx{tx: sqlTx, g: s.g}); err != nil {
		sqlTx.Rollback()
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("sqlitestore: committing: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

type sqliteTx struct {
	tx *sql.Tx
	g  *graph.Graph
}

func (t *sqliteTx) Get(ctx context.Context, tbl string, id ents.ID) (ents.Document, error) {
	var body []byte
	err := t.tx.QueryRowContext(ctx,
		`SELECT body FROM documents WHERE tbl = ? AND id = ?`, tbl, string(id),
	).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ents.NewNotFoundError(tbl, id)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: reading %s/%s: %w", tbl, id, err)
	}
	return decodeBody(tbl, id, body)
}

func (t *sqliteTx) Insert(ctx context.Context, tbl string, doc ents.Document) error {
	id := doc.ID()
	if id == "" {
		return fmt.Errorf("sqlitestore: insert into %q without an id", tbl)
	}
	var exists int
	err := t.tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM documents WHERE tbl = ? AND id = ?`, tbl, string(id),
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("sqlitestore: checking %s/%s: %w", tbl, id, err)
	}
	if exists > 0 {
		return &ents.DuplicateValueError{Table: tbl, Field: ents.FieldID, Value: string(id), ConflictingID: id}
	}

	var creation int64
	err = t.tx.QueryRowContext(ctx,
		`UPDATE clock SET v = v + 1 WHERE k = 0 RETURNING v`,
	).Scan(&creation)
	if err != nil {
		return fmt.Errorf("sqlitestore: advancing clock: %w", err)
	}

	stored := doc.Clone()
	stored[ents.FieldCreationTime] = creation
	body, err := msgpack.Marshal(map[string]any(stored))
	if err != nil {
		return fmt.Errorf("sqlitestore: encoding %s/%s: %w", tbl, id, err)
	}
	if _, err := t.tx.ExecContext(ctx,
		`INSERT INTO documents (tbl, id, creation, body) VALUES (?, ?, ?, ?)`,
		tbl, string(id), creation, body,
	); err != nil {
		return fmt.Errorf("sqlitestore: inserting %s/%s: %w", tbl, id, err)
	}
	return t.writeIndexEntries(ctx, tbl, stored, creation)
}

func (t *sqliteTx) Patch(ctx context.Context, tbl string, id ents.ID, patch map[string]any) error {
	doc, err := t.Get(ctx, tbl, id)
	if err != nil {
		return err
	}
	for k, v := range patch {
		if v == nil {
			delete(doc, k)
			continue
		}
		doc[k] = v
	}
	body, err := msgpack.Marshal(map[string]any(doc))
	if err != nil {
		return fmt.Errorf("sqlitestore: encoding %s/%s: %w", tbl, id, err)
	}
	if _, err := t.tx.ExecContext(ctx,
		`UPDATE documents SET body = ? WHERE tbl = ? AND id = ?`,
		body, tbl, string(id),
	); err != nil {
		return fmt.Errorf("sqlitestore: updating %s/%s: %w", tbl, id, err)
	}
	if _, err := t.tx.ExecContext(ctx,
		`DELETE FROM index_entries WHERE tbl = ? AND id = ?`, tbl, string(id),
	); err != nil {
		return fmt.Errorf("sqlitestore: clearing index entries for %s/%s: %w", tbl, id, err)
	}
	return t.writeIndexEntries(ctx, tbl, doc, doc.CreationTime())
}

func (t *sqliteTx) Delete(ctx context.Context, tbl string, id ents.ID) error {
	res, err := t.tx.ExecContext(ctx,
		`DELETE FROM documents WHERE tbl = ? AND id = ?`, tbl, string(id),
	)
	if err != nil {
		return fmt.Errorf("sqlitestore: deleting %s/%s: %w", tbl, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlitestore: deleting %s/%s: %w", tbl, id, err)
	}
	if n == 0 {
		return ents.NewNotFoundError(tbl, id)
	}
	if _, err := t.tx.ExecContext(ctx,
		`DELETE FROM index_entries WHERE tbl = ? AND id = ?`, tbl, string(id),
	); err != nil {
		return fmt.Errorf("sqlitestore: clearing index entries for %s/%s: %w", tbl, id, err)
	}
	return nil
}

func (t *sqliteTx) Scan(ctx context.Context, q storage.ScanQuery) (storage.Page, error) {
	gt, ok := t.g.Table(q.Table)
	if !ok {
		return storage.Page{}, fmt.Errorf("sqlitestore: unknown table %q", q.Table)
	}
	if _, ok := gt.Index(q.Index); !ok {
		return storage.Page{}, fmt.Errorf("sqlitestore: unknown index %q on table %q", q.Index, q.Table)
	}
	rows, err := t.tx.QueryContext(ctx,
		`SELECT e.creation, e.id, d.body
		 FROM index_entries e
		 JOIN documents d ON d.tbl = e.tbl AND d.id = e.id
		 WHERE e.tbl = ? AND e.idx = ? AND e.val = ? AND (e.creation, e.id) > (?, ?)
		 ORDER BY e.creation, e.id`,
		q.Table, q.Index, indexValue(q.Value), q.After.CreationTime, string(q.After.ID),
	)
	if err != nil {
		return storage.Page{}, fmt.Errorf("sqlitestore: scanning %s.%s: %w", q.Table, q.Index, err)
	}
	defer rows.Close()

	var page storage.Page
	page.Cursor = q.After
	for rows.Next() {
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
		var (
			creation int64
			id       string
			body     []byte
		)
		if err := rows.Scan(&creation, &id, &body); err != nil {
			return storage.Page{}, fmt.Errorf("sqlitestore: scanning %s.%s: %w", q.Table, q.Index, err)
		}
		doc, err := decodeBody(q.Table, ents.ID(id), body)
		if err != nil {
			return storage.Page{}, err
		}
		page.Rows = append(page.Rows, doc)
		page.BytesRead += len(body)
		page.Cursor = storage.Cursor{CreationTime: creation, ID: ents.ID(id)}
	}
	if err := rows.Err(); err != nil {
		return storage.Page{}, fmt.Errorf("sqlitestore: scanning %s.%s: %w", q.Table, q.Index, err)
	}
	return page, nil
}

// writeIndexEntries records one entry per schema index whose leading field
// is present on the document. Absent fields are unindexed: a scan can never
// match them.
func (t *sqliteTx) writeIndexEntries(ctx context.Context, tbl string, doc ents.Document, creation int64) error {
	gt, ok := t.g.Table(tbl)
	if !ok {
		return fmt.Errorf("sqlitestore: unknown table %q", tbl)
	}
	id := string(doc.ID())
	for _, idx := range gt.Indexes {
		v, ok := doc[idx.Fields[0]]
		if !ok || v == nil {
			continue
		}
		if _, err := t.tx.ExecContext(ctx,
			`INSERT INTO index_entries (tbl, idx, val, creation, id) VALUES (?, ?, ?, ?, ?)`,
			tbl, idx.Name, indexValue(v), creation, id,
		); err != nil {
			return fmt.Errorf("sqlitestore: indexing %s/%s on %q: %w", tbl, id, idx.Name, err)
		}
	}
	return nil
}

func decodeBody(tbl string, id ents.ID, body []byte) (ents.Document, error) {
	var m map[string]any
	if err := msgpack.Unmarshal(body, &m); err != nil {
		return nil, fmt.Errorf("sqlitestore: decoding %s/%s: %w", tbl, id, err)
	}
	return ents.Document(m), nil
}

// indexValue encodes a scalar index value as its comparable text form.
func indexValue(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case ents.ID:
		return string(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case int:
		return strconv.Itoa(v)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case nil:
		return ""
	}
	return fmt.Sprintf("%v", v)
}
