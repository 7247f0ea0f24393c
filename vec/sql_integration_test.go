package vec

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/viant/vec0/engine"
	"github.com/viant/vec0/index"
)

var moduleSeq atomic.Int64

// openDB opens a single-connection database with a freshly named module.
func openDB(t *testing.T, dsn string, reg *index.Registry, name string) *sql.DB {
	t.Helper()
	db, err := engine.Open(dsn)
	if err != nil {
		t.Fatalf("engine.Open failed: %v", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := RegisterAs(db, name, reg); err != nil {
		t.Fatalf("RegisterAs failed: %v", err)
	}
	return db
}

func newModuleName() string {
	return fmt.Sprintf("vec0_test_%d", moduleSeq.Add(1))
}

func mustExec(t *testing.T, db *sql.DB, query string, args ...any) {
	t.Helper()
	if _, err := db.Exec(query, args...); err != nil {
		t.Fatalf("%s: %v", query, err)
	}
}

func queryRowids(t *testing.T, db *sql.DB, query string, args ...any) []int64 {
	t.Helper()
	rows, err := db.Query(query, args...)
	if err != nil {
		t.Fatalf("%s: %v", query, err)
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			t.Fatalf("scan: %v", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		t.Fatalf("rows: %v", err)
	}
	return ids
}

func TestVecKnnWorkedExample(t *testing.T) {
	reg := index.NewRegistry()
	mod := newModuleName()
	db := openDB(t, ":memory:", reg, mod)
	defer db.Close()

	mustExec(t, db, fmt.Sprintf(`CREATE VIRTUAL TABLE items USING %s(embedding float[2])`, mod))
	mustExec(t, db, `INSERT INTO items(embedding) VALUES ('[1,0]'), ('[0,1]'), ('[1,1]')`)

	rows, err := db.Query(`SELECT rowid, distance FROM items WHERE embedding MATCH '[1,0]' AND k = 2`)
	if err != nil {
		t.Fatalf("knn query: %v", err)
	}
	type hit struct {
		rowid    int64
		distance float64
	}
	var got []hit
	for rows.Next() {
		var h hit
		if err := rows.Scan(&h.rowid, &h.distance); err != nil {
			t.Fatalf("scan: %v", err)
		}
		got = append(got, h)
	}
	rows.Close()
	want := []hit{{1, 0}, {3, 1}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected hits: %v, want %v", got, want)
	}

	ids := queryRowids(t, db, `SELECT rowid FROM items WHERE embedding MATCH ? ORDER BY distance LIMIT 2`, "[0,1]")
	if !reflect.DeepEqual(ids, []int64{2, 3}) {
		t.Fatalf("LIMIT form returned %v", ids)
	}
	if used := reg.Controller().Used(); used <= 0 {
		t.Fatalf("expected table memory to be accounted, got %d", used)
	}
}

func TestVecFiltersAndColumns(t *testing.T) {
	reg := index.NewRegistry()
	mod := newModuleName()
	db := openDB(t, ":memory:", reg, mod)
	defer db.Close()

	mustExec(t, db, fmt.Sprintf(`CREATE VIRTUAL TABLE docs USING %s(
		embedding float[2] distance_metric=cosine,
		genre text partition key,
		year integer,
		+title text,
		chunk_size=8
	)`, mod))
	for i := 0; i < 12; i++ {
		genre := "rock"
		if i%3 == 0 {
			genre = "jazz"
		}
		mustExec(t, db, `INSERT INTO docs(embedding, genre, year, title) VALUES (?, ?, ?, ?)`,
			fmt.Sprintf("[1,%d]", i), genre, 2000+i, fmt.Sprintf("doc-%d", i))
	}

	ids := queryRowids(t, db, `SELECT rowid FROM docs WHERE embedding MATCH '[1,0]' AND k = 3 AND genre = 'jazz'`)
	if !reflect.DeepEqual(ids, []int64{1, 4, 7}) {
		t.Fatalf("partition filter returned %v", ids)
	}
	ids = queryRowids(t, db, `SELECT rowid FROM docs WHERE embedding MATCH '[1,0]' AND k = 2 AND year >= 2005 AND genre = 'rock'`)
	if !reflect.DeepEqual(ids, []int64{6, 8}) {
		t.Fatalf("metadata filter returned %v", ids)
	}

	var title, genre string
	var year int64
	var blob []byte
	if err := db.QueryRow(`SELECT title, genre, year, embedding FROM docs WHERE rowid = 5`).Scan(&title, &genre, &year, &blob); err != nil {
		t.Fatalf("rowid lookup: %v", err)
	}
	if title != "doc-4" || genre != "rock" || year != 2004 || len(blob) != 8 {
		t.Fatalf("unexpected row: %q %q %d %x", title, genre, year, blob)
	}

	var count int
	if err := db.QueryRow(`SELECT count(*) FROM docs WHERE genre = 'jazz' AND year < 2009`).Scan(&count); err != nil {
		t.Fatalf("full scan: %v", err)
	}
	if count != 3 {
		t.Fatalf("full scan counted %d rows", count)
	}
}

func TestVecValidationErrors(t *testing.T) {
	reg := index.NewRegistry()
	mod := newModuleName()
	db := openDB(t, ":memory:", reg, mod)
	defer db.Close()

	if _, err := db.Exec(fmt.Sprintf(`CREATE VIRTUAL TABLE broken USING %s(genre text)`, mod)); err == nil {
		t.Fatalf("expected declaration without vector column to fail")
	}
	mustExec(t, db, fmt.Sprintf(`CREATE VIRTUAL TABLE items USING %s(embedding float[2], genre text partition key)`, mod))
	mustExec(t, db, `INSERT INTO items(embedding, genre) VALUES ('[1,0]', 'a')`)

	cases := []struct {
		name  string
		query string
		want  string
	}{
		{"dimension", `INSERT INTO items(embedding) VALUES ('[1,0,0]')`, "dimension mismatch"},
		{"null vector", `INSERT INTO items(embedding) VALUES (NULL)`, "must not be NULL"},
		{"duplicate rowid", `INSERT INTO items(rowid, embedding) VALUES (1, '[0,0]')`, "rowid already exists"},
		{"partition update", `UPDATE items SET genre = 'b' WHERE rowid = 1`, "immutable"},
		{"missing k", `SELECT rowid FROM items WHERE embedding MATCH '[1,0]'`, "k = ?"},
		{"k over max", `SELECT rowid FROM items WHERE embedding MATCH '[1,0]' AND k = 100000`, "max_k"},
		{"bad query vector", `SELECT rowid FROM items WHERE embedding MATCH '[1,' AND k = 1`, "vec0"},
	}
	for _, tc := range cases {
		rows, err := db.Query(tc.query)
		if err == nil {
			for rows.Next() {
			}
			err = rows.Err()
			rows.Close()
		}
		if err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("%s: expected error containing %q, got %v", tc.name, tc.want, err)
		}
	}
	ids := queryRowids(t, db, `SELECT rowid FROM items WHERE embedding MATCH '[1,0]' AND k = 0`)
	if len(ids) != 0 {
		t.Fatalf("k = 0 returned %v", ids)
	}
}

func TestVecUpdateDeleteAndTransactions(t *testing.T) {
	reg := index.NewRegistry()
	mod := newModuleName()
	db := openDB(t, ":memory:", reg, mod)
	defer db.Close()

	mustExec(t, db, fmt.Sprintf(`CREATE VIRTUAL TABLE items USING %s(embedding float[2], score float)`, mod))
	mustExec(t, db, `INSERT INTO items(embedding, score) VALUES ('[1,0]', 1.5), ('[0,1]', 2.5), ('[1,1]', 3.5)`)
	mustExec(t, db, `UPDATE items SET embedding = '[5,5]', score = 9 WHERE rowid = 1`)
	mustExec(t, db, `DELETE FROM items WHERE rowid = 2`)

	var score float64
	if err := db.QueryRow(`SELECT score FROM items WHERE rowid = 1`).Scan(&score); err != nil || score != 9 {
		t.Fatalf("update not visible: %v %v", score, err)
	}
	if ids := queryRowids(t, db, `SELECT rowid FROM items`); !reflect.DeepEqual(ids, []int64{1, 3}) {
		t.Fatalf("unexpected rows after delete: %v", ids)
	}

	tx, err := db.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if _, err := tx.Exec(`DELETE FROM items WHERE rowid = 3`); err != nil {
		t.Fatalf("delete in tx: %v", err)
	}
	if _, err := tx.Exec(`INSERT INTO items(embedding) VALUES ('[2,2]')`); err != nil {
		t.Fatalf("insert in tx: %v", err)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatalf("rollback: %v", err)
	}
	if ids := queryRowids(t, db, `SELECT rowid FROM items`); !reflect.DeepEqual(ids, []int64{1, 3}) {
		t.Fatalf("rollback not applied: %v", ids)
	}
	mustExec(t, db, `INSERT INTO items(embedding) VALUES ('[2,2]')`)
	if ids := queryRowids(t, db, `SELECT rowid FROM items WHERE rowid = 4`); !reflect.DeepEqual(ids, []int64{4}) {
		t.Fatalf("rowid not reused after rollback: %v", ids)
	}
}

func TestVecPersistenceRenameAndDrop(t *testing.T) {
	reg := index.NewRegistry()
	mod := newModuleName()
	path := filepath.Join(t.TempDir(), "vec0.sqlite")

	db := openDB(t, path, reg, mod)
	mustExec(t, db, fmt.Sprintf(`CREATE VIRTUAL TABLE items USING %s(embedding int8[2], compression=lz4)`, mod))
	mustExec(t, db, `INSERT INTO items(embedding) VALUES ('[1,0]'), ('[0,1]'), ('[1,1]')`)
	if err := db.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if tables := reg.Tables(); len(tables) != 0 {
		t.Fatalf("table still connected after close: %v", tables)
	}

	db = openDB(t, path, reg, mod)
	defer db.Close()
	ids := queryRowids(t, db, `SELECT rowid FROM items WHERE embedding MATCH '[1,0]' AND k = 2`)
	if !reflect.DeepEqual(ids, []int64{1, 3}) {
		t.Fatalf("reloaded table returned %v", ids)
	}

	mustExec(t, db, `ALTER TABLE items RENAME TO things`)
	if ids := queryRowids(t, db, `SELECT rowid FROM things`); !reflect.DeepEqual(ids, []int64{1, 2, 3}) {
		t.Fatalf("renamed table returned %v", ids)
	}
	mustExec(t, db, `DROP TABLE things`)
	if tables := reg.Tables(); len(tables) != 0 {
		t.Fatalf("dropped table still registered: %v", tables)
	}
}
