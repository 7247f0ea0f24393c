package engine

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type element struct {
	Index int64
	Value any
}

func eachRows(t *testing.T, db *sql.DB, query string, args ...any) ([]element, error) {
	t.Helper()
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []element
	for rows.Next() {
		var e element
		require.NoError(t, rows.Scan(&e.Index, &e.Value))
		out = append(out, e)
	}
	return out, rows.Err()
}

func TestVecEach(t *testing.T) {
	db, err := Open(":memory:")
	require.NoError(t, err)
	defer db.Close()

	var testCases = []struct {
		description string
		query       string
		args        []any
		expect      []element
	}{
		{
			description: "json text",
			query:       `SELECT rowid, value FROM vec_each('[1, -2.5, 3]')`,
			expect:      []element{{0, 1.0}, {1, -2.5}, {2, 3.0}},
		},
		{
			description: "float32 blob",
			query:       `SELECT rowid, value FROM vec_each(vec_f32('[0.5, 4]'))`,
			expect:      []element{{0, 0.5}, {1, 4.0}},
		},
		{
			description: "int8 blob",
			query:       `SELECT rowid, value FROM vec_each(vec_int8('[7, -8]'), 'int8')`,
			expect:      []element{{0, int64(7)}, {1, int64(-8)}},
		},
		{
			description: "bit blob",
			query:       `SELECT rowid, value FROM vec_each(vec_bit(X'05'), 'bit')`,
			expect: []element{
				{0, int64(1)}, {1, int64(0)}, {2, int64(1)}, {3, int64(0)},
				{4, int64(0)}, {5, int64(0)}, {6, int64(0)}, {7, int64(0)},
			},
		},
		{
			description: "bound parameter",
			query:       `SELECT rowid, value FROM vec_each(?)`,
			args:        []any{"[9]"},
			expect:      []element{{0, 9.0}},
		},
	}
	for _, testCase := range testCases {
		got, err := eachRows(t, db, testCase.query, testCase.args...)
		require.NoError(t, err, testCase.description)
		assert.Equal(t, testCase.expect, got, testCase.description)
	}

	var total float64
	require.NoError(t, db.QueryRow(`SELECT sum(value) FROM vec_each('[1, 2, 3, 4]') WHERE rowid >= 2`).Scan(&total))
	assert.Equal(t, 7.0, total)

	var count int
	require.NoError(t, db.QueryRow(`SELECT count(*) FROM (SELECT '[1, 2]' AS v UNION ALL SELECT '[3]') AS src, vec_each(src.v)`).Scan(&count))
	assert.Equal(t, 3, count)
}

func TestVecEachErrors(t *testing.T) {
	db, err := Open(":memory:")
	require.NoError(t, err)
	defer db.Close()

	var testCases = []struct {
		description string
		query       string
		expect      string
	}{
		{description: "missing vector", query: `SELECT value FROM vec_each`, expect: "vec0: vec_each: a vector argument is required"},
		{description: "null vector", query: `SELECT value FROM vec_each(NULL)`, expect: "vec0: vec_each: vector value must not be NULL"},
		{description: "bad json", query: `SELECT value FROM vec_each('nope')`, expect: "vec0: vec_each: vector text must be a JSON array"},
		{description: "bad blob", query: `SELECT value FROM vec_each(X'010203')`, expect: "vec0: vec_each: invalid float32"},
		{description: "bad type", query: `SELECT value FROM vec_each('[1]', 'float16')`, expect: "vec0: vec_each: unknown vector element type"},
		{description: "type not text", query: `SELECT value FROM vec_each('[1]', 3)`, expect: "vec0: vec_each: element type argument must be text"},
		{description: "unsupported value", query: `SELECT value FROM vec_each(42)`, expect: "vec0: vec_each: unsupported vector argument type int64"},
	}
	for _, testCase := range testCases {
		_, err := eachRows(t, db, testCase.query)
		require.Error(t, err, testCase.description)
		assert.Contains(t, err.Error(), testCase.expect, testCase.description)
	}
}
