// Package vecutil layers text-in, text-out helpers over vec0 tables: the
// caller supplies an EmbedFunc and the helpers turn documents and queries
// into vectors before they reach SQL.
package vecutil

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/viant/vec0/vecerr"
	"github.com/viant/vec0/vector"
)

// EmbedFunc maps text to a float32 embedding. Every call for one table must
// return the dimension the table declares.
type EmbedFunc func(ctx context.Context, text string) ([]float32, error)

func invalid(format string, args ...any) error {
	return vecerr.Validationf("vecutil", format, args...)
}

func failed(op string, err error) error {
	return fmt.Errorf("vec0: vecutil: %s: %w", op, err)
}

// EmbedText runs embed on text and encodes the result as a float32 BLOB.
func EmbedText(ctx context.Context, embed EmbedFunc, text string) ([]byte, error) {
	if embed == nil {
		return nil, invalid("embed function is nil")
	}
	values, err := embed(ctx, text)
	if err != nil {
		return nil, failed("embed", err)
	}
	blob, err := vector.EncodeEmbedding(values)
	if err != nil {
		return nil, failed("encode embedding", err)
	}
	return blob, nil
}

// DocumentTableSQL is the declaration Index works against:
//
//	embedding  float[dims], cosine
//	dataset_id partition key
//	doc_id, content, meta auxiliary text
//
// module and table are spliced into the statement unquoted.
func DocumentTableSQL(module, table string, dims int) string {
	return fmt.Sprintf(`CREATE VIRTUAL TABLE %s USING %s(
  embedding float[%d] distance_metric=cosine,
  dataset_id text partition key,
  +doc_id text,
  +content text,
  +meta text
)`, table, module, dims)
}

// MatchText embeds query and returns the rowids of the limit nearest rows of
// table by column, closest first.
func MatchText(ctx context.Context, db *sql.DB, table, column string, embed EmbedFunc, query string, limit int) ([]int64, error) {
	switch {
	case db == nil:
		return nil, invalid("db is nil")
	case limit <= 0:
		return nil, invalid("limit must be positive, got %d", limit)
	}
	blob, err := EmbedText(ctx, embed, query)
	if err != nil {
		return nil, err
	}
	stmt := fmt.Sprintf("SELECT rowid FROM %s WHERE %s MATCH ? ORDER BY distance LIMIT ?", quoteIdent(table), quoteIdent(column))
	rows, err := db.QueryContext(ctx, stmt, blob, limit)
	if err != nil {
		return nil, failed("match "+table, err)
	}
	ids, err := collect(rows, func(rows *sql.Rows) (int64, error) {
		var id int64
		err := rows.Scan(&id)
		return id, err
	})
	if err != nil {
		return nil, failed("match "+table, err)
	}
	return ids, nil
}

// collect scans every row with scan and closes rows.
func collect[T any](rows *sql.Rows, scan func(*sql.Rows) (T, error)) ([]T, error) {
	defer rows.Close()
	var out []T
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
