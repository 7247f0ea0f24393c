package index

import (
	"context"
	"fmt"

	"github.com/viant/vec0/internal/metaindex"
	"github.com/viant/vec0/internal/query"
	"github.com/viant/vec0/vecerr"
)

// Op is a filter operator.
type Op = metaindex.Op

// Filter operators.
const (
	Eq = metaindex.Eq
	Ne = metaindex.Ne
	Lt = metaindex.Lt
	Le = metaindex.Le
	Gt = metaindex.Gt
	Ge = metaindex.Ge
	In = metaindex.In
)

// Filter is a condition on a partition key or metadata column. Values is
// used by In only.
type Filter struct {
	Column string
	Op     Op
	Value  any
	Values []any
}

// Search is a KNN query. Vector is a vector.Vector, a BLOB or JSON text.
type Search struct {
	Column  string
	Vector  any
	K       int
	Filters []Filter
}

// Hit is one query result. Values holds one entry per declared column.
type Hit struct {
	Rowid    int64
	Distance float64
	Values   []any
}

// Query returns the K nearest rows to s.Vector that satisfy every filter,
// ordered by ascending distance, ties broken by smaller rowid.
func (t *Table) Query(ctx context.Context, s Search) ([]Hit, error) {
	col, ok := t.schema.Lookup(s.Column)
	if !ok {
		return nil, vecerr.Validation("query", fmt.Errorf("%w: %s", vecerr.ErrUnknownColumn, s.Column))
	}
	req := query.Request{Strategy: query.KnnScan, Vector: col, Query: s.Vector, K: int64(s.K)}
	conditions, err := t.conditions(s.Filters)
	if err != nil {
		return nil, err
	}
	req.Conditions = conditions
	t.logger.WithK(s.K).DebugContext(ctx, "knn query", "column", s.Column, "filters", len(s.Filters))
	return t.run(req)
}

// Scan returns every live row satisfying filters in storage order.
func (t *Table) Scan(ctx context.Context, filters ...Filter) ([]Hit, error) {
	conditions, err := t.conditions(filters)
	if err != nil {
		return nil, err
	}
	return t.run(query.Request{Strategy: query.FullScan, Vector: -1, K: -1, Conditions: conditions})
}

// Get returns the row stored under rowid.
func (t *Table) Get(ctx context.Context, rowid int64) (Hit, bool, error) {
	hits, err := t.run(query.Request{Strategy: query.RowidLookup, Vector: -1, K: -1, Rowids: []int64{rowid}})
	if err != nil || len(hits) == 0 {
		return Hit{}, false, err
	}
	return hits[0], true, nil
}

func (t *Table) conditions(filters []Filter) ([]query.Condition, error) {
	var out []query.Condition
	for _, f := range filters {
		col, ok := t.schema.Lookup(f.Column)
		if !ok {
			return nil, vecerr.Validation("query", fmt.Errorf("%w: %s", vecerr.ErrUnknownColumn, f.Column))
		}
		op := f.Op
		if op == 0 {
			op = Eq
		}
		out = append(out, query.Condition{Column: col, Op: op, Value: f.Value, Values: f.Values})
	}
	return out, nil
}

func (t *Table) run(req query.Request) ([]Hit, error) {
	cur := query.NewCursor(t)
	defer cur.Close()
	if err := cur.Start(req); err != nil {
		return nil, err
	}
	var hits []Hit
	for !cur.Eof() {
		rowid, err := cur.Rowid()
		if err != nil {
			return nil, err
		}
		hit := Hit{Rowid: rowid, Values: make([]any, len(t.schema.Columns))}
		hit.Distance, _ = cur.Distance()
		for i := range hit.Values {
			if hit.Values[i], err = cur.Column(i); err != nil {
				return nil, err
			}
		}
		hits = append(hits, hit)
		if err := cur.Next(); err != nil {
			return nil, err
		}
	}
	return hits, nil
}
