package query

import (
	"errors"
	"fmt"
	"math"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/viant/vec0/distance"
	"github.com/viant/vec0/internal/chunk"
	"github.com/viant/vec0/internal/knn"
	"github.com/viant/vec0/internal/metaindex"
	"github.com/viant/vec0/internal/resource"
	"github.com/viant/vec0/internal/scalar"
	"github.com/viant/vec0/schema"
	"github.com/viant/vec0/vecerr"
	"github.com/viant/vec0/vector"
)

// Condition is a predicate on a partition or metadata column. Values is used
// by IN conditions only.
type Condition struct {
	Column int
	Op     metaindex.Op
	Value  any
	Values []any
}

// Request is a bound query.
type Request struct {
	Strategy Strategy
	// Vector is the schema position of the matched vector column.
	Vector int
	// Query is a vector.Vector, a BLOB or JSON text.
	Query      any
	K          int64
	Rowids     []int64
	Conditions []Condition
}

// Bind pairs the plan arguments with the values supplied by the host.
func Bind(s *schema.Schema, p Plan, vals []any) (Request, error) {
	if len(vals) != len(p.Args) {
		return Request{}, vecerr.Consistencyf("bind", "plan expects %d arguments, got %d", len(p.Args), len(vals))
	}
	req := Request{Strategy: p.Strategy, Vector: -1, K: -1}
	for i, arg := range p.Args {
		v := vals[i]
		switch arg.Bind {
		case BindVector:
			req.Vector, req.Query = arg.Column, v
		case BindK:
			k, err := integer("k", v)
			if err != nil {
				return Request{}, err
			}
			req.K = k
		case BindLimit:
			limit, err := integer("LIMIT", v)
			if err != nil {
				return Request{}, err
			}
			if req.K < 0 {
				req.K = limit
			}
		case BindRowid:
			rowid, err := integer("rowid", v)
			if err != nil {
				return Request{}, err
			}
			req.Rowids = append(req.Rowids, rowid)
		case BindPartition, BindMetadata:
			req.Conditions = append(req.Conditions, Condition{Column: arg.Column, Op: arg.Op, Value: v})
		}
	}
	return req, nil
}

func integer(name string, v any) (int64, error) {
	switch actual := v.(type) {
	case int64:
		return actual, nil
	case float64:
		if actual == math.Trunc(actual) && math.Abs(actual) < 1<<62 {
			return int64(actual), nil
		}
	}
	return 0, vecerr.Validationf("bind", "%s must be an integer, got %v", name, v)
}

// State is the transient state of one query: query vector, k, active filters
// and the memory reserved for them. It is owned by exactly one cursor.
type State struct {
	Strategy Strategy
	Column   *schema.Column
	K        int

	scorer     *distance.Scorer
	rowid      int64
	hasRowid   bool
	empty      bool
	filter     metaindex.Filter
	candidates *roaring.Bitmap
	lease      *resource.Lease
	released   bool
}

// Release returns everything the state holds. Safe to call more than once.
func (st *State) Release() {
	if st == nil || st.released {
		return
	}
	st.released = true
	st.filter.Release()
	st.filter = nil
	st.lease.Release()
	st.scorer = nil
	st.candidates = nil
}

// Filter returns the active predicates.
func (st *State) Filter() metaindex.Filter { return st.filter }

// builder constructs a State and hands it over only once complete.
type builder struct {
	state *State
	done  bool
}

func newBuilder(ctrl *resource.Controller, strategy Strategy) *builder {
	return &builder{state: &State{Strategy: strategy, lease: ctrl.NewLease("query")}}
}

func (b *builder) abandon() {
	if !b.done {
		b.state.Release()
	}
}

func (b *builder) finish() *State {
	b.done = true
	return b.state
}

// Prepare validates req against s and builds its query state. On error
// nothing stays reserved.
func Prepare(s *schema.Schema, ctrl *resource.Controller, req Request) (*State, error) {
	var (
		query  vector.Vector
		column *schema.Column
		k      int
	)
	if req.Strategy == KnnScan {
		if !isVector(s, req.Vector) {
			return nil, vecerr.Validationf("knn", "column %d is not a vector column", req.Vector)
		}
		column = &s.Columns[req.Vector]
		var err error
		if query, err = queryVector(column, req.Query); err != nil {
			return nil, err
		}
		switch {
		case req.K < 0:
			return nil, vecerr.Validation("knn", fmt.Errorf("%w: a LIMIT or 'k = ?' constraint is required", vecerr.ErrMissingK))
		case req.K > int64(s.Options.MaxK):
			return nil, vecerr.Validationf("knn", "k = %d exceeds max_k %d", req.K, s.Options.MaxK)
		}
		k = int(req.K)
	}

	b := newBuilder(ctrl, req.Strategy)
	defer b.abandon()
	st := b.state
	st.Column, st.K = column, k
	for i, rowid := range req.Rowids {
		if i > 0 && rowid != st.rowid {
			st.empty = true
		}
		st.rowid, st.hasRowid = rowid, true
	}
	for _, cond := range req.Conditions {
		p, err := predicate(s, ctrl, cond)
		if err != nil {
			return nil, err
		}
		st.filter = append(st.filter, p)
	}
	if req.Strategy == KnnScan {
		scorer, err := column.Kernel.NewScorer(query)
		if err != nil {
			return nil, vecerr.Validation("knn", err)
		}
		if err = st.lease.Grow(scorer.Bytes() + knn.Bytes(k)); err != nil {
			return nil, err
		}
		st.scorer = scorer
		if k == 0 {
			st.empty = true
		}
	}
	return b.finish(), nil
}

func queryVector(column *schema.Column, value any) (vector.Vector, error) {
	if v, ok := value.(vector.Vector); ok {
		if v.Type != column.Element {
			return vector.Vector{}, vecerr.Validation("knn", fmt.Errorf("%w: column %q stores %v vectors, query is %v",
				vecerr.ErrTypeMismatch, column.Name, column.Element, v.Type))
		}
		if v.Dims != column.Dims {
			return vector.Vector{}, vecerr.DimensionMismatch("knn", column.Name, column.Dims, v.Dims)
		}
		if err := v.Validate(); err != nil {
			return vector.Vector{}, vecerr.Validation("knn", err)
		}
		return v, nil
	}
	v, err := vector.Parse(column.Element, column.Dims, value)
	if err != nil {
		var dm *vecerr.DimensionMismatchError
		if errors.As(err, &dm) {
			return vector.Vector{}, vecerr.DimensionMismatch("knn", column.Name, dm.Expected, dm.Actual)
		}
		return vector.Vector{}, vecerr.Validation("knn", fmt.Errorf("query vector for %q: %w", column.Name, err))
	}
	return v, nil
}

func predicate(s *schema.Schema, ctrl *resource.Controller, cond Condition) (metaindex.Predicate, error) {
	if cond.Column < 0 || cond.Column >= len(s.Columns) {
		return metaindex.Predicate{}, vecerr.Validation("filter", fmt.Errorf("%w: column %d", vecerr.ErrUnknownColumn, cond.Column))
	}
	col := &s.Columns[cond.Column]
	p := metaindex.Predicate{Column: col.Index, Op: cond.Op}
	switch col.Role {
	case schema.RolePartition:
		p.Target = metaindex.Partition
		if cond.Op != metaindex.Eq && cond.Op != metaindex.In {
			return metaindex.Predicate{}, vecerr.Validationf("filter", "partition key %q supports only = and IN, got %v", col.Name, cond.Op)
		}
	case schema.RoleMetadata:
		p.Target = metaindex.Metadata
	default:
		return metaindex.Predicate{}, vecerr.Validation("filter", fmt.Errorf("%w: %s column %q cannot be filtered", vecerr.ErrUnknownColumn, col.Role, col.Name))
	}
	if cond.Op != metaindex.In {
		v, err := operand(col, cond.Value)
		if err != nil {
			return metaindex.Predicate{}, err
		}
		p.Value = v
		return p, nil
	}
	values := make([]scalar.Value, 0, len(cond.Values))
	for _, raw := range cond.Values {
		v, err := operand(col, raw)
		if err != nil {
			return metaindex.Predicate{}, err
		}
		values = append(values, v)
	}
	set, err := metaindex.NewInSet(ctrl, values)
	if err != nil {
		return metaindex.Predicate{}, err
	}
	p.Set = set
	return p, nil
}

func operand(col *schema.Column, raw any) (scalar.Value, error) {
	v, err := scalar.FromDriver(raw)
	if err != nil {
		return scalar.Value{}, vecerr.Validation("filter", fmt.Errorf("column %q: %w", col.Name, err))
	}
	if v.IsNull() {
		return v, nil
	}
	numeric := v.Kind == scalar.Integer || v.Kind == scalar.Float
	switch col.Type {
	case schema.TypeInteger, schema.TypeFloat, schema.TypeBoolean:
		if numeric {
			return v, nil
		}
	case schema.TypeText:
		if v.Kind == scalar.Text {
			return v, nil
		}
	default:
		return v, nil
	}
	return scalar.Value{}, vecerr.Validation("filter", fmt.Errorf("%w: column %q is %v, operand is %v", vecerr.ErrTypeMismatch, col.Name, col.Type, v.Kind))
}

// prune computes the chunks that may hold matching rows.
func (st *State) prune(summary *metaindex.Index) {
	st.candidates = summary.Candidates(st.filter)
}

func (st *State) accept(c *chunk.Chunk, slot int) bool {
	if st.hasRowid && c.Rowid(slot) != st.rowid {
		return false
	}
	return st.filter.MatchRow(c, slot)
}

// Search runs the bounded k nearest neighbor scan over every eligible chunk.
func (st *State) Search(store *chunk.Store, summary *metaindex.Index) ([]knn.Neighbor, error) {
	if st.scorer == nil {
		return nil, vecerr.Consistencyf("knn", "query state has no query vector")
	}
	if st.empty {
		return nil, nil
	}
	st.prune(summary)
	col := st.Column.Index
	selector := knn.NewSelector(st.K)
	if st.hasRowid {
		loc, ok := store.Lookup(st.rowid)
		if !ok {
			return nil, nil
		}
		c := store.Chunk(loc.Chunk)
		if err := store.CheckSlab(c, col); err != nil {
			return nil, err
		}
		if st.accept(c, loc.Slot) {
			selector.Offer(knn.Neighbor{Rowid: st.rowid, Distance: st.scorer.Score(c.Slab(col, loc.Slot), c.Quant(col, loc.Slot))})
		}
		return selector.Drain(), nil
	}
	for _, c := range store.Chunks() {
		if metaindex.Decide(st.candidates, c.ID) == metaindex.Skip {
			continue
		}
		if err := store.CheckSlab(c, col); err != nil {
			return nil, err
		}
		for slot := range c.IterateLive() {
			if !st.filter.MatchRow(c, slot) {
				continue
			}
			d := st.scorer.Score(c.Slab(col, slot), c.Quant(col, slot))
			selector.Offer(knn.Neighbor{Rowid: c.Rowid(slot), Distance: d})
		}
	}
	return selector.Drain(), nil
}

// Seek returns the first row at or after from that satisfies the state's
// rowid and filter constraints.
func (st *State) Seek(store *chunk.Store, from chunk.Location) (chunk.Location, int64, bool) {
	if st.empty {
		return chunk.Location{}, 0, false
	}
	if st.hasRowid {
		loc, ok := store.Lookup(st.rowid)
		if !ok || loc.Chunk < from.Chunk || (loc.Chunk == from.Chunk && loc.Slot < from.Slot) {
			return chunk.Location{}, 0, false
		}
		c := store.Chunk(loc.Chunk)
		if !st.filter.MatchRow(c, loc.Slot) {
			return chunk.Location{}, 0, false
		}
		return loc, st.rowid, true
	}
	for {
		loc, ok := store.NextLive(from)
		if !ok {
			return chunk.Location{}, 0, false
		}
		if metaindex.Decide(st.candidates, loc.Chunk) == metaindex.Skip {
			from = chunk.Location{Chunk: loc.Chunk + 1}
			continue
		}
		c := store.Chunk(loc.Chunk)
		if st.accept(c, loc.Slot) {
			return loc, c.Rowid(loc.Slot), true
		}
		from = chunk.Location{Chunk: loc.Chunk, Slot: loc.Slot + 1}
	}
}
