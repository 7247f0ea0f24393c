package query

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viant/vec0/internal/chunk"
	"github.com/viant/vec0/internal/metaindex"
	"github.com/viant/vec0/internal/resource"
	"github.com/viant/vec0/internal/scalar"
	"github.com/viant/vec0/schema"
	"github.com/viant/vec0/vecerr"
	"github.com/viant/vec0/vector"
)

type testTable struct {
	schema  *schema.Schema
	store   *chunk.Store
	summary *metaindex.Index
	ctrl    *resource.Controller
}

func (t *testTable) Schema() *schema.Schema { return t.schema }
func (t *testTable) Controller() *resource.Controller { return t.ctrl }
func (t *testTable) View(fn func(*chunk.Store, *metaindex.Index) error) error {
	return fn(t.store, t.summary)
}

func newTestTable(t *testing.T, args ...string) *testTable {
	t.Helper()
	s, err := schema.Parse("t", args)
	require.NoError(t, err)
	store, err := chunk.New(s.Layout(), resource.NewController(resource.Config{}))
	require.NoError(t, err)
	return &testTable{schema: s, store: store, summary: metaindex.New(len(s.Partitions)), ctrl: resource.NewController(resource.Config{})}
}

func (t *testTable) insert(tb *testing.T, rowid int64, vec []float32, partitions, metadata []scalar.Value) {
	tb.Helper()
	_, loc, err := t.store.Append(chunk.Row{Rowid: rowid, Vectors: []vector.Vector{vector.NewFloat32(vec)}, Partitions: partitions, Metadata: metadata})
	require.NoError(tb, err)
	for i, v := range partitions {
		t.summary.Add(loc.Chunk, i, v)
	}
}

func knnPlan(extra ...Arg) Plan {
	return Plan{Strategy: KnnScan, Args: append([]Arg{{Bind: BindVector, Op: metaindex.Eq, Column: 0}, {Bind: BindK, Op: metaindex.Eq, Column: -1}}, extra...)}
}

type result struct {
	rowid    int64
	distance float64
}

func drain(t *testing.T, c *Cursor) []result {
	t.Helper()
	var out []result
	for !c.Eof() {
		rowid, err := c.Rowid()
		require.NoError(t, err)
		d, _ := c.Distance()
		out = append(out, result{rowid: rowid, distance: d})
		require.NoError(t, c.Next())
	}
	return out
}

func TestKnnWorkedExample(t *testing.T) {
	table := newTestTable(t, "embedding float[2]")
	table.insert(t, 1, []float32{1, 0}, nil, nil)
	table.insert(t, 2, []float32{0, 1}, nil, nil)
	table.insert(t, 3, []float32{1, 1}, nil, nil)

	c := NewCursor(table)
	assert.Equal(t, Init, c.State())
	require.NoError(t, c.Filter(knnPlan(), []any{"[1, 0]", int64(2)}))
	assert.Equal(t, Scanning, c.State())

	v, err := c.Column(0)
	require.NoError(t, err)
	assert.Equal(t, vector.NewFloat32([]float32{1, 0}).Encode(), v)
	k, err := c.Column(table.schema.KColumn())
	require.NoError(t, err)
	assert.Equal(t, int64(2), k)

	assert.Equal(t, []result{{1, 0}, {3, 1}}, drain(t, c))
	assert.Equal(t, Exhausted, c.State())
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.Equal(t, Closed, c.State())
	assert.Equal(t, int64(0), table.ctrl.Used())
}

func TestKnnCardinalityAndTies(t *testing.T) {
	table := newTestTable(t, "v float[1]", "chunk_size=8")
	for i := int64(20); i >= 1; i-- {
		table.insert(t, i, []float32{float32(i % 2)}, nil, nil)
	}
	var testCases = []struct {
		description string
		k           int64
		expect      []int64
	}{
		{description: "zero", k: 0},
		{description: "ties by rowid", k: 3, expect: []int64{2, 4, 6}},
		{description: "more than rows", k: 100},
	}
	for _, testCase := range testCases {
		c := NewCursor(table)
		require.NoError(t, c.Filter(knnPlan(), []any{"[0]", testCase.k}), testCase.description)
		got := drain(t, c)
		assert.Len(t, got, int(min(testCase.k, 20)), testCase.description)
		for i := 1; i < len(got); i++ {
			prev, cur := got[i-1], got[i]
			assert.True(t, prev.distance < cur.distance || (prev.distance == cur.distance && prev.rowid < cur.rowid), testCase.description)
		}
		for i, rowid := range testCase.expect {
			assert.Equal(t, rowid, got[i].rowid, testCase.description)
		}
		require.NoError(t, c.Close())
	}
	assert.Equal(t, int64(0), table.ctrl.Used())
}

func TestKnnFilters(t *testing.T) {
	table := newTestTable(t, "v float[1]", "user text partition key", "genre text", "score integer", "chunk_size=8")
	users := []string{"a", "b"}
	genres := []scalar.Value{scalar.TextValue("rock"), scalar.TextValue("jazz"), {}}
	for i := int64(1); i <= 30; i++ {
		table.insert(t, i, []float32{float32(i)},
			[]scalar.Value{scalar.TextValue(users[(i-1)/15])},
			[]scalar.Value{genres[i%3], scalar.IntValue(i)})
	}

	c := NewCursor(table)
	plan := knnPlan(Arg{Bind: BindPartition, Op: metaindex.Eq, Column: 1}, Arg{Bind: BindMetadata, Op: metaindex.Ge, Column: 3})
	require.NoError(t, c.Filter(plan, []any{"[0]", int64(3), "b", int64(20)}))
	var rowids []int64
	for _, r := range drain(t, c) {
		rowids = append(rowids, r.rowid)
	}
	assert.Equal(t, []int64{20, 21, 22}, rowids)
	require.NoError(t, c.Close())

	run := func(values ...any) []result {
		c := NewCursor(table)
		defer c.Close()
		require.NoError(t, c.Start(Request{Strategy: KnnScan, Vector: 0, Query: "[0]", K: 30,
			Conditions: []Condition{{Column: 2, Op: metaindex.In, Values: values}}}))
		return drain(t, c)
	}
	deduped := run("jazz")
	assert.Len(t, deduped, 10)
	assert.Equal(t, deduped, run("jazz", "jazz", "jazz", nil))

	c = NewCursor(table)
	require.NoError(t, c.Start(Request{Strategy: KnnScan, Vector: 0, Query: "[0]", K: 30,
		Conditions: []Condition{{Column: 2, Op: metaindex.Ne, Value: "rock"}}}))
	assert.Len(t, drain(t, c), 10)
	require.NoError(t, c.Close())
	assert.Equal(t, int64(0), table.ctrl.Used())
}

func TestPrepareErrorsReleaseEverything(t *testing.T) {
	table := newTestTable(t, "v float[2]", "genre text", "max_k=10")
	table.insert(t, 1, []float32{1, 1}, nil, []scalar.Value{scalar.TextValue("a")})
	var testCases = []struct {
		description string
		req         Request
		kind        error
	}{
		{description: "dimension", req: Request{Strategy: KnnScan, Vector: 0, Query: "[1, 2, 3]", K: 1}, kind: vecerr.ErrValidation},
		{description: "null vector", req: Request{Strategy: KnnScan, Vector: 0, K: 1}, kind: vecerr.ErrValidation},
		{description: "missing k", req: Request{Strategy: KnnScan, Vector: 0, Query: "[1, 2]", K: -1}, kind: vecerr.ErrMissingK},
		{description: "k above max", req: Request{Strategy: KnnScan, Vector: 0, Query: "[1, 2]", K: 11}, kind: vecerr.ErrValidation},
		{description: "filter on vector", req: Request{Strategy: FullScan, Conditions: []Condition{{Column: 0, Op: metaindex.Eq, Value: int64(1)}}}, kind: vecerr.ErrUnknownColumn},
		{description: "operand type", req: Request{Strategy: KnnScan, Vector: 0, Query: "[1, 2]", K: 1,
			Conditions: []Condition{{Column: 1, Op: metaindex.In, Values: []any{"a", "b"}}, {Column: 1, Op: metaindex.Eq, Value: int64(3)}}}, kind: vecerr.ErrTypeMismatch},
	}
	for _, testCase := range testCases {
		c := NewCursor(table)
		err := c.Start(testCase.req)
		require.Error(t, err, testCase.description)
		assert.True(t, errors.Is(err, testCase.kind), testCase.description)
		assert.True(t, c.Eof(), testCase.description)
		assert.Equal(t, int64(0), table.ctrl.Used(), testCase.description)
		require.NoError(t, c.Close())
	}
}

func TestPrepareResourceError(t *testing.T) {
	table := newTestTable(t, "v float[64]", "genre text")
	table.ctrl = resource.NewController(resource.Config{MemoryLimitBytes: 64})
	c := NewCursor(table)
	err := c.Start(Request{Strategy: KnnScan, Vector: 0, Query: vector.NewFloat32(make([]float32, 64)), K: 10,
		Conditions: []Condition{{Column: 1, Op: metaindex.In, Values: []any{"a"}}}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, vecerr.ErrResource))
	assert.Equal(t, int64(0), table.ctrl.Used())
}

func TestFullScanAndRowidLookup(t *testing.T) {
	table := newTestTable(t, "v float[1]", "score float", "chunk_size=8")
	for i := int64(1); i <= 12; i++ {
		score := scalar.FloatValue(float64(i) / 2)
		if i == 4 {
			score = scalar.Value{}
		}
		table.insert(t, i, []float32{float32(i)}, nil, []scalar.Value{score})
	}
	_, err := table.store.Tombstone(2)
	require.NoError(t, err)

	c := NewCursor(table)
	require.NoError(t, c.Filter(Plan{Strategy: FullScan}, nil))
	assert.Len(t, drain(t, c), 11)
	require.NoError(t, c.Close())

	c = NewCursor(table)
	require.NoError(t, c.Filter(Plan{Strategy: FullScan, Args: []Arg{{Bind: BindMetadata, Op: metaindex.Lt, Column: 1}}}, []any{3.0}))
	var rowids []int64
	for _, r := range drain(t, c) {
		rowids = append(rowids, r.rowid)
	}
	assert.Equal(t, []int64{1, 3, 5}, rowids)
	require.NoError(t, c.Close())

	c = NewCursor(table)
	require.NoError(t, c.Filter(Plan{Strategy: RowidLookup, Args: []Arg{{Bind: BindRowid, Op: metaindex.Eq, Column: -1}}}, []any{int64(9)}))
	require.False(t, c.Eof())
	score, err := c.Column(1)
	require.NoError(t, err)
	assert.Equal(t, 4.5, score)
	d, err := c.Column(table.schema.DistanceColumn())
	require.NoError(t, err)
	assert.Nil(t, d)
	require.NoError(t, c.Next())
	assert.True(t, c.Eof())
	require.NoError(t, c.Close())

	c = NewCursor(table)
	require.NoError(t, c.Filter(Plan{Strategy: RowidLookup, Args: []Arg{{Bind: BindRowid, Op: metaindex.Eq, Column: -1}}}, []any{int64(2)}))
	assert.True(t, c.Eof())
	require.NoError(t, c.Close())
}

func TestBest(t *testing.T) {
	s, err := schema.Parse("t", []string{"a float[2]", "b float[2]", "user integer partition key", "genre text", "+note text"})
	require.NoError(t, err)
	kcol := s.KColumn()

	choice, err := Best(s, []Offer{
		{Column: 3, Op: OpEq, Usable: true},
		{Column: 0, Op: OpMatch, Usable: true},
		{Column: kcol, Op: OpEq, Usable: true},
		{Column: 2, Op: OpEq, Usable: true},
		{Column: 4, Op: OpEq, Usable: true},
		{Column: 2, Op: OpGt, Usable: true},
	}, []Order{{Column: s.DistanceColumn()}})
	require.NoError(t, err)
	assert.Equal(t, KnnScan, choice.Plan.Strategy)
	assert.Equal(t, []int{2, 0, 1, 3, -1, -1}, choice.Use)
	assert.True(t, choice.OrderConsumed)
	encoded := choice.Plan.Encode()
	assert.Equal(t, "v=0,k=,m=3,p=2", encoded)
	decoded, err := DecodePlan(KnnScan, encoded)
	require.NoError(t, err)
	assert.Equal(t, choice.Plan, decoded)

	choice, err = Best(s, []Offer{{Column: 1, Op: OpMatch, Usable: true}, {Op: OpLimit, Usable: true}}, nil)
	require.NoError(t, err)
	assert.Equal(t, []Arg{{Bind: BindVector, Op: metaindex.Eq, Column: 1}, {Bind: BindLimit, Op: metaindex.Eq, Column: -1}}, choice.Plan.Args)
	assert.False(t, choice.Omit[1])

	_, err = Best(s, []Offer{{Column: 1, Op: OpMatch, Usable: true}}, nil)
	assert.True(t, errors.Is(err, vecerr.ErrValidation))
	_, err = Best(s, []Offer{{Column: 0, Op: OpMatch, Usable: true}, {Column: 1, Op: OpMatch, Usable: true}, {Op: OpLimit, Usable: true}}, nil)
	assert.True(t, errors.Is(err, vecerr.ErrValidation))

	choice, err = Best(s, []Offer{{Column: RowidColumn, Op: OpEq, Usable: true}}, nil)
	require.NoError(t, err)
	assert.Equal(t, RowidLookup, choice.Plan.Strategy)
	assert.True(t, choice.Unique)

	choice, err = Best(s, []Offer{{Column: 0, Op: OpMatch, Usable: false}}, nil)
	require.NoError(t, err)
	assert.Equal(t, unusableCost, choice.Cost)

	_, err = DecodePlan(KnnScan, "x=1")
	assert.Error(t, err)
}
