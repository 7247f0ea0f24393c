package metaindex

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viant/vec0/internal/resource"
	"github.com/viant/vec0/internal/scalar"
	"github.com/viant/vec0/vecerr"
)

func TestPredicateMatch(t *testing.T) {
	var testCases = []struct {
		description string
		pred        Predicate
		value       scalar.Value
		expect      bool
	}{
		{description: "eq", pred: Predicate{Op: Eq, Value: scalar.IntValue(3)}, value: scalar.IntValue(3), expect: true},
		{description: "eq int float", pred: Predicate{Op: Eq, Value: scalar.FloatValue(3)}, value: scalar.IntValue(3), expect: true},
		{description: "ne", pred: Predicate{Op: Ne, Value: scalar.TextValue("a")}, value: scalar.TextValue("b"), expect: true},
		{description: "lt exclusive", pred: Predicate{Op: Lt, Value: scalar.IntValue(3)}, value: scalar.IntValue(3), expect: false},
		{description: "le inclusive", pred: Predicate{Op: Le, Value: scalar.IntValue(3)}, value: scalar.IntValue(3), expect: true},
		{description: "gt exclusive", pred: Predicate{Op: Gt, Value: scalar.FloatValue(2.5)}, value: scalar.FloatValue(2.5), expect: false},
		{description: "ge inclusive", pred: Predicate{Op: Ge, Value: scalar.FloatValue(2.5)}, value: scalar.IntValue(3), expect: true},
		{description: "null never eq", pred: Predicate{Op: Eq, Value: scalar.Value{}}, value: scalar.Value{}, expect: false},
		{description: "null never ne", pred: Predicate{Op: Ne, Value: scalar.IntValue(1)}, value: scalar.Value{}, expect: false},
		{description: "null never range", pred: Predicate{Op: Lt, Value: scalar.IntValue(1)}, value: scalar.Value{}, expect: false},
	}
	for _, testCase := range testCases {
		assert.Equal(t, testCase.expect, testCase.pred.Match(testCase.value), testCase.description)
	}
}

func TestInSetDedupes(t *testing.T) {
	ctrl := resource.NewController(resource.Config{})
	set, err := NewInSet(ctrl, []scalar.Value{scalar.IntValue(100), scalar.IntValue(200), scalar.IntValue(100), scalar.FloatValue(200), {}})
	require.NoError(t, err)
	assert.Equal(t, 2, set.Len())
	assert.True(t, set.Contains(scalar.IntValue(200)))
	assert.False(t, set.Contains(scalar.IntValue(300)))
	assert.False(t, set.Contains(scalar.Value{}))
	assert.Greater(t, ctrl.Used(), int64(0))
	set.Release()
	set.Release()
	assert.Equal(t, int64(0), ctrl.Used())
}

func TestInSetReleasesOnFailure(t *testing.T) {
	ctrl := resource.NewController(resource.Config{MemoryLimitBytes: 100})
	values := make([]scalar.Value, 0, 10)
	for i := 0; i < 10; i++ {
		values = append(values, scalar.IntValue(int64(i)))
	}
	_, err := NewInSet(ctrl, values)
	require.Error(t, err)
	assert.True(t, errors.Is(err, vecerr.ErrResource))
	assert.Equal(t, int64(0), ctrl.Used())
}

func TestCandidates(t *testing.T) {
	x := New(1)
	x.Add(1, 0, scalar.TextValue("a"))
	x.Add(1, 0, scalar.TextValue("b"))
	x.Add(2, 0, scalar.TextValue("b"))
	x.Add(3, 0, scalar.TextValue("c"))
	x.Add(3, 0, scalar.Value{})

	eq := Filter{{Target: Partition, Column: 0, Op: Eq, Value: scalar.TextValue("b")}}
	candidates := x.Candidates(eq)
	assert.Equal(t, []uint32{1, 2}, candidates.ToArray())
	assert.Equal(t, Evaluate, Decide(candidates, 1))
	assert.Equal(t, Skip, Decide(candidates, 3))

	x.Remove(2, 0, scalar.TextValue("b"))
	assert.Equal(t, []uint32{1}, x.Candidates(eq).ToArray())

	ctrl := resource.NewController(resource.Config{})
	set, err := NewInSet(ctrl, []scalar.Value{scalar.TextValue("a"), scalar.TextValue("c"), scalar.TextValue("a")})
	require.NoError(t, err)
	in := Filter{{Target: Partition, Column: 0, Op: In, Set: set}}
	assert.Equal(t, []uint32{1, 3}, x.Candidates(in).ToArray())
	in.Release()

	assert.Nil(t, x.Candidates(Filter{{Target: Metadata, Column: 0, Op: Eq, Value: scalar.IntValue(1)}}))
	assert.Equal(t, Evaluate, Decide(nil, 42))

	x.DropChunk(1)
	assert.True(t, x.Candidates(eq).IsEmpty())
	assert.True(t, x.Candidates(Filter{{Target: Partition, Column: 0, Op: Eq, Value: scalar.Value{}}}).IsEmpty())
}
