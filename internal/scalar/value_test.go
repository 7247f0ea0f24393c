package scalar

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompare(t *testing.T) {
	var testCases = []struct {
		description string
		a, b        Value
		expect      int
		comparable  bool
	}{
		{description: "ints", a: IntValue(1), b: IntValue(2), expect: -1, comparable: true},
		{description: "int float equal", a: IntValue(2), b: FloatValue(2), expect: 0, comparable: true},
		{description: "float int greater", a: FloatValue(2.5), b: IntValue(2), expect: 1, comparable: true},
		{description: "text", a: TextValue("b"), b: TextValue("a"), expect: 1, comparable: true},
		{description: "number before text", a: IntValue(100), b: TextValue("1"), expect: -1, comparable: true},
		{description: "null left", a: Value{}, b: IntValue(1)},
		{description: "null both", a: Value{}, b: Value{}},
	}
	for _, testCase := range testCases {
		got, ok := Compare(testCase.a, testCase.b)
		assert.Equal(t, testCase.comparable, ok, testCase.description)
		if ok {
			assert.Equal(t, testCase.expect, got, testCase.description)
		}
	}
	assert.False(t, Equal(Value{}, Value{}))
}

func TestKey(t *testing.T) {
	assert.Equal(t, IntValue(3).Key(), FloatValue(3).Key())
	assert.NotEqual(t, IntValue(3).Key(), TextValue("3").Key())
	assert.NotEqual(t, FloatValue(3.5).Key(), FloatValue(3).Key())
}

func TestDriverRoundTrip(t *testing.T) {
	for _, x := range []any{nil, int64(7), 1.25, "abc", []byte{1, 2}} {
		v, err := FromDriver(x)
		require.NoError(t, err)
		assert.Equal(t, x, v.Driver())
	}
	v, err := FromDriver(true)
	require.NoError(t, err)
	assert.Equal(t, IntValue(1), v)
	_, err = FromDriver(struct{}{})
	assert.Error(t, err)
}
