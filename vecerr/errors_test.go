package vecerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKinds(t *testing.T) {
	var testCases = []struct {
		description string
		err         error
		kind        Kind
		sentinel    error
	}{
		{description: "validation", err: Validationf("insert", "bad %s", "row"), kind: KindValidation, sentinel: ErrValidation},
		{description: "resource", err: Resource("filter", ErrBudgetExceeded), kind: KindResource, sentinel: ErrResource},
		{description: "consistency", err: Consistencyf("read", "slab too short"), kind: KindConsistency, sentinel: ErrConsistency},
	}
	for _, testCase := range testCases {
		assert.Equal(t, testCase.kind, KindOf(testCase.err), testCase.description)
		assert.True(t, errors.Is(testCase.err, testCase.sentinel), testCase.description)
		wrapped := fmt.Errorf("outer: %w", testCase.err)
		assert.True(t, errors.Is(wrapped, testCase.sentinel), testCase.description)
		assert.Equal(t, testCase.kind, KindOf(wrapped), testCase.description)
	}
	assert.False(t, errors.Is(Resource("x", ErrBudgetExceeded), ErrValidation))
	assert.Equal(t, Kind(0), KindOf(errors.New("plain")))
	assert.Nil(t, Validation("x", nil))
}

func TestDimensionMismatch(t *testing.T) {
	err := DimensionMismatch("insert", "embedding", 4, 3)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrValidation))
	var dm *DimensionMismatchError
	require.True(t, errors.As(err, &dm))
	assert.Equal(t, 4, dm.Expected)
	assert.Equal(t, 3, dm.Actual)
	assert.Equal(t, `vec0: insert: dimension mismatch for column "embedding": expected 4, got 3`, err.Error())
}

func TestSpecificSentinel(t *testing.T) {
	err := Resource("append", fmt.Errorf("reserve 4096 bytes: %w", ErrBudgetExceeded))
	assert.True(t, errors.Is(err, ErrBudgetExceeded))
	assert.Equal(t, "vec0: append: reserve 4096 bytes: memory budget exceeded", err.Error())
}
