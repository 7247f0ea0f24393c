package resource

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viant/vec0/vecerr"
)

func TestControllerLimit(t *testing.T) {
	c := NewController(Config{MemoryLimitBytes: 100})
	require.NoError(t, c.Reserve("a", 60))
	err := c.Reserve("b", 50)
	require.Error(t, err)
	assert.True(t, errors.Is(err, vecerr.ErrResource))
	assert.True(t, errors.Is(err, vecerr.ErrBudgetExceeded))
	assert.Equal(t, int64(60), c.Used())
	c.Release(60)
	assert.Equal(t, int64(0), c.Used())
	require.NoError(t, c.Reserve("b", 100))
}

func TestControllerUnlimited(t *testing.T) {
	c := NewController(Config{})
	require.NoError(t, c.Reserve("a", 1<<40))
	assert.Equal(t, int64(1<<40), c.Used())
	var nilCtrl *Controller
	require.NoError(t, nilCtrl.Reserve("a", 10))
	assert.Equal(t, int64(0), nilCtrl.Used())
}

func TestLease(t *testing.T) {
	c := NewController(Config{MemoryLimitBytes: 64})
	l := c.NewLease("query")
	require.NoError(t, l.Grow(32))
	require.NoError(t, l.Grow(16))
	assert.Error(t, l.Grow(32))
	assert.Equal(t, int64(48), l.Bytes())
	l.Release()
	l.Release()
	assert.Equal(t, int64(0), c.Used())
}
