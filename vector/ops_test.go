package vector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddSub(t *testing.T) {
	a := NewFloat32([]float32{1, 2})
	b := NewFloat32([]float32{0.5, -1})
	sum, err := Add(a, b)
	require.NoError(t, err)
	assert.Equal(t, []float32{1.5, 1}, sum.Float32)
	diff, err := Sub(a, b)
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, 3}, diff.Float32)

	_, err = Add(a, NewFloat32([]float32{1}))
	assert.Error(t, err)
	_, err = Add(a, NewInt8([]int8{1, 2}, 1, 0))
	assert.Error(t, err)
	_, err = Add(NewBit([]byte{1}, 8), NewBit([]byte{1}, 8))
	assert.Error(t, err)

	q, err := Add(NewInt8([]int8{100, -100}, 1, 0), NewInt8([]int8{100, -100}, 1, 0))
	require.NoError(t, err)
	assert.Equal(t, []int8{127, -128}, q.Int8)
}

func TestNormalize(t *testing.T) {
	n, err := Normalize(NewFloat32([]float32{3, 4}))
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float32{0.6, 0.8}, n.Float32, 1e-6)

	zero, err := Normalize(NewFloat32([]float32{0, 0}))
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 0}, zero.Float32)
}

func TestSlice(t *testing.T) {
	v := NewFloat32([]float32{1, 2, 3, 4})
	s, err := Slice(v, 1, 3)
	require.NoError(t, err)
	assert.Equal(t, []float32{2, 3}, s.Float32)

	for _, bounds := range [][2]int{{-1, 2}, {3, 1}, {2, 2}, {0, 5}} {
		_, err := Slice(v, bounds[0], bounds[1])
		assert.Error(t, err, bounds)
	}

	bits := NewBit([]byte{0x0f, 0xf0}, 16)
	s, err = Slice(bits, 8, 16)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xf0}, s.Bits)
	_, err = Slice(bits, 1, 8)
	assert.EqualError(t, err, "start index must be divisible by 8")
	_, err = Slice(bits, 0, 7)
	assert.EqualError(t, err, "end index must be divisible by 8")
}

func TestQuantize(t *testing.T) {
	b, err := QuantizeBinary(NewFloat32([]float32{1, -1, 0, 2, -3, 4, 0.1, -0.1, 5}))
	require.NoError(t, err)
	assert.Equal(t, 9, b.Dims)
	assert.Equal(t, []byte{0x69, 0x01}, b.Bits)

	q, err := QuantizeInt8(NewFloat32([]float32{-1, 0, 1}), "unit")
	require.NoError(t, err)
	assert.Equal(t, int8(-128), q.Int8[0])
	assert.Equal(t, int8(127), q.Int8[2])
	assert.InDeltaSlice(t, []float32{-1, 0, 1}, q.Float32s(), 0.01)

	m, err := QuantizeInt8(NewFloat32([]float32{10, 20, 30}), "minmax")
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float32{10, 20, 30}, m.Float32s(), 0.1)

	_, err = QuantizeInt8(NewFloat32([]float32{1}), "cubic")
	assert.Error(t, err)
}
