package vector

import (
	"fmt"
	"math"
	"strings"
)

// Add returns a + b element-wise.
func Add(a, b Vector) (Vector, error) {
	return combine("add", a, b, func(x, y float32) float32 { return x + y }, func(x, y int) int { return x + y })
}

// Sub returns a - b element-wise.
func Sub(a, b Vector) (Vector, error) {
	return combine("subtract", a, b, func(x, y float32) float32 { return x - y }, func(x, y int) int { return x - y })
}

func combine(op string, a, b Vector, f func(x, y float32) float32, q func(x, y int) int) (Vector, error) {
	if a.Type != b.Type {
		return Vector{}, fmt.Errorf("cannot %s %v and %v vectors", op, a.Type, b.Type)
	}
	if a.Dims != b.Dims {
		return Vector{}, fmt.Errorf("cannot %s vectors of %d and %d dimensions", op, a.Dims, b.Dims)
	}
	switch a.Type {
	case Float32:
		out := make([]float32, a.Dims)
		for i := range out {
			out[i] = f(a.Float32[i], b.Float32[i])
		}
		return NewFloat32(out), nil
	case Int8:
		if a.Scale != b.Scale || a.Offset != b.Offset {
			return Vector{}, fmt.Errorf("cannot %s int8 vectors with different quantization", op)
		}
		out := make([]int8, a.Dims)
		for i := range out {
			out[i] = clampInt8(q(int(a.Int8[i]), int(b.Int8[i])))
		}
		return NewInt8(out, a.Scale, a.Offset), nil
	}
	return Vector{}, fmt.Errorf("cannot %s %v vectors", op, a.Type)
}

// Normalize scales a float32 vector to unit L2 norm. A zero vector is
// returned unchanged.
func Normalize(v Vector) (Vector, error) {
	if v.Type != Float32 {
		return Vector{}, fmt.Errorf("only float32 vectors can be normalized, got %v", v.Type)
	}
	var sum float64
	for _, f := range v.Float32 {
		sum += float64(f) * float64(f)
	}
	out := make([]float32, v.Dims)
	if sum == 0 {
		return NewFloat32(out), nil
	}
	norm := math.Sqrt(sum)
	for i, f := range v.Float32 {
		out[i] = float32(float64(f) / norm)
	}
	return NewFloat32(out), nil
}

// Slice returns elements [start, end). Bit vectors require byte-aligned bounds.
func Slice(v Vector, start, end int) (Vector, error) {
	switch {
	case start < 0:
		return Vector{}, fmt.Errorf("slice start index must be a positive number")
	case end < 0:
		return Vector{}, fmt.Errorf("slice end index must be a positive number")
	case start > end:
		return Vector{}, fmt.Errorf("slice start index is greater than end index")
	case start == end:
		return Vector{}, fmt.Errorf("slice start index is equal to the end index, vectors must have non-zero length")
	case end > v.Dims:
		return Vector{}, fmt.Errorf("slice end index is greater than the number of dimensions")
	}
	switch v.Type {
	case Float32:
		return NewFloat32(append([]float32(nil), v.Float32[start:end]...)), nil
	case Int8:
		return NewInt8(append([]int8(nil), v.Int8[start:end]...), v.Scale, v.Offset), nil
	case Bit:
		if start%8 != 0 {
			return Vector{}, fmt.Errorf("start index must be divisible by 8")
		}
		if end%8 != 0 {
			return Vector{}, fmt.Errorf("end index must be divisible by 8")
		}
		return NewBit(append([]byte(nil), v.Bits[start/8:end/8]...), end-start), nil
	}
	return Vector{}, fmt.Errorf("unsupported element type %v", v.Type)
}

// QuantizeBinary maps every positive element to 1 and everything else to 0.
func QuantizeBinary(v Vector) (Vector, error) {
	if v.Type == Bit {
		return Vector{}, fmt.Errorf("vector is already a bit vector")
	}
	values := v.Float32s()
	bits := make([]byte, Bit.SlabSize(v.Dims))
	for i, f := range values {
		if f > 0 {
			bits[i/8] |= 1 << (uint(i) % 8)
		}
	}
	return NewBit(bits, v.Dims), nil
}

// QuantizeInt8 quantizes a float32 vector to int8. Mode "unit" assumes
// elements in [-1, 1]; mode "minmax" maps the vector's own range.
func QuantizeInt8(v Vector, mode string) (Vector, error) {
	if v.Type != Float32 {
		return Vector{}, fmt.Errorf("only float32 vectors can be quantized to int8, got %v", v.Type)
	}
	var lo, hi float32
	switch strings.ToLower(mode) {
	case "unit", "":
		lo, hi = -1, 1
	case "minmax":
		lo, hi = v.Float32[0], v.Float32[0]
		for _, f := range v.Float32[1:] {
			lo = min(lo, f)
			hi = max(hi, f)
		}
	default:
		return Vector{}, fmt.Errorf("unknown int8 quantization mode %q, want unit or minmax", mode)
	}
	scale := (hi - lo) / 255
	if scale == 0 {
		scale = 1
	}
	offset := lo + 128*scale
	out := make([]int8, v.Dims)
	for i, f := range v.Float32 {
		out[i] = clampInt8(int(math.Round(float64((f - offset) / scale))))
	}
	return NewInt8(out, scale, offset), nil
}

func clampInt8(x int) int8 {
	if x > math.MaxInt8 {
		return math.MaxInt8
	}
	if x < math.MinInt8 {
		return math.MinInt8
	}
	return int8(x)
}
