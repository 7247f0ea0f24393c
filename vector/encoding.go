package vector

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Vector is a decoded vector value. Only the field matching Type is populated.
type Vector struct {
	Type    ElementType
	Dims    int
	Float32 []float32
	Int8    []int8
	Bits    []byte
	// Scale and Offset dequantize Int8 elements.
	Scale  float32
	Offset float32
}

// NewFloat32 wraps values as a float32 vector.
func NewFloat32(values []float32) Vector {
	return Vector{Type: Float32, Dims: len(values), Float32: values}
}

// NewInt8 wraps quantized values with their dequantization parameters.
func NewInt8(values []int8, scale, offset float32) Vector {
	return Vector{Type: Int8, Dims: len(values), Int8: values, Scale: scale, Offset: offset}
}

// NewBit wraps packed bits holding dims elements.
func NewBit(bits []byte, dims int) Vector {
	return Vector{Type: Bit, Dims: dims, Bits: bits}
}

// EncodeEmbedding encodes float32 values as a little-endian IEEE 754 blob
// without a length prefix; the length is derived from the blob size on decode.
func EncodeEmbedding(vec []float32) ([]byte, error) {
	if len(vec) == 0 {
		return nil, nil
	}
	b := make([]byte, len(vec)*4)
	PutFloat32s(b, vec)
	return b, nil
}

// DecodeEmbedding decodes a blob produced by EncodeEmbedding.
func DecodeEmbedding(b []byte) ([]float32, error) {
	if len(b) == 0 {
		return nil, nil
	}
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("invalid float32 blob length %d (not multiple of 4)", len(b))
	}
	vec := make([]float32, len(b)/4)
	Float32sInto(vec, b)
	return vec, nil
}

// PutFloat32s writes vec into dst, which must hold len(vec)*4 bytes.
func PutFloat32s(dst []byte, vec []float32) {
	for i, v := range vec {
		binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(v))
	}
}

// Float32sInto decodes len(dst) float32 values from src.
func Float32sInto(dst []float32, src []byte) {
	for i := range dst {
		dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(src[i*4:]))
	}
}

// Encode returns the canonical blob encoding.
func (v Vector) Encode() []byte {
	switch v.Type {
	case Float32:
		b := make([]byte, len(v.Float32)*4)
		PutFloat32s(b, v.Float32)
		return b
	case Int8:
		b := make([]byte, len(v.Int8)+Int8HeaderSize)
		for i, q := range v.Int8 {
			b[i] = byte(q)
		}
		binary.LittleEndian.PutUint32(b[len(v.Int8):], math.Float32bits(v.Scale))
		binary.LittleEndian.PutUint32(b[len(v.Int8)+4:], math.Float32bits(v.Offset))
		return b
	case Bit:
		return append([]byte(nil), v.Bits...)
	}
	return nil
}

// Payload returns the slab bytes of the vector, i.e. the encoding without
// the int8 header.
func (v Vector) Payload() []byte {
	if v.Type == Int8 {
		b := make([]byte, len(v.Int8))
		for i, q := range v.Int8 {
			b[i] = byte(q)
		}
		return b
	}
	return v.Encode()
}

// Decode decodes a canonical blob of type t. Dimensions are derived from the
// blob size; int8 blobs must carry the scale/offset header.
func Decode(t ElementType, blob []byte) (Vector, error) {
	switch t {
	case Float32:
		if len(blob) == 0 || len(blob)%4 != 0 {
			return Vector{}, fmt.Errorf("invalid float32 vector blob length %d, must be a non-zero multiple of 4", len(blob))
		}
		return DecodeDims(t, len(blob)/4, blob)
	case Int8:
		if len(blob) <= Int8HeaderSize {
			return Vector{}, fmt.Errorf("invalid int8 vector blob length %d, must exceed the %d byte header", len(blob), Int8HeaderSize)
		}
		return DecodeDims(t, len(blob)-Int8HeaderSize, blob)
	case Bit:
		if len(blob) == 0 {
			return Vector{}, fmt.Errorf("invalid bit vector blob length 0")
		}
		return DecodeDims(t, len(blob)*8, blob)
	}
	return Vector{}, fmt.Errorf("unsupported element type %v", t)
}

// DecodeDims decodes a blob of type t holding exactly dims elements. For int8
// a blob without the header is accepted and dequantizes with scale 1, offset 0.
func DecodeDims(t ElementType, dims int, blob []byte) (Vector, error) {
	switch t {
	case Float32:
		if len(blob) != dims*4 {
			return Vector{}, sizeError(t, dims, len(blob))
		}
		values := make([]float32, dims)
		Float32sInto(values, blob)
		return NewFloat32(values), nil
	case Int8:
		scale, offset := float32(1), float32(0)
		switch len(blob) {
		case dims:
		case dims + Int8HeaderSize:
			scale = math.Float32frombits(binary.LittleEndian.Uint32(blob[dims:]))
			offset = math.Float32frombits(binary.LittleEndian.Uint32(blob[dims+4:]))
		default:
			return Vector{}, sizeError(t, dims, len(blob))
		}
		values := make([]int8, dims)
		for i := range values {
			values[i] = int8(blob[i])
		}
		return NewInt8(values, scale, offset), nil
	case Bit:
		if len(blob) != t.SlabSize(dims) {
			return Vector{}, sizeError(t, dims, len(blob))
		}
		return NewBit(append([]byte(nil), blob...), dims), nil
	}
	return Vector{}, fmt.Errorf("unsupported element type %v", t)
}

// SizeError is returned when a blob length does not match the expected
// encoding size for Expected elements.
type SizeError struct {
	Type     ElementType
	Expected int
	Bytes    int
}

func (e *SizeError) Error() string {
	return fmt.Sprintf("%v vector blob of %d bytes does not hold %d elements (want %d bytes)",
		e.Type, e.Bytes, e.Expected, e.Type.EncodedSize(e.Expected))
}

func sizeError(t ElementType, dims, n int) error {
	return &SizeError{Type: t, Expected: dims, Bytes: n}
}

// Float32s returns the vector as float32 values: int8 elements are
// dequantized and bits become 0 or 1.
func (v Vector) Float32s() []float32 {
	out := make([]float32, v.Dims)
	v.Dequantize(out)
	return out
}

// Dequantize writes the float32 form of v into dst (len(dst) >= v.Dims).
func (v Vector) Dequantize(dst []float32) {
	switch v.Type {
	case Float32:
		copy(dst, v.Float32)
	case Int8:
		DequantizeInt8(dst, v.Int8, v.Scale, v.Offset)
	case Bit:
		for i := 0; i < v.Dims; i++ {
			if v.Bits[i/8]&(1<<(uint(i)%8)) != 0 {
				dst[i] = 1
			} else {
				dst[i] = 0
			}
		}
	}
}

// DequantizeInt8 maps quantized values to float32: q*scale + offset.
func DequantizeInt8(dst []float32, src []int8, scale, offset float32) {
	for i, q := range src {
		dst[i] = float32(q)*scale + offset
	}
}

// Validate rejects NaN and infinite elements.
func (v Vector) Validate() error {
	if v.Dims <= 0 {
		return fmt.Errorf("vector must have at least one element")
	}
	switch v.Type {
	case Float32:
		for i, f := range v.Float32 {
			if math.IsNaN(float64(f)) || math.IsInf(float64(f), 0) {
				return fmt.Errorf("element %d is not a finite number", i)
			}
		}
	case Int8:
		for _, f := range []float32{v.Scale, v.Offset} {
			if math.IsNaN(float64(f)) || math.IsInf(float64(f), 0) {
				return fmt.Errorf("int8 scale/offset must be finite")
			}
		}
	}
	return nil
}
