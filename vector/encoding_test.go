package vector

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeEmbedding_RoundTrip(t *testing.T) {
	orig := []float32{0.0, 1.5, -2.25, 3.75, float32(math.Pi), math.SmallestNonzeroFloat32, -math.MaxFloat32}

	b, err := EncodeEmbedding(orig)
	if err != nil {
		t.Fatalf("EncodeEmbedding failed: %v", err)
	}
	if len(b) != len(orig)*4 {
		t.Fatalf("blob length = %d, want %d", len(b), len(orig)*4)
	}

	decoded, err := DecodeEmbedding(b)
	if err != nil {
		t.Fatalf("DecodeEmbedding failed: %v", err)
	}
	if len(decoded) != len(orig) {
		t.Fatalf("decoded length = %d, want %d", len(decoded), len(orig))
	}
	for i := range orig {
		if got, want := math.Float32bits(decoded[i]), math.Float32bits(orig[i]); got != want {
			t.Fatalf("decoded[%d] bits = %x, want %x", i, got, want)
		}
	}
}

func TestEncodeDecodeEmbedding_Empty(t *testing.T) {
	b, err := EncodeEmbedding(nil)
	if err != nil {
		t.Fatalf("EncodeEmbedding(nil) failed: %v", err)
	}
	if len(b) != 0 {
		t.Fatalf("expected empty blob for nil slice, got len=%d", len(b))
	}

	vec, err := DecodeEmbedding(nil)
	if err != nil {
		t.Fatalf("DecodeEmbedding(nil) failed: %v", err)
	}
	if len(vec) != 0 {
		t.Fatalf("expected empty slice for nil blob, got len=%d", len(vec))
	}
	if _, err := DecodeEmbedding([]byte{1, 2, 3}); err == nil {
		t.Fatalf("expected error for blob of 3 bytes")
	}
}

func TestFloat32LittleEndianLayout(t *testing.T) {
	b := NewFloat32([]float32{1, -2}).Encode()
	assert.Equal(t, []byte{0x00, 0x00, 0x80, 0x3f, 0x00, 0x00, 0x00, 0xc0}, b)
}

func TestInt8Encoding(t *testing.T) {
	v := NewInt8([]int8{-128, 0, 127}, 0.5, 2)
	b := v.Encode()
	require.Len(t, b, 3+Int8HeaderSize)
	assert.Equal(t, []byte{0x80, 0x00, 0x7f}, b[:3])
	assert.Equal(t, []byte{0x00, 0x00, 0x00, 0x3f, 0x00, 0x00, 0x00, 0x40}, b[3:])
	assert.Equal(t, []byte{0x80, 0x00, 0x7f}, v.Payload())

	decoded, err := Decode(Int8, b)
	require.NoError(t, err)
	assert.Equal(t, v, decoded)
	assert.Equal(t, []float32{-62, 2, 65.5}, decoded.Float32s())

	plain, err := DecodeDims(Int8, 3, []byte{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, float32(1), plain.Scale)
	assert.Equal(t, float32(0), plain.Offset)
}

func TestBitEncoding(t *testing.T) {
	v, err := ParseJSON(Bit, "[1,0,0,0,0,0,0,0,0,1,0,0,0,0,0,1]")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x82}, v.Encode())
	assert.Equal(t, 16, v.Dims)
	decoded, err := Decode(Bit, v.Encode())
	require.NoError(t, err)
	assert.Equal(t, v, decoded)
	assert.Equal(t, "[1,0,0,0,0,0,0,0,0,1,0,0,0,0,0,1]", decoded.JSON())
}

func TestParse(t *testing.T) {
	var testCases = []struct {
		description string
		elemType    ElementType
		dims        int
		value       any
		expect      []float32
		expectErr   bool
	}{
		{description: "float blob", elemType: Float32, dims: 2, value: NewFloat32([]float32{1, 2}).Encode(), expect: []float32{1, 2}},
		{description: "float json", elemType: Float32, dims: 3, value: "[1, 0.5, -3]", expect: []float32{1, 0.5, -3}},
		{description: "float wrong dims", elemType: Float32, dims: 3, value: "[1, 2]", expectErr: true},
		{description: "float blob wrong dims", elemType: Float32, dims: 3, value: NewFloat32([]float32{1, 2}).Encode(), expectErr: true},
		{description: "int8 blob into float", elemType: Float32, dims: 3, value: NewInt8([]int8{1, 2, 3}, 1, 0).Encode(), expectErr: true},
		{description: "float blob into int8", elemType: Int8, dims: 3, value: NewFloat32([]float32{1, 2, 3}).Encode(), expectErr: true},
		{description: "int8 json", elemType: Int8, dims: 2, value: "[-5, 7]", expect: []float32{-5, 7}},
		{description: "int8 json out of range", elemType: Int8, dims: 2, value: "[-5, 700]", expectErr: true},
		{description: "null", elemType: Float32, dims: 2, value: nil, expectErr: true},
		{description: "integer", elemType: Float32, dims: 2, value: int64(3), expectErr: true},
		{description: "not json", elemType: Float32, dims: 2, value: "1,2", expectErr: true},
		{description: "empty json", elemType: Float32, dims: 0, value: "[]", expectErr: true},
		{description: "nan", elemType: Float32, dims: 1, value: NewFloat32([]float32{float32(math.NaN())}).Encode(), expectErr: true},
	}
	for _, testCase := range testCases {
		v, err := Parse(testCase.elemType, testCase.dims, testCase.value)
		if testCase.expectErr {
			assert.Error(t, err, testCase.description)
			continue
		}
		require.NoError(t, err, testCase.description)
		assert.Equal(t, testCase.expect, v.Float32s(), testCase.description)
	}
}

func TestParseElementType(t *testing.T) {
	for name, want := range map[string]ElementType{"float": Float32, "F32": Float32, "float32": Float32, "int8": Int8, "i8": Int8, "bit": Bit} {
		got, err := ParseElementType(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}
	_, err := ParseElementType("float64")
	assert.Error(t, err)
	assert.Equal(t, 12, Float32.SlabSize(3))
	assert.Equal(t, 11, Int8.EncodedSize(3))
	assert.Equal(t, 2, Bit.SlabSize(9))
}
