package vector

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONRoundTripIsByteIdentical(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	values := []float32{0, -0.0, 1, 0.1, 1e-38, 3.4028235e38, float32(math.Pi)}
	for i := 0; i < 200; i++ {
		values = append(values, math.Float32frombits(rng.Uint32()&0x7f7fffff))
	}
	v := NewFloat32(values)
	text := v.JSON()
	parsed, err := ParseJSON(Float32, text)
	require.NoError(t, err)
	assert.Equal(t, v.Encode(), parsed.Encode())
	assert.Equal(t, text, parsed.JSON())
}

func TestJSONFormatting(t *testing.T) {
	assert.Equal(t, "[1,0.5,-2]", NewFloat32([]float32{1, 0.5, -2}).JSON())
	assert.Equal(t, "[0.1]", NewFloat32([]float32{0.1}).JSON())
	assert.Equal(t, "[-1,0,3]", NewInt8([]int8{-1, 0, 3}, 0.25, 0).JSON())
}

func TestParseJSONRejectsNonNumericElements(t *testing.T) {
	var testCases = []struct {
		description string
		text        string
		expect      string
	}{
		{description: "null", text: `[1, null, 3]`, expect: "element 1: null is not a number"},
		{description: "string", text: `["1"]`, expect: `element 0: "1" is not a number`},
		{description: "bool", text: `[true]`, expect: "element 0: true is not a number"},
		{description: "nested", text: `[[1]]`, expect: "element 0: [1] is not a number"},
		{description: "object", text: `[{}]`, expect: "element 0: {} is not a number"},
		{description: "out of range", text: `[1e400]`, expect: "element 0: 1e400 is not a representable number"},
		{description: "not an array", text: `{"a": 1}`, expect: "must be a JSON array"},
		{description: "malformed", text: `[1,]`, expect: "invalid JSON vector"},
		{description: "empty", text: `[]`, expect: "at least one element"},
	}
	for _, testCase := range testCases {
		for _, elemType := range []ElementType{Float32, Int8, Bit} {
			_, err := ParseJSON(elemType, testCase.text)
			require.Error(t, err, testCase.description)
			assert.Contains(t, err.Error(), testCase.expect, testCase.description)
		}
	}

	v, err := ParseJSON(Float32, ` [ -0.5 , 2e1 ] `)
	require.NoError(t, err)
	assert.Equal(t, []float32{-0.5, 20}, v.Float32)
}
