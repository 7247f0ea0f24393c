package vector

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/viant/vec0/vecerr"
)

// ParseJSON parses a JSON array such as "[1, 2.5, -3]" into a vector of type t.
// Int8 elements must be integers in [-128, 127] and bit elements 0 or 1.
func ParseJSON(t ElementType, text string) (Vector, error) {
	s := strings.TrimSpace(text)
	if !strings.HasPrefix(s, "[") {
		return Vector{}, fmt.Errorf("vector text must be a JSON array")
	}
	var raw []json.RawMessage
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return Vector{}, fmt.Errorf("invalid JSON vector: %w", err)
	}
	values := make([]float64, len(raw))
	for i, r := range raw {
		f, err := jsonNumber(r)
		if err != nil {
			return Vector{}, fmt.Errorf("invalid JSON vector: element %d: %w", i, err)
		}
		values[i] = f
	}
	if len(values) == 0 {
		return Vector{}, fmt.Errorf("vector must have at least one element")
	}
	switch t {
	case Float32:
		out := make([]float32, len(values))
		for i, f := range values {
			out[i] = float32(f)
		}
		return NewFloat32(out), nil
	case Int8:
		out := make([]int8, len(values))
		for i, f := range values {
			if f != math.Trunc(f) || f < math.MinInt8 || f > math.MaxInt8 {
				return Vector{}, fmt.Errorf("int8 element %d (%v) must be an integer in [-128, 127]", i, f)
			}
			out[i] = int8(f)
		}
		return NewInt8(out, 1, 0), nil
	case Bit:
		bits := make([]byte, Bit.SlabSize(len(values)))
		for i, f := range values {
			switch f {
			case 0:
			case 1:
				bits[i/8] |= 1 << (uint(i) % 8)
			default:
				return Vector{}, fmt.Errorf("bit element %d (%v) must be 0 or 1", i, f)
			}
		}
		return NewBit(bits, len(values)), nil
	}
	return Vector{}, fmt.Errorf("unsupported element type %v", t)
}

// jsonNumber parses one array element. null, strings, booleans and nested
// values are not numbers.
func jsonNumber(r json.RawMessage) (float64, error) {
	text := strings.TrimSpace(string(r))
	if text == "" || (text[0] != '-' && (text[0] < '0' || text[0] > '9')) {
		return 0, fmt.Errorf("%s is not a number", text)
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, fmt.Errorf("%s is not a representable number", text)
	}
	return f, nil
}

// JSON returns the JSON array text of v. Float32 elements use the shortest
// representation that parses back to the same bits.
func (v Vector) JSON() string {
	var sb strings.Builder
	sb.WriteByte('[')
	switch v.Type {
	case Float32:
		for i, f := range v.Float32 {
			if i > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString(FormatFloat32(f))
		}
	case Int8:
		for i, q := range v.Int8 {
			if i > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString(strconv.Itoa(int(q)))
		}
	case Bit:
		for i := 0; i < v.Dims; i++ {
			if i > 0 {
				sb.WriteByte(',')
			}
			if v.Bits[i/8]&(1<<(uint(i)%8)) != 0 {
				sb.WriteByte('1')
			} else {
				sb.WriteByte('0')
			}
		}
	}
	sb.WriteByte(']')
	return sb.String()
}

// FormatFloat32 formats f with the shortest float32 round-trip representation.
func FormatFloat32(f float32) string {
	return strconv.FormatFloat(float64(f), 'g', -1, 32)
}

// Parse converts a host value into a vector of type t. A blob must be in the
// canonical encoding of t; a string must be a JSON array. When dims is
// positive the result must hold exactly dims elements.
func Parse(t ElementType, dims int, value any) (Vector, error) {
	var (
		v   Vector
		err error
	)
	switch actual := value.(type) {
	case nil:
		return Vector{}, vecerr.ErrNullVector
	case []byte:
		if dims <= 0 {
			v, err = Decode(t, actual)
			break
		}
		if v, err = DecodeDims(t, dims, actual); err != nil {
			if other, derr := Decode(t, actual); derr == nil {
				return Vector{}, &vecerr.DimensionMismatchError{Expected: dims, Actual: other.Dims}
			}
		}
	case string:
		v, err = ParseJSON(t, actual)
	default:
		return Vector{}, fmt.Errorf("unsupported vector value type %T, want BLOB or JSON text", value)
	}
	if err != nil {
		return Vector{}, err
	}
	if dims > 0 && v.Dims != dims {
		return Vector{}, &vecerr.DimensionMismatchError{Expected: dims, Actual: v.Dims}
	}
	if err = v.Validate(); err != nil {
		return Vector{}, err
	}
	return v, nil
}
