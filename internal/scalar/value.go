// Package scalar holds typed values of partition, metadata and auxiliary
// columns.
package scalar

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind is the storage class of a Value.
type Kind uint8

const (
	Null Kind = iota
	Integer
	Float
	Text
	Blob
)

func (k Kind) String() string {
	switch k {
	case Null:
		return "null"
	case Integer:
		return "integer"
	case Float:
		return "float"
	case Text:
		return "text"
	case Blob:
		return "blob"
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Value is a tagged scalar.
type Value struct {
	Kind  Kind    `msgpack:"k"`
	Int   int64   `msgpack:"i,omitempty"`
	Float float64 `msgpack:"f,omitempty"`
	Str   string  `msgpack:"s,omitempty"`
	Bytes []byte  `msgpack:"b,omitempty"`
}

func IntValue(v int64) Value     { return Value{Kind: Integer, Int: v} }
func FloatValue(v float64) Value { return Value{Kind: Float, Float: v} }
func TextValue(v string) Value   { return Value{Kind: Text, Str: v} }
func BlobValue(v []byte) Value   { return Value{Kind: Blob, Bytes: v} }

// IsNull reports whether v is NULL.
func (v Value) IsNull() bool { return v.Kind == Null }

// FromDriver converts a database/sql driver value.
func FromDriver(x any) (Value, error) {
	switch actual := x.(type) {
	case nil:
		return Value{}, nil
	case int64:
		return IntValue(actual), nil
	case int:
		return IntValue(int64(actual)), nil
	case int32:
		return IntValue(int64(actual)), nil
	case bool:
		if actual {
			return IntValue(1), nil
		}
		return IntValue(0), nil
	case float64:
		return FloatValue(actual), nil
	case float32:
		return FloatValue(float64(actual)), nil
	case string:
		return TextValue(actual), nil
	case []byte:
		return BlobValue(append([]byte(nil), actual...)), nil
	}
	return Value{}, fmt.Errorf("unsupported value type %T", x)
}

// Driver returns v as a database/sql driver value.
func (v Value) Driver() any {
	switch v.Kind {
	case Integer:
		return v.Int
	case Float:
		return v.Float
	case Text:
		return v.Str
	case Blob:
		return v.Bytes
	}
	return nil
}

// Key returns a string that is equal for equal values, used for hashing.
// Integers and integral floats share a key.
func (v Value) Key() string {
	switch v.Kind {
	case Integer:
		return "n" + strconv.FormatInt(v.Int, 10)
	case Float:
		if v.Float == math.Trunc(v.Float) && math.Abs(v.Float) < 1<<63 {
			return "n" + strconv.FormatInt(int64(v.Float), 10)
		}
		return "n" + strconv.FormatFloat(v.Float, 'g', -1, 64)
	case Text:
		return "t" + v.Str
	case Blob:
		return "b" + string(v.Bytes)
	}
	return ""
}

func (v Value) String() string {
	switch v.Kind {
	case Integer:
		return strconv.FormatInt(v.Int, 10)
	case Float:
		return strconv.FormatFloat(v.Float, 'g', -1, 64)
	case Text:
		return strconv.Quote(v.Str)
	case Blob:
		return fmt.Sprintf("x'%x'", v.Bytes)
	}
	return "NULL"
}

// Compare orders two non-NULL values: numbers before text before blobs,
// numbers by value, text and blobs bytewise. The second result is false
// when either side is NULL.
func Compare(a, b Value) (int, bool) {
	if a.IsNull() || b.IsNull() {
		return 0, false
	}
	ra, rb := a.rank(), b.rank()
	if ra != rb {
		return cmpInt(ra, rb), true
	}
	switch ra {
	case 0:
		if a.Kind == Integer && b.Kind == Integer {
			return cmpInt(a.Int, b.Int), true
		}
		fa, fb := a.number(), b.number()
		switch {
		case fa < fb:
			return -1, true
		case fa > fb:
			return 1, true
		}
		return 0, true
	case 1:
		return strings.Compare(a.Str, b.Str), true
	}
	return strings.Compare(string(a.Bytes), string(b.Bytes)), true
}

// Equal reports whether two non-NULL values are equal. NULL equals nothing.
func Equal(a, b Value) bool {
	c, ok := Compare(a, b)
	return ok && c == 0
}

func (v Value) rank() int {
	switch v.Kind {
	case Integer, Float:
		return 0
	case Text:
		return 1
	}
	return 2
}

func (v Value) number() float64 {
	if v.Kind == Integer {
		return float64(v.Int)
	}
	return v.Float
}

func cmpInt[T int | int64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// Size estimates the memory held by v.
func (v Value) Size() int64 {
	return int64(32 + len(v.Str) + len(v.Bytes))
}
