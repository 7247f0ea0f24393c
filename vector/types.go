package vector

import (
	"fmt"
	"strings"
)

// ElementType identifies a vector element encoding.
type ElementType uint8

const (
	Float32 ElementType = iota + 1
	Int8
	Bit
)

// Int8HeaderSize is the size of the scale/offset header appended to int8 blobs.
const Int8HeaderSize = 8

func (t ElementType) String() string {
	switch t {
	case Float32:
		return "float32"
	case Int8:
		return "int8"
	case Bit:
		return "bit"
	}
	return fmt.Sprintf("ElementType(%d)", uint8(t))
}

// ParseElementType resolves a declared element type name.
func ParseElementType(name string) (ElementType, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "float", "f32", "float32":
		return Float32, nil
	case "int8", "i8":
		return Int8, nil
	case "bit":
		return Bit, nil
	}
	return 0, fmt.Errorf("unknown vector element type %q", name)
}

// SlabSize returns the number of bytes one row occupies in a chunk slab.
// Int8 scale/offset pairs are stored outside of the slab.
func (t ElementType) SlabSize(dims int) int {
	switch t {
	case Float32:
		return dims * 4
	case Int8:
		return dims
	case Bit:
		return (dims + 7) / 8
	}
	return 0
}

// EncodedSize returns the length of the canonical blob encoding.
func (t ElementType) EncodedSize(dims int) int {
	if t == Int8 {
		return dims + Int8HeaderSize
	}
	return t.SlabSize(dims)
}
