package engine

import (
	"database/sql"
	"database/sql/driver"
	"fmt"
	"strings"

	"github.com/viant/vec0/distance"
	"github.com/viant/vec0/vecerr"
	"github.com/viant/vec0/vector"
	sqlite "modernc.org/sqlite"
)

// Version is reported by vec_version().
const Version = "v0.1.0"

type scalarFunc struct {
	name string
	// fixed is the number of arguments before the optional element type.
	fixed int
	fn    func(t vector.ElementType, typed bool, args []driver.Value) (driver.Value, error)
}

var functions = []scalarFunc{
	{name: "vec_version", fixed: 0, fn: func(vector.ElementType, bool, []driver.Value) (driver.Value, error) {
		return Version, nil
	}},
	{name: "vec_f32", fixed: 1, fn: constructor(vector.Float32)},
	{name: "vec_int8", fixed: 1, fn: constructor(vector.Int8)},
	{name: "vec_bit", fixed: 1, fn: constructor(vector.Bit)},
	{name: "vec_length", fixed: 1, fn: unary(func(v vector.Vector) (driver.Value, error) {
		return int64(v.Dims), nil
	})},
	{name: "vec_type", fixed: 1, fn: unary(func(v vector.Vector) (driver.Value, error) {
		return v.Type.String(), nil
	})},
	{name: "vec_to_json", fixed: 1, fn: unary(func(v vector.Vector) (driver.Value, error) {
		return v.JSON(), nil
	})},
	{name: "vec_distance_l2", fixed: 2, fn: between(distance.L2)},
	{name: "vec_distance_l1", fixed: 2, fn: between(distance.L1)},
	{name: "vec_distance_cosine", fixed: 2, fn: between(distance.Cosine)},
	{name: "vec_distance_hamming", fixed: 2, fn: between(distance.Hamming)},
	{name: "vec_add", fixed: 2, fn: binary(vector.Add)},
	{name: "vec_sub", fixed: 2, fn: binary(vector.Sub)},
	{name: "vec_normalize", fixed: 1, fn: unary(func(v vector.Vector) (driver.Value, error) {
		out, err := vector.Normalize(v)
		if err != nil {
			return nil, err
		}
		return out.Encode(), nil
	})},
	{name: "vec_slice", fixed: 3, fn: vecSlice},
	{name: "vec_quantize_binary", fixed: 1, fn: unary(func(v vector.Vector) (driver.Value, error) {
		out, err := vector.QuantizeBinary(v)
		if err != nil {
			return nil, err
		}
		return out.Encode(), nil
	})},
	{name: "vec_quantize_int8", fixed: 2, fn: vecQuantizeInt8},
}

// RegisterVectorFunctions registers the vec_* scalar functions with the driver
// so they are available on new connections opened after this call.
// Note: existing open connections will not see new functions.
//
// Blob arguments are read as float32 unless a trailing element type argument
// ('float32', 'int8' or 'bit') is given, e.g. vec_length(v, 'bit'). A NULL
// argument is an error.
func RegisterVectorFunctions(_ *sql.DB) error {
	for _, f := range functions {
		// The driver rejects duplicate names; functions are process-wide so a repeat is a no-op.
		_ = sqlite.RegisterDeterministicScalarFunction(f.name, -1, f.impl)
	}
	return nil
}

func (f scalarFunc) impl(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	if len(args) != f.fixed && len(args) != f.fixed+1 {
		return nil, fmt.Errorf("vec0: %s: expected %d or %d arguments, got %d", f.name, f.fixed, f.fixed+1, len(args))
	}
	t, typed := vector.Float32, false
	if len(args) > f.fixed {
		name, ok := args[f.fixed].(string)
		if !ok {
			return nil, fmt.Errorf("vec0: %s: element type argument must be text, got %T", f.name, args[f.fixed])
		}
		var err error
		if t, err = vector.ParseElementType(name); err != nil {
			return nil, fmt.Errorf("vec0: %s: %w", f.name, err)
		}
		typed = true
		args = args[:f.fixed]
	}
	out, err := f.fn(t, typed, args)
	if err != nil {
		return nil, fmt.Errorf("vec0: %s: %w", f.name, err)
	}
	return out, nil
}

func vectorArg(t vector.ElementType, arg driver.Value) (vector.Vector, error) {
	switch actual := arg.(type) {
	case nil:
		return vector.Vector{}, vecerr.ErrNullVector
	case []byte:
		return vector.Decode(t, actual)
	case string:
		return vector.ParseJSON(t, actual)
	}
	return vector.Vector{}, fmt.Errorf("unsupported vector argument type %T, want BLOB or JSON text", arg)
}

func constructor(t vector.ElementType) func(vector.ElementType, bool, []driver.Value) (driver.Value, error) {
	return func(_ vector.ElementType, typed bool, args []driver.Value) (driver.Value, error) {
		if typed {
			return nil, fmt.Errorf("element type argument is not accepted")
		}
		v, err := vectorArg(t, args[0])
		if err != nil {
			return nil, err
		}
		if err = v.Validate(); err != nil {
			return nil, err
		}
		return v.Encode(), nil
	}
}

func unary(fn func(v vector.Vector) (driver.Value, error)) func(vector.ElementType, bool, []driver.Value) (driver.Value, error) {
	return func(t vector.ElementType, _ bool, args []driver.Value) (driver.Value, error) {
		v, err := vectorArg(t, args[0])
		if err != nil {
			return nil, err
		}
		return fn(v)
	}
}

func pair(t vector.ElementType, args []driver.Value) (vector.Vector, vector.Vector, error) {
	a, err := vectorArg(t, args[0])
	if err != nil {
		return vector.Vector{}, vector.Vector{}, fmt.Errorf("first vector: %w", err)
	}
	b, err := vectorArg(t, args[1])
	if err != nil {
		return vector.Vector{}, vector.Vector{}, fmt.Errorf("second vector: %w", err)
	}
	return a, b, nil
}

func between(m distance.Metric) func(vector.ElementType, bool, []driver.Value) (driver.Value, error) {
	return func(t vector.ElementType, typed bool, args []driver.Value) (driver.Value, error) {
		if m == distance.Hamming && !typed {
			t = vector.Bit
		}
		k, err := distance.Resolve(t, m)
		if err != nil {
			return nil, err
		}
		a, b, err := pair(t, args)
		if err != nil {
			return nil, err
		}
		return k.Between(a, b)
	}
}

func binary(fn func(a, b vector.Vector) (vector.Vector, error)) func(vector.ElementType, bool, []driver.Value) (driver.Value, error) {
	return func(t vector.ElementType, _ bool, args []driver.Value) (driver.Value, error) {
		a, b, err := pair(t, args)
		if err != nil {
			return nil, err
		}
		out, err := fn(a, b)
		if err != nil {
			return nil, err
		}
		return out.Encode(), nil
	}
}

func vecSlice(t vector.ElementType, _ bool, args []driver.Value) (driver.Value, error) {
	v, err := vectorArg(t, args[0])
	if err != nil {
		return nil, err
	}
	start, ok1 := args[1].(int64)
	end, ok2 := args[2].(int64)
	if !ok1 || !ok2 {
		return nil, fmt.Errorf("slice bounds must be integers, got %T and %T", args[1], args[2])
	}
	out, err := vector.Slice(v, int(start), int(end))
	if err != nil {
		return nil, err
	}
	return out.Encode(), nil
}

func vecQuantizeInt8(t vector.ElementType, _ bool, args []driver.Value) (driver.Value, error) {
	v, err := vectorArg(t, args[0])
	if err != nil {
		return nil, err
	}
	mode, ok := args[1].(string)
	if !ok {
		return nil, fmt.Errorf("quantization mode must be text, got %T", args[1])
	}
	out, err := vector.QuantizeInt8(v, strings.TrimSpace(mode))
	if err != nil {
		return nil, err
	}
	return out.Encode(), nil
}
