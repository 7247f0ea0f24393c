package schema

import (
	"fmt"
	"math"

	"github.com/viant/vec0/internal/scalar"
	"github.com/viant/vec0/vecerr"
)

// Coerce converts v to the declared type of column c. NULL passes through.
func (c *Column) Coerce(v scalar.Value) (scalar.Value, error) {
	if v.IsNull() {
		return v, nil
	}
	switch c.Type {
	case TypeAny:
		return v, nil
	case TypeInteger:
		switch v.Kind {
		case scalar.Integer:
			return v, nil
		case scalar.Float:
			if v.Float == math.Trunc(v.Float) && math.Abs(v.Float) < 1<<62 {
				return scalar.IntValue(int64(v.Float)), nil
			}
		}
	case TypeFloat:
		switch v.Kind {
		case scalar.Float:
			return v, nil
		case scalar.Integer:
			return scalar.FloatValue(float64(v.Int)), nil
		}
	case TypeText:
		if v.Kind == scalar.Text {
			return v, nil
		}
	case TypeBoolean:
		switch {
		case v.Kind == scalar.Integer && (v.Int == 0 || v.Int == 1):
			return v, nil
		case v.Kind == scalar.Float && (v.Float == 0 || v.Float == 1):
			return scalar.IntValue(int64(v.Float)), nil
		}
	case TypeBlob:
		if v.Kind == scalar.Blob {
			return v, nil
		}
	}
	return scalar.Value{}, vecerr.Validation("coerce", fmt.Errorf("column %q expects %v, got %v %s", c.Name, c.Type, v.Kind, v))
}
