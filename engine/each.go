package engine

import (
	"fmt"
	"strings"

	"modernc.org/sqlite/vtab"

	"github.com/viant/vec0/vector"
)

// EachName is the table-valued function that yields one row per vector
// element:
//
//	SELECT rowid, value FROM vec_each('[1, 2, 3]');
//	SELECT rowid, value FROM vec_each(vec_int8('[1, -2]'), 'int8');
//
// rowid is the element index. Blob vectors are read as float32 unless the
// second argument names another element type.
const EachName = "vec_each"

const (
	eachValue = iota
	eachVector
	eachType
)

const (
	eachHasVector = 1 << iota
	eachHasType
)

func init() {
	if err := vtab.RegisterModule(nil, EachName, eachModule{}); err != nil && !strings.Contains(err.Error(), "already registered") {
		panic(err)
	}
}

type eachModule struct{}

func (m eachModule) Create(ctx vtab.Context, args []string) (vtab.Table, error) {
	return m.Connect(ctx, args)
}

func (eachModule) Connect(ctx vtab.Context, _ []string) (vtab.Table, error) {
	if err := ctx.Declare(`CREATE TABLE x(value, vector HIDDEN, type HIDDEN)`); err != nil {
		return nil, fmt.Errorf("vec0: %s: declare: %w", EachName, err)
	}
	return eachTable{}, nil
}

type eachTable struct{}

// BestIndex passes the vector as the first Filter argument and the element
// type, when given, as the second.
func (eachTable) BestIndex(info *vtab.IndexInfo) error {
	vec, typ := -1, -1
	for i, c := range info.Constraints {
		if c.Op != vtab.OpEQ {
			continue
		}
		switch c.Column {
		case eachVector:
			if !c.Usable {
				info.EstimatedCost = 1e18
				return nil
			}
			vec = i
		case eachType:
			if c.Usable {
				typ = i
			}
		}
	}
	if vec < 0 {
		info.EstimatedCost = 1e18
		return nil
	}
	info.IdxNum = eachHasVector
	info.Constraints[vec].ArgIndex, info.Constraints[vec].Omit = 0, true
	if typ >= 0 {
		info.IdxNum |= eachHasType
		info.Constraints[typ].ArgIndex, info.Constraints[typ].Omit = 1, true
	}
	info.EstimatedCost = 10
	info.EstimatedRows = 100
	return nil
}

func (eachTable) Open() (vtab.Cursor, error) { return &eachCursor{}, nil }
func (eachTable) Disconnect() error          { return nil }
func (eachTable) Destroy() error             { return nil }

type eachCursor struct {
	arg    vtab.Value
	kind   string
	pos    int
	values []vtab.Value
}

func (c *eachCursor) Filter(idxNum int, _ string, vals []vtab.Value) error {
	c.pos, c.values = 0, nil
	if idxNum&eachHasVector == 0 || len(vals) == 0 {
		return fmt.Errorf("vec0: %s: a vector argument is required", EachName)
	}
	t := vector.Float32
	if idxNum&eachHasType != 0 && len(vals) > 1 {
		name, ok := vals[1].(string)
		if !ok {
			return fmt.Errorf("vec0: %s: element type argument must be text, got %T", EachName, vals[1])
		}
		var err error
		if t, err = vector.ParseElementType(name); err != nil {
			return fmt.Errorf("vec0: %s: %w", EachName, err)
		}
	}
	v, err := vectorArg(t, vals[0])
	if err != nil {
		return fmt.Errorf("vec0: %s: %w", EachName, err)
	}
	c.arg, c.kind = vals[0], t.String()
	c.values = elements(v)
	return nil
}

func elements(v vector.Vector) []vtab.Value {
	out := make([]vtab.Value, v.Dims)
	switch v.Type {
	case vector.Float32:
		for i, f := range v.Float32 {
			out[i] = float64(f)
		}
	case vector.Int8:
		for i, q := range v.Int8 {
			out[i] = int64(q)
		}
	case vector.Bit:
		for i := range out {
			out[i] = int64(v.Bits[i/8] >> (uint(i) % 8) & 1)
		}
	}
	return out
}

func (c *eachCursor) Next() error {
	if c.pos < len(c.values) {
		c.pos++
	}
	return nil
}

func (c *eachCursor) Eof() bool { return c.pos >= len(c.values) }

func (c *eachCursor) Column(col int) (vtab.Value, error) {
	switch col {
	case eachValue:
		if c.pos >= len(c.values) {
			return nil, fmt.Errorf("vec0: %s: column read past the last element", EachName)
		}
		return c.values[c.pos], nil
	case eachVector:
		return c.arg, nil
	case eachType:
		return c.kind, nil
	}
	return nil, nil
}

func (c *eachCursor) Rowid() (int64, error) { return int64(c.pos), nil }

func (c *eachCursor) Close() error {
	c.values, c.arg = nil, nil
	return nil
}
