// Package query plans vec0 queries from host constraints, builds the
// per-query state under scoped ownership and drives the cursor state machine.
package query

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/viant/vec0/internal/metaindex"
	"github.com/viant/vec0/schema"
	"github.com/viant/vec0/vecerr"
)

// Strategy is the access path chosen for a query.
type Strategy int

const (
	FullScan Strategy = iota + 1
	KnnScan
	RowidLookup
)

func (s Strategy) String() string {
	switch s {
	case FullScan:
		return "full-scan"
	case KnnScan:
		return "knn"
	case RowidLookup:
		return "rowid"
	}
	return fmt.Sprintf("Strategy(%d)", int(s))
}

// Op is a constraint operator offered by the host.
type Op uint8

const (
	OpOther Op = iota
	OpEq
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
	OpMatch
	OpLimit
)

// RowidColumn is the column index the host uses for rowid constraints.
const RowidColumn = -1

// Offer is one constraint the host can hand to the table.
type Offer struct {
	Column int
	Op     Op
	Usable bool
}

// Order is one ORDER BY term.
type Order struct {
	Column int
	Desc   bool
}

// Binding tells how a bound argument is used.
type Binding byte

const (
	BindVector    Binding = 'v'
	BindK         Binding = 'k'
	BindLimit     Binding = 'l'
	BindRowid     Binding = 'r'
	BindPartition Binding = 'p'
	BindMetadata  Binding = 'm'
)

// Arg describes one bound argument, in host argument order.
type Arg struct {
	Bind   Binding
	Op     metaindex.Op
	Column int
}

// Plan is a chosen strategy with the arguments it consumes.
type Plan struct {
	Strategy Strategy
	Args     []Arg
}

// Choice is the planner answer for one set of offers.
type Choice struct {
	Plan Plan
	// Use holds, per offer, the argument position it binds to or -1.
	Use []int
	// Omit holds, per offer, whether the host may skip re-checking it.
	Omit          []bool
	OrderConsumed bool
	Unique        bool
	Cost          float64
	Rows          int64
}

const unusableCost = 1e12

// Best picks the access strategy for offers.
func Best(s *schema.Schema, offers []Offer, orderBy []Order) (Choice, error) {
	choice := Choice{Use: make([]int, len(offers)), Omit: make([]bool, len(offers))}
	for i := range choice.Use {
		choice.Use[i] = -1
	}
	bind := func(i int, arg Arg, omit bool) {
		if arg.Op == 0 {
			arg.Op = metaindex.Eq
		}
		choice.Use[i] = len(choice.Plan.Args)
		choice.Omit[i] = omit
		choice.Plan.Args = append(choice.Plan.Args, arg)
	}

	match, matchOffered, kOffered := -1, false, false
	for i, o := range offers {
		switch {
		case o.Op == OpMatch && isVector(s, o.Column):
			matchOffered = true
			if !o.Usable {
				continue
			}
			if match >= 0 {
				return Choice{}, vecerr.Validationf("plan", "only one vector column may be matched per query")
			}
			match = i
		case o.Op == OpEq && o.Column == s.KColumn(), o.Op == OpLimit:
			kOffered = true
		}
	}
	if matchOffered && match < 0 {
		choice.Plan.Strategy = FullScan
		choice.Cost, choice.Rows = unusableCost, 1<<40
		return choice, nil
	}

	rowidAt := -1
	for i, o := range offers {
		if o.Usable && o.Op == OpEq && o.Column == RowidColumn {
			rowidAt = i
			break
		}
	}

	switch {
	case match >= 0:
		choice.Plan.Strategy = KnnScan
		bind(match, Arg{Bind: BindVector, Column: offers[match].Column}, true)
		kAt, limitAt := -1, -1
		for i, o := range offers {
			if !o.Usable {
				continue
			}
			if kAt < 0 && o.Op == OpEq && o.Column == s.KColumn() {
				kAt = i
			}
			if limitAt < 0 && o.Op == OpLimit {
				limitAt = i
			}
		}
		switch {
		case kAt >= 0:
			bind(kAt, Arg{Bind: BindK, Column: -1}, true)
		case limitAt >= 0:
			bind(limitAt, Arg{Bind: BindLimit, Column: -1}, false)
		case kOffered:
			choice.Cost, choice.Rows = unusableCost, 1<<40
			choice.Plan = Plan{Strategy: FullScan}
			for i := range choice.Use {
				choice.Use[i], choice.Omit[i] = -1, false
			}
			return choice, nil
		default:
			return Choice{}, vecerr.Validationf("plan", "KNN query on %q requires a LIMIT or a 'k = ?' constraint",
				s.Columns[offers[match].Column].Name)
		}
		if rowidAt >= 0 {
			bind(rowidAt, Arg{Bind: BindRowid, Column: -1}, true)
		}
		choice.Cost, choice.Rows = 10, 10
		if len(orderBy) == 1 && orderBy[0].Column == s.DistanceColumn() && !orderBy[0].Desc {
			choice.OrderConsumed = true
		}
	case rowidAt >= 0:
		choice.Plan.Strategy = RowidLookup
		bind(rowidAt, Arg{Bind: BindRowid, Column: -1}, true)
		choice.Cost, choice.Rows, choice.Unique = 1, 1, true
	default:
		choice.Plan.Strategy = FullScan
		choice.Cost, choice.Rows = 1e6, 1e6
	}

	for i, o := range offers {
		if !o.Usable || choice.Use[i] >= 0 || o.Column < 0 || o.Column >= len(s.Columns) {
			continue
		}
		col := &s.Columns[o.Column]
		op, ok := metaOp(o.Op)
		if !ok {
			continue
		}
		switch col.Role {
		case schema.RolePartition:
			if op == metaindex.Eq {
				bind(i, Arg{Bind: BindPartition, Op: op, Column: o.Column}, true)
				choice.Cost /= 2
			}
		case schema.RoleMetadata:
			bind(i, Arg{Bind: BindMetadata, Op: op, Column: o.Column}, true)
			choice.Cost *= 0.9
		}
	}
	return choice, nil
}

func isVector(s *schema.Schema, column int) bool {
	return column >= 0 && column < len(s.Columns) && s.Columns[column].Role == schema.RoleVector
}

func metaOp(op Op) (metaindex.Op, bool) {
	switch op {
	case OpEq:
		return metaindex.Eq, true
	case OpNe:
		return metaindex.Ne, true
	case OpLt:
		return metaindex.Lt, true
	case OpLe:
		return metaindex.Le, true
	case OpGt:
		return metaindex.Gt, true
	case OpGe:
		return metaindex.Ge, true
	}
	return 0, false
}

var opChars = map[metaindex.Op]byte{
	metaindex.Eq: '=',
	metaindex.Ne: '!',
	metaindex.Lt: '<',
	metaindex.Le: '{',
	metaindex.Gt: '>',
	metaindex.Ge: '}',
}

// Encode renders the plan arguments as an index string, one token per
// argument: binding, operator and column position.
func (p Plan) Encode() string {
	tokens := make([]string, 0, len(p.Args))
	for _, arg := range p.Args {
		op, ok := opChars[arg.Op]
		if !ok {
			op = '='
		}
		token := string([]byte{byte(arg.Bind), op})
		if arg.Column >= 0 {
			token += strconv.Itoa(arg.Column)
		}
		tokens = append(tokens, token)
	}
	return strings.Join(tokens, ",")
}

// DecodePlan parses an index string produced by Plan.Encode.
func DecodePlan(strategy Strategy, text string) (Plan, error) {
	p := Plan{Strategy: strategy}
	if strategy < FullScan || strategy > RowidLookup {
		return Plan{}, vecerr.Consistencyf("plan", "unknown strategy %d", int(strategy))
	}
	if text == "" {
		return p, nil
	}
	for _, token := range strings.Split(text, ",") {
		if len(token) < 2 {
			return Plan{}, vecerr.Consistencyf("plan", "malformed index token %q", token)
		}
		arg := Arg{Bind: Binding(token[0]), Column: -1}
		switch arg.Bind {
		case BindVector, BindK, BindLimit, BindRowid, BindPartition, BindMetadata:
		default:
			return Plan{}, vecerr.Consistencyf("plan", "unknown binding in index token %q", token)
		}
		for op, c := range opChars {
			if c == token[1] {
				arg.Op = op
			}
		}
		if arg.Op == 0 {
			return Plan{}, vecerr.Consistencyf("plan", "unknown operator in index token %q", token)
		}
		if len(token) > 2 {
			n, err := strconv.Atoi(token[2:])
			if err != nil || n < 0 {
				return Plan{}, vecerr.Consistencyf("plan", "malformed column in index token %q", token)
			}
			arg.Column = n
		}
		p.Args = append(p.Args, arg)
	}
	return p, nil
}
