// Package metaindex evaluates equality, IN-set and range predicates over
// partition and metadata columns, and keeps a per-partition-value summary of
// the chunks holding that value so whole chunks can be skipped.
package metaindex

import (
	"fmt"

	"github.com/viant/vec0/internal/chunk"
	"github.com/viant/vec0/internal/resource"
	"github.com/viant/vec0/internal/scalar"
)

// Op is a comparison operator.
type Op uint8

const (
	Eq Op = iota + 1
	Ne
	Lt
	Le
	Gt
	Ge
	In
)

func (o Op) String() string {
	switch o {
	case Eq:
		return "="
	case Ne:
		return "!="
	case Lt:
		return "<"
	case Le:
		return "<="
	case Gt:
		return ">"
	case Ge:
		return ">="
	case In:
		return "IN"
	}
	return fmt.Sprintf("Op(%d)", uint8(o))
}

// Target selects the column family a predicate applies to.
type Target uint8

const (
	Partition Target = iota + 1
	Metadata
)

// Predicate is one condition on a partition or metadata column.
type Predicate struct {
	Target Target
	Column int
	Op     Op
	Value  scalar.Value
	Set    *InSet
}

// Match reports whether v satisfies p. NULL never matches.
func (p *Predicate) Match(v scalar.Value) bool {
	if v.IsNull() {
		return false
	}
	if p.Op == In {
		return p.Set.Contains(v)
	}
	c, ok := scalar.Compare(v, p.Value)
	if !ok {
		return false
	}
	switch p.Op {
	case Eq:
		return c == 0
	case Ne:
		return c != 0
	case Lt:
		return c < 0
	case Le:
		return c <= 0
	case Gt:
		return c > 0
	case Ge:
		return c >= 0
	}
	return false
}

func (p *Predicate) value(c *chunk.Chunk, slot int) scalar.Value {
	if p.Target == Partition {
		return c.Partition(p.Column, slot)
	}
	return c.Metadata(p.Column, slot)
}

// InSet is a deduplicated IN operand set. Its memory is reserved from a
// resource controller and returned by Release.
type InSet struct {
	values []scalar.Value
	keys   map[string]struct{}
	lease  *resource.Lease
}

// NewInSet deduplicates values into a set. NULL operands are dropped since
// they can never match. On failure everything reserved so far is released.
func NewInSet(ctrl *resource.Controller, values []scalar.Value) (set *InSet, err error) {
	s := &InSet{keys: make(map[string]struct{}, len(values)), lease: ctrl.NewLease("in-set")}
	defer func() {
		if err != nil {
			s.Release()
		}
	}()
	for _, v := range values {
		if v.IsNull() {
			continue
		}
		key := v.Key()
		if _, ok := s.keys[key]; ok {
			continue
		}
		if err := s.lease.Grow(v.Size() + int64(len(key))); err != nil {
			return nil, err
		}
		s.keys[key] = struct{}{}
		s.values = append(s.values, v)
	}
	return s, nil
}

// Len returns the number of distinct operands.
func (s *InSet) Len() int { return len(s.values) }

// Values returns the distinct operands in first-seen order.
func (s *InSet) Values() []scalar.Value { return s.values }

// Contains reports whether v is in the set.
func (s *InSet) Contains(v scalar.Value) bool {
	if s == nil || v.IsNull() {
		return false
	}
	_, ok := s.keys[v.Key()]
	return ok
}

// Release returns the set's memory. Safe to call repeatedly.
func (s *InSet) Release() {
	if s == nil {
		return
	}
	s.lease.Release()
	s.values = nil
	s.keys = nil
}

// Filter is a conjunction of predicates.
type Filter []Predicate

// MatchRow reports whether the row at slot satisfies every predicate.
func (f Filter) MatchRow(c *chunk.Chunk, slot int) bool {
	for i := range f {
		if !f[i].Match(f[i].value(c, slot)) {
			return false
		}
	}
	return true
}

// Release frees every IN set held by the filter.
func (f Filter) Release() {
	for i := range f {
		f[i].Set.Release()
	}
}
