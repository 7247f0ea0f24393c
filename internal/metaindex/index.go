package metaindex

import (
	"github.com/RoaringBitmap/roaring/v2"

	"github.com/viant/vec0/internal/scalar"
)

// Decision tells the executor how to treat a chunk.
type Decision uint8

const (
	// Evaluate means rows must be checked one by one.
	Evaluate Decision = iota
	// Skip means no row of the chunk can match.
	Skip
)

// Index summarizes, per partition column, which chunks hold each value.
type Index struct {
	columns []partitionSummary
}

type partitionSummary struct {
	chunks map[string]*roaring.Bitmap
	counts map[string]map[uint32]int
}

// New creates a summary for n partition columns.
func New(n int) *Index {
	x := &Index{columns: make([]partitionSummary, n)}
	for i := range x.columns {
		x.columns[i] = partitionSummary{chunks: map[string]*roaring.Bitmap{}, counts: map[string]map[uint32]int{}}
	}
	return x
}

// Add records that chunk holds one more row with value v in partition column col.
func (x *Index) Add(chunkID int64, col int, v scalar.Value) {
	if v.IsNull() {
		return
	}
	s := &x.columns[col]
	key, id := v.Key(), uint32(chunkID)
	counts := s.counts[key]
	if counts == nil {
		counts = map[uint32]int{}
		s.counts[key] = counts
		s.chunks[key] = roaring.New()
	}
	counts[id]++
	s.chunks[key].Add(id)
}

// Remove records that chunk holds one less row with value v.
func (x *Index) Remove(chunkID int64, col int, v scalar.Value) {
	if v.IsNull() {
		return
	}
	s := &x.columns[col]
	key, id := v.Key(), uint32(chunkID)
	counts := s.counts[key]
	if counts == nil {
		return
	}
	if counts[id]--; counts[id] > 0 {
		return
	}
	delete(counts, id)
	s.chunks[key].Remove(id)
	if len(counts) == 0 {
		delete(s.counts, key)
		delete(s.chunks, key)
	}
}

// DropChunk forgets every value recorded for chunk.
func (x *Index) DropChunk(chunkID int64) {
	id := uint32(chunkID)
	for i := range x.columns {
		s := &x.columns[i]
		for key, counts := range s.counts {
			if _, ok := counts[id]; !ok {
				continue
			}
			delete(counts, id)
			s.chunks[key].Remove(id)
			if len(counts) == 0 {
				delete(s.counts, key)
				delete(s.chunks, key)
			}
		}
	}
}

// Reset clears every summary.
func (x *Index) Reset() {
	*x = *New(len(x.columns))
}

// Candidates returns the chunks that may hold rows matching the partition
// predicates of f, or nil when f has none.
func (x *Index) Candidates(f Filter) *roaring.Bitmap {
	var result *roaring.Bitmap
	for i := range f {
		p := &f[i]
		if p.Target != Partition {
			continue
		}
		var matched *roaring.Bitmap
		switch p.Op {
		case Eq:
			matched = x.lookup(p.Column, p.Value)
		case In:
			matched = roaring.New()
			if p.Set != nil {
				for _, v := range p.Set.Values() {
					matched.Or(x.lookup(p.Column, v))
				}
			}
		default:
			continue
		}
		if result == nil {
			result = matched
		} else {
			result.And(matched)
		}
	}
	return result
}

func (x *Index) lookup(col int, v scalar.Value) *roaring.Bitmap {
	if v.IsNull() {
		return roaring.New()
	}
	if b, ok := x.columns[col].chunks[v.Key()]; ok {
		return b.Clone()
	}
	return roaring.New()
}

// Decide returns Skip when candidates proves chunk holds no matching row.
func Decide(candidates *roaring.Bitmap, chunkID int64) Decision {
	if candidates != nil && !candidates.Contains(uint32(chunkID)) {
		return Skip
	}
	return Evaluate
}
