// Package knn selects the k nearest candidates with a bounded max-heap.
package knn

import (
	"container/heap"
	"slices"
)

// Neighbor is a scored row.
type Neighbor struct {
	Rowid    int64
	Distance float64
}

// before orders neighbors by distance, then by rowid.
func before(a, b Neighbor) bool {
	if a.Distance != b.Distance {
		return a.Distance < b.Distance
	}
	return a.Rowid < b.Rowid
}

// neighbors implements heap.Interface with the worst candidate on top.
type neighbors []Neighbor

func (h neighbors) Len() int           { return len(h) }
func (h neighbors) Less(i, j int) bool { return before(h[j], h[i]) }
func (h neighbors) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *neighbors) Push(x interface{}) {
	*h = append(*h, x.(Neighbor))
}

func (h *neighbors) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// Selector keeps the k best neighbors seen so far.
type Selector struct {
	k    int
	heap neighbors
}

// NewSelector creates a selector for k results.
func NewSelector(k int) *Selector {
	return &Selector{k: k, heap: make(neighbors, 0, k)}
}

// Offer considers a candidate. A full selector only accepts a candidate
// that sorts strictly before its current worst one in (distance, rowid)
// order: an equal distance leaves the selector unchanged unless the
// candidate has the smaller rowid, so the retained set does not depend on
// the order rows are offered in.
func (s *Selector) Offer(n Neighbor) bool {
	if s.k <= 0 {
		return false
	}
	if len(s.heap) < s.k {
		heap.Push(&s.heap, n)
		return true
	}
	if !before(n, s.heap[0]) {
		return false
	}
	s.heap[0] = n
	heap.Fix(&s.heap, 0)
	return true
}

// Worst returns the current k-th distance and whether the selector is full.
func (s *Selector) Worst() (float64, bool) {
	if len(s.heap) < s.k || s.k == 0 {
		return 0, false
	}
	return s.heap[0].Distance, true
}

// Len returns the number of retained candidates.
func (s *Selector) Len() int { return len(s.heap) }

// Drain returns the retained candidates in ascending (distance, rowid)
// order and empties the selector.
func (s *Selector) Drain() []Neighbor {
	out := slices.Clone([]Neighbor(s.heap))
	slices.SortFunc(out, func(a, b Neighbor) int {
		switch {
		case before(a, b):
			return -1
		case before(b, a):
			return 1
		}
		return 0
	})
	s.heap = s.heap[:0]
	return out
}

// Bytes returns the heap footprint for k candidates.
func Bytes(k int) int64 { return int64(k) * 16 }
