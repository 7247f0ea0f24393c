// Package chunk implements the columnar row store of a vec0 table: fixed
// capacity chunks of slots addressed by (chunk id, slot), a liveness bitmap
// per chunk, and a rowid map.
package chunk

import (
	"iter"

	"github.com/bits-and-blooms/bitset"

	"github.com/viant/vec0/distance"
	"github.com/viant/vec0/internal/scalar"
	"github.com/viant/vec0/vector"
)

// VectorLayout describes one vector column.
type VectorLayout struct {
	Type vector.ElementType
	Dims int
}

// Layout describes the columns stored in every chunk.
type Layout struct {
	Vectors    []VectorLayout
	Partitions int
	Metadata   int
	Aux        int
	// Capacity is the number of slots per chunk.
	Capacity int
}

// Location addresses a slot.
type Location struct {
	Chunk int64
	Slot  int
}

// Row is the full content of a table row.
type Row struct {
	Rowid      int64
	Vectors    []vector.Vector
	Partitions []scalar.Value
	Metadata   []scalar.Value
	Aux        []scalar.Value
}

// Chunk is a fixed-capacity batch of slots. A slot is live when its liveness
// bit is set; occupied covers live slots plus slots tombstoned inside an open
// transaction, which must not be reused before commit.
type Chunk struct {
	ID         int64
	capacity   int
	live       *bitset.BitSet
	occupied   *bitset.BitSet
	rowids     []int64
	sizes      []int
	slabs      [][]byte
	quants     [][]distance.Quant
	partitions [][]scalar.Value
	metadata   [][]scalar.Value
	aux        [][]scalar.Value
	bytes      int64
	dirty      bool
}

func newChunk(id int64, layout *Layout) *Chunk {
	c := &Chunk{
		ID:         id,
		capacity:   layout.Capacity,
		live:       bitset.New(uint(layout.Capacity)),
		occupied:   bitset.New(uint(layout.Capacity)),
		rowids:     make([]int64, layout.Capacity),
		sizes:      make([]int, len(layout.Vectors)),
		slabs:      make([][]byte, len(layout.Vectors)),
		quants:     make([][]distance.Quant, len(layout.Vectors)),
		partitions: columns(layout.Partitions, layout.Capacity),
		metadata:   columns(layout.Metadata, layout.Capacity),
		aux:        columns(layout.Aux, layout.Capacity),
		bytes:      layout.chunkBytes(),
		dirty:      true,
	}
	for i, v := range layout.Vectors {
		c.sizes[i] = v.Type.SlabSize(v.Dims)
		c.slabs[i] = make([]byte, layout.Capacity*c.sizes[i])
		if v.Type == vector.Int8 {
			c.quants[i] = make([]distance.Quant, layout.Capacity)
		}
	}
	return c
}

func columns(n, capacity int) [][]scalar.Value {
	out := make([][]scalar.Value, n)
	for i := range out {
		out[i] = make([]scalar.Value, capacity)
	}
	return out
}

func (l *Layout) chunkBytes() int64 {
	perSlot := int64(8 + 32*(l.Partitions+l.Metadata+l.Aux))
	for _, v := range l.Vectors {
		perSlot += int64(v.Type.SlabSize(v.Dims))
		if v.Type == vector.Int8 {
			perSlot += 8
		}
	}
	return perSlot*int64(l.Capacity) + int64(l.Capacity/4)
}

// Capacity returns the number of slots.
func (c *Chunk) Capacity() int { return c.capacity }

// LiveCount returns the number of live slots.
func (c *Chunk) LiveCount() int { return int(c.live.Count()) }

// Live reports whether slot holds a live row.
func (c *Chunk) Live(slot int) bool { return c.live.Test(uint(slot)) }

// Rowid returns the rowid stored at slot.
func (c *Chunk) Rowid(slot int) int64 { return c.rowids[slot] }

// Slab returns the stored bytes of vector column col at slot. The returned
// slice aliases chunk memory and must not be modified.
func (c *Chunk) Slab(col, slot int) []byte {
	size := c.sizes[col]
	return c.slabs[col][slot*size : (slot+1)*size]
}

// Quant returns the int8 dequantization pair of column col at slot.
func (c *Chunk) Quant(col, slot int) distance.Quant {
	if c.quants[col] == nil {
		return distance.Quant{}
	}
	return c.quants[col][slot]
}

// Partition returns partition column col at slot.
func (c *Chunk) Partition(col, slot int) scalar.Value { return c.partitions[col][slot] }

// Metadata returns metadata column col at slot.
func (c *Chunk) Metadata(col, slot int) scalar.Value { return c.metadata[col][slot] }

// Aux returns auxiliary column col at slot.
func (c *Chunk) Aux(col, slot int) scalar.Value { return c.aux[col][slot] }

// IterateLive yields live slots in ascending order.
func (c *Chunk) IterateLive() iter.Seq[int] {
	return func(yield func(int) bool) {
		for i, ok := c.live.NextSet(0); ok && int(i) < c.capacity; i, ok = c.live.NextSet(i + 1) {
			if !yield(int(i)) {
				return
			}
		}
	}
}

func (c *Chunk) freeSlot() (int, bool) {
	i, ok := c.occupied.NextClear(0)
	if !ok || int(i) >= c.capacity {
		return 0, false
	}
	return int(i), true
}

func (c *Chunk) write(slot int, row *Row) {
	c.rowids[slot] = row.Rowid
	for i := range c.slabs {
		c.writeVector(i, slot, row.Vectors[i])
	}
	for i := range c.partitions {
		c.partitions[i][slot] = row.Partitions[i]
	}
	for i := range c.metadata {
		c.metadata[i][slot] = row.Metadata[i]
	}
	for i := range c.aux {
		c.aux[i][slot] = row.Aux[i]
	}
	c.dirty = true
}

func (c *Chunk) writeVector(col, slot int, v vector.Vector) {
	size := c.sizes[col]
	copy(c.slabs[col][slot*size:(slot+1)*size], v.Payload())
	if c.quants[col] != nil {
		c.quants[col][slot] = distance.Quant{Scale: v.Scale, Offset: v.Offset}
	}
	c.dirty = true
}

func (c *Chunk) clear(slot int) {
	c.rowids[slot] = 0
	for i, size := range c.sizes {
		clear(c.slabs[i][slot*size : (slot+1)*size])
		if c.quants[i] != nil {
			c.quants[i][slot] = distance.Quant{}
		}
	}
	for _, col := range c.partitions {
		col[slot] = scalar.Value{}
	}
	for _, col := range c.metadata {
		col[slot] = scalar.Value{}
	}
	for _, col := range c.aux {
		col[slot] = scalar.Value{}
	}
}

// move copies slot from into slot to; to must be free.
func (c *Chunk) move(from, to int) {
	c.rowids[to] = c.rowids[from]
	for i, size := range c.sizes {
		copy(c.slabs[i][to*size:(to+1)*size], c.slabs[i][from*size:(from+1)*size])
		if c.quants[i] != nil {
			c.quants[i][to] = c.quants[i][from]
		}
	}
	for _, col := range c.partitions {
		col[to] = col[from]
	}
	for _, col := range c.metadata {
		col[to] = col[from]
	}
	for _, col := range c.aux {
		col[to] = col[from]
	}
	c.clear(from)
}
