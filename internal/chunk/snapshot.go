package chunk

import (
	"github.com/bits-and-blooms/bitset"

	"github.com/viant/vec0/distance"
	"github.com/viant/vec0/internal/scalar"
	"github.com/viant/vec0/vecerr"
)

// Snapshot is the persistent image of a chunk. Pending tombstones are not
// captured; a snapshot only reflects live rows.
type Snapshot struct {
	ID         int64              `msgpack:"id"`
	Capacity   int                `msgpack:"capacity"`
	Live       []uint64           `msgpack:"live"`
	Rowids     []int64            `msgpack:"rowids"`
	Slabs      [][]byte           `msgpack:"-"`
	Quants     [][]distance.Quant `msgpack:"quants"`
	Partitions [][]scalar.Value   `msgpack:"partitions"`
	Metadata   [][]scalar.Value   `msgpack:"metadata"`
	Aux        [][]scalar.Value   `msgpack:"aux"`
}

// Snapshot captures the chunk. Slices alias chunk memory; encode before the
// next mutation.
func (c *Chunk) Snapshot() Snapshot {
	return Snapshot{
		ID:         c.ID,
		Capacity:   c.capacity,
		Live:       c.live.Bytes(),
		Rowids:     c.rowids,
		Slabs:      c.slabs,
		Quants:     c.quants,
		Partitions: c.partitions,
		Metadata:   c.metadata,
		Aux:        c.aux,
	}
}

// Restore loads chunk snapshots into an empty store. Every snapshot is
// checked against the layout; on failure nothing is retained.
func (s *Store) Restore(snaps []Snapshot, nextRowid int64) (err error) {
	if len(s.chunks) > 0 {
		return vecerr.Consistencyf("restore", "store already holds %d chunks", len(s.chunks))
	}
	defer func() {
		if err != nil {
			s.Release()
		}
	}()
	for i := range snaps {
		c, err := s.restoreChunk(&snaps[i])
		if err != nil {
			return err
		}
		if err := s.ctrl.Reserve("restore chunk", c.bytes); err != nil {
			return err
		}
		if len(s.chunks) > 0 && s.chunks[len(s.chunks)-1].ID >= c.ID {
			s.ctrl.Release(c.bytes)
			return vecerr.Consistencyf("restore", "chunk ids out of order at %d", c.ID)
		}
		s.chunks = append(s.chunks, c)
		for slot := range c.IterateLive() {
			rowid := c.rowids[slot]
			if _, dup := s.rowids[rowid]; dup {
				return vecerr.Consistencyf("restore", "rowid %d stored twice", rowid)
			}
			s.rowids[rowid] = Location{Chunk: c.ID, Slot: slot}
		}
		s.nextID = c.ID + 1
	}
	s.nextRowid = max(nextRowid, 1)
	for rowid := range s.rowids {
		if rowid >= s.nextRowid {
			s.nextRowid = rowid + 1
		}
	}
	return nil
}

func (s *Store) restoreChunk(snap *Snapshot) (*Chunk, error) {
	l := &s.layout
	if snap.Capacity != l.Capacity || len(snap.Rowids) != l.Capacity {
		return nil, vecerr.Consistencyf("restore", "chunk %d capacity %d does not match %d", snap.ID, snap.Capacity, l.Capacity)
	}
	if len(snap.Slabs) != len(l.Vectors) || len(snap.Quants) != len(l.Vectors) {
		return nil, vecerr.Consistencyf("restore", "chunk %d holds %d vector columns, schema declares %d", snap.ID, len(snap.Slabs), len(l.Vectors))
	}
	if len(snap.Partitions) != l.Partitions || len(snap.Metadata) != l.Metadata || len(snap.Aux) != l.Aux {
		return nil, vecerr.Consistencyf("restore", "chunk %d scalar column counts do not match the schema", snap.ID)
	}
	c := newChunk(snap.ID, l)
	for i, v := range l.Vectors {
		if len(snap.Slabs[i]) != l.Capacity*v.Type.SlabSize(v.Dims) {
			return nil, vecerr.Consistencyf("restore", "chunk %d column %d slab holds %d bytes, want %d",
				snap.ID, i, len(snap.Slabs[i]), l.Capacity*v.Type.SlabSize(v.Dims))
		}
		copy(c.slabs[i], snap.Slabs[i])
		if c.quants[i] != nil {
			if len(snap.Quants[i]) != l.Capacity {
				return nil, vecerr.Consistencyf("restore", "chunk %d column %d misses int8 quantization", snap.ID, i)
			}
			copy(c.quants[i], snap.Quants[i])
		}
	}
	for _, pair := range []struct{ dst, src [][]scalar.Value }{{c.partitions, snap.Partitions}, {c.metadata, snap.Metadata}, {c.aux, snap.Aux}} {
		for i := range pair.dst {
			if len(pair.src[i]) != l.Capacity {
				return nil, vecerr.Consistencyf("restore", "chunk %d scalar column %d holds %d values", snap.ID, i, len(pair.src[i]))
			}
			copy(pair.dst[i], pair.src[i])
		}
	}
	copy(c.rowids, snap.Rowids)
	live := bitset.FromWithLength(uint(l.Capacity), append([]uint64(nil), snap.Live...))
	for i, ok := live.NextSet(0); ok && int(i) < l.Capacity; i, ok = live.NextSet(i + 1) {
		c.live.Set(i)
		c.occupied.Set(i)
	}
	c.dirty = false
	return c, nil
}
