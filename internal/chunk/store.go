package chunk

import (
	"fmt"
	"iter"
	"slices"

	"github.com/viant/vec0/internal/resource"
	"github.com/viant/vec0/internal/scalar"
	"github.com/viant/vec0/vecerr"
	"github.com/viant/vec0/vector"
)

// Store owns the chunks of one table.
type Store struct {
	layout    Layout
	ctrl      *resource.Controller
	chunks    []*Chunk
	rowids    map[int64]Location
	nextID    int64
	nextRowid int64
	deferred  bool
}

// Compaction reports the outcome of compacting one chunk.
type Compaction struct {
	Chunk    int64
	Moved    int
	Live     int
	Released bool
}

// New creates an empty store.
func New(layout Layout, ctrl *resource.Controller) (*Store, error) {
	if layout.Capacity <= 0 || layout.Capacity%8 != 0 {
		return nil, vecerr.Validationf("chunk", "chunk capacity must be a positive multiple of 8, got %d", layout.Capacity)
	}
	if len(layout.Vectors) == 0 {
		return nil, vecerr.Validationf("chunk", "at least one vector column is required")
	}
	return &Store{layout: layout, ctrl: ctrl, rowids: map[int64]Location{}, nextID: 1, nextRowid: 1}, nil
}

// Layout returns the store layout.
func (s *Store) Layout() *Layout { return &s.layout }

// Len returns the number of live rows.
func (s *Store) Len() int { return len(s.rowids) }

// NextRowid returns the rowid the next auto-assigned insert receives.
func (s *Store) NextRowid() int64 { return s.nextRowid }

// SetNextRowid overrides the next auto-assigned rowid.
func (s *Store) SetNextRowid(rowid int64) { s.nextRowid = rowid }

// SetDeferred controls slot reuse: while deferred, tombstoned slots stay
// occupied until ReleasePending is called.
func (s *Store) SetDeferred(deferred bool) { s.deferred = deferred }

// ReleasePending makes slots tombstoned while deferred reusable.
func (s *Store) ReleasePending() {
	for _, c := range s.chunks {
		c.live.Copy(c.occupied)
	}
}

// Chunks returns the chunks in ascending id order.
func (s *Store) Chunks() []*Chunk { return slices.Clone(s.chunks) }

// Chunk returns the chunk with id, or nil.
func (s *Store) Chunk(id int64) *Chunk {
	i, ok := slices.BinarySearchFunc(s.chunks, id, func(c *Chunk, id int64) int { return cmpID(c.ID, id) })
	if !ok {
		return nil
	}
	return s.chunks[i]
}

func cmpID(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// Lookup returns the location of a live rowid.
func (s *Store) Lookup(rowid int64) (Location, bool) {
	loc, ok := s.rowids[rowid]
	return loc, ok
}

// AllocateChunk reserves memory for and appends a new empty chunk.
func (s *Store) AllocateChunk() (*Chunk, error) {
	c := newChunk(s.nextID, &s.layout)
	if err := s.ctrl.Reserve("allocate chunk", c.bytes); err != nil {
		return nil, err
	}
	s.nextID++
	s.chunks = append(s.chunks, c)
	return c, nil
}

// Validate checks row against the layout without mutating the store.
func (s *Store) Validate(row *Row) error {
	if len(row.Vectors) != len(s.layout.Vectors) {
		return vecerr.Validationf("append", "expected %d vectors, got %d", len(s.layout.Vectors), len(row.Vectors))
	}
	for i, v := range row.Vectors {
		if err := s.checkVector(i, v); err != nil {
			return err
		}
	}
	if len(row.Partitions) != s.layout.Partitions || len(row.Metadata) != s.layout.Metadata || len(row.Aux) != s.layout.Aux {
		return vecerr.Validationf("append", "column count mismatch: partitions %d/%d, metadata %d/%d, aux %d/%d",
			len(row.Partitions), s.layout.Partitions, len(row.Metadata), s.layout.Metadata, len(row.Aux), s.layout.Aux)
	}
	return nil
}

func (s *Store) checkVector(col int, v vector.Vector) error {
	want := s.layout.Vectors[col]
	if v.Type != want.Type {
		return vecerr.Validation("append", fmt.Errorf("vector column %d expects %v, got %v: %w", col, want.Type, v.Type, vecerr.ErrTypeMismatch))
	}
	if v.Dims != want.Dims || len(v.Payload()) != want.Type.SlabSize(want.Dims) {
		return vecerr.DimensionMismatch("append", "", want.Dims, v.Dims)
	}
	return nil
}

// Append stores row and returns its rowid and location. A zero Rowid is
// auto-assigned. No partial row is stored on failure.
func (s *Store) Append(row Row) (int64, Location, error) {
	if err := s.Validate(&row); err != nil {
		return 0, Location{}, err
	}
	if row.Rowid == 0 {
		row.Rowid = s.nextRowid
	} else if _, ok := s.rowids[row.Rowid]; ok {
		return 0, Location{}, vecerr.Validation("append", fmt.Errorf("%w: %d", vecerr.ErrRowidExists, row.Rowid))
	}
	var (
		target *Chunk
		slot   int
	)
	for _, c := range s.chunks {
		if i, ok := c.freeSlot(); ok {
			target, slot = c, i
			break
		}
	}
	if target == nil {
		c, err := s.AllocateChunk()
		if err != nil {
			return 0, Location{}, err
		}
		target = c
	}
	target.write(slot, &row)
	target.live.Set(uint(slot))
	target.occupied.Set(uint(slot))
	loc := Location{Chunk: target.ID, Slot: slot}
	s.rowids[row.Rowid] = loc
	if row.Rowid >= s.nextRowid {
		s.nextRowid = row.Rowid + 1
	}
	return row.Rowid, loc, nil
}

// Tombstone marks rowid deleted. The slot data stays in place until the
// slot is reused or compacted.
func (s *Store) Tombstone(rowid int64) (Location, error) {
	loc, c, err := s.locate("tombstone", rowid)
	if err != nil {
		return Location{}, err
	}
	c.live.Clear(uint(loc.Slot))
	if !s.deferred {
		c.occupied.Clear(uint(loc.Slot))
	}
	c.dirty = true
	delete(s.rowids, rowid)
	return loc, nil
}

// Revive restores a row tombstoned while deferred.
func (s *Store) Revive(rowid int64, loc Location) error {
	c := s.Chunk(loc.Chunk)
	if c == nil || !c.occupied.Test(uint(loc.Slot)) || c.live.Test(uint(loc.Slot)) || c.rowids[loc.Slot] != rowid {
		return vecerr.Consistencyf("revive", "slot %d of chunk %d no longer holds rowid %d", loc.Slot, loc.Chunk, rowid)
	}
	c.live.Set(uint(loc.Slot))
	c.dirty = true
	s.rowids[rowid] = loc
	return nil
}

// Erase removes rowid and frees its slot immediately.
func (s *Store) Erase(rowid int64) error {
	loc, c, err := s.locate("erase", rowid)
	if err != nil {
		return err
	}
	c.live.Clear(uint(loc.Slot))
	c.occupied.Clear(uint(loc.Slot))
	c.clear(loc.Slot)
	c.dirty = true
	delete(s.rowids, rowid)
	return nil
}

func (s *Store) locate(op string, rowid int64) (Location, *Chunk, error) {
	loc, ok := s.rowids[rowid]
	if !ok {
		return Location{}, nil, vecerr.Validation(op, fmt.Errorf("%w: %d", vecerr.ErrRowidNotFound, rowid))
	}
	c := s.Chunk(loc.Chunk)
	if c == nil || !c.live.Test(uint(loc.Slot)) || c.rowids[loc.Slot] != rowid {
		return Location{}, nil, vecerr.Consistencyf(op, "rowid %d maps to an invalid slot %d of chunk %d", rowid, loc.Slot, loc.Chunk)
	}
	return loc, c, nil
}

// SetVector replaces vector column col of rowid.
func (s *Store) SetVector(rowid int64, col int, v vector.Vector) error {
	if col < 0 || col >= len(s.layout.Vectors) {
		return vecerr.Validationf("update", "vector column %d out of range", col)
	}
	if err := s.checkVector(col, v); err != nil {
		return err
	}
	loc, c, err := s.locate("update", rowid)
	if err != nil {
		return err
	}
	c.writeVector(col, loc.Slot, v)
	return nil
}

// SetMetadata replaces metadata column col of rowid.
func (s *Store) SetMetadata(rowid int64, col int, v scalar.Value) error {
	return s.setScalar(rowid, col, v, func(c *Chunk) [][]scalar.Value { return c.metadata })
}

// SetAux replaces auxiliary column col of rowid.
func (s *Store) SetAux(rowid int64, col int, v scalar.Value) error {
	return s.setScalar(rowid, col, v, func(c *Chunk) [][]scalar.Value { return c.aux })
}

func (s *Store) setScalar(rowid int64, col int, v scalar.Value, columns func(*Chunk) [][]scalar.Value) error {
	loc, c, err := s.locate("update", rowid)
	if err != nil {
		return err
	}
	cols := columns(c)
	if col < 0 || col >= len(cols) {
		return vecerr.Validationf("update", "column %d out of range", col)
	}
	cols[col][loc.Slot] = v
	c.dirty = true
	return nil
}

// IterateLive yields the live slots of chunk id; an unknown chunk yields nothing.
func (s *Store) IterateLive(id int64) iter.Seq[int] {
	c := s.Chunk(id)
	if c == nil {
		return func(func(int) bool) {}
	}
	return c.IterateLive()
}

// NextLive returns the first live slot at or after from in (chunk id, slot)
// order. Chunks released since from was taken are skipped.
func (s *Store) NextLive(from Location) (Location, bool) {
	i, _ := slices.BinarySearchFunc(s.chunks, from.Chunk, func(c *Chunk, id int64) int { return cmpID(c.ID, id) })
	for ; i < len(s.chunks); i++ {
		c := s.chunks[i]
		start := 0
		if c.ID == from.Chunk {
			start = max(from.Slot, 0)
		}
		if start >= c.capacity {
			continue
		}
		if slot, ok := c.live.NextSet(uint(start)); ok && int(slot) < c.capacity {
			return Location{Chunk: c.ID, Slot: int(slot)}, true
		}
	}
	return Location{}, false
}

// CheckSlab verifies that vector column col of chunk c matches the layout.
func (s *Store) CheckSlab(c *Chunk, col int) error {
	want := s.layout.Vectors[col]
	if len(c.slabs[col]) != c.capacity*want.Type.SlabSize(want.Dims) {
		return vecerr.Consistencyf("read", "chunk %d slab of column %d holds %d bytes, schema requires %d",
			c.ID, col, len(c.slabs[col]), c.capacity*want.Type.SlabSize(want.Dims))
	}
	return nil
}

// ReadVector decodes vector column col at loc.
func (s *Store) ReadVector(loc Location, col int) (vector.Vector, error) {
	c := s.Chunk(loc.Chunk)
	if c == nil || loc.Slot < 0 || loc.Slot >= c.capacity {
		return vector.Vector{}, vecerr.Consistencyf("read", "no slot %d in chunk %d", loc.Slot, loc.Chunk)
	}
	if col < 0 || col >= len(s.layout.Vectors) {
		return vector.Vector{}, vecerr.Validationf("read", "vector column %d out of range", col)
	}
	if err := s.CheckSlab(c, col); err != nil {
		return vector.Vector{}, err
	}
	want := s.layout.Vectors[col]
	payload := c.Slab(col, loc.Slot)
	v, err := vector.DecodeDims(want.Type, want.Dims, payload)
	if err != nil {
		return vector.Vector{}, vecerr.Consistency("read", err)
	}
	if want.Type == vector.Int8 {
		q := c.Quant(col, loc.Slot)
		v.Scale, v.Offset = q.Scale, q.Offset
	}
	return v, nil
}

// Read returns a copy of the row stored under rowid.
func (s *Store) Read(rowid int64) (Row, error) {
	loc, c, err := s.locate("read", rowid)
	if err != nil {
		return Row{}, err
	}
	row := Row{Rowid: rowid, Vectors: make([]vector.Vector, len(s.layout.Vectors))}
	for i := range s.layout.Vectors {
		if row.Vectors[i], err = s.ReadVector(loc, i); err != nil {
			return Row{}, err
		}
	}
	for _, col := range c.partitions {
		row.Partitions = append(row.Partitions, col[loc.Slot])
	}
	for _, col := range c.metadata {
		row.Metadata = append(row.Metadata, col[loc.Slot])
	}
	for _, col := range c.aux {
		row.Aux = append(row.Aux, col[loc.Slot])
	}
	return row, nil
}

// Compact moves the live rows of chunk id into a dense prefix preserving
// their relative order, and releases the chunk once no row is live. Chunks
// holding slots tombstoned inside an open transaction are left untouched.
func (s *Store) Compact(id int64) (Compaction, error) {
	c := s.Chunk(id)
	if c == nil {
		return Compaction{}, vecerr.Validationf("compact", "chunk %d not found", id)
	}
	result := Compaction{Chunk: id}
	if c.occupied.Count() != c.live.Count() {
		result.Live = c.LiveCount()
		return result, nil
	}
	w := 0
	for slot := range c.IterateLive() {
		if slot != w {
			rowid := c.rowids[slot]
			c.move(slot, w)
			c.live.Clear(uint(slot))
			c.occupied.Clear(uint(slot))
			c.live.Set(uint(w))
			c.occupied.Set(uint(w))
			s.rowids[rowid] = Location{Chunk: id, Slot: w}
			result.Moved++
		}
		w++
	}
	// Tombstoned slots past the live prefix still hold their row.
	for slot := w; slot < c.capacity; slot++ {
		if c.rowids[slot] != 0 {
			c.clear(slot)
		}
	}
	result.Live = w
	if result.Moved > 0 {
		c.dirty = true
	}
	if w == 0 {
		s.release(c)
		result.Released = true
	}
	return result, nil
}

func (s *Store) release(c *Chunk) {
	s.chunks = slices.DeleteFunc(s.chunks, func(x *Chunk) bool { return x == c })
	s.ctrl.Release(c.bytes)
	c.bytes = 0
}

// Release frees every chunk. Safe to call more than once.
func (s *Store) Release() {
	if s == nil {
		return
	}
	for _, c := range s.chunks {
		s.ctrl.Release(c.bytes)
		c.bytes = 0
	}
	s.chunks = nil
	s.rowids = map[int64]Location{}
}

// Dirty returns chunks modified since the last MarkClean.
func (s *Store) Dirty() []*Chunk {
	var out []*Chunk
	for _, c := range s.chunks {
		if c.dirty {
			out = append(out, c)
		}
	}
	return out
}

// MarkClean clears the dirty flag of every chunk.
func (s *Store) MarkClean() {
	for _, c := range s.chunks {
		c.dirty = false
	}
}
