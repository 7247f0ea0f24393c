package index

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/viant/vec0/internal/chunk"
	"github.com/viant/vec0/internal/metaindex"
	"github.com/viant/vec0/internal/resource"
	"github.com/viant/vec0/internal/scalar"
	"github.com/viant/vec0/logging"
	"github.com/viant/vec0/schema"
	"github.com/viant/vec0/storage"
	"github.com/viant/vec0/vecerr"
	"github.com/viant/vec0/vector"
)

// Table is one vec0 table instance. All methods are safe for concurrent use.
type Table struct {
	mu          sync.RWMutex
	db          string
	schema      *schema.Schema
	store       *chunk.Store
	summary     *metaindex.Index
	ctrl        *resource.Controller
	catalog     *storage.Catalog
	key         string
	compression storage.Compression
	logger      *logging.Logger
	generation  string
	refs        int

	tx        *transaction
	removed   []int64
	destroyed bool
}

type undoKind uint8

const (
	undoInsert undoKind = iota + 1
	undoDelete
	undoUpdate
)

type undoEntry struct {
	kind  undoKind
	rowid int64
	loc   chunk.Location
	row   chunk.Row
}

type transaction struct {
	nextRowid int64
	undo      []undoEntry
}

func (t *Table) init() error {
	store, err := chunk.New(t.schema.Layout(), t.ctrl)
	if err != nil {
		return err
	}
	t.store = store
	t.summary = metaindex.New(len(t.schema.Partitions))
	return nil
}

func (t *Table) restore(m *storage.Manifest, snaps []chunk.Snapshot) error {
	if err := t.store.Restore(snaps, m.NextRowid); err != nil {
		return err
	}
	for _, c := range t.store.Chunks() {
		t.index(c)
	}
	t.store.MarkClean()
	t.generation = m.Generation
	return nil
}

func (t *Table) index(c *chunk.Chunk) {
	for slot := range c.IterateLive() {
		for col := range t.schema.Partitions {
			t.summary.Add(c.ID, col, c.Partition(col, slot))
		}
	}
}

func (t *Table) rename(name, key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.schema.Table = name
	t.key = key
	t.logger = t.logger.WithTable(name)
}

// Name returns the table name.
func (t *Table) Name() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.schema.Table
}

// Schema returns the parsed declaration.
func (t *Table) Schema() *schema.Schema { return t.schema }

// Controller returns the memory controller queries reserve from.
func (t *Table) Controller() *resource.Controller { return t.ctrl }

// View runs fn with the store and partition summary under a read lock.
func (t *Table) View(fn func(store *chunk.Store, summary *metaindex.Index) error) error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.destroyed {
		return t.gone("read")
	}
	return fn(t.store, t.summary)
}

func (t *Table) gone(op string) error {
	return vecerr.Validation(op, fmt.Errorf("%w: %s", vecerr.ErrTableNotFound, t.schema.Table))
}

// Insert adds a row. values holds one entry per declared column; rowid 0
// assigns the next rowid unless the primary key column supplies one.
func (t *Table) Insert(ctx context.Context, rowid int64, values []any) (int64, error) {
	row, err := t.row("insert", values)
	if err != nil {
		return 0, err
	}
	if pk := t.schema.PrimaryKey; pk >= 0 && values[pk] != nil {
		id, err := integer(t.schema.Columns[pk].Name, values[pk])
		if err != nil {
			return 0, err
		}
		if rowid != 0 && rowid != id {
			return 0, vecerr.Validationf("insert", "rowid %d conflicts with %s = %d", rowid, t.schema.Columns[pk].Name, id)
		}
		rowid = id
	}
	row.Rowid = rowid

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.destroyed {
		return 0, t.gone("insert")
	}
	rowid, loc, err := t.store.Append(row)
	if err != nil {
		return 0, err
	}
	for col, v := range row.Partitions {
		t.summary.Add(loc.Chunk, col, v)
	}
	t.record(undoEntry{kind: undoInsert, rowid: rowid, loc: loc, row: chunk.Row{Partitions: row.Partitions}})
	t.logger.DebugContext(ctx, "row inserted", "rowid", rowid, "chunk", loc.Chunk, "slot", loc.Slot)
	return rowid, nil
}

// Update replaces the values of rowid. The rowid and partition key values
// cannot change.
func (t *Table) Update(ctx context.Context, rowid, newRowid int64, values []any) error {
	if newRowid != rowid {
		return vecerr.Validation("update", fmt.Errorf("%w: rowid %d cannot become %d", vecerr.ErrImmutableColumn, rowid, newRowid))
	}
	if pk := t.schema.PrimaryKey; pk >= 0 && values[pk] != nil {
		id, err := integer(t.schema.Columns[pk].Name, values[pk])
		if err != nil {
			return err
		}
		if id != rowid {
			return vecerr.Validation("update", fmt.Errorf("%w: %s cannot change from %d to %d", vecerr.ErrImmutableColumn, t.schema.Columns[pk].Name, rowid, id))
		}
	}
	row, err := t.row("update", values)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.destroyed {
		return t.gone("update")
	}
	old, err := t.store.Read(rowid)
	if err != nil {
		return err
	}
	for i, v := range row.Partitions {
		if !scalar.Equal(v, old.Partitions[i]) && !(v.IsNull() && old.Partitions[i].IsNull()) {
			name := t.schema.Columns[t.schema.Partitions[i]].Name
			return vecerr.Validation("update", fmt.Errorf("%w: partition key %q", vecerr.ErrImmutableColumn, name))
		}
	}
	if err := t.apply(rowid, row); err != nil {
		if rerr := t.apply(rowid, old); rerr != nil {
			return vecerr.Consistency("update", errors.Join(err, rerr))
		}
		return err
	}
	t.record(undoEntry{kind: undoUpdate, rowid: rowid, row: old})
	t.logger.DebugContext(ctx, "row updated", "rowid", rowid)
	return nil
}

func (t *Table) apply(rowid int64, row chunk.Row) error {
	for i, v := range row.Vectors {
		if err := t.store.SetVector(rowid, i, v); err != nil {
			return err
		}
	}
	for i, v := range row.Metadata {
		if err := t.store.SetMetadata(rowid, i, v); err != nil {
			return err
		}
	}
	for i, v := range row.Aux {
		if err := t.store.SetAux(rowid, i, v); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes rowid.
func (t *Table) Delete(ctx context.Context, rowid int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.destroyed {
		return t.gone("delete")
	}
	loc, ok := t.store.Lookup(rowid)
	if !ok {
		return vecerr.Validation("delete", fmt.Errorf("%w: %d", vecerr.ErrRowidNotFound, rowid))
	}
	c := t.store.Chunk(loc.Chunk)
	partitions := make([]scalar.Value, len(t.schema.Partitions))
	for col := range partitions {
		partitions[col] = c.Partition(col, loc.Slot)
	}
	if _, err := t.store.Tombstone(rowid); err != nil {
		return err
	}
	for col, v := range partitions {
		t.summary.Remove(loc.Chunk, col, v)
	}
	t.record(undoEntry{kind: undoDelete, rowid: rowid, loc: loc, row: chunk.Row{Partitions: partitions}})
	t.logger.DebugContext(ctx, "row deleted", "rowid", rowid)
	return nil
}

func (t *Table) record(e undoEntry) {
	if t.tx != nil {
		t.tx.undo = append(t.tx.undo, e)
	}
}

// row converts host values into a stored row. Nothing is mutated.
func (t *Table) row(op string, values []any) (chunk.Row, error) {
	s := t.schema
	if len(values) != len(s.Columns) {
		return chunk.Row{}, vecerr.Validationf(op, "expected %d values, got %d", len(s.Columns), len(values))
	}
	row := chunk.Row{
		Vectors:    make([]vector.Vector, len(s.Vectors)),
		Partitions: make([]scalar.Value, len(s.Partitions)),
		Metadata:   make([]scalar.Value, len(s.Metadata)),
		Aux:        make([]scalar.Value, len(s.Aux)),
	}
	for i := range s.Columns {
		col := &s.Columns[i]
		if col.Role == schema.RoleVector {
			v, err := vector.Parse(col.Element, col.Dims, values[i])
			if err != nil {
				var dm *vecerr.DimensionMismatchError
				if errors.As(err, &dm) {
					return chunk.Row{}, vecerr.DimensionMismatch(op, col.Name, dm.Expected, dm.Actual)
				}
				return chunk.Row{}, vecerr.Validation(op, fmt.Errorf("column %q: %w", col.Name, err))
			}
			row.Vectors[col.Index] = v
			continue
		}
		if col.Role == schema.RolePrimaryKey {
			continue
		}
		raw, err := scalar.FromDriver(values[i])
		if err != nil {
			return chunk.Row{}, vecerr.Validation(op, fmt.Errorf("column %q: %w", col.Name, err))
		}
		v, err := col.Coerce(raw)
		if err != nil {
			return chunk.Row{}, err
		}
		switch col.Role {
		case schema.RolePartition:
			row.Partitions[col.Index] = v
		case schema.RoleMetadata:
			row.Metadata[col.Index] = v
		case schema.RoleAux:
			row.Aux[col.Index] = v
		}
	}
	return row, nil
}

func integer(name string, v any) (int64, error) {
	switch actual := v.(type) {
	case int64:
		return actual, nil
	case int:
		return int64(actual), nil
	case float64:
		if actual == math.Trunc(actual) && math.Abs(actual) < 1<<62 {
			return int64(actual), nil
		}
	}
	return 0, vecerr.Validationf("insert", "%s must be an integer, got %v", name, v)
}

// Begin opens a transaction. Deleted slots stay reserved until it ends.
func (t *Table) Begin() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.destroyed {
		return t.gone("begin")
	}
	if t.tx != nil {
		return vecerr.Consistencyf("begin", "transaction already open")
	}
	t.tx = &transaction{nextRowid: t.store.NextRowid()}
	t.store.SetDeferred(true)
	return nil
}

// Sync persists the state of the open transaction.
func (t *Table) Sync(ctx context.Context) error {
	return t.Flush(ctx)
}

// Commit ends the transaction, compacts sparse chunks and persists the result.
func (t *Table) Commit(ctx context.Context) error {
	t.mu.Lock()
	if t.destroyed {
		t.mu.Unlock()
		return nil
	}
	t.tx = nil
	t.store.SetDeferred(false)
	t.store.ReleasePending()
	t.compact(ctx, false)
	t.mu.Unlock()
	return t.Flush(ctx)
}

// Rollback undoes every mutation of the open transaction.
func (t *Table) Rollback(ctx context.Context) error {
	t.mu.Lock()
	if t.destroyed || t.tx == nil {
		t.mu.Unlock()
		return nil
	}
	tx := t.tx
	t.tx = nil
	var errs []error
	for i := len(tx.undo) - 1; i >= 0; i-- {
		if err := t.undo(&tx.undo[i]); err != nil {
			errs = append(errs, err)
		}
	}
	t.store.SetNextRowid(tx.nextRowid)
	t.store.SetDeferred(false)
	t.store.ReleasePending()
	t.compact(ctx, true)
	t.mu.Unlock()
	t.logger.DebugContext(ctx, "transaction rolled back", "undone", len(tx.undo))
	if len(errs) > 0 {
		return vecerr.Consistency("rollback", errors.Join(errs...))
	}
	return t.Flush(ctx)
}

func (t *Table) undo(e *undoEntry) error {
	switch e.kind {
	case undoInsert:
		if err := t.store.Erase(e.rowid); err != nil {
			return err
		}
		for col, v := range e.row.Partitions {
			t.summary.Remove(e.loc.Chunk, col, v)
		}
	case undoDelete:
		if err := t.store.Revive(e.rowid, e.loc); err != nil {
			return err
		}
		for col, v := range e.row.Partitions {
			t.summary.Add(e.loc.Chunk, col, v)
		}
	case undoUpdate:
		return t.apply(e.rowid, e.row)
	}
	return nil
}

// Compact compacts every chunk whose live fraction is below the table
// compact_threshold, releasing empty chunks, and persists the result.
func (t *Table) Compact(ctx context.Context) ([]chunk.Compaction, error) {
	t.mu.Lock()
	if t.destroyed {
		t.mu.Unlock()
		return nil, t.gone("compact")
	}
	if t.tx != nil {
		t.mu.Unlock()
		return nil, vecerr.Validationf("compact", "table %s has an open transaction", t.schema.Table)
	}
	results := t.compact(ctx, false)
	t.mu.Unlock()
	return results, t.Flush(ctx)
}

// compact runs under the write lock. emptyOnly restricts it to chunks
// without live rows.
func (t *Table) compact(ctx context.Context, emptyOnly bool) []chunk.Compaction {
	var results []chunk.Compaction
	threshold := t.schema.Options.CompactThreshold
	for _, c := range t.store.Chunks() {
		live := c.LiveCount()
		if live > 0 && (emptyOnly || float64(live) >= threshold*float64(c.Capacity())) {
			continue
		}
		result, err := t.store.Compact(c.ID)
		if err != nil {
			t.logger.WarnContext(ctx, "compaction failed", "chunk", c.ID, "error", err)
			continue
		}
		if result.Released {
			t.summary.DropChunk(c.ID)
			t.removed = append(t.removed, c.ID)
		}
		t.logger.LogCompaction(ctx, result.Chunk, result.Moved, result.Live, result.Released)
		results = append(results, result)
	}
	return results
}

// Flush writes dirty chunks and the manifest to the backend. Backends that
// defer writes while the host database is locked get another chance to
// apply them.
func (t *Table) Flush(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.destroyed || t.catalog == nil {
		return nil
	}
	dirty := t.store.Dirty()
	if len(dirty) == 0 && len(t.removed) == 0 && t.generation != "" {
		if err := t.catalog.Sync(ctx); err != nil {
			return vecerr.Resource("flush", err)
		}
		return nil
	}
	snaps := make([]chunk.Snapshot, len(dirty))
	for i, c := range dirty {
		snaps[i] = c.Snapshot()
	}
	chunks := t.store.Chunks()
	m := &storage.Manifest{
		Table:      t.key,
		Args:       t.schema.Args,
		NextRowid:  t.store.NextRowid(),
		Chunks:     make([]int64, len(chunks)),
		Generation: storage.NewGeneration(),
	}
	for i, c := range chunks {
		m.Chunks[i] = c.ID
	}
	err := t.catalog.Save(ctx, m, snaps, t.removed, t.compression)
	t.logger.LogFlush(ctx, len(snaps), len(t.removed), err)
	if err != nil {
		return vecerr.Resource("flush", err)
	}
	t.store.MarkClean()
	t.removed = nil
	t.generation = m.Generation
	return nil
}

// Stats describes the current state of a table.
type Stats struct {
	Table       string
	Rows        int
	Chunks      int
	ChunkSize   int
	Slots       int
	Dirty       int
	NextRowid   int64
	Generation  string
	Compression string
}

// Stats returns a summary of the table state.
func (t *Table) Stats() (Stats, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.destroyed {
		return Stats{}, t.gone("stats")
	}
	chunks := t.store.Chunks()
	return Stats{
		Table:       t.schema.Table,
		Rows:        t.store.Len(),
		Chunks:      len(chunks),
		ChunkSize:   t.schema.Options.ChunkSize,
		Slots:       len(chunks) * t.schema.Options.ChunkSize,
		Dirty:       len(t.store.Dirty()),
		NextRowid:   t.store.NextRowid(),
		Generation:  t.generation,
		Compression: t.compression.String(),
	}, nil
}

// Destroy releases the memory of the table. Safe to call more than once and
// on a nil table.
func (t *Table) Destroy() {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.destroyed {
		return
	}
	t.destroyed = true
	t.tx = nil
	t.store.Release()
	if t.summary != nil {
		t.summary.Reset()
	}
}
