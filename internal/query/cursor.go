package query

import (
	"fmt"

	"github.com/viant/vec0/internal/chunk"
	"github.com/viant/vec0/internal/knn"
	"github.com/viant/vec0/internal/metaindex"
	"github.com/viant/vec0/internal/resource"
	"github.com/viant/vec0/schema"
	"github.com/viant/vec0/vecerr"
)

// Table is the table view a cursor reads through. View runs fn with the
// table's store and partition summary held stable for its duration.
type Table interface {
	Schema() *schema.Schema
	Controller() *resource.Controller
	View(fn func(store *chunk.Store, summary *metaindex.Index) error) error
}

// CursorState is a cursor lifecycle state.
type CursorState uint8

const (
	Init CursorState = iota
	Planning
	Scanning
	Exhausted
	Closed
)

func (s CursorState) String() string {
	switch s {
	case Init:
		return "INIT"
	case Planning:
		return "PLANNING"
	case Scanning:
		return "SCANNING"
	case Exhausted:
		return "EXHAUSTED"
	case Closed:
		return "CLOSED"
	}
	return fmt.Sprintf("CursorState(%d)", uint8(s))
}

// Cursor iterates the rows of one query.
type Cursor struct {
	table   Table
	state   CursorState
	query   *State
	results []knn.Neighbor
	pos     int

	loc      chunk.Location
	rowid    int64
	distance float64
}

// NewCursor returns a cursor in the INIT state.
func NewCursor(t Table) *Cursor {
	return &Cursor{table: t}
}

// State returns the lifecycle state.
func (c *Cursor) State() CursorState { return c.state }

// Query returns the active query state, or nil.
func (c *Cursor) Query() *State { return c.query }

// Filter binds host values to plan and starts the query.
func (c *Cursor) Filter(p Plan, vals []any) error {
	if c.state == Closed {
		return vecerr.Consistencyf("filter", "cursor is closed")
	}
	c.reset()
	c.state = Planning
	req, err := Bind(c.table.Schema(), p, vals)
	if err != nil {
		c.state = Exhausted
		return err
	}
	return c.start(req)
}

// Start runs a request built outside the host constraint protocol.
func (c *Cursor) Start(req Request) error {
	if c.state == Closed {
		return vecerr.Consistencyf("filter", "cursor is closed")
	}
	c.reset()
	c.state = Planning
	return c.start(req)
}

func (c *Cursor) start(req Request) error {
	st, err := Prepare(c.table.Schema(), c.table.Controller(), req)
	if err != nil {
		c.state = Exhausted
		return err
	}
	c.query = st
	c.state = Scanning
	err = c.table.View(func(store *chunk.Store, summary *metaindex.Index) error {
		if st.Strategy == KnnScan {
			results, err := st.Search(store, summary)
			if err != nil {
				return err
			}
			c.results = results
			return nil
		}
		st.prune(summary)
		c.seek(store, chunk.Location{})
		return nil
	})
	if err != nil {
		c.state = Exhausted
		return err
	}
	if st.Strategy == KnnScan {
		c.pos = 0
		c.current()
	}
	return nil
}

func (c *Cursor) current() {
	if c.pos >= len(c.results) {
		c.state = Exhausted
		return
	}
	c.rowid, c.distance = c.results[c.pos].Rowid, c.results[c.pos].Distance
}

func (c *Cursor) seek(store *chunk.Store, from chunk.Location) {
	loc, rowid, ok := c.query.Seek(store, from)
	if !ok {
		c.state = Exhausted
		return
	}
	c.loc, c.rowid = loc, rowid
}

// Next advances to the next row.
func (c *Cursor) Next() error {
	if c.state != Scanning {
		return nil
	}
	switch c.query.Strategy {
	case KnnScan:
		c.pos++
		c.current()
		return nil
	case RowidLookup:
		c.state = Exhausted
		return nil
	}
	return c.table.View(func(store *chunk.Store, _ *metaindex.Index) error {
		c.seek(store, chunk.Location{Chunk: c.loc.Chunk, Slot: c.loc.Slot + 1})
		return nil
	})
}

// Eof reports whether the cursor has no current row.
func (c *Cursor) Eof() bool { return c.state != Scanning }

// Rowid returns the rowid of the current row.
func (c *Cursor) Rowid() (int64, error) {
	if c.state != Scanning {
		return 0, vecerr.Consistencyf("rowid", "cursor has no current row")
	}
	return c.rowid, nil
}

// Distance returns the distance of the current row of a KNN query.
func (c *Cursor) Distance() (float64, bool) {
	if c.state != Scanning || c.query.Strategy != KnnScan {
		return 0, false
	}
	return c.distance, true
}

// Column returns host column i of the current row. Values are read on
// request; a row deleted since it was produced reads as NULL.
func (c *Cursor) Column(i int) (any, error) {
	if c.state != Scanning {
		return nil, vecerr.Consistencyf("column", "cursor has no current row")
	}
	s := c.table.Schema()
	switch {
	case i == s.DistanceColumn():
		if d, ok := c.Distance(); ok {
			return d, nil
		}
		return nil, nil
	case i == s.KColumn():
		if c.query.Strategy == KnnScan {
			return int64(c.query.K), nil
		}
		return nil, nil
	case i < 0 || i > s.KColumn():
		return nil, vecerr.Validationf("column", "column index %d out of range", i)
	}
	col := &s.Columns[i]
	if col.Role == schema.RolePrimaryKey {
		return c.rowid, nil
	}
	var value any
	err := c.table.View(func(store *chunk.Store, _ *metaindex.Index) error {
		loc, ok := c.locate(store)
		if !ok {
			return nil
		}
		ch := store.Chunk(loc.Chunk)
		switch col.Role {
		case schema.RoleVector:
			v, err := store.ReadVector(loc, col.Index)
			if err != nil {
				return err
			}
			value = v.Encode()
		case schema.RolePartition:
			value = ch.Partition(col.Index, loc.Slot).Driver()
		case schema.RoleMetadata:
			value = ch.Metadata(col.Index, loc.Slot).Driver()
		case schema.RoleAux:
			value = ch.Aux(col.Index, loc.Slot).Driver()
		}
		return nil
	})
	return value, err
}

func (c *Cursor) locate(store *chunk.Store) (chunk.Location, bool) {
	if c.query.Strategy != KnnScan {
		if ch := store.Chunk(c.loc.Chunk); ch != nil && ch.Live(c.loc.Slot) && ch.Rowid(c.loc.Slot) == c.rowid {
			return c.loc, true
		}
	}
	return store.Lookup(c.rowid)
}

func (c *Cursor) reset() {
	c.query.Release()
	c.query = nil
	c.results = nil
	c.pos = 0
	c.loc = chunk.Location{}
	c.rowid, c.distance = 0, 0
}

// Close releases the query state. Safe to call more than once.
func (c *Cursor) Close() error {
	if c.state == Closed {
		return nil
	}
	c.reset()
	c.state = Closed
	return nil
}
