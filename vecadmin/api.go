package vecadmin

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"
	"weak"

	"github.com/viant/vec0/index"
	"github.com/viant/vec0/storage"
	"modernc.org/sqlite/vtab"
)

// ModuleName is the name Register installs the admin module under.
const ModuleName = "vec_admin"

// Module provides administrative operations on vec0 tables via a virtual table.
// Usage:
//
//	CREATE VIRTUAL TABLE vec_admin USING vec_admin(op);
//	SELECT op, target, chunk, value FROM vec_admin WHERE op MATCH 'compact:docs';
//
// Supported commands are compact:<table>, flush:<table> and stats:<table>,
// where <table> may be qualified as <db>.<table>. Each command returns one
// row per result.
type Module struct {
	mu       sync.RWMutex
	bindings []*binding
}

type binding struct {
	db       weak.Pointer[sql.DB]
	host     string
	registry *index.Registry
}

type Table struct{ module *Module }

var module = &Module{}

func init() {
	if err := vtab.RegisterModule(nil, ModuleName, module); err != nil && !strings.Contains(err.Error(), "already registered") {
		panic(err)
	}
}

type Cursor struct {
	table *Table
	rows  []Row
	pos   int
}

// Row is one result of an admin command.
type Row struct {
	Op     string
	Target string
	// Chunk is the chunk id the row reports on, or -1.
	Chunk int64
	Value string
}

// Register binds the admin module to the tables registry serves from db. The
// module is installed with the driver when the package loads. Registering
// another handle adds it; commands run against the most recently registered
// handle holding the target table. It queries db, so it must be called
// outside of statements running on db.
func Register(db *sql.DB, registry *index.Registry) error {
	host, err := storage.ResolveHost(context.Background(), db)
	if err != nil {
		return err
	}
	module.mu.Lock()
	defer module.mu.Unlock()
	kept := []*binding{{db: weak.Make(db), host: host.ID, registry: registry}}
	for _, b := range module.bindings {
		if b.host == host.ID || b.db.Value() == nil || b.registry.Closed() {
			continue
		}
		kept = append(kept, b)
	}
	module.bindings = kept
	return nil
}

// run executes text on the first binding holding its target table.
func (m *Module) run(ctx context.Context, text string) ([]Row, error) {
	m.mu.RLock()
	bindings := slices.Clone(m.bindings)
	m.mu.RUnlock()
	if len(bindings) == 0 {
		return nil, fmt.Errorf("vec0: vec_admin: no registered database")
	}
	cmd, err := parse(text)
	if err != nil {
		return nil, err
	}
	chosen := bindings[0]
	for _, b := range bindings {
		if !b.registry.Closed() && b.registry.Live(index.Database(b.host, cmd.schema), cmd.name) {
			chosen = b
			break
		}
	}
	return Run(ctx, chosen.registry, chosen.host, text)
}

func (m *Module) Create(ctx vtab.Context, args []string) (vtab.Table, error) {
	return m.Connect(ctx, args)
}

func (m *Module) Connect(ctx vtab.Context, args []string) (vtab.Table, error) {
	if len(args) < 3 {
		return nil, fmt.Errorf("vec0: vec_admin: need at least 3 args")
	}
	if err := ctx.Declare(fmt.Sprintf("CREATE TABLE %s(op, target, chunk, value)", args[2])); err != nil {
		return nil, err
	}
	return &Table{module: m}, nil
}

func (t *Table) BestIndex(info *vtab.IndexInfo) error {
	for i := range info.Constraints {
		c := &info.Constraints[i]
		if !c.Usable {
			continue
		}
		if c.Column == 0 && c.Op == vtab.OpMATCH {
			c.ArgIndex, c.Omit = 0, true
			info.IdxNum = 1
			info.EstimatedCost = 1
			return nil
		}
	}
	info.EstimatedCost = 1e9
	return nil
}

func (t *Table) Open() (vtab.Cursor, error) { return &Cursor{table: t}, nil }
func (t *Table) Disconnect() error           { return nil }
func (t *Table) Destroy() error              { return nil }

func (c *Cursor) Filter(idxNum int, _ string, vals []vtab.Value) error {
	c.rows = nil
	c.pos = 0
	if idxNum != 1 || len(vals) == 0 || vals[0] == nil {
		return nil
	}
	command, ok := vals[0].(string)
	if !ok {
		return fmt.Errorf("vec0: vec_admin: MATCH expects '<command>:<table>' as TEXT")
	}
	rows, err := c.table.module.run(context.Background(), command)
	if err != nil {
		return err
	}
	c.rows = rows
	return nil
}

func (c *Cursor) Next() error {
	if c.pos < len(c.rows) {
		c.pos++
	}
	return nil
}

func (c *Cursor) Eof() bool { return c.pos >= len(c.rows) }

func (c *Cursor) Column(col int) (vtab.Value, error) {
	if c.pos < 0 || c.pos >= len(c.rows) {
		return nil, fmt.Errorf("vec0: vec_admin: Column out of range")
	}
	row := c.rows[c.pos]
	switch col {
	case 0:
		return row.Op, nil
	case 1:
		return row.Target, nil
	case 2:
		if row.Chunk < 0 {
			return nil, nil
		}
		return row.Chunk, nil
	case 3:
		return row.Value, nil
	}
	return nil, nil
}

func (c *Cursor) Rowid() (int64, error) { return int64(c.pos + 1), nil }
func (c *Cursor) Close() error          { c.rows = nil; c.pos = 0; return nil }

type command struct {
	op, target, schema, name string
}

// parse splits '<command>:<table>' or '<command>:<db>.<table>'.
func parse(text string) (command, error) {
	op, target, ok := strings.Cut(strings.TrimSpace(text), ":")
	if !ok || target == "" {
		return command{}, fmt.Errorf("vec0: vec_admin: malformed command %q, want <command>:<table>", text)
	}
	cmd := command{op: strings.ToLower(op), target: target}
	var qualified bool
	if cmd.schema, cmd.name, qualified = strings.Cut(target, "."); !qualified {
		cmd.schema, cmd.name = "main", target
	}
	return cmd, nil
}

// Run executes one admin command against registry. host is the identity of
// the host database the table lives in, see storage.ResolveHost; an empty
// host addresses tables created through the Go API.
func Run(ctx context.Context, registry *index.Registry, host, text string) ([]Row, error) {
	cmd, err := parse(text)
	if err != nil {
		return nil, err
	}
	target := cmd.target
	db := cmd.schema
	if host != "" {
		db = index.Database(host, cmd.schema)
	}
	t, err := registry.Lookup(db, cmd.name)
	if err != nil {
		return nil, err
	}
	switch cmd.op {
	case "compact":
		results, err := t.Compact(ctx)
		if err != nil {
			return nil, err
		}
		rows := make([]Row, 0, len(results))
		for _, r := range results {
			value := "live=" + strconv.Itoa(r.Live) + " moved=" + strconv.Itoa(r.Moved)
			if r.Released {
				value = "released"
			}
			rows = append(rows, Row{Op: "compacted", Target: target, Chunk: r.Chunk, Value: value})
		}
		return rows, nil
	case "flush":
		if err := t.Flush(ctx); err != nil {
			return nil, err
		}
		stats, err := t.Stats()
		if err != nil {
			return nil, err
		}
		return []Row{{Op: "flushed", Target: target, Chunk: -1, Value: stats.Generation}}, nil
	case "stats":
		stats, err := t.Stats()
		if err != nil {
			return nil, err
		}
		pairs := []struct {
			key, value string
		}{
			{"rows", strconv.Itoa(stats.Rows)},
			{"chunks", strconv.Itoa(stats.Chunks)},
			{"chunk_size", strconv.Itoa(stats.ChunkSize)},
			{"slots", strconv.Itoa(stats.Slots)},
			{"dirty", strconv.Itoa(stats.Dirty)},
			{"next_rowid", strconv.FormatInt(stats.NextRowid, 10)},
			{"generation", stats.Generation},
			{"compression", stats.Compression},
		}
		rows := make([]Row, len(pairs))
		for i, p := range pairs {
			rows[i] = Row{Op: p.key, Target: target, Chunk: -1, Value: p.value}
		}
		return rows, nil
	}
	return nil, fmt.Errorf("vec0: vec_admin: unknown command %q, want compact, flush or stats", cmd.op)
}
