package vec

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"weak"

	"modernc.org/sqlite/vtab"

	"github.com/viant/vec0/engine"
	"github.com/viant/vec0/index"
	"github.com/viant/vec0/internal/query"
	"github.com/viant/vec0/storage"
	"github.com/viant/vec0/vecerr"
)

// ModuleName is the name Register installs the module under.
const ModuleName = "vec0"

// Module implements vtab.Module for vec0 tables.
//
// The driver does not tell a module which connection calls it, so a module
// keeps one binding per registered database handle. Create binds a table to
// the most recently registered handle that does not already hold a table of
// that name; SQLite only creates a table that does not exist in the calling
// database, so a live table under the same name belongs to another handle.
type Module struct {
	mu       sync.RWMutex
	bindings []*binding
}

// binding ties a registered database handle to the registry serving it.
type binding struct {
	db       weak.Pointer[sql.DB]
	host     storage.Host
	registry *index.Registry
	// store is the host database backend, nil for in-memory hosts and for
	// registries with their own backend.
	store *storage.SQLite
}

func (b *binding) database(schema string) string { return index.Database(b.host.ID, schema) }

// Registry returns the registry of the most recently registered handle.
func (m *Module) Registry() *index.Registry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.bindings) == 0 {
		return nil
	}
	return m.bindings[0].registry
}

// Database returns the registry database name of schema in the host of the
// most recently registered handle.
func (m *Module) Database(schema string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.bindings) == 0 {
		return schema
	}
	return m.bindings[0].database(schema)
}

// bind resolves the host of db and makes it the preferred binding. A handle
// on a host that is already bound replaces that binding.
func (m *Module) bind(ctx context.Context, db *sql.DB, registry *index.Registry) error {
	host, err := storage.ResolveHost(ctx, db)
	if err != nil {
		return err
	}
	b := &binding{db: weak.Make(db), host: host, registry: registry}
	if host.Durable() && registry.HostStorage() {
		if attached, ok := registry.HostBackend(host.ID); ok {
			b.store, _ = attached.(*storage.SQLite)
		} else {
			if b.store, err = storage.OpenSQLite(ctx, host.File); err != nil {
				return err
			}
			if err := registry.Attach(host.ID, b.store); err != nil {
				_ = b.store.Close()
				return err
			}
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := []*binding{b}
	for _, prev := range m.bindings {
		if prev.host.ID == host.ID || prev.db.Value() == nil || prev.registry.Closed() {
			continue
		}
		kept = append(kept, prev)
	}
	m.bindings = kept
	return nil
}

// candidates returns the usable bindings, most recent first.
func (m *Module) candidates() []*binding {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*binding, 0, len(m.bindings))
	for _, b := range m.bindings {
		if b.registry.Closed() {
			continue
		}
		out = append(out, b)
	}
	return out
}

// forCreate picks the binding of a new table. Among several file hosts
// without the table, the one whose write lock is held is the caller: SQLite
// creates the table inside a write transaction.
func (m *Module) forCreate(schema, name string) (*binding, error) {
	all := m.candidates()
	if len(all) == 0 {
		return nil, vecerr.Validationf("create", "module has no registered database")
	}
	var free []*binding
	for _, b := range all {
		if !b.registry.Live(b.database(schema), name) {
			free = append(free, b)
		}
	}
	switch len(free) {
	case 0:
		return all[0], nil
	case 1:
		return free[0], nil
	}
	for _, b := range free {
		if b.store != nil && b.store.WriteLocked(context.Background()) {
			return b, nil
		}
	}
	return free[0], nil
}

// forConnect picks the binding holding the table, live or persisted, and
// falls back to the most recent one.
func (m *Module) forConnect(ctx context.Context, schema, name string) (*binding, error) {
	all := m.candidates()
	if len(all) == 0 {
		return nil, vecerr.Validationf("connect", "module has no registered database")
	}
	for _, b := range all {
		if b.registry.Live(b.database(schema), name) {
			return b, nil
		}
	}
	for _, b := range all {
		ok, err := b.registry.Exists(ctx, b.database(schema), name)
		if err != nil {
			return nil, err
		}
		if ok {
			return b, nil
		}
	}
	return all[0], nil
}

var (
	modulesMu sync.Mutex
	modules   = map[string]*Module{}
)

// The default module is installed before any connection is opened so every
// connection of a later registered handle carries it.
func init() {
	if _, err := module(ModuleName); err != nil {
		panic(err)
	}
}

// module returns the module registered under name, installing an unbound one
// with the driver on first use. Runs under modulesMu or from init.
func module(name string) (*Module, error) {
	if mod, ok := modules[name]; ok {
		return mod, nil
	}
	mod := &Module{}
	if err := vtab.RegisterModule(nil, name, mod); err != nil {
		if !strings.Contains(err.Error(), "already registered") {
			return nil, fmt.Errorf("vec0: register module %s: %w", name, err)
		}
	}
	modules[name] = mod
	return mod, nil
}

var (
	defaultOnce     sync.Once
	defaultRegistry *index.Registry
)

// DefaultRegistry returns the process wide registry used by Register.
// Options apply on the first call only.
func DefaultRegistry(opts ...index.Option) *index.Registry {
	defaultOnce.Do(func() { defaultRegistry = index.NewRegistry(opts...) })
	return defaultRegistry
}

// Register installs the vec0 module for db backed by the default registry.
// Module registration is process wide and applies to connections opened
// afterwards.
func Register(db *sql.DB, opts ...index.Option) error {
	_, err := RegisterAs(db, ModuleName, DefaultRegistry(opts...))
	return err
}

// RegisterAs installs a module named name serving db from registry, together
// with the vec_* scalar functions. Registering the name again for another
// handle adds a binding; tables connected earlier keep theirs. The driver
// installs a module on connections opened after its first registration, so a
// custom name must be registered before db opens its first connection. It
// queries db, so it must be called outside of statements running on db.
func RegisterAs(db *sql.DB, name string, registry *index.Registry) (*Module, error) {
	if err := engine.RegisterVectorFunctions(db); err != nil {
		return nil, err
	}
	modulesMu.Lock()
	defer modulesMu.Unlock()
	mod, err := module(name)
	if err != nil {
		return nil, err
	}
	if err := mod.bind(context.Background(), db, registry); err != nil {
		return nil, err
	}
	return mod, nil
}

// Table is the connection handle of a vec0 table.
type Table struct {
	registry *index.Registry
	db       string
	table    *index.Table
}

// Create declares a new table. args are the module name, the database name,
// the table name and the declaration entries.
func (m *Module) Create(ctx vtab.Context, args []string) (vtab.Table, error) {
	return m.open(ctx, args, true)
}

// Connect attaches to an existing table, loading persisted state when no
// other connection holds it.
func (m *Module) Connect(ctx vtab.Context, args []string) (vtab.Table, error) {
	return m.open(ctx, args, false)
}

func (m *Module) open(ctx vtab.Context, args []string, create bool) (vtab.Table, error) {
	if len(args) < 3 {
		return nil, fmt.Errorf("vec0: expected at least 3 module arguments, got %d", len(args))
	}
	if err := ctx.EnableConstraintSupport(); err != nil {
		return nil, fmt.Errorf("vec0: enable constraint support: %w", err)
	}
	schemaName, name, decl := args[1], args[2], args[3:]
	bg := context.Background()
	var (
		b   *binding
		t   *index.Table
		err error
	)
	if create {
		b, err = m.forCreate(schemaName, name)
	} else {
		b, err = m.forConnect(bg, schemaName, name)
	}
	if err != nil {
		return nil, err
	}
	registry, db := b.registry, b.database(schemaName)
	if create {
		t, err = registry.Create(bg, db, name, decl)
	} else {
		t, err = registry.Connect(bg, db, name, decl)
	}
	if err != nil {
		return nil, err
	}
	if err := ctx.Declare(t.Schema().DeclareSQL()); err != nil {
		if create {
			_ = registry.Drop(bg, db, name)
		} else {
			_ = registry.Disconnect(bg, t)
		}
		return nil, fmt.Errorf("vec0: declare %s: %w", name, err)
	}
	return &Table{registry: registry, db: db, table: t}, nil
}

// Index returns the underlying table instance.
func (t *Table) Index() *index.Table { return t.table }

var ops = map[vtab.ConstraintOp]query.Op{
	vtab.OpEQ:    query.OpEq,
	vtab.OpNE:    query.OpNe,
	vtab.OpLT:    query.OpLt,
	vtab.OpLE:    query.OpLe,
	vtab.OpGT:    query.OpGt,
	vtab.OpGE:    query.OpGe,
	vtab.OpMATCH: query.OpMatch,
	vtab.OpLIMIT: query.OpLimit,
}

// BestIndex maps the offered constraints onto a KNN, rowid or full scan plan.
func (t *Table) BestIndex(info *vtab.IndexInfo) error {
	offers := make([]query.Offer, len(info.Constraints))
	for i, c := range info.Constraints {
		offers[i] = query.Offer{Column: c.Column, Op: ops[c.Op], Usable: c.Usable}
	}
	orderBy := make([]query.Order, len(info.OrderBy))
	for i, o := range info.OrderBy {
		orderBy[i] = query.Order{Column: o.Column, Desc: o.Desc}
	}
	choice, err := query.Best(t.table.Schema(), offers, orderBy)
	if err != nil {
		return err
	}
	for i := range info.Constraints {
		info.Constraints[i].ArgIndex = choice.Use[i]
		info.Constraints[i].Omit = choice.Omit[i]
	}
	info.IdxNum = int64(choice.Plan.Strategy)
	info.IdxStr = choice.Plan.Encode()
	info.OrderByConsumed = choice.OrderConsumed
	info.EstimatedCost = choice.Cost
	info.EstimatedRows = choice.Rows
	if choice.Unique {
		info.IdxFlags |= vtab.IndexScanUnique
	}
	return nil
}

// Open allocates a new cursor.
func (t *Table) Open() (vtab.Cursor, error) {
	return &Cursor{table: t, cursor: query.NewCursor(t.table)}, nil
}

// Disconnect releases this connection's reference.
func (t *Table) Disconnect() error {
	return t.registry.Disconnect(context.Background(), t.table)
}

// Destroy drops the table and its persisted state.
func (t *Table) Destroy() error {
	return t.registry.Drop(context.Background(), t.db, t.table.Name())
}

// Rename handles ALTER TABLE ... RENAME TO.
func (t *Table) Rename(newName string) error {
	return t.registry.Rename(context.Background(), t.db, t.table.Name(), newName)
}

// Begin opens a transaction.
func (t *Table) Begin() error { return t.table.Begin() }

// Sync persists the transaction state.
func (t *Table) Sync() error { return t.table.Sync(context.Background()) }

// Commit ends the transaction.
func (t *Table) Commit() error { return t.table.Commit(context.Background()) }

// Rollback undoes the transaction.
func (t *Table) Rollback() error { return t.table.Rollback(context.Background()) }

// Insert adds a row and reports its rowid.
func (t *Table) Insert(cols []vtab.Value, rowid *int64) error {
	id, values, err := t.row(cols, true)
	if err != nil {
		return err
	}
	id, err = t.table.Insert(context.Background(), id, values)
	if err != nil {
		return err
	}
	*rowid = id
	return nil
}

// Update replaces the values of oldRowid.
func (t *Table) Update(oldRowid int64, cols []vtab.Value, newRowid *int64) error {
	id, values, err := t.row(cols, false)
	if err != nil {
		return err
	}
	if id == 0 {
		id = oldRowid
	}
	if err := t.table.Update(context.Background(), oldRowid, id, values); err != nil {
		return err
	}
	*newRowid = id
	return nil
}

// Delete removes oldRowid.
func (t *Table) Delete(oldRowid int64) error {
	return t.table.Delete(context.Background(), oldRowid)
}

// row splits the values the driver hands to xUpdate: argv[1:argc-1], i.e.
// the new rowid followed by every host column but the trailing hidden k.
// Inserts must leave the hidden columns NULL; updates carry their current
// values, which are ignored.
func (t *Table) row(cols []vtab.Value, insert bool) (int64, []any, error) {
	s := t.table.Schema()
	if len(cols) < len(s.Columns)+1 {
		return 0, nil, vecerr.Validationf("write", "expected %d values, got %d", len(s.Columns)+1, len(cols))
	}
	var rowid int64
	switch v := cols[0].(type) {
	case nil:
	case int64:
		rowid = v
	default:
		return 0, nil, vecerr.Validationf("write", "rowid must be an integer, got %T", cols[0])
	}
	for _, hidden := range cols[1+len(s.Columns):] {
		if insert && hidden != nil {
			return 0, nil, vecerr.Validationf("write", "distance and k are query-only columns")
		}
	}
	values := make([]any, len(s.Columns))
	for i := range values {
		values[i] = cols[1+i]
	}
	return rowid, values, nil
}

// Cursor scans results of one vec0 query.
type Cursor struct {
	table  *Table
	cursor *query.Cursor
}

// Filter binds the constraint values chosen in BestIndex and runs the query.
func (c *Cursor) Filter(idxNum int, idxStr string, vals []vtab.Value) error {
	plan, err := query.DecodePlan(query.Strategy(idxNum), idxStr)
	if err != nil {
		return err
	}
	args := make([]any, len(vals))
	for i, v := range vals {
		args[i] = v
	}
	return c.cursor.Filter(plan, args)
}

// Next advances the cursor.
func (c *Cursor) Next() error { return c.cursor.Next() }

// Eof reports end-of-rows.
func (c *Cursor) Eof() bool { return c.cursor.Eof() }

// Column returns the value of a column in the current row.
func (c *Cursor) Column(col int) (vtab.Value, error) { return c.cursor.Column(col) }

// Rowid returns the current rowid.
func (c *Cursor) Rowid() (int64, error) { return c.cursor.Rowid() }

// Close releases the query state.
func (c *Cursor) Close() error { return c.cursor.Close() }
