package index

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/viant/vec0/internal/resource"
	"github.com/viant/vec0/logging"
	"github.com/viant/vec0/schema"
	"github.com/viant/vec0/storage"
	"github.com/viant/vec0/vecerr"
)

// Registry holds the tables of a process keyed by database and table name.
//
// A database name is a schema name such as "main", optionally qualified by
// the host database it lives in (see Database). Tables of an attached host
// are persisted in that host; every other table is persisted in the
// registry backend.
type Registry struct {
	mu       sync.Mutex
	tables   map[string]*Table
	catalog  *storage.Catalog
	explicit bool
	hosts    map[string]*storage.Catalog
	ctrl     *resource.Controller
	logger   *logging.Logger
	limit    int64
	closed   bool
}

// Option configures a Registry.
type Option func(*Registry)

// WithBackend persists every table on backend, attached hosts included. By
// default tables of an attached host are persisted in the host database and
// the others in an in-process storage.Memory.
func WithBackend(backend storage.Backend) Option {
	return func(r *Registry) {
		r.catalog = storage.NewCatalog(backend)
		r.explicit = true
	}
}

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) Option {
	return func(r *Registry) { r.logger = logger }
}

// WithMemoryLimit caps the bytes reserved by all tables and queries; zero
// means unlimited.
func WithMemoryLimit(limit int64) Option {
	return func(r *Registry) { r.limit = limit }
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{tables: map[string]*Table{}, hosts: map[string]*storage.Catalog{}}
	for _, opt := range opts {
		opt(r)
	}
	if r.catalog == nil {
		r.catalog = storage.NewCatalog(storage.NewMemory())
	}
	if r.logger == nil {
		r.logger = logging.NoopLogger()
	}
	r.ctrl = resource.NewController(resource.Config{MemoryLimitBytes: r.limit})
	return r
}

// Controller returns the memory controller shared by the registry tables.
func (r *Registry) Controller() *resource.Controller { return r.ctrl }

// Logger returns the registry logger.
func (r *Registry) Logger() *logging.Logger { return r.logger }

// Database qualifies schema with the identity of its host database, as
// reported by storage.ResolveHost.
func Database(host, schema string) string {
	if schema == "" {
		schema = "main"
	}
	return host + "|" + schema
}

func tableKey(db, name string) string {
	if db == "" {
		db = "main"
	}
	return strings.ToLower(db) + "." + strings.ToLower(name)
}

// locate returns the registry key of a table, the catalog persisting it and
// its key in that catalog. Attached hosts store tables under keys relative
// to the host.
func (r *Registry) locate(db, name string) (string, *storage.Catalog, string) {
	key := tableKey(db, name)
	if host, schema, ok := strings.Cut(db, "|"); ok && !r.explicit {
		if cat, ok := r.hosts[host]; ok {
			return key, cat, tableKey(schema, name)
		}
	}
	return key, r.catalog, key
}

// HostStorage reports whether attached hosts persist their own tables, that
// is whether the registry was built without WithBackend.
func (r *Registry) HostStorage() bool { return !r.explicit }

// Attach persists the tables of host in backend. Attaching a host again
// closes the backend it replaces.
func (r *Registry) Attach(host string, backend storage.Backend) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return vecerr.Validationf("attach", "registry is closed")
	}
	prev, ok := r.hosts[host]
	r.hosts[host] = storage.NewCatalog(backend)
	if ok && prev.Backend() != backend {
		if err := prev.Backend().Close(); err != nil {
			return vecerr.Resource("attach", err)
		}
	}
	r.logger.Debug("host attached", "host", host)
	return nil
}

// HostBackend returns the backend attached for host.
func (r *Registry) HostBackend(host string) (storage.Backend, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cat, ok := r.hosts[host]
	if !ok {
		return nil, false
	}
	return cat.Backend(), true
}

// Live reports whether a connection holds the table.
func (r *Registry) Live(db, name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.tables[tableKey(db, name)]
	return ok
}

// Exists reports whether the table is connected or has persisted state.
func (r *Registry) Exists(ctx context.Context, db, name string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key, cat, stored := r.locate(db, name)
	if _, ok := r.tables[key]; ok {
		return true, nil
	}
	_, err := cat.Manifest(ctx, stored)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, storage.ErrNotFound):
		return false, nil
	}
	return false, err
}

// Closed reports whether Close was called.
func (r *Registry) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// Create builds a new table from its declaration entries. Persisted state
// left under the same name is discarded.
func (r *Registry) Create(ctx context.Context, db, name string, args []string) (*Table, error) {
	s, err := schema.Parse(name, args)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	key, cat, stored := r.locate(db, name)
	if _, ok := r.tables[key]; ok {
		return nil, vecerr.Validationf("create", "table %q already exists", name)
	}
	if err := cat.Drop(ctx, stored); err != nil {
		return nil, vecerr.Resource("create", err)
	}
	t, err := r.newTable(db, s, cat, stored)
	if err != nil {
		return nil, err
	}
	if err := t.Flush(ctx); err != nil {
		t.Destroy()
		return nil, err
	}
	t.refs = 1
	r.tables[key] = t
	t.logger.InfoContext(ctx, "table created", "columns", len(s.Columns), "chunk_size", s.Options.ChunkSize)
	return t, nil
}

// Connect returns the table registered under name, loading it from the
// backend when no connection holds it. A table that was never persisted is
// recreated empty from args.
func (r *Registry) Connect(ctx context.Context, db, name string, args []string) (*Table, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := tableKey(db, name)
	if t, ok := r.tables[key]; ok {
		t.refs++
		return t, nil
	}
	t, err := r.load(ctx, db, name, args)
	if err != nil {
		return nil, err
	}
	t.refs = 1
	r.tables[key] = t
	return t, nil
}

func (r *Registry) load(ctx context.Context, db, name string, args []string) (*Table, error) {
	_, cat, stored := r.locate(db, name)
	m, snaps, err := cat.Load(ctx, stored)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		s, err := schema.Parse(name, args)
		if err != nil {
			return nil, err
		}
		t, err := r.newTable(db, s, cat, stored)
		if err != nil {
			return nil, err
		}
		t.logger.WarnContext(ctx, "no persisted state, starting empty")
		return t, nil
	case err != nil:
		return nil, err
	}
	if len(args) == 0 {
		args = m.Args
	}
	s, err := schema.Parse(name, args)
	if err != nil {
		return nil, err
	}
	t, err := r.newTable(db, s, cat, stored)
	if err != nil {
		return nil, err
	}
	if err := t.restore(m, snaps); err != nil {
		t.Destroy()
		return nil, err
	}
	t.logger.InfoContext(ctx, "table loaded", "rows", t.store.Len(), "chunks", len(snaps), "generation", m.Generation)
	return t, nil
}

// Disconnect drops one reference to the table. The last reference flushes
// the table and releases its memory.
func (r *Registry) Disconnect(ctx context.Context, t *Table) error {
	if t == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if t.refs--; t.refs > 0 {
		return nil
	}
	key := tableKey(t.db, t.schema.Table)
	if r.tables[key] == t {
		delete(r.tables, key)
	}
	err := t.Flush(ctx)
	t.Destroy()
	return err
}

// Drop destroys the table and its persisted state. Dropping a table that
// does not exist is not an error.
func (r *Registry) Drop(ctx context.Context, db, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key, cat, stored := r.locate(db, name)
	if t, ok := r.tables[key]; ok {
		delete(r.tables, key)
		t.Destroy()
	}
	if err := cat.Drop(ctx, stored); err != nil {
		return vecerr.Resource("drop", err)
	}
	r.logger.InfoContext(ctx, "table dropped", "table", name)
	return nil
}

// Rename moves the table and its persisted state to a new name.
func (r *Registry) Rename(ctx context.Context, db, from, to string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	fromKey, cat, fromStored := r.locate(db, from)
	toKey, _, toStored := r.locate(db, to)
	if _, ok := r.tables[toKey]; ok {
		return vecerr.Validationf("rename", "table %q already exists", to)
	}
	t, ok := r.tables[fromKey]
	if ok {
		if err := t.Flush(ctx); err != nil {
			return err
		}
	}
	if err := cat.Rename(ctx, fromStored, toStored); err != nil {
		return vecerr.Resource("rename", err)
	}
	if ok {
		delete(r.tables, fromKey)
		t.rename(to, toStored)
		r.tables[toKey] = t
	}
	r.logger.InfoContext(ctx, "table renamed", "from", from, "to", to)
	return nil
}

// Lookup returns a connected table.
func (r *Registry) Lookup(db, name string) (*Table, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.tables[tableKey(db, name)]; ok {
		return t, nil
	}
	return nil, vecerr.Validation("lookup", fmt.Errorf("%w: %s", vecerr.ErrTableNotFound, name))
}

// Tables returns the keys of connected tables in sorted order.
func (r *Registry) Tables() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := make([]string, 0, len(r.tables))
	for key := range r.tables {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys
}

// Persisted returns the names of the tables of db with persisted state,
// whether connected or not.
func (r *Registry) Persisted(ctx context.Context, db string) ([]string, error) {
	r.mu.Lock()
	_, cat, prefix := r.locate(db, "")
	r.mu.Unlock()
	keys, err := cat.Tables(ctx)
	if err != nil {
		return nil, vecerr.Resource("list", err)
	}
	var names []string
	for _, key := range keys {
		if name, ok := strings.CutPrefix(key, prefix); ok {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names, nil
}

// Close flushes and releases every table, then closes the backend.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var errs []error
	if r.closed {
		return nil
	}
	r.closed = true
	for key, t := range r.tables {
		if err := t.Flush(ctx); err != nil {
			errs = append(errs, err)
		}
		t.Destroy()
		delete(r.tables, key)
	}
	for host, cat := range r.hosts {
		if err := cat.Backend().Close(); err != nil {
			errs = append(errs, err)
		}
		delete(r.hosts, host)
	}
	if err := r.catalog.Backend().Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (r *Registry) newTable(db string, s *schema.Schema, cat *storage.Catalog, key string) (*Table, error) {
	compression, err := storage.ParseCompression(s.Options.Compression)
	if err != nil {
		return nil, vecerr.Validation("create", err)
	}
	t := &Table{
		db:          db,
		schema:      s,
		ctrl:        r.ctrl,
		catalog:     cat,
		key:         key,
		compression: compression,
		logger:      r.logger.WithTable(s.Table),
	}
	if err := t.init(); err != nil {
		return nil, err
	}
	return t, nil
}
