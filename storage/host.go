package storage

import (
	"context"
	"database/sql"
	"fmt"
	"runtime"
	"sync"
	"weak"

	"github.com/google/uuid"
)

// Host identifies the database behind a *sql.DB handle.
type Host struct {
	// ID is the path of the main database file, or memory:<uuid> for a
	// database without a file. Handles on the same file share the ID.
	ID string
	// File is the main database file; empty for in-memory databases.
	File string
}

// Durable reports whether the host keeps its data in a file.
func (h Host) Durable() bool { return h.File != "" }

var memoryHosts sync.Map // weak.Pointer[sql.DB] -> string

// ResolveHost reports the database db is connected to. It runs a query on
// db, so it must not be called while db executes a statement on its only
// connection.
func ResolveHost(ctx context.Context, db *sql.DB) (Host, error) {
	if db == nil {
		return Host{}, fmt.Errorf("vec0: storage: db is nil")
	}
	rows, err := db.QueryContext(ctx, `SELECT name, file FROM pragma_database_list`)
	if err != nil {
		return Host{}, fmt.Errorf("vec0: storage: list databases: %w", err)
	}
	defer rows.Close()
	var file string
	for rows.Next() {
		var name string
		var path sql.NullString
		if err := rows.Scan(&name, &path); err != nil {
			return Host{}, fmt.Errorf("vec0: storage: list databases: %w", err)
		}
		if name == "main" {
			file = path.String
			break
		}
	}
	if err := rows.Err(); err != nil {
		return Host{}, fmt.Errorf("vec0: storage: list databases: %w", err)
	}
	if file != "" {
		return Host{ID: file, File: file}, nil
	}
	key := weak.Make(db)
	if id, ok := memoryHosts.Load(key); ok {
		return Host{ID: id.(string)}, nil
	}
	id, loaded := memoryHosts.LoadOrStore(key, "memory:"+uuid.NewString())
	if !loaded {
		runtime.AddCleanup(db, func(k weak.Pointer[sql.DB]) { memoryHosts.Delete(k) }, key)
	}
	return Host{ID: id.(string)}, nil
}
