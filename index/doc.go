// Package index manages the lifecycle of vec0 tables: creation from a
// declaration, connection to persisted state, mutation under transactions,
// compaction, persistence and destruction.
//
// Tables live in a Registry keyed by database and table name so that every
// connection of a process shares one in-memory instance:
//
//	reg := index.NewRegistry(index.WithBackend(storage.NewMemory()))
//	t, err := reg.Create(ctx, "main", "items", []string{"embedding float[2]"})
//	rowid, err := t.Insert(ctx, 0, []any{"[1,0]"})
//	hits, err := t.Query(ctx, index.Search{Column: "embedding", Vector: "[1,0]", K: 2})
package index
