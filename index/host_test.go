package index

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viant/vec0/storage"
)

func TestRegistryIsolatesHosts(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry()
	defer reg.Close(ctx)

	first, second := Database("memory:a", "main"), Database("memory:b", "main")
	a, err := reg.Create(ctx, first, "items", []string{"embedding float[2]"})
	require.NoError(t, err)
	b, err := reg.Create(ctx, second, "items", []string{"embedding float[2]"})
	require.NoError(t, err)

	_, err = a.Insert(ctx, 1, []any{"[1,0]"})
	require.NoError(t, err)
	_, err = b.Insert(ctx, 5, []any{"[1,0]"})
	require.NoError(t, err)
	_, err = b.Insert(ctx, 6, []any{"[0,1]"})
	require.NoError(t, err)

	hits, err := a.Query(ctx, Search{Column: "embedding", Vector: "[1,0]", K: 10})
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, rowids(hits))
	hits, err = b.Query(ctx, Search{Column: "embedding", Vector: "[1,0]", K: 10})
	require.NoError(t, err)
	assert.Equal(t, []int64{5, 6}, rowids(hits))

	require.NoError(t, reg.Drop(ctx, first, "items"))
	assert.False(t, reg.Live(first, "items"))
	assert.True(t, reg.Live(second, "items"))
	_, err = reg.Lookup(second, "items")
	assert.NoError(t, err)
}

func TestHostStorageSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "host.sqlite")
	db := Database(path, "main")

	reg := NewRegistry()
	store, err := storage.OpenSQLite(ctx, path)
	require.NoError(t, err)
	require.NoError(t, reg.Attach(path, store))
	attached, ok := reg.HostBackend(path)
	require.True(t, ok)
	assert.Same(t, store, attached)

	tbl, err := reg.Create(ctx, db, "items", []string{"embedding float[2]", "genre text partition key"})
	require.NoError(t, err)
	for i, v := range []string{"[1,0]", "[0,1]", "[1,1]"} {
		_, err := tbl.Insert(ctx, int64(i+1), []any{v, "rock"})
		require.NoError(t, err)
	}
	require.NoError(t, tbl.Delete(ctx, 2))
	require.NoError(t, reg.Close(ctx))

	reopened := NewRegistry()
	defer reopened.Close(ctx)
	store, err = storage.OpenSQLite(ctx, path)
	require.NoError(t, err)
	require.NoError(t, reopened.Attach(path, store))

	names, err := reopened.Persisted(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, []string{"items"}, names)

	tbl, err = reopened.Connect(ctx, db, "items", nil)
	require.NoError(t, err)
	hits, err := tbl.Query(ctx, Search{Column: "embedding", Vector: "[1,0]", K: 10})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3}, rowids(hits))
	stats, err := tbl.Stats()
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Rows)
}
