package storage

import (
	"context"
	"database/sql"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteKeepsWritesPendingWhileLocked(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "host.sqlite")
	b, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	defer b.Close()

	holder, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer holder.Close()
	conn, err := holder.Conn(ctx)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.ExecContext(ctx, "BEGIN IMMEDIATE")
	require.NoError(t, err)
	assert.True(t, b.WriteLocked(ctx))

	require.NoError(t, b.Set(ctx, "t/manifest", []byte("v1")))
	require.NoError(t, b.Set(ctx, "t/chunk/1", []byte("c1")))
	require.NoError(t, b.Delete(ctx, "t/chunk/1"))
	assert.Equal(t, 2, b.Pending())
	got, err := b.Get(ctx, "t/manifest")
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), got)
	_, err = b.Get(ctx, "t/chunk/1")
	assert.ErrorIs(t, err, ErrNotFound)
	var keys []string
	for e, err := range b.List(ctx, "t/") {
		require.NoError(t, err)
		keys = append(keys, e.Key)
	}
	assert.Equal(t, []string{"t/manifest"}, keys)

	require.NoError(t, b.Sync(ctx))
	assert.Equal(t, 2, b.Pending())

	_, err = conn.ExecContext(ctx, "ROLLBACK")
	require.NoError(t, err)
	assert.False(t, b.WriteLocked(ctx))
	require.NoError(t, b.Sync(ctx))
	assert.Equal(t, 0, b.Pending())

	var value []byte
	require.NoError(t, conn.QueryRowContext(ctx, `SELECT value FROM `+StorageTable+` WHERE key = ?`, "t/manifest").Scan(&value))
	assert.Equal(t, []byte("v1"), value)
	var count int
	require.NoError(t, conn.QueryRowContext(ctx, `SELECT count(*) FROM `+StorageTable).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestSQLiteReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "host.sqlite")
	b, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	require.NoError(t, b.BatchSet(ctx, []Entry{{Key: "a", Value: []byte("1")}, {Key: "b", Value: []byte("2")}}))
	require.NoError(t, b.Close())

	b, err = OpenSQLite(ctx, path)
	require.NoError(t, err)
	defer b.Close()
	assert.Equal(t, path, b.File())
	got, err := b.Get(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, []byte("2"), got)
}

func TestResolveHost(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "host.sqlite")
	file, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer file.Close()
	host, err := ResolveHost(ctx, file)
	require.NoError(t, err)
	assert.True(t, host.Durable())
	assert.Equal(t, "host.sqlite", filepath.Base(host.File))
	assert.Equal(t, host.File, host.ID)

	first, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	defer first.Close()
	second, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	defer second.Close()

	a, err := ResolveHost(ctx, first)
	require.NoError(t, err)
	again, err := ResolveHost(ctx, first)
	require.NoError(t, err)
	b, err := ResolveHost(ctx, second)
	require.NoError(t, err)
	assert.False(t, a.Durable())
	assert.True(t, strings.HasPrefix(a.ID, "memory:"))
	assert.Equal(t, a, again)
	assert.NotEqual(t, a.ID, b.ID)

	_, err = ResolveHost(ctx, nil)
	assert.Error(t, err)
}
