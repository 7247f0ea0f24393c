package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/viant/vec0/internal/chunk"
	"github.com/viant/vec0/vecerr"
)

// FormatVersion is written into every manifest.
const FormatVersion = 1

const keyPrefix = "vec0/"

// Manifest describes a persisted table.
type Manifest struct {
	Format     int      `msgpack:"format"`
	Table      string   `msgpack:"table"`
	Args       []string `msgpack:"args"`
	NextRowid  int64    `msgpack:"next_rowid"`
	Chunks     []int64  `msgpack:"chunks"`
	Generation string   `msgpack:"generation"`
}

type chunkRecord struct {
	Generation  string         `msgpack:"generation"`
	Compression Compression    `msgpack:"compression"`
	Snapshot    chunk.Snapshot `msgpack:"snapshot"`
	Slabs       [][]byte       `msgpack:"slabs"`
}

// EncodeChunk serializes a chunk snapshot, compressing its vector slabs.
func EncodeChunk(snap chunk.Snapshot, c Compression, generation string) ([]byte, error) {
	rec := chunkRecord{Generation: generation, Compression: c, Snapshot: snap, Slabs: make([][]byte, len(snap.Slabs))}
	for i, slab := range snap.Slabs {
		block, err := compressBlock(slab, c)
		if err != nil {
			return nil, fmt.Errorf("vec0: storage: compress chunk %d slab %d: %w", snap.ID, i, err)
		}
		rec.Slabs[i] = block
	}
	return msgpack.Marshal(&rec)
}

// DecodeChunk restores a snapshot written by EncodeChunk.
func DecodeChunk(data []byte) (chunk.Snapshot, string, error) {
	var rec chunkRecord
	if err := msgpack.Unmarshal(data, &rec); err != nil {
		return chunk.Snapshot{}, "", vecerr.Consistency("decode chunk", err)
	}
	snap := rec.Snapshot
	snap.Slabs = make([][]byte, len(rec.Slabs))
	for i, block := range rec.Slabs {
		slab, err := decompressBlock(block, rec.Compression)
		if err != nil {
			return chunk.Snapshot{}, "", vecerr.Consistency("decode chunk", fmt.Errorf("chunk %d slab %d: %w", snap.ID, i, err))
		}
		snap.Slabs[i] = slab
	}
	return snap, rec.Generation, nil
}

// Catalog stores tables on a Backend.
type Catalog struct {
	backend Backend
}

// NewCatalog wraps backend.
func NewCatalog(backend Backend) *Catalog {
	return &Catalog{backend: backend}
}

// Backend returns the underlying backend.
func (c *Catalog) Backend() Backend { return c.backend }

// Sync applies writes the backend deferred.
func (c *Catalog) Sync(ctx context.Context) error {
	if s, ok := c.backend.(Syncer); ok {
		return s.Sync(ctx)
	}
	return nil
}

func manifestKey(table string) string { return keyPrefix + table + "/manifest" }

func chunkPrefix(table string) string { return keyPrefix + table + "/chunk/" }

func chunkKey(table string, id int64) string {
	return chunkPrefix(table) + fmt.Sprintf("%016x", id)
}

// NewGeneration returns a fresh generation id.
func NewGeneration() string { return uuid.NewString() }

// Manifest returns the manifest of table, or ErrNotFound.
func (c *Catalog) Manifest(ctx context.Context, table string) (*Manifest, error) {
	data, err := c.backend.Get(ctx, manifestKey(table))
	if err != nil {
		return nil, err
	}
	m := &Manifest{}
	if err := msgpack.Unmarshal(data, m); err != nil {
		return nil, vecerr.Consistency("load manifest", err)
	}
	if m.Format != FormatVersion {
		return nil, vecerr.Consistencyf("load manifest", "table %q has format %d, want %d", table, m.Format, FormatVersion)
	}
	return m, nil
}

// Load returns the manifest and chunk snapshots of table, or ErrNotFound.
func (c *Catalog) Load(ctx context.Context, table string) (*Manifest, []chunk.Snapshot, error) {
	m, err := c.Manifest(ctx, table)
	if err != nil {
		return nil, nil, err
	}
	snaps := make([]chunk.Snapshot, 0, len(m.Chunks))
	for _, id := range m.Chunks {
		data, err := c.backend.Get(ctx, chunkKey(table, id))
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, nil, vecerr.Consistencyf("load chunk", "table %q misses chunk %d", table, id)
			}
			return nil, nil, err
		}
		snap, _, err := DecodeChunk(data)
		if err != nil {
			return nil, nil, err
		}
		if snap.ID != id {
			return nil, nil, vecerr.Consistencyf("load chunk", "table %q chunk key %d holds chunk %d", table, id, snap.ID)
		}
		snaps = append(snaps, snap)
	}
	return m, snaps, nil
}

// Save writes the manifest together with the given chunks and removes the
// chunks listed in removed.
func (c *Catalog) Save(ctx context.Context, m *Manifest, chunks []chunk.Snapshot, removed []int64, compression Compression) error {
	m.Format = FormatVersion
	entries := make([]Entry, 0, len(chunks)+1)
	for _, snap := range chunks {
		data, err := EncodeChunk(snap, compression, m.Generation)
		if err != nil {
			return err
		}
		entries = append(entries, Entry{Key: chunkKey(m.Table, snap.ID), Value: data})
	}
	data, err := msgpack.Marshal(m)
	if err != nil {
		return fmt.Errorf("vec0: storage: encode manifest: %w", err)
	}
	entries = append(entries, Entry{Key: manifestKey(m.Table), Value: data})
	if err := c.backend.BatchSet(ctx, entries); err != nil {
		return err
	}
	if len(removed) == 0 {
		return nil
	}
	keys := make([]string, len(removed))
	for i, id := range removed {
		keys[i] = chunkKey(m.Table, id)
	}
	return c.backend.BatchDelete(ctx, keys)
}

// Drop removes every key of table.
func (c *Catalog) Drop(ctx context.Context, table string) error {
	var keys []string
	for e, err := range c.backend.List(ctx, keyPrefix+table+"/") {
		if err != nil {
			return err
		}
		keys = append(keys, e.Key)
	}
	if len(keys) == 0 {
		return nil
	}
	return c.backend.BatchDelete(ctx, keys)
}

// Rename moves every key of table from to table to.
func (c *Catalog) Rename(ctx context.Context, from, to string) error {
	m, err := c.Manifest(ctx, from)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	var entries []Entry
	for e, err := range c.backend.List(ctx, chunkPrefix(from)) {
		if err != nil {
			return err
		}
		entries = append(entries, Entry{Key: chunkPrefix(to) + strings.TrimPrefix(e.Key, chunkPrefix(from)), Value: e.Value})
	}
	m.Table = to
	data, err := msgpack.Marshal(m)
	if err != nil {
		return fmt.Errorf("vec0: storage: encode manifest: %w", err)
	}
	entries = append(entries, Entry{Key: manifestKey(to), Value: data})
	if err := c.backend.BatchSet(ctx, entries); err != nil {
		return err
	}
	return c.Drop(ctx, from)
}

// Tables lists the names of persisted tables.
func (c *Catalog) Tables(ctx context.Context) ([]string, error) {
	var names []string
	for e, err := range c.backend.List(ctx, keyPrefix) {
		if err != nil {
			return nil, err
		}
		rest := strings.TrimPrefix(e.Key, keyPrefix)
		if name, ok := strings.CutSuffix(rest, "/manifest"); ok {
			names = append(names, name)
		}
	}
	return names, nil
}

// ChunkIDs parses the chunk ids stored for table, in ascending order.
func (c *Catalog) ChunkIDs(ctx context.Context, table string) ([]int64, error) {
	var ids []int64
	for e, err := range c.backend.List(ctx, chunkPrefix(table)) {
		if err != nil {
			return nil, err
		}
		id, err := strconv.ParseInt(strings.TrimPrefix(e.Key, chunkPrefix(table)), 16, 64)
		if err != nil {
			return nil, vecerr.Consistencyf("list chunks", "malformed chunk key %q", e.Key)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
