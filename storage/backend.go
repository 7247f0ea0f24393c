// Package storage persists vec0 tables: a small key-value backend contract
// with host database, in-memory and Badger implementations, and the codec
// that maps table manifests and chunk snapshots onto it.
package storage

import (
	"context"
	"errors"
	"iter"
)

// ErrNotFound is returned when a key does not exist.
var ErrNotFound = errors.New("vec0: storage: not found")

// Entry is a key-value pair.
type Entry struct {
	Key   string
	Value []byte
}

// Backend is a key-value store.
type Backend interface {
	// Get returns the value of key or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error
	// Delete removes key. Missing keys are not an error.
	Delete(ctx context.Context, key string) error
	// List yields entries whose key starts with prefix in key order.
	List(ctx context.Context, prefix string) iter.Seq2[Entry, error]
	// BatchSet atomically stores entries.
	BatchSet(ctx context.Context, entries []Entry) error
	// BatchDelete atomically removes keys.
	BatchDelete(ctx context.Context, keys []string) error
	// Close releases the backend.
	Close() error
}

// Syncer is implemented by backends that may defer writes.
type Syncer interface {
	// Sync applies deferred writes where possible.
	Sync(ctx context.Context) error
}
