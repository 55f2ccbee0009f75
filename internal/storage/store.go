// Package storage is the persistent store adapter: a flat key/value store
// whose values are UTF-8 JSON text.
//
// # Backends
//
//   - SQLite (default, on-device file) via modernc.org/sqlite
//   - PostgreSQL (self-hosted deployments) via pgx
//   - In-memory (tests, throwaway sessions)
//
// The SQL backends share one implementation (SQLStore) and keep their
// schema under goose migrations.
//
// # Atomicity
//
// Single-key operations are independent. Apply commits a Batch of sets and
// removes atomically, which is how callers keep the index blob and the
// per-video blobs consistent.
package storage

import (
	"context"
	"errors"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store closed")

// Store is the key/value contract used by the history manager and friends.
type Store interface {
	// Get returns the value stored under key; ok is false when absent.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)

	// Set inserts or overwrites key.
	Set(ctx context.Context, key string, value []byte) error

	// Remove deletes key. Removing an absent key is not an error.
	Remove(ctx context.Context, key string) error

	// RemoveMany deletes every key in keys atomically.
	RemoveMany(ctx context.Context, keys []string) error

	// ListKeys returns every key in ascending order.
	ListKeys(ctx context.Context) ([]string, error)

	// Apply commits all operations of b or none of them.
	Apply(ctx context.Context, b *Batch) error

	Close() error
}

// Op is a single batched operation.
type Op struct {
	Key    string
	Value  []byte
	Delete bool
}

// Batch collects operations to be applied atomically. Later operations on
// the same key win.
type Batch struct {
	ops []Op
}

// NewBatch returns an empty batch.
func NewBatch() *Batch {
	return &Batch{}
}

// Set queues a write.
func (b *Batch) Set(key string, value []byte) *Batch {
	b.ops = append(b.ops, Op{Key: key, Value: value})
	return b
}

// Remove queues a delete.
func (b *Batch) Remove(key string) *Batch {
	b.ops = append(b.ops, Op{Key: key, Delete: true})
	return b
}

// Ops returns the queued operations in order.
func (b *Batch) Ops() []Op {
	if b == nil {
		return nil
	}
	return b.ops
}

// Len is the number of queued operations.
func (b *Batch) Len() int {
	if b == nil {
		return 0
	}
	return len(b.ops)
}
