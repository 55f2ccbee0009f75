package storage

import (
	"context"
	"sort"
	"sync"
)

// FailFunc lets tests make individual operations fail. op is "get", "set",
// "remove" or "list"; key is empty for "list".
type FailFunc func(op, key string) error

// MemoryStore is an in-process Store. Values are copied on the way in and
// out.
type MemoryStore struct {
	mu     sync.RWMutex
	data   map[string][]byte
	fail   FailFunc
	closed bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

// SetFailFunc installs (or, with nil, removes) a failure hook.
func (m *MemoryStore) SetFailFunc(fn FailFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = fn
}

func (m *MemoryStore) check(op, key string) error {
	if m.closed {
		return ErrClosed
	}
	if m.fail != nil {
		return m.fail(op, key)
	}
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.check("get", key); err != nil {
		return nil, false, err
	}
	v, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (m *MemoryStore) Set(ctx context.Context, key string, value []byte) error {
	return m.Apply(ctx, NewBatch().Set(key, value))
}

func (m *MemoryStore) Remove(ctx context.Context, key string) error {
	return m.Apply(ctx, NewBatch().Remove(key))
}

func (m *MemoryStore) RemoveMany(ctx context.Context, keys []string) error {
	b := NewBatch()
	for _, k := range keys {
		b.Remove(k)
	}
	return m.Apply(ctx, b)
}

func (m *MemoryStore) ListKeys(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.check("list", ""); err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// Apply validates every operation against the failure hook before touching
// the map, so a failing batch leaves no trace.
func (m *MemoryStore) Apply(ctx context.Context, b *Batch) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, op := range b.Ops() {
		name := "set"
		if op.Delete {
			name = "remove"
		}
		if err := m.check(name, op.Key); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	for _, op := range b.Ops() {
		if op.Delete {
			delete(m.data, op.Key)
			continue
		}
		m.data[op.Key] = append([]byte(nil), op.Value...)
	}
	return nil
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
