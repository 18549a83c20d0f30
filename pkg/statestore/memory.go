package statestore

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory Store. Writes are journaled per transaction
// and applied atomically on Commit. It is the default backend for tests
// and for single-process deployments without a DSN.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[SlotID]map[string][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[SlotID]map[string][]byte)}
}

// Begin starts a journaled transaction.
func (s *MemoryStore) Begin(_ context.Context) (Txn, error) {
	return &memoryTxn{store: s, writes: make(map[SlotID]map[string]*[]byte)}, nil
}

// memoryTxn overlays pending writes on the base maps. A nil value pointer
// in the overlay marks a deletion.
type memoryTxn struct {
	store  *MemoryStore
	writes map[SlotID]map[string]*[]byte
	closed bool
}

func (t *memoryTxn) Get(_ context.Context, slot SlotID, key string) ([]byte, bool, error) {
	if t.closed {
		return nil, false, ErrTxnClosed
	}
	if pending, ok := t.writes[slot]; ok {
		if v, ok := pending[key]; ok {
			if v == nil {
				return nil, false, nil
			}
			return append([]byte(nil), (*v)...), true, nil
		}
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	v, ok := t.store.data[slot][key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (t *memoryTxn) Put(_ context.Context, slot SlotID, key string, value []byte) error {
	if t.closed {
		return ErrTxnClosed
	}
	v := append([]byte(nil), value...)
	t.pending(slot)[key] = &v
	return nil
}

func (t *memoryTxn) Delete(_ context.Context, slot SlotID, key string) error {
	if t.closed {
		return ErrTxnClosed
	}
	t.pending(slot)[key] = nil
	return nil
}

func (t *memoryTxn) Commit() error {
	if t.closed {
		return ErrTxnClosed
	}
	t.closed = true

	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	for slot, pending := range t.writes {
		base, ok := t.store.data[slot]
		if !ok {
			base = make(map[string][]byte)
			t.store.data[slot] = base
		}
		for key, v := range pending {
			if v == nil {
				delete(base, key)
				continue
			}
			base[key] = *v
		}
	}
	return nil
}

func (t *memoryTxn) Rollback() error {
	// Rollback after Commit is a no-op so callers can defer it.
	t.closed = true
	t.writes = nil
	return nil
}

func (t *memoryTxn) pending(slot SlotID) map[string]*[]byte {
	m, ok := t.writes[slot]
	if !ok {
		m = make(map[string]*[]byte)
		t.writes[slot] = m
	}
	return m
}
