package storage

import (
	"context"
	"sync"
)

// Memory is an in-process Backend used by tests and by deployments that
// accept losing storage state across restarts. Not IsPersistent.
type Memory struct {
	mu   sync.RWMutex
	data map[string]map[string][]byte
}

// NewMemory returns an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{data: make(map[string]map[string][]byte)}
}

func (m *Memory) namespace(ns string) map[string][]byte {
	n, ok := m.data[ns]
	if !ok {
		n = make(map[string][]byte)
		m.data[ns] = n
	}
	return n
}

func (m *Memory) Insert(_ context.Context, ns, key string, value []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := m.namespace(ns)
	existingLen := 0
	if existing, ok := n[key]; ok {
		existingLen = len(existing)
	}
	stored := make([]byte, len(value))
	copy(stored, value)
	n[key] = stored
	return existingLen, nil
}

func (m *Memory) Get(_ context.Context, ns, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.data[ns]
	if !ok {
		return nil, false, nil
	}
	v, ok := n[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

func (m *Memory) Delete(_ context.Context, ns, key string) (int, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.data[ns]
	if !ok {
		return 0, false, nil
	}
	v, ok := n[key]
	if !ok {
		return 0, false, nil
	}
	delete(n, key)
	return len(v), true, nil
}

func (m *Memory) ListKeys(_ context.Context, ns string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.data[ns]
	if !ok {
		return nil, nil
	}
	keys := make([]string, 0, len(n))
	for k := range n {
		keys = append(keys, k)
	}
	return keys, nil
}

func (m *Memory) GetNamespaceByteSize(_ context.Context, ns string) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.data[ns]
	if !ok {
		return 0, nil
	}
	var total uint64
	for k, v := range n {
		total += uint64(len(k)) + uint64(len(v))
	}
	return total, nil
}

func (m *Memory) IsPersistent() bool { return false }
