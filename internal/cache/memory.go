package cache

import (
	"context"
	"sync"
)

var _ SnapshotCache = (*Memory)(nil)

// Memory is a process-local snapshot cache. A session owns one instance,
// but history tools may read it from another goroutine, so access is
// guarded.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]map[string]any
}

func NewMemory() *Memory {
	return &Memory{entries: map[string]map[string]any{}}
}

func (m *Memory) Get(ctx context.Context, entityType, entityID string) (map[string]any, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.entries[memoryKey(entityType, entityID)]
	if !ok {
		return nil, false, nil
	}
	return cloneState(data), true, nil
}

func (m *Memory) Put(ctx context.Context, entityType, entityID string, data map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[memoryKey(entityType, entityID)] = cloneState(data)
	return nil
}

func (m *Memory) Invalidate(ctx context.Context, entityType, entityID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, memoryKey(entityType, entityID))
	return nil
}

func memoryKey(entityType, entityID string) string {
	return entityType + ":" + entityID
}

func cloneState(data map[string]any) map[string]any {
	if data == nil {
		return nil
	}
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = v
	}
	return out
}
