package comments

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory comment store for demo/development mode.
type MemoryStore struct {
	byOrder map[string][]*Comment
	mu      sync.RWMutex
}

// NewMemoryStore creates a new in-memory comment store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byOrder: make(map[string][]*Comment)}
}

func (m *MemoryStore) Add(_ context.Context, c *Comment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *c
	m.byOrder[c.OrderID] = append(m.byOrder[c.OrderID], &cp)
	return nil
}

func (m *MemoryStore) List(_ context.Context, orderID string, limit int) ([]*Comment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	src := m.byOrder[orderID]
	result := make([]*Comment, 0, len(src))
	for _, c := range src {
		cp := *c
		result = append(result, &cp)
	}
	return Latest(result, limit), nil
}

var _ Store = (*MemoryStore)(nil)
