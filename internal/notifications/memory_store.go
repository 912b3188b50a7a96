package notifications

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-memory notification store for demo/development mode.
type MemoryStore struct {
	byUser map[string][]*Notification
	mu     sync.RWMutex
}

// NewMemoryStore creates a new in-memory notification store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byUser: make(map[string][]*Notification)}
}

func (m *MemoryStore) Add(_ context.Context, n *Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *n
	m.byUser[n.Username] = append(m.byUser[n.Username], &cp)
	return nil
}

func (m *MemoryStore) List(_ context.Context, q Query) ([]*Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Notification
	for _, n := range m.byUser[q.Username] {
		if q.Status.Matches(n) {
			cp := *n
			result = append(result, &cp)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})

	if q.Skip >= len(result) {
		return nil, nil
	}
	result = result[q.Skip:]
	if q.Limit > 0 && len(result) > q.Limit {
		result = result[:q.Limit]
	}
	return result, nil
}

func (m *MemoryStore) CountUncleared(_ context.Context, username string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, n := range m.byUser[username] {
		if !n.Cleared {
			count++
		}
	}
	return count, nil
}

func (m *MemoryStore) Toggle(_ context.Context, id, username string) (*Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, n := range m.byUser[username] {
		if n.ID == id {
			n.Cleared = !n.Cleared
			cp := *n
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

var _ Store = (*MemoryStore)(nil)
