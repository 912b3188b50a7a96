package orders

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/escrowpi/escrowpi/internal/comments"
	"github.com/escrowpi/escrowpi/internal/dispute"
	"github.com/escrowpi/escrowpi/internal/pagination"
	"github.com/escrowpi/escrowpi/internal/txstate"
)

// MemoryStore is an in-memory order store for demo/development mode.
type MemoryStore struct {
	orders map[string]*Order
	mu     sync.RWMutex
	now    func() time.Time
}

// NewMemoryStore creates a new in-memory order store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		orders: make(map[string]*Order),
		now:    time.Now,
	}
}

func (m *MemoryStore) Create(_ context.Context, order *Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.orders[order.ID] = order.Clone()
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	o, ok := m.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	return o.Clone(), nil
}

func (m *MemoryStore) ListByUser(_ context.Context, username string, after *pagination.Cursor, limit int) ([]*Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Order
	for _, o := range m.orders {
		if (o.PayerUsername == username || o.PayeeUsername == username) && after.After(o.CreatedAt, o.ID) {
			result = append(result, o.Clone())
		}
	}
	sortNewestFirst(result)
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *MemoryStore) UpdateStatus(_ context.Context, id string, u StatusUpdate) (*Order, *comments.Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[id]
	if !ok {
		return nil, nil, ErrNotFound
	}
	if o.Status != u.From {
		return nil, nil, ErrStaleState
	}
	if u.Receipt != nil && m.paymentTaken(id, u.Receipt.PaymentID) {
		return nil, nil, ErrPaymentReused
	}
	o.Status = u.To
	if u.Receipt != nil {
		o.PaymentID = u.Receipt.PaymentID
		o.TxID = u.Receipt.TxID
	}
	if u.To == txstate.StatusDisputed {
		o.Dispute = dispute.Dispute{Status: dispute.StatusNone}
	}
	o.UpdatedAt = m.now()
	return o.Clone(), nil, nil
}

// paymentTaken reports whether an order other than id records paymentID.
// m.mu must be held.
func (m *MemoryStore) paymentTaken(id, paymentID string) bool {
	if paymentID == "" {
		return false
	}
	for _, o := range m.orders {
		if o.ID != id && o.PaymentID == paymentID {
			return true
		}
	}
	return false
}

func (m *MemoryStore) ProposeDispute(_ context.Context, id string, expected, proposal dispute.Dispute) (*Order, error) {
	return m.mutateDispute(id, expected, func(o *Order) { o.Dispute = proposal })
}

func (m *MemoryStore) AcceptDispute(_ context.Context, id string, expected, accepted dispute.Dispute) (*Order, *comments.Comment, error) {
	o, err := m.mutateDispute(id, expected, func(o *Order) {
		o.Dispute = accepted
		o.Status = txstate.StatusReleased
	})
	return o, nil, err
}

func (m *MemoryStore) ClearDispute(_ context.Context, id string, expected dispute.Dispute) (*Order, error) {
	return m.mutateDispute(id, expected, func(o *Order) {
		o.Dispute = dispute.Dispute{Status: dispute.StatusNone}
	})
}

func (m *MemoryStore) mutateDispute(id string, expected dispute.Dispute, apply func(o *Order)) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	if o.Status != txstate.StatusDisputed {
		return nil, ErrStaleState
	}
	if !sameDispute(o.Dispute, expected) {
		return nil, ErrProposalChanged
	}
	apply(o)
	o.UpdatedAt = m.now()
	return o.Clone(), nil
}

func (m *MemoryStore) ListStale(_ context.Context, statuses []txstate.Status, before time.Time, limit int) ([]*Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Order
	for _, o := range m.orders {
		if !o.CreatedAt.Before(before) {
			continue
		}
		for _, s := range statuses {
			if o.Status == s {
				result = append(result, o.Clone())
				break
			}
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func sortNewestFirst(list []*Order) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].ID > list[j].ID
		}
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
}

var _ Store = (*MemoryStore)(nil)
