package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"main/internal/model"
)

// Memory is an in-process OrderStore for single-binary runs and tests.
type Memory struct {
	mu     sync.Mutex
	orders map[string]*model.Order
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{orders: make(map[string]*model.Order)}
}

// Create inserts a new order row.
func (m *Memory) Create(ctx context.Context, order *model.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	order.CreatedAt = now
	order.UpdatedAt = now
	clone := *order
	m.orders[order.ID] = &clone
	return nil
}

// GetByID returns a copy of the stored order.
func (m *Memory) GetByID(ctx context.Context, id string) (*model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *stored
	return &clone, nil
}

// UpdateFields applies a partial update to the stored order.
func (m *Memory) UpdateFields(ctx context.Context, id string, fields Fields) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.orders[id]
	if !ok {
		return ErrNotFound
	}
	if fields.Status != nil {
		stored.Status = *fields.Status
	}
	if fields.ChosenVenue != nil {
		stored.ChosenVenue = fields.ChosenVenue
	}
	if fields.ExecutedPrice != nil {
		stored.ExecutedPrice = fields.ExecutedPrice
	}
	if fields.SettlementRef != nil {
		stored.SettlementRef = fields.SettlementRef
	}
	if fields.FailureReason != nil {
		stored.FailureReason = fields.FailureReason
	}
	now := time.Now().UTC()
	if now.After(stored.UpdatedAt) {
		stored.UpdatedAt = now
	}
	return nil
}

// ListUnfinished returns copies of all non-terminal orders, oldest first.
func (m *Memory) ListUnfinished(ctx context.Context) ([]*model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Order
	for _, stored := range m.orders {
		if stored.Status.Terminal() {
			continue
		}
		clone := *stored
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}
