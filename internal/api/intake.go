package api

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/yanun0323/logs"

	"main/internal/model"
	"main/internal/queue"
	"main/internal/store"
)

var (
	ErrUnsupportedKind = errors.New("only market orders are supported")
	ErrMissingTokens   = errors.New("tokenIn and tokenOut are required")
	ErrInvalidAmount   = errors.New("amount must be a positive number")
)

// ExecuteRequest is the intake payload for a new market order.
type ExecuteRequest struct {
	OrderType string          `json:"orderType"`
	TokenIn   string          `json:"tokenIn"`
	TokenOut  string          `json:"tokenOut"`
	Amount    decimal.Decimal `json:"amount"`
}

// Validate checks the request against intake rules.
func (r ExecuteRequest) Validate() error {
	if r.OrderType != string(model.KindMarket) {
		return ErrUnsupportedKind
	}
	if r.TokenIn == "" || r.TokenOut == "" {
		return ErrMissingTokens
	}
	if !r.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	return nil
}

// Intake exposes the core's entry points: create an order, enqueue its
// job, and poll its status. It returns as soon as the job is queued; the
// worker pool drives everything after that.
type Intake struct {
	store store.OrderStore
	queue *queue.Queue
}

// NewIntake wires the intake boundary over the store and queue.
func NewIntake(st store.OrderStore, q *queue.Queue) *Intake {
	return &Intake{store: st, queue: q}
}

// Submit creates a pending order and enqueues its execution job.
func (i *Intake) Submit(ctx context.Context, req ExecuteRequest) (*model.Order, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	order := &model.Order{
		ID:       uuid.NewString(),
		Kind:     model.KindMarket,
		TokenIn:  req.TokenIn,
		TokenOut: req.TokenOut,
		AmountIn: req.Amount,
		Status:   model.StatusPending,
	}
	if err := i.store.Create(ctx, order); err != nil {
		return nil, err
	}
	if err := i.queue.Enqueue(order.ID); err != nil {
		return nil, err
	}
	return order, nil
}

// GetStatus returns the current persisted order state.
func (i *Intake) GetStatus(ctx context.Context, orderID string) (*model.Order, error) {
	return i.store.GetByID(ctx, orderID)
}

// Recover re-enqueues every non-terminal order found in the store. Called
// at startup: the store is the durable record, so orders stranded mid-phase
// by a crash resume from their persisted status on a fresh attempt budget.
func (i *Intake) Recover(ctx context.Context) (int, error) {
	orders, err := i.store.ListUnfinished(ctx)
	if err != nil {
		return 0, err
	}
	recovered := 0
	for _, order := range orders {
		if err := i.queue.Enqueue(order.ID); err != nil {
			logs.Warnf("recover order %s in status %s: %v", order.ID, order.Status, err)
			continue
		}
		recovered++
	}
	return recovered, nil
}
