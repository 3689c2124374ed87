package store

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"main/internal/model"
)

// ErrNotFound is returned when no order exists for the given id.
var ErrNotFound = errors.New("order not found")

// IsNotFound reports whether err means the order id has no row.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// Fields is a partial order update. Nil members are left untouched; all set
// members are applied atomically in a single call.
type Fields struct {
	Status        *model.Status
	ChosenVenue   *model.Venue
	ExecutedPrice *decimal.Decimal
	SettlementRef *string
	FailureReason *string
}

// OrderStore is the durable order table.
type OrderStore interface {
	Create(ctx context.Context, order *model.Order) error
	GetByID(ctx context.Context, id string) (*model.Order, error)
	UpdateFields(ctx context.Context, id string, fields Fields) error
	// ListUnfinished returns every order that has not reached a terminal
	// status, oldest first. Used to rebuild the job queue after a restart.
	ListUnfinished(ctx context.Context) ([]*model.Order, error)
}
