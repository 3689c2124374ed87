package venue

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"main/internal/model"
)

var (
	ErrUnknownVenue = errors.New("unknown venue")
)

// Quote is a single venue's offer for a token pair.
type Quote struct {
	Venue   model.Venue
	Price   decimal.Decimal
	FeeRate decimal.Decimal
}

// EffectiveOutput returns amountIn * price * (1 - feeRate), the basis for
// venue selection.
func (q Quote) EffectiveOutput(amountIn decimal.Decimal) decimal.Decimal {
	return amountIn.Mul(q.Price).Mul(decimal.NewFromInt(1).Sub(q.FeeRate))
}

// ExecutionResult is the settlement outcome of an executed quote.
type ExecutionResult struct {
	SettlementRef string
	RealizedPrice decimal.Decimal
}

// Router is the two-method quoting and execution provider.
type Router interface {
	Quote(ctx context.Context, tokenIn, tokenOut string, amountIn decimal.Decimal, v model.Venue) (Quote, error)
	Execute(ctx context.Context, v model.Venue, tokenIn, tokenOut string, amountIn, quotedPrice decimal.Decimal) (ExecutionResult, error)
}
