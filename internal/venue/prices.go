package venue

import (
	"sync"

	"github.com/shopspring/decimal"
)

// PriceTable holds base prices per token pair. It is owned by the router
// instance that uses it; there is no ambient global price state.
type PriceTable struct {
	mu     sync.Mutex
	prices map[string]decimal.Decimal
}

// NewPriceTable seeds the default SOL/USDC pair and its inverse.
func NewPriceTable() *PriceTable {
	base := decimal.NewFromInt(20)
	return &PriceTable{
		prices: map[string]decimal.Decimal{
			pairKey("SOL", "USDC"): base,
			pairKey("USDC", "SOL"): decimal.NewFromInt(1).Div(base),
		},
	}
}

// Set overrides the base price for a pair.
func (t *PriceTable) Set(tokenIn, tokenOut string, price decimal.Decimal) {
	t.mu.Lock()
	t.prices[pairKey(tokenIn, tokenOut)] = price
	t.mu.Unlock()
}

// BasePrice returns the base price for a pair, defaulting to 1 for unknown
// pairs.
func (t *PriceTable) BasePrice(tokenIn, tokenOut string) decimal.Decimal {
	t.mu.Lock()
	price, ok := t.prices[pairKey(tokenIn, tokenOut)]
	t.mu.Unlock()
	if !ok {
		return decimal.NewFromInt(1)
	}
	return price
}

func pairKey(tokenIn, tokenOut string) string {
	return tokenIn + "-" + tokenOut
}
