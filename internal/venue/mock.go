package venue

import (
	"context"
	"encoding/hex"
	"math/rand"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"main/internal/model"
)

const (
	defaultQuoteVariance    = 0.05
	defaultRealizedVariance = 0.005

	defaultMinQuoteDelay = 200 * time.Millisecond
	defaultMaxQuoteDelay = 400 * time.Millisecond
	defaultMinExecDelay  = 2 * time.Second
	defaultMaxExecDelay  = 3 * time.Second
)

// MockConfig controls the simulated router behavior.
type MockConfig struct {
	// Fees maps each supported venue to its fee rate.
	Fees map[model.Venue]decimal.Decimal
	// QuoteVariance is the max relative deviation of a quote from the base price.
	QuoteVariance float64
	// RealizedVariance is the max relative deviation of the realized price
	// from the quoted price.
	RealizedVariance float64

	MinQuoteDelay time.Duration
	MaxQuoteDelay time.Duration
	MinExecDelay  time.Duration
	MaxExecDelay  time.Duration

	// Rand overrides the randomness source; nil seeds from the clock.
	Rand *rand.Rand
	// Sleep overrides the latency simulation; nil sleeps for real.
	Sleep func(ctx context.Context, d time.Duration)
}

// DefaultFees returns the simulated venue fee schedule.
func DefaultFees() map[model.Venue]decimal.Decimal {
	return map[model.Venue]decimal.Decimal{
		model.VenueRaydium: decimal.NewFromFloat(0.0030),
		model.VenueMeteora: decimal.NewFromFloat(0.0025),
	}
}

// MockRouter simulates venue quoting and execution with latency and price
// variance. Simulated latency is part of the provider contract.
type MockRouter struct {
	cfg    MockConfig
	prices *PriceTable

	mu  sync.Mutex
	rng *rand.Rand

	sleep func(ctx context.Context, d time.Duration)
}

// NewMockRouter creates a simulated router over the given price table.
func NewMockRouter(cfg MockConfig, prices *PriceTable) *MockRouter {
	if cfg.Fees == nil {
		cfg.Fees = DefaultFees()
	}
	if cfg.QuoteVariance == 0 {
		cfg.QuoteVariance = defaultQuoteVariance
	}
	if cfg.RealizedVariance == 0 {
		cfg.RealizedVariance = defaultRealizedVariance
	}
	if cfg.MinQuoteDelay == 0 {
		cfg.MinQuoteDelay = defaultMinQuoteDelay
	}
	if cfg.MaxQuoteDelay == 0 {
		cfg.MaxQuoteDelay = defaultMaxQuoteDelay
	}
	if cfg.MinExecDelay == 0 {
		cfg.MinExecDelay = defaultMinExecDelay
	}
	if cfg.MaxExecDelay == 0 {
		cfg.MaxExecDelay = defaultMaxExecDelay
	}
	if prices == nil {
		prices = NewPriceTable()
	}
	rng := cfg.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	sleep := cfg.Sleep
	if sleep == nil {
		sleep = realSleep
	}
	return &MockRouter{cfg: cfg, prices: prices, rng: rng, sleep: sleep}
}

// Quote returns a simulated quote for the pair on the given venue.
func (r *MockRouter) Quote(ctx context.Context, tokenIn, tokenOut string, amountIn decimal.Decimal, v model.Venue) (Quote, error) {
	fee, ok := r.cfg.Fees[v]
	if !ok {
		return Quote{}, ErrUnknownVenue
	}

	r.sleep(ctx, r.randomDelay(r.cfg.MinQuoteDelay, r.cfg.MaxQuoteDelay))

	base := r.prices.BasePrice(tokenIn, tokenOut)
	price := base.Mul(decimal.NewFromFloat(1 + r.randomVariance(r.cfg.QuoteVariance)))
	return Quote{Venue: v, Price: price, FeeRate: fee}, nil
}

// Execute simulates settling the swap on the chosen venue.
func (r *MockRouter) Execute(ctx context.Context, v model.Venue, tokenIn, tokenOut string, amountIn, quotedPrice decimal.Decimal) (ExecutionResult, error) {
	if _, ok := r.cfg.Fees[v]; !ok {
		return ExecutionResult{}, ErrUnknownVenue
	}

	r.sleep(ctx, r.randomDelay(r.cfg.MinExecDelay, r.cfg.MaxExecDelay))

	realized := quotedPrice.Mul(decimal.NewFromFloat(1 + r.randomVariance(r.cfg.RealizedVariance)))
	return ExecutionResult{
		SettlementRef: r.settlementRef(),
		RealizedPrice: realized,
	}, nil
}

// randomVariance returns a value in [-max, max].
func (r *MockRouter) randomVariance(max float64) float64 {
	r.mu.Lock()
	u := r.rng.Float64()
	r.mu.Unlock()
	return (u*2 - 1) * max
}

func (r *MockRouter) randomDelay(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	r.mu.Lock()
	d := min + time.Duration(r.rng.Int63n(int64(max-min)))
	r.mu.Unlock()
	return d
}

func (r *MockRouter) settlementRef() string {
	buf := make([]byte, 32)
	r.mu.Lock()
	r.rng.Read(buf)
	r.mu.Unlock()
	return "0x" + hex.EncodeToString(buf)
}

func realSleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
