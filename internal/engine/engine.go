package engine

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"main/internal/bus"
	"main/internal/model"
	"main/internal/queue"
	"main/internal/store"
	"main/internal/venue"
)

var (
	ErrAllQuotesFailed = errors.New("all venue quotes failed")
	ErrSlippage        = errors.New("slippage exceeds tolerance")
)

const defaultBuildDelay = 500 * time.Millisecond

// Config controls engine behavior.
type Config struct {
	// Venues lists the configured venues in preference order. The order
	// breaks effective-output ties deterministically.
	Venues []model.Venue
	// SlippageTolerance is the max relative deviation between quoted and
	// realized price before an execution is treated as failed.
	SlippageTolerance decimal.Decimal
	// BuildDelay simulates transaction construction before submission.
	BuildDelay time.Duration
	// Sleep overrides the build delay wait; nil sleeps for real.
	Sleep func(ctx context.Context, d time.Duration)
}

// Engine drives a single order through its lifecycle phases. Every phase
// persists the new order state before publishing the matching status event;
// the store is the source of truth and the event stream is best effort.
type Engine struct {
	store     store.OrderStore
	router    venue.Router
	publisher bus.Publisher
	cfg       Config
}

// New creates a lifecycle engine, applying defaults for zero config values.
func New(st store.OrderStore, router venue.Router, publisher bus.Publisher, cfg Config) *Engine {
	if len(cfg.Venues) == 0 {
		cfg.Venues = []model.Venue{model.VenueRaydium, model.VenueMeteora}
	}
	if cfg.SlippageTolerance.IsZero() {
		cfg.SlippageTolerance = decimal.NewFromFloat(0.01)
	}
	if cfg.BuildDelay == 0 {
		cfg.BuildDelay = defaultBuildDelay
	}
	if cfg.Sleep == nil {
		cfg.Sleep = func(ctx context.Context, d time.Duration) {
			timer := time.NewTimer(d)
			defer timer.Stop()
			select {
			case <-ctx.Done():
			case <-timer.C:
			}
		}
	}
	return &Engine{store: st, router: router, publisher: publisher, cfg: cfg}
}

// Run executes one job attempt to completion or failure. Phases whose
// persisted status already equals or exceeds the target are skipped, so a
// retried job resumes instead of repeating completed work.
func (e *Engine) Run(ctx context.Context, job queue.Job) error {
	order, err := e.store.GetByID(ctx, job.OrderID)
	if store.IsNotFound(err) {
		return queue.Permanent(errors.Errorf("order %s not found", job.OrderID))
	}
	if err != nil {
		return errors.Wrap(err, "load order")
	}
	if order.Status.Terminal() {
		return nil
	}

	if order.Status == model.StatusPending {
		e.publish(ctx, model.StatusEvent{OrderID: order.ID, Status: model.StatusPending})
	}

	if order.Status.Rank() < model.StatusRouting.Rank() {
		if err := e.setStatus(ctx, order, model.StatusRouting); err != nil {
			return err
		}
	}

	quoted, err := e.resolveRoute(ctx, order)
	if err != nil {
		return e.raiseExecutionFailure(ctx, order, job, err)
	}

	if order.Status.Rank() < model.StatusBuilding.Rank() {
		if err := e.setStatus(ctx, order, model.StatusBuilding); err != nil {
			return err
		}
		e.cfg.Sleep(ctx, e.cfg.BuildDelay)
	}

	if order.Status.Rank() < model.StatusSubmitted.Rank() {
		if err := e.setStatus(ctx, order, model.StatusSubmitted); err != nil {
			return err
		}
	}

	result, err := e.router.Execute(ctx, *order.ChosenVenue, order.TokenIn, order.TokenOut, order.AmountIn, quoted.Price)
	if err != nil {
		return e.raiseExecutionFailure(ctx, order, job, errors.Wrap(err, "execute swap"))
	}
	if slip := slippage(quoted.Price, result.RealizedPrice); slip.GreaterThan(e.cfg.SlippageTolerance) {
		return e.raiseExecutionFailure(ctx, order, job,
			errors.Wrapf(ErrSlippage, "realized %s vs quoted %s (%s)", result.RealizedPrice, quoted.Price, slip))
	}

	confirmed := model.StatusConfirmed
	fields := store.Fields{
		Status:        &confirmed,
		ExecutedPrice: &result.RealizedPrice,
		SettlementRef: &result.SettlementRef,
	}
	if err := e.store.UpdateFields(ctx, order.ID, fields); err != nil {
		return errors.Wrap(err, "persist confirmed state")
	}
	order.Status = confirmed
	e.publish(ctx, model.StatusEvent{
		OrderID:       order.ID,
		Status:        confirmed,
		ChosenVenue:   order.ChosenVenue,
		SettlementRef: &result.SettlementRef,
	})
	logs.Infof("order %s confirmed on %s at %s, ref %s",
		order.ID, *order.ChosenVenue, result.RealizedPrice, result.SettlementRef)
	return nil
}

// resolveRoute returns the quote to execute against. On the first pass it
// fans out to every configured venue and persists the winner; a retry that
// already has a venue persisted re-quotes only that venue for a fresh
// reference price.
func (e *Engine) resolveRoute(ctx context.Context, order *model.Order) (venue.Quote, error) {
	if order.ChosenVenue != nil {
		quote, err := e.router.Quote(ctx, order.TokenIn, order.TokenOut, order.AmountIn, *order.ChosenVenue)
		if err != nil {
			return venue.Quote{}, errors.Wrap(err, "re-quote chosen venue")
		}
		return quote, nil
	}

	quotes := e.fanOutQuotes(ctx, order)
	best, ok := selectBest(order.AmountIn, quotes, e.cfg.Venues)
	if !ok {
		return venue.Quote{}, ErrAllQuotesFailed
	}

	chosen := best.Venue
	if err := e.store.UpdateFields(ctx, order.ID, store.Fields{ChosenVenue: &chosen}); err != nil {
		return venue.Quote{}, errors.Wrap(err, "persist chosen venue")
	}
	order.ChosenVenue = &chosen
	e.publish(ctx, model.StatusEvent{
		OrderID:     order.ID,
		Status:      model.StatusRouting,
		ChosenVenue: &chosen,
	})
	return best, nil
}

// fanOutQuotes requests quotes from all configured venues concurrently.
// A venue that errors is excluded; the caller decides what an empty result
// means.
func (e *Engine) fanOutQuotes(ctx context.Context, order *model.Order) map[model.Venue]venue.Quote {
	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		quotes = make(map[model.Venue]venue.Quote, len(e.cfg.Venues))
	)
	for _, v := range e.cfg.Venues {
		wg.Add(1)
		go func() {
			defer wg.Done()
			quote, err := e.router.Quote(ctx, order.TokenIn, order.TokenOut, order.AmountIn, v)
			if err != nil {
				logs.Warnf("quote %s for order %s: %v", v, order.ID, err)
				return
			}
			mu.Lock()
			quotes[v] = quote
			mu.Unlock()
		}()
	}
	wg.Wait()
	return quotes
}

// selectBest picks the quote with the strictly greatest effective output.
// Iterating in preference order makes ties deterministic: the earlier
// configured venue wins.
func selectBest(amountIn decimal.Decimal, quotes map[model.Venue]venue.Quote, prefs []model.Venue) (venue.Quote, bool) {
	var (
		best       venue.Quote
		bestOutput decimal.Decimal
		found      bool
	)
	for _, v := range prefs {
		quote, ok := quotes[v]
		if !ok {
			continue
		}
		output := quote.EffectiveOutput(amountIn)
		if !found || output.GreaterThan(bestOutput) {
			best = quote
			bestOutput = output
			found = true
		}
	}
	return best, found
}

// setStatus persists the transition then publishes the matching event.
func (e *Engine) setStatus(ctx context.Context, order *model.Order, status model.Status) error {
	if err := e.store.UpdateFields(ctx, order.ID, store.Fields{Status: &status}); err != nil {
		return errors.Wrapf(err, "persist %s state", status)
	}
	order.Status = status
	e.publish(ctx, model.StatusEvent{OrderID: order.ID, Status: status})
	return nil
}

// raiseExecutionFailure reports a retryable failure. On the job's final
// attempt the failed state is persisted and published before the queue is
// allowed to mark the job dead, so observers are not left waiting.
func (e *Engine) raiseExecutionFailure(ctx context.Context, order *model.Order, job queue.Job, cause error) error {
	if !job.Final() {
		return cause
	}

	failed := model.StatusFailed
	reason := cause.Error()
	if err := e.store.UpdateFields(ctx, order.ID, store.Fields{Status: &failed, FailureReason: &reason}); err != nil {
		logs.Errorf("persist failed state for order %s: %v", order.ID, err)
		return cause
	}
	order.Status = failed
	e.publish(ctx, model.StatusEvent{OrderID: order.ID, Status: failed, Error: reason})
	return cause
}

// publish emits a status event. Notification failures are logged and
// swallowed; they never abort phase progression.
func (e *Engine) publish(ctx context.Context, event model.StatusEvent) {
	event.At = time.Now().UTC()
	if err := e.publisher.Publish(ctx, event); err != nil {
		logs.Warnf("publish %s event for order %s: %v", event.Status, event.OrderID, err)
	}
}

// slippage is the relative deviation between quoted and realized price.
func slippage(quoted, realized decimal.Decimal) decimal.Decimal {
	if quoted.IsZero() {
		return decimal.Zero
	}
	return realized.Sub(quoted).Abs().Div(quoted)
}
