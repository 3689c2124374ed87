package bus

import (
	"context"
	"errors"
	"sync/atomic"

	"main/internal/model"
	"main/internal/obs"
)

var (
	ErrBusFull   = errors.New("status bus full")
	ErrBusClosed = errors.New("status bus closed")
)

const defaultBrokerCapacity = 1024

// Broker is the in-process event transport for single-binary deployments.
// It is a bounded, non-blocking channel: when consumers fall behind, new
// events are dropped rather than stalling the publisher.
type Broker struct {
	ch      chan model.StatusEvent
	closed  uint32
	metrics *obs.Metrics
}

// NewBroker allocates a broker with the given capacity.
func NewBroker(capacity int, metrics *obs.Metrics) *Broker {
	if capacity <= 0 {
		capacity = defaultBrokerCapacity
	}
	return &Broker{ch: make(chan model.StatusEvent, capacity), metrics: metrics}
}

// Publish enqueues an event without blocking.
func (b *Broker) Publish(ctx context.Context, event model.StatusEvent) error {
	if atomic.LoadUint32(&b.closed) != 0 {
		return ErrBusClosed
	}
	select {
	case b.ch <- event:
		b.metrics.EventPublished()
		return nil
	default:
		b.metrics.EventDropped()
		return ErrBusFull
	}
}

// Run consumes events until the context is done.
func (b *Broker) Run(ctx context.Context, handler func(model.StatusEvent)) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-b.ch:
			handler(event)
		}
	}
}

// Close stops the broker from accepting new events. The channel is never
// closed: a publisher racing Close must get ErrBusClosed, not a panic.
// Run exits through its context.
func (b *Broker) Close() {
	atomic.StoreUint32(&b.closed, 1)
}
