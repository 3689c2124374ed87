package gateway

import (
	"encoding/json"
	"sync"

	"github.com/yanun0323/logs"

	"main/internal/model"
	"main/internal/obs"
)

// Observer receives serialized status payloads for a single order id.
type Observer interface {
	Send(payload []byte) error
}

// statusPayload is the wire shape pushed to observers.
type statusPayload struct {
	Type          string       `json:"type"`
	OrderID       string       `json:"orderId"`
	Status        model.Status `json:"status"`
	ChosenVenue   *model.Venue `json:"chosenVenue,omitempty"`
	SettlementRef *string      `json:"settlementRef,omitempty"`
	Error         string       `json:"error,omitempty"`
}

// Registry maps order ids to their currently-connected observers. It holds
// no history: an event for an order nobody watches is dropped, and empty
// observer sets are pruned so memory tracks active orders only.
type Registry struct {
	mu        sync.Mutex
	observers map[string]map[Observer]struct{}
	metrics   *obs.Metrics
}

// NewRegistry creates an empty observer registry.
func NewRegistry(metrics *obs.Metrics) *Registry {
	return &Registry{
		observers: make(map[string]map[Observer]struct{}),
		metrics:   metrics,
	}
}

// Subscribe registers an observer for the order id.
func (r *Registry) Subscribe(orderID string, observer Observer) {
	r.mu.Lock()
	set, ok := r.observers[orderID]
	if !ok {
		set = make(map[Observer]struct{})
		r.observers[orderID] = set
	}
	set[observer] = struct{}{}
	r.mu.Unlock()
}

// Unsubscribe removes an observer, pruning the order's set when it empties.
func (r *Registry) Unsubscribe(orderID string, observer Observer) {
	r.mu.Lock()
	if set, ok := r.observers[orderID]; ok {
		delete(set, observer)
		if len(set) == 0 {
			delete(r.observers, orderID)
		}
	}
	r.mu.Unlock()
}

// Observers returns the number of observers registered for the order id.
func (r *Registry) Observers(orderID string) int {
	r.mu.Lock()
	n := len(r.observers[orderID])
	r.mu.Unlock()
	return n
}

// Deliver pushes a status event to every observer of its order id. A
// failed delivery is isolated: the observer is dropped and the rest still
// receive the payload.
func (r *Registry) Deliver(event model.StatusEvent) {
	r.mu.Lock()
	set, ok := r.observers[event.OrderID]
	if !ok || len(set) == 0 {
		r.mu.Unlock()
		return
	}
	targets := make([]Observer, 0, len(set))
	for observer := range set {
		targets = append(targets, observer)
	}
	r.mu.Unlock()

	payload, err := json.Marshal(statusPayload{
		Type:          "status",
		OrderID:       event.OrderID,
		Status:        event.Status,
		ChosenVenue:   event.ChosenVenue,
		SettlementRef: event.SettlementRef,
		Error:         event.Error,
	})
	if err != nil {
		logs.Errorf("marshal status payload for order %s: %v", event.OrderID, err)
		return
	}

	for _, observer := range targets {
		if err := observer.Send(payload); err != nil {
			logs.Warnf("deliver %s event for order %s: %v", event.Status, event.OrderID, err)
			r.metrics.DeliveryFailed()
			r.Unsubscribe(event.OrderID, observer)
			continue
		}
		r.metrics.EventDelivered()
	}
}
