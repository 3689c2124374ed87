package model

import "time"

// StatusEvent is the best-effort notification emitted after every persisted
// lifecycle transition. It is never stored; the orders table is the source
// of truth.
type StatusEvent struct {
	OrderID       string    `json:"orderId"`
	Status        Status    `json:"status"`
	ChosenVenue   *Venue    `json:"chosenVenue,omitempty"`
	SettlementRef *string   `json:"settlementRef,omitempty"`
	Error         string    `json:"error,omitempty"`
	At            time.Time `json:"at"`
}
