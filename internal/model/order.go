package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Kind identifies the supported order kinds.
type Kind string

const (
	// KindMarket is the only kind the engine executes.
	KindMarket Kind = "market"
)

// Status tracks the lifecycle of an order.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRouting   Status = "routing"
	StatusBuilding  Status = "building"
	StatusSubmitted Status = "submitted"
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
)

var statusRanks = map[Status]int{
	StatusPending:   0,
	StatusRouting:   1,
	StatusBuilding:  2,
	StatusSubmitted: 3,
	StatusConfirmed: 4,
	StatusFailed:    4,
}

// Rank returns the position of the status in the forward lifecycle order.
// Terminal statuses share the highest rank.
func (s Status) Rank() int {
	return statusRanks[s]
}

// Terminal reports whether no further transition is permitted.
func (s Status) Terminal() bool {
	switch s {
	case StatusConfirmed, StatusFailed:
		return true
	default:
		return false
	}
}

// Valid reports whether the status is a known lifecycle status.
func (s Status) Valid() bool {
	_, ok := statusRanks[s]
	return ok
}

// Venue is an execution counterparty offering quotes for a token pair.
type Venue string

const (
	VenueRaydium Venue = "raydium"
	VenueMeteora Venue = "meteora"
)

// Order holds the durable view of a market order.
type Order struct {
	ID            string           `gorm:"primaryKey;column:id" json:"id"`
	Kind          Kind             `gorm:"column:order_type" json:"orderType"`
	TokenIn       string           `gorm:"column:token_in" json:"tokenIn"`
	TokenOut      string           `gorm:"column:token_out" json:"tokenOut"`
	AmountIn      decimal.Decimal  `gorm:"column:amount_in;type:numeric" json:"amountIn"`
	Status        Status           `gorm:"column:status" json:"status"`
	ChosenVenue   *Venue           `gorm:"column:chosen_venue" json:"chosenVenue"`
	ExecutedPrice *decimal.Decimal `gorm:"column:executed_price;type:numeric" json:"executedPrice"`
	SettlementRef *string          `gorm:"column:settlement_ref" json:"settlementRef"`
	FailureReason *string          `gorm:"column:failure_reason" json:"failureReason"`
	CreatedAt     time.Time        `gorm:"column:created_at" json:"createdAt"`
	UpdatedAt     time.Time        `gorm:"column:updated_at" json:"updatedAt"`
}

// TableName implements the gorm table naming convention.
func (Order) TableName() string {
	return "orders"
}
