package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Destination is one linked brokerage/exchange account a follower replicates to.
type Destination struct {
	ID       string
	Platform string
}

// ExecutionResult is the outcome of one signal on one destination. Write-once:
// the engine records it and never rewrites a destination's slot.
type ExecutionResult struct {
	Success       bool
	DestinationID string
	OrderID       string
	FilledQty     decimal.Decimal
	FilledPrice   decimal.Decimal
	Fee           decimal.Decimal
	Error         string
	Timestamp     time.Time
}
