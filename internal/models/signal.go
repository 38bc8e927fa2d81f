package models

import (
	"github.com/shopspring/decimal"
)

type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
)

// TradeSignal is one master trade to replicate. Values are never mutated after
// construction; copy-settings adjustments produce a clone (see CopySettings).
type TradeSignal struct {
	Symbol        string
	Side          Side
	Quantity      decimal.Decimal
	Price         decimal.Decimal
	OrderType     OrderType
	StopLoss      *decimal.Decimal
	TakeProfit    *decimal.Decimal
	Leverage      float64
	MasterTradeID string

	// Metadata carries optional hints from the signal source, e.g.
	// "est_slippage_bps" or "est_volatility". Values are decimal strings.
	Metadata map[string]string
}

// Notional is quantity * price. Zero when the signal has no price (market order
// without a reference quote).
func (s TradeSignal) Notional() decimal.Decimal {
	return s.Quantity.Mul(s.Price)
}

// CopySettings adjusts a master signal for one follower.
type CopySettings struct {
	SizeMultiplier float64
	MinQuantity    decimal.Decimal
	MaxQuantity    decimal.Decimal
	CopyStopLoss   bool
}

// Apply returns an adjusted clone; the receiver signal is left untouched.
// Quantity is scaled then clamped to [MinQuantity, MaxQuantity] where those
// bounds are positive.
func (cs CopySettings) Apply(s TradeSignal) TradeSignal {
	out := s
	if s.Metadata != nil {
		out.Metadata = make(map[string]string, len(s.Metadata))
		for k, v := range s.Metadata {
			out.Metadata[k] = v
		}
	}

	qty := s.Quantity
	if cs.SizeMultiplier > 0 {
		qty = qty.Mul(decimal.NewFromFloat(cs.SizeMultiplier))
	}
	if cs.MinQuantity.IsPositive() && qty.LessThan(cs.MinQuantity) {
		qty = cs.MinQuantity
	}
	if cs.MaxQuantity.IsPositive() && qty.GreaterThan(cs.MaxQuantity) {
		qty = cs.MaxQuantity
	}
	out.Quantity = qty

	if !cs.CopyStopLoss {
		out.StopLoss = nil
		out.TakeProfit = nil
	} else {
		if s.StopLoss != nil {
			v := *s.StopLoss
			out.StopLoss = &v
		}
		if s.TakeProfit != nil {
			v := *s.TakeProfit
			out.TakeProfit = &v
		}
	}
	return out
}
