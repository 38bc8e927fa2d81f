package models

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestCopySettings_ScalesAndClamps(t *testing.T) {
	sl := decimal.NewFromInt(95)
	signal := TradeSignal{
		Symbol:   "BTCUSDT",
		Side:     SideBuy,
		Quantity: decimal.NewFromInt(10),
		Price:    decimal.NewFromInt(100),
		StopLoss: &sl,
		Metadata: map[string]string{"est_volatility": "0.2"},
	}

	cs := CopySettings{
		SizeMultiplier: 0.5,
		MinQuantity:    decimal.NewFromInt(1),
		MaxQuantity:    decimal.NewFromInt(3),
		CopyStopLoss:   true,
	}
	out := cs.Apply(signal)

	// 10 * 0.5 = 5, clamped down to 3.
	if out.Quantity.Cmp(decimal.NewFromInt(3)) != 0 {
		t.Fatalf("quantity=%s want=3", out.Quantity.String())
	}
	if out.StopLoss == nil || out.StopLoss.Cmp(sl) != 0 {
		t.Fatalf("stopLoss=%v want=95", out.StopLoss)
	}
	if signal.Quantity.Cmp(decimal.NewFromInt(10)) != 0 {
		t.Fatalf("original signal mutated: quantity=%s", signal.Quantity.String())
	}

	// The clone must not share metadata storage.
	out.Metadata["est_volatility"] = "0.9"
	if signal.Metadata["est_volatility"] != "0.2" {
		t.Fatalf("original metadata mutated")
	}
}

func TestCopySettings_MinFloor(t *testing.T) {
	signal := TradeSignal{Quantity: decimal.NewFromInt(10)}
	cs := CopySettings{
		SizeMultiplier: 0.01,
		MinQuantity:    decimal.NewFromInt(1),
	}
	if out := cs.Apply(signal); out.Quantity.Cmp(decimal.NewFromInt(1)) != 0 {
		t.Fatalf("quantity=%s want=1", out.Quantity.String())
	}
}

func TestCopySettings_DropsStops(t *testing.T) {
	sl := decimal.NewFromInt(95)
	tp := decimal.NewFromInt(120)
	signal := TradeSignal{
		Quantity:   decimal.NewFromInt(1),
		StopLoss:   &sl,
		TakeProfit: &tp,
	}
	out := CopySettings{SizeMultiplier: 1}.Apply(signal)
	if out.StopLoss != nil || out.TakeProfit != nil {
		t.Fatalf("stops not dropped: sl=%v tp=%v", out.StopLoss, out.TakeProfit)
	}
}

func TestNotional(t *testing.T) {
	s := TradeSignal{Quantity: decimal.NewFromInt(3), Price: decimal.NewFromFloat(1.5)}
	if got := s.Notional(); got.Cmp(decimal.NewFromFloat(4.5)) != 0 {
		t.Fatalf("notional=%s want=4.5", got.String())
	}
	if got := (TradeSignal{Quantity: decimal.NewFromInt(3)}).Notional(); !got.IsZero() {
		t.Fatalf("notional=%s want=0 for priceless signal", got.String())
	}
}
