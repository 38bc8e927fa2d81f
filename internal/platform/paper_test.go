package platform

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"replicator/internal/models"
)

func TestPaperAdapter_Fills(t *testing.T) {
	a := NewPaperAdapter("paper", time.Millisecond, 0, 42)
	signal := models.TradeSignal{
		Symbol:   "BTCUSDT",
		Side:     models.SideBuy,
		Quantity: decimal.NewFromInt(2),
		Price:    decimal.NewFromInt(100),
	}

	res, err := a.Execute(context.Background(), models.Destination{ID: "d1", Platform: "paper"}, signal)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if !res.Success || res.DestinationID != "d1" || res.OrderID == "" {
		t.Fatalf("result=%+v", res)
	}
	if res.FilledQty.Cmp(signal.Quantity) != 0 || res.FilledPrice.Cmp(signal.Price) != 0 {
		t.Fatalf("fill=%s@%s want=2@100", res.FilledQty.String(), res.FilledPrice.String())
	}
	// 5bps of a 200 notional.
	if res.Fee.Cmp(decimal.NewFromFloat(0.1)) != 0 {
		t.Fatalf("fee=%s want=0.1", res.Fee.String())
	}
}

func TestPaperAdapter_FailureRate(t *testing.T) {
	a := NewPaperAdapter("paper", time.Millisecond, 1.0, 42)
	_, err := a.Execute(context.Background(),
		models.Destination{ID: "d1", Platform: "paper"},
		models.TradeSignal{Symbol: "BTCUSDT", Quantity: decimal.NewFromInt(1), Price: decimal.NewFromInt(1)})
	if err == nil {
		t.Fatalf("expected rejection at failure rate 1.0")
	}
}

func TestPaperAdapter_HonorsContext(t *testing.T) {
	a := NewPaperAdapter("paper", time.Second, 0, 42)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := a.Execute(ctx,
		models.Destination{ID: "d1", Platform: "paper"},
		models.TradeSignal{Symbol: "BTCUSDT", Quantity: decimal.NewFromInt(1), Price: decimal.NewFromInt(1)})
	if err != context.DeadlineExceeded {
		t.Fatalf("err=%v want deadline exceeded", err)
	}
}

func TestRegistry_RejectsDuplicates(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(NewPaperAdapter("paper", time.Millisecond, 0, 1)); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := r.Register(NewPaperAdapter("paper", time.Millisecond, 0, 2)); err == nil {
		t.Fatalf("duplicate registration accepted")
	}
	if _, ok := r.Resolve("paper"); !ok {
		t.Fatalf("adapter not resolvable")
	}
	if _, ok := r.Resolve("ghost"); ok {
		t.Fatalf("unknown platform resolved")
	}
}
