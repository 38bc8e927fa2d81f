package risk

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"replicator/internal/breaker"
	"replicator/internal/models"
)

func testLimits() models.RiskLimits {
	maxPos := 0.1
	return models.RiskLimits{
		MaxPositionSize: &maxPos,
		MaxDailyLoss:    500,
		MaxDrawdown:     0.2,
		MaxLeverage:     10,
		MaxCorrelation:  0.8,
		MaxSlippageBps:  50,
		MaxVolatility:   0.5,
	}
}

func newTestGate(limits models.RiskLimits) *Gate {
	return &Gate{
		Limits:   StaticProvider{Limits: limits},
		Breakers: breaker.NewTable(5, 300*time.Second),
	}
}

func healthyState() models.AccountState {
	return models.AccountState{
		Balance:  decimal.NewFromInt(10000),
		DailyPnL: decimal.NewFromInt(-100),
		Drawdown: 0.05,
	}
}

func TestGate_CleanPass(t *testing.T) {
	g := newTestGate(testLimits())
	signal := models.TradeSignal{
		Symbol:   "BTCUSDT",
		Side:     models.SideBuy,
		Quantity: decimal.NewFromInt(1),
		Price:    decimal.NewFromInt(500),
		Leverage: 2,
	}

	ok, violations := g.Validate(context.Background(), "f1", signal, healthyState())
	if !ok {
		t.Fatalf("accepted=false violations=%v want accepted", violations)
	}
	if len(violations) != 0 {
		t.Fatalf("violations=%v want none", violations)
	}
}

func TestGate_PositionSizeViolation(t *testing.T) {
	g := newTestGate(testLimits())

	// Notional 2000 against a 1000 limit (10% of a 10000 balance): 100% over.
	signal := models.TradeSignal{
		Symbol:   "BTCUSDT",
		Side:     models.SideBuy,
		Quantity: decimal.NewFromInt(2),
		Price:    decimal.NewFromInt(1000),
	}

	ok, violations := g.Validate(context.Background(), "f1", signal, healthyState())
	if ok {
		t.Fatalf("oversized position accepted")
	}
	if len(violations) != 1 {
		t.Fatalf("violations=%v want exactly one", violations)
	}
	v := violations[0]
	if v.Type != models.ViolationPositionSize {
		t.Fatalf("type=%s want=%s", v.Type, models.ViolationPositionSize)
	}
	if v.Severity != models.SeverityCritical {
		t.Fatalf("severity=%s want=%s", v.Severity, models.SeverityCritical)
	}
	if v.ViolationPct != 100 {
		t.Fatalf("violationPct=%f want=100", v.ViolationPct)
	}
	if got := g.Breakers.Get("f1").FailureCount(); got != 1 {
		t.Fatalf("follower breaker failures=%d want=1", got)
	}
}

func TestGate_ZeroBalanceRejectsPositionSize(t *testing.T) {
	g := newTestGate(testLimits())

	// Zero balance means a zero position limit, so any positive notional is
	// over it.
	state := healthyState()
	state.Balance = decimal.Zero

	signal := models.TradeSignal{
		Symbol:   "BTCUSDT",
		Side:     models.SideBuy,
		Quantity: decimal.NewFromInt(2),
		Price:    decimal.NewFromInt(1000),
	}

	ok, violations := g.Validate(context.Background(), "f1", signal, state)
	if ok {
		t.Fatalf("positive notional accepted on a zero balance")
	}
	found := false
	for _, v := range violations {
		if v.Type == models.ViolationPositionSize {
			found = true
		}
	}
	if !found {
		t.Fatalf("violations=%v want %s", violations, models.ViolationPositionSize)
	}
}

func TestGate_CollectsAllViolations(t *testing.T) {
	g := newTestGate(testLimits())

	state := healthyState()
	state.DailyPnL = decimal.NewFromInt(-600)
	state.OpenPositions = []models.Position{{Symbol: "BTCUSDT", Side: models.SideBuy}}

	signal := models.TradeSignal{
		Symbol:   "BTCUSDT",
		Side:     models.SideBuy,
		Quantity: decimal.NewFromInt(1),
		Price:    decimal.NewFromInt(100),
		Leverage: 25,
	}

	ok, violations := g.Validate(context.Background(), "f1", signal, state)
	if ok {
		t.Fatalf("multi-violation signal accepted")
	}
	types := map[models.ViolationType]bool{}
	for _, v := range violations {
		types[v.Type] = true
	}
	for _, want := range []models.ViolationType{
		models.ViolationDailyLoss,
		models.ViolationCorrelation,
		models.ViolationLeverage,
	} {
		if !types[want] {
			t.Fatalf("violations=%v missing %s", violations, want)
		}
	}
	if got := g.Breakers.Get("f1").FailureCount(); got != len(violations) {
		t.Fatalf("follower breaker failures=%d want=%d", got, len(violations))
	}
}

func TestGate_CleanPassResetsBreaker(t *testing.T) {
	g := newTestGate(testLimits())
	fb := g.Breakers.Get("f1")
	fb.RecordFailure()
	fb.RecordFailure()

	signal := models.TradeSignal{
		Symbol:   "ETHUSDT",
		Side:     models.SideSell,
		Quantity: decimal.NewFromInt(1),
		Price:    decimal.NewFromInt(200),
	}
	if ok, _ := g.Validate(context.Background(), "f1", signal, healthyState()); !ok {
		t.Fatalf("clean signal rejected")
	}
	if got := fb.FailureCount(); got != 0 {
		t.Fatalf("follower breaker failures=%d want=0 after clean pass", got)
	}
}

func TestGate_OpenBreakerShortCircuits(t *testing.T) {
	g := newTestGate(testLimits())
	fb := g.Breakers.Get("f1")
	for i := 0; i < 5; i++ {
		fb.RecordFailure()
	}

	signal := models.TradeSignal{
		Symbol:   "ETHUSDT",
		Side:     models.SideBuy,
		Quantity: decimal.NewFromInt(1),
		Price:    decimal.NewFromInt(1),
	}
	ok, violations := g.Validate(context.Background(), "f1", signal, healthyState())
	if ok {
		t.Fatalf("signal accepted with open follower breaker")
	}
	if len(violations) != 1 || violations[0].Type != models.ViolationBreakerOpen {
		t.Fatalf("violations=%v want single breaker_open", violations)
	}
}

func TestGate_InstrumentLists(t *testing.T) {
	limits := testLimits()
	limits.BlockedSymbols = []string{"DOGEUSDT"}
	limits.AllowedSymbols = []string{"BTCUSDT", "ETHUSDT"}
	g := newTestGate(limits)

	signal := models.TradeSignal{
		Side:     models.SideBuy,
		Quantity: decimal.NewFromInt(1),
		Price:    decimal.NewFromInt(10),
	}

	signal.Symbol = "DOGEUSDT"
	if ok, violations := g.Validate(context.Background(), "f1", signal, healthyState()); ok || violations[0].Type != models.ViolationInstrument {
		t.Fatalf("deny-listed symbol passed, violations=%v", violations)
	}

	signal.Symbol = "SOLUSDT"
	if ok, violations := g.Validate(context.Background(), "f2", signal, healthyState()); ok || violations[0].Type != models.ViolationInstrument {
		t.Fatalf("symbol off allow-list passed, violations=%v", violations)
	}

	signal.Symbol = "ETHUSDT"
	if ok, violations := g.Validate(context.Background(), "f3", signal, healthyState()); !ok {
		t.Fatalf("allow-listed symbol rejected, violations=%v", violations)
	}
}

func TestGate_MetadataChecks(t *testing.T) {
	g := newTestGate(testLimits())

	signal := models.TradeSignal{
		Symbol:   "BTCUSDT",
		Side:     models.SideBuy,
		Quantity: decimal.NewFromInt(1),
		Price:    decimal.NewFromInt(10),
		Metadata: map[string]string{
			"est_slippage_bps": "80",
			"est_volatility":   "0.7",
		},
	}

	ok, violations := g.Validate(context.Background(), "f1", signal, healthyState())
	if ok {
		t.Fatalf("signal with bad slippage/volatility hints accepted")
	}
	types := map[models.ViolationType]bool{}
	for _, v := range violations {
		types[v.Type] = true
	}
	if !types[models.ViolationSlippage] || !types[models.ViolationVolatility] {
		t.Fatalf("violations=%v want slippage and volatility", violations)
	}

	// Unparseable or absent hints skip the checks instead of rejecting.
	signal.Metadata = map[string]string{"est_slippage_bps": "not-a-number"}
	if ok, violations := g.Validate(context.Background(), "f2", signal, healthyState()); !ok {
		t.Fatalf("signal with unparseable hint rejected, violations=%v", violations)
	}
}

type failingProvider struct{}

func (failingProvider) GetRiskLimits(ctx context.Context, followerID string) (models.RiskLimits, error) {
	return models.RiskLimits{}, fmt.Errorf("limits backend down")
}

func TestGate_LimitsUnavailableRejectsWithoutBreakerHit(t *testing.T) {
	g := &Gate{
		Limits:   failingProvider{},
		Breakers: breaker.NewTable(5, 300*time.Second),
	}

	signal := models.TradeSignal{
		Symbol:   "BTCUSDT",
		Side:     models.SideBuy,
		Quantity: decimal.NewFromInt(1),
		Price:    decimal.NewFromInt(10),
	}
	ok, violations := g.Validate(context.Background(), "f1", signal, healthyState())
	if ok {
		t.Fatalf("signal accepted without limits")
	}
	if len(violations) != 1 || violations[0].Type != models.ViolationLimitsUnavailable {
		t.Fatalf("violations=%v want single limits_unavailable", violations)
	}
	if got := g.Breakers.Get("f1").FailureCount(); got != 0 {
		t.Fatalf("follower breaker failures=%d want=0, backend outage is not the follower's fault", got)
	}
}
