package risk

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"replicator/internal/breaker"
	"replicator/internal/models"
	"replicator/internal/repository"
)

// Gate validates trade signals against a follower's risk limits before any
// dispatch happens. It runs every check so one pass can surface several
// violations at once; only an open follower breaker short-circuits.
//
// Gate never touches a platform adapter: it is a pure function of the signal,
// the account snapshot and the cached limits, plus the follower breaker state.
type Gate struct {
	Limits   LimitsProvider
	Breakers *breaker.Table
	Repo     repository.Repository
	Logger   *zap.Logger
}

// Validate returns accepted=true iff no check failed. Violations are persisted
// fire-and-forget and each one counts as a failure on the follower's breaker;
// a clean pass resets it.
func (g *Gate) Validate(ctx context.Context, followerID string, signal models.TradeSignal, state models.AccountState) (bool, []models.RiskViolation) {
	fb := g.Breakers.Get(followerID)
	if !fb.CanExecute() {
		v := g.violation(followerID, models.ViolationBreakerOpen, models.SeverityCritical,
			float64(fb.FailureCount()), 0,
			"follower circuit breaker open, trading suspended")
		g.persist(ctx, v)
		return false, []models.RiskViolation{v}
	}

	limits, err := g.Limits.GetRiskLimits(ctx, followerID)
	if err != nil {
		if g.Logger != nil {
			g.Logger.Warn("risk limits fetch failed, rejecting",
				zap.String("follower_id", followerID), zap.Error(err))
		}
		v := g.violation(followerID, models.ViolationLimitsUnavailable, models.SeverityCritical, 0, 0,
			fmt.Sprintf("risk limits unavailable: %v", err))
		g.persist(ctx, v)
		return false, []models.RiskViolation{v}
	}

	var violations []models.RiskViolation
	add := func(v models.RiskViolation) {
		violations = append(violations, v)
	}

	if limits.MaxPositionSize != nil && *limits.MaxPositionSize > 0 {
		notional := signal.Notional()
		limit := state.Balance.Mul(decimal.NewFromFloat(*limits.MaxPositionSize))
		if notional.GreaterThan(limit) {
			add(g.violation(followerID, models.ViolationPositionSize, models.SeverityCritical,
				decToFloat(notional), decToFloat(limit),
				fmt.Sprintf("position %s exceeds limit %s", notional.StringFixed(2), limit.StringFixed(2))))
		}
	}

	if limits.MaxDailyLoss > 0 {
		loss := decimal.NewFromFloat(limits.MaxDailyLoss).Neg()
		if state.DailyPnL.LessThan(loss) {
			add(g.violation(followerID, models.ViolationDailyLoss, models.SeverityCritical,
				decToFloat(state.DailyPnL), -limits.MaxDailyLoss,
				fmt.Sprintf("daily loss %s past limit %.2f", state.DailyPnL.StringFixed(2), limits.MaxDailyLoss)))
		}
	}

	if limits.MaxDrawdown > 0 && state.Drawdown > limits.MaxDrawdown {
		add(g.violation(followerID, models.ViolationDrawdown, models.SeverityCritical,
			state.Drawdown, limits.MaxDrawdown,
			fmt.Sprintf("drawdown %.4f past limit %.4f", state.Drawdown, limits.MaxDrawdown)))
	}

	// Identical symbol counts as fully correlated; no cross-asset model here.
	if limits.MaxCorrelation > 0 && limits.MaxCorrelation < 1.0 {
		for _, pos := range state.OpenPositions {
			if pos.Symbol == signal.Symbol {
				add(g.violation(followerID, models.ViolationCorrelation, models.SeverityWarning,
					1.0, limits.MaxCorrelation,
					fmt.Sprintf("open %s position is fully correlated with signal", pos.Symbol)))
				break
			}
		}
	}

	if limits.MaxLeverage > 0 && signal.Leverage > limits.MaxLeverage {
		add(g.violation(followerID, models.ViolationLeverage, models.SeverityCritical,
			signal.Leverage, limits.MaxLeverage,
			fmt.Sprintf("leverage %.1fx past limit %.1fx", signal.Leverage, limits.MaxLeverage)))
	}

	if v, ok := g.instrumentViolation(followerID, signal.Symbol, limits); ok {
		add(v)
	}

	if est, ok := metadataFloat(signal, "est_slippage_bps"); ok && limits.MaxSlippageBps > 0 && est > limits.MaxSlippageBps {
		add(g.violation(followerID, models.ViolationSlippage, models.SeverityWarning,
			est, limits.MaxSlippageBps,
			fmt.Sprintf("estimated slippage %.1fbps past limit %.1fbps", est, limits.MaxSlippageBps)))
	}

	if est, ok := metadataFloat(signal, "est_volatility"); ok && limits.MaxVolatility > 0 && est > limits.MaxVolatility {
		add(g.violation(followerID, models.ViolationVolatility, models.SeverityWarning,
			est, limits.MaxVolatility,
			fmt.Sprintf("estimated volatility %.4f past limit %.4f", est, limits.MaxVolatility)))
	}

	if len(violations) == 0 {
		fb.RecordSuccess()
		return true, nil
	}

	for _, v := range violations {
		fb.RecordFailure()
		g.persist(ctx, v)
	}
	if g.Logger != nil {
		g.Logger.Debug("risk gate rejected signal",
			zap.String("follower_id", followerID),
			zap.String("symbol", signal.Symbol),
			zap.Int("violations", len(violations)),
		)
	}
	return false, violations
}

func (g *Gate) instrumentViolation(followerID, symbol string, limits models.RiskLimits) (models.RiskViolation, bool) {
	for _, blocked := range limits.BlockedSymbols {
		if blocked == symbol {
			return g.violation(followerID, models.ViolationInstrument, models.SeverityCritical, 0, 0,
				fmt.Sprintf("symbol %s is deny-listed", symbol)), true
		}
	}
	if len(limits.AllowedSymbols) > 0 {
		for _, allowed := range limits.AllowedSymbols {
			if allowed == symbol {
				return models.RiskViolation{}, false
			}
		}
		return g.violation(followerID, models.ViolationInstrument, models.SeverityCritical, 0, 0,
			fmt.Sprintf("symbol %s not on allow-list", symbol)), true
	}
	return models.RiskViolation{}, false
}

func (g *Gate) violation(followerID string, vt models.ViolationType, sev models.ViolationSeverity, current, limit float64, msg string) models.RiskViolation {
	pct := 0.0
	if limit != 0 {
		pct = (current - limit) / limit * 100
		if pct < 0 {
			pct = -pct
		}
	}
	return models.RiskViolation{
		ID:           uuid.NewString(),
		FollowerID:   followerID,
		Type:         vt,
		Severity:     sev,
		CurrentValue: current,
		LimitValue:   limit,
		ViolationPct: pct,
		Message:      msg,
		CreatedAt:    time.Now().UTC(),
	}
}

// persist writes the violation in the background; a storage failure is logged
// and never blocks or fails the validation pass.
func (g *Gate) persist(ctx context.Context, v models.RiskViolation) {
	if g.Repo == nil {
		return
	}
	record := &models.ViolationRecord{
		ViolationID:  v.ID,
		FollowerID:   v.FollowerID,
		Type:         string(v.Type),
		Severity:     string(v.Severity),
		CurrentValue: v.CurrentValue,
		LimitValue:   v.LimitValue,
		ViolationPct: v.ViolationPct,
		Message:      v.Message,
	}
	go func() {
		saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := g.Repo.SaveViolation(saveCtx, record); err != nil && g.Logger != nil {
			g.Logger.Warn("save violation failed",
				zap.String("violation_id", v.ID), zap.Error(err))
		}
	}()
}

func metadataFloat(signal models.TradeSignal, key string) (float64, bool) {
	raw, ok := signal.Metadata[key]
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func decToFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}
