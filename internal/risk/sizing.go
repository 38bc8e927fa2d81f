package risk

import (
	"github.com/shopspring/decimal"

	"replicator/internal/models"
)

const (
	// Hard ceiling on the Kelly fraction before Sharpe scaling. A configured
	// cap may lower it but never raise it.
	kellyHardCap = 0.25

	// Fallback capital fraction for degenerate performance inputs.
	fallbackFraction = 0.01

	// Floor as a fraction of balance so a sized position is never dust.
	minSizeFraction = 0.001

	// Master trade sizes are expressed in notional units of 10000.
	masterSizeUnit = 10000.0
)

// Sizer computes follower position sizes from master performance using a
// capped Kelly fraction scaled by the master's Sharpe ratio.
type Sizer struct {
	// KellyCap bounds the Kelly fraction; zero or out-of-range values fall
	// back to the hard cap of 0.25.
	KellyCap float64
}

func (s Sizer) capFraction() float64 {
	if s.KellyCap > 0 && s.KellyCap < kellyHardCap {
		return s.KellyCap
	}
	return kellyHardCap
}

// PositionSize returns the follower's capital allocation for one master trade.
//
// Degenerate performance inputs (no losses recorded, win rate pinned at 0 or 1)
// fall back to a flat 1% allocation rather than producing an unbounded or
// negative fraction.
func (s Sizer) PositionSize(masterTradeSize decimal.Decimal, perf models.MasterPerformance, limits models.RiskLimits, balance decimal.Decimal) decimal.Decimal {
	if balance.Sign() <= 0 {
		return decimal.Zero
	}

	fraction := kellyFraction(perf, s.capFraction())

	if perf.SharpeRatio > 0 {
		scale := perf.SharpeRatio / 2
		if scale > 1 {
			scale = 1
		}
		fraction *= scale
	}

	fraction *= decToFloat(masterTradeSize) / masterSizeUnit

	if limits.MaxPositionSize != nil && *limits.MaxPositionSize > 0 && fraction > *limits.MaxPositionSize {
		fraction = *limits.MaxPositionSize
	}

	size := balance.Mul(decimal.NewFromFloat(fraction))
	floor := balance.Mul(decimal.NewFromFloat(minSizeFraction))
	if size.LessThan(floor) {
		size = floor
	}
	return size
}

// kellyFraction returns f = (b*p - q)/b with b = avgWin/avgLoss, clamped to
// [0, maxFraction]. Degenerate inputs yield the flat fallback fraction.
func kellyFraction(perf models.MasterPerformance, maxFraction float64) float64 {
	if perf.AvgLoss <= 0 || perf.AvgWin <= 0 || perf.WinRate <= 0 || perf.WinRate >= 1 {
		return fallbackFraction
	}

	b := perf.AvgWin / perf.AvgLoss
	p := perf.WinRate
	q := 1 - p

	f := (b*p - q) / b
	if f < 0 {
		f = 0
	}
	if f > maxFraction {
		f = maxFraction
	}
	return f
}
