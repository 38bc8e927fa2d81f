package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// RiskLimits is a per-follower policy snapshot. A nil MaxPositionSize means the
// position-size check is skipped; zero-valued ceilings disable their checks.
type RiskLimits struct {
	MaxPositionSize *float64 `json:"max_position_size,omitempty"`
	MaxDailyLoss    float64  `json:"max_daily_loss"`
	MaxDrawdown     float64  `json:"max_drawdown"`
	MaxLeverage     float64  `json:"max_leverage"`
	MaxCorrelation  float64  `json:"max_correlation"`
	MaxSlippageBps  float64  `json:"max_slippage_bps"`
	MaxVolatility   float64  `json:"max_volatility"`

	AllowedSymbols []string `json:"allowed_symbols,omitempty"`
	BlockedSymbols []string `json:"blocked_symbols,omitempty"`
}

type ViolationType string

const (
	ViolationBreakerOpen  ViolationType = "breaker_open"
	ViolationPositionSize ViolationType = "position_size"
	ViolationDailyLoss    ViolationType = "daily_loss"
	ViolationDrawdown     ViolationType = "drawdown"
	ViolationCorrelation  ViolationType = "correlation"
	ViolationLeverage     ViolationType = "leverage"
	ViolationInstrument   ViolationType = "instrument"
	ViolationSlippage     ViolationType = "slippage"
	ViolationVolatility   ViolationType = "volatility"

	// ViolationLimitsUnavailable marks a validation pass that could not load
	// the follower's limits at all; such signals are rejected.
	ViolationLimitsUnavailable ViolationType = "limits_unavailable"
)

type ViolationSeverity string

const (
	SeverityWarning  ViolationSeverity = "warning"
	SeverityCritical ViolationSeverity = "critical"
)

// RiskViolation is one failed check, kept as an append-only audit record.
type RiskViolation struct {
	ID           string            `json:"id"`
	FollowerID   string            `json:"follower_id"`
	Type         ViolationType     `json:"type"`
	Severity     ViolationSeverity `json:"severity"`
	CurrentValue float64           `json:"current_value"`
	LimitValue   float64           `json:"limit_value"`
	ViolationPct float64           `json:"violation_pct"`
	Message      string            `json:"message"`
	CreatedAt    time.Time         `json:"created_at"`
}

// Position is one open position of a follower account.
type Position struct {
	Symbol   string
	Side     Side
	Quantity decimal.Decimal
	Entry    decimal.Decimal
}

// AccountState is the follower account snapshot supplied at validation time.
type AccountState struct {
	Balance       decimal.Decimal
	DailyPnL      decimal.Decimal
	Drawdown      float64
	OpenPositions []Position
}

// MasterPerformance feeds Kelly position sizing.
type MasterPerformance struct {
	WinRate     float64
	AvgWin      float64
	AvgLoss     float64
	SharpeRatio float64
}
