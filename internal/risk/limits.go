package risk

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"replicator/internal/cache"
	"replicator/internal/config"
	"replicator/internal/models"
)

// LimitsProvider supplies the risk-limit snapshot for one follower.
type LimitsProvider interface {
	GetRiskLimits(ctx context.Context, followerID string) (models.RiskLimits, error)
}

// StaticProvider serves the same limits for every follower, typically built
// from config via LimitsFromConfig. Useful as a fallback and in tests.
type StaticProvider struct {
	Limits models.RiskLimits
}

func (p StaticProvider) GetRiskLimits(ctx context.Context, followerID string) (models.RiskLimits, error) {
	return p.Limits, nil
}

// LimitsFromConfig maps the config defaults onto a limits snapshot.
func LimitsFromConfig(cfg config.RiskConfig) models.RiskLimits {
	limits := models.RiskLimits{
		MaxDailyLoss:   cfg.MaxDailyLoss,
		MaxDrawdown:    cfg.MaxDrawdown,
		MaxLeverage:    cfg.MaxLeverage,
		MaxCorrelation: cfg.MaxCorrelation,
		MaxSlippageBps: cfg.MaxSlippageBps,
		MaxVolatility:  cfg.MaxVolatility,
	}
	if cfg.MaxPositionSize > 0 {
		v := cfg.MaxPositionSize
		limits.MaxPositionSize = &v
	}
	return limits
}

// CachedProvider wraps another provider with a TTL cache so validation passes
// see an immutable snapshot and the upstream is asked at most once per TTL.
type CachedProvider struct {
	Inner  LimitsProvider
	Cache  cache.Store
	TTL    time.Duration
	Logger *zap.Logger
}

const limitsKeyPrefix = "risk_limits:"

func (p *CachedProvider) GetRiskLimits(ctx context.Context, followerID string) (models.RiskLimits, error) {
	if p.Cache != nil {
		raw, found, err := p.Cache.Get(ctx, limitsKeyPrefix+followerID)
		if err != nil && p.Logger != nil {
			p.Logger.Warn("risk limits cache get failed", zap.String("follower_id", followerID), zap.Error(err))
		}
		if found {
			var limits models.RiskLimits
			if err := json.Unmarshal(raw, &limits); err == nil {
				return limits, nil
			}
		}
	}

	limits, err := p.Inner.GetRiskLimits(ctx, followerID)
	if err != nil {
		return models.RiskLimits{}, err
	}

	if p.Cache != nil {
		ttl := p.TTL
		if ttl <= 0 {
			ttl = 5 * time.Minute
		}
		if raw, err := json.Marshal(limits); err == nil {
			if err := p.Cache.Set(ctx, limitsKeyPrefix+followerID, raw, ttl); err != nil && p.Logger != nil {
				p.Logger.Warn("risk limits cache set failed", zap.String("follower_id", followerID), zap.Error(err))
			}
		}
	}
	return limits, nil
}
