package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App    AppConfig    `mapstructure:"app"`
	Server ServerConfig `mapstructure:"server"`
	Log    LogConfig    `mapstructure:"log"`
	DB     DBConfig     `mapstructure:"db"`
	Cache  CacheConfig  `mapstructure:"cache"`
	Cron   CronConfig   `mapstructure:"cron"`

	Engine  EngineConfig  `mapstructure:"engine"`
	Risk    RiskConfig    `mapstructure:"risk"`
	Breaker BreakerConfig `mapstructure:"breaker"`
	Latency LatencyConfig `mapstructure:"latency"`
	Paper   PaperConfig   `mapstructure:"paper"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	HTTPAddr string `mapstructure:"http_addr"`

	// AuthToken guards the API when set; empty disables auth.
	AuthToken string `mapstructure:"auth_token"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Timezone        string        `mapstructure:"timezone"`
}

type CacheConfig struct {
	// Backend is "memory" or "redis".
	Backend   string        `mapstructure:"backend"`
	RedisAddr string        `mapstructure:"redis_addr"`
	RedisDB   int           `mapstructure:"redis_db"`
	LimitsTTL time.Duration `mapstructure:"limits_ttl"`
}

type CronConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	MetricsSnapshot string `mapstructure:"metrics_snapshot"`
}

type EngineConfig struct {
	Workers       int           `mapstructure:"workers"`
	TaskTimeout   time.Duration `mapstructure:"task_timeout"`
	IdleBackoff   time.Duration `mapstructure:"idle_backoff"`
	MetricsWindow int           `mapstructure:"metrics_window"`
	MaxRetries    int           `mapstructure:"max_retries"`
}

type RiskConfig struct {
	MaxPositionSize  float64 `mapstructure:"max_position_size"`
	MaxDailyLoss     float64 `mapstructure:"max_daily_loss"`
	MaxDrawdown      float64 `mapstructure:"max_drawdown"`
	MaxLeverage      float64 `mapstructure:"max_leverage"`
	MaxCorrelation   float64 `mapstructure:"max_correlation"`
	MaxSlippageBps   float64 `mapstructure:"max_slippage_bps"`
	MaxVolatility    float64 `mapstructure:"max_volatility"`
	KellyFractionCap float64 `mapstructure:"kelly_fraction_cap"`
}

type BreakerConfig struct {
	FailureThreshold int           `mapstructure:"failure_threshold"`
	DispatchRecovery time.Duration `mapstructure:"dispatch_recovery"`
	FollowerRecovery time.Duration `mapstructure:"follower_recovery"`
}

type LatencyConfig struct {
	WindowSize int `mapstructure:"window_size"`
}

type PaperConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Destinations []string      `mapstructure:"destinations"`
	BaseLatency  time.Duration `mapstructure:"base_latency"`
	FailureRate  float64       `mapstructure:"failure_rate"`
	Seed         int64         `mapstructure:"seed"`
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("RP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()

	v.SetDefault("app.env", "dev")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("server.auth_token", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)

	v.SetDefault("db.max_open_conns", 20)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "5m")
	v.SetDefault("db.timezone", "UTC")

	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.redis_addr", "localhost:6379")
	v.SetDefault("cache.redis_db", 0)
	v.SetDefault("cache.limits_ttl", "5m")

	v.SetDefault("cron.enabled", true)
	v.SetDefault("cron.metrics_snapshot", "@every 1h")

	v.SetDefault("engine.workers", 10)
	v.SetDefault("engine.task_timeout", "30s")
	v.SetDefault("engine.idle_backoff", "50ms")
	v.SetDefault("engine.metrics_window", 1000)
	v.SetDefault("engine.max_retries", 3)

	v.SetDefault("risk.max_position_size", 0.1)
	v.SetDefault("risk.max_daily_loss", 500)
	v.SetDefault("risk.max_drawdown", 0.2)
	v.SetDefault("risk.max_leverage", 10)
	v.SetDefault("risk.max_correlation", 0.8)
	v.SetDefault("risk.max_slippage_bps", 50)
	v.SetDefault("risk.max_volatility", 0.5)
	v.SetDefault("risk.kelly_fraction_cap", 0.25)

	v.SetDefault("breaker.failure_threshold", 5)
	v.SetDefault("breaker.dispatch_recovery", "60s")
	v.SetDefault("breaker.follower_recovery", "300s")

	v.SetDefault("latency.window_size", 1000)

	v.SetDefault("paper.enabled", false)
	v.SetDefault("paper.base_latency", "20ms")
	v.SetDefault("paper.failure_rate", 0.0)
	v.SetDefault("paper.seed", 0)

	// A missing file is fine: defaults plus RP_* env vars carry the config.
	if !envOnly {
		if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
