package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"replicator/internal/breaker"
	"replicator/internal/cache"
	"replicator/internal/config"
	cronrunner "replicator/internal/cron"
	"replicator/internal/db"
	"replicator/internal/handler"
	"replicator/internal/logger"
	"replicator/internal/models"
	"replicator/internal/platform"
	"replicator/internal/replication"
	"replicator/internal/repository"
	gormrepository "replicator/internal/repository/gorm"
	"replicator/internal/risk"
)

func main() {
	cfgPath := os.Getenv("RP_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}

	envOnly := false
	if envOnlyRaw := os.Getenv("RP_ENV_ONLY"); envOnlyRaw != "" {
		envOnly = strings.EqualFold(envOnlyRaw, "true") || envOnlyRaw == "1"
	}

	cfg, err := config.Load(cfgPath, envOnly)
	if err != nil {
		panic(err)
	}

	logger, err := logger.New(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var store repository.Repository
	var dbConn *db.DB
	if cfg.DB.DSN != "" {
		dbConn, err = db.Open(cfg.DB)
		if err != nil {
			logger.Fatal("db open failed", zap.Error(err))
		}
		defer db.Close(dbConn)

		if err := db.SetTimezone(dbConn, cfg.DB.Timezone); err != nil {
			logger.Warn("failed to set timezone", zap.Error(err))
		}
		if err := db.AutoMigrate(dbConn); err != nil {
			logger.Fatal("auto-migrate failed", zap.Error(err))
		}
		store = gormrepository.New(dbConn.Gorm)
	} else {
		logger.Warn("db.dsn empty, running without persistence")
	}

	var limitsCache cache.Store
	switch strings.ToLower(cfg.Cache.Backend) {
	case "redis":
		limitsCache = cache.NewRedisStore(&redis.Options{
			Addr: cfg.Cache.RedisAddr,
			DB:   cfg.Cache.RedisDB,
		})
	default:
		limitsCache = cache.NewMemoryStore()
	}

	limitsProvider := &risk.CachedProvider{
		Inner:  risk.StaticProvider{Limits: risk.LimitsFromConfig(cfg.Risk)},
		Cache:  limitsCache,
		TTL:    cfg.Cache.LimitsTTL,
		Logger: logger,
	}

	gate := &risk.Gate{
		Limits:   limitsProvider,
		Breakers: breaker.NewTable(cfg.Breaker.FailureThreshold, cfg.Breaker.FollowerRecovery),
		Repo:     store,
		Logger:   logger,
	}

	adapters := platform.NewRegistry()
	if cfg.Paper.Enabled {
		names := cfg.Paper.Destinations
		if len(names) == 0 {
			names = []string{"paper"}
		}
		for _, name := range names {
			a := platform.NewPaperAdapter(name, cfg.Paper.BaseLatency, cfg.Paper.FailureRate, cfg.Paper.Seed)
			if err := adapters.Register(a); err != nil {
				logger.Warn("paper adapter register failed", zap.String("platform", name), zap.Error(err))
			}
		}
	}

	accounts := replication.NewAccountRegistry(models.AccountState{})

	engine := replication.New(replication.Options{
		Config:   cfg.Engine,
		Breaker:  cfg.Breaker,
		Latency:  cfg.Latency,
		Gate:     gate,
		Accounts: accounts,
		Adapters: adapters,
		Repo:     store,
		Logger:   logger,
	})

	go func() {
		if err := engine.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("replication engine stopped", zap.Error(err))
		}
	}()

	cronRunner := cronrunner.New(logger, ctx)
	if cfg.Cron.Enabled && store != nil {
		_, err := cronRunner.Add(cfg.Cron.MetricsSnapshot, func(jobCtx context.Context) {
			payload, err := json.Marshal(engine.Metrics())
			if err != nil {
				return
			}
			if err := store.SaveMetricsSnapshot(jobCtx, &models.MetricsSnapshot{Payload: payload}); err != nil {
				logger.Warn("metrics snapshot failed", zap.Error(err))
			}
		})
		if err != nil {
			logger.Warn("cron register metrics snapshot failed", zap.Error(err))
		}
		cronRunner.Start()
		defer cronRunner.Stop()
	}

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(handler.RequestLogger(logger))
	router.Use(handler.RequireBearer(cfg.Server.AuthToken))

	var gormDB *gorm.DB
	if dbConn != nil {
		gormDB = dbConn.Gorm
	}
	healthHandler := &handler.HealthHandler{DB: gormDB}
	healthHandler.Register(router)
	tasksHandler := &handler.TasksHandler{
		Engine: engine,
		Repo:   store,
		Limits: limitsProvider,
		Sizer:  risk.Sizer{KellyCap: cfg.Risk.KellyFractionCap},
		Logger: logger,
	}
	tasksHandler.Register(router)

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server starting", zap.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}
