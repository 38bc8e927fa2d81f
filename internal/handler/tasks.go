package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"replicator/internal/models"
	"replicator/internal/replication"
	"replicator/internal/repository"
	"replicator/internal/risk"
)

// TasksHandler exposes the replication engine over HTTP. The engine itself is
// the library; this is the thin surface in front of it.
type TasksHandler struct {
	Engine *replication.Engine
	Repo   repository.Repository
	Limits risk.LimitsProvider
	Sizer  risk.Sizer
	Logger *zap.Logger
}

func (h *TasksHandler) Register(r *gin.Engine) {
	r.POST("/v1/tasks", h.replicate)
	r.DELETE("/v1/tasks/:id", h.cancel)
	r.GET("/v1/tasks/:id", h.status)
	r.POST("/v1/sizing", h.sizing)
	r.GET("/v1/history", h.history)
	r.GET("/v1/violations", h.violations)
	r.GET("/v1/metrics", h.metrics)
	r.GET("/v1/queue", h.queue)
}

type replicateRequest struct {
	MasterTradeID          string `json:"master_trade_id" binding:"required"`
	FollowerRelationshipID string `json:"follower_relationship_id" binding:"required"`
	Priority               string `json:"priority"`

	Signal struct {
		Symbol     string            `json:"symbol" binding:"required"`
		Side       string            `json:"side" binding:"required"`
		Quantity   string            `json:"quantity" binding:"required"`
		Price      string            `json:"price"`
		OrderType  string            `json:"order_type"`
		StopLoss   string            `json:"stop_loss"`
		TakeProfit string            `json:"take_profit"`
		Leverage   float64           `json:"leverage"`
		Metadata   map[string]string `json:"metadata"`
	} `json:"signal" binding:"required"`

	Destinations []struct {
		ID       string `json:"id" binding:"required"`
		Platform string `json:"platform" binding:"required"`
	} `json:"destinations" binding:"required"`
}

func (h *TasksHandler) replicate(c *gin.Context) {
	var req replicateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error())
		return
	}

	signal, err := req.toSignal()
	if err != nil {
		Error(c, http.StatusBadRequest, err.Error())
		return
	}

	destinations := make([]models.Destination, 0, len(req.Destinations))
	for _, d := range req.Destinations {
		destinations = append(destinations, models.Destination{ID: d.ID, Platform: d.Platform})
	}

	taskID, err := h.Engine.ReplicateTrade(c.Request.Context(),
		req.MasterTradeID, req.FollowerRelationshipID, signal, destinations, parsePriority(req.Priority))
	if err != nil {
		Error(c, http.StatusBadRequest, err.Error())
		return
	}
	Ok(c, gin.H{"task_id": taskID})
}

func (req *replicateRequest) toSignal() (models.TradeSignal, error) {
	qty, err := decimal.NewFromString(req.Signal.Quantity)
	if err != nil {
		return models.TradeSignal{}, err
	}

	price := decimal.Zero
	if req.Signal.Price != "" {
		if price, err = decimal.NewFromString(req.Signal.Price); err != nil {
			return models.TradeSignal{}, err
		}
	}

	signal := models.TradeSignal{
		Symbol:        req.Signal.Symbol,
		Side:          models.Side(strings.ToLower(req.Signal.Side)),
		Quantity:      qty,
		Price:         price,
		OrderType:     models.OrderType(req.Signal.OrderType),
		Leverage:      req.Signal.Leverage,
		MasterTradeID: req.MasterTradeID,
		Metadata:      req.Signal.Metadata,
	}
	if signal.OrderType == "" {
		signal.OrderType = models.OrderTypeMarket
	}

	if req.Signal.StopLoss != "" {
		sl, err := decimal.NewFromString(req.Signal.StopLoss)
		if err != nil {
			return models.TradeSignal{}, err
		}
		signal.StopLoss = &sl
	}
	if req.Signal.TakeProfit != "" {
		tp, err := decimal.NewFromString(req.Signal.TakeProfit)
		if err != nil {
			return models.TradeSignal{}, err
		}
		signal.TakeProfit = &tp
	}
	return signal, nil
}

func parsePriority(raw string) replication.Priority {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "high":
		return replication.PriorityHigh
	case "low":
		return replication.PriorityLow
	default:
		return replication.PriorityNormal
	}
}

func (h *TasksHandler) cancel(c *gin.Context) {
	taskID := c.Param("id")
	if !h.Engine.CancelTask(taskID) {
		Error(c, http.StatusConflict, "task not cancellable")
		return
	}
	Ok(c, gin.H{"task_id": taskID, "cancelled": true})
}

func (h *TasksHandler) status(c *gin.Context) {
	view, ok := h.Engine.TaskStatus(c.Param("id"))
	if !ok {
		Error(c, http.StatusNotFound, "task not found")
		return
	}
	Ok(c, view)
}

type sizingRequest struct {
	FollowerID      string `json:"follower_id"`
	MasterTradeSize string `json:"master_trade_size" binding:"required"`
	Balance         string `json:"balance" binding:"required"`

	Performance struct {
		WinRate     float64 `json:"win_rate"`
		AvgWin      float64 `json:"avg_win"`
		AvgLoss     float64 `json:"avg_loss"`
		SharpeRatio float64 `json:"sharpe_ratio"`
	} `json:"performance" binding:"required"`
}

// sizing computes the capital allocation for one master trade without
// enqueuing anything. Follower limits are applied when a follower_id is given.
func (h *TasksHandler) sizing(c *gin.Context) {
	var req sizingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error())
		return
	}

	tradeSize, err := decimal.NewFromString(req.MasterTradeSize)
	if err != nil {
		Error(c, http.StatusBadRequest, "invalid master_trade_size")
		return
	}
	balance, err := decimal.NewFromString(req.Balance)
	if err != nil {
		Error(c, http.StatusBadRequest, "invalid balance")
		return
	}

	var limits models.RiskLimits
	if req.FollowerID != "" && h.Limits != nil {
		if limits, err = h.Limits.GetRiskLimits(c.Request.Context(), req.FollowerID); err != nil {
			if h.Logger != nil {
				h.Logger.Warn("risk limits fetch failed", zap.String("follower_id", req.FollowerID), zap.Error(err))
			}
			Error(c, http.StatusServiceUnavailable, "risk limits unavailable")
			return
		}
	}

	perf := models.MasterPerformance{
		WinRate:     req.Performance.WinRate,
		AvgWin:      req.Performance.AvgWin,
		AvgLoss:     req.Performance.AvgLoss,
		SharpeRatio: req.Performance.SharpeRatio,
	}
	size := h.Sizer.PositionSize(tradeSize, perf, limits, balance)
	Ok(c, gin.H{"position_size": size.String()})
}

func (h *TasksHandler) history(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusServiceUnavailable, "history unavailable")
		return
	}
	params := repository.ListTaskSummariesParams{Limit: 100}
	if status := strings.TrimSpace(c.Query("status")); status != "" {
		params.Status = &status
	}
	if rel := strings.TrimSpace(c.Query("follower_relationship_id")); rel != "" {
		params.FollowerRelationshipID = &rel
	}
	if since := strings.TrimSpace(c.Query("since")); since != "" {
		ts, err := time.Parse(time.RFC3339, since)
		if err != nil {
			Error(c, http.StatusBadRequest, "invalid since timestamp")
			return
		}
		params.Since = &ts
	}
	items, err := h.Repo.ListTaskSummaries(c.Request.Context(), params)
	if err != nil {
		if h.Logger != nil {
			h.Logger.Warn("list task summaries failed", zap.Error(err))
		}
		Error(c, http.StatusInternalServerError, "query failed")
		return
	}
	Ok(c, items)
}

func (h *TasksHandler) violations(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusServiceUnavailable, "violations unavailable")
		return
	}
	params := repository.ListViolationsParams{Limit: 100}
	if follower := strings.TrimSpace(c.Query("follower_id")); follower != "" {
		params.FollowerID = &follower
	}
	if vt := strings.TrimSpace(c.Query("type")); vt != "" {
		params.Type = &vt
	}
	items, err := h.Repo.ListViolations(c.Request.Context(), params)
	if err != nil {
		if h.Logger != nil {
			h.Logger.Warn("list violations failed", zap.Error(err))
		}
		Error(c, http.StatusInternalServerError, "query failed")
		return
	}
	Ok(c, items)
}

func (h *TasksHandler) metrics(c *gin.Context) {
	Ok(c, h.Engine.Metrics())
}

func (h *TasksHandler) queue(c *gin.Context) {
	Ok(c, h.Engine.QueueStatus())
}
