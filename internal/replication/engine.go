package replication

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"replicator/internal/breaker"
	"replicator/internal/config"
	"replicator/internal/latency"
	"replicator/internal/models"
	"replicator/internal/platform"
	"replicator/internal/repository"
	"replicator/internal/risk"
)

// AccountStateProvider supplies the follower account snapshot used by the risk
// gate at validation time.
type AccountStateProvider interface {
	GetAccountState(ctx context.Context, followerRelationshipID string) (models.AccountState, error)
}

// Options wires an Engine. Gate, Accounts and Adapters are required; Repo,
// Logger and the callbacks are optional.
type Options struct {
	Config  config.EngineConfig
	Breaker config.BreakerConfig
	Latency config.LatencyConfig

	Gate     *risk.Gate
	Accounts AccountStateProvider
	Adapters *platform.Registry
	Repo     repository.Repository
	Logger   *zap.Logger

	OnTaskCompleted func(TaskView)
	OnTaskFailed    func(TaskView)
}

// Engine is the replication pipeline: a fixed worker pool pulls tasks off the
// priority queue and runs each through risk gating, breaker filtering,
// latency-ranked parallel dispatch and result aggregation.
//
// The engine owns its queue, its per-destination breaker table and its latency
// optimizer; nothing here is package-global.
type Engine struct {
	cfg config.EngineConfig

	queue     *Queue
	gate      *risk.Gate
	accounts  AccountStateProvider
	adapters  *platform.Registry
	breakers  *breaker.Table
	optimizer *latency.Optimizer
	metrics   *Metrics
	repo      repository.Repository
	logger    *zap.Logger

	onCompleted func(TaskView)
	onFailed    func(TaskView)

	mu       sync.RWMutex
	tasks    map[string]*Task
	terminal []string
}

func New(opts Options) *Engine {
	cfg := opts.Config
	if cfg.Workers <= 0 {
		cfg.Workers = 10
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = defaultTaskTimeout
	}
	if cfg.IdleBackoff <= 0 {
		cfg.IdleBackoff = 50 * time.Millisecond
	}
	if cfg.MetricsWindow <= 0 {
		cfg.MetricsWindow = 1000
	}

	threshold := opts.Breaker.FailureThreshold
	recovery := opts.Breaker.DispatchRecovery
	if recovery <= 0 {
		recovery = 60 * time.Second
	}

	return &Engine{
		cfg:         cfg,
		queue:       NewQueue(),
		gate:        opts.Gate,
		accounts:    opts.Accounts,
		adapters:    opts.Adapters,
		breakers:    breaker.NewTable(threshold, recovery),
		optimizer:   latency.NewOptimizer(opts.Latency.WindowSize),
		metrics:     NewMetrics(cfg.MetricsWindow),
		repo:        opts.Repo,
		logger:      opts.Logger,
		onCompleted: opts.OnTaskCompleted,
		onFailed:    opts.OnTaskFailed,
		tasks:       map[string]*Task{},
	}
}

// Run starts the worker pool and blocks until ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	if e.logger != nil {
		e.logger.Info("replication engine started", zap.Int("workers", e.cfg.Workers))
	}
	var wg sync.WaitGroup
	for i := 0; i < e.cfg.Workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			e.workerLoop(ctx, id)
		}(i)
	}
	<-ctx.Done()
	wg.Wait()
	if e.logger != nil {
		e.logger.Info("replication engine stopped")
	}
	return ctx.Err()
}

// ReplicateTrade enqueues a replication task and returns its id immediately.
func (e *Engine) ReplicateTrade(ctx context.Context, masterTradeID, followerRelationshipID string, signal models.TradeSignal, destinations []models.Destination, priority Priority) (string, error) {
	if masterTradeID == "" {
		return "", fmt.Errorf("master trade id required")
	}
	if followerRelationshipID == "" {
		return "", fmt.Errorf("follower relationship id required")
	}
	if signal.Symbol == "" {
		return "", fmt.Errorf("signal symbol required")
	}
	if len(destinations) == 0 {
		return "", fmt.Errorf("at least one destination required")
	}

	task := NewTask(masterTradeID, followerRelationshipID, signal, destinations, priority)
	task.Timeout = e.cfg.TaskTimeout
	task.MaxRetries = e.cfg.MaxRetries

	e.mu.Lock()
	e.tasks[task.ID] = task
	e.mu.Unlock()

	e.queue.Put(task)

	if e.logger != nil {
		e.logger.Debug("task enqueued",
			zap.String("task_id", task.ID),
			zap.String("symbol", signal.Symbol),
			zap.String("priority", task.Priority.String()),
			zap.Int("destinations", len(destinations)),
		)
	}
	return task.ID, nil
}

// CancelTask removes a still-pending task from the queue. Executing tasks are
// not interrupted; they are bounded by their own dispatch timeout.
func (e *Engine) CancelTask(taskID string) bool {
	if !e.queue.Remove(taskID) {
		return false
	}

	e.mu.Lock()
	task, ok := e.tasks[taskID]
	if ok {
		task.Status = StatusCancelled
		task.CompletedAt = time.Now().UTC()
		e.rememberTerminal(taskID)
	}
	e.mu.Unlock()

	if ok {
		e.metrics.ObserveTask(StatusCancelled, 0)
		e.persistSummary(task)
		if e.logger != nil {
			e.logger.Info("task cancelled", zap.String("task_id", taskID))
		}
	}
	return true
}

// TaskStatus returns a snapshot of a known task.
func (e *Engine) TaskStatus(taskID string) (TaskView, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	task, ok := e.tasks[taskID]
	if !ok {
		return TaskView{}, false
	}
	return task.view(), true
}

// Metrics returns the aggregate metrics snapshot.
func (e *Engine) Metrics() Snapshot {
	return e.metrics.Snapshot()
}

// QueueStatus reports queue depth and worker count.
type QueueStatus struct {
	Depth    int               `json:"depth"`
	Workers  int               `json:"workers"`
	Breakers map[string]string `json:"breakers"`
}

func (e *Engine) QueueStatus() QueueStatus {
	return QueueStatus{
		Depth:    e.queue.Len(),
		Workers:  e.cfg.Workers,
		Breakers: e.breakers.States(),
	}
}

func (e *Engine) workerLoop(ctx context.Context, id int) {
	timer := time.NewTimer(e.cfg.IdleBackoff)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		task := e.queue.Get()
		if task == nil {
			timer.Reset(e.cfg.IdleBackoff)
			select {
			case <-ctx.Done():
				return
			case <-timer.C:
			}
			continue
		}

		e.processTask(ctx, task)
	}
}

// processTask runs one task to a terminal state. Any panic below is converted
// into a FAILED task so a bad adapter or provider never kills the worker.
func (e *Engine) processTask(ctx context.Context, task *Task) {
	defer func() {
		if r := recover(); r != nil {
			if e.logger != nil {
				e.logger.Error("task processing panicked",
					zap.String("task_id", task.ID), zap.Any("panic", r))
			}
			e.finishTask(task, StatusFailed, fmt.Sprintf("internal error: %v", r))
		}
	}()

	e.mu.Lock()
	if task.Status != StatusPending {
		// Cancelled between dequeue and claim.
		e.mu.Unlock()
		return
	}
	task.Status = StatusExecuting
	task.StartedAt = time.Now().UTC()
	e.mu.Unlock()

	state, err := e.accounts.GetAccountState(ctx, task.FollowerRelationshipID)
	if err != nil {
		e.finishTask(task, StatusFailed, fmt.Sprintf("account state unavailable: %v", err))
		return
	}

	accepted, violations := e.gate.Validate(ctx, task.FollowerRelationshipID, task.Signal, state)
	if !accepted {
		msgs := make([]string, 0, len(violations))
		for _, v := range violations {
			msgs = append(msgs, string(v.Type))
		}
		e.finishTask(task, StatusFailed, "rejected by risk policy: "+strings.Join(msgs, ", "))
		return
	}

	// Dispatch attempts loop on the worker: a zero-fill attempt is redone up
	// to MaxRetries times while the task stays EXECUTING. Only the final
	// attempt's results are published, once, at terminal time.
	var results []dispatchOutcome
	var successes int
	for {
		eligible := make([]models.Destination, 0, len(task.Destinations))
		for _, dest := range task.Destinations {
			if e.breakers.Get(dest.ID).CanExecute() {
				eligible = append(eligible, dest)
			} else if e.logger != nil {
				e.logger.Debug("destination skipped, breaker open",
					zap.String("task_id", task.ID),
					zap.String("destination_id", dest.ID),
				)
			}
		}
		if len(eligible) == 0 {
			if len(results) == 0 {
				e.finishTask(task, StatusFailed, "no eligible destinations: all circuit breakers open")
				return
			}
			break
		}

		ranked := e.rankDestinations(task.Signal.Symbol, eligible)
		results = e.dispatch(ctx, task, ranked)

		successes = 0
		for _, res := range results {
			e.metrics.ObserveDispatch(res.result.DestinationID, res.result.Success)
			e.optimizer.Record(res.result.DestinationID, task.Signal.Symbol, res.latency, res.result.Success)
			db := e.breakers.Get(res.result.DestinationID)
			if res.result.Success {
				db.RecordSuccess()
				successes++
			} else {
				db.RecordFailure()
			}
		}

		if successes > 0 || task.Attempts >= task.MaxRetries {
			break
		}

		e.mu.Lock()
		task.Attempts++
		attempt := task.Attempts
		e.mu.Unlock()
		if e.logger != nil {
			e.logger.Info("retrying failed dispatch",
				zap.String("task_id", task.ID),
				zap.Int("attempt", attempt),
				zap.Int("max_retries", task.MaxRetries),
			)
		}
	}

	e.mu.Lock()
	for _, res := range results {
		task.Results[res.result.DestinationID] = res.result
	}
	e.mu.Unlock()

	switch {
	case successes == len(results):
		e.finishTask(task, StatusCompleted, "")
	case successes > 0:
		e.finishTask(task, StatusPartial, fmt.Sprintf("%d of %d destinations failed", len(results)-successes, len(results)))
	default:
		e.finishTask(task, StatusFailed, "all destinations failed")
	}
}

func (e *Engine) rankDestinations(symbol string, eligible []models.Destination) []models.Destination {
	ids := make([]string, 0, len(eligible))
	byID := make(map[string]models.Destination, len(eligible))
	for _, d := range eligible {
		ids = append(ids, d.ID)
		byID[d.ID] = d
	}
	ranked := e.optimizer.Rank(symbol, ids)
	out := make([]models.Destination, 0, len(ranked))
	for _, id := range ranked {
		out = append(out, byID[id])
	}
	return out
}

type dispatchOutcome struct {
	result  models.ExecutionResult
	latency time.Duration
}

// dispatch fans the signal out to every destination concurrently under one
// shared deadline. Calls still outstanding when the deadline passes are
// cancelled and reported as timeout failures; completed results are kept.
func (e *Engine) dispatch(ctx context.Context, task *Task, destinations []models.Destination) []dispatchOutcome {
	timeout := task.Timeout
	if timeout <= 0 {
		timeout = e.cfg.TaskTimeout
	}
	dispatchCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	outcomeCh := make(chan dispatchOutcome, len(destinations))
	for _, dest := range destinations {
		go func(dest models.Destination) {
			start := time.Now()
			defer func() {
				if r := recover(); r != nil {
					outcomeCh <- dispatchOutcome{
						result: models.ExecutionResult{
							Success:       false,
							DestinationID: dest.ID,
							Error:         fmt.Sprintf("adapter panic: %v", r),
							Timestamp:     time.Now().UTC(),
						},
						latency: time.Since(start),
					}
				}
			}()
			result := e.executeOne(dispatchCtx, dest, task.Signal)
			outcomeCh <- dispatchOutcome{result: result, latency: time.Since(start)}
		}(dest)
	}

	outcomes := make([]dispatchOutcome, 0, len(destinations))
	seen := make(map[string]bool, len(destinations))

collect:
	for len(outcomes) < len(destinations) {
		select {
		case out := <-outcomeCh:
			outcomes = append(outcomes, out)
			seen[out.result.DestinationID] = true
		case <-dispatchCtx.Done():
			break collect
		}
	}
	cancel()

	for _, dest := range destinations {
		if seen[dest.ID] {
			continue
		}
		outcomes = append(outcomes, dispatchOutcome{
			result: models.ExecutionResult{
				Success:       false,
				DestinationID: dest.ID,
				Error:         fmt.Sprintf("execution timed out after %s", timeout),
				Timestamp:     time.Now().UTC(),
			},
			latency: timeout,
		})
	}
	return outcomes
}

// executeOne runs a single adapter call, folding call errors and missing
// adapters into a failed ExecutionResult so sibling calls are unaffected.
func (e *Engine) executeOne(ctx context.Context, dest models.Destination, signal models.TradeSignal) models.ExecutionResult {
	adapter, ok := e.adapters.Resolve(dest.Platform)
	if !ok {
		return models.ExecutionResult{
			Success:       false,
			DestinationID: dest.ID,
			Error:         fmt.Sprintf("no adapter registered for platform %q", dest.Platform),
			Timestamp:     time.Now().UTC(),
		}
	}

	result, err := adapter.Execute(ctx, dest, signal)
	if err != nil {
		return models.ExecutionResult{
			Success:       false,
			DestinationID: dest.ID,
			Error:         err.Error(),
			Timestamp:     time.Now().UTC(),
		}
	}
	result.DestinationID = dest.ID
	if result.Timestamp.IsZero() {
		result.Timestamp = time.Now().UTC()
	}
	return result
}

func (e *Engine) finishTask(task *Task, status TaskStatus, errMsg string) {
	now := time.Now().UTC()

	e.mu.Lock()
	task.Status = status
	task.Error = errMsg
	task.CompletedAt = now
	view := task.view()
	e.rememberTerminal(task.ID)
	e.mu.Unlock()

	elapsed := time.Duration(0)
	if !task.StartedAt.IsZero() {
		elapsed = now.Sub(task.StartedAt)
	}
	e.metrics.ObserveTask(status, elapsed)
	e.persistSummary(task)

	if e.logger != nil {
		e.logger.Info("task finished",
			zap.String("task_id", task.ID),
			zap.String("status", string(status)),
			zap.Duration("elapsed", elapsed),
			zap.String("error", errMsg),
		)
	}

	switch status {
	case StatusCompleted, StatusPartial:
		if e.onCompleted != nil {
			e.onCompleted(view)
		}
	default:
		if e.onFailed != nil {
			e.onFailed(view)
		}
	}
}

// rememberTerminal caps the retained terminal tasks so the in-memory table
// does not grow without bound. Caller holds e.mu.
func (e *Engine) rememberTerminal(taskID string) {
	e.terminal = append(e.terminal, taskID)
	for len(e.terminal) > e.cfg.MetricsWindow {
		evict := e.terminal[0]
		e.terminal = e.terminal[1:]
		delete(e.tasks, evict)
	}
}

// persistSummary writes the task record in the background; failures are logged
// and never block the pipeline.
func (e *Engine) persistSummary(task *Task) {
	if e.repo == nil {
		return
	}

	e.mu.RLock()
	view := task.view()
	e.mu.RUnlock()

	successes := 0
	for _, r := range view.Results {
		if r.Success {
			successes++
		}
	}
	var resultsJSON datatypes.JSON
	if len(view.Results) > 0 {
		if raw, err := json.Marshal(view.Results); err == nil {
			resultsJSON = raw
		}
	}
	summary := &models.TaskSummary{
		TaskID:                 view.ID,
		MasterTradeID:          view.MasterTradeID,
		FollowerRelationshipID: view.FollowerRelationshipID,
		Symbol:                 view.Symbol,
		Side:                   string(task.Signal.Side),
		Status:                 string(view.Status),
		Priority:               int(task.Priority),
		Destinations:           view.Destinations,
		Successes:              successes,
		Results:                resultsJSON,
		Error:                  view.Error,
		EnqueuedAt:             view.EnqueuedAt,
		StartedAt:              view.StartedAt,
		CompletedAt:            view.CompletedAt,
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := e.repo.SaveTaskSummary(ctx, summary); err != nil && e.logger != nil {
			e.logger.Warn("save task summary failed",
				zap.String("task_id", view.ID), zap.Error(err))
		}
	}()
}
