package replication

import (
	"time"

	"github.com/google/uuid"

	"replicator/internal/models"
)

// Priority orders tasks in the queue; lower value is served first.
type Priority int

const (
	PriorityHigh   Priority = 1
	PriorityNormal Priority = 2
	PriorityLow    Priority = 3
)

func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityNormal:
		return "normal"
	case PriorityLow:
		return "low"
	default:
		return "unknown"
	}
}

// TaskStatus is the task lifecycle state. Transitions are monotonic:
// PENDING → EXECUTING → {COMPLETED, PARTIAL, FAILED}, or PENDING → CANCELLED.
type TaskStatus string

const (
	StatusPending   TaskStatus = "pending"
	StatusExecuting TaskStatus = "executing"
	StatusCompleted TaskStatus = "completed"
	StatusPartial   TaskStatus = "partial"
	StatusFailed    TaskStatus = "failed"
	StatusCancelled TaskStatus = "cancelled"
)

func (s TaskStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusPartial, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// Task is one unit of replication work: copy this signal to this follower's
// destinations. The engine owns a task exclusively from claim to terminal
// state; external reads go through the engine's snapshot accessor.
type Task struct {
	ID                     string
	MasterTradeID          string
	FollowerRelationshipID string
	Signal                 models.TradeSignal
	Destinations           []models.Destination
	Priority               Priority
	MaxRetries             int
	Attempts               int
	Timeout                time.Duration

	Status      TaskStatus
	EnqueuedAt  time.Time
	StartedAt   time.Time
	CompletedAt time.Time

	// Results holds one write-once entry per dispatched destination. Its size
	// never exceeds the post-filter destination count.
	Results map[string]models.ExecutionResult
	Error   string
}

const defaultTaskTimeout = 30 * time.Second

func NewTask(masterTradeID, followerRelationshipID string, signal models.TradeSignal, destinations []models.Destination, priority Priority) *Task {
	if priority < PriorityHigh || priority > PriorityLow {
		priority = PriorityNormal
	}
	return &Task{
		ID:                     uuid.NewString(),
		MasterTradeID:          masterTradeID,
		FollowerRelationshipID: followerRelationshipID,
		Signal:                 signal,
		Destinations:           destinations,
		Priority:               priority,
		Timeout:                defaultTaskTimeout,
		Status:                 StatusPending,
		EnqueuedAt:             time.Now().UTC(),
		Results:                map[string]models.ExecutionResult{},
	}
}

// TaskView is an immutable snapshot for status queries.
type TaskView struct {
	ID                     string                            `json:"id"`
	MasterTradeID          string                            `json:"master_trade_id"`
	FollowerRelationshipID string                            `json:"follower_relationship_id"`
	Symbol                 string                            `json:"symbol"`
	Status                 TaskStatus                        `json:"status"`
	Priority               string                            `json:"priority"`
	Destinations           int                               `json:"destinations"`
	Attempts               int                               `json:"attempts"`
	Results                map[string]models.ExecutionResult `json:"results,omitempty"`
	Error                  string                            `json:"error,omitempty"`
	EnqueuedAt             time.Time                         `json:"enqueued_at"`
	StartedAt              *time.Time                        `json:"started_at,omitempty"`
	CompletedAt            *time.Time                        `json:"completed_at,omitempty"`
}

func (t *Task) view() TaskView {
	v := TaskView{
		ID:                     t.ID,
		MasterTradeID:          t.MasterTradeID,
		FollowerRelationshipID: t.FollowerRelationshipID,
		Symbol:                 t.Signal.Symbol,
		Status:                 t.Status,
		Priority:               t.Priority.String(),
		Destinations:           len(t.Destinations),
		Attempts:               t.Attempts,
		Error:                  t.Error,
		EnqueuedAt:             t.EnqueuedAt,
	}
	if len(t.Results) > 0 {
		v.Results = make(map[string]models.ExecutionResult, len(t.Results))
		for k, r := range t.Results {
			v.Results[k] = r
		}
	}
	if !t.StartedAt.IsZero() {
		ts := t.StartedAt
		v.StartedAt = &ts
	}
	if !t.CompletedAt.IsZero() {
		ts := t.CompletedAt
		v.CompletedAt = &ts
	}
	return v
}
