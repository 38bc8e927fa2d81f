package models

import (
	"time"

	"gorm.io/datatypes"
)

// TaskSummary is the persisted record of a terminal replication task. Live task
// state stays in memory; this is the fire-and-forget audit/history row.
type TaskSummary struct {
	ID     uint64 `gorm:"primaryKey;autoIncrement"`
	TaskID string `gorm:"type:varchar(64);not null;uniqueIndex"`

	MasterTradeID          string `gorm:"type:varchar(100);not null;index"`
	FollowerRelationshipID string `gorm:"type:varchar(100);not null;index"`

	Symbol   string `gorm:"type:varchar(50);not null;index"`
	Side     string `gorm:"type:varchar(10);not null"`
	Status   string `gorm:"type:varchar(20);not null;index"`
	Priority int    `gorm:"not null"`

	Destinations int `gorm:"not null"`
	Successes    int `gorm:"not null"`

	Results datatypes.JSON `gorm:"type:jsonb"`
	Error   string         `gorm:"type:text"`

	EnqueuedAt  time.Time  `gorm:"type:timestamptz;not null"`
	StartedAt   *time.Time `gorm:"type:timestamptz"`
	CompletedAt *time.Time `gorm:"type:timestamptz"`
	CreatedAt   time.Time  `gorm:"type:timestamptz;autoCreateTime;index"`
}

func (TaskSummary) TableName() string {
	return "task_summaries"
}

// ViolationRecord persists one RiskViolation.
type ViolationRecord struct {
	ID          uint64 `gorm:"primaryKey;autoIncrement"`
	ViolationID string `gorm:"type:varchar(64);not null;uniqueIndex"`
	FollowerID  string `gorm:"type:varchar(100);not null;index"`

	Type         string  `gorm:"type:varchar(30);not null;index"`
	Severity     string  `gorm:"type:varchar(10);not null"`
	CurrentValue float64 `gorm:"not null"`
	LimitValue   float64 `gorm:"not null"`
	ViolationPct float64 `gorm:"not null"`
	Message      string  `gorm:"type:text"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime;index"`
}

func (ViolationRecord) TableName() string {
	return "risk_violations"
}

// MetricsSnapshot is a periodic dump of engine metrics, written by cron.
type MetricsSnapshot struct {
	ID      uint64         `gorm:"primaryKey;autoIncrement"`
	Payload datatypes.JSON `gorm:"type:jsonb;not null"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime;index"`
}

func (MetricsSnapshot) TableName() string {
	return "metrics_snapshots"
}
