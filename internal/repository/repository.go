package repository

import (
	"context"
	"time"

	"replicator/internal/models"
)

type ListTaskSummariesParams struct {
	Status                 *string
	FollowerRelationshipID *string
	Since                  *time.Time
	Limit                  int
	Offset                 int
}

type ListViolationsParams struct {
	FollowerID *string
	Type       *string
	Since      *time.Time
	Limit      int
	Offset     int
}

// Repository is the persistence collaborator. Writes from the replication
// pipeline are fire-and-forget: callers log failures and never block on them.
type Repository interface {
	SaveTaskSummary(ctx context.Context, item *models.TaskSummary) error
	ListTaskSummaries(ctx context.Context, params ListTaskSummariesParams) ([]models.TaskSummary, error)

	SaveViolation(ctx context.Context, item *models.ViolationRecord) error
	ListViolations(ctx context.Context, params ListViolationsParams) ([]models.ViolationRecord, error)

	SaveMetricsSnapshot(ctx context.Context, item *models.MetricsSnapshot) error
}
