package queue

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/carlosapgomes/caseflow/internal/db"
	"github.com/carlosapgomes/caseflow/internal/models"
)

// Repository is the persistence port the queue package depends on, so
// Pool/Worker can be unit tested against a fake without a database.
type Repository interface {
	Enqueue(ctx context.Context, in db.JobEnqueueInput) (*models.Job, error)
	ClaimDueJobs(ctx context.Context, limit int) ([]models.Job, error)
	MarkDone(ctx context.Context, jobID int64) error
	MarkFailed(ctx context.Context, jobID int64, lastError string) error
	ScheduleRetry(ctx context.Context, jobID int64, runAfter time.Time, lastError string) (*models.Job, error)
	MarkDead(ctx context.Context, jobID int64, lastError string) (*models.Job, error)
	HasActiveJob(ctx context.Context, caseID uuid.UUID, jobType string) (bool, error)
}

var _ Repository = (*db.JobRepository)(nil)
