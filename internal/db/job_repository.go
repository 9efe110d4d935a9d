package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/carlosapgomes/caseflow/internal/models"
)

// JobRepository implements the durable job queue's SQL: enqueue, claim,
// and the three terminal/retry transitions.
type JobRepository struct {
	db *Client
}

// NewJobRepository builds a JobRepository over an open Client.
func NewJobRepository(client *Client) *JobRepository {
	return &JobRepository{db: client}
}

// JobEnqueueInput is the payload accepted by Enqueue.
type JobEnqueueInput struct {
	CaseID  *uuid.UUID
	JobType string
	Payload map[string]any
}

// Enqueue inserts a new queued job and returns the persisted row.
func (r *JobRepository) Enqueue(ctx context.Context, in JobEnqueueInput) (*models.Job, error) {
	payload := in.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal job payload: %w", err)
	}
	const q = `
		INSERT INTO jobs (case_id, job_type, payload)
		VALUES ($1, $2, $3)
		RETURNING *`
	var j models.Job
	if err := r.db.GetContext(ctx, &j, q, in.CaseID, in.JobType, raw); err != nil {
		return nil, fmt.Errorf("enqueue job: %w", err)
	}
	return &j, nil
}

// ClaimDueJobs atomically claims up to limit queued jobs whose run_after
// has elapsed, in a single statement: a CTE selects and locks candidate
// rows with FOR UPDATE SKIP LOCKED so concurrent workers never contend on
// the same row, and the outer UPDATE transitions them to running.
func (r *JobRepository) ClaimDueJobs(ctx context.Context, limit int) ([]models.Job, error) {
	const q = `
		WITH claim AS (
			SELECT job_id
			FROM jobs
			WHERE status = 'queued' AND run_after <= now()
			ORDER BY job_id
			FOR UPDATE SKIP LOCKED
			LIMIT $1
		)
		UPDATE jobs
		SET status = 'running', updated_at = now()
		WHERE job_id IN (SELECT job_id FROM claim)
		RETURNING *`
	var jobs []models.Job
	if err := r.db.SelectContext(ctx, &jobs, q, limit); err != nil {
		return nil, fmt.Errorf("claim due jobs: %w", err)
	}
	return jobs, nil
}

// MarkDone marks a job as successfully completed.
func (r *JobRepository) MarkDone(ctx context.Context, jobID int64) error {
	const q = `UPDATE jobs SET status = 'done', updated_at = now() WHERE job_id = $1`
	_, err := r.db.ExecContext(ctx, q, jobID)
	return err
}

// MarkFailed marks a job as terminally failed without scheduling a retry.
// Neither the worker nor any handler in this repository calls it; handler
// errors go through ScheduleRetry or MarkDead.
func (r *JobRepository) MarkFailed(ctx context.Context, jobID int64, lastError string) error {
	const q = `UPDATE jobs SET status = 'failed', last_error = $2, updated_at = now() WHERE job_id = $1`
	_, err := r.db.ExecContext(ctx, q, jobID, lastError)
	return err
}

// ScheduleRetry requeues a job with an incremented attempt count and a new
// run_after, returning the updated row.
func (r *JobRepository) ScheduleRetry(ctx context.Context, jobID int64, runAfter time.Time, lastError string) (*models.Job, error) {
	const q = `
		UPDATE jobs SET
			status = 'queued',
			run_after = $2,
			attempts = attempts + 1,
			last_error = $3,
			updated_at = now()
		WHERE job_id = $1
		RETURNING *`
	var j models.Job
	if err := r.db.GetContext(ctx, &j, q, jobID, runAfter, lastError); err != nil {
		return nil, fmt.Errorf("schedule retry: %w", err)
	}
	return &j, nil
}

// MarkDead dead-letters a job after exhausting its retry budget.
func (r *JobRepository) MarkDead(ctx context.Context, jobID int64, lastError string) (*models.Job, error) {
	const q = `
		UPDATE jobs SET
			status = 'dead',
			attempts = attempts + 1,
			last_error = $2,
			updated_at = now()
		WHERE job_id = $1
		RETURNING *`
	var j models.Job
	if err := r.db.GetContext(ctx, &j, q, jobID, lastError); err != nil {
		return nil, fmt.Errorf("mark dead: %w", err)
	}
	return &j, nil
}

// HasActiveJob reports whether a case already has a queued or running job
// of the given type, used by handlers to avoid enqueueing duplicate
// next-step work during recovery.
func (r *JobRepository) HasActiveJob(ctx context.Context, caseID uuid.UUID, jobType string) (bool, error) {
	const q = `
		SELECT EXISTS(
			SELECT 1 FROM jobs
			WHERE case_id = $1 AND job_type = $2 AND status IN ('queued', 'running')
		)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, q, caseID, jobType); err != nil {
		return false, err
	}
	return exists, nil
}

// ResetRunningToQueued requeues every job stuck in running, used by the
// startup recovery sweep to recover work orphaned by a prior crash.
func (r *JobRepository) ResetRunningToQueued(ctx context.Context) (int64, error) {
	const q = `UPDATE jobs SET status = 'queued', updated_at = now() WHERE status = 'running'`
	res, err := r.db.ExecContext(ctx, q)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
