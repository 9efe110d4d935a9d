package services

import (
	"context"
	"fmt"

	"github.com/carlosapgomes/caseflow/internal/db"
	"github.com/carlosapgomes/caseflow/internal/models"
	"github.com/carlosapgomes/caseflow/internal/queue"
)

// JobFailureService implements queue.FailureHandler: when a job
// dead-letters, it finalizes the owning case as FAILED and enqueues the
// failure final-reply job.
type JobFailureService struct {
	cases *db.CaseRepository
	audit *db.AuditRepository
	jobs  queue.Repository
}

// NewJobFailureService builds a JobFailureService.
func NewJobFailureService(cases *db.CaseRepository, audit *db.AuditRepository, jobs queue.Repository) *JobFailureService {
	return &JobFailureService{cases: cases, audit: audit, jobs: jobs}
}

// HandleMaxRetries implements queue.FailureHandler.
func (s *JobFailureService) HandleMaxRetries(ctx context.Context, job models.Job) error {
	if job.CaseID == nil {
		return nil // no case to finalize, e.g. a case-less maintenance job
	}
	caseID := *job.CaseID

	applied, err := s.cases.MarkFailedIfNonTerminal(ctx, caseID)
	if err != nil {
		return fmt.Errorf("mark case failed: %w", err)
	}
	if !applied {
		return nil // case already CLEANED; nothing to finalize
	}

	if err := s.audit.AppendEvent(ctx, db.AuditEventCreateInput{
		CaseID: caseID, ActorType: "system", EventType: "CASE_FAILED_MAX_RETRIES",
		Payload: map[string]any{"job_type": job.JobType, "attempts": job.Attempts},
	}); err != nil {
		return fmt.Errorf("append CASE_FAILED_MAX_RETRIES: %w", err)
	}

	cause, details := "other", "not provided"
	if job.LastError != nil && *job.LastError != "" {
		details = *job.LastError
	}
	if _, err := s.jobs.Enqueue(ctx, db.JobEnqueueInput{
		CaseID: &caseID, JobType: models.JobTypePostRoom1FinalFailure,
		Payload: map[string]any{"cause": cause, "details": details},
	}); err != nil {
		return fmt.Errorf("enqueue post_room1_final_failure: %w", err)
	}

	return s.audit.AppendEvent(ctx, db.AuditEventCreateInput{
		CaseID: caseID, ActorType: "system", EventType: "JOB_ENQUEUED_POST_ROOM1_FAILURE",
	})
}

var _ queue.FailureHandler = (*JobFailureService)(nil)
