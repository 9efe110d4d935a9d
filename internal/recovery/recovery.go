// Package recovery implements the startup reconciliation sweep: requeue
// jobs orphaned by a prior crash, then backfill any next-step job a
// non-terminal case is missing.
package recovery

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/carlosapgomes/caseflow/internal/db"
	"github.com/carlosapgomes/caseflow/internal/models"
)

// JobRepository is the persistence port recovery depends on.
type JobRepository interface {
	ResetRunningToQueued(ctx context.Context) (int64, error)
	HasActiveJob(ctx context.Context, caseID uuid.UUID, jobType string) (bool, error)
	Enqueue(ctx context.Context, in db.JobEnqueueInput) (*models.Job, error)
}

// ReconcileRunningJobs requeues every job stuck in running, the first half
// of the startup sweep described in spec.md §4.7.1: a job left running at
// process exit is indistinguishable from one whose worker crashed
// mid-handler, so every running job is treated as orphaned on restart.
func ReconcileRunningJobs(ctx context.Context, jobs JobRepository) (int64, error) {
	n, err := jobs.ResetRunningToQueued(ctx)
	if err != nil {
		return 0, fmt.Errorf("reset running jobs to queued: %w", err)
	}
	if n > 0 {
		slog.Info("recovery: requeued orphaned running jobs", "count", n)
	}
	return n, nil
}

// nextJobByStatus maps a non-terminal case status to the job type that
// must exist to carry it forward, per spec.md §4.7's recovery table. A
// status absent from this map gets no recovery action: the WAIT_* states
// advance on a human reply or reaction, and the transient processing
// states are advanced by a job that was either just requeued by
// ReconcileRunningJobs or is still in flight.
var nextJobByStatus = map[models.CaseStatus]string{
	models.StatusDoctorAccepted: models.JobTypePostRoom3Request,
	models.StatusApptConfirmed:  models.JobTypePostRoom1FinalApptConfirmed,
	models.StatusApptDenied:     models.JobTypePostRoom1FinalApptDenied,
	models.StatusDoctorDenied:   models.JobTypePostRoom1FinalDenialTriage,
	models.StatusFailed:        models.JobTypePostRoom1FinalFailure,
	models.StatusCleanupRunning: models.JobTypeExecuteCleanup,
}

// CaseLister is the persistence port for the cases a Recover sweep
// inspects.
type CaseLister interface {
	ListNonTerminalCasesForRecovery(ctx context.Context) ([]db.RecoverySnapshot, error)
}

// Service walks every non-CLEANED case after a restart and enqueues the
// next-step job for any case whose expected job is missing, generalized
// from the teacher's running-job orphan sweep into a case-status-aware
// reconciliation this domain's state machine needs.
type Service struct {
	cases CaseLister
	jobs  JobRepository
}

// NewService builds a recovery Service.
func NewService(cases CaseLister, jobs JobRepository) *Service {
	return &Service{cases: cases, jobs: jobs}
}

// Recover enqueues the missing next-step job for every non-terminal case
// that doesn't already have one queued or running, and returns the count
// enqueued. Safe to call on every process start: HasActiveJob makes it a
// no-op for a case whose job survived (or was just requeued by
// ReconcileRunningJobs).
func (s *Service) Recover(ctx context.Context) (int, error) {
	cases, err := s.cases.ListNonTerminalCasesForRecovery(ctx)
	if err != nil {
		return 0, fmt.Errorf("list non-terminal cases: %w", err)
	}

	enqueued := 0
	for _, c := range cases {
		jobType, ok := nextJobByStatus[c.Status]
		if !ok {
			continue
		}

		has, err := s.jobs.HasActiveJob(ctx, c.CaseID, jobType)
		if err != nil {
			return enqueued, fmt.Errorf("check active job for case %s: %w", c.CaseID, err)
		}
		if has {
			continue
		}

		caseID := c.CaseID
		if _, err := s.jobs.Enqueue(ctx, db.JobEnqueueInput{CaseID: &caseID, JobType: jobType}); err != nil {
			return enqueued, fmt.Errorf("enqueue %s for case %s: %w", jobType, c.CaseID, err)
		}
		slog.Info("recovery: enqueued missing next-step job", "case_id", c.CaseID, "status", c.Status, "job_type", jobType)
		enqueued++
	}

	return enqueued, nil
}
