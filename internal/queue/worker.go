package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/carlosapgomes/caseflow/internal/db"
	"github.com/carlosapgomes/caseflow/internal/models"
)

// AuditSink records queue-lifecycle audit events against a case. Optional:
// a nil sink simply skips audit writes (jobs with no case_id, e.g. none in
// this domain, would also skip).
type AuditSink interface {
	AppendEvent(ctx context.Context, in db.AuditEventCreateInput) error
}

// FailureHandler finalizes a case when one of its jobs dead-letters.
// Implemented by internal/services.JobFailureService; injected here so the
// queue package never imports services (services imports queue instead).
type FailureHandler interface {
	HandleMaxRetries(ctx context.Context, job models.Job) error
}

// Worker polls for due jobs and dispatches each to the handler registered
// for its job_type, one poll loop goroutine per worker.
type Worker struct {
	id        string
	repo      Repository
	registry  *HandlerRegistry
	audit     AuditSink
	onFailure FailureHandler
	pollEvery time.Duration
	batchSize int
	backoff   BackoffPolicy

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewWorker builds a Worker. pollEvery controls how often an idle worker
// re-checks for due jobs; batchSize bounds how many jobs one poll claims.
// audit and onFailure may be nil.
func NewWorker(id string, repo Repository, registry *HandlerRegistry, audit AuditSink, onFailure FailureHandler, pollEvery time.Duration, batchSize int) *Worker {
	return &Worker{
		id:        id,
		repo:      repo,
		registry:  registry,
		audit:     audit,
		onFailure: onFailure,
		pollEvery: pollEvery,
		batchSize: batchSize,
		backoff:   DefaultBackoffPolicy,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start launches the poll loop goroutine. Stop() must be called to release
// the goroutine.
func (w *Worker) Start(ctx context.Context) {
	go w.run(ctx)
}

// Stop signals the poll loop to exit and waits for the current iteration
// to finish.
func (w *Worker) Stop() {
	close(w.stopCh)
	<-w.doneCh
}

func (w *Worker) run(ctx context.Context) {
	defer close(w.doneCh)
	log := slog.With("worker_id", w.id)
	ticker := time.NewTicker(w.pollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			if err := w.pollAndProcess(ctx); err != nil {
				log.Error("poll failed", "error", err)
			}
		}
	}
}

func (w *Worker) pollAndProcess(ctx context.Context) error {
	jobs, err := w.repo.ClaimDueJobs(ctx, w.batchSize)
	if err != nil {
		return err
	}
	for _, job := range jobs {
		w.process(ctx, job)
	}
	return nil
}

func (w *Worker) process(ctx context.Context, job models.Job) {
	log := slog.With("worker_id", w.id, "job_id", job.JobID, "job_type", job.JobType)
	log.Info("job started", "attempts", job.Attempts, "max_attempts", job.MaxAttempts)

	handler := w.registry.Lookup(job.JobType)
	if handler == nil {
		w.handleError(ctx, job, fmt.Sprintf("Unknown job type: %s", job.JobType))
		return
	}

	if err := handler.Handle(ctx, job); err != nil {
		w.handleError(ctx, job, fmt.Sprintf("Handler error for %s: %s", job.JobType, err))
		return
	}

	if err := w.repo.MarkDone(ctx, job.JobID); err != nil {
		log.Error("mark done failed", "error", err)
		return
	}
	log.Info("job done")
}

func (w *Worker) handleError(ctx context.Context, job models.Job, errorSummary string) {
	log := slog.With("worker_id", w.id, "job_id", job.JobID, "job_type", job.JobType)
	log.Warn("job handler failed", "error", errorSummary, "attempts", job.Attempts)

	nextAttempt := job.Attempts + 1
	if nextAttempt < job.MaxAttempts {
		runAfter := time.Now().Add(w.backoff.NextDelay(nextAttempt))
		retried, err := w.repo.ScheduleRetry(ctx, job.JobID, runAfter, errorSummary)
		if err != nil {
			log.Error("schedule retry failed", "error", err)
			return
		}
		w.appendAudit(ctx, job, "JOB_RETRY_SCHEDULED", map[string]any{
			"job_type":      job.JobType,
			"attempts":      retried.Attempts,
			"run_after":     runAfter,
			"error_summary": errorSummary,
		})
		return
	}

	dead, err := w.repo.MarkDead(ctx, job.JobID, errorSummary)
	if err != nil {
		log.Error("mark dead failed", "error", err)
		return
	}
	w.appendAudit(ctx, job, "JOB_MAX_RETRIES_EXCEEDED", map[string]any{
		"job_type":   job.JobType,
		"attempts":   dead.Attempts,
		"last_error": errorSummary,
	})
	log.Error("job dead", "attempts", dead.Attempts, "error", errorSummary)

	if w.onFailure != nil {
		if err := w.onFailure.HandleMaxRetries(ctx, *dead); err != nil {
			log.Error("failure finalization failed", "error", err)
		}
	}
}

func (w *Worker) appendAudit(ctx context.Context, job models.Job, eventType string, payload map[string]any) {
	if w.audit == nil || job.CaseID == nil {
		return
	}
	if err := w.audit.AppendEvent(ctx, db.AuditEventCreateInput{
		CaseID:    *job.CaseID,
		ActorType: "system",
		EventType: eventType,
		Payload:   payload,
	}); err != nil {
		slog.Error("append audit event failed", "error", err, "event_type", eventType)
	}
}
