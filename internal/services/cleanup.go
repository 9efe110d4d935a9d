package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/carlosapgomes/caseflow/internal/chat"
	"github.com/carlosapgomes/caseflow/internal/db"
	"github.com/carlosapgomes/caseflow/internal/models"
	"github.com/carlosapgomes/caseflow/internal/queue"
)

// ExecuteCleanupService redacts every chat message posted for a case and
// marks it CLEANED, the terminal step of the state machine. The job
// succeeds only if every redaction succeeds; any failure fails the whole
// job so the worker retries it per the usual backoff/dead-letter path.
type ExecuteCleanupService struct {
	cases     *db.CaseRepository
	messages  *db.MessageRepository
	audit     *db.AuditRepository
	transport chat.Transport
}

// NewExecuteCleanupService builds an ExecuteCleanupService.
func NewExecuteCleanupService(cases *db.CaseRepository, messages *db.MessageRepository, audit *db.AuditRepository, transport chat.Transport) *ExecuteCleanupService {
	return &ExecuteCleanupService{cases: cases, messages: messages, audit: audit, transport: transport}
}

// Handle implements queue.Handler.
func (s *ExecuteCleanupService) Handle(ctx context.Context, job models.Job) error {
	if job.CaseID == nil {
		return fmt.Errorf("execute_cleanup job %d has no case_id", job.JobID)
	}
	caseID := *job.CaseID

	msgs, err := s.messages.ListMessages(ctx, caseID)
	if err != nil {
		return fmt.Errorf("list case messages: %w", err)
	}

	for _, m := range msgs {
		if err := s.transport.RedactEvent(ctx, m.RoomID, m.EventID, "case cleanup"); err != nil {
			slog.Error("redaction failed", "case_id", caseID, "room_id", m.RoomID, "event_id", m.EventID, "error", err)
			return fmt.Errorf("redact %s/%s: %w", m.RoomID, m.EventID, err)
		}
	}

	if err := s.cases.MarkCleanupCompleted(ctx, caseID); err != nil {
		return fmt.Errorf("mark cleanup completed: %w", err)
	}
	return s.audit.AppendEvent(ctx, db.AuditEventCreateInput{
		CaseID: caseID, ActorType: "system", EventType: "CLEANUP_COMPLETED",
	})
}

var _ queue.Handler = (*ExecuteCleanupService)(nil)
