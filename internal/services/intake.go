package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/carlosapgomes/caseflow/internal/chat"
	"github.com/carlosapgomes/caseflow/internal/db"
	"github.com/carlosapgomes/caseflow/internal/models"
	"github.com/carlosapgomes/caseflow/internal/queue"
)

// IntakeEvent is a parsed Room-1 PDF event, the input to
// Room1IntakeService.Handle.
type IntakeEvent struct {
	RoomID       string
	EventID      string
	SenderUserID string
	PDFMxcURL    string
}

// Room1IntakeService creates a new case for each distinct PDF event
// delivered to Room 1 and kicks off the processing pipeline.
type Room1IntakeService struct {
	cases     *db.CaseRepository
	messages  *db.MessageRepository
	audit     *db.AuditRepository
	jobs      queue.Repository
	transport chat.Transport
}

// NewRoom1IntakeService builds a Room1IntakeService.
func NewRoom1IntakeService(cases *db.CaseRepository, messages *db.MessageRepository, audit *db.AuditRepository, jobs queue.Repository, transport chat.Transport) *Room1IntakeService {
	return &Room1IntakeService{cases: cases, messages: messages, audit: audit, jobs: jobs, transport: transport}
}

// Handle processes one Room-1 intake event. A duplicate delivery of an
// already-seen origin event is a silent no-op, reported back as
// (nil, nil) so the ingress poller can advance its cursor without error.
func (s *Room1IntakeService) Handle(ctx context.Context, ev IntakeEvent) (*models.Case, error) {
	caseID := uuid.New()
	c, err := s.cases.CreateCase(ctx, models.CaseCreateInput{
		CaseID:             caseID,
		Room1OriginRoomID:  ev.RoomID,
		Room1OriginEventID: ev.EventID,
		Room1SenderUserID:  ev.SenderUserID,
	}, models.StatusR1AckProcessing)
	if err != nil {
		if err == db.ErrDuplicateCaseOriginEvent {
			slog.Info("intake duplicate origin event ignored", "room_id", ev.RoomID, "event_id", ev.EventID)
			return nil, nil
		}
		return nil, fmt.Errorf("create case: %w", err)
	}

	if err := s.messages.AddMessage(ctx, db.CaseMessageCreateInput{
		CaseID:       c.CaseID,
		RoomID:       ev.RoomID,
		EventID:      ev.EventID,
		SenderUserID: &ev.SenderUserID,
		Kind:         "room1_origin",
	}); err != nil {
		return nil, fmt.Errorf("record origin message: %w", err)
	}
	if err := s.audit.AppendEvent(ctx, db.AuditEventCreateInput{
		CaseID:        c.CaseID,
		ActorType:     "human",
		ActorUserID:   &ev.SenderUserID,
		RoomID:        &ev.RoomID,
		MatrixEventID: &ev.EventID,
		EventType:     "CASE_CREATED",
	}); err != nil {
		return nil, fmt.Errorf("append CASE_CREATED: %w", err)
	}

	replyEventID, err := s.transport.ReplyText(ctx, ev.RoomID, ev.EventID, "processando…")
	if err != nil {
		return nil, fmt.Errorf("post processing reply: %w", err)
	}
	if err := s.messages.AddMessage(ctx, db.CaseMessageCreateInput{
		CaseID:  c.CaseID,
		RoomID:  ev.RoomID,
		EventID: replyEventID,
		Kind:    "bot_processing",
	}); err != nil {
		return nil, fmt.Errorf("record processing reply message: %w", err)
	}
	if err := s.audit.AppendEvent(ctx, db.AuditEventCreateInput{
		CaseID:        c.CaseID,
		ActorType:     "bot",
		RoomID:        &ev.RoomID,
		MatrixEventID: &replyEventID,
		EventType:     "BOT_PROCESSING_REPLY_POSTED",
	}); err != nil {
		return nil, fmt.Errorf("append BOT_PROCESSING_REPLY_POSTED: %w", err)
	}

	if _, err := s.jobs.Enqueue(ctx, db.JobEnqueueInput{
		CaseID:  &c.CaseID,
		JobType: models.JobTypeProcessPDFCase,
		Payload: map[string]any{"pdf_mxc_url": ev.PDFMxcURL},
	}); err != nil {
		return nil, fmt.Errorf("enqueue process_pdf_case: %w", err)
	}

	return c, nil
}
