package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/carlosapgomes/caseflow/internal/chat"
	"github.com/carlosapgomes/caseflow/internal/db"
	"github.com/carlosapgomes/caseflow/internal/models"
	"github.com/carlosapgomes/caseflow/internal/queue"
)

// ErrRoom2WidgetPreconditionFailed signals the post_room2_widget job ran
// against a case that is neither LLM_SUGGEST nor R2_POST_WIDGET, or whose
// LLM artifacts are incomplete. Like any handler error it is retried by
// the worker and dead-lettered once attempts run out.
var ErrRoom2WidgetPreconditionFailed = errors.New("case not ready for room2 widget post")

// PostRoom2WidgetService posts the doctor-facing widget root message and
// its three replies (extracted-text attachment, summary, decision
// template), then advances the case to WAIT_DOCTOR.
type PostRoom2WidgetService struct {
	cases     *db.CaseRepository
	messages  *db.MessageRepository
	audit     *db.AuditRepository
	transport chat.Transport
	roomID    string
	priorCase PriorCaseLookupPort
}

// NewPostRoom2WidgetService builds a PostRoom2WidgetService. roomID is the
// Room-2 room the widget is posted into.
func NewPostRoom2WidgetService(cases *db.CaseRepository, messages *db.MessageRepository, audit *db.AuditRepository, transport chat.Transport, roomID string, priorCase PriorCaseLookupPort) *PostRoom2WidgetService {
	return &PostRoom2WidgetService{cases: cases, messages: messages, audit: audit, transport: transport, roomID: roomID, priorCase: priorCase}
}

// Handle implements queue.Handler.
func (s *PostRoom2WidgetService) Handle(ctx context.Context, job models.Job) error {
	if job.CaseID == nil {
		return fmt.Errorf("post_room2_widget job %d has no case_id", job.JobID)
	}
	caseID := *job.CaseID

	snap, err := s.cases.GetRoom2WidgetSnapshot(ctx, caseID)
	if err != nil {
		return fmt.Errorf("load room2 widget snapshot: %w", err)
	}
	if snap.Status != models.StatusLLMSuggest && snap.Status != models.StatusR2PostWidget {
		return fmt.Errorf("%w: status=%s", ErrRoom2WidgetPreconditionFailed, snap.Status)
	}
	if snap.ExtractedText == nil || snap.AgencyRecordNumber == nil || len(snap.StructuredDataJSON) == 0 ||
		snap.SummaryText == nil || len(snap.SuggestedActionJSON) == 0 {
		return fmt.Errorf("%w: missing LLM artifacts", ErrRoom2WidgetPreconditionFailed)
	}

	prior, denialCount7d, err := s.priorCase.LookupRecentContext(ctx, caseID, *snap.AgencyRecordNumber)
	if err != nil {
		return fmt.Errorf("lookup prior case context: %w", err)
	}
	if err := s.audit.AppendEvent(ctx, db.AuditEventCreateInput{
		CaseID: caseID, ActorType: "system", EventType: "PRIOR_CASE_LOOKUP_COMPLETED",
		Payload: map[string]any{"found": prior != nil, "denial_count_7d": denialCount7d},
	}); err != nil {
		return fmt.Errorf("append PRIOR_CASE_LOOKUP_COMPLETED: %w", err)
	}

	rootBody := fmt.Sprintf("Novo caso para triagem — prontuario: %s", *snap.AgencyRecordNumber)
	rootEventID, err := s.transport.SendText(ctx, s.roomID, rootBody)
	if err != nil {
		return fmt.Errorf("post room2 root message: %w", err)
	}
	if err := s.recordPost(ctx, caseID, rootEventID, "", "room2_case_root", "ROOM2_WIDGET_POSTED", rootBody); err != nil {
		return err
	}

	filename := fmt.Sprintf("caso-%s.txt", caseID.String())
	attachmentEventID, err := s.transport.ReplyFileText(ctx, s.roomID, rootEventID, filename, *snap.ExtractedText)
	if err != nil {
		return fmt.Errorf("post room2 text attachment: %w", err)
	}
	if err := s.recordPost(ctx, caseID, attachmentEventID, rootEventID, "room2_case_text_attachment", "ROOM2_CASE_TEXT_ATTACHMENT_POSTED", *snap.ExtractedText); err != nil {
		return err
	}

	summaryBody := *snap.SummaryText
	summaryEventID, err := s.transport.ReplyText(ctx, s.roomID, rootEventID, summaryBody)
	if err != nil {
		return fmt.Errorf("post room2 summary: %w", err)
	}
	if err := s.recordPost(ctx, caseID, summaryEventID, rootEventID, "room2_case_summary", "ROOM2_CASE_SUMMARY_POSTED", summaryBody); err != nil {
		return err
	}

	instructionsBody := "Responda este caso com:\ndecisao: aceitar|negar\nsuporte: nenhum|anestesista|anestesista_uti\nmotivo: <texto>\ncaso: " + caseID.String()
	instructionsEventID, err := s.transport.ReplyText(ctx, s.roomID, rootEventID, instructionsBody)
	if err != nil {
		return fmt.Errorf("post room2 instructions: %w", err)
	}
	if err := s.recordPost(ctx, caseID, instructionsEventID, rootEventID, "room2_case_instructions", "ROOM2_CASE_INSTRUCTIONS_POSTED", instructionsBody); err != nil {
		return err
	}

	if err := s.cases.UpdateStatus(ctx, caseID, models.StatusR2PostWidget); err != nil {
		return fmt.Errorf("transition to R2_POST_WIDGET: %w", err)
	}
	if err := s.cases.UpdateStatus(ctx, caseID, models.StatusWaitDoctor); err != nil {
		return fmt.Errorf("transition to WAIT_DOCTOR: %w", err)
	}
	if err := s.audit.AppendEvent(ctx, db.AuditEventCreateInput{
		CaseID: caseID, ActorType: "system", EventType: "CASE_STATUS_CHANGED",
		Payload: map[string]any{"from": string(snap.Status), "to": string(models.StatusWaitDoctor)},
	}); err != nil {
		return fmt.Errorf("append CASE_STATUS_CHANGED: %w", err)
	}
	return nil
}

func (s *PostRoom2WidgetService) recordPost(ctx context.Context, caseID uuid.UUID, eventID, replyToEventID, kind, auditEventType, body string) error {
	if err := s.messages.AddMessage(ctx, db.CaseMessageCreateInput{CaseID: caseID, RoomID: s.roomID, EventID: eventID, Kind: kind}); err != nil {
		return fmt.Errorf("record %s message: %w", kind, err)
	}
	if err := s.audit.AppendEvent(ctx, db.AuditEventCreateInput{
		CaseID: caseID, ActorType: "bot", RoomID: &s.roomID, MatrixEventID: &eventID, EventType: auditEventType,
	}); err != nil {
		return fmt.Errorf("append %s: %w", auditEventType, err)
	}
	var replyPtr *string
	if replyToEventID != "" {
		replyPtr = &replyToEventID
	}
	if err := s.messages.AppendCaseMatrixMessageTranscript(ctx, db.CaseMatrixMessageTranscriptCreateInput{
		CaseID: caseID, RoomID: s.roomID, EventID: eventID, Sender: "bot", MessageType: kind, MessageText: body, ReplyToEventID: replyPtr,
	}); err != nil {
		return fmt.Errorf("record %s transcript: %w", kind, err)
	}
	return nil
}

var _ queue.Handler = (*PostRoom2WidgetService)(nil)
