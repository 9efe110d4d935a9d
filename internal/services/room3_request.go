package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/carlosapgomes/caseflow/internal/chat"
	"github.com/carlosapgomes/caseflow/internal/db"
	"github.com/carlosapgomes/caseflow/internal/models"
	"github.com/carlosapgomes/caseflow/internal/queue"
)

// PostRoom3RequestRetriableError wraps a precondition failure that the
// worker should retry (and eventually dead-letter), per spec.md's
// post_room3_request handler.
type PostRoom3RequestRetriableError struct {
	Cause   string
	Details string
}

func (e *PostRoom3RequestRetriableError) Error() string {
	return fmt.Sprintf("post_room3_request: %s: %s", e.Cause, e.Details)
}

// PostRoom3RequestService posts the scheduling request and its
// acknowledgement to Room 3 and advances the case to WAIT_APPT. It is
// idempotent: re-running it against a case that already has a
// room3_request message just completes the transition without reposting.
type PostRoom3RequestService struct {
	cases       *db.CaseRepository
	messages    *db.MessageRepository
	audit       *db.AuditRepository
	checkpoints *db.ReactionCheckpointRepository
	transport   chat.Transport
	roomID      string
}

// NewPostRoom3RequestService builds a PostRoom3RequestService.
func NewPostRoom3RequestService(cases *db.CaseRepository, messages *db.MessageRepository, audit *db.AuditRepository, checkpoints *db.ReactionCheckpointRepository, transport chat.Transport, roomID string) *PostRoom3RequestService {
	return &PostRoom3RequestService{cases: cases, messages: messages, audit: audit, checkpoints: checkpoints, transport: transport, roomID: roomID}
}

// Handle implements queue.Handler.
func (s *PostRoom3RequestService) Handle(ctx context.Context, job models.Job) error {
	if job.CaseID == nil {
		return fmt.Errorf("post_room3_request job %d has no case_id", job.JobID)
	}
	caseID := *job.CaseID

	c, err := s.cases.GetByID(ctx, caseID)
	if err != nil {
		return fmt.Errorf("load case: %w", err)
	}

	if c.Status == models.StatusWaitAppt {
		return nil // already posted and transitioned
	}
	if c.Status != models.StatusDoctorAccepted && c.Status != models.StatusR3PostRequest {
		return &PostRoom3RequestRetriableError{Cause: "precondition", Details: fmt.Sprintf("status=%s", c.Status)}
	}

	alreadyPosted, err := s.messages.HasMessageOfKind(ctx, caseID, "room3_request")
	if err != nil {
		return fmt.Errorf("check existing room3_request message: %w", err)
	}

	if !alreadyPosted {
		if err := s.cases.UpdateStatus(ctx, caseID, models.StatusR3PostRequest); err != nil {
			return fmt.Errorf("transition to R3_POST_REQUEST: %w", err)
		}

		agencyRecord := ""
		if c.AgencyRecordNumber != nil {
			agencyRecord = *c.AgencyRecordNumber
		}
		requestBody := fmt.Sprintf("Solicitacao de agendamento — caso: %s\nprontuario: %s\nResponda com:\nstatus: confirmado|negado\ndata_hora: DD-MM-YYYY HH:MM BRT\nlocal: <texto>\ninstrucoes: <texto>\nmotivo: <texto>\ncaso: %s", caseID, agencyRecord, caseID)
		requestEventID, err := s.transport.SendText(ctx, s.roomID, requestBody)
		if err != nil {
			return fmt.Errorf("post room3 request: %w", err)
		}
		if err := s.recordPost(ctx, caseID, requestEventID, "room3_request", "ROOM3_REQUEST_POSTED", requestBody); err != nil {
			return err
		}

		ackBody := "Aguardando confirmacao do agendamento."
		ackEventID, err := s.transport.ReplyText(ctx, s.roomID, requestEventID, ackBody)
		if err != nil {
			return fmt.Errorf("post room3 ack: %w", err)
		}
		if err := s.recordPost(ctx, caseID, ackEventID, "bot_ack", "ROOM3_REQUEST_ACK_POSTED", ackBody); err != nil {
			return err
		}
		if err := s.checkpoints.EnsureExpectedCheckpoint(ctx, db.ReactionCheckpointCreateInput{
			CaseID: caseID, Stage: "ROOM3_ACK", RoomID: s.roomID, TargetEventID: ackEventID,
		}); err != nil {
			return fmt.Errorf("record room3 ack checkpoint: %w", err)
		}
	}

	if err := s.cases.UpdateStatus(ctx, caseID, models.StatusWaitAppt); err != nil {
		return fmt.Errorf("transition to WAIT_APPT: %w", err)
	}
	return s.audit.AppendEvent(ctx, db.AuditEventCreateInput{
		CaseID: caseID, ActorType: "system", EventType: "CASE_STATUS_CHANGED",
		Payload: map[string]any{"to": string(models.StatusWaitAppt)},
	})
}

func (s *PostRoom3RequestService) recordPost(ctx context.Context, caseID uuid.UUID, eventID, kind, auditEventType, body string) error {
	if err := s.messages.AddMessage(ctx, db.CaseMessageCreateInput{CaseID: caseID, RoomID: s.roomID, EventID: eventID, Kind: kind}); err != nil {
		return fmt.Errorf("record %s message: %w", kind, err)
	}
	if err := s.audit.AppendEvent(ctx, db.AuditEventCreateInput{
		CaseID: caseID, ActorType: "bot", RoomID: &s.roomID, MatrixEventID: &eventID, EventType: auditEventType,
	}); err != nil {
		return fmt.Errorf("append %s: %w", auditEventType, err)
	}
	if err := s.messages.AppendCaseMatrixMessageTranscript(ctx, db.CaseMatrixMessageTranscriptCreateInput{
		CaseID: caseID, RoomID: s.roomID, EventID: eventID, Sender: "bot", MessageType: kind, MessageText: body,
	}); err != nil {
		return fmt.Errorf("record %s transcript: %w", kind, err)
	}
	return nil
}

var _ queue.Handler = (*PostRoom3RequestService)(nil)
