package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/carlosapgomes/caseflow/internal/chat"
	"github.com/carlosapgomes/caseflow/internal/db"
	"github.com/carlosapgomes/caseflow/internal/models"
	"github.com/carlosapgomes/caseflow/internal/queue"
)

// ErrRoom1FinalPrecondition signals a post_room1_final_* job ran against
// a case whose status doesn't match the job type's required predecessor
// status. Like any handler error it is retried by the worker and
// dead-lettered once attempts run out.
var ErrRoom1FinalPrecondition = fmt.Errorf("case status does not match final-reply job type")

// PostRoom1FinalService posts the Room-1 final reply for one of the four
// terminal outcomes (denial, appointment confirmed, appointment denied,
// processing failure), with a CAS guarding against a second concurrent
// poster.
type PostRoom1FinalService struct {
	cases       *db.CaseRepository
	messages    *db.MessageRepository
	audit       *db.AuditRepository
	checkpoints *db.ReactionCheckpointRepository
	transport   chat.Transport
}

// NewPostRoom1FinalService builds a PostRoom1FinalService.
func NewPostRoom1FinalService(cases *db.CaseRepository, messages *db.MessageRepository, audit *db.AuditRepository, checkpoints *db.ReactionCheckpointRepository, transport chat.Transport) *PostRoom1FinalService {
	return &PostRoom1FinalService{cases: cases, messages: messages, audit: audit, checkpoints: checkpoints, transport: transport}
}

type failurePayload struct {
	Cause   string `json:"cause"`
	Details string `json:"details"`
}

// Handle implements queue.Handler.
func (s *PostRoom1FinalService) Handle(ctx context.Context, job models.Job) error {
	if job.CaseID == nil {
		return fmt.Errorf("%s job %d has no case_id", job.JobType, job.JobID)
	}
	caseID := *job.CaseID

	snap, err := s.cases.GetFinalReplySnapshot(ctx, caseID)
	if err != nil {
		return fmt.Errorf("load final reply snapshot: %w", err)
	}
	if snap.Room1FinalReplyEventID != nil {
		return s.audit.AppendEvent(ctx, db.AuditEventCreateInput{
			CaseID: caseID, ActorType: "system", EventType: "ROOM1_FINAL_REPLY_POST_SKIPPED_ALREADY_EXISTS",
		})
	}

	body, err := s.renderBody(job, snap)
	if err != nil {
		return err
	}

	eventID, err := s.transport.ReplyText(ctx, snap.Room1OriginRoomID, snap.Room1OriginEventID, body)
	if err != nil {
		return fmt.Errorf("post room1 final reply: %w", err)
	}

	applied, err := s.cases.MarkRoom1FinalReplyPosted(ctx, caseID, eventID)
	if err != nil {
		return fmt.Errorf("mark room1 final reply posted: %w", err)
	}
	if !applied {
		return s.audit.AppendEvent(ctx, db.AuditEventCreateInput{
			CaseID: caseID, ActorType: "system", EventType: "ROOM1_FINAL_REPLY_POST_RACE_ALREADY_POSTED",
		})
	}

	if err := s.messages.AddMessage(ctx, db.CaseMessageCreateInput{CaseID: caseID, RoomID: snap.Room1OriginRoomID, EventID: eventID, Kind: "room1_final"}); err != nil {
		return fmt.Errorf("record room1_final message: %w", err)
	}
	if err := s.messages.AppendCaseMatrixMessageTranscript(ctx, db.CaseMatrixMessageTranscriptCreateInput{
		CaseID: caseID, RoomID: snap.Room1OriginRoomID, EventID: eventID, Sender: "bot", MessageType: "room1_final", MessageText: body, ReplyToEventID: &snap.Room1OriginEventID,
	}); err != nil {
		return fmt.Errorf("record room1_final transcript: %w", err)
	}
	if err := s.audit.AppendEvent(ctx, db.AuditEventCreateInput{
		CaseID: caseID, ActorType: "bot", RoomID: &snap.Room1OriginRoomID, MatrixEventID: &eventID, EventType: "ROOM1_FINAL_REPLY_POSTED",
	}); err != nil {
		return fmt.Errorf("append ROOM1_FINAL_REPLY_POSTED: %w", err)
	}
	if err := s.audit.AppendEvent(ctx, db.AuditEventCreateInput{
		CaseID: caseID, ActorType: "system", EventType: "CASE_STATUS_CHANGED",
		Payload: map[string]any{"to": string(models.StatusWaitR1CleanupThumbs)},
	}); err != nil {
		return fmt.Errorf("append CASE_STATUS_CHANGED: %w", err)
	}
	return s.checkpoints.EnsureExpectedCheckpoint(ctx, db.ReactionCheckpointCreateInput{
		CaseID: caseID, Stage: "ROOM1_FINAL", RoomID: snap.Room1OriginRoomID, TargetEventID: eventID,
	})
}

func (s *PostRoom1FinalService) renderBody(job models.Job, snap *db.FinalReplySnapshot) (string, error) {
	switch job.JobType {
	case models.JobTypePostRoom1FinalDenialTriage:
		if snap.Status != models.StatusDoctorDenied {
			return "", fmt.Errorf("%w: denial_triage requires DOCTOR_DENIED, got %s", ErrRoom1FinalPrecondition, snap.Status)
		}
		reason := "não informado"
		if snap.DoctorReason != nil && *snap.DoctorReason != "" {
			reason = *snap.DoctorReason
		}
		return fmt.Sprintf("Caso avaliado: solicitacao negada.\nmotivo: %s\ncaso: %s", reason, snap.CaseID), nil

	case models.JobTypePostRoom1FinalApptConfirmed:
		if snap.Status != models.StatusApptConfirmed {
			return "", fmt.Errorf("%w: appt requires APPT_CONFIRMED, got %s", ErrRoom1FinalPrecondition, snap.Status)
		}
		if snap.AppointmentAt == nil || snap.AppointmentLocation == nil || snap.AppointmentInstructions == nil {
			return "", fmt.Errorf("%w: appt confirmed missing appointment fields", ErrRoom1FinalPrecondition)
		}
		return fmt.Sprintf("Agendamento confirmado.\ndata_hora: %s\nlocal: %s\ninstrucoes: %s\ncaso: %s",
			*snap.AppointmentAt, *snap.AppointmentLocation, *snap.AppointmentInstructions, snap.CaseID), nil

	case models.JobTypePostRoom1FinalApptDenied:
		if snap.Status != models.StatusApptDenied {
			return "", fmt.Errorf("%w: appt_denied requires APPT_DENIED, got %s", ErrRoom1FinalPrecondition, snap.Status)
		}
		reason := "não informado"
		if snap.AppointmentReason != nil && *snap.AppointmentReason != "" {
			reason = *snap.AppointmentReason
		}
		return fmt.Sprintf("Agendamento negado.\nmotivo: %s\ncaso: %s", reason, snap.CaseID), nil

	case models.JobTypePostRoom1FinalFailure:
		if snap.Status != models.StatusFailed {
			return "", fmt.Errorf("%w: failure requires FAILED, got %s", ErrRoom1FinalPrecondition, snap.Status)
		}
		var payload failurePayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil || payload.Cause == "" {
			payload.Cause = "other"
		}
		if payload.Details == "" {
			payload.Details = "not provided"
		}
		return fmt.Sprintf("Nao foi possivel concluir o processamento do caso.\ncausa: %s\ndetalhes: %s\ncaso: %s", payload.Cause, payload.Details, snap.CaseID), nil

	default:
		return "", fmt.Errorf("unknown room1 final job type %q", job.JobType)
	}
}

var _ queue.Handler = (*PostRoom1FinalService)(nil)
