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

// DoctorDecisionOutcome is the result of applying a doctor decision,
// returned to both the webhook and widget-submit API handlers.
type DoctorDecisionOutcome string

const (
	DoctorDecisionApplied           DoctorDecisionOutcome = "APPLIED"
	DoctorDecisionNotFound          DoctorDecisionOutcome = "NOT_FOUND"
	DoctorDecisionWrongState        DoctorDecisionOutcome = "WRONG_STATE"
	DoctorDecisionDuplicateOrRace   DoctorDecisionOutcome = "DUPLICATE_OR_RACE"
)

// DoctorDecisionInput is the payload accepted by both entry points (the
// HMAC-signed webhook and the widget bearer submit).
type DoctorDecisionInput struct {
	CaseID        uuid.UUID
	DoctorUserID  string
	Decision      string // accept | deny
	SupportFlag   string // none | anesthesist | anesthesist_icu
	Reason        *string
	WidgetEventID *string
}

// DoctorDecisionService applies a doctor's accept/deny decision to a case
// via CAS, routes to the next job, and (if a Room-2 poster is configured)
// posts a decision-ack reply with a reaction checkpoint.
type DoctorDecisionService struct {
	cases     *db.CaseRepository
	messages  *db.MessageRepository
	audit     *db.AuditRepository
	checkpoints *db.ReactionCheckpointRepository
	jobs      queue.Repository
	transport chat.Transport // nil disables the optional decision-ack post
	roomID    string
}

// NewDoctorDecisionService builds a DoctorDecisionService. transport may
// be nil to disable the optional Room-2 decision-ack post.
func NewDoctorDecisionService(cases *db.CaseRepository, messages *db.MessageRepository, audit *db.AuditRepository, checkpoints *db.ReactionCheckpointRepository, jobs queue.Repository, transport chat.Transport, roomID string) *DoctorDecisionService {
	return &DoctorDecisionService{cases: cases, messages: messages, audit: audit, checkpoints: checkpoints, jobs: jobs, transport: transport, roomID: roomID}
}

// Handle applies in's decision to the case, per spec.md's doctor-decision
// handler semantics. decision=deny requires support_flag=none; callers
// (the API layer, with a 400, and the Room-2 reply parser) are responsible
// for rejecting that combination before calling Handle.
func (s *DoctorDecisionService) Handle(ctx context.Context, in DoctorDecisionInput) (DoctorDecisionOutcome, error) {
	snap, err := s.cases.GetDoctorDecisionSnapshot(ctx, in.CaseID)
	if err != nil {
		if err == db.ErrNotFound {
			return DoctorDecisionNotFound, nil
		}
		return "", fmt.Errorf("load doctor decision snapshot: %w", err)
	}

	if snap.Status != models.StatusWaitDoctor {
		if err := s.audit.AppendEvent(ctx, db.AuditEventCreateInput{
			CaseID: in.CaseID, ActorType: "human", ActorUserID: &in.DoctorUserID,
			EventType: "ROOM2_DECISION_IGNORED_WRONG_STATE",
			Payload:   map[string]any{"status": string(snap.Status)},
		}); err != nil {
			return "", fmt.Errorf("append ROOM2_DECISION_IGNORED_WRONG_STATE: %w", err)
		}
		return DoctorDecisionWrongState, nil
	}

	applied, err := s.cases.ApplyDoctorDecisionIfWaiting(ctx, db.DoctorDecisionUpdate{
		CaseID: in.CaseID, DoctorUserID: in.DoctorUserID, Decision: in.Decision,
		SupportFlag: in.SupportFlag, Reason: in.Reason,
	})
	if err != nil {
		return "", fmt.Errorf("apply doctor decision: %w", err)
	}
	if !applied {
		if err := s.audit.AppendEvent(ctx, db.AuditEventCreateInput{
			CaseID: in.CaseID, ActorType: "human", ActorUserID: &in.DoctorUserID,
			EventType: "ROOM2_DECISION_DUPLICATE_OR_RACE_IGNORED",
		}); err != nil {
			return "", fmt.Errorf("append ROOM2_DECISION_DUPLICATE_OR_RACE_IGNORED: %w", err)
		}
		return DoctorDecisionDuplicateOrRace, nil
	}

	if err := s.audit.AppendEvent(ctx, db.AuditEventCreateInput{
		CaseID: in.CaseID, ActorType: "human", ActorUserID: &in.DoctorUserID,
		EventType: "ROOM2_WIDGET_SUBMITTED",
		Payload:   map[string]any{"decision": in.Decision, "support_flag": in.SupportFlag},
	}); err != nil {
		return "", fmt.Errorf("append ROOM2_WIDGET_SUBMITTED: %w", err)
	}

	nextJobType := models.JobTypePostRoom3Request
	if in.Decision == "deny" {
		nextJobType = models.JobTypePostRoom1FinalDenialTriage
	}
	if _, err := s.jobs.Enqueue(ctx, db.JobEnqueueInput{CaseID: &in.CaseID, JobType: nextJobType}); err != nil {
		return "", fmt.Errorf("enqueue %s: %w", nextJobType, err)
	}
	if err := s.audit.AppendEvent(ctx, db.AuditEventCreateInput{
		CaseID: in.CaseID, ActorType: "system", EventType: "JOB_ENQUEUED_NEXT_STEP",
		Payload: map[string]any{"job_type": nextJobType},
	}); err != nil {
		return "", fmt.Errorf("append JOB_ENQUEUED_NEXT_STEP: %w", err)
	}

	if s.transport != nil {
		s.postDecisionAck(ctx, in)
	}

	return DoctorDecisionApplied, nil
}

// postDecisionAck posts the optional Room-2 decision acknowledgement.
// Posting failures are logged via audit but never revert the decision
// already committed above.
func (s *DoctorDecisionService) postDecisionAck(ctx context.Context, in DoctorDecisionInput) {
	ackBody := fmt.Sprintf("Decisao registrada: %s", in.Decision)

	var eventID string
	var err error
	if in.WidgetEventID != nil && *in.WidgetEventID != "" {
		eventID, err = s.transport.ReplyText(ctx, s.roomID, *in.WidgetEventID, ackBody)
	} else {
		eventID, err = s.transport.SendText(ctx, s.roomID, ackBody)
	}
	if err != nil {
		_ = s.audit.AppendEvent(ctx, db.AuditEventCreateInput{
			CaseID: in.CaseID, ActorType: "system", EventType: "ROOM2_DECISION_ACK_POST_FAILED",
			Payload: map[string]any{"error": err.Error()},
		})
		return
	}

	if err := s.messages.AddMessage(ctx, db.CaseMessageCreateInput{CaseID: in.CaseID, RoomID: s.roomID, EventID: eventID, Kind: "room2_decision_ack"}); err != nil {
		_ = s.audit.AppendEvent(ctx, db.AuditEventCreateInput{CaseID: in.CaseID, ActorType: "system", EventType: "ROOM2_DECISION_ACK_POST_FAILED", Payload: map[string]any{"error": err.Error()}})
		return
	}
	if err := s.messages.AppendCaseMatrixMessageTranscript(ctx, db.CaseMatrixMessageTranscriptCreateInput{
		CaseID: in.CaseID, RoomID: s.roomID, EventID: eventID, Sender: "bot", MessageType: "room2_decision_ack", MessageText: ackBody,
	}); err != nil {
		_ = s.audit.AppendEvent(ctx, db.AuditEventCreateInput{CaseID: in.CaseID, ActorType: "system", EventType: "ROOM2_DECISION_ACK_POST_FAILED", Payload: map[string]any{"error": err.Error()}})
		return
	}
	if err := s.audit.AppendEvent(ctx, db.AuditEventCreateInput{
		CaseID: in.CaseID, ActorType: "bot", RoomID: &s.roomID, MatrixEventID: &eventID, EventType: "ROOM2_DECISION_ACK_POSTED",
	}); err != nil {
		return
	}
	_ = s.checkpoints.EnsureExpectedCheckpoint(ctx, db.ReactionCheckpointCreateInput{
		CaseID: in.CaseID, Stage: "ROOM2_ACK", RoomID: s.roomID, TargetEventID: eventID,
	})
}
