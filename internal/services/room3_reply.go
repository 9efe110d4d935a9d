package services

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/carlosapgomes/caseflow/internal/chat"
	"github.com/carlosapgomes/caseflow/internal/db"
	"github.com/carlosapgomes/caseflow/internal/models"
	"github.com/carlosapgomes/caseflow/internal/queue"
)

// Room3ReplyEvent is a chat reply in Room 3 that may resolve to a pending
// scheduling request.
type Room3ReplyEvent struct {
	RoomID         string
	EventID        string
	SenderUserID   string
	ReplyToEventID string
	Body           string
}

type room3ReplyFields struct {
	Status       string // confirmed | denied
	AppointmentAt string
	Location     string
	Instructions string
	Reason       string
	CaseID       uuid.UUID
}

var room3DateTimeRe = regexp.MustCompile(`^\d{2}-\d{2}-\d{4} \d{2}:\d{2} BRT$`)
var room3StatusWords = map[string]string{"confirmado": "confirmed", "negado": "denied"}

type room3ParseError struct {
	invalidCaseLine bool
}

func (e *room3ParseError) Error() string { return "room3 reply template parse failed" }

func parseRoom3ReplyFields(body string, expectedCaseID uuid.UUID) (room3ReplyFields, error) {
	var fields room3ReplyFields
	var haveStatus, haveDateTime, haveCase bool

	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		key, value, ok := splitTemplateLine(line)
		if !ok {
			continue
		}
		switch key {
		case "status":
			norm, ok := room3StatusWords[value]
			if !ok {
				return fields, &room3ParseError{}
			}
			fields.Status = norm
			haveStatus = true
		case "data_hora":
			if !room3DateTimeRe.MatchString(value) {
				return fields, &room3ParseError{}
			}
			fields.AppointmentAt = value
			haveDateTime = true
		case "local":
			fields.Location = value
		case "instrucoes":
			fields.Instructions = value
		case "motivo":
			fields.Reason = value
		case "caso":
			id, err := uuid.Parse(value)
			if err != nil || id != expectedCaseID {
				return fields, &room3ParseError{invalidCaseLine: true}
			}
			fields.CaseID = id
			haveCase = true
		}
	}

	if !haveStatus || !haveDateTime || !haveCase {
		return fields, &room3ParseError{}
	}
	return fields, nil
}

// Room3ReplyService resolves a Room-3 reply to its pending scheduling
// request, parses the scheduler's plaintext decision, and applies it via
// CAS.
type Room3ReplyService struct {
	cases     *db.CaseRepository
	messages  *db.MessageRepository
	audit     *db.AuditRepository
	jobs      queue.Repository
	transport chat.Transport
}

// NewRoom3ReplyService builds a Room3ReplyService.
func NewRoom3ReplyService(cases *db.CaseRepository, messages *db.MessageRepository, audit *db.AuditRepository, jobs queue.Repository, transport chat.Transport) *Room3ReplyService {
	return &Room3ReplyService{cases: cases, messages: messages, audit: audit, jobs: jobs, transport: transport}
}

// Handle parses and applies a Room-3 scheduler reply. Returns (false, nil)
// when the reply does not resolve to a pending room3_request, so the
// ingress poller can skip it without treating it as an error.
func (s *Room3ReplyService) Handle(ctx context.Context, ev Room3ReplyEvent) (bool, error) {
	caseIDPtr, err := s.messages.FindCaseIDByRoomEventKind(ctx, ev.RoomID, ev.ReplyToEventID, "room3_request")
	if err != nil {
		return false, fmt.Errorf("resolve room3_request parent: %w", err)
	}
	if caseIDPtr == nil {
		return false, nil
	}
	caseID := *caseIDPtr

	c, err := s.cases.GetByID(ctx, caseID)
	if err != nil {
		return true, fmt.Errorf("load case: %w", err)
	}
	if c.Status != models.StatusWaitAppt {
		return true, s.audit.AppendEvent(ctx, db.AuditEventCreateInput{
			CaseID: caseID, ActorType: "human", ActorUserID: &ev.SenderUserID,
			EventType: "ROOM3_REPLY_IGNORED_WRONG_STATE", Payload: map[string]any{"status": string(c.Status)},
		})
	}

	fields, err := parseRoom3ReplyFields(ev.Body, caseID)
	if err != nil {
		return true, s.handleParseFailure(ctx, caseID, ev, err)
	}

	applied, err := s.cases.ApplySchedulerDecisionIfWaiting(ctx, db.SchedulerDecisionUpdate{
		CaseID: caseID, SchedulerUserID: ev.SenderUserID, AppointmentStatus: fields.Status,
		AppointmentAt: &fields.AppointmentAt, AppointmentLocation: &fields.Location,
		AppointmentInstructions: &fields.Instructions, AppointmentReason: &fields.Reason,
	})
	if err != nil {
		return true, fmt.Errorf("apply scheduler decision: %w", err)
	}
	if !applied {
		return true, s.audit.AppendEvent(ctx, db.AuditEventCreateInput{
			CaseID: caseID, ActorType: "human", ActorUserID: &ev.SenderUserID,
			EventType: "ROOM3_REPLY_IGNORED_DUPLICATE_OR_RACE",
		})
	}

	if err := s.messages.AddMessage(ctx, db.CaseMessageCreateInput{CaseID: caseID, RoomID: ev.RoomID, EventID: ev.EventID, SenderUserID: &ev.SenderUserID, Kind: "room3_reply"}); err != nil {
		return true, fmt.Errorf("record room3_reply message: %w", err)
	}
	if err := s.messages.AppendCaseMatrixMessageTranscript(ctx, db.CaseMatrixMessageTranscriptCreateInput{
		CaseID: caseID, RoomID: ev.RoomID, EventID: ev.EventID, Sender: "human", MessageType: "room3_reply", MessageText: ev.Body, ReplyToEventID: &ev.ReplyToEventID,
	}); err != nil {
		return true, fmt.Errorf("record room3_reply transcript: %w", err)
	}

	eventType := "ROOM3_APPOINTMENT_CONFIRMED"
	nextJobType := models.JobTypePostRoom1FinalApptConfirmed
	if fields.Status == "denied" {
		eventType = "ROOM3_APPOINTMENT_DENIED"
		nextJobType = models.JobTypePostRoom1FinalApptDenied
	}
	if err := s.audit.AppendEvent(ctx, db.AuditEventCreateInput{
		CaseID: caseID, ActorType: "human", ActorUserID: &ev.SenderUserID, EventType: eventType,
	}); err != nil {
		return true, fmt.Errorf("append %s: %w", eventType, err)
	}
	if _, err := s.jobs.Enqueue(ctx, db.JobEnqueueInput{CaseID: &caseID, JobType: nextJobType}); err != nil {
		return true, fmt.Errorf("enqueue %s: %w", nextJobType, err)
	}
	return true, nil
}

func (s *Room3ReplyService) handleParseFailure(ctx context.Context, caseID uuid.UUID, ev Room3ReplyEvent, parseErr error) error {
	if pe, ok := parseErr.(*room3ParseError); ok && pe.invalidCaseLine {
		if err := s.audit.AppendEvent(ctx, db.AuditEventCreateInput{
			CaseID: caseID, ActorType: "human", ActorUserID: &ev.SenderUserID, EventType: "ROOM3_TEMPLATE_INVALID_CASE_LINE",
		}); err != nil {
			return fmt.Errorf("append ROOM3_TEMPLATE_INVALID_CASE_LINE: %w", err)
		}
	}
	if err := s.audit.AppendEvent(ctx, db.AuditEventCreateInput{
		CaseID: caseID, ActorType: "human", ActorUserID: &ev.SenderUserID, EventType: "ROOM3_TEMPLATE_PARSE_FAILED",
	}); err != nil {
		return fmt.Errorf("append ROOM3_TEMPLATE_PARSE_FAILED: %w", err)
	}

	promptBody := "Formato invalido. Responda com:\nstatus: confirmado|negado\ndata_hora: DD-MM-YYYY HH:MM BRT\nlocal: <texto>\ninstrucoes: <texto>\nmotivo: <texto>\ncaso: " + caseID.String()
	promptEventID, err := s.transport.ReplyText(ctx, ev.RoomID, ev.EventID, promptBody)
	if err != nil {
		return fmt.Errorf("post reformat prompt: %w", err)
	}
	return s.messages.AddMessage(ctx, db.CaseMessageCreateInput{CaseID: caseID, RoomID: ev.RoomID, EventID: promptEventID, Kind: "bot_reformat_prompt_room3"})
}
