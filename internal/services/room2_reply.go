package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/carlosapgomes/caseflow/internal/chat"
)

// Room2ReplyEvent is a chat reply in Room 2 that may carry a doctor's
// plaintext decision.
type Room2ReplyEvent struct {
	RoomID       string
	EventID      string
	SenderUserID string
	Body         string
}

// room2ReplyFields is the strict plaintext form a doctor's reply is
// parsed into: "decisao: aceitar|negar", "suporte: nenhum|anestesista|anestesista_uti",
// "motivo: ...", "caso: <uuid>". The parser tolerates the English field
// names and an optional space after the colon.
type room2ReplyFields struct {
	Decision    string
	SupportFlag string
	Reason      string
	CaseID      uuid.UUID
}

var room2DecisionWords = map[string]string{"aceitar": "accept", "accept": "accept", "negar": "deny", "deny": "deny"}
var room2SupportWords = map[string]string{
	"nenhum": "none", "none": "none",
	"anestesista": "anesthesist", "anesthesist": "anesthesist",
	"anestesista_uti": "anesthesist_icu", "anesthesist_icu": "anesthesist_icu",
}

func parseRoom2ReplyFields(body string) (room2ReplyFields, error) {
	var fields room2ReplyFields
	var haveDecision, haveSupport, haveCase bool

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
		case "decisao", "decision":
			norm, ok := room2DecisionWords[value]
			if !ok {
				return fields, fmt.Errorf("invalid decisao value %q", value)
			}
			fields.Decision = norm
			haveDecision = true
		case "suporte", "support_flag":
			norm, ok := room2SupportWords[value]
			if !ok {
				return fields, fmt.Errorf("invalid suporte value %q", value)
			}
			fields.SupportFlag = norm
			haveSupport = true
		case "motivo", "reason":
			fields.Reason = value
		case "caso", "case":
			id, err := uuid.Parse(value)
			if err != nil {
				return fields, fmt.Errorf("invalid caso value %q: %w", value, err)
			}
			fields.CaseID = id
			haveCase = true
		case "doctor_user_id":
			return fields, fmt.Errorf("forged doctor_user_id line")
		}
	}

	if !haveDecision || !haveSupport || !haveCase {
		return fields, fmt.Errorf("missing required field(s)")
	}
	if fields.Decision == "deny" && fields.SupportFlag != "none" {
		return fields, fmt.Errorf("suporte must be nenhum when decisao is negar")
	}
	return fields, nil
}

// splitTemplateLine splits a "key: value" or "key:value" line, lower-casing
// the key for case-insensitive matching against the known field names.
func splitTemplateLine(line string) (key, value string, ok bool) {
	idx := strings.Index(line, ":")
	if idx < 0 {
		return "", "", false
	}
	key = strings.ToLower(strings.TrimSpace(line[:idx]))
	value = strings.TrimSpace(line[idx+1:])
	return key, value, true
}

// Room2ReplyService parses a doctor's plaintext chat reply in Room 2 into
// a decision and routes it through DoctorDecisionService, always posting
// a strictly formatted "resultado: sucesso|erro" acknowledgement reply.
type Room2ReplyService struct {
	decisions *DoctorDecisionService
	transport chat.Transport
	room2ID   string
}

// NewRoom2ReplyService builds a Room2ReplyService.
func NewRoom2ReplyService(decisions *DoctorDecisionService, transport chat.Transport, room2ID string) *Room2ReplyService {
	return &Room2ReplyService{decisions: decisions, transport: transport, room2ID: room2ID}
}

// Handle parses and applies a Room-2 chat reply, and always posts an ack.
func (s *Room2ReplyService) Handle(ctx context.Context, ev Room2ReplyEvent) error {
	outcome, failureReason := s.apply(ctx, ev)

	result := "sucesso"
	if outcome != DoctorDecisionApplied {
		result = "erro"
	}
	ackBody := fmt.Sprintf("resultado: %s", result)
	if failureReason != "" {
		ackBody = fmt.Sprintf("resultado: %s\nmotivo: %s", result, failureReason)
	}
	if _, err := s.transport.ReplyText(ctx, ev.RoomID, ev.EventID, ackBody); err != nil {
		return fmt.Errorf("post room2 reply ack: %w", err)
	}
	return nil
}

func (s *Room2ReplyService) apply(ctx context.Context, ev Room2ReplyEvent) (DoctorDecisionOutcome, string) {
	fields, err := parseRoom2ReplyFields(ev.Body)
	if err != nil {
		return "", "invalid_template"
	}

	joined, err := s.transport.IsUserJoined(ctx, s.room2ID, ev.SenderUserID)
	if err != nil || !joined {
		return "", "authorization_failed"
	}

	var reason *string
	if fields.Reason != "" {
		reason = &fields.Reason
	}
	outcome, err := s.decisions.Handle(ctx, DoctorDecisionInput{
		CaseID: fields.CaseID, DoctorUserID: ev.SenderUserID, Decision: fields.Decision,
		SupportFlag: fields.SupportFlag, Reason: reason,
	})
	if err != nil {
		return "", "internal_error"
	}
	return outcome, ""
}
