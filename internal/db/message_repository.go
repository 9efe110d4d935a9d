package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/carlosapgomes/caseflow/internal/models"
)

// MessageRepository persists outbound/inbound Matrix message bookkeeping:
// the (room_id, event_id)-keyed case_messages idempotency index, and the
// three append-only transcript tables.
type MessageRepository struct {
	db *Client
}

// NewMessageRepository builds a MessageRepository over an open Client.
func NewMessageRepository(client *Client) *MessageRepository {
	return &MessageRepository{db: client}
}

// CaseMessageCreateInput is the payload accepted by AddMessage.
type CaseMessageCreateInput struct {
	CaseID       uuid.UUID
	RoomID       string
	EventID      string
	SenderUserID *string
	Kind         string
}

// AddMessage records one (room_id, event_id) -> case mapping. A duplicate
// insert (the same Matrix event observed twice) is silently ignored, so
// reprocessing is a no-op rather than an error.
func (r *MessageRepository) AddMessage(ctx context.Context, in CaseMessageCreateInput) error {
	const q = `
		INSERT INTO case_messages (case_id, room_id, event_id, sender_user_id, kind)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (room_id, event_id) DO NOTHING`
	_, err := r.db.ExecContext(ctx, q, in.CaseID, in.RoomID, in.EventID, in.SenderUserID, in.Kind)
	return err
}

// FindCaseIDByRoomEventKind resolves a case id from a known (room_id,
// event_id, kind) triple, used to map a Room-3 reply back to the
// room3_request it answers.
func (r *MessageRepository) FindCaseIDByRoomEventKind(ctx context.Context, roomID, eventID, kind string) (*uuid.UUID, error) {
	const q = `SELECT case_id FROM case_messages WHERE room_id = $1 AND event_id = $2 AND kind = $3`
	var id uuid.UUID
	if err := r.db.GetContext(ctx, &id, q, roomID, eventID, kind); err != nil {
		if errors.Is(err, errNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &id, nil
}

// FindCaseIDByRoomEventKinds resolves a case id from a (room_id, event_id)
// pair whose recorded kind is any of kinds, used by the ingress poller to
// decide whether a reply's parent is a message it should route on (e.g. a
// Room-2 widget part or a Room-3 request) before handing it to a handler.
func (r *MessageRepository) FindCaseIDByRoomEventKinds(ctx context.Context, roomID, eventID string, kinds []string) (*uuid.UUID, error) {
	if len(kinds) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(kinds))
	args := make([]any, 0, len(kinds)+2)
	args = append(args, roomID, eventID)
	for i, k := range kinds {
		placeholders[i] = fmt.Sprintf("$%d", i+3)
		args = append(args, k)
	}
	q := fmt.Sprintf(`SELECT case_id FROM case_messages WHERE room_id = $1 AND event_id = $2 AND kind IN (%s)`, strings.Join(placeholders, ", "))
	var id uuid.UUID
	if err := r.db.GetContext(ctx, &id, q, args...); err != nil {
		if errors.Is(err, errNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &id, nil
}

// HasMessageOfKind reports whether a case already has a message row of the
// given kind, the idempotency check used by handlers that must post a
// given artifact at most once (e.g. room3_request).
func (r *MessageRepository) HasMessageOfKind(ctx context.Context, caseID uuid.UUID, kind string) (bool, error) {
	const q = `SELECT EXISTS(SELECT 1 FROM case_messages WHERE case_id = $1 AND kind = $2)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, q, caseID, kind); err != nil {
		return false, err
	}
	return exists, nil
}

// ListMessages returns every case_messages row for a case, the redaction
// list the cleanup handler walks.
func (r *MessageRepository) ListMessages(ctx context.Context, caseID uuid.UUID) ([]models.CaseMessage, error) {
	const q = `SELECT * FROM case_messages WHERE case_id = $1 ORDER BY id`
	var rows []models.CaseMessage
	if err := r.db.SelectContext(ctx, &rows, q, caseID); err != nil {
		return nil, err
	}
	return rows, nil
}

// AppendCaseReportTranscript records the cleaned PDF extraction text as its
// own monitoring activity source.
func (r *MessageRepository) AppendCaseReportTranscript(ctx context.Context, caseID uuid.UUID, extractedText string) error {
	const q = `INSERT INTO case_report_transcripts (case_id, extracted_text) VALUES ($1, $2)`
	_, err := r.db.ExecContext(ctx, q, caseID, extractedText)
	return err
}

// CaseLLMInteractionCreateInput is the payload accepted by
// AppendCaseLLMInteraction.
type CaseLLMInteractionCreateInput struct {
	CaseID              uuid.UUID
	Stage               string
	InputPayload        []byte
	OutputPayload       []byte
	PromptSystemName    *string
	PromptSystemVersion *int
	PromptUserName      *string
	PromptUserVersion   *int
	ModelName           *string
}

// AppendCaseLLMInteraction records one LLM1/LLM2 call for audit replay.
func (r *MessageRepository) AppendCaseLLMInteraction(ctx context.Context, in CaseLLMInteractionCreateInput) error {
	const q = `
		INSERT INTO case_llm_interactions
			(case_id, stage, input_payload, output_payload, prompt_system_name,
			 prompt_system_version, prompt_user_name, prompt_user_version, model_name)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := r.db.ExecContext(ctx, q, in.CaseID, in.Stage, in.InputPayload, in.OutputPayload,
		in.PromptSystemName, in.PromptSystemVersion, in.PromptUserName, in.PromptUserVersion, in.ModelName)
	return err
}

// CaseMatrixMessageTranscriptCreateInput is the payload accepted by
// AppendCaseMatrixMessageTranscript.
type CaseMatrixMessageTranscriptCreateInput struct {
	CaseID         uuid.UUID
	RoomID         string
	EventID        string
	Sender         string // bot | human
	MessageType    string
	MessageText    string
	ReplyToEventID *string
}

// AppendCaseMatrixMessageTranscript records the exact rendered text of a
// message sent or received for a case.
func (r *MessageRepository) AppendCaseMatrixMessageTranscript(ctx context.Context, in CaseMatrixMessageTranscriptCreateInput) error {
	const q = `
		INSERT INTO case_matrix_message_transcripts
			(case_id, room_id, event_id, sender, message_type, message_text, reply_to_event_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.db.ExecContext(ctx, q, in.CaseID, in.RoomID, in.EventID, in.Sender, in.MessageType, in.MessageText, in.ReplyToEventID)
	return err
}
