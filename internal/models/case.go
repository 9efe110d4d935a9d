// Package models holds the persisted shapes shared across the repository,
// service, and API layers.
package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// CaseStatus enumerates the finite-state-machine states a Case moves
// through. Values are stored as text, never as a Postgres enum type, so a
// new terminal state never requires a migration to alter a type.
type CaseStatus string

const (
	StatusR1AckProcessing     CaseStatus = "R1_ACK_PROCESSING"
	StatusExtracting          CaseStatus = "EXTRACTING"
	StatusLLMStruct           CaseStatus = "LLM_STRUCT"
	StatusLLMSuggest          CaseStatus = "LLM_SUGGEST"
	StatusR2PostWidget        CaseStatus = "R2_POST_WIDGET"
	StatusWaitDoctor          CaseStatus = "WAIT_DOCTOR"
	StatusDoctorAccepted      CaseStatus = "DOCTOR_ACCEPTED"
	StatusDoctorDenied        CaseStatus = "DOCTOR_DENIED"
	StatusR3PostRequest       CaseStatus = "R3_POST_REQUEST"
	StatusWaitAppt            CaseStatus = "WAIT_APPT"
	StatusApptConfirmed       CaseStatus = "APPT_CONFIRMED"
	StatusApptDenied          CaseStatus = "APPT_DENIED"
	StatusFailed              CaseStatus = "FAILED"
	StatusWaitR1CleanupThumbs CaseStatus = "WAIT_R1_CLEANUP_THUMBS"
	StatusCleanupRunning      CaseStatus = "CLEANUP_RUNNING"
	StatusCleaned             CaseStatus = "CLEANED"
)

// TerminalStatuses are statuses a case never leaves; the recovery sweep
// (internal/recovery) skips cases already in one of these.
var TerminalStatuses = map[CaseStatus]bool{
	StatusCleaned: true,
}

// Case mirrors the `cases` table row, the central aggregate of the
// orchestration engine.
type Case struct {
	CaseID                   uuid.UUID       `db:"case_id"`
	CreatedAt                time.Time       `db:"created_at"`
	UpdatedAt                time.Time       `db:"updated_at"`
	Status                   CaseStatus      `db:"status"`
	Room1OriginRoomID        string          `db:"room1_origin_room_id"`
	Room1OriginEventID       string          `db:"room1_origin_event_id"`
	Room1SenderUserID        string          `db:"room1_sender_user_id"`
	AgencyRecordNumber       *string         `db:"agency_record_number"`
	AgencyRecordExtractedAt  *time.Time      `db:"agency_record_extracted_at"`
	DoctorUserID             *string         `db:"doctor_user_id"`
	DoctorDecision           *string         `db:"doctor_decision"`
	DoctorSupportFlag        *string         `db:"doctor_support_flag"`
	DoctorReason             *string         `db:"doctor_reason"`
	DoctorDecidedAt          *time.Time      `db:"doctor_decided_at"`
	SchedulerUserID          *string         `db:"scheduler_user_id"`
	AppointmentStatus        *string         `db:"appointment_status"`
	AppointmentAt            *time.Time      `db:"appointment_at"`
	AppointmentLocation      *string         `db:"appointment_location"`
	AppointmentInstructions  *string         `db:"appointment_instructions"`
	AppointmentReason        *string         `db:"appointment_reason"`
	AppointmentDecidedAt     *time.Time      `db:"appointment_decided_at"`
	Room1FinalReplyEventID   *string         `db:"room1_final_reply_event_id"`
	Room1FinalReplyPostedAt  *time.Time      `db:"room1_final_reply_posted_at"`
	CleanupTriggeredByUserID *string         `db:"cleanup_triggered_by_user_id"`
	CleanupTriggeredAt       *time.Time      `db:"cleanup_triggered_at"`
	CleanupCompletedAt       *time.Time      `db:"cleanup_completed_at"`
	ArtifactStorageMode      string          `db:"artifact_storage_mode"`
	PDFMxcURL                *string         `db:"pdf_mxc_url"`
	PDFSha256                *string         `db:"pdf_sha256"`
	ExtractedText            *string         `db:"extracted_text"`
	StructuredDataJSON        json.RawMessage `db:"structured_data_json"`
	SummaryText               *string         `db:"summary_text"`
	SuggestedActionJSON       json.RawMessage `db:"suggested_action_json"`
}

// CaseCreateInput is the payload accepted by CaseRepository.CreateCase.
type CaseCreateInput struct {
	CaseID             uuid.UUID
	Room1OriginRoomID  string
	Room1OriginEventID string
	Room1SenderUserID  string
}

// CaseEvent is one append-only audit log row. No repository method ever
// updates or deletes a case_events row.
type CaseEvent struct {
	ID            int64           `db:"id"`
	CaseID        uuid.UUID       `db:"case_id"`
	TS            time.Time       `db:"ts"`
	ActorType     string          `db:"actor_type"`
	ActorUserID   *string         `db:"actor_user_id"`
	RoomID        *string         `db:"room_id"`
	MatrixEventID *string         `db:"matrix_event_id"`
	EventType     string          `db:"event_type"`
	Payload       json.RawMessage `db:"payload"`
}

// CaseMessage records a Matrix event posted or received for a case, keyed
// by (room_id, event_id) so reprocessing an already-seen event is a no-op.
type CaseMessage struct {
	ID           int64     `db:"id"`
	CaseID       uuid.UUID `db:"case_id"`
	RoomID       string    `db:"room_id"`
	EventID      string    `db:"event_id"`
	SenderUserID *string   `db:"sender_user_id"`
	Kind         string    `db:"kind"`
	CreatedAt    time.Time `db:"created_at"`
}

// CaseReportTranscript stores the cleaned PDF extraction text captured
// by the process_pdf_case job, independent from case_events, so the monitoring
// timeline can show the extraction as its own activity source.
type CaseReportTranscript struct {
	CaseID        uuid.UUID `db:"case_id"`
	ExtractedText string    `db:"extracted_text"`
	CapturedAt    time.Time `db:"captured_at"`
}

// CaseLLMInteraction records one LLM1/LLM2 call: prompt identity, input,
// and output, for audit and monitoring replay.
type CaseLLMInteraction struct {
	CaseID              uuid.UUID       `db:"case_id"`
	Stage               string          `db:"stage"`
	InputPayload        json.RawMessage `db:"input_payload"`
	OutputPayload       json.RawMessage `db:"output_payload"`
	PromptSystemName    *string         `db:"prompt_system_name"`
	PromptSystemVersion *int            `db:"prompt_system_version"`
	PromptUserName      *string         `db:"prompt_user_name"`
	PromptUserVersion   *int            `db:"prompt_user_version"`
	ModelName           *string         `db:"model_name"`
	CapturedAt          time.Time       `db:"captured_at"`
}

// CaseMatrixMessageTranscript records the exact rendered text of every
// Matrix message sent or received for a case.
type CaseMatrixMessageTranscript struct {
	CaseID           uuid.UUID `db:"case_id"`
	RoomID           string    `db:"room_id"`
	EventID          string    `db:"event_id"`
	Sender           string    `db:"sender"`
	MessageType      string    `db:"message_type"`
	MessageText      string    `db:"message_text"`
	ReplyToEventID   *string   `db:"reply_to_event_id"`
	CapturedAt       time.Time `db:"captured_at"`
}
