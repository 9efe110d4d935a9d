package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/carlosapgomes/caseflow/internal/models"
)

// ErrDuplicateCaseOriginEvent is returned by CreateCase when a case already
// exists for the given room1_origin_event_id (the Room-1 intake idempotency
// key).
var ErrDuplicateCaseOriginEvent = errors.New("duplicate room1_origin_event_id")

// CaseRepository implements the case aggregate's persistence and every CAS
// state transition as a single UPDATE ... WHERE statement.
type CaseRepository struct {
	db *Client
}

// NewCaseRepository builds a CaseRepository over an open Client.
func NewCaseRepository(client *Client) *CaseRepository {
	return &CaseRepository{db: client}
}

// CreateCase inserts a new case row, translating a unique-constraint
// violation on room1_origin_event_id into ErrDuplicateCaseOriginEvent.
func (r *CaseRepository) CreateCase(ctx context.Context, in models.CaseCreateInput, status models.CaseStatus) (*models.Case, error) {
	const q = `
		INSERT INTO cases (case_id, status, room1_origin_room_id, room1_origin_event_id, room1_sender_user_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING *`

	var c models.Case
	err := r.db.GetContext(ctx, &c, q, in.CaseID, status, in.Room1OriginRoomID, in.Room1OriginEventID, in.Room1SenderUserID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == "uq_cases_room1_origin_event_id" {
			return nil, ErrDuplicateCaseOriginEvent
		}
		return nil, fmt.Errorf("create case: %w", err)
	}
	return &c, nil
}

// GetByOriginEventID returns the case for a Room-1 origin event id, or
// services.ErrNotFound.
func (r *CaseRepository) GetByOriginEventID(ctx context.Context, originEventID string) (*models.Case, error) {
	const q = `SELECT * FROM cases WHERE room1_origin_event_id = $1`
	var c models.Case
	if err := r.db.GetContext(ctx, &c, q, originEventID); err != nil {
		return nil, wrapNotFound(err)
	}
	return &c, nil
}

// GetByID returns the case by primary key, or services.ErrNotFound.
func (r *CaseRepository) GetByID(ctx context.Context, caseID uuid.UUID) (*models.Case, error) {
	const q = `SELECT * FROM cases WHERE case_id = $1`
	var c models.Case
	if err := r.db.GetContext(ctx, &c, q, caseID); err != nil {
		return nil, wrapNotFound(err)
	}
	return &c, nil
}

// UpdateStatus performs an unconditional status transition, used by
// handlers where the preceding CAS (or a job-claim lock) already
// establishes exclusivity.
func (r *CaseRepository) UpdateStatus(ctx context.Context, caseID uuid.UUID, status models.CaseStatus) error {
	const q = `UPDATE cases SET status = $2, updated_at = now() WHERE case_id = $1`
	_, err := r.db.ExecContext(ctx, q, caseID, status)
	return err
}

// StorePDFExtraction persists the PDF metadata and extracted text gathered
// during intake processing.
func (r *CaseRepository) StorePDFExtraction(ctx context.Context, caseID uuid.UUID, pdfMxcURL, pdfSha256, extractedText string, agencyRecordNumber *string) error {
	const q = `
		UPDATE cases SET
			pdf_mxc_url = $2,
			pdf_sha256 = $3,
			extracted_text = $4,
			agency_record_number = COALESCE($5, agency_record_number),
			agency_record_extracted_at = CASE WHEN $5::text IS NOT NULL THEN now() ELSE agency_record_extracted_at END,
			updated_at = now()
		WHERE case_id = $1`
	_, err := r.db.ExecContext(ctx, q, caseID, pdfMxcURL, pdfSha256, extractedText, agencyRecordNumber)
	return err
}

// StoreLLM1Artifacts persists the structured extraction and sets the
// case's status to the given value.
func (r *CaseRepository) StoreLLM1Artifacts(ctx context.Context, caseID uuid.UUID, structuredDataJSON []byte, status models.CaseStatus) error {
	const q = `
		UPDATE cases SET structured_data_json = $2, status = $3, updated_at = now()
		WHERE case_id = $1`
	_, err := r.db.ExecContext(ctx, q, caseID, structuredDataJSON, status)
	return err
}

// StoreLLM2Artifacts persists the reconciled suggestion and summary and
// transitions the case to LLM_SUGGEST.
func (r *CaseRepository) StoreLLM2Artifacts(ctx context.Context, caseID uuid.UUID, summaryText string, suggestedActionJSON []byte) error {
	const q = `
		UPDATE cases SET summary_text = $2, suggested_action_json = $3, status = $4, updated_at = now()
		WHERE case_id = $1`
	_, err := r.db.ExecContext(ctx, q, caseID, summaryText, suggestedActionJSON, models.StatusLLMSuggest)
	return err
}

// Room2WidgetSnapshot is the read model for rendering the Room-2 doctor
// widget and its posted artifacts.
type Room2WidgetSnapshot struct {
	CaseID              uuid.UUID          `db:"case_id"`
	Status              models.CaseStatus  `db:"status"`
	PDFMxcURL           *string            `db:"pdf_mxc_url"`
	ExtractedText       *string            `db:"extracted_text"`
	AgencyRecordNumber  *string            `db:"agency_record_number"`
	StructuredDataJSON  []byte             `db:"structured_data_json"`
	SummaryText         *string            `db:"summary_text"`
	SuggestedActionJSON []byte             `db:"suggested_action_json"`
}

// GetRoom2WidgetSnapshot returns the fields required to render and post
// the Room-2 doctor widget.
func (r *CaseRepository) GetRoom2WidgetSnapshot(ctx context.Context, caseID uuid.UUID) (*Room2WidgetSnapshot, error) {
	const q = `
		SELECT case_id, status, pdf_mxc_url, extracted_text, agency_record_number,
		       structured_data_json, summary_text, suggested_action_json
		FROM cases WHERE case_id = $1`
	var s Room2WidgetSnapshot
	if err := r.db.GetContext(ctx, &s, q, caseID); err != nil {
		return nil, wrapNotFound(err)
	}
	return &s, nil
}

// Room2BootstrapSnapshot is the read model the widget bootstrap endpoint
// returns so the Room-2 widget can render the case's current decision
// state (or show it's already been decided).
type Room2BootstrapSnapshot struct {
	CaseID         uuid.UUID         `db:"case_id"`
	Status         models.CaseStatus `db:"status"`
	DoctorDecision *string           `db:"doctor_decision"`
	DoctorReason   *string           `db:"doctor_reason"`
}

// GetRoom2BootstrapSnapshot returns the fields the widget bootstrap
// endpoint renders, or ErrNotFound.
func (r *CaseRepository) GetRoom2BootstrapSnapshot(ctx context.Context, caseID uuid.UUID) (*Room2BootstrapSnapshot, error) {
	const q = `SELECT case_id, status, doctor_decision, doctor_reason FROM cases WHERE case_id = $1`
	var s Room2BootstrapSnapshot
	if err := r.db.GetContext(ctx, &s, q, caseID); err != nil {
		return nil, wrapNotFound(err)
	}
	return &s, nil
}

// DoctorDecisionSnapshot is the read model used before applying a doctor
// decision CAS.
type DoctorDecisionSnapshot struct {
	CaseID             uuid.UUID         `db:"case_id"`
	Status             models.CaseStatus `db:"status"`
	AgencyRecordNumber *string           `db:"agency_record_number"`
	StructuredDataJSON []byte            `db:"structured_data_json"`
}

// GetDoctorDecisionSnapshot returns the status and decision context used
// by the doctor-decision handler.
func (r *CaseRepository) GetDoctorDecisionSnapshot(ctx context.Context, caseID uuid.UUID) (*DoctorDecisionSnapshot, error) {
	const q = `
		SELECT case_id, status, agency_record_number, structured_data_json
		FROM cases WHERE case_id = $1`
	var s DoctorDecisionSnapshot
	if err := r.db.GetContext(ctx, &s, q, caseID); err != nil {
		return nil, wrapNotFound(err)
	}
	return &s, nil
}

// DoctorDecisionUpdate is the payload for ApplyDoctorDecisionIfWaiting.
type DoctorDecisionUpdate struct {
	CaseID      uuid.UUID
	DoctorUserID string
	Decision    string // accept | deny
	SupportFlag string // none | anesthesist | anesthesist_icu
	Reason      *string
}

// ApplyDoctorDecisionIfWaiting applies a doctor decision only while the
// case is still WAIT_DOCTOR and no decision has been recorded yet. It
// returns true iff exactly one row was updated (the CAS succeeded).
func (r *CaseRepository) ApplyDoctorDecisionIfWaiting(ctx context.Context, in DoctorDecisionUpdate) (bool, error) {
	target := models.StatusDoctorAccepted
	if in.Decision == "deny" {
		target = models.StatusDoctorDenied
	}
	const q = `
		UPDATE cases SET
			doctor_user_id = $2,
			doctor_decision = $3,
			doctor_support_flag = $4,
			doctor_reason = $5,
			doctor_decided_at = now(),
			status = $6,
			updated_at = now()
		WHERE case_id = $1 AND status = $7 AND doctor_decided_at IS NULL`
	res, err := r.db.ExecContext(ctx, q, in.CaseID, in.DoctorUserID, in.Decision, in.SupportFlag, in.Reason, target, models.StatusWaitDoctor)
	if err != nil {
		return false, err
	}
	return rowsAffectedEquals(res, 1)
}

// SchedulerDecisionUpdate is the payload for ApplySchedulerDecisionIfWaiting.
type SchedulerDecisionUpdate struct {
	CaseID              uuid.UUID
	SchedulerUserID     string
	AppointmentStatus   string // confirmed | denied
	AppointmentAt       *string
	AppointmentLocation *string
	AppointmentInstructions *string
	AppointmentReason   *string
}

// ApplySchedulerDecisionIfWaiting applies a Room-3 scheduler decision only
// while the case is WAIT_APPT. Returns true iff the CAS succeeded.
func (r *CaseRepository) ApplySchedulerDecisionIfWaiting(ctx context.Context, in SchedulerDecisionUpdate) (bool, error) {
	target := models.StatusApptConfirmed
	if in.AppointmentStatus == "denied" {
		target = models.StatusApptDenied
	}
	const q = `
		UPDATE cases SET
			scheduler_user_id = $2,
			appointment_status = $3,
			appointment_at = $4,
			appointment_location = $5,
			appointment_instructions = $6,
			appointment_reason = $7,
			appointment_decided_at = now(),
			status = $8,
			updated_at = now()
		WHERE case_id = $1 AND status = $9`
	res, err := r.db.ExecContext(ctx, q, in.CaseID, in.SchedulerUserID, in.AppointmentStatus,
		in.AppointmentAt, in.AppointmentLocation, in.AppointmentInstructions, in.AppointmentReason,
		target, models.StatusWaitAppt)
	if err != nil {
		return false, err
	}
	return rowsAffectedEquals(res, 1)
}

// FinalReplySnapshot is the read model used to compose Room-1 final
// replies (denial, confirmed appointment, denied appointment).
type FinalReplySnapshot struct {
	CaseID                  uuid.UUID         `db:"case_id"`
	Status                  models.CaseStatus `db:"status"`
	Room1OriginRoomID       string            `db:"room1_origin_room_id"`
	Room1OriginEventID      string            `db:"room1_origin_event_id"`
	AgencyRecordNumber      *string           `db:"agency_record_number"`
	StructuredDataJSON      []byte            `db:"structured_data_json"`
	Room1FinalReplyEventID  *string           `db:"room1_final_reply_event_id"`
	DoctorReason            *string           `db:"doctor_reason"`
	AppointmentAt           *string           `db:"appointment_at"`
	AppointmentLocation     *string           `db:"appointment_location"`
	AppointmentInstructions *string           `db:"appointment_instructions"`
	AppointmentReason       *string           `db:"appointment_reason"`
}

// GetFinalReplySnapshot returns the context fields used to compose Room-1
// final-reply messages.
func (r *CaseRepository) GetFinalReplySnapshot(ctx context.Context, caseID uuid.UUID) (*FinalReplySnapshot, error) {
	const q = `
		SELECT case_id, status, room1_origin_room_id, room1_origin_event_id,
		       agency_record_number, structured_data_json, room1_final_reply_event_id,
		       doctor_reason, appointment_at::text, appointment_location,
		       appointment_instructions, appointment_reason
		FROM cases WHERE case_id = $1`
	var s FinalReplySnapshot
	if err := r.db.GetContext(ctx, &s, q, caseID); err != nil {
		return nil, wrapNotFound(err)
	}
	return &s, nil
}

// MarkRoom1FinalReplyPosted stores the Room-1 final-reply event id and
// transitions to WAIT_R1_CLEANUP_THUMBS, but only the first poster to run
// this CAS wins; a second concurrent poster observes zero affected rows.
func (r *CaseRepository) MarkRoom1FinalReplyPosted(ctx context.Context, caseID uuid.UUID, eventID string) (bool, error) {
	const q = `
		UPDATE cases SET
			room1_final_reply_event_id = $2,
			room1_final_reply_posted_at = now(),
			status = $3,
			updated_at = now()
		WHERE case_id = $1 AND room1_final_reply_event_id IS NULL`
	res, err := r.db.ExecContext(ctx, q, caseID, eventID, models.StatusWaitR1CleanupThumbs)
	if err != nil {
		return false, err
	}
	return rowsAffectedEquals(res, 1)
}

// Room1FinalReplyReactionSnapshot is the read model used when routing a
// Room-1 thumbs-up reaction back to its case.
type Room1FinalReplyReactionSnapshot struct {
	CaseID             uuid.UUID         `db:"case_id"`
	Status             models.CaseStatus `db:"status"`
	CleanupTriggeredAt *string           `db:"cleanup_triggered_at"`
}

// GetByRoom1FinalReplyEventID returns the cleanup-trigger snapshot for a
// case by its Room-1 final-reply event id, or ErrNotFound if no case
// matches.
func (r *CaseRepository) GetByRoom1FinalReplyEventID(ctx context.Context, eventID string) (*Room1FinalReplyReactionSnapshot, error) {
	const q = `
		SELECT case_id, status, cleanup_triggered_at::text
		FROM cases WHERE room1_final_reply_event_id = $1`
	var s Room1FinalReplyReactionSnapshot
	if err := r.db.GetContext(ctx, &s, q, eventID); err != nil {
		return nil, wrapNotFound(err)
	}
	return &s, nil
}

// ClaimCleanupTriggerIfFirst atomically claims the cleanup trigger and
// transitions to CLEANUP_RUNNING. Only the first positive reaction on a
// WAIT_R1_CLEANUP_THUMBS case wins the race.
func (r *CaseRepository) ClaimCleanupTriggerIfFirst(ctx context.Context, caseID uuid.UUID, reactorUserID string) (bool, error) {
	const q = `
		UPDATE cases SET
			cleanup_triggered_at = now(),
			cleanup_triggered_by_user_id = $2,
			status = $3,
			updated_at = now()
		WHERE case_id = $1 AND status = $4 AND cleanup_triggered_at IS NULL`
	res, err := r.db.ExecContext(ctx, q, caseID, reactorUserID, models.StatusCleanupRunning, models.StatusWaitR1CleanupThumbs)
	if err != nil {
		return false, err
	}
	return rowsAffectedEquals(res, 1)
}

// MarkCleanupCompleted records cleanup completion and transitions the case
// to its terminal CLEANED state.
func (r *CaseRepository) MarkCleanupCompleted(ctx context.Context, caseID uuid.UUID) error {
	const q = `
		UPDATE cases SET cleanup_completed_at = now(), status = $2, updated_at = now()
		WHERE case_id = $1`
	_, err := r.db.ExecContext(ctx, q, caseID, models.StatusCleaned)
	return err
}

// PriorDenialRow is one candidate row for the prior-case lookup: a case
// with the same agency_record_number whose doctor or scheduler decision
// was a denial.
type PriorDenialRow struct {
	CaseID       uuid.UUID `db:"case_id"`
	DeniedAt     string    `db:"denied_at"`
	DoctorReason *string   `db:"doctor_reason"`
	AppointmentReason *string `db:"appointment_reason"`
}

// FindRecentDenialsByAgencyRecord returns every other case with the given
// agency_record_number whose denial timestamp (doctor_decided_at for a
// doctor deny, appointment_decided_at for a scheduler deny) falls within
// the last 7 days, most recent first.
func (r *CaseRepository) FindRecentDenialsByAgencyRecord(ctx context.Context, agencyRecordNumber string, excludeCaseID uuid.UUID) ([]PriorDenialRow, error) {
	const q = `
		SELECT case_id,
		       (CASE WHEN doctor_decision = 'deny' THEN doctor_decided_at
		             ELSE appointment_decided_at END)::text AS denied_at,
		       doctor_reason, appointment_reason
		FROM cases
		WHERE agency_record_number = $1
		  AND case_id != $2
		  AND (
		        (doctor_decision = 'deny' AND doctor_decided_at >= now() - interval '7 days')
		     OR (appointment_status = 'denied' AND appointment_decided_at >= now() - interval '7 days')
		      )
		ORDER BY denied_at DESC`
	var rows []PriorDenialRow
	if err := r.db.SelectContext(ctx, &rows, q, agencyRecordNumber, excludeCaseID); err != nil {
		return nil, fmt.Errorf("find recent denials: %w", err)
	}
	return rows, nil
}

// MarkFailedIfNonTerminal transitions a case to FAILED unless it has
// already reached CLEANED, used by the job dead-letter finalizer so a job
// failing against an already-cleaned case never resurrects it.
func (r *CaseRepository) MarkFailedIfNonTerminal(ctx context.Context, caseID uuid.UUID) (bool, error) {
	const q = `
		UPDATE cases SET status = $2, updated_at = now()
		WHERE case_id = $1 AND status != $3`
	res, err := r.db.ExecContext(ctx, q, caseID, models.StatusFailed, models.StatusCleaned)
	if err != nil {
		return false, err
	}
	return rowsAffectedEquals(res, 1)
}

// RecoverySnapshot is the read model the recovery sweep uses to decide
// which next-step job is missing for a non-terminal case.
type RecoverySnapshot struct {
	CaseID uuid.UUID         `db:"case_id"`
	Status models.CaseStatus `db:"status"`
}

// ListNonTerminalCasesForRecovery returns every case not yet CLEANED, for
// the startup recovery sweep.
func (r *CaseRepository) ListNonTerminalCasesForRecovery(ctx context.Context) ([]RecoverySnapshot, error) {
	const q = `SELECT case_id, status FROM cases WHERE status != $1`
	var rows []RecoverySnapshot
	if err := r.db.SelectContext(ctx, &rows, q, models.StatusCleaned); err != nil {
		return nil, fmt.Errorf("list non-terminal cases: %w", err)
	}
	return rows, nil
}

func wrapNotFound(err error) error {
	if errors.Is(err, errNoRows) {
		return ErrNotFound
	}
	return err
}
