package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// JobStatus enumerates the lifecycle states of a queued unit of work.
type JobStatus string

const (
	JobQueued  JobStatus = "queued"
	JobRunning JobStatus = "running"
	JobDone    JobStatus = "done"
	JobFailed  JobStatus = "failed"
	JobDead    JobStatus = "dead"
)

// Job mirrors the `jobs` table row: one durable, at-least-once unit of
// work targeting a case.
type Job struct {
	JobID       int64           `db:"job_id"`
	CaseID      *uuid.UUID      `db:"case_id"`
	JobType     string          `db:"job_type"`
	Status      JobStatus       `db:"status"`
	RunAfter    time.Time       `db:"run_after"`
	Attempts    int             `db:"attempts"`
	MaxAttempts int             `db:"max_attempts"`
	LastError   *string         `db:"last_error"`
	Payload     json.RawMessage `db:"payload"`
	CreatedAt   time.Time       `db:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at"`
}

// Known job types, the vocabulary the worker's handler registry dispatches
// on and the recovery sweep enqueues from case status.
const (
	JobTypeProcessPDFCase              = "process_pdf_case"
	JobTypePostRoom2Widget             = "post_room2_widget"
	JobTypePostRoom3Request            = "post_room3_request"
	JobTypePostRoom1FinalDenialTriage  = "post_room1_final_denial_triage"
	JobTypePostRoom1FinalApptConfirmed = "post_room1_final_appt"
	JobTypePostRoom1FinalApptDenied    = "post_room1_final_appt_denied"
	JobTypePostRoom1FinalFailure       = "post_room1_final_failure"
	JobTypeExecuteCleanup              = "execute_cleanup"
)

// PromptTemplate mirrors the `prompt_templates` table row.
type PromptTemplate struct {
	ID              uuid.UUID  `db:"id"`
	Name            string     `db:"name"`
	Version         int        `db:"version"`
	Content         string     `db:"content"`
	Description     *string    `db:"description"`
	IsActive        bool       `db:"is_active"`
	CreatedAt       time.Time  `db:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at"`
	UpdatedByUserID *uuid.UUID `db:"updated_by_user_id"`
}

// CaseReactionCheckpoint tracks an expected human acknowledgement (a
// thumbs-up reaction) on a specific outbound message; Outcome moves from
// PENDING to POSITIVE_RECEIVED when the reaction arrives.
type CaseReactionCheckpoint struct {
	ID             int64      `db:"id"`
	CaseID         uuid.UUID  `db:"case_id"`
	Stage          string     `db:"stage"`
	RoomID         string     `db:"room_id"`
	TargetEventID  string     `db:"target_event_id"`
	Outcome        string     `db:"outcome"` // PENDING | POSITIVE_RECEIVED
	ReactorUserID  *string    `db:"reactor_user_id"`
	ReceivedAt     *time.Time `db:"received_at"`
	CreatedAt      time.Time  `db:"created_at"`
}

// Reaction checkpoint outcomes.
const (
	ReactionPending          = "PENDING"
	ReactionPositiveReceived = "POSITIVE_RECEIVED"
)

// User mirrors the `users` table row for the widget/admin bearer-auth port.
type User struct {
	ID           uuid.UUID `db:"id"`
	Email        string    `db:"email"`
	PasswordHash string    `db:"password_hash"`
	Role         string    `db:"role"` // admin | doctor | viewer
	Active       bool      `db:"active"`
	CreatedAt    time.Time `db:"created_at"`
}

// AuthToken mirrors the `auth_tokens` table row: an opaque bearer token
// bound to a user with an expiry.
type AuthToken struct {
	TokenHash  string     `db:"token_hash"`
	UserID     uuid.UUID  `db:"user_id"`
	ExpiresAt  time.Time  `db:"expires_at"`
	CreatedAt  time.Time  `db:"created_at"`
	LastUsedAt *time.Time `db:"last_used_at"`
	RevokedAt  *time.Time `db:"revoked_at"`
}

// AuthEvent records a login/logout/token-revocation event for the admin
// audit surface.
type AuthEvent struct {
	ID        int64     `db:"id"`
	UserID    uuid.UUID `db:"user_id"`
	EventType string    `db:"event_type"` // login_succeeded | login_failed | logout | token_revoked | authorization_failed
	IPAddress *string   `db:"ip_address"`
	CreatedAt time.Time `db:"created_at"`
}
