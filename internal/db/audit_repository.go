package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// AuditRepository appends rows to the immutable case_events log. No method
// on this type ever issues an UPDATE or DELETE against case_events.
type AuditRepository struct {
	db *Client
}

// NewAuditRepository builds an AuditRepository over an open Client.
func NewAuditRepository(client *Client) *AuditRepository {
	return &AuditRepository{db: client}
}

// AuditEventCreateInput is the payload accepted by AppendEvent.
type AuditEventCreateInput struct {
	CaseID        uuid.UUID
	ActorType     string // human | system | bot
	ActorUserID   *string
	RoomID        *string
	MatrixEventID *string
	EventType     string
	Payload       map[string]any
}

// AppendEvent inserts one audit row. Payload defaults to {} when nil so
// the column's NOT NULL constraint is always satisfied.
func (r *AuditRepository) AppendEvent(ctx context.Context, in AuditEventCreateInput) error {
	payload := in.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}
	const q = `
		INSERT INTO case_events (case_id, actor_type, actor_user_id, room_id, matrix_event_id, event_type, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err = r.db.ExecContext(ctx, q, in.CaseID, in.ActorType, in.ActorUserID, in.RoomID, in.MatrixEventID, in.EventType, raw)
	return err
}
