package db

import (
	"context"

	"github.com/google/uuid"
)

// ReactionCheckpointRepository tracks expected human acknowledgements
// (thumbs-up reactions) on specific outbound messages.
type ReactionCheckpointRepository struct {
	db *Client
}

// NewReactionCheckpointRepository builds a ReactionCheckpointRepository
// over an open Client.
func NewReactionCheckpointRepository(client *Client) *ReactionCheckpointRepository {
	return &ReactionCheckpointRepository{db: client}
}

// ReactionCheckpointCreateInput is the payload accepted by
// EnsureExpectedCheckpoint.
type ReactionCheckpointCreateInput struct {
	CaseID        uuid.UUID
	Stage         string // ROOM2_ACK | ROOM3_ACK | ROOM1_FINAL
	RoomID        string
	TargetEventID string
}

// EnsureExpectedCheckpoint records that a thumbs-up is now expected on
// TargetEventID for (CaseID, Stage). Re-posting the same stage for a case
// (a retried job) is a no-op: (case_id, stage) is unique.
func (r *ReactionCheckpointRepository) EnsureExpectedCheckpoint(ctx context.Context, in ReactionCheckpointCreateInput) error {
	const q = `
		INSERT INTO case_reaction_checkpoints (case_id, stage, room_id, target_event_id, outcome)
		VALUES ($1, $2, $3, $4, 'PENDING')
		ON CONFLICT (case_id, stage) DO NOTHING`
	_, err := r.db.ExecContext(ctx, q, in.CaseID, in.Stage, in.RoomID, in.TargetEventID)
	return err
}

// MarkReceived records a positive reaction against the checkpoint matching
// (room_id, target_event_id), if one exists and is still PENDING.
func (r *ReactionCheckpointRepository) MarkReceived(ctx context.Context, roomID, targetEventID, reactorUserID string) error {
	const q = `
		UPDATE case_reaction_checkpoints SET
			outcome = 'POSITIVE_RECEIVED',
			reactor_user_id = $3,
			received_at = now()
		WHERE room_id = $1 AND target_event_id = $2 AND outcome = 'PENDING'`
	_, err := r.db.ExecContext(ctx, q, roomID, targetEventID, reactorUserID)
	return err
}
