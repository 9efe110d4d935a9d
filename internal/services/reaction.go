package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/carlosapgomes/caseflow/internal/db"
	"github.com/carlosapgomes/caseflow/internal/models"
	"github.com/carlosapgomes/caseflow/internal/queue"
)

// ReactionEvent is a chat-fabric reaction normalized to the fields the
// reaction service needs.
type ReactionEvent struct {
	RoomID         string
	EventID        string
	SenderUserID   string
	RelatedEventID string
	ReactionKey    string
}

// acceptedReactionKeys are the only reaction glyphs treated as a positive
// acknowledgement; everything else is ignored.
var acceptedReactionKeys = map[string]bool{"👍": true, "✅": true}

// variationSelectors are stripped from a reaction key before matching,
// since emoji clients append U+FE0E/U+FE0F inconsistently.
var variationSelectors = []string{"︎", "️"}

func normalizeReactionKey(key string) string {
	for _, vs := range variationSelectors {
		key = strings.ReplaceAll(key, vs, "")
	}
	return strings.TrimSpace(key)
}

// ReactionService routes thumbs-up reactions to their case: a Room-1
// reaction on the final reply triggers the cleanup claim race; a Room-2/
// Room-3 reaction on an ack message only updates its reaction checkpoint.
type ReactionService struct {
	cases       *db.CaseRepository
	messages    *db.MessageRepository
	audit       *db.AuditRepository
	checkpoints *db.ReactionCheckpointRepository
	jobs        queue.Repository
	room1ID     string
	room2ID     string
	room3ID     string
}

// NewReactionService builds a ReactionService. room1ID/room2ID/room3ID
// identify which configured room a reaction arrived in.
func NewReactionService(cases *db.CaseRepository, messages *db.MessageRepository, audit *db.AuditRepository, checkpoints *db.ReactionCheckpointRepository, jobs queue.Repository, room1ID, room2ID, room3ID string) *ReactionService {
	return &ReactionService{cases: cases, messages: messages, audit: audit, checkpoints: checkpoints, jobs: jobs, room1ID: room1ID, room2ID: room2ID, room3ID: room3ID}
}

// Handle routes ev per spec.md's reaction-handling rules. Returns false
// when the reaction is not a recognized positive acknowledgement, or
// doesn't resolve to a tracked message, so callers can skip it silently.
func (s *ReactionService) Handle(ctx context.Context, ev ReactionEvent) (bool, error) {
	if !acceptedReactionKeys[normalizeReactionKey(ev.ReactionKey)] {
		return false, nil
	}

	switch ev.RoomID {
	case s.room1ID:
		return s.handleRoom1FinalThumbs(ctx, ev)
	case s.room2ID:
		return s.handleAckThumbs(ctx, ev, "room2_decision_ack", "ROOM2_ACK")
	case s.room3ID:
		return s.handleAckThumbs(ctx, ev, "bot_ack", "ROOM3_ACK")
	default:
		return false, nil
	}
}

func (s *ReactionService) handleRoom1FinalThumbs(ctx context.Context, ev ReactionEvent) (bool, error) {
	snap, err := s.cases.GetByRoom1FinalReplyEventID(ctx, ev.RelatedEventID)
	if err != nil {
		if err == db.ErrNotFound {
			return false, nil
		}
		return false, fmt.Errorf("resolve room1 final reply: %w", err)
	}

	if snap.Status != models.StatusWaitR1CleanupThumbs {
		return true, s.audit.AppendEvent(ctx, db.AuditEventCreateInput{
			CaseID: snap.CaseID, ActorType: "human", ActorUserID: &ev.SenderUserID,
			EventType: "ROOM1_FINAL_THUMBS_UP_IGNORED_WRONG_STATE",
		})
	}

	won, err := s.cases.ClaimCleanupTriggerIfFirst(ctx, snap.CaseID, ev.SenderUserID)
	if err != nil {
		return true, fmt.Errorf("claim cleanup trigger: %w", err)
	}

	if err := s.checkpoints.MarkReceived(ctx, ev.RoomID, ev.RelatedEventID, ev.SenderUserID); err != nil {
		return true, fmt.Errorf("mark room1 final checkpoint received: %w", err)
	}

	if !won {
		return true, s.audit.AppendEvent(ctx, db.AuditEventCreateInput{
			CaseID: snap.CaseID, ActorType: "human", ActorUserID: &ev.SenderUserID,
			EventType: "ROOM1_FINAL_THUMBS_UP_IGNORED_ALREADY_TRIGGERED",
		})
	}

	if err := s.audit.AppendEvent(ctx, db.AuditEventCreateInput{
		CaseID: snap.CaseID, ActorType: "human", ActorUserID: &ev.SenderUserID,
		EventType: "ROOM1_FINAL_THUMBS_UP_TRIGGERED_CLEANUP",
	}); err != nil {
		return true, fmt.Errorf("append ROOM1_FINAL_THUMBS_UP_TRIGGERED_CLEANUP: %w", err)
	}
	if _, err := s.jobs.Enqueue(ctx, db.JobEnqueueInput{CaseID: &snap.CaseID, JobType: models.JobTypeExecuteCleanup}); err != nil {
		return true, fmt.Errorf("enqueue execute_cleanup: %w", err)
	}
	return true, nil
}

func (s *ReactionService) handleAckThumbs(ctx context.Context, ev ReactionEvent, requiredKind, auditPrefix string) (bool, error) {
	caseIDPtr, err := s.messages.FindCaseIDByRoomEventKind(ctx, ev.RoomID, ev.RelatedEventID, requiredKind)
	if err != nil {
		return false, fmt.Errorf("resolve %s parent: %w", requiredKind, err)
	}
	if caseIDPtr == nil {
		return false, nil
	}
	if err := s.checkpoints.MarkReceived(ctx, ev.RoomID, ev.RelatedEventID, ev.SenderUserID); err != nil {
		return true, fmt.Errorf("mark %s checkpoint received: %w", auditPrefix, err)
	}
	return true, s.audit.AppendEvent(ctx, db.AuditEventCreateInput{
		CaseID: *caseIDPtr, ActorType: "human", ActorUserID: &ev.SenderUserID,
		EventType: auditPrefix + "_RECEIVED",
	})
}
