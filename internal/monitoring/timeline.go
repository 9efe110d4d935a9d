// Package monitoring implements the read-only case monitoring surface:
// the four-source activity timeline and the paginated case list, per
// spec.md §6's Monitoring API.
package monitoring

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/carlosapgomes/caseflow/internal/db"
)

// TimelineEntry is one row of a case's unioned activity timeline.
type TimelineEntry struct {
	Timestamp   time.Time `db:"ts"`
	Source      string    `db:"source"`
	Channel     *string   `db:"channel"`
	Actor       *string   `db:"actor"`
	EventType   string    `db:"event_type"`
	Payload     *string   `db:"payload"`
	ContentText *string   `db:"content_text"`
}

// timelineUnionQuery unions the four activity sources the spec names:
// the audit log, the PDF extraction transcript, the LLM interaction log,
// and the Matrix message transcript. Every branch projects the same
// column set (casting payload to text so jsonb and null literals unify
// cleanly across branches) so a single ORDER BY sorts the whole result.
const timelineUnionQuery = `
	SELECT ts, source, channel, actor, event_type, payload, content_text FROM (
		SELECT ts AS ts, 'audit' AS source, room_id AS channel,
		       COALESCE(actor_user_id, actor_type) AS actor,
		       event_type AS event_type, payload::text AS payload,
		       NULL::text AS content_text
		FROM case_events WHERE case_id = $1

		UNION ALL

		SELECT captured_at AS ts, 'pdf' AS source, NULL::text AS channel,
		       NULL::text AS actor, 'pdf_extracted' AS event_type,
		       NULL::text AS payload, extracted_text AS content_text
		FROM case_report_transcripts WHERE case_id = $1

		UNION ALL

		SELECT captured_at AS ts, 'llm' AS source, stage AS channel,
		       model_name AS actor, stage AS event_type,
		       output_payload::text AS payload, NULL::text AS content_text
		FROM case_llm_interactions WHERE case_id = $1

		UNION ALL

		SELECT captured_at AS ts, 'matrix' AS source, room_id AS channel,
		       sender AS actor, message_type AS event_type,
		       NULL::text AS payload, message_text AS content_text
		FROM case_matrix_message_transcripts WHERE case_id = $1
	) unioned
	ORDER BY ts ASC`

// TimelineService assembles a case's activity timeline for the monitoring
// API, mirroring the teacher's read-model timeline assembly but over this
// domain's four activity tables instead of a single session-events table.
type TimelineService struct {
	db    *db.Client
	cases *db.CaseRepository
}

// NewTimelineService builds a TimelineService.
func NewTimelineService(client *db.Client, cases *db.CaseRepository) *TimelineService {
	return &TimelineService{db: client, cases: cases}
}

// CaseTimeline returns the case's status and its unioned, ascending
// timeline. Returns db.ErrNotFound if the case doesn't exist.
func (s *TimelineService) CaseTimeline(ctx context.Context, caseID uuid.UUID) (status string, entries []TimelineEntry, err error) {
	c, err := s.cases.GetByID(ctx, caseID)
	if err != nil {
		return "", nil, err
	}

	var rows []TimelineEntry
	if err := s.db.SelectContext(ctx, &rows, timelineUnionQuery, caseID); err != nil {
		return "", nil, fmt.Errorf("query case timeline: %w", err)
	}
	return string(c.Status), rows, nil
}
