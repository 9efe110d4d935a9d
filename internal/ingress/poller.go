// Package ingress holds the chat-fabric sync loop that turns inbound
// Matrix events into calls against the state-machine services.
package ingress

import (
	"context"
	"log/slog"
	"time"

	"github.com/carlosapgomes/caseflow/internal/chat"
	"github.com/carlosapgomes/caseflow/internal/db"
	"github.com/carlosapgomes/caseflow/internal/services"
)

// room2ParentKinds and room3ParentKinds are the case_messages kinds a
// reply's parent must resolve to for the poller to route it to the
// corresponding reply service. A reply to anything else is ignored.
var (
	room2ParentKinds = []string{"room2_case_root", "room2_case_instructions", "room2_case_template"}
	room3ParentKinds = []string{"room3_request", "room3_template"}
)

// Poller runs the single-threaded cooperative sync loop described in
// spec.md §4.3: one sync call per iteration, dispatch every event in the
// batch, only then advance the cursor.
type Poller struct {
	transport   chat.Transport
	messages    *db.MessageRepository
	intake      *services.Room1IntakeService
	room2Reply  *services.Room2ReplyService
	room3Reply  *services.Room3ReplyService
	reactions   *services.ReactionService
	botUserID   string
	room1ID     string
	room2ID     string
	room3ID     string
	syncTimeout time.Duration
	pollEvery   time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewPoller builds a Poller over the three configured rooms.
func NewPoller(
	transport chat.Transport,
	messages *db.MessageRepository,
	intake *services.Room1IntakeService,
	room2Reply *services.Room2ReplyService,
	room3Reply *services.Room3ReplyService,
	reactions *services.ReactionService,
	botUserID, room1ID, room2ID, room3ID string,
	syncTimeout, pollEvery time.Duration,
) *Poller {
	return &Poller{
		transport: transport, messages: messages,
		intake: intake, room2Reply: room2Reply, room3Reply: room3Reply, reactions: reactions,
		botUserID: botUserID, room1ID: room1ID, room2ID: room2ID, room3ID: room3ID,
		syncTimeout: syncTimeout, pollEvery: pollEvery,
		stopCh: make(chan struct{}), doneCh: make(chan struct{}),
	}
}

// Start launches the poll loop goroutine. Stop must be called to release it.
func (p *Poller) Start(ctx context.Context) {
	go p.run(ctx)
}

// Stop signals the poll loop to exit and waits for the current iteration to
// finish.
func (p *Poller) Stop() {
	close(p.stopCh)
	<-p.doneCh
}

func (p *Poller) run(ctx context.Context) {
	defer close(p.doneCh)

	since := ""
	ticker := time.NewTicker(p.pollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-ticker.C:
			since = p.iterate(ctx, since)
		}
	}
}

// iterate runs one sync cycle and returns the cursor to use next. On
// transport error it logs and returns the same cursor, per spec.md §4.3
// step 5.
func (p *Poller) iterate(ctx context.Context, since string) string {
	p.joinConfiguredRooms(ctx)

	syncCtx, cancel := context.WithTimeout(ctx, p.syncTimeout)
	defer cancel()

	events, nextToken, err := p.transport.Sync(syncCtx, since)
	if err != nil {
		slog.Error("ingress sync failed", "error", err)
		return since
	}

	for _, ev := range events {
		if ev.SenderUserID == p.botUserID {
			continue
		}
		p.dispatch(ctx, ev)
	}

	return nextToken
}

func (p *Poller) joinConfiguredRooms(ctx context.Context) {
	for _, roomID := range []string{p.room1ID, p.room2ID, p.room3ID} {
		if err := p.transport.JoinRoom(ctx, roomID); err != nil {
			slog.Warn("auto-join room failed, will retry next cycle", "room_id", roomID, "error", err)
		}
	}
}

func (p *Poller) dispatch(ctx context.Context, ev chat.SyncEvent) {
	if ev.Kind == "reaction" {
		if _, err := p.reactions.Handle(ctx, services.ReactionEvent{
			RoomID: ev.RoomID, EventID: ev.EventID, SenderUserID: ev.SenderUserID,
			RelatedEventID: ev.RelatedEventID, ReactionKey: ev.ReactionKey,
		}); err != nil {
			slog.Error("reaction handler failed", "room_id", ev.RoomID, "event_id", ev.EventID, "error", err)
		}
		return
	}
	if ev.Kind != "message" {
		return
	}

	switch ev.RoomID {
	case p.room1ID:
		p.dispatchRoom1(ctx, ev)
	case p.room2ID:
		p.dispatchRoom2(ctx, ev)
	case p.room3ID:
		p.dispatchRoom3(ctx, ev)
	}
}

func (p *Poller) dispatchRoom1(ctx context.Context, ev chat.SyncEvent) {
	if ev.AttachmentMXC == "" {
		return
	}
	if _, err := p.intake.Handle(ctx, services.IntakeEvent{
		RoomID: ev.RoomID, EventID: ev.EventID, SenderUserID: ev.SenderUserID, PDFMxcURL: ev.AttachmentMXC,
	}); err != nil {
		slog.Error("room1 intake failed", "room_id", ev.RoomID, "event_id", ev.EventID, "error", err)
	}
}

func (p *Poller) dispatchRoom2(ctx context.Context, ev chat.SyncEvent) {
	if ev.ReplyToEventID == "" {
		return
	}
	caseIDPtr, err := p.messages.FindCaseIDByRoomEventKinds(ctx, ev.RoomID, ev.ReplyToEventID, room2ParentKinds)
	if err != nil {
		slog.Error("resolve room2 reply parent failed", "room_id", ev.RoomID, "event_id", ev.EventID, "error", err)
		return
	}
	if caseIDPtr == nil {
		return
	}
	if err := p.room2Reply.Handle(ctx, services.Room2ReplyEvent{
		RoomID: ev.RoomID, EventID: ev.EventID, SenderUserID: ev.SenderUserID, Body: ev.Body,
	}); err != nil {
		slog.Error("room2 reply handler failed", "room_id", ev.RoomID, "event_id", ev.EventID, "error", err)
	}
}

func (p *Poller) dispatchRoom3(ctx context.Context, ev chat.SyncEvent) {
	if ev.ReplyToEventID == "" {
		return
	}
	caseIDPtr, err := p.messages.FindCaseIDByRoomEventKinds(ctx, ev.RoomID, ev.ReplyToEventID, room3ParentKinds)
	if err != nil {
		slog.Error("resolve room3 reply parent failed", "room_id", ev.RoomID, "event_id", ev.EventID, "error", err)
		return
	}
	if caseIDPtr == nil {
		return
	}
	if _, err := p.room3Reply.Handle(ctx, services.Room3ReplyEvent{
		RoomID: ev.RoomID, EventID: ev.EventID, SenderUserID: ev.SenderUserID,
		ReplyToEventID: ev.ReplyToEventID, Body: ev.Body,
	}); err != nil {
		slog.Error("room3 reply handler failed", "room_id", ev.RoomID, "event_id", ev.EventID, "error", err)
	}
}
