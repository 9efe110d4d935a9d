// Package chat defines the Transport port the ingress poller and
// state-machine services use to talk to the chat fabric, and a concrete
// Matrix HTTP adapter. No package outside chat ever imports a concrete
// chat vendor package.
package chat

import "context"

// SyncEvent is one normalized timeline event returned from Sync,
// room/message events and reaction events alike.
type SyncEvent struct {
	RoomID         string
	EventID        string
	SenderUserID   string
	Kind           string // "message" | "reaction" | "redaction"
	Body           string
	ReplyToEventID string
	RelatedEventID string // for reactions: the event being reacted to
	ReactionKey    string
	AttachmentMXC  string
}

// Transport is the chat-fabric port: sync polling, posting, replying,
// attachment download, redaction, and room-membership checks.
type Transport interface {
	// Sync returns new events since the opaque cursor sinceToken, and the
	// next cursor to pass on the following call.
	Sync(ctx context.Context, sinceToken string) (events []SyncEvent, nextToken string, err error)
	SendText(ctx context.Context, roomID, body string) (eventID string, err error)
	ReplyText(ctx context.Context, roomID, eventID, body string) (newEventID string, err error)
	ReplyFileText(ctx context.Context, roomID, eventID, filename, body string) (newEventID string, err error)
	RedactEvent(ctx context.Context, roomID, eventID, reason string) error
	DownloadMXC(ctx context.Context, mxcURL string) (data []byte, sha256Hex string, err error)
	IsUserJoined(ctx context.Context, roomID, userID string) (bool, error)
	JoinRoom(ctx context.Context, roomID string) error
}
