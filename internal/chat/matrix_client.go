package chat

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
)

// MatrixClientConfig configures a MatrixClient.
type MatrixClientConfig struct {
	HomeserverURL string
	AccessToken   string
	HTTPTimeout   time.Duration
}

// MatrixClient implements Transport over the Matrix Client-Server HTTP
// API using a plain net/http.Client — no Matrix SDK appears anywhere in
// the retrieval pack this repo draws from, so this follows the same
// hand-rolled HTTP-client idiom as the Slack adapter it's modeled on.
type MatrixClient struct {
	baseURL     string
	accessToken string
	httpClient  *http.Client
	breaker     *gobreaker.CircuitBreaker
}

// NewMatrixClient builds a MatrixClient wrapped in a circuit breaker so a
// homeserver outage trips fast instead of blocking callers on repeated
// timeouts.
func NewMatrixClient(cfg MatrixClientConfig) *MatrixClient {
	timeout := cfg.HTTPTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &MatrixClient{
		baseURL:     strings.TrimRight(cfg.HomeserverURL, "/"),
		accessToken: cfg.AccessToken,
		httpClient:  &http.Client{Timeout: timeout},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "matrix-transport",
			Timeout:     30 * time.Second,
			ReadyToTrip: func(c gobreaker.Counts) bool { return c.ConsecutiveFailures >= 5 },
		}),
	}
}

func (c *MatrixClient) requestJSON(ctx context.Context, method, path string, body any, out any) error {
	_, err := c.breaker.Execute(func() (any, error) {
		var reader io.Reader
		if body != nil {
			raw, err := json.Marshal(body)
			if err != nil {
				return nil, err
			}
			reader = bytes.NewReader(raw)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+c.accessToken)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		payload, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 300 {
			return nil, fmt.Errorf("matrix request %s %s failed: %d %s", method, path, resp.StatusCode, string(payload))
		}
		if out != nil {
			return nil, json.Unmarshal(payload, out)
		}
		return nil, nil
	})
	return err
}

// SendText posts a plain text message and returns the generated event id.
func (c *MatrixClient) SendText(ctx context.Context, roomID, body string) (string, error) {
	path := fmt.Sprintf("/_matrix/client/v3/rooms/%s/send/m.room.message/%s", roomID, newTxnID())
	var resp struct {
		EventID string `json:"event_id"`
	}
	err := c.requestJSON(ctx, http.MethodPut, path, map[string]string{"msgtype": "m.text", "body": body}, &resp)
	return resp.EventID, err
}

// ReplyText posts a reply-to message and returns the generated event id.
func (c *MatrixClient) ReplyText(ctx context.Context, roomID, eventID, body string) (string, error) {
	path := fmt.Sprintf("/_matrix/client/v3/rooms/%s/send/m.room.message/%s", roomID, newTxnID())
	content := map[string]any{
		"msgtype": "m.text",
		"body":    body,
		"m.relates_to": map[string]any{
			"m.in_reply_to": map[string]string{"event_id": eventID},
		},
	}
	var resp struct {
		EventID string `json:"event_id"`
	}
	err := c.requestJSON(ctx, http.MethodPut, path, content, &resp)
	return resp.EventID, err
}

// ReplyFileText posts a reply carrying a text attachment with the given
// filename (used for the PDF-extraction reply in Room-2 posting).
func (c *MatrixClient) ReplyFileText(ctx context.Context, roomID, eventID, filename, body string) (string, error) {
	path := fmt.Sprintf("/_matrix/client/v3/rooms/%s/send/m.room.message/%s", roomID, newTxnID())
	content := map[string]any{
		"msgtype":  "m.file",
		"body":     filename,
		"filename": filename,
		"m.relates_to": map[string]any{
			"m.in_reply_to": map[string]string{"event_id": eventID},
		},
		"caseflow.attachment_text": body,
	}
	var resp struct {
		EventID string `json:"event_id"`
	}
	err := c.requestJSON(ctx, http.MethodPut, path, content, &resp)
	return resp.EventID, err
}

// RedactEvent redacts a previously sent event.
func (c *MatrixClient) RedactEvent(ctx context.Context, roomID, eventID, reason string) error {
	path := fmt.Sprintf("/_matrix/client/v3/rooms/%s/redact/%s/%s", roomID, eventID, newTxnID())
	return c.requestJSON(ctx, http.MethodPut, path, map[string]string{"reason": reason}, nil)
}

// DownloadMXC downloads media content by mxc:// URL and returns its bytes
// and sha256 hex digest.
func (c *MatrixClient) DownloadMXC(ctx context.Context, mxcURL string) ([]byte, string, error) {
	serverName, mediaID, err := parseMXC(mxcURL)
	if err != nil {
		return nil, "", err
	}
	path := fmt.Sprintf("/_matrix/client/v1/media/download/%s/%s", serverName, mediaID)

	var data []byte
	_, err = c.breaker.Execute(func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+c.accessToken)
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 300 {
			return nil, fmt.Errorf("matrix media download failed: %d", resp.StatusCode)
		}
		data, err = io.ReadAll(resp.Body)
		return nil, err
	})
	if err != nil {
		return nil, "", err
	}
	sum := sha256.Sum256(data)
	return data, hex.EncodeToString(sum[:]), nil
}

// IsUserJoined reports whether userID is a joined member of roomID.
func (c *MatrixClient) IsUserJoined(ctx context.Context, roomID, userID string) (bool, error) {
	path := fmt.Sprintf("/_matrix/client/v3/rooms/%s/joined_members", roomID)
	var resp struct {
		Joined map[string]any `json:"joined"`
	}
	if err := c.requestJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return false, err
	}
	_, ok := resp.Joined[userID]
	return ok, nil
}

// JoinRoom joins roomID.
func (c *MatrixClient) JoinRoom(ctx context.Context, roomID string) error {
	path := fmt.Sprintf("/_matrix/client/v3/join/%s", roomID)
	return c.requestJSON(ctx, http.MethodPost, path, map[string]string{}, nil)
}

// Sync is intentionally not the long-poll /sync endpoint: the ingress
// poller calls this on its own fixed interval (spec's "ingress poller"
// component owns cadence, not the transport), so this issues a
// short-timeout sync call and returns immediately.
func (c *MatrixClient) Sync(ctx context.Context, sinceToken string) ([]SyncEvent, string, error) {
	path := "/_matrix/client/v3/sync?timeout=0"
	if sinceToken != "" {
		path += "&since=" + sinceToken
	}
	var resp struct {
		NextBatch string `json:"next_batch"`
		Rooms     struct {
			Join map[string]struct {
				Timeline struct {
					Events []json.RawMessage `json:"events"`
				} `json:"timeline"`
			} `json:"join"`
		} `json:"rooms"`
	}
	if err := c.requestJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, sinceToken, err
	}

	var events []SyncEvent
	for roomID, room := range resp.Rooms.Join {
		for _, raw := range room.Timeline.Events {
			if ev, ok := parseTimelineEvent(roomID, raw); ok {
				events = append(events, ev)
			}
		}
	}
	return events, resp.NextBatch, nil
}

func newTxnID() string {
	return uuid.NewString()
}

func parseMXC(mxcURL string) (serverName, mediaID string, err error) {
	const prefix = "mxc://"
	if !strings.HasPrefix(mxcURL, prefix) {
		return "", "", fmt.Errorf("invalid mxc url: %s", mxcURL)
	}
	rest := strings.TrimPrefix(mxcURL, prefix)
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("invalid mxc url: %s", mxcURL)
	}
	return parts[0], parts[1], nil
}

func parseTimelineEvent(roomID string, raw json.RawMessage) (SyncEvent, bool) {
	var generic struct {
		Type    string `json:"type"`
		EventID string `json:"event_id"`
		Sender  string `json:"sender"`
		Content struct {
			MsgType string `json:"msgtype"`
			Body    string `json:"body"`
			URL     string `json:"url"`
			Info    struct {
				Mimetype string `json:"mimetype"`
			} `json:"info"`
			Relation struct {
				RelType string `json:"rel_type"`
				EventID string `json:"event_id"`
				Key     string `json:"key"`
				InReply struct {
					EventID string `json:"event_id"`
				} `json:"m.in_reply_to"`
			} `json:"m.relates_to"`
		} `json:"content"`
	}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return SyncEvent{}, false
	}

	switch generic.Type {
	case "m.room.message":
		var attachmentMXC string
		if generic.Content.MsgType == "m.file" && generic.Content.Info.Mimetype == "application/pdf" {
			attachmentMXC = generic.Content.URL
		}
		return SyncEvent{
			RoomID:         roomID,
			EventID:        generic.EventID,
			SenderUserID:   generic.Sender,
			Kind:           "message",
			Body:           generic.Content.Body,
			ReplyToEventID: generic.Content.Relation.InReply.EventID,
			AttachmentMXC:  attachmentMXC,
		}, true
	case "m.reaction":
		return SyncEvent{
			RoomID:         roomID,
			EventID:        generic.EventID,
			SenderUserID:   generic.Sender,
			Kind:           "reaction",
			RelatedEventID: generic.Content.Relation.EventID,
			ReactionKey:    generic.Content.Relation.Key,
		}, true
	default:
		return SyncEvent{}, false
	}
}
