package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Event types pushed by the backend over the chat websocket.
const (
	EventCompleteMessage = "complete_message"
	EventMessageChunk    = "message_chunk"
	EventStatusUpdate    = "status_update"
)

// Event is one backend-pushed frame. The wire shape is flat with a `type`
// discriminator; fields are populated per type and left zero otherwise.
type Event struct {
	Type string `json:"type"`

	// complete_message and message_chunk carry a stable message id.
	// status_update never does.
	ID string `json:"id,omitempty"`

	// complete_message
	Content        string   `json:"content,omitempty"`
	LatencyMS      int64    `json:"latency_ms,omitempty"`
	SourceMemories []string `json:"source_memories,omitempty"`
	IssuedCommand  *Command `json:"issued_command,omitempty"`

	// message_chunk
	ContentChunk string `json:"content_chunk,omitempty"`
	IsFinal      bool   `json:"is_final,omitempty"`

	// status_update
	Status  string `json:"status,omitempty"`
	Details string `json:"details,omitempty"`
}

// ParseEvent decodes and validates one inbound frame. Unknown event types
// are accepted as-is so newer backends do not break the read loop; the
// reconciler ignores what it does not understand.
func ParseEvent(data []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, err
	}
	ev.Type = strings.TrimSpace(ev.Type)
	ev.ID = strings.TrimSpace(ev.ID)
	if ev.Type == "" {
		return Event{}, fmt.Errorf("invalid event (missing type)")
	}
	switch ev.Type {
	case EventCompleteMessage, EventMessageChunk:
		if ev.ID == "" {
			return Event{}, fmt.Errorf("invalid %s event (missing id)", ev.Type)
		}
	case EventStatusUpdate:
		if strings.TrimSpace(ev.Status) == "" {
			return Event{}, fmt.Errorf("invalid status_update event (missing status)")
		}
	}
	return ev, nil
}

// ChatRequest is the frame the console sends to the backend, both for
// operator-typed messages and for command responses (which travel as plain
// message text by convention).
type ChatRequest struct {
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
}

func NewChatRequest(sessionID, userID, message string) ChatRequest {
	return ChatRequest{
		SessionID: strings.TrimSpace(sessionID),
		UserID:    strings.TrimSpace(userID),
		Timestamp: time.Now().UTC(),
		Message:   message,
	}
}

func (r ChatRequest) Marshal() ([]byte, error) {
	if r.SessionID == "" {
		return nil, fmt.Errorf("chat request session_id is required")
	}
	if r.UserID == "" {
		return nil, fmt.Errorf("chat request user_id is required")
	}
	return json.Marshal(r)
}
