package transcript

import (
	"strings"
	"time"
)

type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
)

type AgentStatus string

const (
	StatusIdle      AgentStatus = "idle"
	StatusThinking  AgentStatus = "thinking"
	StatusExecuting AgentStatus = "executing"
	StatusOffline   AgentStatus = "offline"
)

// Message is one transcript entry. Immutable once appended; the transcript
// is append-only with first-write-wins semantics per id.
type Message struct {
	ID        string
	Sender    Sender
	Content   string
	Timestamp time.Time
	AgentID   string
	Citations []string // memory ids the backend cited for this message
}

// State is the transcript sink plus per-agent status. It is the second
// dedupe layer: Append refuses ids already present, independent of the
// reconciler's per-event check, so re-running reconciliation over
// overlapping batches cannot duplicate entries.
type State struct {
	messages []Message
	byID     map[string]struct{}
	status   map[string]AgentStatus
}

func NewState() *State {
	return &State{
		byID:   make(map[string]struct{}),
		status: make(map[string]AgentStatus),
	}
}

// Append adds msg unless its id is already present. Reports whether the
// message was added.
func (s *State) Append(msg Message) bool {
	if s == nil {
		return false
	}
	id := strings.TrimSpace(msg.ID)
	if id == "" {
		return false
	}
	if _, ok := s.byID[id]; ok {
		return false
	}
	msg.ID = id
	s.byID[id] = struct{}{}
	s.messages = append(s.messages, msg)
	return true
}

func (s *State) Contains(id string) bool {
	if s == nil {
		return false
	}
	_, ok := s.byID[strings.TrimSpace(id)]
	return ok
}

// Messages returns the transcript in append order. The slice is a copy;
// the entries are values and safe to hold.
func (s *State) Messages() []Message {
	if s == nil || len(s.messages) == 0 {
		return nil
	}
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

func (s *State) Len() int {
	if s == nil {
		return 0
	}
	return len(s.messages)
}

func (s *State) SetStatus(agentID string, status AgentStatus) {
	if s == nil {
		return
	}
	id := strings.TrimSpace(agentID)
	if id == "" || status == "" {
		return
	}
	s.status[id] = status
}

func (s *State) Status(agentID string) AgentStatus {
	if s == nil {
		return StatusOffline
	}
	if st, ok := s.status[strings.TrimSpace(agentID)]; ok {
		return st
	}
	return StatusOffline
}

// Clear drops all messages and statuses. Used on session switch.
func (s *State) Clear() {
	if s == nil {
		return
	}
	s.messages = nil
	s.byID = make(map[string]struct{})
	s.status = make(map[string]AgentStatus)
}
