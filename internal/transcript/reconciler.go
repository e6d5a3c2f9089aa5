package transcript

import (
	"strings"
	"time"

	"github.com/c04ch1337/pagi-digital-twin-sub000/internal/protocol"
)

// CommandIndex records which message ids have already had their embedded
// command surfaced. MarkHandled is an idempotent check-and-set: it reports
// true only the first time an id is seen, so re-scanning a stream that
// contains already-seen events can never surface the same command twice.
type CommandIndex interface {
	MarkHandled(id string) bool
}

// SurfacedCommand is a command the reconciler forwarded, correlated to the
// message that carried it.
type SurfacedCommand struct {
	MessageID string
	Command   protocol.Command
}

// Effect is the output of folding one event: at most one transcript
// message, at most one agent-status transition, at most one surfaced
// command. Zero-value fields mean "no effect".
type Effect struct {
	Message *Message
	AgentID string
	Status  AgentStatus
	Command *SurfacedCommand
}

// Reconciler folds the raw event stream into transcript messages and
// status transitions. It never reorders: events are applied one at a time
// in delivery order, and all mutation is synchronous.
type Reconciler struct {
	agentID string
	index   CommandIndex
	chunks  *Accumulator
	seen    map[string]struct{}
	now     func() time.Time
}

func NewReconciler(agentID string, index CommandIndex) *Reconciler {
	return &Reconciler{
		agentID: strings.TrimSpace(agentID),
		index:   index,
		chunks:  NewAccumulator(),
		seen:    make(map[string]struct{}),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Apply folds one event. Events carrying a stable id are idempotent:
// replaying one that already produced a message is a no-op. status_update
// events carry no id and are never deduplicated.
func (r *Reconciler) Apply(ev protocol.Event) Effect {
	if r == nil {
		return Effect{}
	}
	switch strings.TrimSpace(ev.Type) {
	case protocol.EventCompleteMessage:
		return r.applyComplete(ev)
	case protocol.EventMessageChunk:
		return r.applyChunk(ev)
	case protocol.EventStatusUpdate:
		return r.applyStatus(ev)
	}
	return Effect{}
}

func (r *Reconciler) applyComplete(ev protocol.Event) Effect {
	id := strings.TrimSpace(ev.ID)
	if id == "" {
		return Effect{}
	}
	if _, ok := r.seen[id]; ok {
		return Effect{}
	}
	r.seen[id] = struct{}{}

	eff := Effect{
		Message: &Message{
			ID:        id,
			Sender:    SenderAssistant,
			Content:   ev.Content,
			Timestamp: r.now(),
			AgentID:   r.agentID,
			Citations: ev.SourceMemories,
		},
		AgentID: r.agentID,
		Status:  StatusIdle,
	}
	if ev.IssuedCommand != nil && r.index != nil && r.index.MarkHandled(id) {
		eff.Command = &SurfacedCommand{MessageID: id, Command: *ev.IssuedCommand}
	}
	return eff
}

func (r *Reconciler) applyChunk(ev protocol.Event) Effect {
	id := strings.TrimSpace(ev.ID)
	if id == "" {
		return Effect{}
	}
	if _, ok := r.seen[id]; ok {
		// The stream already completed for this id; late or replayed
		// chunks are dropped.
		return Effect{}
	}
	content, done := r.chunks.Add(id, ev.ContentChunk, ev.IsFinal)
	if !done {
		return Effect{}
	}
	r.seen[id] = struct{}{}
	return Effect{
		Message: &Message{
			ID:        id,
			Sender:    SenderAssistant,
			Content:   content,
			Timestamp: r.now(),
			AgentID:   r.agentID,
		},
		AgentID: r.agentID,
		Status:  StatusIdle,
	}
}

func (r *Reconciler) applyStatus(ev protocol.Event) Effect {
	status := strings.TrimSpace(ev.Status)
	if status == "" || strings.EqualFold(status, "ready") {
		// "ready" is transport noise, not operator-relevant.
		return Effect{}
	}

	content := status
	if details := strings.TrimSpace(ev.Details); details != "" {
		content = status + ": " + details
	}
	eff := Effect{
		Message: &Message{
			ID:        protocol.NewID("status"),
			Sender:    SenderAssistant,
			Content:   content,
			Timestamp: r.now(),
			AgentID:   r.agentID,
		},
	}
	if strings.EqualFold(status, "busy") {
		eff.AgentID = r.agentID
		eff.Status = StatusThinking
	}
	return eff
}

// Pending reports how many chunk streams are still accumulating.
func (r *Reconciler) Pending() int {
	if r == nil {
		return 0
	}
	return r.chunks.Pending()
}

// Reset clears the per-event dedupe set and drops in-flight chunk
// accumulation. Called on session switch.
func (r *Reconciler) Reset() {
	if r == nil {
		return
	}
	r.seen = make(map[string]struct{})
	r.chunks.Reset()
}
