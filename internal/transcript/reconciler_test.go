package transcript

import (
	"testing"

	"github.com/c04ch1337/pagi-digital-twin-sub000/internal/protocol"
)

type fakeIndex struct {
	handled map[string]struct{}
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{handled: make(map[string]struct{})}
}

func (f *fakeIndex) MarkHandled(id string) bool {
	if _, ok := f.handled[id]; ok {
		return false
	}
	f.handled[id] = struct{}{}
	return true
}

func ingest(t *testing.T, rec *Reconciler, state *State, ev protocol.Event) Effect {
	t.Helper()
	eff := rec.Apply(ev)
	if eff.Message != nil {
		if !state.Append(*eff.Message) {
			eff.Message = nil
		}
	}
	if eff.Status != "" {
		state.SetStatus(eff.AgentID, eff.Status)
	}
	return eff
}

func TestIdempotentMerge(t *testing.T) {
	t.Parallel()

	rec := NewReconciler("twin-1", newFakeIndex())
	state := NewState()
	ev := protocol.Event{Type: protocol.EventCompleteMessage, ID: "m1", Content: "hello"}

	eff := ingest(t, rec, state, ev)
	if eff.Message == nil || eff.Message.ID != "m1" || eff.Message.Sender != SenderAssistant {
		t.Fatalf("unexpected first effect: %+v", eff)
	}
	if eff.Status != StatusIdle || eff.AgentID != "twin-1" {
		t.Fatalf("expected idle transition, got %+v", eff)
	}

	eff = ingest(t, rec, state, ev)
	if eff.Message != nil {
		t.Fatalf("replay should be a no-op, got %+v", eff.Message)
	}
	if state.Len() != 1 {
		t.Fatalf("expected exactly one message, got %d", state.Len())
	}
}

func TestSinkDedupeAcrossBatches(t *testing.T) {
	t.Parallel()

	// Two reconciliation passes over overlapping batches share the sink
	// but not the per-event dedupe set.
	idx := newFakeIndex()
	state := NewState()

	ev := protocol.Event{Type: protocol.EventCompleteMessage, ID: "m1", Content: "hello"}
	ingest(t, NewReconciler("twin-1", idx), state, ev)
	eff := ingest(t, NewReconciler("twin-1", idx), state, ev)
	if eff.Message != nil {
		t.Fatalf("sink should have rejected the duplicate append")
	}
	if state.Len() != 1 {
		t.Fatalf("expected one message after overlapping batches, got %d", state.Len())
	}
}

func TestChunkCompleteness(t *testing.T) {
	t.Parallel()

	rec := NewReconciler("twin-1", newFakeIndex())
	state := NewState()

	eff := ingest(t, rec, state, protocol.Event{Type: protocol.EventMessageChunk, ID: "m1", ContentChunk: "Hel"})
	if eff.Message != nil {
		t.Fatalf("partial chunk must not produce a message")
	}
	if rec.Pending() != 1 {
		t.Fatalf("expected one pending stream, got %d", rec.Pending())
	}

	eff = ingest(t, rec, state, protocol.Event{Type: protocol.EventMessageChunk, ID: "m1", ContentChunk: "lo", IsFinal: true})
	if eff.Message == nil || eff.Message.Content != "Hello" {
		t.Fatalf("expected completed message \"Hello\", got %+v", eff.Message)
	}
	if eff.Status != StatusIdle {
		t.Fatalf("chunk completion should set idle, got %q", eff.Status)
	}
	if rec.Pending() != 0 {
		t.Fatalf("expected no pending streams, got %d", rec.Pending())
	}
}

func TestChunkWithheldFinalStaysInert(t *testing.T) {
	t.Parallel()

	rec := NewReconciler("twin-1", newFakeIndex())
	state := NewState()

	ingest(t, rec, state, protocol.Event{Type: protocol.EventMessageChunk, ID: "m1", ContentChunk: "trunc"})
	ingest(t, rec, state, protocol.Event{Type: protocol.EventMessageChunk, ID: "m1", ContentChunk: "ated"})
	if state.Len() != 0 {
		t.Fatalf("withheld final chunk must never reach the transcript, got %d messages", state.Len())
	}

	rec.Reset()
	// A final chunk after reset starts a fresh stream; the dropped partial
	// content from before the reset is gone.
	eff := ingest(t, rec, state, protocol.Event{Type: protocol.EventMessageChunk, ID: "m1", ContentChunk: "done", IsFinal: true})
	if eff.Message == nil || eff.Message.Content != "done" {
		t.Fatalf("expected fresh stream after reset, got %+v", eff.Message)
	}
}

func TestInterleavedChunkStreams(t *testing.T) {
	t.Parallel()

	rec := NewReconciler("twin-1", newFakeIndex())
	state := NewState()

	ingest(t, rec, state, protocol.Event{Type: protocol.EventMessageChunk, ID: "a", ContentChunk: "A1"})
	ingest(t, rec, state, protocol.Event{Type: protocol.EventMessageChunk, ID: "b", ContentChunk: "B1"})
	ingest(t, rec, state, protocol.Event{Type: protocol.EventMessageChunk, ID: "a", ContentChunk: "A2"})
	effB := ingest(t, rec, state, protocol.Event{Type: protocol.EventMessageChunk, ID: "b", ContentChunk: "B2", IsFinal: true})
	effA := ingest(t, rec, state, protocol.Event{Type: protocol.EventMessageChunk, ID: "a", ContentChunk: "A3", IsFinal: true})

	if effB.Message == nil || effB.Message.Content != "B1B2" {
		t.Fatalf("unexpected b content: %+v", effB.Message)
	}
	if effA.Message == nil || effA.Message.Content != "A1A2A3" {
		t.Fatalf("unexpected a content: %+v", effA.Message)
	}
}

func TestLateChunkAfterCompleteIsDropped(t *testing.T) {
	t.Parallel()

	rec := NewReconciler("twin-1", newFakeIndex())
	state := NewState()

	ingest(t, rec, state, protocol.Event{Type: protocol.EventCompleteMessage, ID: "m1", Content: "final"})
	eff := ingest(t, rec, state, protocol.Event{Type: protocol.EventMessageChunk, ID: "m1", ContentChunk: "late", IsFinal: true})
	if eff.Message != nil {
		t.Fatalf("chunk for an already-completed id must be dropped")
	}
	msgs := state.Messages()
	if len(msgs) != 1 || msgs[0].Content != "final" {
		t.Fatalf("unexpected transcript: %+v", msgs)
	}
}

func TestStatusSuppressionAndBusy(t *testing.T) {
	t.Parallel()

	rec := NewReconciler("twin-1", newFakeIndex())
	state := NewState()

	eff := ingest(t, rec, state, protocol.Event{Type: protocol.EventStatusUpdate, Status: "READY"})
	if eff.Message != nil || eff.Status != "" {
		t.Fatalf("ready status must be suppressed entirely, got %+v", eff)
	}
	if state.Len() != 0 {
		t.Fatalf("ready status must not reach the transcript")
	}

	eff = ingest(t, rec, state, protocol.Event{Type: protocol.EventStatusUpdate, Status: "busy", Details: "planning"})
	if eff.Message == nil || eff.Message.Content != "busy: planning" {
		t.Fatalf("unexpected busy entry: %+v", eff.Message)
	}
	if eff.Status != StatusThinking {
		t.Fatalf("busy must flip agent to thinking, got %q", eff.Status)
	}
	if state.Status("twin-1") != StatusThinking {
		t.Fatalf("status not applied to state")
	}

	// No stable id: replaying a status_update appends again.
	ingest(t, rec, state, protocol.Event{Type: protocol.EventStatusUpdate, Status: "busy", Details: "planning"})
	if state.Len() != 2 {
		t.Fatalf("status updates must never be deduplicated, got %d entries", state.Len())
	}
}

func TestErrorStatusProducesEntryWithoutTransition(t *testing.T) {
	t.Parallel()

	rec := NewReconciler("twin-1", newFakeIndex())
	state := NewState()

	eff := ingest(t, rec, state, protocol.Event{Type: protocol.EventStatusUpdate, Status: "agent_error", Details: "boom"})
	if eff.Message == nil || eff.Message.Content != "agent_error: boom" {
		t.Fatalf("unexpected entry: %+v", eff.Message)
	}
	if eff.Status != "" {
		t.Fatalf("only busy transitions status, got %q", eff.Status)
	}
}

func TestCommandSurfacedExactlyOnce(t *testing.T) {
	t.Parallel()

	idx := newFakeIndex()
	state := NewState()
	ev := protocol.Event{
		Type:    protocol.EventCompleteMessage,
		ID:      "m1",
		Content: "run it",
		IssuedCommand: &protocol.Command{
			Command:  protocol.CommandExecuteTool,
			ToolName: "scan_network",
		},
	}

	eff := ingest(t, NewReconciler("twin-1", idx), state, ev)
	if eff.Command == nil || eff.Command.MessageID != "m1" {
		t.Fatalf("expected surfaced command, got %+v", eff.Command)
	}

	// Second overlapping batch: fresh reconciler, same index.
	eff = ingest(t, NewReconciler("twin-1", idx), state, ev)
	if eff.Command != nil {
		t.Fatalf("command must surface exactly once across overlapping batches")
	}
}

func TestUnknownEventTypeIgnored(t *testing.T) {
	t.Parallel()

	rec := NewReconciler("twin-1", newFakeIndex())
	eff := rec.Apply(protocol.Event{Type: "presence_ping"})
	if eff.Message != nil || eff.Status != "" || eff.Command != nil {
		t.Fatalf("unknown event types must be ignored, got %+v", eff)
	}
}

func TestStateClearAndStatusDefault(t *testing.T) {
	t.Parallel()

	state := NewState()
	if state.Status("twin-1") != StatusOffline {
		t.Fatalf("unknown agent should default to offline")
	}
	if state.Append(Message{ID: ""}) {
		t.Fatalf("empty id must not append")
	}
	state.SetStatus("twin-1", StatusIdle)
	state.Append(Message{ID: "m1", Sender: SenderUser, Content: "hi"})
	state.Clear()
	if state.Len() != 0 || state.Status("twin-1") != StatusOffline {
		t.Fatalf("clear must reset messages and status")
	}
	if !state.Append(Message{ID: "m1", Sender: SenderUser, Content: "hi"}) {
		t.Fatalf("id must be reusable after clear")
	}
}
