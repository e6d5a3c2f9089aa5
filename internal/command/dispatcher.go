package command

import (
	"context"
	"strings"
	"time"

	"github.com/c04ch1337/pagi-digital-twin-sub000/internal/jobs"
	"github.com/c04ch1337/pagi-digital-twin-sub000/internal/protocol"
	"github.com/c04ch1337/pagi-digital-twin-sub000/internal/store"
)

// Sender delivers a free-text response frame back over the chat channel.
// Implementations are expected to skip the send (not fail) while the
// transport is disconnected.
type Sender interface {
	SendText(ctx context.Context, text string) error
}

// ProjectResolver handles create_project_chat silently: look up or create
// the project, make it active, switch to its session.
type ProjectResolver interface {
	ResolveProjectChat(ctx context.Context, cmd protocol.Command) (store.Project, bool, error)
}

// Pending is the command currently awaiting an operator decision, plus
// the decision trace shown briefly after resolution.
type Pending struct {
	Command   protocol.Command
	MessageID string
	Decision  string // "", "approved", "denied"
	DecidedAt time.Time
}

// Outcome describes what surfacing one command did, for the caller to
// render.
type Outcome struct {
	Surfaced        bool // now the active pending command
	Queued          bool // parked behind an unresolved pending command
	Project         *store.Project
	ProjectCreated  bool
	SessionSwitched bool
	ShowCrew        bool
	CrewAgentID     string
	Err             error
}

// Resolution is the result of an approve or deny.
type Resolution struct {
	Pending Pending
	Wire    string
	Job     *jobs.Job
}

// Dispatcher runs the per-command state machine: none, surfaced, then
// approved or denied, then none. Commands arriving while one is pending
// queue FIFO behind it rather than overwriting it.
type Dispatcher struct {
	sender   Sender
	projects ProjectResolver
	tracker  *jobs.Tracker
	agentID  string
	logf     func(format string, args ...any)
	now      func() time.Time

	pending *Pending
	queue   []Pending
	trace   *Pending
	armed   map[string]struct{}
}

func NewDispatcher(sender Sender, projects ProjectResolver, tracker *jobs.Tracker, agentID string, logf func(format string, args ...any)) *Dispatcher {
	if logf == nil {
		logf = func(string, ...any) {}
	}
	return &Dispatcher{
		sender:   sender,
		projects: projects,
		tracker:  tracker,
		agentID:  strings.TrimSpace(agentID),
		logf:     logf,
		now:      func() time.Time { return time.Now().UTC() },
		armed:    make(map[string]struct{}),
	}
}

// Surface routes one command that the reconciler forwarded. The caller
// has already guaranteed exactly-once delivery via the
// HandledCommandIndex; Surface only decides how the command is handled.
func (d *Dispatcher) Surface(ctx context.Context, messageID string, cmd protocol.Command) Outcome {
	if d == nil {
		return Outcome{}
	}
	if err := cmd.Validate(); err != nil {
		d.logf("command: dropping invalid %s: %v", cmd.Kind(), err)
		return Outcome{Err: err}
	}

	switch cmd.Kind() {
	case protocol.CommandCreateProjectChat:
		if d.projects == nil {
			d.logf("command: no project resolver configured, dropping create_project_chat")
			return Outcome{}
		}
		proj, created, err := d.projects.ResolveProjectChat(ctx, cmd)
		if err != nil {
			d.logf("command: create_project_chat failed: %v", err)
			return Outcome{Err: err}
		}
		d.logf("command: project chat resolved project=%s created=%v", proj.ID, created)
		return Outcome{Project: &proj, ProjectCreated: created, SessionSwitched: true}

	case protocol.CommandCrewList:
		// Roster display only; there is no response frame for it.
		return Outcome{ShowCrew: true, CrewAgentID: strings.TrimSpace(cmd.AgentID)}
	}

	entry := Pending{Command: cmd, MessageID: strings.TrimSpace(messageID)}
	if d.pending != nil {
		d.queue = append(d.queue, entry)
		d.logf("command: queued %s behind unresolved %s (queue=%d)",
			cmd.Kind(), d.pending.Command.Kind(), len(d.queue))
		return Outcome{Queued: true}
	}
	d.pending = &entry
	d.logf("command: surfaced %s message=%s", cmd.Kind(), entry.MessageID)
	return Outcome{Surfaced: true}
}

// Pending returns a copy of the active pending command, if any.
func (d *Dispatcher) Pending() (Pending, bool) {
	if d == nil || d.pending == nil {
		return Pending{}, false
	}
	return *d.pending, true
}

// Trace returns the decision trace of the most recently resolved command,
// shown until its one-shot clear fires.
func (d *Dispatcher) Trace() (Pending, bool) {
	if d == nil || d.trace == nil {
		return Pending{}, false
	}
	return *d.trace, true
}

func (d *Dispatcher) QueueLen() int {
	if d == nil {
		return 0
	}
	return len(d.queue)
}

// Approve resolves the pending command with the operator's value: send
// the acknowledgement frame, spawn a job when the tool matches the
// trigger heuristic, clear pending, and promote the next queued command.
// With nothing pending this is a logged no-op.
func (d *Dispatcher) Approve(ctx context.Context, value string) (Resolution, bool) {
	if d == nil || d.pending == nil {
		if d != nil {
			d.logf("command: approve with no pending command, ignoring")
		}
		return Resolution{}, false
	}
	pending := *d.pending

	resp, err := protocol.ApprovalResponse(pending.Command, value)
	if err != nil {
		d.logf("command: approve %s: %v", pending.Command.Kind(), err)
		d.clearPending(pending, "denied")
		return Resolution{}, false
	}
	wire := d.send(ctx, resp)

	res := Resolution{Wire: wire}
	if pending.Command.Kind() == protocol.CommandExecuteTool && d.tracker != nil {
		if MatchesTrigger(pending.Command.ToolName, pending.Command.Arguments) {
			job := d.tracker.Create(d.agentID, pending.Command.ToolName, pending.Command.Arguments)
			res.Job = &job
		}
	}

	res.Pending = d.clearPending(pending, "approved")
	return res, true
}

// Deny resolves the pending command negatively. No side effects beyond
// the denial frame and clearing the pending state.
func (d *Dispatcher) Deny(ctx context.Context) (Resolution, bool) {
	if d == nil || d.pending == nil {
		if d != nil {
			d.logf("command: deny with no pending command, ignoring")
		}
		return Resolution{}, false
	}
	pending := *d.pending

	resp, err := protocol.DenialResponse(pending.Command)
	if err != nil {
		d.logf("command: deny %s: %v", pending.Command.Kind(), err)
		d.clearPending(pending, "denied")
		return Resolution{}, false
	}
	wire := d.send(ctx, resp)

	return Resolution{Pending: d.clearPending(pending, "denied"), Wire: wire}, true
}

func (d *Dispatcher) send(ctx context.Context, resp protocol.CommandResponse) string {
	wire, err := resp.Wire()
	if err != nil {
		d.logf("command: render response: %v", err)
		return ""
	}
	if d.sender == nil {
		return wire
	}
	if err := d.sender.SendText(ctx, wire); err != nil {
		d.logf("command: send response: %v", err)
	}
	return wire
}

func (d *Dispatcher) clearPending(resolved Pending, decision string) Pending {
	resolved.Decision = decision
	resolved.DecidedAt = d.now()
	d.trace = &resolved
	d.pending = nil
	if len(d.queue) > 0 {
		next := d.queue[0]
		d.queue = d.queue[1:]
		d.pending = &next
		d.logf("command: promoted queued %s message=%s", next.Command.Kind(), next.MessageID)
	}
	return resolved
}

// ArmTraceClear reports whether the caller should start the one-shot
// timer that clears the decision trace for this message id. Re-resolving
// the same id never re-arms it.
func (d *Dispatcher) ArmTraceClear(messageID string) bool {
	if d == nil {
		return false
	}
	id := strings.TrimSpace(messageID)
	if id == "" {
		return false
	}
	if _, ok := d.armed[id]; ok {
		return false
	}
	d.armed[id] = struct{}{}
	return true
}

// ClearTrace drops the decision trace if it belongs to the given message.
func (d *Dispatcher) ClearTrace(messageID string) {
	if d == nil || d.trace == nil {
		return
	}
	if d.trace.MessageID == strings.TrimSpace(messageID) {
		d.trace = nil
	}
}
