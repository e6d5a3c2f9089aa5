package session

import (
	"context"
	"strings"
	"time"

	"github.com/c04ch1337/pagi-digital-twin-sub000/internal/protocol"
	"github.com/c04ch1337/pagi-digital-twin-sub000/internal/store"
	"github.com/c04ch1337/pagi-digital-twin-sub000/internal/transcript"
)

// Cache is the persisted key/value surface the manager uses. *store.Store
// satisfies it; tests substitute an in-memory fake. All implementations
// must tolerate missing data (zero values) and swallow write failures.
type Cache interface {
	Projects(ctx context.Context) []store.Project
	SaveProjects(ctx context.Context, projects []store.Project)
	ActiveProject(ctx context.Context) string
	SessionForProject(ctx context.Context, projectID string) string
	SaveActiveSession(ctx context.Context, projectID, sessionID string)
}

// Manager owns the active session id, the transcript, and the
// HandledCommandIndex. It is the single writer for all of them: protocol
// events enter through Ingest, local appends (user submits, job
// summaries) through AppendLocal, and nothing else mutates transcript
// state.
type Manager struct {
	agentID string
	cache   Cache
	logf    func(format string, args ...any)

	sessionID string
	handled   map[string]struct{}

	transcript *transcript.State
	rec        *transcript.Reconciler

	projects        []store.Project
	activeProjectID string
}

func NewManager(agentID string, cache Cache, logf func(format string, args ...any)) *Manager {
	if logf == nil {
		logf = func(string, ...any) {}
	}
	m := &Manager{
		agentID:    strings.TrimSpace(agentID),
		cache:      cache,
		logf:       logf,
		handled:    make(map[string]struct{}),
		transcript: transcript.NewState(),
	}
	m.rec = transcript.NewReconciler(m.agentID, m)
	return m
}

// Load restores the cached project list and resumes the active project's
// session if one is mapped. Malformed or missing cache data leaves the
// manager at defaults.
func (m *Manager) Load(ctx context.Context) {
	if m == nil || m.cache == nil {
		return
	}
	m.projects = m.cache.Projects(ctx)
	active := m.cache.ActiveProject(ctx)
	if active == "" {
		return
	}
	for _, p := range m.projects {
		if p.ID == active {
			m.activeProjectID = active
			if sid := m.cache.SessionForProject(ctx, active); sid != "" {
				m.sessionID = sid
				m.logf("session: resumed project=%s session=%s", active, sid)
			}
			return
		}
	}
	m.logf("session: active project %s not in cache, ignoring", active)
}

func (m *Manager) AgentID() string {
	if m == nil {
		return ""
	}
	return m.agentID
}

func (m *Manager) SessionID() string {
	if m == nil {
		return ""
	}
	return m.sessionID
}

// EnsureSession allocates a session id if none is active yet.
func (m *Manager) EnsureSession() string {
	if m == nil {
		return ""
	}
	if m.sessionID == "" {
		m.sessionID = protocol.NewID("sess")
		m.logf("session: started %s", m.sessionID)
	}
	return m.sessionID
}

// MarkHandled is the HandledCommandIndex: an idempotent check-and-set over
// message ids whose embedded command has been surfaced. It reports true
// only on first sight of an id within the current session.
func (m *Manager) MarkHandled(id string) bool {
	if m == nil {
		return false
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return false
	}
	if _, ok := m.handled[id]; ok {
		return false
	}
	m.handled[id] = struct{}{}
	return true
}

func (m *Manager) Transcript() *transcript.State {
	if m == nil {
		return nil
	}
	return m.transcript
}

// Ingest folds one protocol event into the transcript and status state,
// returning the effect. The returned effect's Message is nil when the
// sink rejected it as a duplicate.
func (m *Manager) Ingest(ev protocol.Event) transcript.Effect {
	if m == nil {
		return transcript.Effect{}
	}
	eff := m.rec.Apply(ev)
	if eff.Message != nil {
		if !m.transcript.Append(*eff.Message) {
			eff.Message = nil
		}
	}
	if eff.Status != "" {
		m.transcript.SetStatus(eff.AgentID, eff.Status)
	}
	return eff
}

// AppendLocal appends a locally originated message (operator submit, job
// completion summary) through the same first-write-wins sink the
// reconciler uses.
func (m *Manager) AppendLocal(msg transcript.Message) bool {
	if m == nil {
		return false
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	if msg.AgentID == "" && msg.Sender == transcript.SenderAssistant {
		msg.AgentID = m.agentID
	}
	return m.transcript.Append(msg)
}

func (m *Manager) SetAgentStatus(status transcript.AgentStatus) {
	if m == nil {
		return
	}
	m.transcript.SetStatus(m.agentID, status)
}

func (m *Manager) AgentStatus() transcript.AgentStatus {
	if m == nil {
		return transcript.StatusOffline
	}
	return m.transcript.Status(m.agentID)
}

// Switch makes sessionID the active session. Switching clears the
// transcript, resets the HandledCommandIndex, and drops in-flight chunk
// accumulation in one step; jobs are not session-scoped and are
// untouched. Switching to the already-active session is a no-op.
func (m *Manager) Switch(sessionID string) bool {
	if m == nil {
		return false
	}
	sid := strings.TrimSpace(sessionID)
	if sid == "" || sid == m.sessionID {
		return false
	}
	m.sessionID = sid
	m.handled = make(map[string]struct{})
	m.transcript.Clear()
	m.rec.Reset()
	m.logf("session: switched to %s", sid)
	return true
}
