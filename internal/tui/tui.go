package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/c04ch1337/pagi-digital-twin-sub000/internal/command"
	"github.com/c04ch1337/pagi-digital-twin-sub000/internal/config"
	"github.com/c04ch1337/pagi-digital-twin-sub000/internal/consolelog"
	"github.com/c04ch1337/pagi-digital-twin-sub000/internal/export"
	"github.com/c04ch1337/pagi-digital-twin-sub000/internal/jobs"
	"github.com/c04ch1337/pagi-digital-twin-sub000/internal/protocol"
	"github.com/c04ch1337/pagi-digital-twin-sub000/internal/session"
	"github.com/c04ch1337/pagi-digital-twin-sub000/internal/transcript"
	"github.com/c04ch1337/pagi-digital-twin-sub000/internal/transport"
)

type Options struct {
	Config   config.ConsoleConfig
	Logger   *consolelog.Logger
	Sessions *session.Manager
	Tracker  *jobs.Tracker
	Client   *transport.Client
}

// Run starts the operator console. All reconciliation and dispatch state
// lives inside the bubbletea model and is mutated only from Update, which
// processes one message at a time: the cooperative single-consumer
// scheduling the dispatch layer relies on.
func Run(ctx context.Context, opts Options) error {
	if opts.Sessions == nil {
		return errors.New("session manager is required")
	}
	m := newModel(ctx, opts)
	p := tea.NewProgram(m, tea.WithContext(ctx), tea.WithAltScreen())
	_, err := p.Run()
	if err != nil && errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// chatSender delivers dispatcher responses as plain chat frames on the
// active session. While disconnected the frame is dropped with a log
// line, matching the "sends are not attempted" policy.
type chatSender struct {
	client   *transport.Client
	sessions *session.Manager
	logger   *consolelog.Logger
}

func (s chatSender) SendText(ctx context.Context, text string) error {
	if s.client == nil {
		return nil
	}
	req := protocol.NewChatRequest(s.sessions.EnsureSession(), s.client.UserID(), text)
	err := s.client.Send(ctx, req)
	if errors.Is(err, transport.ErrNotConnected) {
		s.logger.Logf(consolelog.KindWarn, "send skipped while disconnected: %s", consolelog.Preview(text, 60))
		return nil
	}
	return err
}

type model struct {
	ctx     context.Context
	cfg     config.ConsoleConfig
	logger  *consolelog.Logger
	client  *transport.Client
	session *session.Manager
	tracker *jobs.Tracker
	disp    *command.Dispatcher

	width  int
	height int

	input    textinput.Model
	viewport viewport.Model

	connected    bool
	spinnerFrame int
	notice       string

	showJobs bool
	showCrew bool
	crewHint string

	cleanupPolicy  jobs.CleanupPolicy
	cleanupEnabled bool
	nextCleanup    time.Time
}

type transportMsg struct {
	Msg transport.Message
}

type tickMsg struct{}

type jobStepMsg struct {
	JobID string
	Steps []jobs.Step
	Index int
}

type traceClearMsg struct {
	MessageID string
}

func newModel(ctx context.Context, opts Options) model {
	inp := textinput.New()
	inp.Placeholder = "Type a message…"
	inp.Prompt = "› "
	inp.CharLimit = 0
	inp.Focus()

	vp := viewport.New(0, 0)
	vp.SetContent("")

	logf := opts.Logger.Kindf(consolelog.KindCmd)
	sender := chatSender{client: opts.Client, sessions: opts.Sessions, logger: opts.Logger}
	disp := command.NewDispatcher(sender, opts.Sessions, opts.Tracker, opts.Config.AgentID, logf)

	m := model{
		ctx:      ctx,
		cfg:      opts.Config,
		logger:   opts.Logger,
		client:   opts.Client,
		session:  opts.Sessions,
		tracker:  opts.Tracker,
		disp:     disp,
		input:    inp,
		viewport: vp,
	}

	if opts.Config.Cleanup.Enabled {
		policy := jobs.CleanupPolicy{
			Schedule:  opts.Config.Cleanup.Schedule,
			Retention: opts.Config.CleanupRetention(),
		}
		if err := policy.Validate(); err != nil {
			opts.Logger.Logf(consolelog.KindWarn, "cleanup disabled: %v", err)
		} else if next, err := policy.NextRun(time.Now().UTC()); err == nil {
			m.cleanupPolicy = policy
			m.cleanupEnabled = true
			m.nextCleanup = next
		}
	}
	return m
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		tickCmd(),
		waitTransportCmd(m.client),
	)
}

func tickCmd() tea.Cmd {
	return tea.Tick(300*time.Millisecond, func(time.Time) tea.Msg { return tickMsg{} })
}

func waitTransportCmd(client *transport.Client) tea.Cmd {
	if client == nil {
		return nil
	}
	ch := client.Messages()
	return func() tea.Msg {
		return transportMsg{Msg: <-ch}
	}
}

func jobStepCmd(jobID string, steps []jobs.Step, index int) tea.Cmd {
	return tea.Tick(steps[index].Delay, func(time.Time) tea.Msg {
		return jobStepMsg{JobID: jobID, Steps: steps, Index: index}
	})
}

func traceClearCmd(messageID string, after time.Duration) tea.Cmd {
	return tea.Tick(after, func(time.Time) tea.Msg {
		return traceClearMsg{MessageID: messageID}
	})
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		m.rerender()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case transportMsg:
		cmd := m.handleTransport(msg.Msg)
		m.rerender()
		return m, tea.Batch(cmd, waitTransportCmd(m.client))

	case tickMsg:
		m.spinnerFrame++
		m.maybeRunCleanup()
		return m, tickCmd()

	case jobStepMsg:
		cmd := m.applyJobStep(msg)
		m.rerender()
		return m, cmd

	case traceClearMsg:
		m.disp.ClearTrace(msg.MessageID)
		m.rerender()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *model) handleTransport(msg transport.Message) tea.Cmd {
	switch msg.Kind {
	case transport.KindConnected:
		m.connected = true
		m.session.SetAgentStatus(transcript.StatusIdle)
		m.notice = "connected"
		m.logger.Logf(consolelog.KindWS, "connected")
		return nil

	case transport.KindDisconnected:
		m.connected = false
		m.session.SetAgentStatus(transcript.StatusOffline)
		m.notice = "disconnected"
		m.session.AppendLocal(transcript.Message{
			ID:      protocol.NewID("local"),
			Sender:  transcript.SenderAssistant,
			Content: "Connection to the backend was lost. Reconnecting...",
		})
		return nil

	case transport.KindEvent:
		return m.handleEvent(msg.Event)
	}
	return nil
}

func (m *model) handleEvent(ev protocol.Event) tea.Cmd {
	eff := m.session.Ingest(ev)
	if eff.Message != nil {
		m.logger.Logf(consolelog.KindWS, "event %s id=%s %s",
			ev.Type, ev.ID, consolelog.Preview(eff.Message.Content, 60))
	}
	if eff.Command == nil {
		return nil
	}

	out := m.disp.Surface(m.ctx, eff.Command.MessageID, eff.Command.Command)
	switch {
	case out.Err != nil:
		m.notice = "command failed: " + out.Err.Error()
	case out.Project != nil:
		verb := "resumed"
		if out.ProjectCreated {
			verb = "created"
		}
		m.notice = fmt.Sprintf("project %s %s, session %s", out.Project.Name, verb, m.session.SessionID())
	case out.ShowCrew:
		m.showCrew = true
		m.crewHint = out.CrewAgentID
	case out.Queued:
		m.notice = fmt.Sprintf("command queued (%d waiting)", m.disp.QueueLen())
	}
	return nil
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit

	case "ctrl+j":
		m.showJobs = !m.showJobs
		m.resize()
		m.rerender()
		return m, nil

	case "ctrl+r":
		m.showCrew = !m.showCrew
		m.resize()
		m.rerender()
		return m, nil

	case "ctrl+e":
		m.exportTranscript()
		m.rerender()
		return m, nil

	case "enter":
		if _, pending := m.disp.Pending(); pending {
			cmd := m.approvePending()
			m.rerender()
			return m, cmd
		}
		cmd := m.submitInput()
		m.rerender()
		return m, cmd

	case "esc":
		if _, pending := m.disp.Pending(); pending {
			cmd := m.denyPending()
			m.rerender()
			return m, cmd
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *model) approvePending() tea.Cmd {
	value := strings.TrimSpace(m.input.Value())
	res, ok := m.disp.Approve(m.ctx, value)
	if !ok {
		return nil
	}
	m.input.Reset()
	m.notice = "approved " + res.Pending.Command.Kind()

	var cmds []tea.Cmd
	if m.disp.ArmTraceClear(res.Pending.MessageID) {
		cmds = append(cmds, traceClearCmd(res.Pending.MessageID, m.cfg.ApprovalClear()))
	}
	if res.Job != nil {
		m.logger.Logf(consolelog.KindJob, "spawned job id=%s name=%s", res.Job.ID, res.Job.Name)
		steps := jobs.ExecutionScript(*res.Job)
		cmds = append(cmds, jobStepCmd(res.Job.ID, steps, 0))
		m.showJobs = true
		m.resize()
	}
	return tea.Batch(cmds...)
}

func (m *model) denyPending() tea.Cmd {
	res, ok := m.disp.Deny(m.ctx)
	if !ok {
		return nil
	}
	m.input.Reset()
	m.notice = "denied " + res.Pending.Command.Kind()
	if m.disp.ArmTraceClear(res.Pending.MessageID) {
		return traceClearCmd(res.Pending.MessageID, m.cfg.ApprovalClear())
	}
	return nil
}

func (m *model) submitInput() tea.Cmd {
	text := strings.TrimSpace(m.input.Value())
	if text == "" {
		return nil
	}
	m.input.Reset()

	sessionID := m.session.EnsureSession()
	m.session.AppendLocal(transcript.Message{
		ID:      protocol.NewID("user"),
		Sender:  transcript.SenderUser,
		Content: text,
	})
	m.session.SetAgentStatus(transcript.StatusThinking)

	if m.client == nil {
		return nil
	}
	if err := m.client.Send(m.ctx, protocol.NewChatRequest(sessionID, m.client.UserID(), text)); err != nil {
		if errors.Is(err, transport.ErrNotConnected) {
			m.logger.Logf(consolelog.KindWarn, "message not sent while disconnected")
		} else {
			m.logger.Logf(consolelog.KindError, "send: %v", err)
		}
	}
	return nil
}

func (m *model) applyJobStep(msg jobStepMsg) tea.Cmd {
	if msg.Index >= len(msg.Steps) {
		return nil
	}
	job, ok := jobs.ApplyStep(m.tracker, msg.JobID, msg.Steps[msg.Index])
	if !ok {
		return nil
	}
	if job.Status == jobs.StatusCompleted {
		// Completion summaries flow through the same single-writer append
		// path the reconciler uses.
		m.session.AppendLocal(transcript.Message{
			ID:      protocol.NewID("local"),
			Sender:  transcript.SenderAssistant,
			Content: fmt.Sprintf("Background job %s completed (%d%%).", job.Name, job.Progress),
		})
		m.logger.Logf(consolelog.KindJob, "completed id=%s name=%s", job.ID, job.Name)
		return nil
	}
	if job.Status == jobs.StatusFailed {
		m.logger.Logf(consolelog.KindJob, "failed id=%s name=%s", job.ID, job.Name)
		return nil
	}
	next := msg.Index + 1
	if next >= len(msg.Steps) {
		return nil
	}
	return jobStepCmd(msg.JobID, msg.Steps, next)
}

func (m *model) maybeRunCleanup() {
	if !m.cleanupEnabled || m.nextCleanup.IsZero() {
		return
	}
	now := time.Now().UTC()
	if now.Before(m.nextCleanup) {
		return
	}
	if n := jobs.RunCleanup(m.tracker, m.cleanupPolicy, now); n > 0 {
		m.logger.Logf(consolelog.KindJob, "cleanup pruned %d job(s)", n)
	}
	if next, err := m.cleanupPolicy.NextRun(now); err == nil {
		m.nextCleanup = next
	} else {
		m.cleanupEnabled = false
	}
}

func (m *model) exportTranscript() {
	sessionID := m.session.SessionID()
	if sessionID == "" {
		m.notice = "nothing to export"
		return
	}
	title := "Session " + sessionID
	if proj, ok := m.session.ActiveProject(); ok {
		title = proj.Name
	}
	path := "transcript-" + sessionID + ".html"
	if err := export.WriteHTML(path, title, m.session.Transcript().Messages()); err != nil {
		m.notice = "export failed: " + err.Error()
		m.logger.Logf(consolelog.KindError, "export: %v", err)
		return
	}
	m.notice = "exported " + path
	m.logger.Logf(consolelog.KindInfo, "exported transcript to %s", path)
}
