package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/c04ch1337/pagi-digital-twin-sub000/internal/appinfo"
	"github.com/c04ch1337/pagi-digital-twin-sub000/internal/command"
	"github.com/c04ch1337/pagi-digital-twin-sub000/internal/jobs"
	"github.com/c04ch1337/pagi-digital-twin-sub000/internal/transcript"
)

var (
	headerStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("81"))
	connOKStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	connBadStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	userStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("75")).Bold(true)
	agentStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("114")).Bold(true)
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	noticeStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("179"))
	pendingStyle  = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("179")).
			Padding(0, 1)
	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)
	approvedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	deniedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

func (m *model) resize() {
	if m.width <= 0 || m.height <= 0 {
		return
	}
	m.input.Width = m.width - 4

	// header + notice + input + help
	chrome := 4
	if _, ok := m.disp.Pending(); ok {
		chrome += 4
	} else if _, ok := m.disp.Trace(); ok {
		chrome++
	}
	if m.showJobs {
		chrome += m.jobsPanelHeight()
	}
	if m.showCrew {
		chrome += 4
	}

	h := m.height - chrome
	if h < 3 {
		h = 3
	}
	m.viewport.Width = m.width
	m.viewport.Height = h
}

func (m *model) jobsPanelHeight() int {
	n := len(m.tracker.Jobs())
	if n > 4 {
		n = 4
	}
	if n == 0 {
		n = 1
	}
	return n + 3
}

func (m *model) rerender() {
	m.resize()

	var b strings.Builder
	for _, msg := range m.session.Transcript().Messages() {
		b.WriteString(m.renderMessage(msg))
		b.WriteString("\n")
	}
	m.viewport.SetContent(b.String())
	m.viewport.GotoBottom()
}

func (m *model) renderMessage(msg transcript.Message) string {
	who := agentStyle.Render(m.session.AgentID())
	if msg.Sender == transcript.SenderUser {
		who = userStyle.Render("you")
	}
	ts := ""
	if !msg.Timestamp.IsZero() {
		ts = dimStyle.Render(" " + msg.Timestamp.Local().Format("15:04:05"))
	}
	line := who + ts + "  " + msg.Content
	if len(msg.Citations) > 0 {
		line += "\n" + dimStyle.Render("    cites "+strings.Join(msg.Citations, ", "))
	}
	return line
}

func (m model) View() string {
	if m.width <= 0 {
		return "starting..."
	}

	var b strings.Builder
	b.WriteString(m.headerView())
	b.WriteString("\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")

	if pending, ok := m.disp.Pending(); ok {
		b.WriteString(m.pendingView(pending))
		b.WriteString("\n")
	} else if trace, ok := m.disp.Trace(); ok {
		b.WriteString(m.traceView(trace))
		b.WriteString("\n")
	}

	if m.showJobs {
		b.WriteString(m.jobsView())
		b.WriteString("\n")
	}
	if m.showCrew {
		b.WriteString(m.crewView())
		b.WriteString("\n")
	}

	notice := ""
	if m.notice != "" {
		notice = noticeStyle.Render(truncateLine(m.notice, m.width-2))
	}
	b.WriteString(notice)
	b.WriteString("\n")
	b.WriteString(m.input.View())
	b.WriteString("\n")
	b.WriteString(dimStyle.Render("enter send/approve · esc deny · ^j jobs · ^r crew · ^e export · ^c quit"))
	return b.String()
}

func (m model) headerView() string {
	conn := connBadStyle.Render("● offline")
	if m.connected {
		conn = connOKStyle.Render("● connected")
	}
	status := string(m.session.AgentStatus())
	if m.session.AgentStatus() == transcript.StatusThinking ||
		m.session.AgentStatus() == transcript.StatusExecuting {
		status += " " + spinnerFrames[m.spinnerFrame%len(spinnerFrames)]
	}

	title := appinfo.Display()
	if proj, ok := m.session.ActiveProject(); ok {
		title += " · " + proj.Name
	}
	left := headerStyle.Render(title)
	right := fmt.Sprintf("%s · %s %s", conn, m.session.AgentID(), dimStyle.Render(status))

	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		gap = 1
	}
	return left + strings.Repeat(" ", gap) + right
}

func (m model) pendingView(pending command.Pending) string {
	lines := []string{
		headerStyle.Render("Approval required: " + pending.Command.Kind()),
		truncateLine(pending.Command.Subject(), m.width-8),
		dimStyle.Render("type a value (optional), enter to approve, esc to deny"),
	}
	return pendingStyle.Width(m.width - 2).Render(strings.Join(lines, "\n"))
}

func (m model) traceView(trace command.Pending) string {
	badge := approvedStyle.Render("approved")
	if trace.Decision == "denied" {
		badge = deniedStyle.Render("denied")
	}
	return truncateLine(fmt.Sprintf("%s %s %s", badge, trace.Command.Kind(), trace.Command.Subject()), m.width-2)
}

func (m model) jobsView() string {
	all := m.tracker.Jobs()
	var lines []string
	lines = append(lines, headerStyle.Render("Jobs"))
	if len(all) == 0 {
		lines = append(lines, dimStyle.Render("no jobs yet"))
	}
	for i, job := range all {
		if i >= 4 {
			lines = append(lines, dimStyle.Render(fmt.Sprintf("… %d more", len(all)-4)))
			break
		}
		last := ""
		if n := len(job.Logs); n > 0 {
			last = job.Logs[n-1].Message
		}
		line := fmt.Sprintf("%s %3d%%  %s  %s",
			jobStatusBadge(job.Status), job.Progress, job.Name, dimStyle.Render(last))
		lines = append(lines, truncateLine(line, m.width-6))
	}
	return panelStyle.Width(m.width - 2).Render(strings.Join(lines, "\n"))
}

func (m model) crewView() string {
	lines := []string{headerStyle.Render("Crew")}
	mark := ""
	if m.crewHint != "" && m.crewHint == m.session.AgentID() {
		mark = " ←"
	}
	lines = append(lines, fmt.Sprintf("%s  %s%s",
		m.session.AgentID(), dimStyle.Render(string(m.session.AgentStatus())), mark))

	seen := map[string]bool{m.session.AgentID(): true}
	for _, job := range m.tracker.Jobs() {
		if job.AgentID == "" || seen[job.AgentID] {
			continue
		}
		seen[job.AgentID] = true
		status := "idle"
		if !job.Status.Terminal() {
			status = "executing"
		}
		lines = append(lines, fmt.Sprintf("%s  %s", job.AgentID, dimStyle.Render(status)))
	}
	return panelStyle.Width(m.width - 2).Render(strings.Join(lines, "\n"))
}

func jobStatusBadge(status jobs.Status) string {
	switch status {
	case jobs.StatusCompleted:
		return approvedStyle.Render(string(status))
	case jobs.StatusFailed:
		return deniedStyle.Render(string(status))
	default:
		return string(status)
	}
}

func truncateLine(s string, max int) string {
	if max <= 0 {
		return ""
	}
	return runewidth.Truncate(s, max, "…")
}
