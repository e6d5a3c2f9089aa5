package command

import (
	"context"
	"errors"
	"testing"

	"github.com/c04ch1337/pagi-digital-twin-sub000/internal/jobs"
	"github.com/c04ch1337/pagi-digital-twin-sub000/internal/protocol"
	"github.com/c04ch1337/pagi-digital-twin-sub000/internal/store"
)

type fakeSender struct {
	sent []string
	err  error
}

func (f *fakeSender) SendText(_ context.Context, text string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, text)
	return nil
}

type fakeResolver struct {
	calls   int
	project store.Project
	created bool
	err     error
}

func (f *fakeResolver) ResolveProjectChat(context.Context, protocol.Command) (store.Project, bool, error) {
	f.calls++
	return f.project, f.created, f.err
}

func executeTool(name, args string) protocol.Command {
	return protocol.Command{Command: protocol.CommandExecuteTool, ToolName: name, Arguments: args}
}

func TestApproveExecuteToolSendsAndSpawnsJob(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	sender := &fakeSender{}
	tracker := jobs.NewTracker(nil)
	d := NewDispatcher(sender, nil, tracker, "twin-1", nil)

	out := d.Surface(ctx, "m1", executeTool("scan_network", "10.0.0.0/24"))
	if !out.Surfaced {
		t.Fatalf("expected command surfaced, got %+v", out)
	}

	res, ok := d.Approve(ctx, "started")
	if !ok {
		t.Fatalf("approve failed")
	}
	if res.Wire != "[TOOL_EXECUTED] scan_network - started" {
		t.Fatalf("unexpected wire: %q", res.Wire)
	}
	if len(sender.sent) != 1 || sender.sent[0] != res.Wire {
		t.Fatalf("unexpected sends: %v", sender.sent)
	}
	if res.Job == nil {
		t.Fatalf("trigger keyword scan must spawn a job")
	}
	if res.Job.Status != jobs.StatusPending || len(res.Job.Logs) != 2 {
		t.Fatalf("job must start pending with two seeded entries, got %+v", res.Job)
	}
	if res.Job.AgentID != "twin-1" {
		t.Fatalf("job must target the configured agent, got %q", res.Job.AgentID)
	}
	if _, has := d.Pending(); has {
		t.Fatalf("pending state must clear after approval")
	}
	if trace, ok := d.Trace(); !ok || trace.Decision != "approved" || trace.MessageID != "m1" {
		t.Fatalf("unexpected decision trace: %+v", trace)
	}
}

func TestApproveNonTriggerToolSpawnsNoJob(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	tracker := jobs.NewTracker(nil)
	d := NewDispatcher(&fakeSender{}, nil, tracker, "twin-1", nil)

	d.Surface(ctx, "m1", executeTool("fetch_weather", "berlin"))
	res, ok := d.Approve(ctx, "ok")
	if !ok || res.Job != nil {
		t.Fatalf("non-trigger tool must not spawn a job, got %+v", res.Job)
	}
	if tracker.Len() != 0 {
		t.Fatalf("tracker must stay empty")
	}
}

func TestDenyConfigSendsDenialAndNoJob(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	sender := &fakeSender{}
	tracker := jobs.NewTracker(nil)
	d := NewDispatcher(sender, nil, tracker, "twin-1", nil)

	d.Surface(ctx, "m1", protocol.Command{Command: protocol.CommandPromptForConfig, ConfigKey: "llm_provider"})
	res, ok := d.Deny(ctx)
	if !ok {
		t.Fatalf("deny failed")
	}
	if res.Wire != "[CONFIG_DENIED] llm_provider" {
		t.Fatalf("unexpected wire: %q", res.Wire)
	}
	if tracker.Len() != 0 {
		t.Fatalf("denial must not create jobs")
	}
	if _, has := d.Pending(); has {
		t.Fatalf("pending must clear after denial")
	}
}

func TestResolveWithoutPendingIsNoOp(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	d := NewDispatcher(&fakeSender{}, nil, nil, "twin-1", nil)
	if _, ok := d.Approve(ctx, "x"); ok {
		t.Fatalf("approve with no pending must be a no-op")
	}
	if _, ok := d.Deny(ctx); ok {
		t.Fatalf("deny with no pending must be a no-op")
	}
}

func TestSecondCommandQueuesBehindPending(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	sender := &fakeSender{}
	d := NewDispatcher(sender, nil, nil, "twin-1", nil)

	d.Surface(ctx, "m1", executeTool("fetch_weather", ""))
	out := d.Surface(ctx, "m2", protocol.Command{Command: protocol.CommandShowMemoryPage, MemoryID: "mem-9"})
	if !out.Queued || out.Surfaced {
		t.Fatalf("second command must queue, got %+v", out)
	}
	if pending, _ := d.Pending(); pending.MessageID != "m1" {
		t.Fatalf("first command must stay pending, got %+v", pending)
	}
	if d.QueueLen() != 1 {
		t.Fatalf("expected queue length 1, got %d", d.QueueLen())
	}

	d.Approve(ctx, "done")
	pending, has := d.Pending()
	if !has || pending.MessageID != "m2" {
		t.Fatalf("queued command must promote after resolution, got %+v", pending)
	}

	res, ok := d.Approve(ctx, "")
	if !ok || res.Wire != "[MEMORY_SHOWN] mem-9" {
		t.Fatalf("unexpected promoted approval: ok=%v wire=%q", ok, res.Wire)
	}
	if d.QueueLen() != 0 {
		t.Fatalf("queue must drain")
	}
}

func TestCreateProjectChatResolvesSilently(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	resolver := &fakeResolver{project: store.Project{ID: "p1", Name: "Acme"}, created: true}
	d := NewDispatcher(&fakeSender{}, resolver, nil, "twin-1", nil)

	out := d.Surface(ctx, "m1", protocol.Command{
		Command:     protocol.CommandCreateProjectChat,
		ProjectName: "Acme",
	})
	if resolver.calls != 1 {
		t.Fatalf("resolver must be invoked once, got %d", resolver.calls)
	}
	if out.Project == nil || out.Project.ID != "p1" || !out.ProjectCreated || !out.SessionSwitched {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if _, has := d.Pending(); has {
		t.Fatalf("create_project_chat must never reach the approval state")
	}

	resolver.err = errors.New("cache down")
	out = d.Surface(ctx, "m2", protocol.Command{
		Command:     protocol.CommandCreateProjectChat,
		ProjectName: "Beta",
	})
	if out.Err == nil {
		t.Fatalf("resolver failure must be reported")
	}
}

func TestCrewListResolvesSilently(t *testing.T) {
	t.Parallel()

	d := NewDispatcher(&fakeSender{}, nil, nil, "twin-1", nil)
	out := d.Surface(context.Background(), "m1", protocol.Command{
		Command: protocol.CommandCrewList,
		AgentID: "twin-2",
	})
	if !out.ShowCrew || out.CrewAgentID != "twin-2" {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if _, has := d.Pending(); has {
		t.Fatalf("crew_list must not require approval")
	}
}

func TestInvalidCommandDropped(t *testing.T) {
	t.Parallel()

	d := NewDispatcher(&fakeSender{}, nil, nil, "twin-1", nil)
	out := d.Surface(context.Background(), "m1", protocol.Command{Command: protocol.CommandExecuteTool})
	if out.Err == nil || out.Surfaced {
		t.Fatalf("invalid command must be dropped, got %+v", out)
	}
}

func TestSendFailureStillResolves(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	sender := &fakeSender{err: errors.New("disconnected")}
	d := NewDispatcher(sender, nil, nil, "twin-1", nil)

	d.Surface(ctx, "m1", executeTool("fetch_weather", ""))
	res, ok := d.Approve(ctx, "ok")
	if !ok {
		t.Fatalf("send failure must not block resolution")
	}
	if res.Wire == "" {
		t.Fatalf("wire frame should still be rendered")
	}
	if _, has := d.Pending(); has {
		t.Fatalf("pending must clear even when the send is skipped")
	}
}

func TestTraceClearIsMonotonicOneShot(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	d := NewDispatcher(&fakeSender{}, nil, nil, "twin-1", nil)

	d.Surface(ctx, "m1", executeTool("fetch_weather", ""))
	d.Approve(ctx, "ok")

	if !d.ArmTraceClear("m1") {
		t.Fatalf("first arm must succeed")
	}
	if d.ArmTraceClear("m1") {
		t.Fatalf("re-arming the same id must be refused")
	}

	d.ClearTrace("other")
	if _, ok := d.Trace(); !ok {
		t.Fatalf("clearing an unrelated id must not drop the trace")
	}
	d.ClearTrace("m1")
	if _, ok := d.Trace(); ok {
		t.Fatalf("trace must clear for its own id")
	}
}

func TestMatchesTrigger(t *testing.T) {
	t.Parallel()

	cases := []struct {
		tool, args string
		want       bool
	}{
		{"scan_network", "10.0.0.0/24", true},
		{"fetch_weather", "berlin", false},
		{"helper", "please DEPLOY to staging", true},
		{"Backup_Volumes", "", true},
		{"", "", false},
	}
	for _, tc := range cases {
		if got := MatchesTrigger(tc.tool, tc.args); got != tc.want {
			t.Fatalf("MatchesTrigger(%q, %q) = %v, want %v", tc.tool, tc.args, got, tc.want)
		}
	}
}
