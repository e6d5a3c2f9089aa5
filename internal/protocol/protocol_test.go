package protocol

import (
	"strings"
	"testing"
)

func TestParseEventCompleteMessage(t *testing.T) {
	t.Parallel()

	raw := `{"type":"complete_message","id":"m1","content":"hello","latency_ms":120,` +
		`"source_memories":["mem-1"],"issued_command":{"command":"execute_tool","tool_name":"scan_network","arguments":"10.0.0.0/24"}}`
	ev, err := ParseEvent([]byte(raw))
	if err != nil {
		t.Fatalf("ParseEvent failed: %v", err)
	}
	if ev.Type != EventCompleteMessage || ev.ID != "m1" || ev.Content != "hello" {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if ev.LatencyMS != 120 || len(ev.SourceMemories) != 1 || ev.SourceMemories[0] != "mem-1" {
		t.Fatalf("unexpected extras: %+v", ev)
	}
	if ev.IssuedCommand == nil || ev.IssuedCommand.Kind() != CommandExecuteTool {
		t.Fatalf("expected execute_tool command, got %+v", ev.IssuedCommand)
	}
	if ev.IssuedCommand.ToolName != "scan_network" || ev.IssuedCommand.Arguments != "10.0.0.0/24" {
		t.Fatalf("unexpected command fields: %+v", ev.IssuedCommand)
	}
}

func TestParseEventValidation(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		raw  string
		ok   bool
	}{
		{"chunk", `{"type":"message_chunk","id":"m1","content_chunk":"He","is_final":false}`, true},
		{"chunk missing id", `{"type":"message_chunk","content_chunk":"He"}`, false},
		{"complete missing id", `{"type":"complete_message","content":"x"}`, false},
		{"status", `{"type":"status_update","status":"busy","details":"planning"}`, true},
		{"status missing status", `{"type":"status_update"}`, false},
		{"missing type", `{"id":"m1"}`, false},
		{"unknown type tolerated", `{"type":"presence_ping"}`, true},
		{"bad json", `{`, false},
	}
	for _, tc := range cases {
		_, err := ParseEvent([]byte(tc.raw))
		if tc.ok && err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.name, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}
}

func TestCommandValidateAndSubject(t *testing.T) {
	t.Parallel()

	cmd := Command{Command: " Execute_Tool ", ToolName: "scan_network"}
	if cmd.Kind() != CommandExecuteTool {
		t.Fatalf("unexpected kind: %q", cmd.Kind())
	}
	if !cmd.RequiresApproval() {
		t.Fatalf("execute_tool should require approval")
	}
	if err := cmd.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if cmd.Subject() != "scan_network" {
		t.Fatalf("unexpected subject: %q", cmd.Subject())
	}

	if err := (Command{Command: CommandShowMemoryPage}).Validate(); err == nil {
		t.Fatalf("expected show_memory_page without memory_id to fail validation")
	}
	if (Command{Command: CommandCreateProjectChat, ProjectName: "Acme"}).RequiresApproval() {
		t.Fatalf("create_project_chat must not require approval")
	}
	if (Command{Command: CommandCrewList}).RequiresApproval() {
		t.Fatalf("crew_list must not require approval")
	}
}

func TestCommandResponseWire(t *testing.T) {
	t.Parallel()

	cases := []struct {
		resp CommandResponse
		want string
	}{
		{CommandResponse{Kind: ResponseToolExecuted, Subject: "scan_network", Value: "started"}, "[TOOL_EXECUTED] scan_network - started"},
		{CommandResponse{Kind: ResponseToolDenied, Subject: "scan_network"}, "[TOOL_DENIED] scan_network"},
		{CommandResponse{Kind: ResponseConfigValue, Subject: "llm_provider", Value: "anthropic"}, "[CONFIG_RESPONSE] llm_provider: anthropic"},
		{CommandResponse{Kind: ResponseConfigDenied, Subject: "llm_provider"}, "[CONFIG_DENIED] llm_provider"},
		{CommandResponse{Kind: ResponseMemoryShown, Subject: "mem-42"}, "[MEMORY_SHOWN] mem-42"},
		{CommandResponse{Kind: ResponseMemoryDenied, Subject: "mem-42"}, "[MEMORY_DENIED] mem-42"},
	}
	for _, tc := range cases {
		got, err := tc.resp.Wire()
		if err != nil {
			t.Fatalf("Wire(%s) failed: %v", tc.resp.Kind, err)
		}
		if got != tc.want {
			t.Fatalf("Wire(%s) = %q, want %q", tc.resp.Kind, got, tc.want)
		}
	}

	if _, err := (CommandResponse{Kind: ResponseToolDenied}).Wire(); err == nil {
		t.Fatalf("expected error for empty subject")
	}
}

func TestApprovalAndDenialResponses(t *testing.T) {
	t.Parallel()

	resp, err := ApprovalResponse(Command{Command: CommandPromptForConfig, ConfigKey: "llm_provider"}, "openai")
	if err != nil {
		t.Fatalf("ApprovalResponse failed: %v", err)
	}
	if resp.Kind != ResponseConfigValue || resp.Subject != "llm_provider" || resp.Value != "openai" {
		t.Fatalf("unexpected response: %+v", resp)
	}

	resp, err = DenialResponse(Command{Command: CommandShowMemoryPage, MemoryID: "mem-7"})
	if err != nil {
		t.Fatalf("DenialResponse failed: %v", err)
	}
	if resp.Kind != ResponseMemoryDenied || resp.Subject != "mem-7" {
		t.Fatalf("unexpected response: %+v", resp)
	}

	if _, err := ApprovalResponse(Command{Command: CommandCreateProjectChat, ProjectName: "Acme"}, "x"); err == nil {
		t.Fatalf("create_project_chat approval should be rejected")
	}
	if _, err := DenialResponse(Command{Command: CommandCreateProjectChat, ProjectName: "Acme"}); err == nil {
		t.Fatalf("create_project_chat denial should be rejected")
	}
}

func TestChatRequestMarshal(t *testing.T) {
	t.Parallel()

	req := NewChatRequest(" sess-1 ", " operator ", "hello")
	data, err := req.Marshal()
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	for _, want := range []string{`"session_id":"sess-1"`, `"user_id":"operator"`, `"message":"hello"`, `"timestamp"`} {
		if !strings.Contains(string(data), want) {
			t.Fatalf("marshaled request missing %s: %s", want, data)
		}
	}

	if _, err := (ChatRequest{UserID: "operator", Message: "x"}).Marshal(); err == nil {
		t.Fatalf("expected error for missing session_id")
	}
}

func TestNewID(t *testing.T) {
	t.Parallel()

	a := NewID("msg")
	b := NewID("msg")
	if a == b {
		t.Fatalf("expected unique ids, got %q twice", a)
	}
	if !strings.HasPrefix(a, "msg-") {
		t.Fatalf("expected msg- prefix, got %q", a)
	}
	if NewID("") == "" {
		t.Fatalf("expected non-empty id for empty prefix")
	}
}
