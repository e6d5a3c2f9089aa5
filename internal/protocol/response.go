package protocol

import (
	"fmt"
	"strings"
)

// ResponseKind identifies the typed outcome of a surfaced command. The
// bracket-tag wire strings are a compatibility layer at the boundary; the
// dispatcher reasons only over these kinds.
type ResponseKind string

const (
	ResponseToolExecuted ResponseKind = "tool_executed"
	ResponseToolDenied   ResponseKind = "tool_denied"
	ResponseConfigValue  ResponseKind = "config_response"
	ResponseConfigDenied ResponseKind = "config_denied"
	ResponseMemoryShown  ResponseKind = "memory_shown"
	ResponseMemoryDenied ResponseKind = "memory_denied"
)

// CommandResponse is the typed form of an operator decision before it is
// serialized onto the chat channel.
type CommandResponse struct {
	Kind    ResponseKind
	Subject string // tool name, config key, or memory id
	Value   string // operator-entered value; approvals only
}

// Wire renders the canonical free-text frame understood by the backend.
func (r CommandResponse) Wire() (string, error) {
	subject := strings.TrimSpace(r.Subject)
	if subject == "" {
		return "", fmt.Errorf("command response subject is required")
	}
	switch r.Kind {
	case ResponseToolExecuted:
		return fmt.Sprintf("[TOOL_EXECUTED] %s - %s", subject, r.Value), nil
	case ResponseToolDenied:
		return fmt.Sprintf("[TOOL_DENIED] %s", subject), nil
	case ResponseConfigValue:
		return fmt.Sprintf("[CONFIG_RESPONSE] %s: %s", subject, r.Value), nil
	case ResponseConfigDenied:
		return fmt.Sprintf("[CONFIG_DENIED] %s", subject), nil
	case ResponseMemoryShown:
		return fmt.Sprintf("[MEMORY_SHOWN] %s", subject), nil
	case ResponseMemoryDenied:
		return fmt.Sprintf("[MEMORY_DENIED] %s", subject), nil
	}
	return "", fmt.Errorf("unknown command response kind: %q", string(r.Kind))
}

// ApprovalResponse builds the response for an approved command.
func ApprovalResponse(cmd Command, value string) (CommandResponse, error) {
	switch cmd.Kind() {
	case CommandExecuteTool:
		return CommandResponse{Kind: ResponseToolExecuted, Subject: cmd.ToolName, Value: value}, nil
	case CommandPromptForConfig:
		return CommandResponse{Kind: ResponseConfigValue, Subject: cmd.ConfigKey, Value: value}, nil
	case CommandShowMemoryPage:
		return CommandResponse{Kind: ResponseMemoryShown, Subject: cmd.MemoryID}, nil
	}
	return CommandResponse{}, fmt.Errorf("command %q cannot be approved", cmd.Kind())
}

// DenialResponse builds the response for a denied command.
// create_project_chat never reaches this path: it resolves silently.
func DenialResponse(cmd Command) (CommandResponse, error) {
	switch cmd.Kind() {
	case CommandExecuteTool:
		return CommandResponse{Kind: ResponseToolDenied, Subject: cmd.ToolName}, nil
	case CommandPromptForConfig:
		return CommandResponse{Kind: ResponseConfigDenied, Subject: cmd.ConfigKey}, nil
	case CommandShowMemoryPage:
		return CommandResponse{Kind: ResponseMemoryDenied, Subject: cmd.MemoryID}, nil
	}
	return CommandResponse{}, fmt.Errorf("command %q cannot be denied", cmd.Kind())
}
