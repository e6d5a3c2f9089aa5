package protocol

import (
	"fmt"
	"strings"
)

// Command kinds the backend may embed in a complete_message.
const (
	CommandCreateProjectChat = "create_project_chat"
	CommandShowMemoryPage    = "show_memory_page"
	CommandPromptForConfig   = "prompt_for_config"
	CommandExecuteTool       = "execute_tool"
	CommandCrewList          = "crew_list"
)

// Command is a backend-issued instruction embedded in a complete_message,
// discriminated by the `command` field. Only the fields for the matching
// kind are populated.
type Command struct {
	Command string `json:"command"`

	// create_project_chat
	ProjectName string `json:"project_name,omitempty"`
	ProjectID   string `json:"project_id,omitempty"`

	// show_memory_page
	MemoryID string `json:"memory_id,omitempty"`
	Query    string `json:"query,omitempty"`

	// prompt_for_config
	ConfigKey string `json:"config_key,omitempty"`
	Prompt    string `json:"prompt,omitempty"`

	// execute_tool
	ToolName  string `json:"tool_name,omitempty"`
	Arguments string `json:"arguments,omitempty"`

	// crew_list
	AgentID string `json:"agent_id,omitempty"`
}

func (c Command) Kind() string {
	return strings.ToLower(strings.TrimSpace(c.Command))
}

// RequiresApproval reports whether the command must be surfaced to the
// operator before anything is sent back. create_project_chat and crew_list
// are resolved silently at surfacing time.
func (c Command) RequiresApproval() bool {
	switch c.Kind() {
	case CommandExecuteTool, CommandPromptForConfig, CommandShowMemoryPage:
		return true
	}
	return false
}

// Subject is the operator-facing identifier of what the command acts on.
func (c Command) Subject() string {
	switch c.Kind() {
	case CommandCreateProjectChat:
		return strings.TrimSpace(c.ProjectName)
	case CommandShowMemoryPage:
		return strings.TrimSpace(c.MemoryID)
	case CommandPromptForConfig:
		return strings.TrimSpace(c.ConfigKey)
	case CommandExecuteTool:
		return strings.TrimSpace(c.ToolName)
	case CommandCrewList:
		return strings.TrimSpace(c.AgentID)
	}
	return ""
}

func (c Command) Validate() error {
	switch c.Kind() {
	case "":
		return fmt.Errorf("command kind is required")
	case CommandCreateProjectChat:
		if strings.TrimSpace(c.ProjectName) == "" && strings.TrimSpace(c.ProjectID) == "" {
			return fmt.Errorf("create_project_chat requires project_name or project_id")
		}
	case CommandShowMemoryPage:
		if strings.TrimSpace(c.MemoryID) == "" {
			return fmt.Errorf("show_memory_page requires memory_id")
		}
	case CommandPromptForConfig:
		if strings.TrimSpace(c.ConfigKey) == "" {
			return fmt.Errorf("prompt_for_config requires config_key")
		}
	case CommandExecuteTool:
		if strings.TrimSpace(c.ToolName) == "" {
			return fmt.Errorf("execute_tool requires tool_name")
		}
	}
	return nil
}
