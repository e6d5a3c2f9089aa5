package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
)

// ConsoleConfig is loaded from the "console" key of config.json. A
// missing file is not an error: the console runs on defaults.
type ConsoleConfig struct {
	BackendURL string `json:"backend_url"`
	UserID     string `json:"user_id"`
	AgentID    string `json:"agent_id"`
	RedisURL   string `json:"redis_url"`
	LogFile    string `json:"log_file"`

	MaxMessageBytes     int64 `json:"max_message_bytes"`
	DialTimeoutSeconds  int   `json:"dial_timeout_seconds"`
	PingIntervalSeconds int   `json:"ping_interval_seconds"`

	// ApprovalClearMillis is how long the approved/denied acknowledgement
	// stays visible before its one-shot clear fires.
	ApprovalClearMillis int64 `json:"approval_clear_millis"`

	Cleanup CleanupConfig `json:"cleanup"`
}

// CleanupConfig prunes terminal jobs on a cron schedule.
type CleanupConfig struct {
	Enabled        bool   `json:"enabled"`
	Schedule       string `json:"schedule"`
	RetentionHours int    `json:"retention_hours"`
}

func LoadConsoleConfig(path string) (ConsoleConfig, error) {
	if strings.TrimSpace(path) == "" {
		path = "config.json"
	}
	var cfg ConsoleConfig
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyDefaults()
			return cfg, nil
		}
		return ConsoleConfig{}, err
	}

	var root map[string]json.RawMessage
	if err := json.Unmarshal(data, &root); err != nil {
		return ConsoleConfig{}, fmt.Errorf("parse %s: %w", strings.TrimSpace(path), err)
	}
	if raw, ok := root["console"]; ok && len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return ConsoleConfig{}, fmt.Errorf("parse %s.console: %w", strings.TrimSpace(path), err)
		}
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *ConsoleConfig) applyDefaults() {
	if c == nil {
		return
	}
	if strings.TrimSpace(c.BackendURL) == "" {
		c.BackendURL = "ws://127.0.0.1:8080"
	}
	if strings.TrimSpace(c.UserID) == "" {
		c.UserID = "operator"
	}
	if strings.TrimSpace(c.AgentID) == "" {
		c.AgentID = "twin-primary"
	}
	if c.MaxMessageBytes <= 0 {
		c.MaxMessageBytes = 4 << 20
	}
	if c.DialTimeoutSeconds <= 0 {
		c.DialTimeoutSeconds = 15
	}
	if c.PingIntervalSeconds <= 0 {
		c.PingIntervalSeconds = 30
	}
	if c.ApprovalClearMillis <= 0 {
		c.ApprovalClearMillis = 2000
	}
	if strings.TrimSpace(c.Cleanup.Schedule) == "" {
		c.Cleanup.Schedule = "0 * * * *"
	}
	if c.Cleanup.RetentionHours <= 0 {
		c.Cleanup.RetentionHours = 24
	}
}

func (c ConsoleConfig) DialTimeout() time.Duration {
	return time.Duration(c.DialTimeoutSeconds) * time.Second
}

func (c ConsoleConfig) PingInterval() time.Duration {
	return time.Duration(c.PingIntervalSeconds) * time.Second
}

func (c ConsoleConfig) ApprovalClear() time.Duration {
	return time.Duration(c.ApprovalClearMillis) * time.Millisecond
}

func (c ConsoleConfig) CleanupRetention() time.Duration {
	return time.Duration(c.Cleanup.RetentionHours) * time.Hour
}
