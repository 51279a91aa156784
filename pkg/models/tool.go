package models

import (
	"encoding/json"
	"fmt"
)

// Tool sources. MCP and skill tools carry the provider in the source tag.
const (
	SourceBuiltin = "builtin"
	SourceBot     = "builtin:bot"
	SourceUserbot = "builtin:userbot"
)

// MCPSource returns the source tag for a tool served by an MCP server.
func MCPSource(server string) string { return "mcp:" + server }

// SkillSource returns the source tag for a tool contributed by a skill.
func SkillSource(name string) string { return "skill:" + name }

// ToolDefinition describes a callable tool as presented to the model.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
	Source      string          `json:"source"`
	Enabled     bool            `json:"enabled"`

	// Server and OriginalName are set for MCP tools so invocation does not
	// have to re-parse the mcp_<server>_<tool> name.
	Server       string `json:"server,omitempty"`
	OriginalName string `json:"original_name,omitempty"`
}

// ToolContext carries per-invocation session state into tool executors.
type ToolContext struct {
	WorkDir   string `json:"work_dir"`
	SessionID string `json:"session_id"`
	UserID    int64  `json:"user_id"`
	ChatID    int64  `json:"chat_id"`
	ChatType  string `json:"chat_type"` // private, group, supergroup, sandbox
	Source    string `json:"source"`    // bot, userbot
	Username  string `json:"username,omitempty"`
	Admin     bool   `json:"admin,omitempty"`
}

// ToolResult is the outcome of a single tool execution.
type ToolResult struct {
	Success  bool           `json:"success"`
	Output   string         `json:"output,omitempty"`
	Error    string         `json:"error,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// MetadataLoadedTools is the metadata key under which the load_tools tool
// returns freshly loaded definitions for the agent loop to merge.
const MetadataLoadedTools = "loaded_tools"

// TextResult returns a successful result with the given output.
func TextResult(output string) *ToolResult {
	return &ToolResult{Success: true, Output: output}
}

// ErrorResult returns a failed result with a formatted error message.
func ErrorResult(format string, args ...any) *ToolResult {
	return &ToolResult{Error: fmt.Sprintf(format, args...)}
}

// LoadedTools extracts dynamically loaded tool definitions from the result
// metadata, if present.
func (r *ToolResult) LoadedTools() []ToolDefinition {
	if r == nil || r.Metadata == nil {
		return nil
	}
	defs, _ := r.Metadata[MetadataLoadedTools].([]ToolDefinition)
	return defs
}
