// Package tools holds the two-tier tool catalogue (built-in plus MCP) and
// the dispatcher that routes, times out, and classifies executions.
package tools

import (
	"context"
	"encoding/json"

	"github.com/courierai/courier/pkg/models"
)

// Tool is a built-in executor. Implementations must be safe for concurrent
// use; every invocation receives the calling session's context.
type Tool interface {
	// Name returns the tool name for LLM function calling.
	Name() string

	// Description returns a natural language description of what the tool
	// does, shown to the model.
	Description() string

	// Schema returns the JSON Schema defining the tool's parameters.
	Schema() json.RawMessage

	// Execute runs the tool. Tool-level failures are reported inside the
	// ToolResult; the error return is reserved for infrastructure faults.
	Execute(ctx context.Context, args json.RawMessage, tc *models.ToolContext) (*models.ToolResult, error)
}

// baseToolNames is the subset exposed when lazy loading is enabled. The
// model expands it at runtime via search_tools/load_tools.
var baseToolNames = []string{
	"run_command", "read_file", "write_file", "edit_file",
	"list_directory", "search_files", "search_text",
	"memory", "manage_tasks",
	"search_tools", "load_tools",
	"search_web", "fetch_page",
	"telegram_channel", "telegram_send", "telegram_dialogs",
	"telegram_history", "telegram_join",
}
