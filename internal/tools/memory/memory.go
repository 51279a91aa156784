// Package memory implements the long-term memory tool backed by a MEMORY.md
// file in the session workspace.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/courierai/courier/pkg/models"
)

const fileName = "MEMORY.md"

// Memory reads, appends, and clears the per-session memory file.
type Memory struct {
	now func() time.Time
}

// Option configures the tool.
type Option func(*Memory)

// WithNow overrides the clock for tests.
func WithNow(now func() time.Time) Option {
	return func(t *Memory) {
		if now != nil {
			t.now = now
		}
	}
}

func New(opts ...Option) *Memory {
	t := &Memory{now: time.Now}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Memory) Name() string { return "memory" }

func (t *Memory) Description() string {
	return "Long-term memory. Save/read important info across sessions."
}

func (t *Memory) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"action": {"type": "string", "enum": ["read", "append", "clear"]},
			"content": {"type": "string", "description": "Text to save (for append)"}
		},
		"required": ["action"]
	}`)
}

func (t *Memory) Execute(_ context.Context, args json.RawMessage, tc *models.ToolContext) (*models.ToolResult, error) {
	var req struct {
		Action  string `json:"action"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal(args, &req); err != nil {
		return nil, err
	}
	if tc.WorkDir == "" {
		return models.ErrorResult("no workspace configured for this session"), nil
	}
	path := filepath.Join(tc.WorkDir, fileName)

	switch req.Action {
	case "read":
		data, err := os.ReadFile(path)
		if os.IsNotExist(err) || (err == nil && len(strings.TrimSpace(string(data))) == 0) {
			return models.TextResult("Memory is empty"), nil
		}
		if err != nil {
			return models.ErrorResult("%s", err.Error()), nil
		}
		return models.TextResult(string(data)), nil

	case "append":
		if strings.TrimSpace(req.Content) == "" {
			return models.ErrorResult("content required for append"), nil
		}
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return models.ErrorResult("%s", err.Error()), nil
		}
		defer f.Close()
		entry := fmt.Sprintf("- [%s] %s\n", t.now().Format("2006-01-02"), strings.TrimSpace(req.Content))
		if _, err := f.WriteString(entry); err != nil {
			return models.ErrorResult("%s", err.Error()), nil
		}
		return models.TextResult("Saved to memory"), nil

	case "clear":
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return models.ErrorResult("%s", err.Error()), nil
		}
		return models.TextResult("Memory cleared"), nil

	default:
		return models.ErrorResult("Unknown action: %s. Use: read, append, clear", req.Action), nil
	}
}
