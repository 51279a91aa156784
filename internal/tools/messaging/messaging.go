// Package messaging holds the bot-only chat tools: sending files and DMs,
// editing or deleting bot messages, and asking the user a question.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/courierai/courier/internal/adapters"
	"github.com/courierai/courier/pkg/models"
)

// SendFile uploads a workspace file to the chat.
type SendFile struct {
	adapters *adapters.Client
}

func NewSendFile(client *adapters.Client) *SendFile { return &SendFile{adapters: client} }

func (t *SendFile) Name() string { return "send_file" }

func (t *SendFile) Description() string {
	return "Send a file from workspace to the chat."
}

func (t *SendFile) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {"type": "string", "description": "Path to file in workspace"},
			"caption": {"type": "string", "description": "Optional caption"}
		},
		"required": ["path"]
	}`)
}

func (t *SendFile) Execute(ctx context.Context, args json.RawMessage, tc *models.ToolContext) (*models.ToolResult, error) {
	var req struct {
		Path    string `json:"path"`
		Caption string `json:"caption"`
	}
	if err := json.Unmarshal(args, &req); err != nil {
		return nil, err
	}
	if req.Path == "" {
		return models.ErrorResult("Path required"), nil
	}

	path := req.Path
	if !filepath.IsAbs(path) {
		path = filepath.Join(tc.WorkDir, path)
	}
	path = filepath.Clean(path)
	root := filepath.Clean(tc.WorkDir)
	if path != root && !strings.HasPrefix(path, root+string(filepath.Separator)) {
		return models.ErrorResult("Access denied: file outside your workspace"), nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return models.ErrorResult("File not found: %s", req.Path), nil
	}
	if info.Size() > adapters.MaxFileSize {
		return models.ErrorResult("File too large (max 50MB)"), nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return models.ErrorResult("%s", err.Error()), nil
	}
	if err := t.adapters.SendFile(ctx, tc.Source, tc.ChatID, filepath.Base(path), content, req.Caption); err != nil {
		return models.ErrorResult("%s", err.Error()), nil
	}
	return models.TextResult(fmt.Sprintf("📎 Sent %s (%d bytes)", filepath.Base(path), info.Size())), nil
}

// SendDM sends a private message to a user.
type SendDM struct {
	adapters *adapters.Client
}

func NewSendDM(client *adapters.Client) *SendDM { return &SendDM{adapters: client} }

func (t *SendDM) Name() string { return "send_dm" }

func (t *SendDM) Description() string {
	return "Send a private message to current user."
}

func (t *SendDM) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"user_id": {"type": "integer", "description": "User ID (usually current user)"},
			"text": {"type": "string", "description": "Message text"}
		},
		"required": ["user_id", "text"]
	}`)
}

func (t *SendDM) Execute(ctx context.Context, args json.RawMessage, tc *models.ToolContext) (*models.ToolResult, error) {
	var req struct {
		UserID int64  `json:"user_id"`
		Text   string `json:"text"`
	}
	if err := json.Unmarshal(args, &req); err != nil {
		return nil, err
	}
	if req.UserID == 0 {
		return models.ErrorResult("user_id required"), nil
	}
	if req.Text == "" {
		return models.ErrorResult("text required"), nil
	}

	if err := t.adapters.SendDM(ctx, tc.Source, req.UserID, req.Text); err != nil {
		return models.ErrorResult("%s", err.Error()), nil
	}
	return models.TextResult(fmt.Sprintf("✅ DM sent to %d", req.UserID)), nil
}

// ManageMessage edits or deletes bot messages.
type ManageMessage struct {
	adapters *adapters.Client
}

func NewManageMessage(client *adapters.Client) *ManageMessage {
	return &ManageMessage{adapters: client}
}

func (t *ManageMessage) Name() string { return "manage_message" }

func (t *ManageMessage) Description() string {
	return "Edit or delete bot messages."
}

func (t *ManageMessage) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"action": {"type": "string", "enum": ["edit", "delete"]},
			"message_id": {"type": "integer", "description": "Message ID to edit/delete"},
			"text": {"type": "string", "description": "New text (for edit)"}
		},
		"required": ["action", "message_id"]
	}`)
}

func (t *ManageMessage) Execute(ctx context.Context, args json.RawMessage, tc *models.ToolContext) (*models.ToolResult, error) {
	var req struct {
		Action    string `json:"action"`
		MessageID int64  `json:"message_id"`
		Text      string `json:"text"`
	}
	if err := json.Unmarshal(args, &req); err != nil {
		return nil, err
	}
	if req.MessageID == 0 {
		return models.ErrorResult("message_id required"), nil
	}

	switch req.Action {
	case "edit":
		if req.Text == "" {
			return models.ErrorResult("text required for edit"), nil
		}
		if err := t.adapters.EditMessage(ctx, tc.Source, tc.ChatID, req.MessageID, req.Text); err != nil {
			return models.ErrorResult("%s", err.Error()), nil
		}
		return models.TextResult(fmt.Sprintf("Edited message %d", req.MessageID)), nil
	case "delete":
		if err := t.adapters.DeleteMessage(ctx, tc.Source, tc.ChatID, req.MessageID); err != nil {
			return models.ErrorResult("%s", err.Error()), nil
		}
		return models.TextResult(fmt.Sprintf("Deleted message %d", req.MessageID)), nil
	default:
		return models.ErrorResult("Unknown action: %s. Use: edit, delete", req.Action), nil
	}
}

// AskUser asks the user a question and blocks until they answer or the
// timeout passes. The bot adapter captures the user's next message.
type AskUser struct {
	adapters     *adapters.Client
	pollInterval time.Duration
}

// AskOption configures AskUser.
type AskOption func(*AskUser)

// WithPollInterval shortens the answer poll for tests.
func WithPollInterval(interval time.Duration) AskOption {
	return func(t *AskUser) {
		if interval > 0 {
			t.pollInterval = interval
		}
	}
}

func NewAskUser(client *adapters.Client, opts ...AskOption) *AskUser {
	t := &AskUser{adapters: client, pollInterval: 2 * time.Second}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *AskUser) Name() string { return "ask_user" }

func (t *AskUser) Description() string {
	return "Ask user a question and wait for their answer."
}

func (t *AskUser) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"question": {"type": "string", "description": "Question to ask"},
			"timeout": {"type": "integer", "description": "Seconds to wait (default 60)"}
		},
		"required": ["question"]
	}`)
}

func (t *AskUser) Execute(ctx context.Context, args json.RawMessage, tc *models.ToolContext) (*models.ToolResult, error) {
	var req struct {
		Question string `json:"question"`
		Timeout  int    `json:"timeout"`
	}
	if err := json.Unmarshal(args, &req); err != nil {
		return nil, err
	}
	if req.Question == "" {
		return models.ErrorResult("question required"), nil
	}
	if req.Timeout <= 0 {
		req.Timeout = 60
	}

	questionID := uuid.NewString()
	if err := t.adapters.Ask(ctx, questionID, tc.ChatID, tc.UserID, req.Question); err != nil {
		return models.ErrorResult("%s", err.Error()), nil
	}

	deadline := time.Now().Add(time.Duration(req.Timeout) * time.Second)
	ticker := time.NewTicker(t.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return models.ErrorResult("cancelled while waiting for answer"), nil
		case <-ticker.C:
			answered, answer, err := t.adapters.Answer(ctx, questionID)
			if err != nil {
				return models.ErrorResult("%s", err.Error()), nil
			}
			if answered {
				return models.TextResult("User answered: " + answer), nil
			}
			if time.Now().After(deadline) {
				return models.ErrorResult("No answer within %d seconds", req.Timeout), nil
			}
		}
	}
}
