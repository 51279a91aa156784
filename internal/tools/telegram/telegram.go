// Package telegram exposes the userbot's Telegram capabilities as tools.
// Each tool forwards its arguments to the userbot adapter unchanged; the
// adapter owns the MTProto session.
package telegram

import (
	"context"
	"encoding/json"

	"github.com/courierai/courier/internal/adapters"
	"github.com/courierai/courier/pkg/models"
)

// Tool is one userbot-backed tool. All eight share the forwarding logic
// and differ only in name, schema, and adapter action.
type Tool struct {
	name        string
	description string
	schema      json.RawMessage
	action      string
	client      *adapters.Client
}

func (t *Tool) Name() string            { return t.name }
func (t *Tool) Description() string     { return t.description }
func (t *Tool) Schema() json.RawMessage { return t.schema }

func (t *Tool) Execute(ctx context.Context, args json.RawMessage, _ *models.ToolContext) (*models.ToolResult, error) {
	var payload map[string]any
	if err := json.Unmarshal(args, &payload); err != nil {
		return nil, err
	}
	output, err := t.client.Telegram(ctx, t.action, payload)
	if err != nil {
		return models.ErrorResult("%s", err.Error()), nil
	}
	if output == "" {
		output = "(done)"
	}
	return models.TextResult(output), nil
}

// All returns the full userbot toolset.
func All(client *adapters.Client) []*Tool {
	specs := []struct {
		name, description, action string
		schema                    string
	}{
		{
			"telegram_channel",
			"Read posts from a Telegram channel. Use for t.me links - fetch_page doesn't work for Telegram!",
			"channel",
			`{"type":"object","properties":{
				"channel":{"type":"string","description":"Channel username (@channel) or t.me link"},
				"limit":{"type":"integer","description":"Number of posts to fetch (default: 5)"}
			},"required":["channel"]}`,
		},
		{
			"telegram_join",
			"Join a Telegram group or channel by invite link or username.",
			"join",
			`{"type":"object","properties":{
				"invite_link":{"type":"string","description":"Invite link (t.me/+xxx) or username (@channel)"}
			},"required":["invite_link"]}`,
		},
		{
			"telegram_send",
			"Send a message to any Telegram user or chat.",
			"send_message",
			`{"type":"object","properties":{
				"target":{"type":"string","description":"Username (@user), phone, or chat_id"},
				"message":{"type":"string","description":"Message text to send"}
			},"required":["target","message"]}`,
		},
		{
			"telegram_history",
			"Get message history from a chat. Returns message IDs for delete/edit.",
			"history",
			`{"type":"object","properties":{
				"chat_id":{"type":"integer","description":"Chat ID to get history from"},
				"limit":{"type":"integer","description":"Number of messages (default: 20)"}
			},"required":["chat_id"]}`,
		},
		{
			"telegram_dialogs",
			"List recent Telegram chats/dialogs.",
			"dialogs",
			`{"type":"object","properties":{
				"limit":{"type":"integer","description":"Number of dialogs (default: 20)"}
			},"required":[]}`,
		},
		{
			"telegram_delete",
			"Delete a message in a chat. Get message_id from telegram_history.",
			"delete_message",
			`{"type":"object","properties":{
				"chat_id":{"type":"integer","description":"Chat ID"},
				"message_id":{"type":"integer","description":"Message ID to delete"}
			},"required":["chat_id","message_id"]}`,
		},
		{
			"telegram_edit",
			"Edit a message in a chat. Get message_id from telegram_history.",
			"edit_message",
			`{"type":"object","properties":{
				"chat_id":{"type":"integer","description":"Chat ID"},
				"message_id":{"type":"integer","description":"Message ID to edit"},
				"new_text":{"type":"string","description":"New message text"}
			},"required":["chat_id","message_id","new_text"]}`,
		},
		{
			"telegram_resolve",
			"Resolve Telegram username to user ID and info.",
			"resolve",
			`{"type":"object","properties":{
				"username":{"type":"string","description":"Username to resolve (@username)"}
			},"required":["username"]}`,
		},
	}

	tools := make([]*Tool, 0, len(specs))
	for _, s := range specs {
		tools = append(tools, &Tool{
			name:        s.name,
			description: s.description,
			schema:      json.RawMessage(s.schema),
			action:      s.action,
			client:      client,
		})
	}
	return tools
}
