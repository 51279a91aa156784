// Package todo implements manage_tasks, the model's scratch todo list for
// planning multi-step work. State lives in the session workspace.
package todo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/courierai/courier/internal/storage"
	"github.com/courierai/courier/pkg/models"
)

const fileName = ".todos.json"

type item struct {
	ID      string `json:"id"`
	Content string `json:"content"`
	Status  string `json:"status"` // pending, done, cancelled
}

// ManageTasks is the todo list tool.
type ManageTasks struct{}

func New() *ManageTasks { return &ManageTasks{} }

func (t *ManageTasks) Name() string { return "manage_tasks" }

func (t *ManageTasks) Description() string {
	return "Todo list for planning complex tasks."
}

func (t *ManageTasks) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"action": {"type": "string", "enum": ["add", "update", "list", "clear"]},
			"id": {"type": "string", "description": "Task ID"},
			"content": {"type": "string", "description": "Task description"},
			"status": {"type": "string", "enum": ["pending", "done", "cancelled"]}
		},
		"required": ["action"]
	}`)
}

func (t *ManageTasks) Execute(_ context.Context, args json.RawMessage, tc *models.ToolContext) (*models.ToolResult, error) {
	var req struct {
		Action  string `json:"action"`
		ID      string `json:"id"`
		Content string `json:"content"`
		Status  string `json:"status"`
	}
	if err := json.Unmarshal(args, &req); err != nil {
		return nil, err
	}
	if tc.WorkDir == "" {
		return models.ErrorResult("no workspace configured for this session"), nil
	}
	path := filepath.Join(tc.WorkDir, fileName)

	var items []item
	if err := storage.LoadJSON(path, &items); err != nil && !errors.Is(err, os.ErrNotExist) {
		return models.ErrorResult("%s", err.Error()), nil
	}

	switch req.Action {
	case "add":
		if strings.TrimSpace(req.Content) == "" {
			return models.ErrorResult("content required for add"), nil
		}
		id := fmt.Sprintf("t%d", nextID(items))
		items = append(items, item{ID: id, Content: req.Content, Status: "pending"})
		if err := storage.SaveJSON(path, items); err != nil {
			return models.ErrorResult("%s", err.Error()), nil
		}
		return models.TextResult("Added " + id + ": " + req.Content), nil

	case "update":
		if req.ID == "" {
			return models.ErrorResult("id required for update"), nil
		}
		for i := range items {
			if items[i].ID != req.ID {
				continue
			}
			if req.Status != "" {
				items[i].Status = req.Status
			}
			if req.Content != "" {
				items[i].Content = req.Content
			}
			if err := storage.SaveJSON(path, items); err != nil {
				return models.ErrorResult("%s", err.Error()), nil
			}
			return models.TextResult("Updated " + req.ID), nil
		}
		return models.ErrorResult("Task %s not found", req.ID), nil

	case "list":
		if len(items) == 0 {
			return models.TextResult("No tasks"), nil
		}
		var b strings.Builder
		for _, it := range items {
			mark := " "
			switch it.Status {
			case "done":
				mark = "x"
			case "cancelled":
				mark = "-"
			}
			fmt.Fprintf(&b, "[%s] %s: %s\n", mark, it.ID, it.Content)
		}
		return models.TextResult(strings.TrimRight(b.String(), "\n")), nil

	case "clear":
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return models.ErrorResult("%s", err.Error()), nil
		}
		return models.TextResult("Tasks cleared"), nil

	default:
		return models.ErrorResult("Unknown action: %s. Use: add, update, list, clear", req.Action), nil
	}
}

func nextID(items []item) int {
	max := 0
	for _, it := range items {
		var n int
		if _, err := fmt.Sscanf(it.ID, "t%d", &n); err == nil && n > max {
			max = n
		}
	}
	return max + 1
}
