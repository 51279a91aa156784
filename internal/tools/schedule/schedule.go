// Package schedule implements schedule_task, the model's interface to the
// persistent scheduler.
package schedule

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/courierai/courier/internal/scheduler"
	"github.com/courierai/courier/pkg/models"
)

// Runner triggers a task out of schedule, for the "run" action.
type Runner interface {
	Fire(ctx context.Context, task *models.Task)
}

// ScheduleTask manages the caller's scheduled tasks.
type ScheduleTask struct {
	store  *scheduler.Store
	runner Runner
	now    func() time.Time
}

// Option configures the tool.
type Option func(*ScheduleTask)

// WithNow overrides the clock for tests.
func WithNow(now func() time.Time) Option {
	return func(t *ScheduleTask) {
		if now != nil {
			t.now = now
		}
	}
}

func New(store *scheduler.Store, runner Runner, opts ...Option) *ScheduleTask {
	t := &ScheduleTask{store: store, runner: runner, now: time.Now}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *ScheduleTask) Name() string { return "schedule_task" }

func (t *ScheduleTask) Description() string {
	return "Schedule recurring or delayed tasks. IMPORTANT: 'content' is a TEXT PROMPT (not code!) that will be sent to the agent. The agent will execute this prompt with all its tools."
}

func (t *ScheduleTask) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"action": {"type": "string", "enum": ["add", "list", "cancel", "run"], "description": "add=create, list=show, cancel=remove, run=execute now"},
			"type": {"type": "string", "enum": ["message", "agent"], "description": "'message'=send text reminder, 'agent'=run agent with prompt (can use tools)"},
			"content": {"type": "string", "description": "TEXT PROMPT for agent (NOT code!)"},
			"delay_minutes": {"type": "integer", "description": "Minutes before first run (0 = run on the next tick)"},
			"recurring": {"type": "boolean", "description": "Repeat after execution?"},
			"interval_minutes": {"type": "integer", "description": "Repeat interval in minutes (min: 1)"},
			"cron_expr": {"type": "string", "description": "Optional cron expression instead of interval"},
			"task_id": {"type": "string", "description": "Task ID (for cancel/run)"}
		},
		"required": ["action"]
	}`)
}

func (t *ScheduleTask) Execute(ctx context.Context, args json.RawMessage, tc *models.ToolContext) (*models.ToolResult, error) {
	var req struct {
		Action          string `json:"action"`
		Type            string `json:"type"`
		Content         string `json:"content"`
		DelayMinutes    int    `json:"delay_minutes"`
		Recurring       bool   `json:"recurring"`
		IntervalMinutes int    `json:"interval_minutes"`
		CronExpr        string `json:"cron_expr"`
		TaskID          string `json:"task_id"`
	}
	if err := json.Unmarshal(args, &req); err != nil {
		return nil, err
	}

	switch req.Action {
	case "add":
		if req.Type == "" || req.Content == "" {
			return models.ErrorResult("Need type and content"), nil
		}
		interval := req.IntervalMinutes
		if req.Recurring && interval == 0 {
			interval = 60
		}
		task, err := t.store.Create(scheduler.CreateRequest{
			UserID:          tc.UserID,
			ChatID:          tc.ChatID,
			TaskType:        models.TaskType(req.Type),
			Content:         req.Content,
			DelayMinutes:    req.DelayMinutes,
			Recurring:       req.Recurring,
			IntervalMinutes: interval,
			CronExpr:        req.CronExpr,
			Source:          tc.Source,
		})
		if err != nil {
			return models.ErrorResult("%s", err.Error()), nil
		}
		recurInfo := " (once)"
		if task.Recurring {
			recurInfo = fmt.Sprintf(" (repeat every %dmin)", task.IntervalMinutes)
		}
		return models.TextResult(fmt.Sprintf("✅ Scheduled at %s%s, id %s",
			task.NextRunAt().Format("15:04"), recurInfo, task.ID)), nil

	case "list":
		tasks := t.store.UserTasks(tc.UserID)
		if len(tasks) == 0 {
			return models.TextResult("No scheduled tasks"), nil
		}
		now := t.now()
		var lines []string
		for _, task := range tasks {
			recur := ""
			if task.Recurring {
				recur = fmt.Sprintf(" 🔄 every %dmin", task.IntervalMinutes)
			}
			icon := "🤖"
			if task.Source == "userbot" {
				icon = "👤"
			}
			enabled := "✅"
			if !task.Enabled {
				enabled = "⏸️"
			}
			content := task.Content
			if runes := []rune(content); len(runes) > 50 {
				content = string(runes[:50])
			}
			lines = append(lines, fmt.Sprintf("• %s: %s%s [%s] in %dmin%s\n  %q (runs: %d)",
				task.ID, icon, enabled, task.TaskType,
				int(task.NextRunAt().Sub(now).Minutes()), recur, content, task.RunCount))
		}
		return models.TextResult(fmt.Sprintf("Scheduled tasks (%d):\n%s", len(tasks), strings.Join(lines, "\n"))), nil

	case "cancel":
		if req.TaskID == "" {
			return models.ErrorResult("Need task_id"), nil
		}
		if err := t.store.Delete(req.TaskID, tc.UserID); err != nil {
			return models.ErrorResult("%s", err.Error()), nil
		}
		return models.TextResult(fmt.Sprintf("Task %s cancelled", req.TaskID)), nil

	case "run":
		if req.TaskID == "" {
			return models.ErrorResult("Need task_id"), nil
		}
		task, err := t.store.Get(req.TaskID)
		if err != nil {
			return models.ErrorResult("%s", err.Error()), nil
		}
		if task.UserID != tc.UserID {
			return models.ErrorResult("cannot run other user's task"), nil
		}
		t.runner.Fire(ctx, task)
		return models.TextResult(fmt.Sprintf("Task %s triggered", req.TaskID)), nil

	default:
		return models.ErrorResult("Unknown action: %s. Use: add, list, cancel, run", req.Action), nil
	}
}
