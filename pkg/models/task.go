package models

import "time"

// TaskType identifies what a scheduled task does when it fires.
type TaskType string

const (
	// TaskMessage sends a reminder text through the chat adapter.
	TaskMessage TaskType = "message"
	// TaskAgent re-enters the agent loop with the task content as prompt.
	TaskAgent TaskType = "agent"
)

// Task is a durable scheduled item. Timestamps are unix seconds so the
// persisted form stays stable across restarts and time zones.
type Task struct {
	ID              string   `json:"id"`
	UserID          int64    `json:"user_id"`
	ChatID          int64    `json:"chat_id"`
	TaskType        TaskType `json:"task_type"`
	Content         string   `json:"content"`
	ExecuteAt       int64    `json:"execute_at"`
	CreatedAt       int64    `json:"created_at"`
	Recurring       bool     `json:"recurring"`
	IntervalMinutes int      `json:"interval_minutes"`
	// CronExpr optionally overrides interval-based recurrence with a
	// standard 5-field cron expression.
	CronExpr string `json:"cron_expr,omitempty"`
	Source   string `json:"source"` // bot, userbot
	LastRun  int64  `json:"last_run,omitempty"`
	RunCount int    `json:"run_count"`
	Enabled  bool   `json:"enabled"`
}

// Due reports whether the task should fire at the given time.
func (t *Task) Due(now time.Time) bool {
	return t.Enabled && t.ExecuteAt <= now.Unix()
}

// NextRunAt returns the scheduled execution time.
func (t *Task) NextRunAt() time.Time { return time.Unix(t.ExecuteAt, 0) }
