package scheduler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/courierai/courier/internal/adapters"
	"github.com/courierai/courier/pkg/models"
)

// ReminderPrefix is prepended to message-task texts.
const ReminderPrefix = "⏰ Reminder: "

// HTTPExecutor delivers message tasks through the chat adapters and agent
// tasks through the core chat API, the same entry point user messages use.
type HTTPExecutor struct {
	adapters   *adapters.Client
	coreURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// ExecutorOption configures the executor.
type ExecutorOption func(*HTTPExecutor)

// WithExecutorLogger configures the executor logger.
func WithExecutorLogger(logger *slog.Logger) ExecutorOption {
	return func(e *HTTPExecutor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithExecutorHTTPClient overrides the HTTP client for agent-task calls.
func WithExecutorHTTPClient(httpClient *http.Client) ExecutorOption {
	return func(e *HTTPExecutor) {
		if httpClient != nil {
			e.httpClient = httpClient
		}
	}
}

// NewHTTPExecutor builds the production executor.
func NewHTTPExecutor(adapterClient *adapters.Client, coreURL string, opts ...ExecutorOption) *HTTPExecutor {
	e := &HTTPExecutor{
		adapters:   adapterClient,
		coreURL:    coreURL,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs one due task.
func (e *HTTPExecutor) Execute(ctx context.Context, task *models.Task) error {
	switch task.TaskType {
	case models.TaskMessage:
		return e.sendReminder(ctx, task)
	case models.TaskAgent:
		return e.runAgent(ctx, task)
	default:
		e.logger.Warn("unknown task type, dropping", "task", task.ID, "type", task.TaskType)
		return nil
	}
}

func (e *HTTPExecutor) sendReminder(ctx context.Context, task *models.Task) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if _, err := e.adapters.Send(ctx, task.Source, task.ChatID, ReminderPrefix+task.Content); err != nil {
		return fmt.Errorf("send reminder: %w", err)
	}
	return nil
}

// runAgent feeds the task content to the agent as a direct prompt. The
// agent decides what to do with it, including messaging the user.
func (e *HTTPExecutor) runAgent(ctx context.Context, task *models.Task) error {
	payload, err := json.Marshal(map[string]any{
		"user_id":   task.UserID,
		"chat_id":   task.ChatID,
		"message":   task.Content,
		"username":  "scheduler",
		"source":    task.Source,
		"chat_type": "private",
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 120*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.coreURL+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("agent call: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		// The turn ran and failed server-side; retrying would repeat it.
		e.logger.Error("agent task returned error status", "task", task.ID, "status", resp.StatusCode)
	}
	return nil
}
