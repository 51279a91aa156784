// Package agent runs the reasoning loop: prompt assembly, chat completion,
// tool dispatch and history persistence for one user turn.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/courierai/courier/internal/config"
	"github.com/courierai/courier/internal/metrics"
	"github.com/courierai/courier/internal/permissions"
	"github.com/courierai/courier/internal/sessions"
	"github.com/courierai/courier/internal/tools"
	"github.com/courierai/courier/pkg/models"
)

const (
	lockedMessage = "🚫 Session locked due to repeated security violations. /clear to reset."
	nudgeMessage  = "[system: continue - emit a tool_call or a final answer in content]"
	// historyChars bounds the persisted transcript between turns.
	historyChars = 30000
)

// ChatRequest is one inbound user message.
type ChatRequest struct {
	UserID   int64  `json:"user_id"`
	ChatID   int64  `json:"chat_id"`
	Message  string `json:"message"`
	Username string `json:"username"`
	ChatType string `json:"chat_type"`
	Source   string `json:"source"`
}

// Agent owns the reasoning loop.
type Agent struct {
	cfg      *config.Config
	llm      *LLM
	registry *tools.Registry
	perms    *permissions.Engine
	sessions *sessions.Manager
	prompt   *PromptBuilder
	logger   *slog.Logger
}

// Option configures the agent.
type Option func(*Agent)

// WithLogger configures the agent logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Agent) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// New wires the loop to its collaborators.
func New(cfg *config.Config, llm *LLM, registry *tools.Registry, perms *permissions.Engine, sessionMgr *sessions.Manager, prompt *PromptBuilder, opts ...Option) *Agent {
	a := &Agent{
		cfg:      cfg,
		llm:      llm,
		registry: registry,
		perms:    perms,
		sessions: sessionMgr,
		prompt:   prompt,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Clear wipes the session transcript and security counter.
func (a *Agent) Clear(userID, chatID int64) bool {
	return a.sessions.Clear(userID, chatID)
}

// HandleMessage runs one full turn and returns the user-visible reply.
// Turns within a session are serialized; the returned error covers only
// infrastructure faults, model and tool problems become reply text.
func (a *Agent) HandleMessage(ctx context.Context, req ChatRequest) (string, error) {
	if req.ChatType == "" {
		req.ChatType = "private"
	}
	if req.Source == "" {
		req.Source = "bot"
	}

	session, err := a.sessions.Get(req.UserID, req.ChatID, req.ChatType, req.Source, req.Username)
	if err != nil {
		return "", err
	}
	session.Lock()
	defer session.Unlock()

	if session.Locked(a.cfg.Agent.MaxBlockedCommands) {
		metrics.AgentTurns.WithLabelValues("locked").Inc()
		return lockedMessage, nil
	}

	logger := a.logger.With("session", session.ID, "source", req.Source)
	logger.Info("agent turn", "message_chars", len(req.Message))

	defs := a.registry.Enabled(a.cfg.Agent.LazyToolLoading, req.Source, req.UserID)
	defs = a.perms.Filter(defs, req.ChatType, req.Source)
	toolDefs := completionTools(defs)

	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: a.prompt.Build(session, defs)},
	}
	messages = append(messages, session.History...)
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Message})
	messages = append(messages[:1], trimMessages(messages[1:], a.cfg.Agent.MaxContextMessages, a.cfg.Agent.MaxContextChars)...)

	toolCtx := &models.ToolContext{
		WorkDir:   session.WorkDir,
		SessionID: session.ID,
		UserID:    req.UserID,
		ChatID:    req.ChatID,
		ChatType:  req.ChatType,
		Source:    req.Source,
		Username:  req.Username,
	}

	var final string
	iteration := 0

	for iteration < a.cfg.Agent.MaxIterations {
		iteration++

		msg, finish, err := a.llm.Complete(ctx, messages, toolDefs)
		if err != nil {
			logger.Error("completion failed", "iter", iteration, "error", err)
			metrics.AgentTurns.WithLabelValues("error").Inc()
			return fmt.Sprintf("Error: %v", err), nil
		}
		messages = append(messages, msg)

		if msg.Content == "" && len(msg.ToolCalls) == 0 {
			if msg.ReasoningContent != "" {
				logger.Info("reasoning without output, nudging", "iter", iteration)
				messages = append(messages, openai.ChatCompletionMessage{
					Role:    openai.ChatMessageRoleUser,
					Content: nudgeMessage,
				})
				continue
			}
			logger.Warn("empty completion", "iter", iteration)
			break
		}

		if len(msg.ToolCalls) == 0 {
			final = msg.Content
			break
		}

		for _, call := range msg.ToolCalls {
			args := RepairJSON(call.Function.Arguments)
			logger.Info("tool call", "iter", iteration, "tool", call.Function.Name)

			res, violation := a.registry.Execute(ctx, call.Function.Name, args, toolCtx)
			if violation {
				if session.RecordViolation(a.cfg.Agent.MaxBlockedCommands) {
					logger.Warn("session locked", "blocked_count", session.BlockedCount)
					metrics.AgentTurns.WithLabelValues("locked").Inc()
					return lockedMessage, nil
				}
			}

			messages = append(messages, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				ToolCallID: call.ID,
				Content:    a.toolMessage(res),
			})

			if loaded := res.LoadedTools(); len(loaded) > 0 {
				defs = append(defs, loaded...)
				toolDefs = completionTools(a.perms.Filter(defs, req.ChatType, req.Source))
			}
		}

		if finish == string(openai.FinishReasonStop) && len(msg.ToolCalls) == 0 {
			final = msg.Content
			break
		}
	}

	state := "final"
	if final == "" && iteration > 1 {
		final = fallbackReply(messages)
		state = "fallback"
	}

	session.History = append(session.History, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Message})
	if final != "" {
		session.History = append(session.History, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: final})
	}
	session.History = trimMessages(session.History, a.cfg.Agent.MaxHistory*2, historyChars)

	final = CleanResponse(final)
	if final == "" {
		final = "(no response)"
		state = "empty"
	}

	a.sessions.Snapshot(session, req.Message, final)
	metrics.AgentTurns.WithLabelValues(state).Inc()
	logger.Info("agent done", "iterations", iteration, "reply_chars", len(final))
	return final, nil
}

// toolMessage renders a tool result for the transcript: output for success,
// an Error-prefixed line for failure, trimmed when oversized. Permission
// denials already carry their 🔒 framing and go through verbatim.
func (a *Agent) toolMessage(res *models.ToolResult) string {
	var output string
	switch {
	case res.Success && res.Output == "":
		output = "(empty)"
	case res.Success:
		output = res.Output
	case strings.HasPrefix(res.Error, "🔒"):
		output = res.Error
	case res.Error == "":
		output = "Error: Unknown error"
	default:
		output = "Error: " + res.Error
	}

	if limit := a.cfg.Agent.MaxToolOutput; limit > 0 && len(output) > limit {
		head := output[:limit*6/10]
		tail := output[len(output)-limit*3/10:]
		output = head + "\n\n... [TRIMMED] ...\n\n" + tail
	}
	return output
}

// fallbackReply synthesizes a reply when the loop ran tools but the model
// never produced a final message. A trailing tool error is surfaced instead
// of papering over it with a success summary.
func fallbackReply(messages []openai.ChatCompletionMessage) string {
	var lastTool string
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == openai.ChatMessageRoleTool {
			lastTool = messages[i].Content
			break
		}
	}
	if lastTool == "" {
		return ""
	}
	if strings.HasPrefix(lastTool, "Error:") {
		detail := strings.TrimSpace(strings.TrimPrefix(lastTool, "Error:"))
		if len(detail) > 200 {
			detail = detail[:200]
		}
		return "Error: " + detail
	}

	var outputs []string
	for _, msg := range messages {
		if msg.Role != openai.ChatMessageRoleTool || msg.Content == "" {
			continue
		}
		if strings.HasPrefix(msg.Content, "Error:") || strings.HasPrefix(msg.Content, "🔒") {
			continue
		}
		firstLine, _, _ := strings.Cut(msg.Content, "\n")
		if len(firstLine) > 100 {
			firstLine = firstLine[:100]
		}
		if firstLine != "" && firstLine != "(empty)" {
			outputs = append(outputs, firstLine)
		}
	}
	switch len(outputs) {
	case 0:
		return ""
	case 1:
		return "Done! " + outputs[0]
	default:
		return "✅ Done"
	}
}

// trimMessages keeps a transcript within a count and an approximate byte
// cap, dropping oldest first but never going below two messages.
func trimMessages(msgs []openai.ChatCompletionMessage, maxMsgs, maxChars int) []openai.ChatCompletionMessage {
	if maxMsgs > 0 && len(msgs) > maxMsgs {
		msgs = msgs[len(msgs)-maxMsgs:]
	}
	if maxChars <= 0 {
		return msgs
	}
	total := transcriptChars(msgs)
	for total > maxChars && len(msgs) > 2 {
		total -= messageChars(msgs[0])
		msgs = msgs[1:]
	}
	return msgs
}

func transcriptChars(msgs []openai.ChatCompletionMessage) int {
	total := 0
	for _, msg := range msgs {
		total += messageChars(msg)
	}
	return total
}

func messageChars(msg openai.ChatCompletionMessage) int {
	data, err := json.Marshal(msg)
	if err != nil {
		return len(msg.Content)
	}
	return len(data)
}

// completionTools converts registry definitions to the wire schema.
func completionTools(defs []models.ToolDefinition) []openai.Tool {
	out := make([]openai.Tool, 0, len(defs))
	for _, def := range defs {
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  def.Parameters,
			},
		})
	}
	return out
}
