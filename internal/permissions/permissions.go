// Package permissions decides which tools a session may use, keyed on the
// derived session type (main, group, sandbox, userbot) and request source.
package permissions

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/courierai/courier/internal/storage"
	"github.com/courierai/courier/pkg/models"
)

// Mode selects how a type's tool list is interpreted.
type Mode string

const (
	Allowlist Mode = "allowlist"
	Denylist  Mode = "denylist"
)

// ToolList is either the wildcard "*" or an explicit list of tool names.
type ToolList struct {
	All   bool
	Names []string
}

// MarshalJSON encodes the wildcard as the string "*".
func (l ToolList) MarshalJSON() ([]byte, error) {
	if l.All {
		return json.Marshal("*")
	}
	if l.Names == nil {
		return json.Marshal([]string{})
	}
	return json.Marshal(l.Names)
}

// UnmarshalJSON accepts "*" or an array of names.
func (l *ToolList) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s != "*" {
			return fmt.Errorf("tool list string must be %q, got %q", "*", s)
		}
		l.All = true
		l.Names = nil
		return nil
	}
	l.All = false
	return json.Unmarshal(data, &l.Names)
}

func (l ToolList) contains(name string) bool {
	for _, n := range l.Names {
		if n == name {
			return true
		}
	}
	return false
}

// TypeConfig is the permission policy for one session type.
type TypeConfig struct {
	Mode        Mode     `json:"mode"`
	Tools       ToolList `json:"tools"`
	Description string   `json:"description,omitempty"`
}

// Result is the outcome of a permission check.
type Result struct {
	Allowed       bool   `json:"allowed"`
	Reason        string `json:"reason"`
	Tool          string `json:"tool"`
	EffectiveType string `json:"effective_type"`
}

// SandboxDenied lists tools that are never available in sandbox sessions,
// regardless of the configured policy.
var SandboxDenied = map[string]bool{
	"send_dm":        true,
	"manage_message": true,
	"schedule_task":  true,
	"ask_user":       true,
}

// DangerousTools is advisory metadata surfaced on the admin panel.
var DangerousTools = map[string]string{
	"run_command":   "Can execute arbitrary shell commands",
	"write_file":    "Can overwrite files",
	"delete_file":   "Can delete files",
	"schedule_task": "Can schedule persistent tasks",
}

// Defaults returns the built-in policy per session type.
func Defaults() map[string]TypeConfig {
	return map[string]TypeConfig{
		"main": {
			Mode:        Allowlist,
			Tools:       ToolList{All: true},
			Description: "Full access for direct messages",
		},
		"group": {
			Mode:        Denylist,
			Tools:       ToolList{Names: []string{"send_dm", "manage_message", "schedule_task"}},
			Description: "Restricted access for group chats",
		},
		"sandbox": {
			Mode: Allowlist,
			Tools: ToolList{Names: []string{
				"run_command", "read_file", "write_file", "edit_file", "delete_file",
				"search_files", "search_text", "list_directory", "memory", "manage_tasks",
			}},
			Description: "Minimal tools for sandboxed sessions",
		},
		"userbot": {
			Mode:        Denylist,
			Tools:       ToolList{Names: []string{"send_file", "send_dm", "manage_message", "ask_user"}},
			Description: "Userbot cannot use bot-specific tools",
		},
	}
}

// EffectiveType maps a chat type and source to the permission key.
func EffectiveType(chatType, source string) string {
	if source == "userbot" {
		return "userbot"
	}
	switch chatType {
	case "private", "main":
		return "main"
	case "group", "supergroup":
		return "group"
	case "sandbox":
		return "sandbox"
	default:
		return "main"
	}
}

// Engine holds the live permission policy. The override file at path is
// merged over defaults at construction and on Reload.
type Engine struct {
	mu      sync.RWMutex
	configs map[string]TypeConfig
	path    string
	logger  *slog.Logger
}

// Option configures the engine.
type Option func(*Engine)

// WithLogger configures the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEngine builds an engine from defaults plus the override file, if any.
func NewEngine(path string, opts ...Option) *Engine {
	e := &Engine{
		configs: Defaults(),
		path:    path,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if err := e.Reload(); err != nil && !errors.Is(err, os.ErrNotExist) {
		e.logger.Error("permission overrides not loaded", "path", path, "error", err)
	}
	return e
}

// Reload re-reads the override file and merges it over defaults.
func (e *Engine) Reload() error {
	overrides := map[string]TypeConfig{}
	if err := storage.LoadJSON(e.path, &overrides); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.configs = Defaults()
	for sessionType, cfg := range overrides {
		e.configs[sessionType] = cfg
	}
	e.logger.Info("permission overrides loaded", "path", e.path, "types", len(overrides))
	return nil
}

// Check decides whether tool may run for the given chat type and source.
func (e *Engine) Check(tool, chatType, source string) Result {
	effective := EffectiveType(chatType, source)

	e.mu.RLock()
	cfg, ok := e.configs[effective]
	if !ok {
		cfg = e.configs["main"]
	}
	e.mu.RUnlock()

	var allowed bool
	var reason string
	switch cfg.Mode {
	case Allowlist:
		switch {
		case cfg.Tools.All:
			allowed, reason = true, "all tools allowed"
		case cfg.Tools.contains(tool):
			allowed, reason = true, "tool in allowlist"
		default:
			allowed, reason = false, "tool not in allowlist"
		}
	case Denylist:
		switch {
		case cfg.Tools.All:
			allowed, reason = false, "all tools denied"
		case cfg.Tools.contains(tool):
			allowed, reason = false, "tool in denylist"
		default:
			allowed, reason = true, "tool not in denylist"
		}
	default:
		allowed, reason = true, "unknown mode, defaulting to allow"
	}

	if effective == "sandbox" && SandboxDenied[tool] {
		allowed = false
		reason = fmt.Sprintf("tool %q never allowed in sandbox", tool)
	}

	return Result{Allowed: allowed, Reason: reason, Tool: tool, EffectiveType: effective}
}

// Filter removes definitions the session type may not use. It is idempotent.
func (e *Engine) Filter(defs []models.ToolDefinition, chatType, source string) []models.ToolDefinition {
	filtered := make([]models.ToolDefinition, 0, len(defs))
	for _, def := range defs {
		if e.Check(def.Name, chatType, source).Allowed {
			filtered = append(filtered, def)
		}
	}
	return filtered
}

// Update replaces the policy for one session type and persists the full
// override map atomically.
func (e *Engine) Update(sessionType string, mode Mode, tools ToolList, description string) error {
	if mode != Allowlist && mode != Denylist {
		return fmt.Errorf("invalid mode: %s", mode)
	}
	e.mu.Lock()
	e.configs[sessionType] = TypeConfig{Mode: mode, Tools: tools, Description: description}
	snapshot := make(map[string]TypeConfig, len(e.configs))
	for k, v := range e.configs {
		snapshot[k] = v
	}
	e.mu.Unlock()

	if err := storage.SaveJSON(e.path, snapshot); err != nil {
		return fmt.Errorf("persist permissions: %w", err)
	}
	return nil
}

// Status reports the live policy for the admin surface.
func (e *Engine) Status(allTools []string) map[string]any {
	e.mu.RLock()
	defer e.mu.RUnlock()

	perType := map[string]any{}
	for sessionType, cfg := range e.configs {
		allowed := 0
		for _, name := range allTools {
			if e.checkLocked(cfg, sessionType, name) {
				allowed++
			}
		}
		perType[sessionType] = map[string]any{
			"mode":          cfg.Mode,
			"tools":         cfg.Tools,
			"allowed_count": allowed,
			"description":   cfg.Description,
		}
	}
	sandboxDenied := make([]string, 0, len(SandboxDenied))
	for name := range SandboxDenied {
		sandboxDenied = append(sandboxDenied, name)
	}
	return map[string]any{
		"session_types":   len(e.configs),
		"total_tools":     len(allTools),
		"permissions":     perType,
		"dangerous_tools": DangerousTools,
		"sandbox_denied":  sandboxDenied,
	}
}

func (e *Engine) checkLocked(cfg TypeConfig, sessionType, tool string) bool {
	allowed := false
	switch cfg.Mode {
	case Allowlist:
		allowed = cfg.Tools.All || cfg.Tools.contains(tool)
	case Denylist:
		allowed = !cfg.Tools.All && !cfg.Tools.contains(tool)
	default:
		allowed = true
	}
	if sessionType == "sandbox" && SandboxDenied[tool] {
		allowed = false
	}
	return allowed
}
