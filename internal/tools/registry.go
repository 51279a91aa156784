package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/courierai/courier/internal/mcp"
	"github.com/courierai/courier/internal/metrics"
	"github.com/courierai/courier/internal/permissions"
	"github.com/courierai/courier/internal/storage"
	"github.com/courierai/courier/internal/tools/skills"
	"github.com/courierai/courier/pkg/models"
)

const defCacheTTL = 60 * time.Second

// Override is the persisted per-tool enabled state.
type Override struct {
	Enabled bool `json:"enabled"`
}

type defCacheEntry struct {
	defs    []models.ToolDefinition
	expires time.Time
}

// Registry is the two-tier tool catalogue and dispatcher. Built-ins are
// registered at startup; MCP tools come and go with the bridge's cache.
type Registry struct {
	mu        sync.RWMutex
	builtins  map[string]Tool
	sources   map[string]string
	order     []string
	overrides map[string]Override
	compiled  map[string]*jsonschema.Schema
	defCache  map[string]defCacheEntry

	perms      *permissions.Engine
	mcpManager *mcp.Manager
	skills     *skills.Manager
	configPath string
	timeout    time.Duration
	logger     *slog.Logger
	now        func() time.Time
}

// RegistryOption configures the registry.
type RegistryOption func(*Registry)

// WithLogger configures the registry logger.
func WithLogger(logger *slog.Logger) RegistryOption {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMCP attaches the MCP bridge for mcp_* routing.
func WithMCP(manager *mcp.Manager) RegistryOption {
	return func(r *Registry) { r.mcpManager = manager }
}

// WithSkills attaches the skills manager so installed skills appear in the
// catalogue as skill_* tools.
func WithSkills(manager *skills.Manager) RegistryOption {
	return func(r *Registry) { r.skills = manager }
}

// WithTimeout sets the per-tool execution deadline.
func WithTimeout(timeout time.Duration) RegistryOption {
	return func(r *Registry) {
		if timeout > 0 {
			r.timeout = timeout
		}
	}
}

// WithNow overrides the clock for tests.
func WithNow(now func() time.Time) RegistryOption {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRegistry creates a registry backed by the persisted tool config.
func NewRegistry(perms *permissions.Engine, configPath string, opts ...RegistryOption) *Registry {
	r := &Registry{
		builtins:   map[string]Tool{},
		sources:    map[string]string{},
		overrides:  map[string]Override{},
		compiled:   map[string]*jsonschema.Schema{},
		defCache:   map[string]defCacheEntry{},
		perms:      perms,
		configPath: configPath,
		timeout:    120 * time.Second,
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if err := storage.LoadJSON(configPath, &r.overrides); err != nil && !errors.Is(err, os.ErrNotExist) {
		r.logger.Error("tool config not loaded", "path", configPath, "error", err)
		r.overrides = map[string]Override{}
	}
	return r
}

// Register adds a built-in tool under the given source tag
// (models.SourceBuiltin, SourceBot, SourceUserbot).
func (r *Registry) Register(tool Tool, source string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := tool.Name()
	if _, exists := r.builtins[name]; !exists {
		r.order = append(r.order, name)
	}
	r.builtins[name] = tool
	r.sources[name] = source
	r.invalidateLocked()
}

// Names returns all registered tool names, built-in and MCP.
func (r *Registry) Names() []string {
	defs := r.All()
	names := make([]string, 0, len(defs))
	for _, def := range defs {
		names = append(names, def.Name)
	}
	return names
}

// All returns every known definition with its effective enabled state. Skill
// tools are reported for the shared tier; per-user installs surface through
// Enabled.
func (r *Registry) All() []models.ToolDefinition {
	return r.allFor(0)
}

func (r *Registry) allFor(userID int64) []models.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		tool := r.builtins[name]
		out = append(out, models.ToolDefinition{
			Name:        name,
			Description: tool.Description(),
			Parameters:  tool.Schema(),
			Source:      r.sources[name],
			Enabled:     r.enabledLocked(name, true),
		})
	}
	if r.mcpManager != nil {
		for _, def := range r.mcpManager.Tools() {
			def.Enabled = r.enabledLocked(def.Name, def.Enabled)
			out = append(out, def)
		}
	}
	if r.skills != nil {
		for _, def := range r.skills.Definitions(userID) {
			def.Enabled = r.enabledLocked(def.Name, true)
			out = append(out, def)
		}
	}
	return out
}

// Enabled returns the enabled definitions for a request scope. userID selects
// the caller's skill tier. Results are cached for a minute per
// (lazy, source, user) key; admin writes invalidate.
func (r *Registry) Enabled(lazy bool, source string, userID int64) []models.ToolDefinition {
	key := fmt.Sprintf("%t|%s|%d", lazy, source, userID)

	r.mu.RLock()
	entry, ok := r.defCache[key]
	r.mu.RUnlock()
	if ok && r.now().Before(entry.expires) {
		return entry.defs
	}

	defs := r.enabledDefs(lazy, source, userID)

	r.mu.Lock()
	r.defCache[key] = defCacheEntry{defs: defs, expires: r.now().Add(defCacheTTL)}
	r.mu.Unlock()
	return defs
}

func (r *Registry) enabledDefs(lazy bool, source string, userID int64) []models.ToolDefinition {
	base := map[string]bool{}
	for _, name := range baseToolNames {
		base[name] = true
	}

	var defs []models.ToolDefinition
	for _, def := range r.allFor(userID) {
		if !def.Enabled {
			continue
		}
		if def.Source == models.SourceBot && source != "bot" {
			continue
		}
		// Skill tools stay visible in lazy mode; they are how the model
		// reaches the instructions it was told about in the prompt.
		if lazy && !base[def.Name] && def.Source != models.SourceBot &&
			!strings.HasPrefix(def.Source, "skill:") {
			continue
		}
		defs = append(defs, def)
	}
	return defs
}

// Base returns the lazy-loading base subset regardless of source extras.
func (r *Registry) Base() []models.ToolDefinition {
	return r.enabledDefs(true, "", 0)
}

// Search matches tools by substring over name and description.
// source filters to "builtin" or "mcp"; empty or "all" matches everything.
func (r *Registry) Search(query, source string, limit int) []models.ToolDefinition {
	q := strings.ToLower(strings.TrimSpace(query))
	var out []models.ToolDefinition
	for _, def := range r.All() {
		switch source {
		case "", "all":
		case "builtin":
			if strings.HasPrefix(def.Source, "mcp:") {
				continue
			}
		case "mcp":
			if !strings.HasPrefix(def.Source, "mcp:") {
				continue
			}
		default:
			if def.Source != source {
				continue
			}
		}
		if q != "" && !strings.Contains(strings.ToLower(def.Name), q) &&
			!strings.Contains(strings.ToLower(def.Description), q) {
			continue
		}
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Load returns full definitions for the requested names, skipping unknown
// or disabled tools. The returned set never contains duplicates.
func (r *Registry) Load(names []string) (loaded []models.ToolDefinition, notFound []string) {
	byName := map[string]models.ToolDefinition{}
	for _, def := range r.All() {
		if def.Enabled {
			byName[def.Name] = def
		}
	}
	seen := map[string]bool{}
	for _, name := range names {
		if seen[name] {
			continue
		}
		seen[name] = true
		def, ok := byName[name]
		if !ok {
			notFound = append(notFound, name)
			continue
		}
		loaded = append(loaded, def)
	}
	return loaded, notFound
}

// SetEnabled toggles a tool and persists the override map.
func (r *Registry) SetEnabled(name string, enabled bool) error {
	if !r.known(name) {
		return fmt.Errorf("tool %s not found", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.overrides[name] = Override{Enabled: enabled}
	r.invalidateLocked()
	return storage.SaveJSON(r.configPath, r.overrides)
}

// Reset removes a tool's override, reverting it to its default state.
func (r *Registry) Reset(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.overrides[name]; !ok {
		return nil
	}
	delete(r.overrides, name)
	r.invalidateLocked()
	return storage.SaveJSON(r.configPath, r.overrides)
}

// Invalidate drops the definition cache, e.g. after an MCP refresh.
func (r *Registry) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.invalidateLocked()
}

func (r *Registry) invalidateLocked() {
	r.defCache = map[string]defCacheEntry{}
}

func (r *Registry) known(name string) bool {
	r.mu.RLock()
	_, builtin := r.builtins[name]
	r.mu.RUnlock()
	if builtin {
		return true
	}
	if r.mcpManager != nil {
		if _, _, ok := r.mcpManager.Resolve(name); ok {
			return true
		}
	}
	if r.skills != nil {
		for _, def := range r.skills.Definitions(0) {
			if def.Name == name {
				return true
			}
		}
	}
	return false
}

func (r *Registry) enabledLocked(name string, fallback bool) bool {
	if override, ok := r.overrides[name]; ok {
		return override.Enabled
	}
	return fallback
}

// Execute dispatches one tool call: permission check, MCP routing or
// built-in lookup, argument validation, deadline, and security
// classification. The violation flag tells the caller to count the
// execution against the session's security budget.
func (r *Registry) Execute(ctx context.Context, name string, args json.RawMessage, tc *models.ToolContext) (res *models.ToolResult, violation bool) {
	perm := r.perms.Check(name, tc.ChatType, tc.Source)
	if !perm.Allowed {
		r.logger.Warn("tool permission denied", "tool", name, "type", perm.EffectiveType, "reason", perm.Reason)
		metrics.ToolExecutions.WithLabelValues(name, "denied").Inc()
		return models.ErrorResult("🔒 Tool '%s' not available in %s sessions. %s", name, perm.EffectiveType, perm.Reason), false
	}

	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}

	if strings.HasPrefix(name, mcp.ToolPrefix) {
		return r.executeMCP(ctx, name, args)
	}
	if r.skills != nil && strings.HasPrefix(name, skills.ToolPrefix) {
		return r.executeSkill(name, tc)
	}

	r.mu.RLock()
	tool, ok := r.builtins[name]
	r.mu.RUnlock()
	if !ok {
		return models.ErrorResult("Unknown tool: %s", name), false
	}

	if invalid := r.validateArgs(name, tool, args); invalid != nil {
		return invalid, false
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	type outcome struct {
		res *models.ToolResult
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := tool.Execute(ctx, args, tc)
		done <- outcome{res: res, err: err}
	}()

	select {
	case <-ctx.Done():
		metrics.ToolExecutions.WithLabelValues(name, "timeout").Inc()
		return models.ErrorResult("Tool %s timed out", name), false
	case out := <-done:
		if out.err != nil {
			if IsViolation(out.err) {
				metrics.ToolExecutions.WithLabelValues(name, "violation").Inc()
				metrics.SecurityViolations.Inc()
				return models.ErrorResult("%s", out.err.Error()), true
			}
			metrics.ToolExecutions.WithLabelValues(name, "error").Inc()
			return models.ErrorResult("%s", out.err.Error()), false
		}
		res := out.res
		if res == nil {
			res = models.ErrorResult("tool %s returned no result", name)
		}
		if !res.Success && ResultIsViolation(res) {
			metrics.ToolExecutions.WithLabelValues(name, "violation").Inc()
			metrics.SecurityViolations.Inc()
			return res, true
		}
		if res.Success {
			metrics.ToolExecutions.WithLabelValues(name, "ok").Inc()
		} else {
			metrics.ToolExecutions.WithLabelValues(name, "error").Inc()
		}
		return res, false
	}
}

func (r *Registry) executeSkill(name string, tc *models.ToolContext) (*models.ToolResult, bool) {
	content, err := r.skills.Invoke(tc.UserID, name)
	if err != nil {
		metrics.ToolExecutions.WithLabelValues(name, "error").Inc()
		return models.ErrorResult("%s", err.Error()), false
	}
	metrics.ToolExecutions.WithLabelValues(name, "ok").Inc()
	return models.TextResult(content), false
}

func (r *Registry) executeMCP(ctx context.Context, name string, args json.RawMessage) (*models.ToolResult, bool) {
	if r.mcpManager == nil {
		return models.ErrorResult("MCP bridge not configured"), false
	}
	var argMap map[string]any
	if err := json.Unmarshal(args, &argMap); err != nil {
		return models.ErrorResult("invalid arguments for %s: %v", name, err), false
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	output, err := r.mcpManager.Call(ctx, name, argMap)
	if err != nil {
		metrics.ToolExecutions.WithLabelValues(name, "error").Inc()
		return models.ErrorResult("%s", err.Error()), false
	}
	metrics.ToolExecutions.WithLabelValues(name, "ok").Inc()
	return models.TextResult(output), false
}

// validateArgs checks args against the tool's schema. A schema that fails
// to compile disables validation for that tool rather than the tool itself.
func (r *Registry) validateArgs(name string, tool Tool, args json.RawMessage) *models.ToolResult {
	r.mu.Lock()
	schema, ok := r.compiled[name]
	if !ok {
		compiled, err := jsonschema.CompileString(name+".schema.json", string(tool.Schema()))
		if err != nil {
			r.logger.Warn("tool schema does not compile, skipping validation", "tool", name, "error", err)
			r.compiled[name] = nil
			r.mu.Unlock()
			return nil
		}
		schema = compiled
		r.compiled[name] = schema
	}
	r.mu.Unlock()

	if schema == nil {
		return nil
	}
	var decoded any
	if err := json.Unmarshal(args, &decoded); err != nil {
		return models.ErrorResult("invalid arguments for %s: %v", name, err)
	}
	if err := schema.Validate(decoded); err != nil {
		return models.ErrorResult("invalid arguments for %s: %v", name, err)
	}
	return nil
}
