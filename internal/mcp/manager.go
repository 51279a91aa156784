package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/courierai/courier/internal/storage"
	"github.com/courierai/courier/pkg/models"
)

// ErrServerNotFound is returned when an operation names an unknown server.
var ErrServerNotFound = errors.New("mcp server not found")

// ToolPrefix is the namespace prefix applied to all MCP-routed tool names.
const ToolPrefix = "mcp_"

// Cache is the persisted tool catalogue across all servers.
type Cache struct {
	Tools        map[string]models.ToolDefinition  `json:"tools"`
	LastRefresh  time.Time                         `json:"last_refresh,omitempty"`
	ServerStatus map[string]models.MCPServerStatus `json:"server_status"`
}

func newCache() Cache {
	return Cache{
		Tools:        map[string]models.ToolDefinition{},
		ServerStatus: map[string]models.MCPServerStatus{},
	}
}

// Manager owns MCP server configuration and the tool catalogue cache, both
// persisted as JSON artifacts.
type Manager struct {
	mu         sync.RWMutex
	servers    map[string]models.MCPServer
	cache      Cache
	client     *Client
	configPath string
	cachePath  string
	logger     *slog.Logger
	now        func() time.Time
}

// ManagerOption configures the manager.
type ManagerOption func(*Manager)

// WithLogger configures the manager logger.
func WithLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithClient overrides the JSON-RPC client.
func WithClient(client *Client) ManagerOption {
	return func(m *Manager) {
		if client != nil {
			m.client = client
		}
	}
}

// WithNow overrides the clock for tests.
func WithNow(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewManager loads persisted server config and cache. Corrupt or missing
// artifacts degrade to empty state.
func NewManager(configPath, cachePath string, opts ...ManagerOption) *Manager {
	m := &Manager{
		servers:    map[string]models.MCPServer{},
		cache:      newCache(),
		client:     NewClient(),
		configPath: configPath,
		cachePath:  cachePath,
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}

	if err := storage.LoadJSON(configPath, &m.servers); err != nil && !errors.Is(err, os.ErrNotExist) {
		m.logger.Error("mcp server config not loaded", "path", configPath, "error", err)
		m.servers = map[string]models.MCPServer{}
	}
	if err := storage.LoadJSON(cachePath, &m.cache); err != nil && !errors.Is(err, os.ErrNotExist) {
		m.logger.Error("mcp tools cache not loaded", "path", cachePath, "error", err)
		m.cache = newCache()
	}
	if m.cache.Tools == nil {
		m.cache.Tools = map[string]models.ToolDefinition{}
	}
	if m.cache.ServerStatus == nil {
		m.cache.ServerStatus = map[string]models.MCPServerStatus{}
	}
	m.pruneStaleLocked()
	m.logger.Info("mcp manager ready", "servers", len(m.servers), "cached_tools", len(m.cache.Tools))
	return m
}

// Servers returns the configured servers with their cached status.
func (m *Manager) Servers() []map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.servers))
	for name := range m.servers {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]map[string]any, 0, len(names))
	for _, name := range names {
		server := m.servers[name]
		count := 0
		for _, tool := range m.cache.Tools {
			if tool.Server == name {
				count++
			}
		}
		out = append(out, map[string]any{
			"name":        server.Name,
			"url":         server.URL,
			"transport":   server.Transport,
			"enabled":     server.Enabled,
			"description": server.Description,
			"tool_count":  count,
			"status":      m.cache.ServerStatus[name],
		})
	}
	return out
}

// Get returns a configured server by name.
func (m *Manager) Get(name string) (models.MCPServer, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	server, ok := m.servers[name]
	return server, ok
}

// Add registers a server, persists the config, and fetches its catalogue
// immediately.
func (m *Manager) Add(ctx context.Context, server models.MCPServer) (int, error) {
	if server.Name == "" || server.URL == "" {
		return 0, fmt.Errorf("server name and url are required")
	}
	if server.Transport == "" {
		server.Transport = "http"
	}

	m.mu.Lock()
	if _, exists := m.servers[server.Name]; exists {
		m.mu.Unlock()
		return 0, fmt.Errorf("server %s already exists", server.Name)
	}
	server.Enabled = true
	m.servers[server.Name] = server
	if err := m.saveConfigLocked(); err != nil {
		delete(m.servers, server.Name)
		m.mu.Unlock()
		return 0, err
	}
	m.mu.Unlock()

	return m.Refresh(ctx, server.Name)
}

// Remove deletes a server, its cached tools, and its status.
func (m *Manager) Remove(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.servers[name]; !ok {
		return ErrServerNotFound
	}
	delete(m.servers, name)
	if err := m.saveConfigLocked(); err != nil {
		return err
	}
	m.clearServerToolsLocked(name)
	delete(m.cache.ServerStatus, name)
	return m.saveCacheLocked()
}

// Refresh replaces the cache entries for one server with a fresh catalogue.
// The tool count is returned; fetch failures are recorded in server_status.
func (m *Manager) Refresh(ctx context.Context, name string) (int, error) {
	server, ok := m.Get(name)
	if !ok {
		return 0, ErrServerNotFound
	}

	tools, err := m.client.ListTools(ctx, server)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.clearServerToolsLocked(name)
	if err != nil {
		m.cache.ServerStatus[name] = models.MCPServerStatus{Connected: false, Error: err.Error()}
		if saveErr := m.saveCacheLocked(); saveErr != nil {
			m.logger.Error("mcp cache not saved", "error", saveErr)
		}
		return 0, fmt.Errorf("fetch catalogue from %s: %w", name, err)
	}

	for _, tool := range tools {
		full := ToolPrefix + name + "_" + tool.Name
		m.cache.Tools[full] = models.ToolDefinition{
			Name:         full,
			Description:  tool.Description,
			Parameters:   tool.Schema(),
			Source:       models.MCPSource(name),
			Enabled:      true,
			Server:       name,
			OriginalName: tool.Name,
		}
	}
	now := m.now()
	m.cache.LastRefresh = now
	m.cache.ServerStatus[name] = models.MCPServerStatus{
		Connected:   true,
		ToolCount:   len(tools),
		LastRefresh: now,
	}
	if err := m.saveCacheLocked(); err != nil {
		m.logger.Error("mcp cache not saved", "error", err)
	}
	m.logger.Info("mcp catalogue refreshed", "server", name, "tools", len(tools))
	return len(tools), nil
}

// RefreshAll refreshes every enabled server. It is idempotent; per-server
// failures are reported in the result map and do not stop the sweep.
func (m *Manager) RefreshAll(ctx context.Context) map[string]any {
	m.mu.RLock()
	names := make([]string, 0, len(m.servers))
	for name, server := range m.servers {
		if server.Enabled {
			names = append(names, name)
		}
	}
	m.mu.RUnlock()
	sort.Strings(names)

	results := map[string]any{}
	for _, name := range names {
		count, err := m.Refresh(ctx, name)
		if err != nil {
			results[name] = map[string]any{"success": false, "error": err.Error()}
			continue
		}
		results[name] = map[string]any{"success": true, "tools": count}
	}
	return results
}

// Tools returns all cached definitions sorted by name.
func (m *Manager) Tools() []models.ToolDefinition {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.ToolDefinition, 0, len(m.cache.Tools))
	for _, tool := range m.cache.Tools {
		out = append(out, tool)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Resolve maps a namespaced tool name to its server and original name.
// The cache mapping is authoritative; for names not in the cache the
// mcp_<server>_<tool> form is parsed against registered server names,
// longest first, to disambiguate servers containing underscores.
func (m *Manager) Resolve(toolName string) (server, original string, ok bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if tool, found := m.cache.Tools[toolName]; found && tool.Server != "" {
		return tool.Server, tool.OriginalName, true
	}

	rest, found := strings.CutPrefix(toolName, ToolPrefix)
	if !found {
		return "", "", false
	}
	names := make([]string, 0, len(m.servers))
	for name := range m.servers {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return len(names[i]) > len(names[j]) })
	for _, name := range names {
		if cut, found := strings.CutPrefix(rest, name+"_"); found && cut != "" {
			return name, cut, true
		}
	}
	return "", "", false
}

// Call routes a namespaced tool invocation to its server.
func (m *Manager) Call(ctx context.Context, toolName string, arguments map[string]any) (string, error) {
	serverName, original, ok := m.Resolve(toolName)
	if !ok {
		return "", fmt.Errorf("unknown MCP tool: %s", toolName)
	}
	server, found := m.Get(serverName)
	if !found {
		return "", ErrServerNotFound
	}
	if !server.Enabled {
		return "", fmt.Errorf("server %s is disabled", serverName)
	}
	return m.client.CallTool(ctx, server, original, arguments)
}

// CallDirect invokes a tool on a named server without name parsing, backing
// the admin POST /mcp/call/{server}/{tool} endpoint.
func (m *Manager) CallDirect(ctx context.Context, serverName, toolName string, arguments map[string]any) (string, error) {
	server, ok := m.Get(serverName)
	if !ok {
		return "", ErrServerNotFound
	}
	return m.client.CallTool(ctx, server, toolName, arguments)
}

// pruneStaleLocked drops cached tools whose server is gone or disabled.
func (m *Manager) pruneStaleLocked() {
	for name, tool := range m.cache.Tools {
		server, ok := m.servers[tool.Server]
		if !ok || !server.Enabled {
			delete(m.cache.Tools, name)
		}
	}
}

func (m *Manager) clearServerToolsLocked(server string) {
	for name, tool := range m.cache.Tools {
		if tool.Server == server {
			delete(m.cache.Tools, name)
		}
	}
}

func (m *Manager) saveConfigLocked() error {
	return storage.SaveJSON(m.configPath, m.servers)
}

func (m *Manager) saveCacheLocked() error {
	return storage.SaveJSON(m.cachePath, m.cache)
}
