package mcp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/courierai/courier/internal/storage"
	"github.com/courierai/courier/pkg/models"
)

func newTestManager(t *testing.T, catalogueJSON string) (*Manager, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(catalogueJSON))
	}))
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	m := NewManager(
		filepath.Join(dir, "mcp_servers.json"),
		filepath.Join(dir, "mcp_tools_cache.json"),
		WithClient(NewClient(WithHTTPClient(srv.Client()))),
	)
	return m, srv
}

const dockerCatalogue = `{"jsonrpc":"2.0","id":1,"result":{"tools":[{"name":"ps","description":"list"},{"name":"logs","description":"logs"}]}}`

func TestManager_AddRefreshRemove(t *testing.T) {
	m, srv := newTestManager(t, dockerCatalogue)

	count, err := m.Add(context.Background(), models.MCPServer{Name: "docker", URL: srv.URL})
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if count != 2 {
		t.Errorf("Add() loaded %d tools, want 2", count)
	}

	tools := m.Tools()
	if len(tools) != 2 {
		t.Fatalf("Tools() = %d entries, want 2", len(tools))
	}
	if tools[1].Name != "mcp_docker_ps" {
		t.Errorf("tool name = %q, want mcp_docker_ps", tools[1].Name)
	}
	if tools[1].Server != "docker" || tools[1].OriginalName != "ps" {
		t.Errorf("cache entry mapping = %q/%q", tools[1].Server, tools[1].OriginalName)
	}

	if err := m.Remove("docker"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if len(m.Tools()) != 0 {
		t.Error("tools not cleared after Remove")
	}
	if err := m.Remove("docker"); err != ErrServerNotFound {
		t.Errorf("second Remove() error = %v, want ErrServerNotFound", err)
	}
}

func TestManager_Resolve_UnderscoreServer(t *testing.T) {
	m, srv := newTestManager(t, dockerCatalogue)

	// Two servers where one name is a prefix of the other; the longer name
	// must win when parsing uncached tool names.
	if _, err := m.Add(context.Background(), models.MCPServer{Name: "home", URL: srv.URL}); err != nil {
		t.Fatalf("Add(home) error = %v", err)
	}
	if _, err := m.Add(context.Background(), models.MCPServer{Name: "home_assistant", URL: srv.URL}); err != nil {
		t.Fatalf("Add(home_assistant) error = %v", err)
	}

	server, original, ok := m.Resolve("mcp_home_assistant_turn_on")
	if !ok {
		t.Fatal("Resolve() failed")
	}
	if server != "home_assistant" || original != "turn_on" {
		t.Errorf("Resolve() = %q/%q, want home_assistant/turn_on", server, original)
	}

	// Cached entries resolve through the explicit mapping.
	server, original, ok = m.Resolve("mcp_home_ps")
	if !ok || server != "home" || original != "ps" {
		t.Errorf("Resolve(cached) = %q/%q ok=%v", server, original, ok)
	}

	if _, _, ok := m.Resolve("read_file"); ok {
		t.Error("Resolve(read_file) should fail for non-MCP names")
	}
}

func TestManager_PersistenceRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(dockerCatalogue))
	}))
	defer srv.Close()

	dir := t.TempDir()
	configPath := filepath.Join(dir, "mcp_servers.json")
	cachePath := filepath.Join(dir, "mcp_tools_cache.json")

	m := NewManager(configPath, cachePath, WithClient(NewClient(WithHTTPClient(srv.Client()))))
	if _, err := m.Add(context.Background(), models.MCPServer{Name: "docker", URL: srv.URL}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	// Persisted files parse back to the in-memory state.
	var servers map[string]models.MCPServer
	if err := storage.LoadJSON(configPath, &servers); err != nil {
		t.Fatalf("LoadJSON(config) error = %v", err)
	}
	if servers["docker"].URL != srv.URL {
		t.Errorf("persisted server url = %q", servers["docker"].URL)
	}

	// A fresh manager sees the same catalogue without refetching.
	m2 := NewManager(configPath, cachePath)
	if len(m2.Tools()) != 2 {
		t.Errorf("reloaded manager has %d tools, want 2", len(m2.Tools()))
	}

	status := m2.Servers()
	if len(status) != 1 {
		t.Fatalf("Servers() = %d entries", len(status))
	}
	if status[0]["tool_count"] != 2 {
		t.Errorf("tool_count = %v, want 2", status[0]["tool_count"])
	}
}

func TestManager_StaleToolsPruned(t *testing.T) {
	dir := t.TempDir()
	cachePath := filepath.Join(dir, "mcp_tools_cache.json")

	// Cache references a server that no longer exists.
	stale := newCache()
	stale.Tools["mcp_gone_x"] = models.ToolDefinition{Name: "mcp_gone_x", Server: "gone", OriginalName: "x"}
	if err := storage.SaveJSON(cachePath, stale); err != nil {
		t.Fatalf("SaveJSON() error = %v", err)
	}

	m := NewManager(filepath.Join(dir, "mcp_servers.json"), cachePath)
	if len(m.Tools()) != 0 {
		t.Errorf("stale tools survived load: %v", m.Tools())
	}
}
