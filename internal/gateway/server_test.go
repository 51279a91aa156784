package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/courierai/courier/internal/agent"
	"github.com/courierai/courier/internal/config"
	"github.com/courierai/courier/internal/mcp"
	"github.com/courierai/courier/internal/permissions"
	"github.com/courierai/courier/internal/sessions"
	"github.com/courierai/courier/internal/tools"
	"github.com/courierai/courier/internal/tools/skills"
	"github.com/courierai/courier/pkg/models"
)

// stubChat records requests and returns a canned reply.
type stubChat struct {
	sessions *sessions.Manager
	lastReq  agent.ChatRequest
	reply    string
	err      error
}

func (c *stubChat) HandleMessage(_ context.Context, req agent.ChatRequest) (string, error) {
	c.lastReq = req
	if c.err != nil {
		return "", c.err
	}
	if _, err := c.sessions.Get(req.UserID, req.ChatID, req.ChatType, req.Source, req.Username); err != nil {
		return "", err
	}
	return c.reply, nil
}

func (c *stubChat) Clear(userID, chatID int64) bool {
	return c.sessions.Clear(userID, chatID)
}

// pingTool is a minimal builtin for registry-backed endpoints.
type pingTool struct{}

func (pingTool) Name() string            { return "ping" }
func (pingTool) Description() string     { return "Reply with pong" }
func (pingTool) Schema() json.RawMessage { return json.RawMessage(`{"type":"object"}`) }
func (pingTool) Execute(_ context.Context, _ json.RawMessage, _ *models.ToolContext) (*models.ToolResult, error) {
	return models.TextResult("pong"), nil
}

type testEnv struct {
	server *Server
	chat   *stubChat
	http   *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cfg := config.Default()
	cfg.Workspace = t.TempDir()
	cfg.DataDir = t.TempDir()
	cfg.ApplyDefaults()
	cfg.Agent.LazyToolLoading = false

	// One skill in user 9's tier; the shared tier stays empty.
	skillsDir := filepath.Join(cfg.DataDir, "skills")
	noteDir := filepath.Join(skillsDir, "user_9", "notes")
	if err := os.MkdirAll(noteDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(noteDir, "SKILL.md"), []byte("Keep meeting notes."), 0o644); err != nil {
		t.Fatal(err)
	}

	sessionMgr := sessions.NewManager(cfg.Workspace)
	perms := permissions.NewEngine(filepath.Join(cfg.DataDir, "perms.json"))
	registry := tools.NewRegistry(perms, cfg.Tools.ConfigFile,
		tools.WithSkills(skills.NewManager(skillsDir)))
	registry.Register(pingTool{}, models.SourceBuiltin)
	mcpManager := mcp.NewManager(cfg.Tools.MCPConfigFile, cfg.Tools.MCPCacheFile)

	chat := &stubChat{sessions: sessionMgr, reply: "hi there"}
	server := New(cfg, chat, sessionMgr, registry, perms, mcpManager)
	srv := httptest.NewServer(server.Handler())
	t.Cleanup(srv.Close)

	return &testEnv{server: server, chat: chat, http: srv}
}

func (e *testEnv) do(t *testing.T, method, path, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, e.http.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	resp, err := e.http.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	var decoded map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

func TestChatEndpoint(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodPost, "/api/chat",
		`{"user_id": 42, "chat_id": 100, "message": "hello", "username": "alice", "source": "bot", "chat_type": "private"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body["response"] != "hi there" {
		t.Errorf("response = %v", body)
	}
	if env.chat.lastReq.UserID != 42 || env.chat.lastReq.Username != "alice" {
		t.Errorf("request not forwarded: %+v", env.chat.lastReq)
	}

	// chat_id defaults to user_id for direct messages
	_, _ = env.do(t, http.MethodPost, "/api/chat", `{"user_id": 7, "message": "hi"}`)
	if env.chat.lastReq.ChatID != 7 {
		t.Errorf("chat_id = %d, want 7", env.chat.lastReq.ChatID)
	}
}

func TestChatEndpoint_Validation(t *testing.T) {
	env := newTestEnv(t)

	for _, body := range []string{`not json`, `{"user_id": 0, "message": "x"}`, `{"user_id": 1, "message": ""}`} {
		resp, _ := env.do(t, http.MethodPost, "/api/chat", body)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("body %q: status = %d, want 400", body, resp.StatusCode)
		}
	}
}

func TestClearEndpoint(t *testing.T) {
	env := newTestEnv(t)

	_, _ = env.do(t, http.MethodPost, "/api/chat", `{"user_id": 42, "chat_id": 100, "message": "hello"}`)

	resp, body := env.do(t, http.MethodPost, "/api/clear", `{"user_id": 42, "chat_id": 100}`)
	if resp.StatusCode != http.StatusOK || body["success"] != true {
		t.Errorf("clear = %d %v", resp.StatusCode, body)
	}

	_, body = env.do(t, http.MethodPost, "/api/clear", `{"user_id": 9, "chat_id": 9}`)
	if body["success"] != false {
		t.Errorf("clear of unknown session = %v", body)
	}
}

func TestHealthzAndMetrics(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodGet, "/healthz", "")
	if resp.StatusCode != http.StatusOK || body["status"] != "ok" {
		t.Errorf("healthz = %d %v", resp.StatusCode, body)
	}

	resp, _ = env.do(t, http.MethodGet, "/metrics", "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("metrics status = %d", resp.StatusCode)
	}
}

func TestToolsEndpoints(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodGet, "/tools", "")
	if resp.StatusCode != http.StatusOK || body["count"].(float64) < 1 {
		t.Fatalf("tools = %d %v", resp.StatusCode, body)
	}

	resp, body = env.do(t, http.MethodGet, "/tools/search?query=pong", "")
	if resp.StatusCode != http.StatusOK || body["count"].(float64) != 1 {
		t.Errorf("search = %v", body)
	}
	// q is the short alias.
	_, body = env.do(t, http.MethodGet, "/tools/search?q=pong", "")
	if body["count"].(float64) != 1 {
		t.Errorf("search alias = %v", body)
	}

	resp, body = env.do(t, http.MethodPost, "/tools/load", `{"names": ["ping", "ghost"]}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("load status = %d", resp.StatusCode)
	}
	if nf := body["not_found"].([]any); len(nf) != 1 || nf[0] != "ghost" {
		t.Errorf("not_found = %v", body["not_found"])
	}

	resp, _ = env.do(t, http.MethodPut, "/tools/ping", `{"enabled": false}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("toggle status = %d", resp.StatusCode)
	}
	_, body = env.do(t, http.MethodGet, "/tools/enabled?lazy=false", "")
	if body["count"].(float64) != 0 {
		t.Errorf("disabled tool still listed: %v", body)
	}

	resp, _ = env.do(t, http.MethodPut, "/tools/ghost", `{"enabled": true}`)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("toggle unknown tool status = %d", resp.StatusCode)
	}

	resp, _ = env.do(t, http.MethodDelete, "/tools/ping", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("reset status = %d", resp.StatusCode)
	}
	_, body = env.do(t, http.MethodGet, "/tools/enabled?lazy=false", "")
	if body["count"].(float64) != 1 {
		t.Errorf("reset did not restore tool: %v", body)
	}
}

func TestToolsEnabledUserScope(t *testing.T) {
	env := newTestEnv(t)

	_, body := env.do(t, http.MethodGet, "/tools/enabled?lazy=false", "")
	if body["count"].(float64) != 1 {
		t.Fatalf("default scope = %v", body)
	}

	_, body = env.do(t, http.MethodGet, "/tools/enabled?lazy=false&user_id=9", "")
	if body["count"].(float64) != 2 {
		t.Fatalf("user scope = %v", body)
	}
	found := false
	for _, raw := range body["tools"].([]any) {
		def := raw.(map[string]any)
		if def["name"] == "skill_notes" && def["source"] == "skill:notes" {
			found = true
		}
	}
	if !found {
		t.Errorf("skill tool missing from user scope: %v", body["tools"])
	}
}

func TestPermissionsEndpoints(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodGet, "/admin/permissions", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("permissions status = %d", resp.StatusCode)
	}
	if _, ok := body["session_types"]; !ok {
		t.Errorf("permissions body = %v", body)
	}

	resp, _ = env.do(t, http.MethodPut, "/admin/permissions",
		`{"session_type": "group", "mode": "denylist", "tools": ["send_dm", "run_command"]}`)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("permissions update status = %d", resp.StatusCode)
	}

	resp, _ = env.do(t, http.MethodPut, "/admin/permissions", `{"mode": "denylist"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing session_type status = %d", resp.StatusCode)
	}
}

func TestSessionsEndpoints(t *testing.T) {
	env := newTestEnv(t)

	_, _ = env.do(t, http.MethodPost, "/api/chat", `{"user_id": 1, "chat_id": 2, "message": "hi"}`)

	resp, body := env.do(t, http.MethodGet, "/admin/sessions", "")
	if resp.StatusCode != http.StatusOK || body["count"].(float64) != 1 {
		t.Errorf("sessions = %d %v", resp.StatusCode, body)
	}

	resp, body = env.do(t, http.MethodPost, "/admin/sessions/clear", `{"user_id": 1, "chat_id": 2}`)
	if resp.StatusCode != http.StatusOK || body["success"] != true {
		t.Errorf("admin clear = %d %v", resp.StatusCode, body)
	}
}

func TestConfigEndpoints(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodGet, "/admin/config", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("config status = %d", resp.StatusCode)
	}
	if _, ok := body["agent"]; !ok {
		t.Errorf("config body = %v", body)
	}

	resp, body = env.do(t, http.MethodGet, "/admin/config/schema", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("schema status = %d", resp.StatusCode)
	}
	if body["$schema"] == nil && body["properties"] == nil {
		t.Errorf("schema body = %v", body)
	}
}

func TestMCPEndpoints(t *testing.T) {
	env := newTestEnv(t)

	catalogue := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string `json:"method"`
			ID     any    `json:"id"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		switch req.Method {
		case "tools/list":
			_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{"tools":[{"name":"lookup","description":"Look things up","inputSchema":{"type":"object"}}]}}`))
		case "tools/call":
			_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":2,"result":{"content":[{"type":"text","text":"found it"}]}}`))
		}
	}))
	defer catalogue.Close()

	resp, body := env.do(t, http.MethodPost, "/mcp/servers",
		`{"name": "kb", "url": "`+catalogue.URL+`", "transport": "http", "enabled": true}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("mcp add = %d %v", resp.StatusCode, body)
	}
	if body["tools"].(float64) != 1 {
		t.Errorf("mcp add tools = %v", body["tools"])
	}

	resp, body = env.do(t, http.MethodGet, "/mcp/servers", "")
	if resp.StatusCode != http.StatusOK || len(body["servers"].([]any)) != 1 {
		t.Errorf("mcp servers = %v", body)
	}

	resp, body = env.do(t, http.MethodPost, "/mcp/servers/kb/refresh", "")
	if resp.StatusCode != http.StatusOK || body["tools"].(float64) != 1 {
		t.Errorf("mcp server refresh = %d %v", resp.StatusCode, body)
	}
	resp, _ = env.do(t, http.MethodPost, "/mcp/servers/ghost/refresh", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("mcp refresh missing server = %d", resp.StatusCode)
	}
	resp, body = env.do(t, http.MethodPost, "/mcp/refresh-all", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("mcp refresh-all = %d", resp.StatusCode)
	}
	if report, ok := body["kb"].(map[string]any); !ok || report["success"] != true {
		t.Errorf("refresh-all report = %v", body)
	}

	resp, body = env.do(t, http.MethodPost, "/mcp/call/kb/lookup", `{"query": "x"}`)
	if resp.StatusCode != http.StatusOK || body["output"] != "found it" {
		t.Errorf("mcp call = %d %v", resp.StatusCode, body)
	}

	resp, _ = env.do(t, http.MethodDelete, "/mcp/servers/kb", "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("mcp remove = %d", resp.StatusCode)
	}
	resp, _ = env.do(t, http.MethodDelete, "/mcp/servers/kb", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("mcp remove missing = %d", resp.StatusCode)
	}
}
