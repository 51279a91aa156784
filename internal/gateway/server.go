// Package gateway exposes the runtime over HTTP: the chat entrypoint the
// adapters post to, the tools API, MCP management and the admin surface.
package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/courierai/courier/internal/agent"
	"github.com/courierai/courier/internal/config"
	"github.com/courierai/courier/internal/mcp"
	"github.com/courierai/courier/internal/permissions"
	"github.com/courierai/courier/internal/scheduler"
	"github.com/courierai/courier/internal/sessions"
	"github.com/courierai/courier/internal/tools"
	"github.com/courierai/courier/internal/tools/skills"
)

// ChatService runs one agent turn. *agent.Agent is the production
// implementation; tests swap in a stub.
type ChatService interface {
	HandleMessage(ctx context.Context, req agent.ChatRequest) (string, error)
	Clear(userID, chatID int64) bool
}

// Server bundles the HTTP surface over the runtime's subsystems.
type Server struct {
	cfg      *config.Config
	chat     ChatService
	sessions *sessions.Manager
	registry *tools.Registry
	perms    *permissions.Engine
	mcp      *mcp.Manager
	skills   *skills.Manager
	tasks    *scheduler.API
	logger   *slog.Logger
	started  time.Time
}

// Option configures the server.
type Option func(*Server)

// WithLogger configures the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithTasks mounts the scheduler API on the same listener.
func WithTasks(api *scheduler.API) Option {
	return func(s *Server) { s.tasks = api }
}

// WithSkills enables the skills admin endpoints.
func WithSkills(manager *skills.Manager) Option {
	return func(s *Server) { s.skills = manager }
}

// New assembles the server. mcpManager may be nil when the bridge is not
// configured; the MCP endpoints then answer 404.
func New(cfg *config.Config, chat ChatService, sessionMgr *sessions.Manager, registry *tools.Registry, perms *permissions.Engine, mcpManager *mcp.Manager, opts ...Option) *Server {
	s := &Server{
		cfg:      cfg,
		chat:     chat,
		sessions: sessionMgr,
		registry: registry,
		perms:    perms,
		mcp:      mcpManager,
		logger:   slog.Default(),
		started:  time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("POST /api/clear", s.handleClear)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.Handle("GET /metrics", promhttp.Handler())

	s.registerToolRoutes(mux)
	s.registerAdminRoutes(mux)
	if s.tasks != nil {
		s.tasks.Register(mux)
	}
	return mux
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req agent.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.UserID == 0 || req.Message == "" {
		writeError(w, http.StatusBadRequest, "user_id and message are required")
		return
	}
	if req.ChatID == 0 {
		req.ChatID = req.UserID
	}

	reply, err := s.chat.HandleMessage(r.Context(), req)
	if err != nil {
		s.logger.Error("chat turn failed", "user", req.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "agent failure")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"response": reply})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID int64 `json:"user_id"`
		ChatID int64 `json:"chat_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.ChatID == 0 {
		req.ChatID = req.UserID
	}

	if s.chat.Clear(req.UserID, req.ChatID) {
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Session cleared"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": false, "message": "No active session"})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"sessions":       s.sessions.Count(),
		"uptime_seconds": int(time.Since(s.started).Seconds()),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "error": msg})
}
