package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/courierai/courier/internal/config"
	"github.com/courierai/courier/internal/permissions"
)

func (s *Server) registerAdminRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /admin/permissions", s.handlePermissionsGet)
	mux.HandleFunc("PUT /admin/permissions", s.handlePermissionsUpdate)
	mux.HandleFunc("GET /admin/sessions", s.handleSessionsList)
	mux.HandleFunc("POST /admin/sessions/clear", s.handleClear)
	mux.HandleFunc("GET /admin/config", s.handleConfigGet)
	mux.HandleFunc("GET /admin/config/schema", s.handleConfigSchema)

	if s.skills != nil {
		mux.HandleFunc("GET /admin/skills", s.handleSkillsList)
		mux.HandleFunc("POST /admin/skills", s.handleSkillsInstall)
	}
}

func (s *Server) handlePermissionsGet(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.perms.Status(s.registry.Names()))
}

func (s *Server) handlePermissionsUpdate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionType string               `json:"session_type"`
		Mode        permissions.Mode     `json:"mode"`
		Tools       permissions.ToolList `json:"tools"`
		Description string               `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.SessionType == "" {
		writeError(w, http.StatusBadRequest, "session_type is required")
		return
	}
	if err := s.perms.Update(req.SessionType, req.Mode, req.Tools, req.Description); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.registry.Invalidate()
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "session_type": req.SessionType})
}

func (s *Server) handleSessionsList(w http.ResponseWriter, _ *http.Request) {
	stats := s.sessions.Stats()
	writeJSON(w, http.StatusOK, map[string]any{"sessions": stats, "count": len(stats)})
}

func (s *Server) handleConfigGet(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.cfg)
}

func (s *Server) handleConfigSchema(w http.ResponseWriter, _ *http.Request) {
	schema, err := config.Schema()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(schema)
}

func (s *Server) handleSkillsList(w http.ResponseWriter, _ *http.Request) {
	installed := s.skills.Installed()
	writeJSON(w, http.StatusOK, map[string]any{"skills": installed, "count": len(installed)})
}

func (s *Server) handleSkillsInstall(w http.ResponseWriter, r *http.Request) {
	// user_id zero installs into the shared tier.
	var req struct {
		UserID int64  `json:"user_id"`
		Name   string `json:"name"`
		Source string `json:"source"`
		URL    string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	skill, err := s.skills.Install(r.Context(), req.UserID, req.Name, req.Source, req.URL)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "skill": skill})
}
