package gateway

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/courierai/courier/internal/mcp"
	"github.com/courierai/courier/pkg/models"
)

func (s *Server) registerToolRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /tools", s.handleToolsAll)
	mux.HandleFunc("GET /tools/enabled", s.handleToolsEnabled)
	mux.HandleFunc("GET /tools/base", s.handleToolsBase)
	mux.HandleFunc("GET /tools/search", s.handleToolsSearch)
	mux.HandleFunc("POST /tools/load", s.handleToolsLoad)
	mux.HandleFunc("PUT /tools/{name}", s.handleToolToggle)
	mux.HandleFunc("DELETE /tools/{name}", s.handleToolReset)

	if s.mcp != nil {
		mux.HandleFunc("GET /mcp/servers", s.handleMCPServers)
		mux.HandleFunc("POST /mcp/servers", s.handleMCPAdd)
		mux.HandleFunc("DELETE /mcp/servers/{name}", s.handleMCPRemove)
		mux.HandleFunc("POST /mcp/servers/{name}/refresh", s.handleMCPServerRefresh)
		mux.HandleFunc("POST /mcp/refresh-all", s.handleMCPRefreshAll)
		mux.HandleFunc("POST /mcp/call/{server}/{tool}", s.handleMCPCall)
	}
}

func toolListing(defs []models.ToolDefinition) map[string]any {
	if defs == nil {
		defs = []models.ToolDefinition{}
	}
	return map[string]any{"tools": defs, "count": len(defs)}
}

func (s *Server) handleToolsAll(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, toolListing(s.registry.All()))
}

func (s *Server) handleToolsEnabled(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lazy := s.cfg.Agent.LazyToolLoading
	if raw := q.Get("lazy"); raw != "" {
		lazy = raw == "true" || raw == "1"
	}
	userID, _ := strconv.ParseInt(q.Get("user_id"), 10, 64)
	writeJSON(w, http.StatusOK, toolListing(s.registry.Enabled(lazy, q.Get("source"), userID)))
}

func (s *Server) handleToolsBase(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, toolListing(s.registry.Base()))
}

func (s *Server) handleToolsSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 0
	if raw := q.Get("limit"); raw != "" {
		limit, _ = strconv.Atoi(raw)
	}
	// q is accepted as a shorthand for query.
	query := q.Get("query")
	if query == "" {
		query = q.Get("q")
	}
	writeJSON(w, http.StatusOK, toolListing(s.registry.Search(query, q.Get("source"), limit)))
}

func (s *Server) handleToolsLoad(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Names []string `json:"names"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	loaded, notFound := s.registry.Load(req.Names)
	if loaded == nil {
		loaded = []models.ToolDefinition{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tools":     loaded,
		"count":     len(loaded),
		"not_found": notFound,
	})
}

func (s *Server) handleToolToggle(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.registry.SetEnabled(name, req.Enabled); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "tool": name, "enabled": req.Enabled})
}

func (s *Server) handleToolReset(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := s.registry.Reset(name); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "tool": name})
}

func (s *Server) handleMCPServers(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"servers": s.mcp.Servers()})
}

func (s *Server) handleMCPAdd(w http.ResponseWriter, r *http.Request) {
	var server models.MCPServer
	if err := json.NewDecoder(r.Body).Decode(&server); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if server.Name == "" || server.URL == "" {
		writeError(w, http.StatusBadRequest, "name and url are required")
		return
	}

	count, err := s.mcp.Add(r.Context(), server)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.registry.Invalidate()
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "server": server.Name, "tools": count})
}

func (s *Server) handleMCPRemove(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := s.mcp.Remove(name); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	s.registry.Invalidate()
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "server": name})
}

func (s *Server) handleMCPServerRefresh(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	count, err := s.mcp.Refresh(r.Context(), name)
	if err != nil {
		if errors.Is(err, mcp.ErrServerNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.registry.Invalidate()
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "server": name, "tools": count})
}

func (s *Server) handleMCPRefreshAll(w http.ResponseWriter, r *http.Request) {
	report := s.mcp.RefreshAll(r.Context())
	s.registry.Invalidate()
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleMCPCall(w http.ResponseWriter, r *http.Request) {
	server := r.PathValue("server")
	tool := r.PathValue("tool")

	args := map[string]any{}
	if err := json.NewDecoder(r.Body).Decode(&args); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	output, err := s.mcp.CallDirect(r.Context(), server, tool, args)
	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]any{"success": false, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "output": output})
}
