package models

import "time"

// MCPServer is a configured remote tool server speaking JSON-RPC 2.0.
type MCPServer struct {
	Name        string `json:"name"`
	URL         string `json:"url"`
	Transport   string `json:"transport"` // only "http" is supported
	APIKey      string `json:"api_key,omitempty"`
	Enabled     bool   `json:"enabled"`
	Description string `json:"description,omitempty"`
}

// MCPServerStatus records the outcome of the last catalogue refresh.
type MCPServerStatus struct {
	Connected   bool      `json:"connected"`
	ToolCount   int       `json:"tool_count"`
	LastRefresh time.Time `json:"last_refresh,omitempty"`
	Error       string    `json:"error,omitempty"`
}
