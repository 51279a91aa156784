// Package mcp bridges the tool dispatcher to remote MCP servers speaking
// JSON-RPC 2.0 over a single HTTP endpoint (tools/list, tools/call).
package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/courierai/courier/pkg/models"
)

const (
	defaultListTimeout = 10 * time.Second
	defaultCallTimeout = 60 * time.Second
)

// RemoteTool is a catalogue entry as returned by tools/list.
type RemoteTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
	// Parameters is the fallback field used by non-standard servers.
	Parameters json.RawMessage `json:"parameters"`
}

// Schema returns the parameter schema, preferring inputSchema.
func (t RemoteTool) Schema() json.RawMessage {
	if len(t.InputSchema) > 0 && string(t.InputSchema) != "null" {
		return t.InputSchema
	}
	if len(t.Parameters) > 0 && string(t.Parameters) != "null" {
		return t.Parameters
	}
	return json.RawMessage(`{"type":"object","properties":{}}`)
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

// Client issues JSON-RPC calls against MCP servers.
type Client struct {
	httpClient  *http.Client
	listTimeout time.Duration
	callTimeout time.Duration
}

// ClientOption configures the client.
type ClientOption func(*Client)

// WithHTTPClient overrides the HTTP client, mainly for tests.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeouts overrides the catalogue and call deadlines.
func WithTimeouts(list, call time.Duration) ClientOption {
	return func(c *Client) {
		if list > 0 {
			c.listTimeout = list
		}
		if call > 0 {
			c.callTimeout = call
		}
	}
}

// NewClient creates an MCP client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		httpClient:  &http.Client{},
		listTimeout: defaultListTimeout,
		callTimeout: defaultCallTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) post(ctx context.Context, server models.MCPServer, method string, params any, timeout time.Duration) (json.RawMessage, error) {
	if server.Transport != "" && server.Transport != "http" {
		return nil, fmt.Errorf("unsupported transport: %s", server.Transport)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, server.URL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if server.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+server.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("MCP API error: %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, err
	}
	var rpcResp rpcResponse
	if err := json.Unmarshal(data, &rpcResp); err != nil {
		return nil, fmt.Errorf("decode MCP response: %w", err)
	}
	if rpcResp.Error != nil {
		return nil, fmt.Errorf("%s", rpcResp.Error.Message)
	}
	return rpcResp.Result, nil
}

// ListTools fetches the server's tool catalogue.
func (c *Client) ListTools(ctx context.Context, server models.MCPServer) ([]RemoteTool, error) {
	result, err := c.post(ctx, server, "tools/list", map[string]any{}, c.listTimeout)
	if err != nil {
		return nil, err
	}
	var payload struct {
		Tools []RemoteTool `json:"tools"`
	}
	if err := json.Unmarshal(result, &payload); err != nil {
		return nil, fmt.Errorf("decode tools/list result: %w", err)
	}
	return payload.Tools, nil
}

// CallTool invokes a tool by its original name. The output is the
// concatenation of text content entries, or the raw result when the server
// returns a non-standard shape.
func (c *Client) CallTool(ctx context.Context, server models.MCPServer, name string, arguments map[string]any) (string, error) {
	if arguments == nil {
		arguments = map[string]any{}
	}
	result, err := c.post(ctx, server, "tools/call", map[string]any{
		"name":      name,
		"arguments": arguments,
	}, c.callTimeout)
	if err != nil {
		return "", err
	}

	var payload struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		IsError bool `json:"isError"`
	}
	if err := json.Unmarshal(result, &payload); err == nil && len(payload.Content) > 0 {
		var buf bytes.Buffer
		for _, entry := range payload.Content {
			if entry.Type == "text" {
				buf.WriteString(entry.Text)
			}
		}
		if payload.IsError {
			return "", fmt.Errorf("%s", buf.String())
		}
		return buf.String(), nil
	}
	return string(result), nil
}
