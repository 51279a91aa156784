// Package shell implements run_command. Commands run inside the session
// workspace; sandbox sessions are routed to the sandbox executor service.
package shell

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/courierai/courier/internal/tools"
	"github.com/courierai/courier/pkg/models"
)

const maxOutputBytes = 100_000

// guards reject commands before they run. The agent loop counts these
// against the session's security budget.
var guards = []struct {
	needle string
	kind   string
	detail string
}{
	{":(){", "fork-bomb", "fork bomb pattern in command"},
	{"rm -rf /", "destructive-command", "rm -rf on filesystem root"},
	{"mkfs", "destructive-command", "mkfs would destroy a filesystem"},
	{"/etc/shadow", "secret-access", "command reads /etc/shadow"},
	{"/etc/passwd", "secret-access", "command reads /etc/passwd"},
	{"/proc/self/environ", "secret-access", "command reads process env secrets"},
}

// RunCommand executes shell commands.
type RunCommand struct {
	sandboxURL string
	httpClient *http.Client
}

// Option configures the tool.
type Option func(*RunCommand)

// WithSandboxURL routes sandbox-session commands to the sandbox executor.
func WithSandboxURL(url string) Option {
	return func(t *RunCommand) { t.sandboxURL = url }
}

// WithHTTPClient overrides the HTTP client used for sandbox routing.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(t *RunCommand) {
		if httpClient != nil {
			t.httpClient = httpClient
		}
	}
}

func NewRunCommand(opts ...Option) *RunCommand {
	t := &RunCommand{httpClient: &http.Client{Timeout: 125 * time.Second}}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *RunCommand) Name() string { return "run_command" }

func (t *RunCommand) Description() string {
	return "Run a shell command. Use for: git, npm, pip, python, system ops."
}

func (t *RunCommand) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"command": {"type": "string", "description": "Shell command to execute"}
		},
		"required": ["command"]
	}`)
}

func (t *RunCommand) Execute(ctx context.Context, args json.RawMessage, tc *models.ToolContext) (*models.ToolResult, error) {
	var req struct {
		Command string `json:"command"`
	}
	if err := json.Unmarshal(args, &req); err != nil {
		return nil, err
	}
	command := strings.TrimSpace(req.Command)
	if command == "" {
		return models.ErrorResult("command required"), nil
	}

	for _, g := range guards {
		if strings.Contains(command, g.needle) {
			return nil, &tools.SecurityViolationError{Kind: g.kind, Detail: g.detail}
		}
	}

	if tc.ChatType == "sandbox" && t.sandboxURL != "" {
		return t.executeSandboxed(ctx, command, tc)
	}
	return t.executeLocal(ctx, command, tc)
}

func (t *RunCommand) executeLocal(ctx context.Context, command string, tc *models.ToolContext) (*models.ToolResult, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = tc.WorkDir
	cmd.Env = []string{
		"PATH=" + os.Getenv("PATH"),
		"HOME=" + tc.WorkDir,
		"LANG=" + os.Getenv("LANG"),
	}

	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	err := cmd.Run()

	output := buf.String()
	if len(output) > maxOutputBytes {
		output = output[:maxOutputBytes] + "\n... (output truncated)"
	}
	if err != nil {
		if ctx.Err() != nil {
			return models.ErrorResult("command cancelled: %v", ctx.Err()), nil
		}
		res := models.ErrorResult("command failed: %v", err)
		res.Output = output
		return res, nil
	}
	if strings.TrimSpace(output) == "" {
		output = "(no output)"
	}
	return models.TextResult(output), nil
}

// executeSandboxed forwards the command to the sandbox executor, which runs
// it inside an isolated container with the session workspace mounted.
func (t *RunCommand) executeSandboxed(ctx context.Context, command string, tc *models.ToolContext) (*models.ToolResult, error) {
	body, err := json.Marshal(map[string]any{
		"command": command,
		"user_id": tc.UserID,
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.sandboxURL+"/exec", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sandbox executor unavailable: %w", err)
	}
	defer resp.Body.Close()

	var out struct {
		Success bool   `json:"success"`
		Output  string `json:"output"`
		Error   string `json:"error"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
		return nil, fmt.Errorf("sandbox response: %w", err)
	}
	if !out.Success {
		// Sandbox denials come back as text; the classifier picks them up.
		res := models.ErrorResult("%s", out.Error)
		res.Output = out.Output
		return res, nil
	}
	return models.TextResult(out.Output), nil
}
