package shell

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/courierai/courier/internal/tools"
	"github.com/courierai/courier/pkg/models"
)

func run(t *testing.T, tool *RunCommand, command string, tc *models.ToolContext) (*models.ToolResult, error) {
	t.Helper()
	args, _ := json.Marshal(map[string]string{"command": command})
	return tool.Execute(context.Background(), args, tc)
}

func TestRunCommand(t *testing.T) {
	tc := &models.ToolContext{WorkDir: t.TempDir(), ChatType: "private"}
	res, err := run(t, NewRunCommand(), "echo hello && pwd", tc)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !res.Success {
		t.Fatalf("Execute() = %+v", res)
	}
	if !strings.Contains(res.Output, "hello") || !strings.Contains(res.Output, tc.WorkDir) {
		t.Errorf("output = %q", res.Output)
	}
}

func TestRunCommand_Failure(t *testing.T) {
	tc := &models.ToolContext{WorkDir: t.TempDir()}
	res, err := run(t, NewRunCommand(), "ls /definitely/not/here", tc)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if res.Success {
		t.Fatal("failing command reported success")
	}
	if !strings.Contains(res.Error, "command failed") {
		t.Errorf("error = %q", res.Error)
	}
}

func TestRunCommand_Guards(t *testing.T) {
	tc := &models.ToolContext{WorkDir: t.TempDir()}
	for _, command := range []string{
		"cat /etc/shadow",
		"rm -rf / --no-preserve-root",
		":(){ :|:& };:",
	} {
		_, err := run(t, NewRunCommand(), command, tc)
		var sv *tools.SecurityViolationError
		if !errors.As(err, &sv) {
			t.Errorf("command %q: error = %v, want SecurityViolationError", command, err)
		}
	}
}

func TestRunCommand_SandboxRouting(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"success":true,"output":"sandboxed"}`))
	}))
	defer srv.Close()

	tool := NewRunCommand(WithSandboxURL(srv.URL), WithHTTPClient(srv.Client()))
	tc := &models.ToolContext{WorkDir: t.TempDir(), ChatType: "sandbox", UserID: 7}

	res, err := run(t, tool, "uname -a", tc)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if res.Output != "sandboxed" {
		t.Errorf("output = %q", res.Output)
	}
	if got["command"] != "uname -a" || got["user_id"] != float64(7) {
		t.Errorf("sandbox payload = %v", got)
	}
}
