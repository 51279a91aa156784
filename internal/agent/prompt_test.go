package agent

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/courierai/courier/internal/sessions"
	"github.com/courierai/courier/pkg/models"
)

func promptNow() time.Time {
	return time.Date(2024, 3, 15, 9, 30, 0, 0, time.UTC)
}

func TestPromptBuilder_Build(t *testing.T) {
	dir := t.TempDir()
	template := "Workspace {{cwd}} on {{date}}.\nTools: {{tools}}\nPorts: {{userPorts}}\nSkills:\n{{skills}}"
	path := filepath.Join(dir, "system.txt")
	if err := os.WriteFile(path, []byte(template), 0o644); err != nil {
		t.Fatal(err)
	}

	mgr := sessions.NewManager(t.TempDir())
	session, err := mgr.Get(42, 100, "private", "bot", "alice")
	if err != nil {
		t.Fatal(err)
	}

	b := NewPromptBuilder(path, nil, WithPromptNow(promptNow))
	defs := []models.ToolDefinition{
		{Name: "read_file", Description: "Read a file from the workspace"},
		{Name: "run_command", Description: "Run a shell command"},
	}
	prompt := b.Build(session, defs)

	for _, want := range []string{
		"Workspace " + session.WorkDir + " on 2024-03-15.",
		"Tools: read_file - Read a file from the workspace\nrun_command - Run a shell command",
		"Ports: 4052-4061",
		"Skills:\n(none)",
		"\nUser: @alice (id=42)",
		"\nTime: 2024-03-15 09:30",
		"\nSource: bot",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestPromptBuilder_FallbackTemplate(t *testing.T) {
	mgr := sessions.NewManager(t.TempDir())
	session, _ := mgr.Get(1, 1, "private", "bot", "bob")

	b := NewPromptBuilder(filepath.Join(t.TempDir(), "missing.txt"), nil, WithPromptNow(promptNow))
	prompt := b.Build(session, nil)
	if !strings.Contains(prompt, "helpful AI assistant") {
		t.Errorf("fallback template not used:\n%s", prompt)
	}
	if !strings.Contains(prompt, "User: @bob (id=1)") {
		t.Errorf("footer missing:\n%s", prompt)
	}
}

func TestUserPorts(t *testing.T) {
	if got := userPorts(0); got != "4010-4019" {
		t.Errorf("userPorts(0) = %q", got)
	}
	if got := userPorts(123456789); got != userPorts(789) {
		t.Errorf("port range should key on user_id mod 1000")
	}
}

func TestCleanResponse(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"plain reply", "plain reply"},
		{"<thinking>let me see</thinking>the answer", "the answer"},
		{"<THINKING>caps\nmultiline</THINKING> result", "result"},
		{"<final>done</final>", "done"},
		{"<response>ok</response> trailing", "ok trailing"},
		{"  padded  ", "padded"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := CleanResponse(tt.in); got != tt.want {
			t.Errorf("CleanResponse(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
