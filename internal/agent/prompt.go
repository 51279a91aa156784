package agent

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/courierai/courier/internal/sessions"
	"github.com/courierai/courier/internal/tools/skills"
	"github.com/courierai/courier/pkg/models"
)

// defaultSystemPrompt is used when no template file is configured or the
// configured one cannot be read.
const defaultSystemPrompt = `You are a helpful AI assistant with access to a Linux environment.

You can:
- Execute shell commands
- Read, write, edit and delete files
- Search the web
- Schedule reminders and tasks

Always be helpful and concise. Think step by step when solving complex problems.`

var (
	thinkingBlockRe = regexp.MustCompile(`(?i)<thinking>[\s\S]*?</thinking>`)
	strayTagRe      = regexp.MustCompile(`(?i)</?(final|response|answer|output|reply|thinking)>`)
)

// CleanResponse strips model artifacts (thinking blocks, stray XML-ish
// tags) from a reply before it reaches the user.
func CleanResponse(text string) string {
	if text == "" {
		return ""
	}
	text = thinkingBlockRe.ReplaceAllString(text, "")
	text = strayTagRe.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// PromptBuilder renders the system prompt for a turn. The template comes
// from disk so operators can iterate on it without a rebuild; placeholders
// {{cwd}}, {{date}}, {{tools}}, {{userPorts}} and {{skills}} are expanded,
// and a per-turn footer pins the user, workspace, time and source.
type PromptBuilder struct {
	path   string
	skills *skills.Manager
	now    func() time.Time
}

// PromptOption configures the builder.
type PromptOption func(*PromptBuilder)

// WithPromptNow overrides the clock for tests.
func WithPromptNow(now func() time.Time) PromptOption {
	return func(b *PromptBuilder) {
		if now != nil {
			b.now = now
		}
	}
}

// NewPromptBuilder creates a builder reading the template at path.
func NewPromptBuilder(path string, skillMgr *skills.Manager, opts ...PromptOption) *PromptBuilder {
	b := &PromptBuilder{path: path, skills: skillMgr, now: time.Now}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build renders the full system message for one turn.
func (b *PromptBuilder) Build(session *sessions.Session, defs []models.ToolDefinition) string {
	template := defaultSystemPrompt
	if b.path != "" {
		if data, err := os.ReadFile(b.path); err == nil {
			template = string(data)
		}
	}

	toolLines := make([]string, 0, len(defs))
	for _, def := range defs {
		toolLines = append(toolLines, def.Name+" - "+def.Description)
	}

	skillList := ""
	if b.skills != nil {
		skillList = b.skills.Mentions(session.UserID)
	}
	if skillList == "" {
		skillList = "(none)"
	}

	now := b.now()
	prompt := strings.NewReplacer(
		"{{cwd}}", session.WorkDir,
		"{{date}}", now.Format("2006-01-02"),
		"{{tools}}", strings.Join(toolLines, "\n"),
		"{{userPorts}}", userPorts(session.UserID),
		"{{skills}}", skillList,
	).Replace(template)

	footer := fmt.Sprintf("\nUser: @%s (id=%d)\nWorkspace: %s\nTime: %s\nSource: %s",
		session.Username, session.UserID, session.WorkDir,
		now.Format("2006-01-02 15:04"), session.Source)
	return prompt + footer
}

// userPorts renders the port range reserved for a user's long-running
// processes. Each user gets ten ports off a shared base, keyed by user id.
func userPorts(userID int64) string {
	base := 4010 + int(userID%1000)
	return fmt.Sprintf("%d-%d", base, base+9)
}
