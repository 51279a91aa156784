// Package skills manages installable skill packs: markdown instruction
// bundles the agent pulls into its system prompt when their name comes up.
package skills

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/courierai/courier/pkg/models"
)

const (
	skillFile    = "SKILL.md"
	anthropicRaw = "https://raw.githubusercontent.com/anthropics/skills/main"
	maxSkillSize = 1 << 20
	userDirPat   = "user_%d"
)

// ToolPrefix namespaces the catalogue entries that load skill instructions.
const ToolPrefix = "skill_"

// officialSkills is the curated set installable by bare name.
var officialSkills = map[string]string{
	"pptx": "Create PowerPoint presentations",
	"docx": "Create Word documents",
	"xlsx": "Create Excel spreadsheets",
	"pdf":  "Fill and generate PDF files",
}

// Skill is an installed skill pack.
type Skill struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Path        string `json:"path"`
}

// Manager installs and lists skills under a shared directory.
type Manager struct {
	dir        string
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures the manager.
type Option func(*Manager)

// WithHTTPClient overrides the HTTP client, mainly for tests.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(m *Manager) {
		if httpClient != nil {
			m.httpClient = httpClient
		}
	}
}

// WithLogger configures the manager logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewManager creates a manager rooted at dir.
func NewManager(dir string, opts ...Option) *Manager {
	m := &Manager{
		dir:        dir,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// dirFor maps a user to their skill directory. User zero is the shared tier
// every session sees.
func (m *Manager) dirFor(userID int64) string {
	if userID == 0 {
		return m.dir
	}
	return filepath.Join(m.dir, fmt.Sprintf(userDirPat, userID))
}

// Install fetches a skill into the given user's tier (0 = shared). source is
// "anthropic" (default) for the official repository, or "url" with rawURL
// pointing at a SKILL.md.
func (m *Manager) Install(ctx context.Context, userID int64, name, source, rawURL string) (*Skill, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" || strings.ContainsAny(name, "/\\.") {
		return nil, fmt.Errorf("invalid skill name: %q", name)
	}

	var fetchURL string
	switch source {
	case "", "anthropic":
		fetchURL = fmt.Sprintf("%s/%s/%s", anthropicRaw, name, skillFile)
	case "url":
		if rawURL == "" {
			return nil, fmt.Errorf("url required for source 'url'")
		}
		fetchURL = rawURL
	default:
		return nil, fmt.Errorf("unknown source: %s", source)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fetchURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch skill: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("skill %q not found (status %d)", name, resp.StatusCode)
	}
	content, err := io.ReadAll(io.LimitReader(resp.Body, maxSkillSize))
	if err != nil {
		return nil, err
	}

	skillDir := filepath.Join(m.dirFor(userID), name)
	if err := os.MkdirAll(skillDir, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(skillDir, skillFile)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return nil, err
	}

	skill := &Skill{Name: name, Description: describe(content), Path: path}
	m.logger.Info("skill installed", "skill", name, "user", userID, "source", fetchURL)
	return skill, nil
}

// Installed lists the shared skills, sorted by name.
func (m *Manager) Installed() []Skill {
	return m.installedIn(m.dir)
}

// InstalledFor lists the skills visible to a user: the shared tier plus the
// user's own installs, which shadow shared skills of the same name.
func (m *Manager) InstalledFor(userID int64) []Skill {
	out := m.installedIn(m.dir)
	if userID == 0 {
		return out
	}
	index := map[string]int{}
	for i, skill := range out {
		index[skill.Name] = i
	}
	for _, skill := range m.installedIn(m.dirFor(userID)) {
		if i, ok := index[skill.Name]; ok {
			out[i] = skill
			continue
		}
		out = append(out, skill)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (m *Manager) installedIn(dir string) []Skill {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var out []Skill
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name(), skillFile)
		content, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		out = append(out, Skill{Name: entry.Name(), Description: describe(content), Path: path})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Content returns the full instructions of a skill visible to the user.
func (m *Manager) Content(userID int64, name string) (string, error) {
	for _, skill := range m.InstalledFor(userID) {
		if skill.Name == name {
			data, err := os.ReadFile(skill.Path)
			return string(data), err
		}
	}
	return "", fmt.Errorf("skill %q not installed", name)
}

// Definitions renders the user's visible skills as catalogue entries. Each
// entry is a zero-argument tool that returns the skill's instructions.
func (m *Manager) Definitions(userID int64) []models.ToolDefinition {
	skills := m.InstalledFor(userID)
	out := make([]models.ToolDefinition, 0, len(skills))
	for _, skill := range skills {
		out = append(out, models.ToolDefinition{
			Name:        ToolPrefix + skill.Name,
			Description: fmt.Sprintf("Load the %s skill instructions. %s", skill.Name, skill.Description),
			Parameters:  json.RawMessage(`{"type":"object","properties":{}}`),
			Source:      models.SkillSource(skill.Name),
			Enabled:     true,
		})
	}
	return out
}

// Invoke resolves a skill_<name> tool call to the skill's instructions.
func (m *Manager) Invoke(userID int64, toolName string) (string, error) {
	name, ok := strings.CutPrefix(toolName, ToolPrefix)
	if !ok || name == "" {
		return "", fmt.Errorf("unknown skill tool: %s", toolName)
	}
	return m.Content(userID, name)
}

// Mentions renders the user's skill list for the system prompt.
func (m *Manager) Mentions(userID int64) string {
	skills := m.InstalledFor(userID)
	if len(skills) == 0 {
		return ""
	}
	var b strings.Builder
	for _, skill := range skills {
		fmt.Fprintf(&b, "- %s: %s\n", skill.Name, skill.Description)
	}
	return strings.TrimRight(b.String(), "\n")
}

// describe pulls a one-line description out of a SKILL.md: the first
// non-empty, non-heading line.
func describe(content []byte) string {
	for _, line := range strings.Split(string(content), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "---") {
			continue
		}
		if len(line) > 120 {
			line = line[:120]
		}
		return line
	}
	return "(no description)"
}
