package skills

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/courierai/courier/pkg/models"
)

// InstallSkill is the install_skill tool.
type InstallSkill struct {
	manager *Manager
}

func NewInstallSkill(manager *Manager) *InstallSkill { return &InstallSkill{manager: manager} }

func (t *InstallSkill) Name() string { return "install_skill" }

func (t *InstallSkill) Description() string {
	return "Install a skill from Anthropic's skills repository. Skills add capabilities like creating presentations, documents, etc."
}

func (t *InstallSkill) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"name": {"type": "string", "description": "Skill name (e.g. 'pptx', 'docx', 'xlsx')"},
			"source": {"type": "string", "enum": ["anthropic", "url"], "description": "Source: 'anthropic' for official skills, 'url' for custom"},
			"url": {"type": "string", "description": "SKILL.md URL (for source 'url')"}
		},
		"required": ["name"]
	}`)
}

func (t *InstallSkill) Execute(ctx context.Context, args json.RawMessage, tc *models.ToolContext) (*models.ToolResult, error) {
	var req struct {
		Name   string `json:"name"`
		Source string `json:"source"`
		URL    string `json:"url"`
	}
	if err := json.Unmarshal(args, &req); err != nil {
		return nil, err
	}

	skill, err := t.manager.Install(ctx, tc.UserID, req.Name, req.Source, req.URL)
	if err != nil {
		return models.ErrorResult("%s", err.Error()), nil
	}
	return models.TextResult(fmt.Sprintf("✅ Installed skill %s: %s", skill.Name, skill.Description)), nil
}

// ListSkills is the list_skills tool.
type ListSkills struct {
	manager *Manager
}

func NewListSkills(manager *Manager) *ListSkills { return &ListSkills{manager: manager} }

func (t *ListSkills) Name() string { return "list_skills" }

func (t *ListSkills) Description() string {
	return "List available and installed skills."
}

func (t *ListSkills) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"installed_only": {"type": "boolean", "description": "Show only installed skills"}
		},
		"required": []
	}`)
}

func (t *ListSkills) Execute(_ context.Context, args json.RawMessage, tc *models.ToolContext) (*models.ToolResult, error) {
	var req struct {
		InstalledOnly bool `json:"installed_only"`
	}
	if err := json.Unmarshal(args, &req); err != nil {
		return nil, err
	}

	installed := t.manager.InstalledFor(tc.UserID)
	have := map[string]bool{}
	var b strings.Builder

	if len(installed) > 0 {
		b.WriteString("Installed:\n")
		for _, skill := range installed {
			have[skill.Name] = true
			fmt.Fprintf(&b, "• %s: %s\n", skill.Name, skill.Description)
		}
	} else {
		b.WriteString("No skills installed.\n")
	}

	if !req.InstalledOnly {
		b.WriteString("\nAvailable (install_skill):\n")
		for _, name := range []string{"docx", "pdf", "pptx", "xlsx"} {
			if have[name] {
				continue
			}
			fmt.Fprintf(&b, "• %s: %s\n", name, officialSkills[name])
		}
	}
	return models.TextResult(strings.TrimRight(b.String(), "\n")), nil
}
