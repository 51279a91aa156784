package discovery

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/courierai/courier/pkg/models"
)

type fakeCatalogue struct {
	defs []models.ToolDefinition
}

func (c *fakeCatalogue) Search(query, source string, limit int) []models.ToolDefinition {
	var out []models.ToolDefinition
	for _, def := range c.defs {
		if strings.Contains(def.Name, query) && len(out) < limit {
			out = append(out, def)
		}
	}
	return out
}

func (c *fakeCatalogue) Load(names []string) (loaded []models.ToolDefinition, notFound []string) {
	byName := map[string]models.ToolDefinition{}
	for _, def := range c.defs {
		byName[def.Name] = def
	}
	for _, name := range names {
		if def, ok := byName[name]; ok {
			loaded = append(loaded, def)
		} else {
			notFound = append(notFound, name)
		}
	}
	return loaded, notFound
}

var catalogue = &fakeCatalogue{defs: []models.ToolDefinition{
	{Name: "mcp_docker_ps", Source: "mcp:docker", Description: "List containers"},
	{Name: "install_skill", Source: "builtin", Description: "Install a skill"},
}}

func TestSearchTools(t *testing.T) {
	tool := NewSearchTools(catalogue)
	args, _ := json.Marshal(map[string]any{"query": "docker"})
	res, err := tool.Execute(context.Background(), args, nil)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !strings.Contains(res.Output, "mcp_docker_ps [mcp:docker]") {
		t.Errorf("output = %q", res.Output)
	}

	args, _ = json.Marshal(map[string]any{"query": "zzz"})
	res, _ = tool.Execute(context.Background(), args, nil)
	if !strings.Contains(res.Output, "No tools match") {
		t.Errorf("miss output = %q", res.Output)
	}
}

func TestLoadTools(t *testing.T) {
	tool := NewLoadTools(catalogue)
	args, _ := json.Marshal(map[string]any{"names": []string{"install_skill", "ghost"}})
	res, err := tool.Execute(context.Background(), args, nil)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !strings.Contains(res.Output, "Loaded: install_skill") || !strings.Contains(res.Output, "Not found: ghost") {
		t.Errorf("output = %q", res.Output)
	}
	if defs := res.LoadedTools(); len(defs) != 1 || defs[0].Name != "install_skill" {
		t.Errorf("LoadedTools() = %+v", defs)
	}

	args, _ = json.Marshal(map[string]any{"names": []string{"ghost"}})
	res, _ = tool.Execute(context.Background(), args, nil)
	if res.Success {
		t.Errorf("all-unknown load succeeded: %+v", res)
	}
}
