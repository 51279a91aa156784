// Package discovery implements search_tools and load_tools, the pair that
// lets the model grow its lazy-loaded toolset at runtime.
package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/courierai/courier/pkg/models"
)

// Catalogue is the registry surface the discovery tools need.
type Catalogue interface {
	Search(query, source string, limit int) []models.ToolDefinition
	Load(names []string) (loaded []models.ToolDefinition, notFound []string)
}

// SearchTools finds tools by keyword.
type SearchTools struct {
	catalogue Catalogue
}

func NewSearchTools(catalogue Catalogue) *SearchTools {
	return &SearchTools{catalogue: catalogue}
}

func (t *SearchTools) Name() string { return "search_tools" }

func (t *SearchTools) Description() string {
	return "🔍 DISCOVER MORE TOOLS! Search available tools by keyword. Use when you need capabilities not in your base toolkit (e.g. 'docker', 'telegram', 'presentation', 'web')."
}

func (t *SearchTools) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"query": {"type": "string", "description": "Search keyword (e.g. 'docker', 'telegram', 'file')"},
			"source": {"type": "string", "enum": ["all", "builtin", "mcp"], "description": "Filter by source"},
			"limit": {"type": "integer", "description": "Max results (default: 10)"}
		},
		"required": ["query"]
	}`)
}

func (t *SearchTools) Execute(_ context.Context, args json.RawMessage, _ *models.ToolContext) (*models.ToolResult, error) {
	var req struct {
		Query  string `json:"query"`
		Source string `json:"source"`
		Limit  int    `json:"limit"`
	}
	if err := json.Unmarshal(args, &req); err != nil {
		return nil, err
	}
	if req.Limit <= 0 {
		req.Limit = 10
	}

	hits := t.catalogue.Search(req.Query, req.Source, req.Limit)
	if len(hits) == 0 {
		return models.TextResult(fmt.Sprintf("No tools match %q. Try a broader keyword.", req.Query)), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d tools (load them with load_tools):\n", len(hits))
	for _, def := range hits {
		fmt.Fprintf(&b, "• %s [%s]: %s\n", def.Name, def.Source, def.Description)
	}
	return models.TextResult(strings.TrimRight(b.String(), "\n")), nil
}

// LoadTools pulls full definitions into the running session. The loaded
// definitions travel back to the agent loop in the result metadata.
type LoadTools struct {
	catalogue Catalogue
}

func NewLoadTools(catalogue Catalogue) *LoadTools {
	return &LoadTools{catalogue: catalogue}
}

func (t *LoadTools) Name() string { return "load_tools" }

func (t *LoadTools) Description() string {
	return "Load additional tools into your session after finding them with search_tools. Tools will be available immediately."
}

func (t *LoadTools) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"names": {"type": "array", "items": {"type": "string"}, "description": "List of tool names to load"}
		},
		"required": ["names"]
	}`)
}

func (t *LoadTools) Execute(_ context.Context, args json.RawMessage, _ *models.ToolContext) (*models.ToolResult, error) {
	var req struct {
		Names []string `json:"names"`
	}
	if err := json.Unmarshal(args, &req); err != nil {
		return nil, err
	}
	if len(req.Names) == 0 {
		return models.ErrorResult("names required"), nil
	}

	loaded, notFound := t.catalogue.Load(req.Names)
	if len(loaded) == 0 {
		return models.ErrorResult("No tools loaded. Unknown: %s", strings.Join(notFound, ", ")), nil
	}

	names := make([]string, 0, len(loaded))
	for _, def := range loaded {
		names = append(names, def.Name)
	}
	output := "Loaded: " + strings.Join(names, ", ")
	if len(notFound) > 0 {
		output += ". Not found: " + strings.Join(notFound, ", ")
	}

	res := models.TextResult(output)
	res.Metadata = map[string]any{models.MetadataLoadedTools: loaded}
	return res, nil
}
