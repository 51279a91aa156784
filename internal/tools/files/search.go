package files

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/courierai/courier/pkg/models"
)

// SearchFiles matches workspace files against a glob pattern.
type SearchFiles struct{}

func NewSearchFiles() *SearchFiles { return &SearchFiles{} }

func (t *SearchFiles) Name() string { return "search_files" }

func (t *SearchFiles) Description() string {
	return "Search for files by glob pattern."
}

func (t *SearchFiles) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"pattern": {"type": "string", "description": "Glob pattern (e.g. **/*.py)"}
		},
		"required": ["pattern"]
	}`)
}

func (t *SearchFiles) Execute(_ context.Context, args json.RawMessage, tc *models.ToolContext) (*models.ToolResult, error) {
	var req struct {
		Pattern string `json:"pattern"`
	}
	if err := json.Unmarshal(args, &req); err != nil {
		return nil, err
	}
	if req.Pattern == "" {
		return models.ErrorResult("pattern required"), nil
	}

	root, err := resolve(tc.WorkDir, ".")
	if err != nil {
		return models.ErrorResult("%s", err.Error()), nil
	}

	matches, err := doublestar.Glob(os.DirFS(root), req.Pattern)
	if err != nil {
		return models.ErrorResult("Invalid pattern: %v", err), nil
	}
	sort.Strings(matches)
	if len(matches) == 0 {
		return models.TextResult("No files match " + req.Pattern), nil
	}
	truncated := false
	if len(matches) > maxSearchHits {
		matches = matches[:maxSearchHits]
		truncated = true
	}
	out := strings.Join(matches, "\n")
	if truncated {
		out += fmt.Sprintf("\n... (first %d matches)", maxSearchHits)
	}
	return models.TextResult(out), nil
}

// SearchText greps workspace files for a regular expression.
type SearchText struct{}

func NewSearchText() *SearchText { return &SearchText{} }

func (t *SearchText) Name() string { return "search_text" }

func (t *SearchText) Description() string {
	return "Search text in files using grep."
}

func (t *SearchText) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"pattern": {"type": "string", "description": "Text/regex to search"},
			"path": {"type": "string", "description": "Directory to search"},
			"ignore_case": {"type": "boolean", "description": "Case insensitive"}
		},
		"required": ["pattern"]
	}`)
}

func (t *SearchText) Execute(ctx context.Context, args json.RawMessage, tc *models.ToolContext) (*models.ToolResult, error) {
	var req struct {
		Pattern    string `json:"pattern"`
		Path       string `json:"path"`
		IgnoreCase bool   `json:"ignore_case"`
	}
	if err := json.Unmarshal(args, &req); err != nil {
		return nil, err
	}
	if req.Pattern == "" {
		return models.ErrorResult("pattern required"), nil
	}

	expr := req.Pattern
	if req.IgnoreCase {
		expr = "(?i)" + expr
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return models.ErrorResult("Invalid pattern: %v", err), nil
	}

	root, err := resolve(tc.WorkDir, req.Path)
	if err != nil {
		return models.ErrorResult("%s", err.Error()), nil
	}

	var hits []string
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		info, err := d.Info()
		if err != nil || info.Size() > maxScannedSize {
			return nil
		}
		f, err := os.Open(path)
		if err != nil {
			return nil
		}
		defer f.Close()

		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 0, 64*1024), 256*1024)
		lineNo := 0
		for scanner.Scan() {
			lineNo++
			line := scanner.Text()
			if re.MatchString(line) {
				hits = append(hits, fmt.Sprintf("%s:%d: %s", rel(tc.WorkDir, path), lineNo, strings.TrimSpace(line)))
				if len(hits) >= maxSearchHits {
					return fs.SkipAll
				}
			}
		}
		return nil
	})
	if walkErr != nil && walkErr != fs.SkipAll {
		return models.ErrorResult("%s", walkErr.Error()), nil
	}

	if len(hits) == 0 {
		return models.TextResult("No matches for " + req.Pattern), nil
	}
	out := strings.Join(hits, "\n")
	if len(hits) >= maxSearchHits {
		out += fmt.Sprintf("\n... (first %d matches)", maxSearchHits)
	}
	return models.TextResult(out), nil
}

// ListDirectory lists a workspace directory.
type ListDirectory struct{}

func NewListDirectory() *ListDirectory { return &ListDirectory{} }

func (t *ListDirectory) Name() string { return "list_directory" }

func (t *ListDirectory) Description() string {
	return "List directory contents."
}

func (t *ListDirectory) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {"type": "string", "description": "Directory path"}
		},
		"required": []
	}`)
}

func (t *ListDirectory) Execute(_ context.Context, args json.RawMessage, tc *models.ToolContext) (*models.ToolResult, error) {
	var req struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal(args, &req); err != nil {
		return nil, err
	}

	path, err := resolve(tc.WorkDir, req.Path)
	if err != nil {
		return models.ErrorResult("%s", err.Error()), nil
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		if os.IsNotExist(err) {
			return models.ErrorResult("Directory not found: %s", req.Path), nil
		}
		return models.ErrorResult("%s", err.Error()), nil
	}
	if len(entries) == 0 {
		return models.TextResult("(empty)"), nil
	}

	var b strings.Builder
	for _, entry := range entries {
		if entry.IsDir() {
			fmt.Fprintf(&b, "%s/\n", entry.Name())
			continue
		}
		size := int64(0)
		if info, err := entry.Info(); err == nil {
			size = info.Size()
		}
		fmt.Fprintf(&b, "%s  %d\n", entry.Name(), size)
	}
	return models.TextResult(strings.TrimRight(b.String(), "\n")), nil
}
