package files

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/courierai/courier/pkg/models"
)

// ReadFile reads file contents, optionally a line window.
type ReadFile struct{}

func NewReadFile() *ReadFile { return &ReadFile{} }

func (t *ReadFile) Name() string { return "read_file" }

func (t *ReadFile) Description() string {
	return "Read file contents. Always read before editing."
}

func (t *ReadFile) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {"type": "string", "description": "Path to file"},
			"offset": {"type": "integer", "description": "Starting line (1-based)"},
			"limit": {"type": "integer", "description": "Number of lines"}
		},
		"required": ["path"]
	}`)
}

func (t *ReadFile) Execute(_ context.Context, args json.RawMessage, tc *models.ToolContext) (*models.ToolResult, error) {
	var req struct {
		Path   string `json:"path"`
		Offset int    `json:"offset"`
		Limit  int    `json:"limit"`
	}
	if err := json.Unmarshal(args, &req); err != nil {
		return nil, err
	}

	path, err := resolve(tc.WorkDir, req.Path)
	if err != nil {
		return models.ErrorResult("%s", err.Error()), nil
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return models.ErrorResult("File not found: %s", req.Path), nil
		}
		return models.ErrorResult("%s", err.Error()), nil
	}
	if info.IsDir() {
		return models.ErrorResult("%s is a directory, use list_directory", req.Path), nil
	}
	if info.Size() > maxReadBytes && req.Offset == 0 && req.Limit == 0 {
		return models.ErrorResult("File too large (%d bytes), read it with offset/limit", info.Size()), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return models.ErrorResult("%s", err.Error()), nil
	}

	content := string(data)
	if req.Offset > 0 || req.Limit > 0 {
		lines := strings.Split(content, "\n")
		start := 0
		if req.Offset > 0 {
			start = req.Offset - 1
		}
		if start >= len(lines) {
			return models.ErrorResult("Offset %d beyond end of file (%d lines)", req.Offset, len(lines)), nil
		}
		end := len(lines)
		if req.Limit > 0 && start+req.Limit < end {
			end = start + req.Limit
		}
		var b strings.Builder
		for i := start; i < end; i++ {
			fmt.Fprintf(&b, "%d\t%s\n", i+1, lines[i])
		}
		content = b.String()
	}
	return models.TextResult(content), nil
}
