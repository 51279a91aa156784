package files

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/courierai/courier/pkg/models"
)

// WriteFile writes content to a file, creating parent directories.
type WriteFile struct{}

func NewWriteFile() *WriteFile { return &WriteFile{} }

func (t *WriteFile) Name() string { return "write_file" }

func (t *WriteFile) Description() string {
	return "Write content to file. Creates if doesn't exist."
}

func (t *WriteFile) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {"type": "string", "description": "Path to file"},
			"content": {"type": "string", "description": "Content to write"}
		},
		"required": ["path", "content"]
	}`)
}

func (t *WriteFile) Execute(_ context.Context, args json.RawMessage, tc *models.ToolContext) (*models.ToolResult, error) {
	var req struct {
		Path    string `json:"path"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal(args, &req); err != nil {
		return nil, err
	}

	path, err := resolve(tc.WorkDir, req.Path)
	if err != nil {
		return models.ErrorResult("%s", err.Error()), nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return models.ErrorResult("%s", err.Error()), nil
	}
	if err := os.WriteFile(path, []byte(req.Content), 0o644); err != nil {
		return models.ErrorResult("%s", err.Error()), nil
	}
	return models.TextResult("Wrote " + rel(tc.WorkDir, path)), nil
}

// EditFile replaces exact text in an existing file.
type EditFile struct{}

func NewEditFile() *EditFile { return &EditFile{} }

func (t *EditFile) Name() string { return "edit_file" }

func (t *EditFile) Description() string {
	return "Edit file by replacing text. old_text must match exactly."
}

func (t *EditFile) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {"type": "string", "description": "Path to file"},
			"old_text": {"type": "string", "description": "Text to find"},
			"new_text": {"type": "string", "description": "Replacement text"}
		},
		"required": ["path", "old_text", "new_text"]
	}`)
}

func (t *EditFile) Execute(_ context.Context, args json.RawMessage, tc *models.ToolContext) (*models.ToolResult, error) {
	var req struct {
		Path    string `json:"path"`
		OldText string `json:"old_text"`
		NewText string `json:"new_text"`
	}
	if err := json.Unmarshal(args, &req); err != nil {
		return nil, err
	}
	if req.OldText == "" {
		return models.ErrorResult("old_text required"), nil
	}

	path, err := resolve(tc.WorkDir, req.Path)
	if err != nil {
		return models.ErrorResult("%s", err.Error()), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return models.ErrorResult("File not found: %s", req.Path), nil
		}
		return models.ErrorResult("%s", err.Error()), nil
	}

	content := string(data)
	if !strings.Contains(content, req.OldText) {
		return models.ErrorResult("old_text not found in %s", req.Path), nil
	}
	content = strings.ReplaceAll(content, req.OldText, req.NewText)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return models.ErrorResult("%s", err.Error()), nil
	}
	return models.TextResult("Edited " + rel(tc.WorkDir, path)), nil
}

// DeleteFile removes a file inside the workspace.
type DeleteFile struct{}

func NewDeleteFile() *DeleteFile { return &DeleteFile{} }

func (t *DeleteFile) Name() string { return "delete_file" }

func (t *DeleteFile) Description() string {
	return "Delete a file within workspace."
}

func (t *DeleteFile) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {"type": "string", "description": "Path to file"}
		},
		"required": ["path"]
	}`)
}

func (t *DeleteFile) Execute(_ context.Context, args json.RawMessage, tc *models.ToolContext) (*models.ToolResult, error) {
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
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return models.ErrorResult("File not found: %s", req.Path), nil
		}
		return models.ErrorResult("%s", err.Error()), nil
	}
	if info.IsDir() {
		return models.ErrorResult("%s is a directory", req.Path), nil
	}
	if err := os.Remove(path); err != nil {
		return models.ErrorResult("%s", err.Error()), nil
	}
	return models.TextResult("Deleted " + rel(tc.WorkDir, path)), nil
}
