package files

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/courierai/courier/pkg/models"
)

func testContext(t *testing.T) *models.ToolContext {
	t.Helper()
	return &models.ToolContext{WorkDir: t.TempDir(), UserID: 1}
}

func raw(t *testing.T, v any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal args: %v", err)
	}
	return data
}

func TestResolve_ConfinesToWorkspace(t *testing.T) {
	workDir := "/workspace/42"
	tests := []struct {
		path    string
		want    string
		wantErr bool
	}{
		{"notes.txt", "/workspace/42/notes.txt", false},
		{"a/b/../c.txt", "/workspace/42/a/c.txt", false},
		{".", "/workspace/42", false},
		{"", "/workspace/42", false},
		{"/workspace/42/sub/x", "/workspace/42/sub/x", false},
		{"../41/secret", "", true},
		{"/etc/passwd", "", true},
		{"/workspace/421/x", "", true},
	}
	for _, tt := range tests {
		got, err := resolve(workDir, tt.path)
		if (err != nil) != tt.wantErr {
			t.Errorf("resolve(%q) error = %v, wantErr %v", tt.path, err, tt.wantErr)
			continue
		}
		if err == nil && got != tt.want {
			t.Errorf("resolve(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestWriteReadEditDelete(t *testing.T) {
	tc := testContext(t)
	ctx := context.Background()

	res, err := NewWriteFile().Execute(ctx, raw(t, map[string]any{"path": "dir/note.txt", "content": "hello world"}), tc)
	if err != nil || !res.Success {
		t.Fatalf("write_file = %+v, err %v", res, err)
	}

	res, err = NewReadFile().Execute(ctx, raw(t, map[string]any{"path": "dir/note.txt"}), tc)
	if err != nil || res.Output != "hello world" {
		t.Fatalf("read_file = %+v, err %v", res, err)
	}

	res, err = NewEditFile().Execute(ctx, raw(t, map[string]any{"path": "dir/note.txt", "old_text": "world", "new_text": "there"}), tc)
	if err != nil || !res.Success {
		t.Fatalf("edit_file = %+v, err %v", res, err)
	}
	data, _ := os.ReadFile(filepath.Join(tc.WorkDir, "dir/note.txt"))
	if string(data) != "hello there" {
		t.Errorf("file after edit = %q", data)
	}

	res, _ = NewEditFile().Execute(ctx, raw(t, map[string]any{"path": "dir/note.txt", "old_text": "nope", "new_text": "x"}), tc)
	if res.Success || !strings.Contains(res.Error, "old_text not found") {
		t.Errorf("edit with missing old_text = %+v", res)
	}

	res, err = NewDeleteFile().Execute(ctx, raw(t, map[string]any{"path": "dir/note.txt"}), tc)
	if err != nil || !res.Success {
		t.Fatalf("delete_file = %+v, err %v", res, err)
	}
	if _, statErr := os.Stat(filepath.Join(tc.WorkDir, "dir/note.txt")); !os.IsNotExist(statErr) {
		t.Error("file still exists after delete")
	}
}

func TestReadFile_LineWindow(t *testing.T) {
	tc := testContext(t)
	content := "one\ntwo\nthree\nfour\n"
	if err := os.WriteFile(filepath.Join(tc.WorkDir, "lines.txt"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	res, err := NewReadFile().Execute(context.Background(), raw(t, map[string]any{"path": "lines.txt", "offset": 2, "limit": 2}), tc)
	if err != nil {
		t.Fatalf("read_file error = %v", err)
	}
	if !strings.Contains(res.Output, "2\ttwo") || !strings.Contains(res.Output, "3\tthree") {
		t.Errorf("window output = %q", res.Output)
	}
	if strings.Contains(res.Output, "four") {
		t.Errorf("window leaked past limit: %q", res.Output)
	}
}

func TestReadFile_OutsideWorkspace(t *testing.T) {
	tc := testContext(t)
	res, err := NewReadFile().Execute(context.Background(), raw(t, map[string]any{"path": "../../etc/passwd"}), tc)
	if err != nil {
		t.Fatalf("read_file error = %v", err)
	}
	if res.Success || !strings.Contains(res.Error, "outside your workspace") {
		t.Errorf("escape attempt = %+v", res)
	}
}

func TestSearchFilesAndText(t *testing.T) {
	tc := testContext(t)
	ctx := context.Background()

	mustWrite := func(path, content string) {
		full := filepath.Join(tc.WorkDir, path)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	mustWrite("a/main.go", "package main\nfunc main() {}\n")
	mustWrite("a/b/util.go", "package b\n// helper\n")
	mustWrite("readme.md", "# Readme\n")

	res, err := NewSearchFiles().Execute(ctx, raw(t, map[string]any{"pattern": "**/*.go"}), tc)
	if err != nil {
		t.Fatalf("search_files error = %v", err)
	}
	if !strings.Contains(res.Output, "a/main.go") || !strings.Contains(res.Output, "a/b/util.go") {
		t.Errorf("glob output = %q", res.Output)
	}
	if strings.Contains(res.Output, "readme.md") {
		t.Errorf("glob matched wrong file: %q", res.Output)
	}

	res, err = NewSearchText().Execute(ctx, raw(t, map[string]any{"pattern": "FUNC MAIN", "ignore_case": true}), tc)
	if err != nil {
		t.Fatalf("search_text error = %v", err)
	}
	if !strings.Contains(res.Output, "a/main.go:2") {
		t.Errorf("grep output = %q", res.Output)
	}
}

func TestListDirectory(t *testing.T) {
	tc := testContext(t)
	if err := os.MkdirAll(filepath.Join(tc.WorkDir, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(tc.WorkDir, "f.txt"), []byte("hi"), 0o644); err != nil {
		t.Fatal(err)
	}

	res, err := NewListDirectory().Execute(context.Background(), raw(t, map[string]any{}), tc)
	if err != nil {
		t.Fatalf("list_directory error = %v", err)
	}
	if !strings.Contains(res.Output, "sub/") || !strings.Contains(res.Output, "f.txt") {
		t.Errorf("listing = %q", res.Output)
	}
}
