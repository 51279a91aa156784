package messaging

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/courierai/courier/internal/adapters"
	"github.com/courierai/courier/pkg/models"
)

func newBotServer(t *testing.T, handler http.HandlerFunc) *adapters.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return adapters.NewClient(srv.URL, "", adapters.WithHTTPClient(srv.Client()))
}

func TestSendDM(t *testing.T) {
	var got map[string]any
	client := newBotServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/send_dm" {
			t.Errorf("path = %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"success":true}`))
	})

	tool := NewSendDM(client)
	args, _ := json.Marshal(map[string]any{"user_id": 42, "text": "hi"})
	res, err := tool.Execute(context.Background(), args, &models.ToolContext{Source: "bot"})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !res.Success || !strings.Contains(res.Output, "42") {
		t.Errorf("result = %+v", res)
	}
	if got["user_id"] != float64(42) || got["text"] != "hi" {
		t.Errorf("payload = %v", got)
	}
}

func TestSendFile(t *testing.T) {
	client := newBotServer(t, func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		if r.FormValue("chat_id") != "9" || r.FormValue("caption") != "report" {
			t.Errorf("form = %v", r.MultipartForm.Value)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		defer file.Close()
		if header.Filename != "out.txt" {
			t.Errorf("filename = %q", header.Filename)
		}
		_, _ = w.Write([]byte(`{"success":true,"message_id":5}`))
	})

	workDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(workDir, "out.txt"), []byte("data"), 0o644); err != nil {
		t.Fatal(err)
	}

	tool := NewSendFile(client)
	args, _ := json.Marshal(map[string]any{"path": "out.txt", "caption": "report"})
	tc := &models.ToolContext{WorkDir: workDir, ChatID: 9, Source: "bot"}
	res, err := tool.Execute(context.Background(), args, tc)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !res.Success {
		t.Errorf("result = %+v", res)
	}

	// Paths outside the workspace are refused before any network call.
	args, _ = json.Marshal(map[string]any{"path": "../secret.txt"})
	res, _ = tool.Execute(context.Background(), args, tc)
	if res.Success || !strings.Contains(res.Error, "outside your workspace") {
		t.Errorf("escape = %+v", res)
	}
}

func TestManageMessage(t *testing.T) {
	var paths []string
	client := newBotServer(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		_, _ = w.Write([]byte(`{"success":true}`))
	})

	tool := NewManageMessage(client)
	tc := &models.ToolContext{ChatID: 3, Source: "bot"}

	args, _ := json.Marshal(map[string]any{"action": "edit", "message_id": 11, "text": "fixed"})
	if res, _ := tool.Execute(context.Background(), args, tc); !res.Success {
		t.Fatalf("edit = %+v", res)
	}
	args, _ = json.Marshal(map[string]any{"action": "delete", "message_id": 11})
	if res, _ := tool.Execute(context.Background(), args, tc); !res.Success {
		t.Fatalf("delete = %+v", res)
	}
	if len(paths) != 2 || paths[0] != "/edit" || paths[1] != "/delete" {
		t.Errorf("paths = %v", paths)
	}

	args, _ = json.Marshal(map[string]any{"action": "edit", "message_id": 11})
	if res, _ := tool.Execute(context.Background(), args, tc); res.Success {
		t.Error("edit without text succeeded")
	}
}

func TestAskUser(t *testing.T) {
	var polls atomic.Int32
	client := newBotServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/ask":
			_, _ = w.Write([]byte(`{"success":true}`))
		case strings.HasPrefix(r.URL.Path, "/answer/"):
			if polls.Add(1) < 2 {
				_, _ = w.Write([]byte(`{"success":true,"answered":false}`))
				return
			}
			_, _ = w.Write([]byte(`{"success":true,"answered":true,"answer":"yes, go ahead"}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	tool := NewAskUser(client, WithPollInterval(10*time.Millisecond))
	args, _ := json.Marshal(map[string]any{"question": "Deploy now?", "timeout": 5})
	res, err := tool.Execute(context.Background(), args, &models.ToolContext{ChatID: 1, UserID: 1})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !res.Success || !strings.Contains(res.Output, "yes, go ahead") {
		t.Errorf("result = %+v", res)
	}
}

func TestAskUser_Timeout(t *testing.T) {
	client := newBotServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ask" {
			_, _ = w.Write([]byte(`{"success":true}`))
			return
		}
		_, _ = w.Write([]byte(`{"success":true,"answered":false}`))
	})

	tool := NewAskUser(client, WithPollInterval(5*time.Millisecond))
	args, _ := json.Marshal(map[string]any{"question": "anyone?", "timeout": 1})
	start := time.Now()
	res, err := tool.Execute(context.Background(), args, &models.ToolContext{ChatID: 1, UserID: 1})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if res.Success || !strings.Contains(res.Error, "No answer within 1 seconds") {
		t.Errorf("result = %+v", res)
	}
	if time.Since(start) > 3*time.Second {
		t.Error("timeout did not fire promptly")
	}
}
