package adapters

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newAdapterServer(t *testing.T, paths *[]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*paths = append(*paths, r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "message_id": 55})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_SendRoutesBySource(t *testing.T) {
	var botPaths, userbotPaths []string
	bot := newAdapterServer(t, &botPaths)
	userbot := newAdapterServer(t, &userbotPaths)
	c := NewClient(bot.URL, userbot.URL)

	id, err := c.Send(context.Background(), "bot", 100, "hello")
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if id != 55 {
		t.Errorf("message id = %d", id)
	}
	if _, err := c.Send(context.Background(), "userbot", 100, "hello"); err != nil {
		t.Fatalf("Send() via userbot error = %v", err)
	}

	if len(botPaths) != 1 || botPaths[0] != "/send" {
		t.Errorf("bot paths = %v", botPaths)
	}
	if len(userbotPaths) != 1 || userbotPaths[0] != "/send" {
		t.Errorf("userbot paths = %v", userbotPaths)
	}
}

func TestClient_ErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "error": "chat not found"})
	}))
	defer srv.Close()
	c := NewClient(srv.URL, "")

	_, err := c.Send(context.Background(), "bot", 1, "x")
	if err == nil || err.Error() != "chat not found" {
		t.Errorf("err = %v", err)
	}
}

func TestClient_UnconfiguredAdapters(t *testing.T) {
	c := NewClient("", "")
	if _, err := c.Send(context.Background(), "bot", 1, "x"); err == nil {
		t.Error("Send() with no bot URL succeeded")
	}
	if _, err := c.Telegram(context.Background(), "dialogs", map[string]any{}); err == nil {
		t.Error("Telegram() with no userbot URL succeeded")
	}
	if err := c.SendFile(context.Background(), "bot", 1, "a.bin", make([]byte, MaxFileSize+1), ""); err == nil {
		t.Error("oversized SendFile succeeded")
	}
}
