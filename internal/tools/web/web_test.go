package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestSearchWeb(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("q"); got != "golang slog" {
			t.Errorf("query = %q", got)
		}
		_, _ = w.Write([]byte(`{"results":[
			{"title":"Structured Logging","url":"https://go.dev/blog/slog","content":"The slog package"},
			{"title":"Pkg docs","url":"https://pkg.go.dev/log/slog","content":""}
		]}`))
	}))
	defer srv.Close()

	tool := NewSearchWeb(srv.URL, WithHTTPClient(srv.Client()))
	args, _ := json.Marshal(map[string]string{"query": "golang slog"})
	res, err := tool.Execute(context.Background(), args, nil)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !res.Success {
		t.Fatalf("Execute() = %+v", res)
	}
	if !strings.Contains(res.Output, "1. Structured Logging") || !strings.Contains(res.Output, "https://go.dev/blog/slog") {
		t.Errorf("output = %q", res.Output)
	}
}

func TestSearchWeb_NoResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"results":[]}`))
	}))
	defer srv.Close()

	tool := NewSearchWeb(srv.URL, WithHTTPClient(srv.Client()))
	args, _ := json.Marshal(map[string]string{"query": "xyzzy"})
	res, err := tool.Execute(context.Background(), args, nil)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !strings.HasPrefix(res.Output, "No results") {
		t.Errorf("output = %q", res.Output)
	}
}

func TestFetchPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(`<!doctype html><html><head><title>T</title>
			<script>alert("no")</script></head>
			<body><h1>Welcome</h1><p>Plain text here.</p>
			<a href="https://example.com/next">next page</a></body></html>`))
	}))
	defer srv.Close()

	tool := NewFetchPage(WithHTTPClient(srv.Client()))
	args, _ := json.Marshal(map[string]string{"url": srv.URL})
	res, err := tool.Execute(context.Background(), args, nil)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !strings.Contains(res.Output, "# Welcome") {
		t.Errorf("missing heading: %q", res.Output)
	}
	if !strings.Contains(res.Output, "Plain text here.") {
		t.Errorf("missing body text: %q", res.Output)
	}
	if strings.Contains(res.Output, "alert") {
		t.Errorf("script leaked: %q", res.Output)
	}
	if !strings.Contains(res.Output, "https://example.com/next") {
		t.Errorf("link href dropped: %q", res.Output)
	}
}

func TestFetchPage_InvalidURL(t *testing.T) {
	tool := NewFetchPage()
	args, _ := json.Marshal(map[string]string{"url": "ftp://example.com/x"})
	res, err := tool.Execute(context.Background(), args, nil)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if res.Success {
		t.Errorf("invalid scheme accepted: %+v", res)
	}
}
