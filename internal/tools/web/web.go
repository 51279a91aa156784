// Package web implements search_web and fetch_page. Search goes through a
// SearXNG-compatible metasearch endpoint; pages are fetched directly and
// reduced to readable text.
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/courierai/courier/pkg/models"
)

const (
	maxResults   = 8
	maxPageBytes = 2 << 20
	maxPageChars = 20_000
)

// SearchWeb queries the configured metasearch service.
type SearchWeb struct {
	searchURL  string
	httpClient *http.Client
}

// Option configures the web tools.
type Option func(*options)

type options struct {
	httpClient *http.Client
}

// WithHTTPClient overrides the HTTP client, mainly for tests.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(o *options) {
		if httpClient != nil {
			o.httpClient = httpClient
		}
	}
}

func newOptions(opts []Option) *options {
	o := &options{httpClient: &http.Client{Timeout: 30 * time.Second}}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func NewSearchWeb(searchURL string, opts ...Option) *SearchWeb {
	return &SearchWeb{searchURL: searchURL, httpClient: newOptions(opts).httpClient}
}

func (t *SearchWeb) Name() string { return "search_web" }

func (t *SearchWeb) Description() string {
	return "Search the internet for current info, news, docs."
}

func (t *SearchWeb) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"query": {"type": "string", "description": "Search query"}
		},
		"required": ["query"]
	}`)
}

func (t *SearchWeb) Execute(ctx context.Context, args json.RawMessage, _ *models.ToolContext) (*models.ToolResult, error) {
	var req struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal(args, &req); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Query) == "" {
		return models.ErrorResult("query required"), nil
	}
	if t.searchURL == "" {
		return models.ErrorResult("search service not configured"), nil
	}

	u := fmt.Sprintf("%s/search?q=%s&format=json", strings.TrimRight(t.searchURL, "/"), url.QueryEscape(req.Query))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := t.httpClient.Do(httpReq)
	if err != nil {
		return models.ErrorResult("search unavailable: %v", err), nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return models.ErrorResult("search returned status %d", resp.StatusCode), nil
	}

	var payload struct {
		Results []struct {
			Title   string `json:"title"`
			URL     string `json:"url"`
			Content string `json:"content"`
		} `json:"results"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxPageBytes)).Decode(&payload); err != nil {
		return models.ErrorResult("search response: %v", err), nil
	}
	if len(payload.Results) == 0 {
		return models.TextResult("No results for: " + req.Query), nil
	}

	var b strings.Builder
	for i, r := range payload.Results {
		if i >= maxResults {
			break
		}
		fmt.Fprintf(&b, "%d. %s\n%s\n", i+1, r.Title, r.URL)
		if r.Content != "" {
			fmt.Fprintf(&b, "%s\n", r.Content)
		}
		b.WriteString("\n")
	}
	return models.TextResult(strings.TrimSpace(b.String())), nil
}

// FetchPage downloads a URL and strips it down to readable text.
type FetchPage struct {
	httpClient *http.Client
}

func NewFetchPage(opts ...Option) *FetchPage {
	return &FetchPage{httpClient: newOptions(opts).httpClient}
}

func (t *FetchPage) Name() string { return "fetch_page" }

func (t *FetchPage) Description() string {
	return "Fetch and parse URL content as markdown."
}

func (t *FetchPage) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"url": {"type": "string", "description": "URL to fetch"}
		},
		"required": ["url"]
	}`)
}

func (t *FetchPage) Execute(ctx context.Context, args json.RawMessage, _ *models.ToolContext) (*models.ToolResult, error) {
	var req struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(args, &req); err != nil {
		return nil, err
	}
	target, err := url.Parse(req.URL)
	if err != nil || (target.Scheme != "http" && target.Scheme != "https") {
		return models.ErrorResult("Invalid URL: %s", req.URL), nil
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("User-Agent", "courier/1.0")
	resp, err := t.httpClient.Do(httpReq)
	if err != nil {
		return models.ErrorResult("fetch failed: %v", err), nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return models.ErrorResult("fetch returned status %d", resp.StatusCode), nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return models.ErrorResult("fetch failed: %v", err), nil
	}

	contentType := resp.Header.Get("Content-Type")
	text := string(body)
	if strings.Contains(contentType, "text/html") || looksLikeHTML(text) {
		text = extractText(text)
	}
	if len(text) > maxPageChars {
		text = text[:maxPageChars] + "\n... (page truncated)"
	}
	if strings.TrimSpace(text) == "" {
		return models.TextResult("(empty page)"), nil
	}
	return models.TextResult(text), nil
}

func looksLikeHTML(s string) bool {
	head := strings.ToLower(s[:min(len(s), 512)])
	return strings.Contains(head, "<html") || strings.Contains(head, "<!doctype html")
}

// extractText walks the DOM, keeps visible text, and renders headings and
// links in a light markdown style.
func extractText(src string) string {
	doc, err := html.Parse(strings.NewReader(src))
	if err != nil {
		return src
	}

	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.ElementNode:
			switch n.Data {
			case "script", "style", "noscript", "head", "iframe", "svg":
				return
			case "h1", "h2", "h3", "h4", "h5", "h6":
				b.WriteString("\n" + strings.Repeat("#", int(n.Data[1]-'0')) + " ")
			case "p", "div", "section", "article", "li", "tr", "br":
				b.WriteString("\n")
			case "a":
				for _, attr := range n.Attr {
					if attr.Key == "href" && strings.HasPrefix(attr.Val, "http") {
						defer fmt.Fprintf(&b, " (%s)", attr.Val)
						break
					}
				}
			}
		case html.TextNode:
			if text := strings.TrimSpace(n.Data); text != "" {
				b.WriteString(text + " ")
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	lines := strings.Split(b.String(), "\n")
	var out []string
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
