// Package adapters is the HTTP client for the chat adapter services. The
// core never talks to chat platforms directly; the bot and userbot adapters
// expose small callback APIs and this client drives them.
package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"
)

// MaxFileSize caps outbound file payloads. Adapters reject anything larger.
const MaxFileSize = 50 * 1024 * 1024

// Client calls the bot and userbot adapter services.
type Client struct {
	botURL     string
	userbotURL string
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures the client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client, mainly for tests.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithLogger configures the client logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient creates an adapter client for the given callback base URLs.
// Either URL may be empty if the corresponding adapter is not deployed.
func NewClient(botURL, userbotURL string, opts ...Option) *Client {
	c := &Client{
		botURL:     botURL,
		userbotURL: userbotURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// base picks the adapter for a request source. Userbot-originated sessions
// reply through the userbot so messages come from the user's own account.
func (c *Client) base(source string) (string, error) {
	if source == "userbot" {
		if c.userbotURL == "" {
			return "", fmt.Errorf("userbot adapter not configured")
		}
		return c.userbotURL, nil
	}
	if c.botURL == "" {
		return "", fmt.Errorf("bot adapter not configured")
	}
	return c.botURL, nil
}

type callbackResponse struct {
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
	MessageID int64  `json:"message_id,omitempty"`
	Answered  bool   `json:"answered,omitempty"`
	Answer    string `json:"answer,omitempty"`
	Output    string `json:"output,omitempty"`
}

func (c *Client) postJSON(ctx context.Context, url string, payload any) (*callbackResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *Client) do(req *http.Request) (*callbackResponse, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("adapter unavailable: %w", err)
	}
	defer resp.Body.Close()

	var out callbackResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
		return nil, fmt.Errorf("adapter response: %w", err)
	}
	if !out.Success {
		msg := out.Error
		if msg == "" {
			msg = fmt.Sprintf("adapter returned status %d", resp.StatusCode)
		}
		return &out, fmt.Errorf("%s", msg)
	}
	return &out, nil
}

// Send delivers a message to a chat and returns the platform message ID.
func (c *Client) Send(ctx context.Context, source string, chatID int64, text string) (int64, error) {
	url, err := c.base(source)
	if err != nil {
		return 0, err
	}
	resp, err := c.postJSON(ctx, url+"/send", map[string]any{"chat_id": chatID, "text": text})
	if err != nil {
		return 0, err
	}
	return resp.MessageID, nil
}

// SendDM delivers a private message to a user.
func (c *Client) SendDM(ctx context.Context, source string, userID int64, text string) error {
	url, err := c.base(source)
	if err != nil {
		return err
	}
	_, err = c.postJSON(ctx, url+"/send_dm", map[string]any{"user_id": userID, "text": text})
	return err
}

// SendFile uploads file bytes to a chat as a multipart form. The adapter has
// no workspace access, so the caller reads the file and passes the content.
func (c *Client) SendFile(ctx context.Context, source string, chatID int64, filename string, content []byte, caption string) error {
	if len(content) > MaxFileSize {
		return fmt.Errorf("file too large (max 50MB)")
	}
	url, err := c.base(source)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	if err := form.WriteField("chat_id", fmt.Sprintf("%d", chatID)); err != nil {
		return err
	}
	if caption != "" {
		if err := form.WriteField("caption", caption); err != nil {
			return err
		}
	}
	part, err := form.CreateFormFile("file", filename)
	if err != nil {
		return err
	}
	if _, err := part.Write(content); err != nil {
		return err
	}
	if err := form.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url+"/send_file", &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	_, err = c.do(req)
	return err
}

// EditMessage rewrites a previously sent message.
func (c *Client) EditMessage(ctx context.Context, source string, chatID, messageID int64, text string) error {
	url, err := c.base(source)
	if err != nil {
		return err
	}
	_, err = c.postJSON(ctx, url+"/edit", map[string]any{
		"chat_id": chatID, "message_id": messageID, "text": text,
	})
	return err
}

// DeleteMessage removes a previously sent message.
func (c *Client) DeleteMessage(ctx context.Context, source string, chatID, messageID int64) error {
	url, err := c.base(source)
	if err != nil {
		return err
	}
	_, err = c.postJSON(ctx, url+"/delete", map[string]any{
		"chat_id": chatID, "message_id": messageID,
	})
	return err
}

// Ask registers a pending question with the bot adapter, which forwards it
// to the user and captures their next message as the answer.
func (c *Client) Ask(ctx context.Context, questionID string, chatID, userID int64, question string) error {
	if c.botURL == "" {
		return fmt.Errorf("bot adapter not configured")
	}
	_, err := c.postJSON(ctx, c.botURL+"/ask", map[string]any{
		"question_id": questionID, "chat_id": chatID, "user_id": userID, "question": question,
	})
	return err
}

// Answer polls for the answer to a pending question. answered is false while
// the user has not replied yet.
func (c *Client) Answer(ctx context.Context, questionID string) (answered bool, answer string, err error) {
	if c.botURL == "" {
		return false, "", fmt.Errorf("bot adapter not configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.botURL+"/answer/"+questionID, nil)
	if err != nil {
		return false, "", err
	}
	resp, err := c.do(req)
	if err != nil {
		return false, "", err
	}
	return resp.Answered, resp.Answer, nil
}

// Telegram invokes a userbot action (channel, send_message, dialogs,
// history, join, delete_message, edit_message, resolve) and returns its
// textual output. Actions live under /tg/ so they cannot collide with the
// shared callback routes.
func (c *Client) Telegram(ctx context.Context, action string, payload any) (string, error) {
	if c.userbotURL == "" {
		return "", fmt.Errorf("userbot adapter not configured")
	}
	resp, err := c.postJSON(ctx, c.userbotURL+"/tg/"+action, payload)
	if err != nil {
		return "", err
	}
	return resp.Output, nil
}
