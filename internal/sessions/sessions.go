// Package sessions tracks per-user conversation state. A session is keyed
// by user and chat; turns within one session are serialized, different
// sessions run concurrently.
package sessions

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/courierai/courier/internal/storage"
)

// snapshotPairs caps how many exchanges SESSION.json keeps.
const snapshotPairs = 10

// Session is one user+chat conversation.
type Session struct {
	mu sync.Mutex

	ID       string
	UserID   int64
	ChatID   int64
	ChatType string
	Source   string
	Username string
	WorkDir  string

	History      []openai.ChatCompletionMessage
	BlockedCount int
	LastActive   time.Time
}

// Lock serializes a turn. The agent loop holds it for the whole turn so a
// second message for the same session waits instead of interleaving.
func (s *Session) Lock() { s.mu.Lock() }

// Unlock releases the turn lock.
func (s *Session) Unlock() { s.mu.Unlock() }

// RecordViolation bumps the security counter and reports whether the
// session has hit the lock threshold. The counter only resets on Clear.
func (s *Session) RecordViolation(limit int) bool {
	s.BlockedCount++
	return s.BlockedCount >= limit
}

// Locked reports whether the session is locked out.
func (s *Session) Locked(limit int) bool {
	return limit > 0 && s.BlockedCount >= limit
}

type snapshotEntry struct {
	User      string `json:"user"`
	Assistant string `json:"assistant"`
}

type snapshotFile struct {
	History []snapshotEntry `json:"history"`
}

// Manager owns the session map and workspace layout.
type Manager struct {
	mu        sync.Mutex
	sessions  map[string]*Session
	workspace string
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures the manager.
type Option func(*Manager)

// WithLogger configures the manager logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithNow overrides the clock for tests.
func WithNow(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewManager creates a session manager rooted at the workspace directory.
func NewManager(workspace string, opts ...Option) *Manager {
	m := &Manager{
		sessions:  map[string]*Session{},
		workspace: workspace,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Key derives the session key for a user+chat pair.
func Key(userID, chatID int64) string {
	return fmt.Sprintf("%d_%d", userID, chatID)
}

// Get returns the session for a user+chat, creating it and its workspace
// directory on first touch. Chat metadata is refreshed on every call since
// the same session can be reached from bot and userbot.
func (m *Manager) Get(userID, chatID int64, chatType, source, username string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := Key(userID, chatID)
	session, ok := m.sessions[key]
	if !ok {
		workDir := filepath.Join(m.workspace, fmt.Sprintf("%d", userID))
		if err := os.MkdirAll(workDir, 0o755); err != nil {
			return nil, fmt.Errorf("create workspace: %w", err)
		}
		session = &Session{
			ID:      key,
			UserID:  userID,
			ChatID:  chatID,
			WorkDir: workDir,
		}
		m.sessions[key] = session
		m.logger.Info("new session", "session", key)
	}
	session.ChatType = chatType
	session.Source = source
	if username != "" {
		session.Username = username
	}
	session.LastActive = m.now()
	return session, nil
}

// Peek returns an existing session without creating one.
func (m *Manager) Peek(userID, chatID int64) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[Key(userID, chatID)]
	return session, ok
}

// Clear wipes a session's transcript and security counter. The workspace
// directory is kept.
func (m *Manager) Clear(userID, chatID int64) bool {
	m.mu.Lock()
	session, ok := m.sessions[Key(userID, chatID)]
	m.mu.Unlock()
	if !ok {
		return false
	}

	session.Lock()
	defer session.Unlock()
	session.History = nil
	session.BlockedCount = 0
	m.logger.Info("session cleared", "session", session.ID)
	return true
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Stats summarizes live sessions for the admin surface.
func (m *Manager) Stats() []map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys := make([]string, 0, len(m.sessions))
	for key := range m.sessions {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	out := make([]map[string]any, 0, len(keys))
	for _, key := range keys {
		s := m.sessions[key]
		out = append(out, map[string]any{
			"session":       s.ID,
			"user_id":       s.UserID,
			"chat_id":       s.ChatID,
			"chat_type":     s.ChatType,
			"source":        s.Source,
			"history_len":   len(s.History),
			"blocked_count": s.BlockedCount,
			"last_active":   s.LastActive.Format(time.RFC3339),
		})
	}
	return out
}

// Snapshot appends one completed exchange to the session's SESSION.json,
// keeping the last ten pairs. Failures are logged, never surfaced: the
// snapshot is a convenience for the model, not the source of truth.
func (m *Manager) Snapshot(session *Session, userMsg, reply string) {
	path := filepath.Join(session.WorkDir, "SESSION.json")

	var file snapshotFile
	if err := storage.LoadJSON(path, &file); err != nil && !errors.Is(err, os.ErrNotExist) {
		m.logger.Warn("session snapshot unreadable, starting fresh", "session", session.ID, "error", err)
		file = snapshotFile{}
	}

	date := m.now().Format("2006-01-02")
	file.History = append(file.History, snapshotEntry{
		User:      fmt.Sprintf("[%s] %s", date, userMsg),
		Assistant: reply,
	})
	if len(file.History) > snapshotPairs {
		file.History = file.History[len(file.History)-snapshotPairs:]
	}

	if err := storage.SaveJSON(path, file); err != nil {
		m.logger.Warn("session snapshot not saved", "session", session.ID, "error", err)
	}
}
