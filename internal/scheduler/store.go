// Package scheduler keeps durable tasks and fires them when due. Tasks
// survive restarts through a JSON file; the tick loop re-reads nothing, the
// store is the single source of truth.
package scheduler

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/courierai/courier/internal/storage"
	"github.com/courierai/courier/pkg/models"
)

// MaxTasksPerUser bounds how many pending tasks one user may hold.
const MaxTasksPerUser = 20

var (
	ErrTaskNotFound = errors.New("task not found")
	ErrTaskLimit    = fmt.Errorf("maximum %d tasks per user", MaxTasksPerUser)
	ErrNotOwner     = errors.New("cannot delete other user's task")
)

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

type taskFile struct {
	Tasks []*models.Task `json:"tasks"`
}

// CreateRequest is the input for scheduling a new task.
type CreateRequest struct {
	UserID          int64           `json:"user_id"`
	ChatID          int64           `json:"chat_id"`
	TaskType        models.TaskType `json:"task_type"`
	Content         string          `json:"content"`
	DelayMinutes    int             `json:"delay_minutes"`
	Recurring       bool            `json:"recurring"`
	IntervalMinutes int             `json:"interval_minutes"`
	CronExpr        string          `json:"cron_expr"`
	Source          string          `json:"source"`
}

// UpdateRequest patches a task. Nil fields are left untouched.
type UpdateRequest struct {
	Enabled         *bool   `json:"enabled"`
	Content         *string `json:"content"`
	IntervalMinutes *int    `json:"interval_minutes"`
}

// Store is the persistent task collection.
type Store struct {
	mu     sync.Mutex
	tasks  map[string]*models.Task
	path   string
	logger *slog.Logger
	now    func() time.Time
}

// StoreOption configures the store.
type StoreOption func(*Store)

// WithStoreLogger configures the store logger.
func WithStoreLogger(logger *slog.Logger) StoreOption {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithStoreNow overrides the clock for tests.
func WithStoreNow(now func() time.Time) StoreOption {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStore loads the task file, tolerating a missing or corrupt one.
func NewStore(path string, opts ...StoreOption) *Store {
	s := &Store{
		tasks:  map[string]*models.Task{},
		path:   path,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	var file taskFile
	if err := storage.LoadJSON(path, &file); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Error("task file not loaded", "path", path, "error", err)
		}
		return s
	}
	for _, task := range file.Tasks {
		s.tasks[task.ID] = task
	}
	s.logger.Info("tasks loaded", "path", path, "count", len(s.tasks))
	return s
}

func (s *Store) saveLocked() {
	file := taskFile{Tasks: make([]*models.Task, 0, len(s.tasks))}
	for _, task := range s.tasks {
		file.Tasks = append(file.Tasks, task)
	}
	sort.Slice(file.Tasks, func(i, j int) bool { return file.Tasks[i].ID < file.Tasks[j].ID })
	if err := storage.SaveJSON(s.path, file); err != nil {
		s.logger.Error("task file not saved", "path", s.path, "error", err)
	}
}

// Create validates and persists a new task.
func (s *Store) Create(req CreateRequest) (*models.Task, error) {
	if req.TaskType != models.TaskMessage && req.TaskType != models.TaskAgent {
		return nil, fmt.Errorf("task type must be 'message' or 'agent'")
	}
	if req.Content == "" {
		return nil, fmt.Errorf("content required")
	}
	if req.CronExpr != "" {
		if _, err := cronParser.Parse(req.CronExpr); err != nil {
			return nil, fmt.Errorf("invalid cron expression: %w", err)
		}
	}
	// A zero delay is valid: the task is due on the next tick. Only the
	// recurrence interval gets a floor.
	if req.DelayMinutes < 0 {
		req.DelayMinutes = 0
	}
	if req.Recurring && req.IntervalMinutes < 1 {
		req.IntervalMinutes = 1
	}
	if req.Source == "" {
		req.Source = "bot"
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	owned := 0
	for _, task := range s.tasks {
		if task.UserID == req.UserID {
			owned++
		}
	}
	if owned >= MaxTasksPerUser {
		return nil, ErrTaskLimit
	}

	now := s.now()
	task := &models.Task{
		ID:              fmt.Sprintf("task_%d_%s", now.Unix(), randomHex(3)),
		UserID:          req.UserID,
		ChatID:          req.ChatID,
		TaskType:        req.TaskType,
		Content:         req.Content,
		ExecuteAt:       now.Add(time.Duration(req.DelayMinutes) * time.Minute).Unix(),
		CreatedAt:       now.Unix(),
		Recurring:       req.Recurring,
		IntervalMinutes: req.IntervalMinutes,
		CronExpr:        req.CronExpr,
		Source:          req.Source,
		Enabled:         true,
	}
	if task.CronExpr != "" {
		schedule, _ := cronParser.Parse(task.CronExpr)
		task.ExecuteAt = schedule.Next(now).Unix()
		task.Recurring = true
	}

	s.tasks[task.ID] = task
	s.saveLocked()
	return task, nil
}

// Get returns a copy of the task.
func (s *Store) Get(id string) (*models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok {
		return nil, ErrTaskNotFound
	}
	clone := *task
	return &clone, nil
}

// Delete removes a task. A nonzero userID enforces ownership.
func (s *Store) Delete(id string, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok {
		return ErrTaskNotFound
	}
	if userID != 0 && task.UserID != userID {
		return ErrNotOwner
	}
	delete(s.tasks, id)
	s.saveLocked()
	return nil
}

// Update patches a task.
func (s *Store) Update(id string, req UpdateRequest) (*models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok {
		return nil, ErrTaskNotFound
	}
	if req.Enabled != nil {
		task.Enabled = *req.Enabled
	}
	if req.Content != nil {
		task.Content = *req.Content
	}
	if req.IntervalMinutes != nil {
		task.IntervalMinutes = max(1, *req.IntervalMinutes)
	}
	s.saveLocked()
	clone := *task
	return &clone, nil
}

// UserTasks returns all tasks owned by a user, soonest first.
func (s *Store) UserTasks(userID int64) []*models.Task {
	return s.filter(func(t *models.Task) bool { return t.UserID == userID })
}

// All returns every task, soonest first.
func (s *Store) All() []*models.Task {
	return s.filter(func(*models.Task) bool { return true })
}

// Due returns enabled tasks whose execution time has passed.
func (s *Store) Due(now time.Time) []*models.Task {
	return s.filter(func(t *models.Task) bool { return t.Due(now) })
}

func (s *Store) filter(keep func(*models.Task) bool) []*models.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Task
	for _, task := range s.tasks {
		if keep(task) {
			clone := *task
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExecuteAt < out[j].ExecuteAt })
	return out
}

// MarkRun records an execution: recurring tasks are rescheduled, one-shot
// tasks are removed.
func (s *Store) MarkRun(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok {
		return
	}
	now := s.now()
	task.LastRun = now.Unix()
	task.RunCount++

	switch {
	case task.CronExpr != "":
		if schedule, err := cronParser.Parse(task.CronExpr); err == nil {
			task.ExecuteAt = schedule.Next(now).Unix()
		} else {
			delete(s.tasks, id)
		}
	case task.Recurring && task.IntervalMinutes > 0:
		task.ExecuteAt = now.Add(time.Duration(task.IntervalMinutes) * time.Minute).Unix()
	default:
		delete(s.tasks, id)
	}
	s.saveLocked()
}

// Count returns the number of stored tasks.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

func randomHex(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%06x", time.Now().UnixNano()&0xffffff)
	}
	return hex.EncodeToString(buf)
}
