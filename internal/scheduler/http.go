package scheduler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/courierai/courier/pkg/models"
)

// API is the scheduler's HTTP surface.
type API struct {
	store     *Store
	scheduler *Scheduler
	logger    *slog.Logger
	now       func() time.Time
}

// NewAPI builds the HTTP handler set for a store and its scheduler.
func NewAPI(store *Store, sched *Scheduler, logger *slog.Logger) *API {
	if logger == nil {
		logger = slog.Default()
	}
	return &API{store: store, scheduler: sched, logger: logger, now: time.Now}
}

// Register attaches the scheduler routes to a mux.
func (a *API) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", a.handleHealth)
	mux.HandleFunc("GET /tasks", a.handleList)
	mux.HandleFunc("POST /tasks", a.handleCreate)
	mux.HandleFunc("GET /tasks/{id}", a.handleGet)
	mux.HandleFunc("PUT /tasks/{id}", a.handleUpdate)
	mux.HandleFunc("DELETE /tasks/{id}", a.handleDelete)
	mux.HandleFunc("POST /tasks/{id}/run", a.handleRunNow)
	mux.HandleFunc("GET /stats", a.handleStats)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "error": msg})
}

func (a *API) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"tasks_count": a.store.Count(),
	})
}

func (a *API) taskView(task *models.Task) map[string]any {
	now := a.now()
	view := map[string]any{
		"id":                task.ID,
		"user_id":           task.UserID,
		"chat_id":           task.ChatID,
		"type":              task.TaskType,
		"content":           task.Content,
		"next_run":          task.NextRunAt().Format("2006-01-02 15:04:05"),
		"time_left_minutes": int(task.NextRunAt().Sub(now).Minutes()),
		"recurring":         task.Recurring,
		"interval_minutes":  task.IntervalMinutes,
		"source":            task.Source,
		"enabled":           task.Enabled,
		"run_count":         task.RunCount,
		"created_at":        time.Unix(task.CreatedAt, 0).Format("2006-01-02 15:04:05"),
	}
	if task.CronExpr != "" {
		view["cron_expr"] = task.CronExpr
	}
	if task.LastRun != 0 {
		view["last_run"] = time.Unix(task.LastRun, 0).Format("2006-01-02 15:04:05")
	}
	return view
}

func (a *API) handleList(w http.ResponseWriter, r *http.Request) {
	var tasks []*models.Task
	if userID := parseID(r.URL.Query().Get("user_id")); userID != 0 {
		tasks = a.store.UserTasks(userID)
	} else {
		tasks = a.store.All()
	}

	views := make([]map[string]any, 0, len(tasks))
	for _, task := range tasks {
		views = append(views, a.taskView(task))
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": views, "total": len(views)})
}

func (a *API) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	task, err := a.store.Create(req)
	if err != nil {
		status := http.StatusBadRequest
		writeError(w, status, err.Error())
		return
	}

	recurInfo := " (once)"
	if task.Recurring {
		recurInfo = " (repeat every " + strconv.Itoa(task.IntervalMinutes) + "min)"
	}
	a.logger.Info("task created", "task", task.ID, "user", task.UserID, "type", task.TaskType)
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"task_id":  task.ID,
		"message":  "✅ Scheduled at " + task.NextRunAt().Format("15:04") + recurInfo,
		"next_run": task.NextRunAt().Format("2006-01-02 15:04:05"),
	})
}

func (a *API) handleGet(w http.ResponseWriter, r *http.Request) {
	task, err := a.store.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "Task not found")
		return
	}
	writeJSON(w, http.StatusOK, a.taskView(task))
}

func (a *API) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var req UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	task, err := a.store.Update(r.PathValue("id"), req)
	if err != nil {
		writeError(w, http.StatusNotFound, "Task not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "task_id": task.ID})
}

func (a *API) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	err := a.store.Delete(id, parseID(r.URL.Query().Get("user_id")))
	switch {
	case errors.Is(err, ErrTaskNotFound):
		writeError(w, http.StatusNotFound, "Task not found")
	case errors.Is(err, ErrNotOwner):
		writeError(w, http.StatusForbidden, err.Error())
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		a.logger.Info("task deleted", "task", id)
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Task " + id + " deleted"})
	}
}

func (a *API) handleRunNow(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	task, err := a.store.Get(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "Task not found")
		return
	}
	a.scheduler.Fire(r.Context(), task)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Task " + id + " triggered"})
}

func (a *API) handleStats(w http.ResponseWriter, _ *http.Request) {
	tasks := a.store.All()
	now := a.now()

	stats := map[string]any{
		"total_tasks": len(tasks),
	}
	active, recurring, dueSoon := 0, 0, 0
	byType := map[string]int{"message": 0, "agent": 0}
	bySource := map[string]int{"bot": 0, "userbot": 0}
	for _, task := range tasks {
		if task.Enabled {
			active++
		}
		if task.Recurring {
			recurring++
		}
		if task.NextRunAt().Sub(now) < 5*time.Minute {
			dueSoon++
		}
		byType[string(task.TaskType)]++
		bySource[task.Source]++
	}
	stats["active_tasks"] = active
	stats["recurring_tasks"] = recurring
	stats["due_soon"] = dueSoon
	stats["by_type"] = byType
	stats["by_source"] = bySource
	writeJSON(w, http.StatusOK, stats)
}

func parseID(s string) int64 {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return id
}
