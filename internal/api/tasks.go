package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dayline/dayline/internal/dispatch"
	"github.com/dayline/dayline/internal/status"
	"github.com/dayline/dayline/internal/storage"
)

type createTaskRequest struct {
	Title   string     `json:"title"`
	Details string     `json:"details"`
	DueAt   *time.Time `json:"due_at"`
}

func handleCreateTask(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req createTaskRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Title == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "title is required")
			return
		}

		now := time.Now().UTC()
		task := storage.Task{
			ID:               uuid.New().String(),
			Title:            req.Title,
			Details:          req.Details,
			DueAt:            req.DueAt,
			ProcessingStatus: status.Pending,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if err := deps.Store.CreateTask(task); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save task: %v", err)
			return
		}
		if err := deps.Store.EnqueueJob(dispatch.NewJob(storage.JobEnrichTask, task.ID)); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to enqueue enrichment: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(task)
	}
}

func handleListTasks(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", defaultListLimit, maxListLimit)

		var tasks []storage.Task
		var err error
		if raw := r.URL.Query().Get("status"); raw != "" {
			st, perr := status.Parse(raw)
			if perr != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid status filter: %v", perr)
				return
			}
			tasks, err = deps.Store.ListTasksByStatus(st, limit)
		} else {
			tasks, err = deps.Store.ListTasks(limit)
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list tasks: %v", err)
			return
		}

		if tasks == nil {
			tasks = []storage.Task{}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(tasks)
	}
}

func handleGetTask(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		task, err := deps.Store.GetTask(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "task not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get task: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(task)
	}
}

func handleDeleteTask(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		err := deps.Store.DeleteTask(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "task not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete task: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "deleted"})
	}
}
