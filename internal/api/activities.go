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

type createActivityRequest struct {
	Name   string         `json:"name"`
	Schema map[string]any `json:"schema"`
}

func handleCreateActivity(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req createActivityRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Name == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "name is required")
			return
		}
		if len(req.Schema) == 0 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "schema is required")
			return
		}

		schemaJSON, err := json.Marshal(req.Schema)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to marshal schema: %v", err)
			return
		}

		now := time.Now().UTC()
		activity := storage.Activity{
			ID:               uuid.New().String(),
			Name:             req.Name,
			SchemaJSON:       string(schemaJSON),
			ProcessingStatus: status.Pending,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if err := deps.Store.CreateActivity(activity); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save activity: %v", err)
			return
		}
		if err := deps.Store.EnqueueJob(dispatch.NewJob(storage.JobEnrichActivity, activity.ID)); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to enqueue enrichment: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(activity)
	}
}

func handleListActivities(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", defaultListLimit, maxListLimit)

		var activities []storage.Activity
		var err error
		if raw := r.URL.Query().Get("status"); raw != "" {
			st, perr := status.Parse(raw)
			if perr != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid status filter: %v", perr)
				return
			}
			activities, err = deps.Store.ListActivitiesByStatus(st, limit)
		} else {
			activities, err = deps.Store.ListActivities(limit)
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list activities: %v", err)
			return
		}

		if activities == nil {
			activities = []storage.Activity{}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(activities)
	}
}

func handleGetActivity(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		activity, err := deps.Store.GetActivity(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "activity not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get activity: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(activity)
	}
}

func handleDeleteActivity(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		err := deps.Store.DeleteActivity(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "activity not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete activity: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "deleted"})
	}
}
