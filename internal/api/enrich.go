package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dayline/dayline/internal/dispatch"
	"github.com/dayline/dayline/internal/status"
	"github.com/dayline/dayline/internal/storage"
)

// The enrich handlers re-queue an entity for enrichment. The request is
// legal only when the status machine admits a move to PENDING from the
// entity's current status (fresh, failed, or skipped entities); anything
// else is a 409.

func handleEnrichNote(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		note, err := deps.Store.GetNote(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "note not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get note: %v", err)
			return
		}

		if err := status.Check(note.ProcessingStatus, status.Pending); err != nil {
			httpError(w, http.StatusConflict, "conflict", "%v", err)
			return
		}

		note.ProcessingStatus = status.Pending
		if err := deps.Store.SaveNote(note); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save note: %v", err)
			return
		}
		if err := deps.Store.EnqueueJob(dispatch.NewJob(storage.JobEnrichNote, id)); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to enqueue enrichment: %v", err)
			return
		}

		writeQueued(w, id)
	}
}

func handleEnrichTask(deps Deps) http.HandlerFunc {
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

		if err := status.Check(task.ProcessingStatus, status.Pending); err != nil {
			httpError(w, http.StatusConflict, "conflict", "%v", err)
			return
		}

		task.ProcessingStatus = status.Pending
		if err := deps.Store.SaveTask(task); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save task: %v", err)
			return
		}
		if err := deps.Store.EnqueueJob(dispatch.NewJob(storage.JobEnrichTask, id)); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to enqueue enrichment: %v", err)
			return
		}

		writeQueued(w, id)
	}
}

func handleEnrichActivity(deps Deps) http.HandlerFunc {
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

		if err := status.Check(activity.ProcessingStatus, status.Pending); err != nil {
			httpError(w, http.StatusConflict, "conflict", "%v", err)
			return
		}

		activity.ProcessingStatus = status.Pending
		if err := deps.Store.SaveActivity(activity); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save activity: %v", err)
			return
		}
		if err := deps.Store.EnqueueJob(dispatch.NewJob(storage.JobEnrichActivity, id)); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to enqueue enrichment: %v", err)
			return
		}

		writeQueued(w, id)
	}
}

func writeQueued(w http.ResponseWriter, id string) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"id": id, "status": "queued"})
}
