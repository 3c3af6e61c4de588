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

type createNoteRequest struct {
	Title   string   `json:"title"`
	Content string   `json:"content"`
	Tags    []string `json:"tags"`
}

func handleCreateNote(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req createNoteRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Content == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "content is required")
			return
		}

		tagsJSON, err := marshalTags(req.Tags)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to marshal tags: %v", err)
			return
		}

		now := time.Now().UTC()
		note := storage.Note{
			ID:               uuid.New().String(),
			Title:            req.Title,
			Content:          req.Content,
			Tags:             tagsJSON,
			ProcessingStatus: status.Pending,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if err := deps.Store.CreateNote(note); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save note: %v", err)
			return
		}
		if err := deps.Store.EnqueueJob(dispatch.NewJob(storage.JobEnrichNote, note.ID)); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to enqueue enrichment: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(note)
	}
}

func handleListNotes(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", defaultListLimit, maxListLimit)

		var notes []storage.Note
		var err error
		if raw := r.URL.Query().Get("status"); raw != "" {
			st, perr := status.Parse(raw)
			if perr != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid status filter: %v", perr)
				return
			}
			notes, err = deps.Store.ListNotesByStatus(st, limit)
		} else {
			notes, err = deps.Store.ListNotes(limit)
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list notes: %v", err)
			return
		}

		if notes == nil {
			notes = []storage.Note{}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(notes)
	}
}

func handleGetNote(deps Deps) http.HandlerFunc {
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

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(note)
	}
}

func handleDeleteNote(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		err := deps.Store.DeleteNote(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "note not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete note: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "deleted"})
	}
}
