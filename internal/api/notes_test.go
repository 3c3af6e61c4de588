package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dayline/dayline/internal/status"
	"github.com/dayline/dayline/internal/storage"
)

func createNoteRow(t *testing.T, store *storage.Store, id string, st status.Status) storage.Note {
	t.Helper()
	note := storage.Note{
		ID:               id,
		Title:            "Note " + id,
		Content:          "content of " + id,
		ProcessingStatus: st,
	}
	if err := store.CreateNote(note); err != nil {
		t.Fatalf("CreateNote(%q) failed: %v", id, err)
	}
	return note
}

func claimedJob(t *testing.T, store *storage.Store, jobType string) *storage.Job {
	t.Helper()
	job, err := store.ClaimNextJob([]string{jobType})
	if err != nil {
		t.Fatalf("ClaimNextJob failed: %v", err)
	}
	return job
}

func TestCreateNote(t *testing.T) {
	h, store := setupHandler(t)

	body := `{"title":"Groceries","content":"milk and eggs","tags":["errand"]}`
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodPost, "/notes", body, testToken))

	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d; body = %s", rr.Code, http.StatusCreated, rr.Body.String())
	}

	var created storage.Note
	if err := json.NewDecoder(rr.Body).Decode(&created); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if created.ID == "" {
		t.Fatal("response missing id")
	}
	if created.ProcessingStatus != status.Pending {
		t.Errorf("ProcessingStatus = %q, want %q", created.ProcessingStatus, status.Pending)
	}

	got, err := store.GetNote(created.ID)
	if err != nil {
		t.Fatalf("GetNote(%q) failed: %v", created.ID, err)
	}
	if got.Content != "milk and eggs" {
		t.Errorf("Content = %q, want %q", got.Content, "milk and eggs")
	}
	if got.Tags != `["errand"]` {
		t.Errorf("Tags = %q, want %q", got.Tags, `["errand"]`)
	}

	job := claimedJob(t, store, storage.JobEnrichNote)
	if job == nil {
		t.Fatal("no enrichment job queued")
	}
	if !strings.Contains(job.PayloadJSON, created.ID) {
		t.Errorf("job payload %q missing note id %q", job.PayloadJSON, created.ID)
	}
}

func TestCreateNote_MissingContent(t *testing.T) {
	h, _ := setupHandler(t)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodPost, "/notes", `{"title":"empty"}`, testToken))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestCreateNote_InvalidJSON(t *testing.T) {
	h, _ := setupHandler(t)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodPost, "/notes", `{not json`, testToken))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestGetNote(t *testing.T) {
	h, store := setupHandler(t)
	createNoteRow(t, store, "n-get-1", status.Completed)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodGet, "/notes/n-get-1", "", testToken))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body = %s", rr.Code, http.StatusOK, rr.Body.String())
	}

	var got storage.Note
	json.NewDecoder(rr.Body).Decode(&got)
	if got.ID != "n-get-1" {
		t.Errorf("ID = %q, want %q", got.ID, "n-get-1")
	}
	if got.ProcessingStatus != status.Completed {
		t.Errorf("ProcessingStatus = %q, want %q", got.ProcessingStatus, status.Completed)
	}
}

func TestGetNote_NotFound(t *testing.T) {
	h, _ := setupHandler(t)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodGet, "/notes/nonexistent", "", testToken))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusNotFound)
	}
}

func TestListNotes_Empty(t *testing.T) {
	h, _ := setupHandler(t)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodGet, "/notes", "", testToken))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
	if body := strings.TrimSpace(rr.Body.String()); body != "[]" {
		t.Errorf("body = %q, want %q", body, "[]")
	}
}

func TestListNotes_Limit(t *testing.T) {
	h, store := setupHandler(t)
	for i := 0; i < 3; i++ {
		createNoteRow(t, store, fmt.Sprintf("n-%d", i), status.Pending)
	}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodGet, "/notes?limit=2", "", testToken))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}

	var notes []storage.Note
	json.NewDecoder(rr.Body).Decode(&notes)
	if len(notes) != 2 {
		t.Fatalf("got %d notes, want 2", len(notes))
	}
}

func TestListNotes_StatusFilter(t *testing.T) {
	h, store := setupHandler(t)
	createNoteRow(t, store, "n-pending", status.Pending)
	createNoteRow(t, store, "n-failed", status.Failed)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodGet, "/notes?status=FAILED", "", testToken))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}

	var notes []storage.Note
	json.NewDecoder(rr.Body).Decode(&notes)
	if len(notes) != 1 {
		t.Fatalf("got %d notes, want 1", len(notes))
	}
	if notes[0].ID != "n-failed" {
		t.Errorf("ID = %q, want n-failed", notes[0].ID)
	}
}

func TestListNotes_BadStatusFilter(t *testing.T) {
	h, _ := setupHandler(t)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodGet, "/notes?status=BOGUS", "", testToken))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestDeleteNote(t *testing.T) {
	h, store := setupHandler(t)
	createNoteRow(t, store, "n-del-1", status.Completed)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodDelete, "/notes/n-del-1", "", testToken))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}

	var resp map[string]string
	json.NewDecoder(rr.Body).Decode(&resp)
	if resp["status"] != "deleted" {
		t.Errorf("status = %q, want deleted", resp["status"])
	}

	if _, err := store.GetNote("n-del-1"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("GetNote after delete: err = %v, want ErrNotFound", err)
	}
}

func TestDeleteNote_NotFound(t *testing.T) {
	h, _ := setupHandler(t)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodDelete, "/notes/nonexistent", "", testToken))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusNotFound)
	}
}
