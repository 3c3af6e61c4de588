package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dayline/dayline/internal/status"
	"github.com/dayline/dayline/internal/storage"
)

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func TestEnrichNote_FromFailed(t *testing.T) {
	h, store := setupHandler(t)
	createNoteRow(t, store, "n-failed", status.Failed)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodPost, "/notes/n-failed/enrich", "", testToken))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body = %s", rr.Code, http.StatusOK, rr.Body.String())
	}

	var resp map[string]string
	json.NewDecoder(rr.Body).Decode(&resp)
	if resp["status"] != "queued" {
		t.Errorf("status = %q, want queued", resp["status"])
	}
	if resp["id"] != "n-failed" {
		t.Errorf("id = %q, want n-failed", resp["id"])
	}

	note, err := store.GetNote("n-failed")
	if err != nil {
		t.Fatalf("GetNote failed: %v", err)
	}
	if note.ProcessingStatus != status.Pending {
		t.Errorf("ProcessingStatus = %q, want %q", note.ProcessingStatus, status.Pending)
	}

	job := claimedJob(t, store, storage.JobEnrichNote)
	if job == nil {
		t.Fatal("no enrichment job queued")
	}
}

func TestEnrichNote_FromSkipped(t *testing.T) {
	h, store := setupHandler(t)
	createNoteRow(t, store, "n-skipped", status.Skipped)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodPost, "/notes/n-skipped/enrich", "", testToken))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body = %s", rr.Code, http.StatusOK, rr.Body.String())
	}
}

func TestEnrichNote_Conflicts(t *testing.T) {
	for _, st := range []status.Status{status.Pending, status.Processing, status.Completed} {
		t.Run(string(st), func(t *testing.T) {
			h, store := setupHandler(t)
			createNoteRow(t, store, "n-conflict", st)

			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, authReq(http.MethodPost, "/notes/n-conflict/enrich", "", testToken))

			if rr.Code != http.StatusConflict {
				t.Fatalf("status = %d, want %d; body = %s", rr.Code, http.StatusConflict, rr.Body.String())
			}

			var resp errorResponse
			json.NewDecoder(rr.Body).Decode(&resp)
			if resp.Error.Type != "conflict" {
				t.Errorf("error type = %q, want conflict", resp.Error.Type)
			}

			note, err := store.GetNote("n-conflict")
			if err != nil {
				t.Fatalf("GetNote failed: %v", err)
			}
			if note.ProcessingStatus != st {
				t.Errorf("ProcessingStatus changed to %q, want %q", note.ProcessingStatus, st)
			}

			if job := claimedJob(t, store, storage.JobEnrichNote); job != nil {
				t.Errorf("job was queued despite conflict: %+v", job)
			}
		})
	}
}

func TestEnrichNote_NotFound(t *testing.T) {
	h, _ := setupHandler(t)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodPost, "/notes/nonexistent/enrich", "", testToken))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusNotFound)
	}
}

func TestEnrichTask_FromFailed(t *testing.T) {
	h, store := setupHandler(t)
	err := store.CreateTask(storage.Task{ID: "t-failed", Title: "retry me", ProcessingStatus: status.Failed})
	if err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodPost, "/tasks/t-failed/enrich", "", testToken))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body = %s", rr.Code, http.StatusOK, rr.Body.String())
	}

	task, err := store.GetTask("t-failed")
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if task.ProcessingStatus != status.Pending {
		t.Errorf("ProcessingStatus = %q, want %q", task.ProcessingStatus, status.Pending)
	}

	if job := claimedJob(t, store, storage.JobEnrichTask); job == nil {
		t.Fatal("no enrichment job queued")
	}
}

func TestEnrichActivity_CompletedConflict(t *testing.T) {
	h, store := setupHandler(t)
	err := store.CreateActivity(storage.Activity{
		ID:               "a-done",
		Name:             "Yoga",
		SchemaJSON:       `{"minutes":"number"}`,
		ProcessingStatus: status.Completed,
	})
	if err != nil {
		t.Fatalf("CreateActivity failed: %v", err)
	}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodPost, "/activities/a-done/enrich", "", testToken))

	if rr.Code != http.StatusConflict {
		t.Fatalf("status = %d, want %d; body = %s", rr.Code, http.StatusConflict, rr.Body.String())
	}
}
