package ingest

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dayline/dayline/internal/status"
	"github.com/dayline/dayline/internal/storage"
)

func openTestStore(t *testing.T) *storage.Store {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func testImporter(t *testing.T, store *storage.Store) *Importer {
	t.Helper()
	im := NewImporter(store, slog.New(slog.NewTextHandler(io.Discard, nil)))
	im.now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	return im
}

func TestImportDocument(t *testing.T) {
	store := openTestStore(t)
	im := testImporter(t, store)

	note, err := im.ImportDocument(Document{Title: "Trip planning", Text: "Fly out Friday."}, []string{"travel"})
	if err != nil {
		t.Fatalf("ImportDocument failed: %v", err)
	}

	got, err := store.GetNote(note.ID)
	if err != nil {
		t.Fatalf("GetNote(%q) failed: %v", note.ID, err)
	}
	if got.Title != "Trip planning" {
		t.Errorf("Title = %q, want %q", got.Title, "Trip planning")
	}
	if got.Content != "Fly out Friday." {
		t.Errorf("Content = %q, want %q", got.Content, "Fly out Friday.")
	}
	if got.Tags != `["travel"]` {
		t.Errorf("Tags = %q, want %q", got.Tags, `["travel"]`)
	}
	if got.ProcessingStatus != status.Pending {
		t.Errorf("ProcessingStatus = %q, want %q", got.ProcessingStatus, status.Pending)
	}
}

func TestImportQueuesEnrichmentJob(t *testing.T) {
	store := openTestStore(t)
	im := testImporter(t, store)

	note, err := im.ImportDocument(Document{Title: "t", Text: "body"}, nil)
	if err != nil {
		t.Fatalf("ImportDocument failed: %v", err)
	}

	job, err := store.ClaimNextJob([]string{storage.JobEnrichNote})
	if err != nil {
		t.Fatalf("ClaimNextJob failed: %v", err)
	}
	if job == nil {
		t.Fatal("no enrichment job queued")
	}
	if job.Type != storage.JobEnrichNote {
		t.Errorf("job.Type = %q, want %q", job.Type, storage.JobEnrichNote)
	}
	if want := `{"entity_id":"` + note.ID + `"}`; job.PayloadJSON != want {
		t.Errorf("job.PayloadJSON = %q, want %q", job.PayloadJSON, want)
	}
}

func TestImportDocumentEmptyText(t *testing.T) {
	store := openTestStore(t)
	im := testImporter(t, store)

	if _, err := im.ImportDocument(Document{Title: "t", Text: "   "}, nil); !errors.Is(err, ErrEmptyDocument) {
		t.Fatalf("err = %v, want ErrEmptyDocument", err)
	}

	notes, err := store.ListNotes(10)
	if err != nil {
		t.Fatalf("ListNotes failed: %v", err)
	}
	if len(notes) != 0 {
		t.Errorf("got %d notes, want 0", len(notes))
	}
}

func TestImportFile(t *testing.T) {
	store := openTestStore(t)
	im := testImporter(t, store)

	path := filepath.Join(t.TempDir(), "standup.md")
	if err := os.WriteFile(path, []byte("Standup notes\n\n- shipped the importer\n"), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	note, err := im.ImportFile(path, nil)
	if err != nil {
		t.Fatalf("ImportFile failed: %v", err)
	}
	if note.Title != "Standup notes" {
		t.Errorf("Title = %q, want %q", note.Title, "Standup notes")
	}

	got, err := store.GetNote(note.ID)
	if err != nil {
		t.Fatalf("GetNote failed: %v", err)
	}
	if got.Tags != "[]" {
		t.Errorf("Tags = %q, want %q", got.Tags, "[]")
	}
}

func TestImportFileMissing(t *testing.T) {
	store := openTestStore(t)
	im := testImporter(t, store)

	if _, err := im.ImportFile(filepath.Join(t.TempDir(), "nope.txt"), nil); err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}
