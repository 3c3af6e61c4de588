package ingest

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dayline/dayline/internal/dispatch"
	"github.com/dayline/dayline/internal/status"
	"github.com/dayline/dayline/internal/storage"
)

// NoteStore abstracts the persistence the importer needs.
type NoteStore interface {
	CreateNote(n storage.Note) error
	EnqueueJob(job storage.Job) error
}

// Importer turns files, fetched pages, and raw text into pending notes
// with an enrichment job queued for each.
type Importer struct {
	store  NoteStore
	logger *slog.Logger
	now    func() time.Time
}

func NewImporter(store NoteStore, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// ImportFile reads a file from disk and stores its text as a pending note.
func (im *Importer) ImportFile(path string, tags []string) (storage.Note, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return storage.Note{}, fmt.Errorf("reading %s: %w", path, err)
	}
	return im.ImportData(filepath.Base(path), data, tags)
}

// ImportData extracts text from raw source bytes and stores it as a
// pending note. The name drives format detection (pdf, html, plain text).
func (im *Importer) ImportData(name string, data []byte, tags []string) (storage.Note, error) {
	doc, err := ExtractText(name, data)
	if err != nil {
		return storage.Note{}, err
	}
	return im.ImportDocument(doc, tags)
}

// ImportDocument stores an already-extracted document as a pending note
// and queues its enrichment.
func (im *Importer) ImportDocument(doc Document, tags []string) (storage.Note, error) {
	if strings.TrimSpace(doc.Text) == "" {
		return storage.Note{}, ErrEmptyDocument
	}

	tagsJSON := "[]"
	if len(tags) > 0 {
		b, err := json.Marshal(tags)
		if err != nil {
			return storage.Note{}, fmt.Errorf("marshaling tags: %w", err)
		}
		tagsJSON = string(b)
	}

	now := im.now().UTC()
	note := storage.Note{
		ID:               uuid.New().String(),
		Title:            doc.Title,
		Content:          doc.Text,
		Tags:             tagsJSON,
		ProcessingStatus: status.Pending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := im.store.CreateNote(note); err != nil {
		return storage.Note{}, fmt.Errorf("saving note: %w", err)
	}
	if err := im.store.EnqueueJob(dispatch.NewJob(storage.JobEnrichNote, note.ID)); err != nil {
		return storage.Note{}, fmt.Errorf("queueing enrichment: %w", err)
	}

	im.logger.Info("imported note",
		"note_id", note.ID,
		"title", note.Title,
		"bytes", len(doc.Text),
	)
	return note, nil
}
