package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dayline/dayline/internal/enrich"
	"github.com/dayline/dayline/internal/metrics"
	"github.com/dayline/dayline/internal/retry"
	"github.com/dayline/dayline/internal/status"
	"github.com/dayline/dayline/internal/storage"
)

// NoteStore is the slice of storage the note worker needs.
type NoteStore interface {
	GetNote(id string) (storage.Note, error)
	SaveNote(n storage.Note) error
}

// NoteWorker enriches a single note: title, formatted content, and any
// entities the service can pull out of the text.
type NoteWorker struct {
	store   NoteStore
	svc     enrich.Service
	limiter CapacityGate
	cfg     Config
	logger  *slog.Logger
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewNoteWorker creates a NoteWorker with the given dependencies.
func NewNoteWorker(store NoteStore, svc enrich.Service, limiter CapacityGate, cfg Config) *NoteWorker {
	return &NoteWorker{
		store:   store,
		svc:     svc,
		limiter: limiter,
		cfg:     cfg.withDefaults(),
		logger:  slog.Default(),
		now:     time.Now,
		sleep:   sleepCtx,
	}
}

// Process enriches the note with the given id. The note moves to PROCESSING
// immediately, then to COMPLETED or FAILED depending on how the attempt loop
// ends. A missing note is reported without touching anything; configuration
// and validation failures leave the note in PROCESSING for the sweeper to
// pick up.
func (w *NoteWorker) Process(ctx context.Context, id string) error {
	note, err := w.store.GetNote(id)
	if err != nil {
		return fmt.Errorf("loading note %s: %w", id, err)
	}

	if err := status.Check(note.ProcessingStatus, status.Processing); err != nil {
		return fmt.Errorf("note %s: %w", id, err)
	}
	note.ProcessingStatus = status.Processing
	if err := w.store.SaveNote(note); err != nil {
		return fmt.Errorf("marking note %s processing: %w", id, err)
	}

	if err := w.svc.ValidateContent(note.Content); err != nil {
		return fmt.Errorf("note %s: %w", id, err)
	}

	estimated := enrich.EstimateTokens(note.Content)
	attempts := 0
	result, err := retry.Do(ctx, retryPolicy(w.cfg, w.sleep), func(ctx context.Context) (*enrich.Result, error) {
		attempts++
		if !w.limiter.WaitForCapacity(ctx, estimated) {
			return nil, fmt.Errorf("%w: no capacity for %d tokens", enrich.ErrRateLimited, estimated)
		}
		return w.svc.ProcessText(ctx, note.Content, "note")
	})
	metrics.ObserveRetries("note", attempts-1)
	if err != nil {
		if abandons(err) {
			return fmt.Errorf("note %s: %w", id, err)
		}
		w.fail(note, id, attempts, err)
		return &ProcessingError{Kind: "note", ID: id, Err: err}
	}

	entities := w.extractEntities(ctx, note.Content)

	payload, err := marshalTextEnrichment(result, entities, attempts)
	if err != nil {
		return fmt.Errorf("note %s: %w", id, err)
	}

	processedAt := w.now().UTC()
	note.ProcessingStatus = status.Completed
	note.EnrichmentJSON = payload
	note.ProcessedAt = &processedAt
	if err := w.store.SaveNote(note); err != nil {
		return fmt.Errorf("saving enriched note %s: %w", id, err)
	}

	w.logger.Info("note enriched",
		"note_id", id,
		"attempts", attempts,
		"tokens_used", result.TokensUsed,
		"entities", len(entities),
	)
	return nil
}

// extractEntities is best-effort: a denial or failure only costs the note
// its entity list, never the enrichment itself.
func (w *NoteWorker) extractEntities(ctx context.Context, content string) []enrich.Entity {
	if !w.limiter.WaitForCapacity(ctx, enrich.EstimateTokens(content)) {
		w.logger.Debug("skipping entity extraction, no capacity")
		return nil
	}
	entities, err := w.svc.ExtractEntities(ctx, content)
	if err != nil {
		w.logger.Warn("entity extraction failed", "error", err)
		return nil
	}
	return entities
}

func (w *NoteWorker) fail(note storage.Note, id string, attempts int, cause error) {
	note.ProcessingStatus = status.Failed
	note.EnrichmentJSON = ""
	note.ProcessedAt = nil
	if err := w.store.SaveNote(note); err != nil {
		w.logger.Error("failed to mark note failed", "note_id", id, "error", err)
	}
	w.logger.Warn("note enrichment failed", "note_id", id, "attempts", attempts, "error", cause)
}
