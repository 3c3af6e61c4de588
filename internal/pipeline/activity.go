package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dayline/dayline/internal/enrich"
	"github.com/dayline/dayline/internal/metrics"
	"github.com/dayline/dayline/internal/status"
	"github.com/dayline/dayline/internal/storage"
)

// ActivityStore is the slice of storage the activity worker needs.
type ActivityStore interface {
	GetActivity(id string) (storage.Activity, error)
	SaveActivity(a storage.Activity) error
}

// ActivityWorker analyzes an activity's field schema and persists the
// suggested display templates.
//
// Unlike the note and task workers it runs its own attempt loop and talks
// to the service directly: schema analysis is a small metadata-only call,
// so it does not reserve capacity up front and treats a 429 as just another
// transient failure to retry.
type ActivityWorker struct {
	store  ActivityStore
	svc    enrich.Service
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewActivityWorker creates an ActivityWorker with the given dependencies.
func NewActivityWorker(store ActivityStore, svc enrich.Service, cfg Config) *ActivityWorker {
	return &ActivityWorker{
		store:  store,
		svc:    svc,
		cfg:    cfg.withDefaults(),
		logger: slog.Default(),
		now:    time.Now,
		sleep:  sleepCtx,
	}
}

// Process analyzes the schema of the activity with the given id. Same
// lifecycle as the other workers: PROCESSING immediately, then COMPLETED
// or FAILED.
func (w *ActivityWorker) Process(ctx context.Context, id string) error {
	activity, err := w.store.GetActivity(id)
	if err != nil {
		return fmt.Errorf("loading activity %s: %w", id, err)
	}

	if err := status.Check(activity.ProcessingStatus, status.Processing); err != nil {
		return fmt.Errorf("activity %s: %w", id, err)
	}
	activity.ProcessingStatus = status.Processing
	if err := w.store.SaveActivity(activity); err != nil {
		return fmt.Errorf("marking activity %s processing: %w", id, err)
	}

	var schema map[string]any
	if err := json.Unmarshal([]byte(activity.SchemaJSON), &schema); err != nil {
		return fmt.Errorf("activity %s: %w: malformed schema: %v", id, enrich.ErrValidation, err)
	}

	var result *enrich.SchemaResult
	var lastErr error
	attempts := 0
	for attempt := 1; attempt <= w.cfg.MaxRetries+1; attempt++ {
		attempts++
		result, lastErr = w.svc.AnalyzeSchema(ctx, schema)
		if lastErr == nil {
			break
		}
		if abandons(lastErr) || attempt > w.cfg.MaxRetries {
			break
		}

		delay := w.cfg.BaseDelay << (attempt - 1)
		if delay > maxInlineDelay {
			delay = maxInlineDelay
		}
		if serr := w.sleep(ctx, delay); serr != nil {
			lastErr = serr
			break
		}
	}
	metrics.ObserveRetries("activity", attempts-1)
	if lastErr != nil {
		if abandons(lastErr) {
			return fmt.Errorf("activity %s: %w", id, lastErr)
		}
		w.fail(activity, id, attempts, lastErr)
		return &ProcessingError{Kind: "activity", ID: id, Err: lastErr}
	}

	payload, err := marshalSchemaEnrichment(result, attempts)
	if err != nil {
		return fmt.Errorf("activity %s: %w", id, err)
	}

	processedAt := w.now().UTC()
	activity.ProcessingStatus = status.Completed
	activity.EnrichmentJSON = payload
	activity.ProcessedAt = &processedAt
	if err := w.store.SaveActivity(activity); err != nil {
		return fmt.Errorf("saving analyzed activity %s: %w", id, err)
	}

	w.logger.Info("activity schema analyzed",
		"activity_id", id,
		"attempts", attempts,
		"tokens_used", result.TokensUsed,
	)
	return nil
}

func (w *ActivityWorker) fail(activity storage.Activity, id string, attempts int, cause error) {
	activity.ProcessingStatus = status.Failed
	activity.EnrichmentJSON = ""
	activity.ProcessedAt = nil
	if err := w.store.SaveActivity(activity); err != nil {
		w.logger.Error("failed to mark activity failed", "activity_id", id, "error", err)
	}
	w.logger.Warn("activity analysis failed", "activity_id", id, "attempts", attempts, "error", cause)
}
