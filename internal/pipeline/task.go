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

// TaskStore is the slice of storage the task worker needs.
type TaskStore interface {
	GetTask(id string) (storage.Task, error)
	SaveTask(t storage.Task) error
}

// TaskWorker enriches a single task from its title and details.
type TaskWorker struct {
	store   TaskStore
	svc     enrich.Service
	limiter CapacityGate
	cfg     Config
	logger  *slog.Logger
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewTaskWorker creates a TaskWorker with the given dependencies.
func NewTaskWorker(store TaskStore, svc enrich.Service, limiter CapacityGate, cfg Config) *TaskWorker {
	return &TaskWorker{
		store:   store,
		svc:     svc,
		limiter: limiter,
		cfg:     cfg.withDefaults(),
		logger:  slog.Default(),
		now:     time.Now,
		sleep:   sleepCtx,
	}
}

// Process enriches the task with the given id. Same lifecycle as the note
// worker: PROCESSING immediately, then COMPLETED or FAILED.
func (w *TaskWorker) Process(ctx context.Context, id string) error {
	task, err := w.store.GetTask(id)
	if err != nil {
		return fmt.Errorf("loading task %s: %w", id, err)
	}

	if err := status.Check(task.ProcessingStatus, status.Processing); err != nil {
		return fmt.Errorf("task %s: %w", id, err)
	}
	task.ProcessingStatus = status.Processing
	if err := w.store.SaveTask(task); err != nil {
		return fmt.Errorf("marking task %s processing: %w", id, err)
	}

	text := taskText(task)
	if err := w.svc.ValidateContent(text); err != nil {
		return fmt.Errorf("task %s: %w", id, err)
	}

	estimated := enrich.EstimateTokens(text)
	attempts := 0
	result, err := retry.Do(ctx, retryPolicy(w.cfg, w.sleep), func(ctx context.Context) (*enrich.Result, error) {
		attempts++
		if !w.limiter.WaitForCapacity(ctx, estimated) {
			return nil, fmt.Errorf("%w: no capacity for %d tokens", enrich.ErrRateLimited, estimated)
		}
		return w.svc.ProcessText(ctx, text, "task")
	})
	metrics.ObserveRetries("task", attempts-1)
	if err != nil {
		if abandons(err) {
			return fmt.Errorf("task %s: %w", id, err)
		}
		w.fail(task, id, attempts, err)
		return &ProcessingError{Kind: "task", ID: id, Err: err}
	}

	payload, err := marshalTextEnrichment(result, nil, attempts)
	if err != nil {
		return fmt.Errorf("task %s: %w", id, err)
	}

	processedAt := w.now().UTC()
	task.ProcessingStatus = status.Completed
	task.EnrichmentJSON = payload
	task.ProcessedAt = &processedAt
	if err := w.store.SaveTask(task); err != nil {
		return fmt.Errorf("saving enriched task %s: %w", id, err)
	}

	w.logger.Info("task enriched",
		"task_id", id,
		"attempts", attempts,
		"tokens_used", result.TokensUsed,
	)
	return nil
}

func (w *TaskWorker) fail(task storage.Task, id string, attempts int, cause error) {
	task.ProcessingStatus = status.Failed
	task.EnrichmentJSON = ""
	task.ProcessedAt = nil
	if err := w.store.SaveTask(task); err != nil {
		w.logger.Error("failed to mark task failed", "task_id", id, "error", err)
	}
	w.logger.Warn("task enrichment failed", "task_id", id, "attempts", attempts, "error", cause)
}

// taskText is what the enrichment service sees for a task: the title plus
// details, and the due date when one is set so the service can fold it into
// the formatted output.
func taskText(t storage.Task) string {
	text := t.Title
	if t.Details != "" {
		text += "\n\n" + t.Details
	}
	if t.DueAt != nil {
		text += "\n\nDue: " + t.DueAt.UTC().Format("2006-01-02")
	}
	return text
}
