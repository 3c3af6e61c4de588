// Package dispatch consumes the SQLite job queue and routes each enrichment
// job to the worker for its entity type.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dayline/dayline/internal/metrics"
	"github.com/dayline/dayline/internal/pipeline"
	"github.com/dayline/dayline/internal/storage"
)

// gaugeInterval is how often the queue-depth and rate-limit gauges refresh.
const gaugeInterval = 5 * time.Second

// jobTypes is every queue type the dispatcher claims.
var jobTypes = []string{
	storage.JobEnrichNote,
	storage.JobEnrichTask,
	storage.JobEnrichActivity,
}

// JobStore abstracts the job queue operations.
type JobStore interface {
	ClaimNextJob(types []string) (*storage.Job, error)
	CompleteJob(id string) error
	FailJob(id string, errMsg string) error
	CountJobsByStatus() (map[string]int, error)
}

// Processor runs enrichment for a single entity.
type Processor interface {
	Process(ctx context.Context, id string) error
}

// UsageReporter exposes the rate limiter's sliding-window usage.
type UsageReporter interface {
	CurrentUsage(now time.Time) (requests, tokens int)
}

// Dispatcher polls the queue and fans claimed jobs out to processors.
type Dispatcher struct {
	store      JobStore
	processors map[string]Processor
	usage      UsageReporter
	poll       time.Duration
	loops      int
	logger     *slog.Logger
	now        func() time.Time
}

// NewDispatcher creates a Dispatcher routing each job type to its processor.
// If pollInterval is <= 0, it defaults to 500ms; loops below 1 defaults to 2.
func NewDispatcher(store JobStore, notes, tasks, activities Processor, usage UsageReporter, pollInterval time.Duration, loops int) *Dispatcher {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	if loops < 1 {
		loops = 2
	}
	return &Dispatcher{
		store: store,
		processors: map[string]Processor{
			storage.JobEnrichNote:     notes,
			storage.JobEnrichTask:     tasks,
			storage.JobEnrichActivity: activities,
		},
		usage:  usage,
		poll:   pollInterval,
		loops:  loops,
		logger: slog.Default(),
		now:    time.Now,
	}
}

// Run starts the configured number of poll loops plus the gauge refresher and
// blocks until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	g, gCtx := errgroup.WithContext(ctx)
	for i := 0; i < d.loops; i++ {
		g.Go(func() error {
			d.runLoop(gCtx)
			return nil
		})
	}
	g.Go(func() error {
		d.refreshGauges(gCtx)
		return nil
	})
	g.Wait()
}

// runLoop polls for jobs until ctx is cancelled.
func (d *Dispatcher) runLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := d.RunOnce(ctx)
		if err != nil {
			d.logger.Error("dispatch iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(d.poll):
		}
	}
}

// RunOnce claims and runs a single enrichment job.
// Returns true if a job was claimed (regardless of outcome).
func (d *Dispatcher) RunOnce(ctx context.Context) (bool, error) {
	job, err := d.store.ClaimNextJob(jobTypes)
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	if err := d.runJob(ctx, job); err != nil {
		d.logger.Warn("job failed", "job_id", job.ID, "type", job.Type, "error", err)
		if failErr := d.store.FailJob(job.ID, err.Error()); failErr != nil {
			d.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
		return true, nil
	}

	if err := d.store.CompleteJob(job.ID); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	return true, nil
}

type jobPayload struct {
	ID string `json:"entity_id"`
}

// runJob executes one claimed job and records its outcome. Jobs carry a
// single delivery attempt: the retry budget lives inside the workers and the
// entity's own status holds the result, so an erroring job goes terminal
// instead of requeueing.
func (d *Dispatcher) runJob(ctx context.Context, job *storage.Job) error {
	proc, ok := d.processors[job.Type]
	if !ok || proc == nil {
		return fmt.Errorf("no processor for job type %s", job.Type)
	}

	var payload jobPayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		return fmt.Errorf("parsing payload: %w", err)
	}
	if payload.ID == "" {
		return errors.New("payload has no entity id")
	}

	start := d.now()
	err := proc.Process(ctx, payload.ID)
	metrics.ObserveJob(kindOf(job.Type), outcomeOf(err), d.now().Sub(start))
	return err
}

// refreshGauges updates the queue-depth and rate-limit gauges until ctx is
// cancelled.
func (d *Dispatcher) refreshGauges(ctx context.Context) {
	ticker := time.NewTicker(gaugeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		counts, err := d.store.CountJobsByStatus()
		if err != nil {
			d.logger.Warn("counting jobs for gauges", "error", err)
		} else {
			metrics.SetQueueDepth(counts)
		}

		if d.usage != nil {
			requests, tokens := d.usage.CurrentUsage(d.now())
			metrics.SetWindowUsage(tokens, requests)
		}
	}
}

// outcomeOf buckets a worker result for metrics: definitive failures carry a
// ProcessingError, everything else non-nil means the worker walked away.
func outcomeOf(err error) string {
	if err == nil {
		return metrics.OutcomeCompleted
	}
	var perr *pipeline.ProcessingError
	if errors.As(err, &perr) {
		return metrics.OutcomeFailed
	}
	return metrics.OutcomeAbandoned
}

func kindOf(jobType string) string {
	switch jobType {
	case storage.JobEnrichNote:
		return "note"
	case storage.JobEnrichTask:
		return "task"
	case storage.JobEnrichActivity:
		return "activity"
	}
	return jobType
}

// NewJob builds the queue entry requesting enrichment of one entity.
func NewJob(jobType, entityID string) storage.Job {
	payload, _ := json.Marshal(jobPayload{ID: entityID})
	return storage.Job{
		ID:          uuid.New().String(),
		Type:        jobType,
		PayloadJSON: string(payload),
		MaxAttempts: 1,
	}
}
