// Package sweep runs the periodic janitor. It moves entities stranded in
// PROCESSING to FAILED after a grace period, releases queue jobs whose worker
// died mid-run, and prunes finished jobs past their retention window.
//
// Workers deliberately leave an entity in PROCESSING when they hit bad
// configuration, invalid input, or a cancelled run; the sweeper is the
// recovery path that turns those strandings into a FAILED the user can see
// and requeue.
//
// With Requeue enabled the sweeper also sends recent FAILED entities back to
// PENDING and queues a fresh enrichment job for each, so transient outages
// heal without anyone clicking retry. Entities created more than
// RequeueMaxAge ago are left alone: something that has been failing that
// long needs an operator, not another attempt.
package sweep

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/dayline/dayline/internal/dispatch"
	"github.com/dayline/dayline/internal/status"
	"github.com/dayline/dayline/internal/storage"
)

// Store is the slice of storage the sweeper needs.
type Store interface {
	ListNotesByStatus(st status.Status, limit int) ([]storage.Note, error)
	SaveNote(n storage.Note) error
	ListTasksByStatus(st status.Status, limit int) ([]storage.Task, error)
	SaveTask(t storage.Task) error
	ListActivitiesByStatus(st status.Status, limit int) ([]storage.Activity, error)
	SaveActivity(a storage.Activity) error
	EnqueueJob(j storage.Job) error
	ReleaseStuckJobs(cutoff time.Time) (int64, error)
	PruneFinishedJobs(cutoff time.Time) (int64, error)
}

// Config carries the sweeper's timing knobs.
type Config struct {
	Schedule      string        // cron spec; default "@every 1m"
	StaleAfter    time.Duration // PROCESSING entities older than this fail; default 15m
	JobStuckAfter time.Duration // running jobs older than this requeue; default 10m
	RetainJobsFor time.Duration // finished jobs older than this are deleted; default 168h
	Batch         int           // max entities per kind per sweep; default 100
	Requeue       bool          // send FAILED entities back to PENDING; default off
	RequeueMaxAge time.Duration // only requeue entities created within this window; default 24h
}

func (c Config) withDefaults() Config {
	if c.Schedule == "" {
		c.Schedule = "@every 1m"
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = 15 * time.Minute
	}
	if c.JobStuckAfter <= 0 {
		c.JobStuckAfter = 10 * time.Minute
	}
	if c.RetainJobsFor <= 0 {
		c.RetainJobsFor = 7 * 24 * time.Hour
	}
	if c.Batch <= 0 {
		c.Batch = 100
	}
	if c.RequeueMaxAge <= 0 {
		c.RequeueMaxAge = 24 * time.Hour
	}
	return c
}

// Report summarizes one sweep pass.
type Report struct {
	StaleFailed  int
	Requeued     int
	JobsReleased int64
	JobsPruned   int64
}

// Sweeper owns the cron schedule and the sweep logic.
type Sweeper struct {
	store  Store
	cfg    Config
	cron   *cron.Cron
	logger *slog.Logger
	now    func() time.Time
}

// New creates a Sweeper with the given store and config.
func New(store Store, cfg Config) *Sweeper {
	return &Sweeper{
		store:  store,
		cfg:    cfg.withDefaults(),
		cron:   cron.New(),
		logger: slog.Default(),
		now:    time.Now,
	}
}

// Start registers the sweep on its cron schedule and starts the scheduler.
func (s *Sweeper) Start() error {
	_, err := s.cron.AddFunc(s.cfg.Schedule, func() { s.Sweep() })
	if err != nil {
		return fmt.Errorf("registering sweep schedule %q: %w", s.cfg.Schedule, err)
	}
	s.cron.Start()
	return nil
}

// Stop halts the scheduler and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}

// Sweep runs one full pass. Errors on individual entities are logged and do
// not block the rest of the pass.
func (s *Sweeper) Sweep() Report {
	now := s.now().UTC()
	cutoff := now.Add(-s.cfg.StaleAfter)

	var rep Report
	rep.StaleFailed += s.failStaleNotes(cutoff)
	rep.StaleFailed += s.failStaleTasks(cutoff)
	rep.StaleFailed += s.failStaleActivities(cutoff)

	if s.cfg.Requeue {
		ageCutoff := now.Add(-s.cfg.RequeueMaxAge)
		rep.Requeued += s.requeueFailedNotes(ageCutoff)
		rep.Requeued += s.requeueFailedTasks(ageCutoff)
		rep.Requeued += s.requeueFailedActivities(ageCutoff)
	}

	released, err := s.store.ReleaseStuckJobs(now.Add(-s.cfg.JobStuckAfter))
	if err != nil {
		s.logger.Error("releasing stuck jobs", "error", err)
	}
	rep.JobsReleased = released

	pruned, err := s.store.PruneFinishedJobs(now.Add(-s.cfg.RetainJobsFor))
	if err != nil {
		s.logger.Error("pruning finished jobs", "error", err)
	}
	rep.JobsPruned = pruned

	if rep.StaleFailed > 0 || rep.Requeued > 0 || rep.JobsReleased > 0 || rep.JobsPruned > 0 {
		s.logger.Info("sweep completed",
			"stale_failed", rep.StaleFailed,
			"requeued", rep.Requeued,
			"jobs_released", rep.JobsReleased,
			"jobs_pruned", rep.JobsPruned,
		)
	}
	return rep
}

// failStaleNotes moves notes stuck in PROCESSING since before cutoff to
// FAILED. The listing is ordered stalest-first, so the scan stops at the
// first fresh entry.
func (s *Sweeper) failStaleNotes(cutoff time.Time) int {
	notes, err := s.store.ListNotesByStatus(status.Processing, s.cfg.Batch)
	if err != nil {
		s.logger.Error("listing processing notes", "error", err)
		return 0
	}

	failed := 0
	for _, n := range notes {
		if n.UpdatedAt.After(cutoff) {
			break
		}
		n.ProcessingStatus = status.Failed
		if err := s.store.SaveNote(n); err != nil {
			s.logger.Error("failing stale note", "note_id", n.ID, "error", err)
			continue
		}
		s.logger.Warn("note stuck in processing, marked failed",
			"note_id", n.ID, "updated_at", n.UpdatedAt)
		failed++
	}
	return failed
}

func (s *Sweeper) failStaleTasks(cutoff time.Time) int {
	tasks, err := s.store.ListTasksByStatus(status.Processing, s.cfg.Batch)
	if err != nil {
		s.logger.Error("listing processing tasks", "error", err)
		return 0
	}

	failed := 0
	for _, task := range tasks {
		if task.UpdatedAt.After(cutoff) {
			break
		}
		task.ProcessingStatus = status.Failed
		if err := s.store.SaveTask(task); err != nil {
			s.logger.Error("failing stale task", "task_id", task.ID, "error", err)
			continue
		}
		s.logger.Warn("task stuck in processing, marked failed",
			"task_id", task.ID, "updated_at", task.UpdatedAt)
		failed++
	}
	return failed
}

func (s *Sweeper) failStaleActivities(cutoff time.Time) int {
	activities, err := s.store.ListActivitiesByStatus(status.Processing, s.cfg.Batch)
	if err != nil {
		s.logger.Error("listing processing activities", "error", err)
		return 0
	}

	failed := 0
	for _, a := range activities {
		if a.UpdatedAt.After(cutoff) {
			break
		}
		a.ProcessingStatus = status.Failed
		if err := s.store.SaveActivity(a); err != nil {
			s.logger.Error("failing stale activity", "activity_id", a.ID, "error", err)
			continue
		}
		s.logger.Warn("activity stuck in processing, marked failed",
			"activity_id", a.ID, "updated_at", a.UpdatedAt)
		failed++
	}
	return failed
}

// requeueFailedNotes sends FAILED notes created after ageCutoff back to
// PENDING and queues a fresh enrichment job for each.
func (s *Sweeper) requeueFailedNotes(ageCutoff time.Time) int {
	notes, err := s.store.ListNotesByStatus(status.Failed, s.cfg.Batch)
	if err != nil {
		s.logger.Error("listing failed notes", "error", err)
		return 0
	}

	requeued := 0
	for _, n := range notes {
		if n.CreatedAt.Before(ageCutoff) {
			continue
		}
		n.ProcessingStatus = status.Pending
		if err := s.store.SaveNote(n); err != nil {
			s.logger.Error("requeueing failed note", "note_id", n.ID, "error", err)
			continue
		}
		if err := s.store.EnqueueJob(dispatch.NewJob(storage.JobEnrichNote, n.ID)); err != nil {
			s.logger.Error("queueing enrichment for requeued note", "note_id", n.ID, "error", err)
			continue
		}
		s.logger.Info("requeued failed note", "note_id", n.ID)
		requeued++
	}
	return requeued
}

func (s *Sweeper) requeueFailedTasks(ageCutoff time.Time) int {
	tasks, err := s.store.ListTasksByStatus(status.Failed, s.cfg.Batch)
	if err != nil {
		s.logger.Error("listing failed tasks", "error", err)
		return 0
	}

	requeued := 0
	for _, task := range tasks {
		if task.CreatedAt.Before(ageCutoff) {
			continue
		}
		task.ProcessingStatus = status.Pending
		if err := s.store.SaveTask(task); err != nil {
			s.logger.Error("requeueing failed task", "task_id", task.ID, "error", err)
			continue
		}
		if err := s.store.EnqueueJob(dispatch.NewJob(storage.JobEnrichTask, task.ID)); err != nil {
			s.logger.Error("queueing enrichment for requeued task", "task_id", task.ID, "error", err)
			continue
		}
		s.logger.Info("requeued failed task", "task_id", task.ID)
		requeued++
	}
	return requeued
}

func (s *Sweeper) requeueFailedActivities(ageCutoff time.Time) int {
	activities, err := s.store.ListActivitiesByStatus(status.Failed, s.cfg.Batch)
	if err != nil {
		s.logger.Error("listing failed activities", "error", err)
		return 0
	}

	requeued := 0
	for _, a := range activities {
		if a.CreatedAt.Before(ageCutoff) {
			continue
		}
		a.ProcessingStatus = status.Pending
		if err := s.store.SaveActivity(a); err != nil {
			s.logger.Error("requeueing failed activity", "activity_id", a.ID, "error", err)
			continue
		}
		if err := s.store.EnqueueJob(dispatch.NewJob(storage.JobEnrichActivity, a.ID)); err != nil {
			s.logger.Error("queueing enrichment for requeued activity", "activity_id", a.ID, "error", err)
			continue
		}
		s.logger.Info("requeued failed activity", "activity_id", a.ID)
		requeued++
	}
	return requeued
}
