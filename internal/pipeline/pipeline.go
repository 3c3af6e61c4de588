package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dayline/dayline/internal/enrich"
	"github.com/dayline/dayline/internal/retry"
)

// maxInlineDelay caps the activity worker's inline backoff.
const maxInlineDelay = 60 * time.Second

// Config carries the retry and backoff settings shared by all workers.
type Config struct {
	MaxRetries int
	BaseDelay  time.Duration
	Jitter     float64
}

// withDefaults fills unset fields with the values a fresh install runs on.
func (c Config) withDefaults() Config {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = time.Second
	}
	if c.Jitter <= 0 {
		c.Jitter = 0.1
	}
	return c
}

// CapacityGate grants permission to spend tokens on an upstream call.
// Satisfied by *ratelimit.Limiter.
type CapacityGate interface {
	WaitForCapacity(ctx context.Context, estimatedTokens int) bool
}

// ProcessingError reports that enrichment for one entity ran out of
// attempts. It wraps the last underlying failure.
type ProcessingError struct {
	Kind string // "note", "task", "activity"
	ID   string
	Err  error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("enrichment failed for %s %s: %v", e.Kind, e.ID, e.Err)
}

func (e *ProcessingError) Unwrap() error { return e.Err }

// textEnrichment is the enrichment_data payload persisted for notes and tasks.
type textEnrichment struct {
	Title      string          `json:"title"`
	Content    string          `json:"content"`
	Metadata   map[string]any  `json:"metadata,omitempty"`
	TokensUsed int             `json:"tokens_used"`
	ModelName  string          `json:"model_name"`
	CreatedAt  time.Time       `json:"created_at"`
	Attempts   int             `json:"attempts"`
	Entities   []enrich.Entity `json:"entities,omitempty"`
}

// schemaEnrichment is the enrichment_data payload persisted for activities.
type schemaEnrichment struct {
	TitleTemplate   string    `json:"title_template"`
	ContentTemplate string    `json:"content_template"`
	SuggestedLayout string    `json:"suggested_layout"`
	TokensUsed      int       `json:"tokens_used"`
	ModelName       string    `json:"model_name"`
	CreatedAt       time.Time `json:"created_at"`
	Attempts        int       `json:"attempts"`
}

func marshalTextEnrichment(res *enrich.Result, entities []enrich.Entity, attempts int) (string, error) {
	payload := textEnrichment{
		Title:      res.Title,
		Content:    res.Content,
		Metadata:   res.Metadata,
		TokensUsed: res.TokensUsed,
		ModelName:  res.ModelName,
		CreatedAt:  res.CreatedAt,
		Attempts:   attempts,
		Entities:   entities,
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshaling enrichment: %w", err)
	}
	return string(b), nil
}

func marshalSchemaEnrichment(res *enrich.SchemaResult, attempts int) (string, error) {
	payload := schemaEnrichment{
		TitleTemplate:   res.TitleTemplate,
		ContentTemplate: res.ContentTemplate,
		SuggestedLayout: res.SuggestedLayout,
		TokensUsed:      res.TokensUsed,
		ModelName:       res.ModelName,
		CreatedAt:       res.CreatedAt,
		Attempts:        attempts,
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshaling enrichment: %w", err)
	}
	return string(b), nil
}

// retryPolicy builds the canonical retry policy used by the note and task
// workers: upstream failures are retried, everything else fails fast. A
// capacity denial surfaces as enrich.ErrRateLimited and sits in the exclude
// set because the limiter already waited internally before giving up.
func retryPolicy(cfg Config, sleep func(ctx context.Context, d time.Duration) error) retry.Policy {
	return retry.Policy{
		MaxRetries: cfg.MaxRetries,
		BaseDelay:  cfg.BaseDelay,
		Jitter:     cfg.Jitter,
		RetryOn:    []error{enrich.ErrUpstream},
		ExcludeOn:  []error{enrich.ErrConfig, enrich.ErrRateLimited, enrich.ErrValidation},
		Sleep:      sleep,
	}
}

// abandons reports whether an attempt-loop error should leave the entity
// parked in PROCESSING instead of moving it to FAILED: bad credentials and
// invalid input fail identically on every retry until the operator steps
// in, and a cancelled run simply stops mid-flight. The sweeper later picks
// these entities up.
func abandons(err error) bool {
	return errors.Is(err, enrich.ErrConfig) ||
		errors.Is(err, enrich.ErrValidation) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
