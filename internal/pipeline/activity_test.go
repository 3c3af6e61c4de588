package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/dayline/dayline/internal/enrich"
	"github.com/dayline/dayline/internal/status"
	"github.com/dayline/dayline/internal/storage"
)

func pendingActivity(id string) storage.Activity {
	return storage.Activity{
		ID:               id,
		Name:             "Workouts",
		SchemaJSON:       `{"reps": "number", "mood": "string"}`,
		ProcessingStatus: status.Pending,
		CreatedAt:        testNow.Add(-time.Hour),
		UpdatedAt:        testNow.Add(-time.Hour),
	}
}

func testActivityWorker(store *mockActivityStore, svc *mockService) *ActivityWorker {
	w := NewActivityWorker(store, svc, testConfig())
	w.logger = quiet()
	w.now = func() time.Time { return testNow }
	w.sleep = func(context.Context, time.Duration) error { return nil }
	return w
}

func TestActivityProcessSuccess(t *testing.T) {
	store := newMockActivityStore(pendingActivity("a-1"))
	var gotSchema map[string]any
	svc := &mockService{
		schemaFn: func(ctx context.Context, schema map[string]any) (*enrich.SchemaResult, error) {
			gotSchema = schema
			return &enrich.SchemaResult{
				TitleTemplate:   "{{date}} workout",
				ContentTemplate: "**reps**: {{reps}}\n**mood**: {{mood}}",
				SuggestedLayout: "list",
				TokensUsed:      7,
				ModelName:       "formatter-v2",
			}, nil
		},
	}
	w := testActivityWorker(store, svc)

	if err := w.Process(context.Background(), "a-1"); err != nil {
		t.Fatalf("Process returned error: %v", err)
	}

	if gotSchema["reps"] != "number" || gotSchema["mood"] != "string" {
		t.Errorf("schema passed to service = %v, want parsed field map", gotSchema)
	}

	final := store.activities["a-1"]
	if final.ProcessingStatus != status.Completed {
		t.Errorf("final status = %s, want %s", final.ProcessingStatus, status.Completed)
	}
	if final.ProcessedAt == nil {
		t.Fatal("processed_at not set")
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(final.EnrichmentJSON), &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload["title_template"] != "{{date}} workout" {
		t.Errorf("payload title_template = %v, want %q", payload["title_template"], "{{date}} workout")
	}
	if payload["suggested_layout"] != "list" {
		t.Errorf("payload suggested_layout = %v, want list", payload["suggested_layout"])
	}
	if payload["attempts"] != float64(1) {
		t.Errorf("payload attempts = %v, want 1", payload["attempts"])
	}
}

func TestActivityProcessRetriesRateLimited(t *testing.T) {
	store := newMockActivityStore(pendingActivity("a-1"))
	calls := 0
	svc := &mockService{
		schemaFn: func(ctx context.Context, schema map[string]any) (*enrich.SchemaResult, error) {
			calls++
			if calls < 3 {
				return nil, fmt.Errorf("%w: slow down", enrich.ErrRateLimited)
			}
			return &enrich.SchemaResult{TitleTemplate: "{{date}}", SuggestedLayout: "list"}, nil
		},
	}
	w := testActivityWorker(store, svc)

	if err := w.Process(context.Background(), "a-1"); err != nil {
		t.Fatalf("Process returned error: %v", err)
	}

	// Rate limiting is transient here, not a fail-fast condition.
	if svc.schemaCalls != 3 {
		t.Errorf("AnalyzeSchema calls = %d, want 3", svc.schemaCalls)
	}
	if got := store.activities["a-1"].ProcessingStatus; got != status.Completed {
		t.Errorf("final status = %s, want %s", got, status.Completed)
	}
}

func TestActivityProcessExhaustsRetries(t *testing.T) {
	store := newMockActivityStore(pendingActivity("a-1"))
	svc := &mockService{
		schemaFn: func(ctx context.Context, schema map[string]any) (*enrich.SchemaResult, error) {
			return nil, fmt.Errorf("%w: 500 from upstream", enrich.ErrUpstream)
		},
	}
	var delays []time.Duration
	w := testActivityWorker(store, svc)
	w.sleep = recordSleep(&delays)

	err := w.Process(context.Background(), "a-1")

	var perr *ProcessingError
	if !errors.As(err, &perr) {
		t.Fatalf("err = %v, want *ProcessingError", err)
	}
	if perr.Kind != "activity" || perr.ID != "a-1" {
		t.Errorf("ProcessingError = %s/%s, want activity/a-1", perr.Kind, perr.ID)
	}

	if svc.schemaCalls != 4 {
		t.Errorf("AnalyzeSchema calls = %d, want 4 (1 initial + 3 retries)", svc.schemaCalls)
	}
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	if len(delays) != len(want) {
		t.Fatalf("sleeps = %v, want %v", delays, want)
	}
	for i := range want {
		if delays[i] != want[i] {
			t.Errorf("delay[%d] = %v, want %v", i, delays[i], want[i])
		}
	}

	final := store.activities["a-1"]
	if final.ProcessingStatus != status.Failed {
		t.Errorf("final status = %s, want %s", final.ProcessingStatus, status.Failed)
	}
	if final.EnrichmentJSON != "" {
		t.Errorf("enrichment payload = %q, want empty after failure", final.EnrichmentJSON)
	}
}

func TestActivityProcessBackoffCapped(t *testing.T) {
	store := newMockActivityStore(pendingActivity("a-1"))
	svc := &mockService{
		schemaFn: func(ctx context.Context, schema map[string]any) (*enrich.SchemaResult, error) {
			return nil, fmt.Errorf("%w: 500 from upstream", enrich.ErrUpstream)
		},
	}
	var delays []time.Duration
	w := NewActivityWorker(store, svc, Config{MaxRetries: 2, BaseDelay: 40 * time.Second})
	w.logger = quiet()
	w.now = func() time.Time { return testNow }
	w.sleep = recordSleep(&delays)

	w.Process(context.Background(), "a-1")

	want := []time.Duration{40 * time.Second, 60 * time.Second}
	if len(delays) != len(want) {
		t.Fatalf("sleeps = %v, want %v", delays, want)
	}
	for i := range want {
		if delays[i] != want[i] {
			t.Errorf("delay[%d] = %v, want %v", i, delays[i], want[i])
		}
	}
}

func TestActivityProcessMalformedSchemaStaysProcessing(t *testing.T) {
	a := pendingActivity("a-1")
	a.SchemaJSON = `{not json`
	store := newMockActivityStore(a)
	svc := &mockService{}
	w := testActivityWorker(store, svc)

	err := w.Process(context.Background(), "a-1")
	if !errors.Is(err, enrich.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}

	if svc.schemaCalls != 0 {
		t.Errorf("AnalyzeSchema calls = %d, want 0 for malformed schema", svc.schemaCalls)
	}
	if got := store.activities["a-1"].ProcessingStatus; got != status.Processing {
		t.Errorf("status = %s, want %s (left for the sweeper)", got, status.Processing)
	}
}

func TestActivityProcessConfigErrorStaysProcessing(t *testing.T) {
	store := newMockActivityStore(pendingActivity("a-1"))
	svc := &mockService{
		schemaFn: func(ctx context.Context, schema map[string]any) (*enrich.SchemaResult, error) {
			return nil, fmt.Errorf("%w: missing api key", enrich.ErrConfig)
		},
	}
	w := testActivityWorker(store, svc)

	err := w.Process(context.Background(), "a-1")
	if !errors.Is(err, enrich.ErrConfig) {
		t.Fatalf("err = %v, want ErrConfig", err)
	}

	if svc.schemaCalls != 1 {
		t.Errorf("AnalyzeSchema calls = %d, want 1 (config errors are not retried)", svc.schemaCalls)
	}
	if got := store.activities["a-1"].ProcessingStatus; got != status.Processing {
		t.Errorf("status = %s, want %s", got, status.Processing)
	}
}

func TestActivityProcessCancelledDuringBackoff(t *testing.T) {
	store := newMockActivityStore(pendingActivity("a-1"))
	svc := &mockService{
		schemaFn: func(ctx context.Context, schema map[string]any) (*enrich.SchemaResult, error) {
			return nil, fmt.Errorf("%w: 500 from upstream", enrich.ErrUpstream)
		},
	}
	w := testActivityWorker(store, svc)
	w.sleep = func(context.Context, time.Duration) error { return context.Canceled }

	err := w.Process(context.Background(), "a-1")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}

	if svc.schemaCalls != 1 {
		t.Errorf("AnalyzeSchema calls = %d, want 1 (loop stops on cancelled sleep)", svc.schemaCalls)
	}
	if got := store.activities["a-1"].ProcessingStatus; got != status.Processing {
		t.Errorf("status = %s, want %s", got, status.Processing)
	}
}
