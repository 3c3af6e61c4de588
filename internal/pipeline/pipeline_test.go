package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/dayline/dayline/internal/enrich"
	"github.com/dayline/dayline/internal/storage"
)

// --- mock stores ---

type mockNoteStore struct {
	notes   map[string]storage.Note
	saveErr error
	saved   []storage.Note
}

func newMockNoteStore(notes ...storage.Note) *mockNoteStore {
	m := &mockNoteStore{notes: make(map[string]storage.Note)}
	for _, n := range notes {
		m.notes[n.ID] = n
	}
	return m
}

func (m *mockNoteStore) GetNote(id string) (storage.Note, error) {
	n, ok := m.notes[id]
	if !ok {
		return storage.Note{}, storage.ErrNotFound
	}
	return n, nil
}

func (m *mockNoteStore) SaveNote(n storage.Note) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saved = append(m.saved, n)
	m.notes[n.ID] = n
	return nil
}

type mockTaskStore struct {
	tasks   map[string]storage.Task
	saveErr error
	saved   []storage.Task
}

func newMockTaskStore(tasks ...storage.Task) *mockTaskStore {
	m := &mockTaskStore{tasks: make(map[string]storage.Task)}
	for _, task := range tasks {
		m.tasks[task.ID] = task
	}
	return m
}

func (m *mockTaskStore) GetTask(id string) (storage.Task, error) {
	task, ok := m.tasks[id]
	if !ok {
		return storage.Task{}, storage.ErrNotFound
	}
	return task, nil
}

func (m *mockTaskStore) SaveTask(task storage.Task) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saved = append(m.saved, task)
	m.tasks[task.ID] = task
	return nil
}

type mockActivityStore struct {
	activities map[string]storage.Activity
	saveErr    error
	saved      []storage.Activity
}

func newMockActivityStore(activities ...storage.Activity) *mockActivityStore {
	m := &mockActivityStore{activities: make(map[string]storage.Activity)}
	for _, a := range activities {
		m.activities[a.ID] = a
	}
	return m
}

func (m *mockActivityStore) GetActivity(id string) (storage.Activity, error) {
	a, ok := m.activities[id]
	if !ok {
		return storage.Activity{}, storage.ErrNotFound
	}
	return a, nil
}

func (m *mockActivityStore) SaveActivity(a storage.Activity) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saved = append(m.saved, a)
	m.activities[a.ID] = a
	return nil
}

// --- mock enrichment service ---

type mockService struct {
	processFn  func(ctx context.Context, text, hint string) (*enrich.Result, error)
	schemaFn   func(ctx context.Context, schema map[string]any) (*enrich.SchemaResult, error)
	entitiesFn func(ctx context.Context, text string) ([]enrich.Entity, error)
	validateFn func(text string) error

	processCalls  int
	schemaCalls   int
	entitiesCalls int
}

func (m *mockService) ProcessText(ctx context.Context, text, hint string) (*enrich.Result, error) {
	m.processCalls++
	if m.processFn != nil {
		return m.processFn(ctx, text, hint)
	}
	return &enrich.Result{
		Title:      "Formatted title",
		Content:    "formatted body",
		TokensUsed: 42,
		ModelName:  "formatter-v2",
		CreatedAt:  time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}, nil
}

func (m *mockService) AnalyzeSchema(ctx context.Context, schema map[string]any) (*enrich.SchemaResult, error) {
	m.schemaCalls++
	if m.schemaFn != nil {
		return m.schemaFn(ctx, schema)
	}
	return &enrich.SchemaResult{
		TitleTemplate:   "{{date}}",
		ContentTemplate: "**reps**: {{reps}}",
		SuggestedLayout: "list",
		TokensUsed:      7,
		ModelName:       "formatter-v2",
		CreatedAt:       time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}, nil
}

func (m *mockService) ExtractEntities(ctx context.Context, text string) ([]enrich.Entity, error) {
	m.entitiesCalls++
	if m.entitiesFn != nil {
		return m.entitiesFn(ctx, text)
	}
	return nil, nil
}

func (m *mockService) ValidateContent(text string) error {
	if m.validateFn != nil {
		return m.validateFn(text)
	}
	return nil
}

func (m *mockService) HealthCheck(ctx context.Context) bool { return true }

// --- mock capacity gate ---

type mockGate struct {
	deny      bool // deny every request
	denyAfter int  // when > 0, deny every request after the first N
	calls     int
}

func (m *mockGate) WaitForCapacity(ctx context.Context, estimatedTokens int) bool {
	m.calls++
	if m.deny {
		return false
	}
	if m.denyAfter > 0 && m.calls > m.denyAfter {
		return false
	}
	return true
}

// --- helpers ---

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recordSleep returns a sleep function that appends each requested delay
// without actually waiting.
func recordSleep(delays *[]time.Duration) func(context.Context, time.Duration) error {
	return func(_ context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return nil
	}
}

func testConfig() Config {
	return Config{MaxRetries: 3, BaseDelay: time.Second, Jitter: 0.1}
}

// --- shared types ---

func TestProcessingErrorMessage(t *testing.T) {
	cause := errors.New("upstream exploded")
	err := &ProcessingError{Kind: "note", ID: "n-42", Err: cause}

	msg := err.Error()
	for _, want := range []string{"note", "n-42", "upstream exploded"} {
		if !strings.Contains(msg, want) {
			t.Errorf("Error() = %q, missing %q", msg, want)
		}
	}
	if !errors.Is(err, cause) {
		t.Error("expected ProcessingError to wrap its cause")
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	if cfg.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want 3", cfg.MaxRetries)
	}
	if cfg.BaseDelay != time.Second {
		t.Errorf("BaseDelay = %v, want 1s", cfg.BaseDelay)
	}
	if cfg.Jitter != 0.1 {
		t.Errorf("Jitter = %v, want 0.1", cfg.Jitter)
	}
}

func TestConfigKeepsExplicitValues(t *testing.T) {
	cfg := Config{MaxRetries: 5, BaseDelay: 250 * time.Millisecond, Jitter: 0.3}.withDefaults()
	if cfg.MaxRetries != 5 || cfg.BaseDelay != 250*time.Millisecond || cfg.Jitter != 0.3 {
		t.Errorf("withDefaults() overwrote explicit values: %+v", cfg)
	}
}

func TestAbandons(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"config error", enrich.ErrConfig, true},
		{"validation error", enrich.ErrValidation, true},
		{"cancelled", context.Canceled, true},
		{"deadline", context.DeadlineExceeded, true},
		{"upstream error", enrich.ErrUpstream, false},
		{"rate limited", enrich.ErrRateLimited, false},
		{"plain error", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := abandons(tt.err); got != tt.want {
				t.Errorf("abandons(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
