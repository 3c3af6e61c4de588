package enrich

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"
)

// Result is the outcome of a text enrichment call.
type Result struct {
	Title      string         `json:"title"`
	Content    string         `json:"content"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	TokensUsed int            `json:"tokens_used"`
	ModelName  string         `json:"model_name"`
	CreatedAt  time.Time      `json:"created_at"`
}

// SchemaResult is the outcome of an activity schema analysis call.
type SchemaResult struct {
	TitleTemplate   string    `json:"title_template"`
	ContentTemplate string    `json:"content_template"`
	SuggestedLayout string    `json:"suggested_layout"`
	TokensUsed      int       `json:"tokens_used"`
	ModelName       string    `json:"model_name"`
	CreatedAt       time.Time `json:"created_at"`
}

// Entity is a named reference extracted from free text.
type Entity struct {
	Text string `json:"text"`
	Kind string `json:"kind"`
}

// Service abstracts the external text-processing capability. Workers use
// this interface instead of depending on a concrete client, so the real
// HTTP backend and the offline stub are interchangeable.
type Service interface {
	// ProcessText formats raw note or task text into titled, structured
	// content. hint carries optional caller context (entity kind, tags).
	ProcessText(ctx context.Context, text, hint string) (*Result, error)

	// AnalyzeSchema proposes display templates for an activity's field schema.
	AnalyzeSchema(ctx context.Context, schema map[string]any) (*SchemaResult, error)

	// ExtractEntities pulls named references (people, tags, dates) from text.
	ExtractEntities(ctx context.Context, text string) ([]Entity, error)

	// ValidateContent runs pre-flight checks on text before any call is made.
	// A non-nil error wraps ErrValidation.
	ValidateContent(text string) error

	// HealthCheck reports whether the capability is reachable.
	HealthCheck(ctx context.Context) bool
}

// Supported provider names for Config.Provider.
const (
	ProviderTextKit = "textkit"
	ProviderStub    = "stub"
)

// Config selects and parameterizes a Service implementation.
type Config struct {
	Provider string
	BaseURL  string
	APIKey   string
	Model    string
}

// NewService returns the implementation named by cfg.Provider. An empty
// provider falls back to the offline stub so a fresh install works without
// credentials.
func NewService(cfg Config) (Service, error) {
	switch cfg.Provider {
	case "", ProviderStub:
		return NewStub(cfg.Model), nil
	case ProviderTextKit:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("%w: missing api key", ErrConfig)
		}
		return NewClient(cfg), nil
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrConfig, cfg.Provider)
	}
}

// EstimateTokens approximates the token cost of a text using the common
// four-characters-per-token heuristic, plus a small allowance for the
// prompt wrapper. The rate limiter only needs a stable estimate, not an
// exact count.
func EstimateTokens(text string) int {
	return utf8.RuneCountInString(text)/4 + 16
}
