package enrich

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"
)

const stubModelName = "stub"

// Stub is an offline Service producing deterministic enrichment without
// network calls. It backs fresh installs where no provider is configured
// and keeps tests hermetic.
type Stub struct {
	model string
	now   func() time.Time
}

// NewStub creates a Stub. An empty model falls back to "stub".
func NewStub(model string) *Stub {
	if model == "" {
		model = stubModelName
	}
	return &Stub{model: model, now: time.Now}
}

// ProcessText titles the text with its first line and passes the body
// through unchanged.
func (s *Stub) ProcessText(ctx context.Context, text, hint string) (*Result, error) {
	if err := validateText(text); err != nil {
		return nil, err
	}

	trimmed := strings.TrimSpace(text)
	meta := map[string]any{"provider": ProviderStub}
	if hint != "" {
		meta["hint"] = hint
	}

	return &Result{
		Title:      firstLine(trimmed),
		Content:    trimmed,
		Metadata:   meta,
		TokensUsed: EstimateTokens(text),
		ModelName:  s.model,
		CreatedAt:  s.now().UTC(),
	}, nil
}

// AnalyzeSchema derives a placeholder template from the schema's field
// names, sorted for determinism.
func (s *Stub) AnalyzeSchema(ctx context.Context, schema map[string]any) (*SchemaResult, error) {
	if len(schema) == 0 {
		return nil, fmt.Errorf("%w: empty schema", ErrValidation)
	}

	fields := make([]string, 0, len(schema))
	for name := range schema {
		fields = append(fields, name)
	}
	sort.Strings(fields)

	var b strings.Builder
	for _, f := range fields {
		fmt.Fprintf(&b, "**%s**: {{%s}}\n", f, f)
	}

	return &SchemaResult{
		TitleTemplate:   "{{" + fields[0] + "}}",
		ContentTemplate: b.String(),
		SuggestedLayout: "list",
		TokensUsed:      EstimateTokens(b.String()),
		ModelName:       s.model,
		CreatedAt:       s.now().UTC(),
	}, nil
}

// ExtractEntities recognizes @mentions as people and #words as tags.
func (s *Stub) ExtractEntities(ctx context.Context, text string) ([]Entity, error) {
	if err := validateText(text); err != nil {
		return nil, err
	}

	entities := []Entity{}
	seen := make(map[string]bool)
	for _, word := range strings.Fields(text) {
		var kind string
		switch {
		case strings.HasPrefix(word, "@"):
			kind = "person"
		case strings.HasPrefix(word, "#"):
			kind = "tag"
		default:
			continue
		}
		name := strings.TrimRightFunc(word[1:], unicode.IsPunct)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		entities = append(entities, Entity{Text: name, Kind: kind})
	}
	return entities, nil
}

// ValidateContent runs the shared pre-flight checks.
func (s *Stub) ValidateContent(text string) error {
	return validateText(text)
}

// HealthCheck always succeeds; the stub has no upstream to lose.
func (s *Stub) HealthCheck(ctx context.Context) bool {
	return true
}

// firstLine returns the first non-empty line, truncated to 80 runes.
func firstLine(text string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		runes := []rune(line)
		if len(runes) > 80 {
			return string(runes[:77]) + "..."
		}
		return line
	}
	return "Untitled"
}
