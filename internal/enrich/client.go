package enrich

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultTimeout     = 60 * time.Second
	healthCheckTimeout = 2 * time.Second
	maxContentBytes    = 100_000
)

// Client calls a remote enrichment API over HTTP. Each method performs
// exactly one request; retry and rate limiting are the caller's concern.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	now        func() time.Time
}

// NewClient creates a Client from the given provider configuration.
func NewClient(cfg Config) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		now: time.Now,
	}
}

// processRequest is the JSON body for POST /v1/process.
type processRequest struct {
	Model   string `json:"model"`
	Text    string `json:"text"`
	Context string `json:"context,omitempty"`
}

// processResponse is the JSON returned by POST /v1/process.
type processResponse struct {
	Title      string         `json:"title"`
	Content    string         `json:"content"`
	Metadata   map[string]any `json:"metadata"`
	TokensUsed int            `json:"tokens_used"`
	Model      string         `json:"model"`
}

// ProcessText formats raw text into titled, structured content.
func (c *Client) ProcessText(ctx context.Context, text, hint string) (*Result, error) {
	if err := c.ValidateContent(text); err != nil {
		return nil, err
	}

	var out processResponse
	in := processRequest{Model: c.model, Text: text, Context: hint}
	if err := c.post(ctx, "/v1/process", in, &out); err != nil {
		return nil, err
	}

	model := out.Model
	if model == "" {
		model = c.model
	}
	return &Result{
		Title:      out.Title,
		Content:    out.Content,
		Metadata:   out.Metadata,
		TokensUsed: out.TokensUsed,
		ModelName:  model,
		CreatedAt:  c.now().UTC(),
	}, nil
}

// schemaRequest is the JSON body for POST /v1/schema.
type schemaRequest struct {
	Model  string         `json:"model"`
	Schema map[string]any `json:"schema"`
}

// schemaResponse is the JSON returned by POST /v1/schema.
type schemaResponse struct {
	TitleTemplate   string `json:"title_template"`
	ContentTemplate string `json:"content_template"`
	SuggestedLayout string `json:"suggested_layout"`
	TokensUsed      int    `json:"tokens_used"`
	Model           string `json:"model"`
}

// AnalyzeSchema proposes display templates for an activity field schema.
func (c *Client) AnalyzeSchema(ctx context.Context, schema map[string]any) (*SchemaResult, error) {
	if len(schema) == 0 {
		return nil, fmt.Errorf("%w: empty schema", ErrValidation)
	}

	var out schemaResponse
	if err := c.post(ctx, "/v1/schema", schemaRequest{Model: c.model, Schema: schema}, &out); err != nil {
		return nil, err
	}

	model := out.Model
	if model == "" {
		model = c.model
	}
	return &SchemaResult{
		TitleTemplate:   out.TitleTemplate,
		ContentTemplate: out.ContentTemplate,
		SuggestedLayout: out.SuggestedLayout,
		TokensUsed:      out.TokensUsed,
		ModelName:       model,
		CreatedAt:       c.now().UTC(),
	}, nil
}

// entitiesRequest is the JSON body for POST /v1/entities.
type entitiesRequest struct {
	Model string `json:"model"`
	Text  string `json:"text"`
}

// entitiesResponse is the JSON returned by POST /v1/entities.
type entitiesResponse struct {
	Entities []Entity `json:"entities"`
}

// ExtractEntities pulls named references from text.
func (c *Client) ExtractEntities(ctx context.Context, text string) ([]Entity, error) {
	if err := c.ValidateContent(text); err != nil {
		return nil, err
	}

	var out entitiesResponse
	if err := c.post(ctx, "/v1/entities", entitiesRequest{Model: c.model, Text: text}, &out); err != nil {
		return nil, err
	}
	if out.Entities == nil {
		return []Entity{}, nil
	}
	return out.Entities, nil
}

// ValidateContent rejects text the upstream would refuse anyway: empty or
// oversized input. Runs locally, before any request is made.
func (c *Client) ValidateContent(text string) error {
	return validateText(text)
}

// HealthCheck reports whether the API responds to GET /v1/health with 200.
func (c *Client) HealthCheck(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/health", nil)
	if err != nil {
		return false
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// post sends in as JSON and decodes the 200 response into out. Failures are
// classified onto the package error kinds.
func (c *Client) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp); err != nil {
		return err
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decoding response: %v", ErrUpstream, err)
	}
	return nil
}

// classifyStatus maps a non-200 response onto the package error kinds:
// 401/403 mean bad credentials, 429 means over quota, anything else is an
// upstream failure.
func classifyStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: rejected with status %d", ErrConfig, resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: status %d", ErrRateLimited, resp.StatusCode)
	default:
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: status %d: %s", ErrUpstream, resp.StatusCode, strings.TrimSpace(string(detail)))
	}
}

// validateText is the shared pre-flight check for all Service implementations.
func validateText(text string) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("%w: empty text", ErrValidation)
	}
	if len(text) > maxContentBytes {
		return fmt.Errorf("%w: text exceeds %d bytes", ErrValidation, maxContentBytes)
	}
	return nil
}
