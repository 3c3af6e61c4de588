package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dayline/dayline/internal/enrich"
	"github.com/dayline/dayline/internal/ingest"
	"github.com/dayline/dayline/internal/ratelimit"
	"github.com/dayline/dayline/internal/storage"
)

const testToken = "test-token-12345"

func setupHandler(t *testing.T) (http.Handler, *storage.Store) {
	t.Helper()
	return setupHandlerWithDeps(t, func(deps *Deps) {})
}

func setupHandlerWithDeps(t *testing.T, customize func(*Deps)) (http.Handler, *storage.Store) {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	deps := Deps{
		Store:      store,
		Importer:   ingest.NewImporter(store, slog.New(slog.NewTextHandler(io.Discard, nil))),
		Token:      testToken,
		HTTPClient: http.DefaultClient,
	}
	customize(&deps)
	return NewHandler(deps), store
}

func authReq(method, url, body, token string) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, url, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func TestAuth_MissingToken(t *testing.T) {
	h, _ := setupHandler(t)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodGet, "/notes", "", ""))

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusUnauthorized)
	}

	var body map[string]map[string]string
	json.NewDecoder(rr.Body).Decode(&body)
	if body["error"]["type"] != "authentication_error" {
		t.Errorf("error type = %q, want %q", body["error"]["type"], "authentication_error")
	}
}

func TestAuth_WrongToken(t *testing.T) {
	h, _ := setupHandler(t)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodGet, "/notes", "", "wrong-token"))

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}

func TestAuth_ValidToken(t *testing.T) {
	h, _ := setupHandler(t)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodGet, "/notes", "", testToken))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
}

func TestHealth_OpenWithoutAuth(t *testing.T) {
	h, _ := setupHandler(t)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodGet, "/health", "", ""))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}

	var body map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status = %v, want ok", body["status"])
	}
	if body["enricher"] != "disabled" {
		t.Errorf("enricher = %v, want disabled", body["enricher"])
	}
	if _, ok := body["jobs"]; !ok {
		t.Error("response missing jobs counts")
	}
	if _, ok := body["entities"]; !ok {
		t.Error("response missing entity counts")
	}
}

func TestHealth_ReportsEnricherAndLimiter(t *testing.T) {
	limiter := ratelimit.New(ratelimit.Config{RequestsPerMinute: 60, TokensPerMinute: 90000})
	limiter.RecordUsage(time.Now(), 1200)

	h, _ := setupHandlerWithDeps(t, func(deps *Deps) {
		deps.Enrich = enrich.NewStub("")
		deps.Usage = limiter
	})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodGet, "/health", "", ""))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}

	var body struct {
		Enricher  string `json:"enricher"`
		RateLimit struct {
			WindowRequests    int `json:"window_requests"`
			WindowTokens      int `json:"window_tokens"`
			RequestsPerMinute int `json:"requests_per_minute"`
			TokensPerMinute   int `json:"tokens_per_minute"`
		} `json:"rate_limit"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Enricher != "ok" {
		t.Errorf("enricher = %q, want ok", body.Enricher)
	}
	if body.RateLimit.WindowRequests != 1 {
		t.Errorf("window_requests = %d, want 1", body.RateLimit.WindowRequests)
	}
	if body.RateLimit.WindowTokens != 1200 {
		t.Errorf("window_tokens = %d, want 1200", body.RateLimit.WindowTokens)
	}
	if body.RateLimit.RequestsPerMinute != 60 {
		t.Errorf("requests_per_minute = %d, want 60", body.RateLimit.RequestsPerMinute)
	}
}

func TestMetrics_OpenWithoutAuth(t *testing.T) {
	h, _ := setupHandler(t)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodGet, "/metrics", "", ""))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
	if !strings.Contains(rr.Body.String(), "# HELP") {
		t.Error("metrics output missing exposition text")
	}
}
