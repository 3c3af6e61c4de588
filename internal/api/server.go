package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dayline/dayline/internal/enrich"
	"github.com/dayline/dayline/internal/ingest"
	"github.com/dayline/dayline/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// UsageReporter exposes the rate limiter's live window for the health
// endpoint. *ratelimit.Limiter satisfies it.
type UsageReporter interface {
	Limits() (requestsPerMinute, tokensPerMinute int)
	CurrentUsage(now time.Time) (requests, tokens int)
}

// Deps holds everything the HTTP API needs.
type Deps struct {
	Store      *storage.Store
	Enrich     enrich.Service  // optional; nil marks the enricher "disabled" on /health
	Usage      UsageReporter   // optional; nil omits rate-limit info from /health
	Importer   *ingest.Importer
	Token      string
	HTTPClient *http.Client
}

// NewHandler builds the REST router. /health and /metrics are open;
// everything else requires the bearer token.
func NewHandler(deps Deps) http.Handler {
	if deps.HTTPClient == nil {
		deps.HTTPClient = http.DefaultClient
	}

	r := chi.NewRouter()

	r.Get("/health", handleHealth(deps))
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Post("/notes", handleCreateNote(deps))
		r.Get("/notes", handleListNotes(deps))
		r.Get("/notes/{id}", handleGetNote(deps))
		r.Delete("/notes/{id}", handleDeleteNote(deps))
		r.Post("/notes/{id}/enrich", handleEnrichNote(deps))

		r.Post("/tasks", handleCreateTask(deps))
		r.Get("/tasks", handleListTasks(deps))
		r.Get("/tasks/{id}", handleGetTask(deps))
		r.Delete("/tasks/{id}", handleDeleteTask(deps))
		r.Post("/tasks/{id}/enrich", handleEnrichTask(deps))

		r.Post("/activities", handleCreateActivity(deps))
		r.Get("/activities", handleListActivities(deps))
		r.Get("/activities/{id}", handleGetActivity(deps))
		r.Delete("/activities/{id}", handleDeleteActivity(deps))
		r.Post("/activities/{id}/enrich", handleEnrichActivity(deps))

		r.Post("/import", handleImport(deps))
	})

	return r
}

func handleHealth(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]any{"status": "ok"}

		if deps.Enrich == nil {
			resp["enricher"] = "disabled"
		} else {
			ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel()
			if deps.Enrich.HealthCheck(ctx) {
				resp["enricher"] = "ok"
			} else {
				resp["enricher"] = "unreachable"
			}
		}

		if deps.Usage != nil {
			requests, tokens := deps.Usage.CurrentUsage(time.Now())
			maxRequests, maxTokens := deps.Usage.Limits()
			resp["rate_limit"] = map[string]int{
				"window_requests":     requests,
				"window_tokens":       tokens,
				"requests_per_minute": maxRequests,
				"tokens_per_minute":   maxTokens,
			}
		}

		if counts, err := deps.Store.CountJobsByStatus(); err == nil {
			resp["jobs"] = counts
		}
		if counts, err := deps.Store.CountEntitiesByStatus(); err == nil {
			resp["entities"] = counts
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}

func marshalTags(tags []string) (string, error) {
	if len(tags) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
