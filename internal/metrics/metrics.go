// Package metrics exposes the Prometheus collectors shared by the dispatcher,
// the sweeper, and the HTTP server. Collectors are registered on the default
// registry; mount promhttp.Handler() to scrape them.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels for JobsTotal.
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomeAbandoned = "abandoned"
)

var (
	// JobsTotal counts finished enrichment jobs by entity type and outcome.
	// Abandoned jobs are the ones the worker walked away from (bad config,
	// invalid input, cancellation) leaving the entity in PROCESSING.
	JobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dayline_enrichment_jobs_total",
		Help: "Enrichment jobs finished, by entity type and outcome.",
	}, []string{"type", "outcome"})

	// JobDuration tracks wall time per enrichment job, retries included.
	JobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dayline_enrichment_duration_seconds",
		Help:    "Wall time spent processing one enrichment job.",
		Buckets: prometheus.DefBuckets,
	}, []string{"type"})

	// WindowTokens mirrors the rate limiter's current sliding-window usage.
	WindowTokens = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dayline_ratelimit_window_tokens",
		Help: "Tokens consumed in the current one-minute window.",
	})

	// WindowRequests mirrors the request count in the same window.
	WindowRequests = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dayline_ratelimit_window_requests",
		Help: "Requests made in the current one-minute window.",
	})

	// QueueDepth reports jobs in the queue by status. The dispatcher's gauge
	// loop refreshes it every few seconds, so readings lag slightly.
	QueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "dayline_queue_jobs",
		Help: "Jobs in the queue, by status.",
	}, []string{"status"})

	// RetriesTotal counts upstream-call retries beyond the first attempt,
	// by entity type. A job that succeeds first try adds nothing here.
	RetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dayline_enrichment_retries_total",
		Help: "Retried upstream calls during enrichment, by entity type.",
	}, []string{"type"})

	// CapacityWaits counts the times a worker slept waiting for window
	// capacity before an upstream call.
	CapacityWaits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dayline_ratelimit_waits_total",
		Help: "Times a worker slept waiting for rate-limit capacity.",
	})

	// CapacityDenials counts the times the limiter gave up on a capacity
	// request entirely.
	CapacityDenials = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dayline_ratelimit_denials_total",
		Help: "Capacity requests the rate limiter denied.",
	})
)

// ObserveJob records one finished job.
func ObserveJob(kind, outcome string, elapsed time.Duration) {
	JobsTotal.WithLabelValues(kind, outcome).Inc()
	JobDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
}

// SetWindowUsage updates both rate-limit gauges from a limiter snapshot.
func SetWindowUsage(tokens, requests int) {
	WindowTokens.Set(float64(tokens))
	WindowRequests.Set(float64(requests))
}

// SetQueueDepth replaces the queue-depth gauge values with counts.
func SetQueueDepth(counts map[string]int) {
	for st, n := range counts {
		QueueDepth.WithLabelValues(st).Set(float64(n))
	}
}

// ObserveRetries records n retried upstream calls for one entity kind.
func ObserveRetries(kind string, n int) {
	if n > 0 {
		RetriesTotal.WithLabelValues(kind).Add(float64(n))
	}
}

// ObserveCapacityWait records one sleep spent waiting for window capacity.
func ObserveCapacityWait() {
	CapacityWaits.Inc()
}

// ObserveCapacityDenial records one capacity request the limiter gave up on.
func ObserveCapacityDenial() {
	CapacityDenials.Inc()
}
