// Package ratelimit enforces the per-minute request and token budgets shared
// by every enrichment worker in the process. State is in-memory only: each
// process has its own window and there is no cross-process coordination.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/dayline/dayline/internal/metrics"
)

// window is the sliding interval usage records live in.
const window = 60 * time.Second

// Default quotas, matching the external service's free-tier budget.
const (
	DefaultRequestsPerMinute = 60
	DefaultTokensPerMinute   = 90000
	DefaultMaxWaitAttempts   = 3
	DefaultBaseDelay         = time.Second
)

// Config holds Limiter settings. Zero values fall back to the defaults above.
type Config struct {
	RequestsPerMinute int
	TokensPerMinute   int
	MaxWaitAttempts   int
	BaseDelay         time.Duration
}

// Limiter tracks token and request usage over a sliding one-minute window and
// grants or denies capacity to callers. All workers in the process share one
// instance; a single mutex guards the usage records. The mutex is held only
// for the read-purge-write of records, never across a sleep.
type Limiter struct {
	requestsPerMinute int
	tokensPerMinute   int
	maxWaitAttempts   int
	baseDelay         time.Duration

	mu sync.Mutex
	// usage maps unix-second timestamps to token counts. Records sharing the
	// exact same timestamp merge by summing; the request count is the number
	// of live timestamps.
	usage map[int64]int

	// now and sleep are injection points for tests.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) bool
}

// New creates a Limiter with the given config, applying defaults for zero
// fields.
func New(cfg Config) *Limiter {
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = DefaultRequestsPerMinute
	}
	if cfg.TokensPerMinute <= 0 {
		cfg.TokensPerMinute = DefaultTokensPerMinute
	}
	if cfg.MaxWaitAttempts <= 0 {
		cfg.MaxWaitAttempts = DefaultMaxWaitAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultBaseDelay
	}
	return &Limiter{
		requestsPerMinute: cfg.RequestsPerMinute,
		tokensPerMinute:   cfg.TokensPerMinute,
		maxWaitAttempts:   cfg.MaxWaitAttempts,
		baseDelay:         cfg.BaseDelay,
		usage:             make(map[int64]int),
		now:               time.Now,
		sleep:             sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}

// Limits returns the configured per-minute request and token quotas.
func (l *Limiter) Limits() (requestsPerMinute, tokensPerMinute int) {
	return l.requestsPerMinute, l.tokensPerMinute
}

// RecordUsage appends a usage record at ts. A record already present for the
// exact same timestamp has its token count summed rather than duplicated.
func (l *Limiter) RecordUsage(ts time.Time, tokens int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.usage[ts.Unix()] += tokens
}

// CurrentUsage purges records older than now-60s and returns the request and
// token counts remaining in the window. Purge and read happen under the mutex
// so concurrent writers never see a half-purged snapshot.
func (l *Limiter) CurrentUsage(now time.Time) (requests, tokens int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.purgeLocked(now)
	return len(l.usage), l.tokensLocked()
}

// WaitForCapacity reports whether estimatedTokens of capacity could be
// acquired. Up to maxWaitAttempts attempts are made; attempt n evaluates the
// window at a clock advanced by n*baseDelay, so stale records age out even
// without real elapsed time. On success the usage is recorded at the advanced
// timestamp. Between failed attempts the caller sleeps an exponentially
// increasing delay; a cancelled context abandons the wait.
func (l *Limiter) WaitForCapacity(ctx context.Context, estimatedTokens int) bool {
	if estimatedTokens <= 0 {
		return true
	}
	// More than the whole budget can never fit, no matter how long we wait.
	if estimatedTokens > l.tokensPerMinute {
		metrics.ObserveCapacityDenial()
		return false
	}

	for attempt := 1; attempt <= l.maxWaitAttempts; attempt++ {
		simulated := l.now().Add(time.Duration(attempt) * l.baseDelay)
		if l.tryAcquire(simulated, estimatedTokens) {
			return true
		}
		if attempt < l.maxWaitAttempts {
			metrics.ObserveCapacityWait()
			if !l.sleep(ctx, l.baseDelay*time.Duration(1<<(attempt-1))) {
				metrics.ObserveCapacityDenial()
				return false
			}
		}
	}
	metrics.ObserveCapacityDenial()
	return false
}

// tryAcquire purges the window as of now, and if the estimate still fits the
// token quota, records it and reports success. A request exactly filling the
// remaining budget is granted.
func (l *Limiter) tryAcquire(now time.Time, estimatedTokens int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.purgeLocked(now)
	if l.tokensLocked()+estimatedTokens <= l.tokensPerMinute {
		l.usage[now.Unix()] += estimatedTokens
		return true
	}
	return false
}

// purgeLocked drops records older than the trailing window; a record exactly
// sixty seconds old still counts. Callers must hold l.mu.
func (l *Limiter) purgeLocked(now time.Time) {
	cutoff := now.Add(-window).Unix()
	for ts := range l.usage {
		if ts < cutoff {
			delete(l.usage, ts)
		}
	}
}

// tokensLocked sums the token counts of the live records. Callers must hold
// l.mu.
func (l *Limiter) tokensLocked() int {
	total := 0
	for _, tokens := range l.usage {
		total += tokens
	}
	return total
}
