// Package retry wraps fallible operations with bounded retries and
// exponential backoff. Which failures retry and which pass straight through
// is decided by matching error kinds, so the loop itself stays a pure data
// match.
package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// maxDelay caps a single backoff interval before jitter is applied.
const maxDelay = 60 * time.Second

// DefaultBaseDelay is the first retry interval when a policy does not set one.
const DefaultBaseDelay = time.Second

// Policy controls how Do re-invokes an operation.
type Policy struct {
	// MaxRetries is the number of retries after the first invocation, so an
	// exhausted run makes MaxRetries+1 calls in total. Zero disables retries.
	MaxRetries int

	// BaseDelay seeds the exponential backoff. Defaults to one second.
	BaseDelay time.Duration

	// Jitter widens each delay by a uniform ±(delay*Jitter) perturbation.
	Jitter float64

	// RetryOn lists the error kinds worth another attempt, matched with
	// errors.Is.
	RetryOn []error

	// ExcludeOn lists the fatal kinds that bypass retries entirely. Errors
	// matching neither set propagate immediately as well.
	ExcludeOn []error

	// Sleep suspends the caller between attempts. Defaults to a
	// context-aware sleep; tests inject an instant one.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Do invokes op until it succeeds, fails fatally, or exhausts the policy's
// retries. The error returned after exhaustion is the operation's own last
// error, unchanged: callers distinguish "exhausted" from "immediately fatal"
// by their own attempt bookkeeping, not by error kind. Only the calling
// goroutine is suspended between attempts.
func Do[T any](ctx context.Context, p Policy, op func(context.Context) (T, error)) (T, error) {
	var zero T

	base := p.BaseDelay
	if base <= 0 {
		base = DefaultBaseDelay
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	for attempt := 1; ; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		if matchesAny(err, p.ExcludeOn) {
			return zero, err
		}
		if !matchesAny(err, p.RetryOn) {
			return zero, err
		}
		if attempt > p.MaxRetries {
			return zero, err
		}
		if serr := sleep(ctx, Backoff(attempt, base, p.Jitter)); serr != nil {
			return zero, serr
		}
	}
}

// Backoff returns the delay before the retry that follows failed attempt n
// (1-based): min(base*2^(n-1), 60s), widened by a uniform random perturbation
// of up to ±delay*jitter.
func Backoff(attempt int, base time.Duration, jitter float64) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maxDelay {
			break
		}
	}
	if delay > maxDelay {
		delay = maxDelay
	}

	if jitter > 0 {
		spread := (rand.Float64()*2 - 1) * jitter // uniform in [-jitter, +jitter]
		delay += time.Duration(float64(delay) * spread)
	}
	return delay
}

func matchesAny(err error, kinds []error) bool {
	for _, kind := range kinds {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
