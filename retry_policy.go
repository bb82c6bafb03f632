// retry_policy.go
// ---------------
// Decides whether a classified failure is retried and how long to back off
// between attempts. Authentication failures are deliberately absent from the
// retryable set: the executor routes those through the refresh coordinator
// instead, and a refresh failure is surfaced without further retries.
package resilientclient

import (
	"math/rand"
	"time"
)

const (
	DefaultMaxAttempts = 3
	DefaultBaseBackoff = 300 * time.Millisecond
	DefaultMaxBackoff  = 10 * time.Second
)

// RetryPolicy bounds attempts and computes exponential backoff with jitter.
type RetryPolicy struct {
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration

	// jitter returns a uniform value in [0, 1). Injectable for tests;
	// defaults to math/rand.
	jitter func() float64
}

// NewRetryPolicy returns a policy with the default bounds.
func NewRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts: DefaultMaxAttempts,
		BaseBackoff: DefaultBaseBackoff,
		MaxBackoff:  DefaultMaxBackoff,
		jitter:      rand.Float64,
	}
}

// ShouldRetry reports whether a request that failed with e on the given
// zero-based attempt counter should be dispatched again.
func (p *RetryPolicy) ShouldRetry(e *NormalizedError, attempt int) bool {
	if attempt >= p.MaxAttempts {
		return false
	}
	if e == nil {
		return false
	}
	// Validation, Authorization, NotFound, Unknown: never retried.
	// Authentication: handled by the refresh coordinator, not here.
	return e.Retryable()
}

// BackoffDelay computes the delay before the given attempt is retried:
//
//	delay = min(MaxBackoff, BaseBackoff * 2^attempt * jitter)
//
// with jitter drawn uniformly from [0.7, 1.3] on every call, so concurrently
// failing clients do not retry in lockstep. The delay is never memoized.
func (p *RetryPolicy) BackoffDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	base := float64(p.BaseBackoff)
	for i := 0; i < attempt; i++ {
		base *= 2
		if base >= float64(p.MaxBackoff) {
			base = float64(p.MaxBackoff)
			break
		}
	}
	jit := p.jitter
	if jit == nil {
		jit = rand.Float64
	}
	delay := base * (0.7 + 0.6*jit())
	if delay > float64(p.MaxBackoff) {
		delay = float64(p.MaxBackoff)
	}
	return time.Duration(delay)
}
