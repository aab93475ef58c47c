// Package backoff provides pluggable retry delay strategies.
// All strategies are stateless and safe for concurrent use.
package backoff

import (
	"math"
	"math/rand/v2"
	"time"
)

// Strategy computes the delay before a retry attempt.
type Strategy interface {
	// Delay returns how long to wait before retry attempt n (1-indexed).
	// Attempt 1 is the first retry after the initial failure.
	Delay(attempt int) time.Duration
}

// Quadratic grows the delay with the square of the attempt number.
// Delay = min(attempt² seconds, Cap). The cap prevents unbounded waits;
// the curve is deliberately cheap and jitter-free.
type Quadratic struct {
	Cap time.Duration
}

// NewQuadratic creates a quadratic backoff strategy capped at cap.
func NewQuadratic(cap time.Duration) *Quadratic {
	return &Quadratic{Cap: cap}
}

// Delay returns attempt² seconds, capped at Cap.
func (q *Quadratic) Delay(attempt int) time.Duration {
	d := time.Duration(attempt*attempt) * time.Second
	if q.Cap > 0 && d > q.Cap {
		return q.Cap
	}
	return d
}

// Constant always returns the same delay regardless of attempt number.
// Used for infrastructure connect retries, where the service waits for
// its dependencies rather than failing fast.
type Constant struct {
	Interval time.Duration
}

// NewConstant creates a constant backoff strategy.
func NewConstant(interval time.Duration) *Constant {
	return &Constant{Interval: interval}
}

// Delay returns the fixed interval.
func (c *Constant) Delay(_ int) time.Duration {
	return c.Interval
}

// ExponentialWithJitter applies full jitter to an exponential base.
// Delay = random value in [0, min(Initial * 2^(attempt-1), Max)].
// This prevents thundering herd when many retries happen simultaneously.
type ExponentialWithJitter struct {
	Initial time.Duration
	Max     time.Duration
}

// NewExponentialWithJitter creates an exponential backoff with full jitter.
func NewExponentialWithJitter(initial, maxDelay time.Duration) *ExponentialWithJitter {
	return &ExponentialWithJitter{Initial: initial, Max: maxDelay}
}

// Delay returns a random duration in [0, min(Initial * 2^(attempt-1), Max)].
func (e *ExponentialWithJitter) Delay(attempt int) time.Duration {
	base := float64(e.Initial) * math.Pow(2, float64(attempt-1))
	if e.Max > 0 && base > float64(e.Max) {
		base = float64(e.Max)
	}
	return time.Duration(rand.Float64() * base) //nolint:gosec // jitter intentionally uses non-crypto rand
}

// DefaultStrategy returns the retry backoff used by the worker:
// Quadratic capped at 30 seconds.
func DefaultStrategy() Strategy {
	return NewQuadratic(30 * time.Second)
}
