// Package backoff provides retry delay strategies for external calls and a
// context-aware retry loop. Strategies are stateless and safe for
// concurrent use.
package backoff

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"
)

// Strategy computes the delay before a retry attempt.
type Strategy interface {
	// Delay returns how long to wait before retry attempt n (1-indexed).
	Delay(attempt int) time.Duration
}

// Constant always waits the same interval.
type Constant struct {
	Interval time.Duration
}

// NewConstant creates a constant backoff strategy.
func NewConstant(interval time.Duration) *Constant {
	return &Constant{Interval: interval}
}

// Delay returns the fixed interval.
func (c *Constant) Delay(_ int) time.Duration { return c.Interval }

// Exponential doubles the delay each attempt, capped at Max.
type Exponential struct {
	Initial time.Duration
	Max     time.Duration

	// Jitter picks a random delay in [0, base] instead of base.
	Jitter bool
}

// NewExponential creates an exponential backoff strategy without jitter.
func NewExponential(initial, maxDelay time.Duration) *Exponential {
	return &Exponential{Initial: initial, Max: maxDelay}
}

// NewExponentialWithJitter creates an exponential strategy with full jitter.
func NewExponentialWithJitter(initial, maxDelay time.Duration) *Exponential {
	return &Exponential{Initial: initial, Max: maxDelay, Jitter: true}
}

// Delay returns min(Initial * 2^(attempt-1), Max), jittered if enabled.
func (e *Exponential) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	base := float64(e.Initial) * math.Pow(2, float64(attempt-1))
	if e.Max > 0 && base > float64(e.Max) {
		base = float64(e.Max)
	}
	if e.Jitter {
		return time.Duration(rand.Float64() * base) //nolint:gosec // jitter does not need crypto rand
	}
	return time.Duration(base)
}

// DefaultStrategy is the backoff used for model calls: exponential with
// jitter from 500ms up to 10s.
func DefaultStrategy() Strategy {
	return NewExponentialWithJitter(500*time.Millisecond, 10*time.Second)
}

// permanent marks an error that must not be retried.
type permanent struct{ err error }

func (p *permanent) Error() string { return p.err.Error() }
func (p *permanent) Unwrap() error { return p.err }

// Permanent wraps err so Retry returns it immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanent{err: err}
}

// Retry calls fn until it succeeds, returns a Permanent error, or has been
// called attempts times. It waits s.Delay(n) between calls and stops early
// when ctx is done. The last error is returned unwrapped from Permanent.
func Retry(ctx context.Context, attempts int, s Strategy, fn func(ctx context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for n := 1; ; n++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		var p *permanent
		if errors.As(err, &p) {
			return p.err
		}
		if n >= attempts {
			return err
		}

		t := time.NewTimer(s.Delay(n))
		select {
		case <-ctx.Done():
			t.Stop()
			return err
		case <-t.C:
		}
	}
}
