// Package retry provides the shared retry policy for outbound calls: the
// send transport, proxy probes, and other network collaborators all go
// through one Policy instead of hand-rolled per-call backoff loops.
package retry

import (
	"context"
	"errors"
	"log"
	"math"
	"math/rand"
	"time"
)

// Policy describes bounded exponential backoff with jitter.
// The zero value is unusable; use Default() or fill every field.
type Policy struct {
	// MaxRetries is the number of attempts after the first one.
	MaxRetries int
	// BaseDelay seeds the exponential schedule: base, 2*base, 4*base, ...
	BaseDelay time.Duration
	// MaxDelay caps a single backoff interval.
	MaxDelay time.Duration
	// Jitter in [0,1] randomizes each interval downward: a value of 0.5
	// draws uniformly from [0.5*d, d]. 1.0 is full jitter.
	Jitter float64
}

// Default returns the platform-wide transport policy: 3 retries, 2s base,
// capped at 30s, half jitter.
func Default() Policy {
	return Policy{MaxRetries: 3, BaseDelay: 2 * time.Second, MaxDelay: 30 * time.Second, Jitter: 0.5}
}

// Do runs op, retrying transient failures per the policy. It stops early on
// success, context cancellation, or an error marked Permanent. The returned
// error is the last attempt's error, unwrapped from its Permanent marker.
func (p Policy) Do(ctx context.Context, name string, op func(context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := p.backoff(attempt)
			log.Printf("[Retry] %s attempt %d/%d in %s (last error: %v)", name, attempt, p.MaxRetries, delay.Round(time.Millisecond), lastErr)

			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			}
		}

		err := op(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		if ctx.Err() != nil {
			return err
		}
	}

	return lastErr
}

// backoff returns the interval before the given retry attempt (1-based).
func (p Policy) backoff(attempt int) time.Duration {
	d := float64(p.BaseDelay) * math.Pow(2, float64(attempt-1))
	if max := float64(p.MaxDelay); p.MaxDelay > 0 && d > max {
		d = max
	}
	if p.Jitter > 0 {
		d -= rand.Float64() * p.Jitter * d
	}
	if d < float64(10*time.Millisecond) {
		d = float64(10 * time.Millisecond)
	}
	return time.Duration(d)
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as non-retryable: Do returns it immediately. Use for
// failures where another attempt cannot help (composer errors, 4xx
// responses, invariant violations).
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err carries the Permanent marker.
func IsPermanent(err error) bool {
	var perm *permanentError
	return errors.As(err, &perm)
}
