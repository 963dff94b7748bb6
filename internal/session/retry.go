package session

import (
	"context"
	"time"
)

// RetryPolicy governs how many times a startup is attempted and how long to
// wait between attempts. It is a pure value: the coordinator consumes it,
// and tests exercise it in isolation.
type RetryPolicy struct {
	// MaxAttempts is the total attempt budget, including the first try.
	// Values below 1 are treated as 1.
	MaxAttempts int

	// Backoff returns the delay to sleep after the given failed attempt
	// (1-based). A nil Backoff means no delay.
	Backoff func(attempt int) time.Duration
}

// LinearBackoff returns a backoff of attempt * unit.
func LinearBackoff(unit time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration {
		return time.Duration(attempt) * unit
	}
}

// DefaultRetryPolicy is the startup policy used when none is configured:
// three attempts with linearly increasing delay.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		Backoff:     LinearBackoff(2 * time.Second),
	}
}

// Do runs fn until it succeeds or the attempt budget is exhausted, sleeping
// Backoff(attempt) between attempts. The final attempt's error is returned
// on exhaustion. Context cancellation interrupts the inter-attempt sleep.
func (p RetryPolicy) Do(ctx context.Context, fn func(attempt int) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = fn(attempt)
		if lastErr == nil {
			return nil
		}
		if attempt == attempts {
			break
		}

		var delay time.Duration
		if p.Backoff != nil {
			delay = p.Backoff(attempt)
		}
		if delay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return lastErr
}
