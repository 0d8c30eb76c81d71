package memory

import (
	"context"
	"time"
)

// RetryConfig bounds the exponential backoff applied at I/O boundaries
// (embedding calls, store calls).
type RetryConfig struct {
	// MaxAttempts is the total number of tries, including the first.
	MaxAttempts int

	// BaseDelay is the delay after the first failure; it doubles per
	// attempt up to MaxDelay.
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// DefaultRetry is the retry policy used when none is configured.
var DefaultRetry = RetryConfig{
	MaxAttempts: 3,
	BaseDelay:   50 * time.Millisecond,
	MaxDelay:    2 * time.Second,
}

// retryDelay computes the backoff delay after the given zero-based
// attempt, with 10% jitter so synchronized workers fan out.
func (c RetryConfig) retryDelay(attempt int) time.Duration {
	delay := c.BaseDelay
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= c.MaxDelay {
			delay = c.MaxDelay
			break
		}
	}
	jitterRange := delay / 10
	if jitterRange > 0 {
		jitter := time.Duration(time.Now().UnixNano() % int64(jitterRange))
		delay += jitter - jitterRange/2
	}
	return delay
}

// Retry runs fn, retrying transient failures with bounded backoff.
// Non-transient errors and context cancellation return immediately. On
// exhaustion the last transient error is returned so the caller can map
// it to a partial-failure marker.
func Retry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	if cfg.MaxAttempts < 1 {
		cfg = DefaultRetry
	}

	var lastErr error
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(cfg.retryDelay(attempt - 1)):
			}
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !IsTransient(lastErr) {
			return lastErr
		}
	}
	return lastErr
}
