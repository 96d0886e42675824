package continuity

import "time"

// RetryPolicy bounds how often a rejected play attempt is retried before the
// failure surfaces to the user. Attempt n waits Backoff[n-1] first; the last
// backoff entry repeats if MaxAttempts exceeds the list.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     []time.Duration
}

// DefaultRetryPolicy retries a rejected play once after a short delay.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 2,
		Backoff:     []time.Duration{200 * time.Millisecond},
	}
}

// DefaultReloadPolicy governs recreation after a mid-stream load error.
func DefaultReloadPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 2,
		Backoff:     []time.Duration{time.Second, 2 * time.Second},
	}
}

// Delay returns the wait before the given retry attempt (1-based).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if len(p.Backoff) == 0 {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}
	if attempt > len(p.Backoff) {
		attempt = len(p.Backoff)
	}
	return p.Backoff[attempt-1]
}
