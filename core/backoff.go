package core

import "time"

const MaxRetryBackoff = time.Hour

// RetryBackoff returns min(base * 2^(attempt-1), maxDelay). A zero maxDelay
// falls back to MaxRetryBackoff.
func RetryBackoff(base time.Duration, attempt int, maxDelay time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	if maxDelay <= 0 {
		maxDelay = MaxRetryBackoff
	}
	if attempt < 1 {
		attempt = 1
	}
	delay := base
	for i := 1; i < attempt; i++ {
		if delay >= maxDelay/2 {
			return maxDelay
		}
		delay *= 2
	}
	if delay > maxDelay {
		return maxDelay
	}
	return delay
}
