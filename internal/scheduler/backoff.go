package scheduler

import (
	"math"
	"time"
)

const maxBackoff = 24 * time.Hour

// Backoff returns the delay before retry number retry (1-based):
// base·2^(retry-1), raised to retryAfter when the remote asked for longer.
// prev is the delay before the previous retry; the result always exceeds it
// by at least base, so a long Retry-After is never followed by a shorter wait.
func Backoff(base time.Duration, retry int, retryAfter, prev time.Duration) time.Duration {
	if base <= 0 {
		base = time.Second
	}
	if retry < 1 {
		retry = 1
	}
	exp := math.Pow(2, float64(retry-1))
	delay := maxBackoff
	if scaled := float64(base) * exp; scaled < float64(maxBackoff) {
		delay = time.Duration(scaled)
	}
	if retryAfter > delay {
		delay = retryAfter
	}
	if prev > 0 && delay < prev+base {
		delay = prev + base
	}
	return delay
}
