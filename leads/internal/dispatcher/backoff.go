package dispatcher

import "time"

// Backoff returns the delay before the attempt following cycle attempt n:
// base·2^(n-1), capped at max.
func Backoff(n int, base, max time.Duration) time.Duration {
	if n <= 0 {
		n = 1
	}
	if n > 32 {
		return max
	}
	delay := base << (n - 1)
	if delay <= 0 || delay > max {
		return max
	}
	return delay
}
