package lifecycle

import "time"

// maxRestartDelay caps the exponential restart backoff.
const maxRestartDelay = 60 * time.Second

// restartDelay returns the delay before restart attempt n (1-based):
// base doubled per prior attempt, capped at maxRestartDelay.
func restartDelay(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = time.Second
	}
	if attempt < 1 {
		attempt = 1
	}
	shift := attempt - 1
	if shift > 30 {
		return maxRestartDelay
	}
	d := base << shift
	if d > maxRestartDelay || d <= 0 {
		return maxRestartDelay
	}
	return d
}
