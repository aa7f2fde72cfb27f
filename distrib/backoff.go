package distrib

import (
	rand "math/rand/v2"
	"time"
)

// jitterBackoff computes the next retry delay using full-jitter exponential
// backoff with a cap.
//
// Behavior:
//   - If prev <= 0, start from base
//   - mult < 1.0 falls back to 1.0 (no growth)
//   - capDur bounds the result when positive
func jitterBackoff(prev, base time.Duration, mult float64, capDur time.Duration) time.Duration {
	if base <= 0 {
		base = 50 * time.Millisecond
	}
	if mult < 1.0 {
		mult = 1.0
	}
	if capDur > 0 && capDur < base {
		return capDur
	}

	if prev <= 0 {
		return base
	}

	maxDuration := time.Duration(float64(prev)*mult) - base
	if maxDuration <= 0 {
		maxDuration = base
	}

	next := base + time.Duration(rand.Int64N(int64(maxDuration))) //nolint:gosec // non-crypto jitter
	if capDur > 0 && next > capDur {
		return capDur
	}

	return next
}
