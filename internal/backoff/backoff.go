// Package backoff provides the exponential-backoff delay schedule shared by
// the REST retry path and the stream reconnect path.
package backoff

import (
	"math/rand"
	"time"
)

// Delay returns the wait before attempt k (0-based): base·2^k with ±25%
// jitter, capped at max. The jittered result stays within
// [base·2^k·0.75, base·2^k·1.25] before capping.
func Delay(attempt int, base, max time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	if attempt < 0 {
		attempt = 0
	}

	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= max {
			d = max
			break
		}
	}

	jittered := Jitter(d)
	if jittered > max {
		jittered = max
	}
	return jittered
}

// Jitter scales d by a uniform random factor in [0.75, 1.25).
func Jitter(d time.Duration) time.Duration {
	factor := 0.75 + rand.Float64()*0.5
	return time.Duration(float64(d) * factor)
}
