package dispatcher

import (
	"math"
	"math/rand"
	"time"
)

const (
	backoffBase = 500 * time.Millisecond
	backoffCap  = 2 * time.Minute
	jitterSpan  = 250 * time.Millisecond
)

// BackoffFunc computes the due-time delay for a given attempt number
// (1-indexed). DefaultBackoff implements spec §4.3's formula.
type BackoffFunc func(attempt int) time.Duration

// DefaultBackoff is base=500ms*2^(attempt-1) plus uniform jitter in
// [0, 250ms), capped at 2 minutes (spec §4.3).
func DefaultBackoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	base := time.Duration(float64(backoffBase) * math.Pow(2, float64(attempt-1)))
	jitter := time.Duration(rand.Int63n(int64(jitterSpan)))
	delay := base + jitter
	if delay > backoffCap {
		delay = backoffCap
	}
	return delay
}
