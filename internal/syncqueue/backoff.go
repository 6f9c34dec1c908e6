package syncqueue

import (
	"math/rand"
	"time"
)

// A BackoffPolicy computes the delay before the next delivery attempt.
// The shape is exponential with a randomized jitter and a hard cap; the
// jitter spreads retries of many clients waking up at the same moment.
type BackoffPolicy struct {
	Base time.Duration
	Cap  time.Duration
}

// Delay returns min(base * 2^attempt + jitter, cap) where jitter is uniform
// in [0, base).
func (p BackoffPolicy) Delay(attempt int) time.Duration {
	if p.Base <= 0 {
		return 0
	}

	d := p.Base
	for i := 0; i < attempt && d < p.Cap; i++ {
		d *= 2
	}
	d += time.Duration(rand.Int63n(int64(p.Base)))

	if p.Cap > 0 && d > p.Cap {
		d = p.Cap
	}
	return d
}
