package relay

import "time"

const (
	DefaultBackoffBase = 1 * time.Second
	DefaultBackoffCap  = 60 * time.Second
)

// Backoff maps a consecutive failure count to the delay before the next
// restart attempt: base doubled per failure, saturating at Cap. The zero
// value uses the defaults. A failure count of zero still yields the base
// delay so an instantly-dying process cannot produce a hot restart loop.
type Backoff struct {
	Base time.Duration
	Cap  time.Duration
}

func (b Backoff) NextDelay(failureCount int) time.Duration {
	base := b.Base
	if base <= 0 {
		base = DefaultBackoffBase
	}
	max := b.Cap
	if max <= 0 {
		max = DefaultBackoffCap
	}
	if base > max {
		return max
	}
	delay := base
	for i := 0; i < failureCount; i++ {
		delay *= 2
		// doubling past the cap (or past overflow) saturates
		if delay >= max || delay < base {
			return max
		}
	}
	return delay
}
